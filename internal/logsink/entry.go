// Package logsink streams visualization log entries to viewer clients over
// gRPC. Frame callbacks publish entries addressed by entity path; the
// publisher fans them out to connected clients with per-client drop-on-full
// so a slow viewer never stalls the camera callbacks.
//
// The wire format is CBOR rather than protobuf: entries carry large binary
// tensors (images, point clouds) that CBOR encodes as raw byte strings, and
// the viewer side consumes a self-describing schema.
package logsink

import "time"

// EntryKind discriminates the payload carried by an Entry.
type EntryKind int

const (
	KindImage EntryKind = iota + 1
	KindDepthImage
	KindPoints
	KindRects
	KindRigid3
	KindPinhole
	KindImu
	KindClear
)

var kindNames = map[EntryKind]string{
	KindImage:      "Image",
	KindDepthImage: "DepthImage",
	KindPoints:     "Points",
	KindRects:      "Rects",
	KindRigid3:     "Rigid3",
	KindPinhole:    "Pinhole",
	KindImu:        "Imu",
	KindClear:      "Clear",
}

func (k EntryKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "EntryKind(?)"
}

// Entry is one timestamped log record addressed by entity path. Exactly one
// payload field is set, matching Kind.
type Entry struct {
	Path          string    `cbor:"path"`
	Kind          EntryKind `cbor:"kind"`
	Seq           uint64    `cbor:"seq"`
	TimestampNano int64     `cbor:"ts"`

	Image   *ImagePayload   `cbor:"image,omitempty"`
	Depth   *DepthPayload   `cbor:"depth,omitempty"`
	Points  *PointsPayload  `cbor:"points,omitempty"`
	Rects   *RectsPayload   `cbor:"rects,omitempty"`
	Rigid3  *Rigid3Payload  `cbor:"rigid3,omitempty"`
	Pinhole *PinholePayload `cbor:"pinhole,omitempty"`
	Imu     *ImuPayload     `cbor:"imu,omitempty"`
}

// Timestamp returns the entry time.
func (e *Entry) Timestamp() time.Time {
	return time.Unix(0, e.TimestampNano)
}

// ImagePayload is a packed raster. Format is "rgb8" or "mono8"; Data is
// row-major, Width*Height*channels bytes.
type ImagePayload struct {
	Width  int    `cbor:"w"`
	Height int    `cbor:"h"`
	Format string `cbor:"format"`
	Data   []byte `cbor:"data"`
}

// DepthPayload is a row-major uint16 depth raster. MeterScale is the
// divisor converting raw units to metres (1000 for millimetre depth).
type DepthPayload struct {
	Width      int      `cbor:"w"`
	Height     int      `cbor:"h"`
	MeterScale float64  `cbor:"meter"`
	Data       []uint16 `cbor:"data"`
}

// PointsPayload is a colorized point cloud in metres. Colors holds packed
// RGB, 3 bytes per point; empty means uncolored.
type PointsPayload struct {
	X      []float32 `cbor:"x"`
	Y      []float32 `cbor:"y"`
	Z      []float32 `cbor:"z"`
	Colors []byte    `cbor:"colors,omitempty"`
}

// RectsPayload holds 2D boxes in pixel coordinates, [xmin ymin xmax ymax]
// per box. Labels and Colors (RGB per box) are index-aligned with Rects.
type RectsPayload struct {
	Rects  [][4]float32 `cbor:"rects"`
	Labels []string     `cbor:"labels"`
	Colors [][3]uint8   `cbor:"colors,omitempty"`
}

// Rigid3Payload is a rigid transform: rotation quaternion in (w, x, y, z)
// order plus a translation in metres.
type Rigid3Payload struct {
	Quaternion  [4]float64 `cbor:"q"`
	Translation [3]float64 `cbor:"t"`
}

// PinholePayload is a row-major 3x3 camera intrinsic matrix and the image
// size it applies to.
type PinholePayload struct {
	Matrix [9]float64 `cbor:"k"`
	Width  int        `cbor:"w"`
	Height int        `cbor:"h"`
}

// ImuPayload carries one raw IMU sample alongside the fused orientation.
type ImuPayload struct {
	Accel       [3]float64 `cbor:"accel"`
	Gyro        [3]float64 `cbor:"gyro"`
	Mag         [3]float64 `cbor:"mag"`
	Orientation [4]float64 `cbor:"orientation"`
}

// StreamRequest is the client's opening message on the Subscribe stream.
// An empty PathPrefixes subscribes to everything.
type StreamRequest struct {
	ClientName   string   `cbor:"client_name"`
	PathPrefixes []string `cbor:"path_prefixes,omitempty"`
}
