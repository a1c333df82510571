package pipeline

import (
	"encoding/json"
	"fmt"
	"sort"
)

// BoardSocket identifies a physical camera socket on the device.
type BoardSocket string

const (
	SocketAuto  BoardSocket = "AUTO"
	SocketRGB   BoardSocket = "RGB"
	SocketLeft  BoardSocket = "LEFT"
	SocketRight BoardSocket = "RIGHT"
	SocketCamA  BoardSocket = "CAM_A"
	SocketCamB  BoardSocket = "CAM_B"
	SocketCamC  BoardSocket = "CAM_C"
	SocketCamD  BoardSocket = "CAM_D"
)

var validSockets = map[BoardSocket]bool{
	SocketAuto: true, SocketRGB: true, SocketLeft: true, SocketRight: true,
	SocketCamA: true, SocketCamB: true, SocketCamC: true, SocketCamD: true,
}

// UnmarshalJSON rejects socket names the backend does not know about.
func (s *BoardSocket) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	if !validSockets[BoardSocket(name)] {
		return fmt.Errorf("unknown board socket %q", name)
	}
	*s = BoardSocket(name)
	return nil
}

// ColorResolution names a color sensor resolution.
type ColorResolution string

const (
	Color720P      ColorResolution = "THE_720_P"
	Color800P      ColorResolution = "THE_800_P"
	Color1080P     ColorResolution = "THE_1080_P"
	Color4K        ColorResolution = "THE_4_K"
	Color12MP      ColorResolution = "THE_12_MP"
	Color1440x1080 ColorResolution = "THE_1440X1080"
	Color5312x6000 ColorResolution = "THE_5312X6000"
)

// MonoResolution names a mono sensor resolution.
type MonoResolution string

const (
	Mono400P  MonoResolution = "THE_400_P"
	Mono480P  MonoResolution = "THE_480_P"
	Mono720P  MonoResolution = "THE_720_P"
	Mono800P  MonoResolution = "THE_800_P"
	Mono1200P MonoResolution = "THE_1200_P"
)

// Dims is a width/height pair in pixels.
type Dims struct {
	W, H int
}

// Area returns the pixel count, used to order resolution lists.
func (d Dims) Area() int { return d.W * d.H }

var colorResolutionDims = map[ColorResolution]Dims{
	Color720P:      {1280, 720},
	Color800P:      {1280, 800},
	Color1080P:     {1920, 1080},
	Color4K:        {3840, 2160},
	Color12MP:      {4056, 3040},
	Color1440x1080: {1440, 1080},
	Color5312x6000: {5312, 6000},
}

var monoResolutionDims = map[MonoResolution]Dims{
	Mono400P:  {640, 400},
	Mono480P:  {640, 480},
	Mono720P:  {1280, 720},
	Mono800P:  {1280, 800},
	Mono1200P: {1920, 1200},
}

var colorResolutionByDims = func() map[Dims]ColorResolution {
	m := make(map[Dims]ColorResolution, len(colorResolutionDims))
	for r, d := range colorResolutionDims {
		m[d] = r
	}
	return m
}()

var monoResolutionByDims = func() map[Dims]MonoResolution {
	m := make(map[Dims]MonoResolution, len(monoResolutionDims))
	for r, d := range monoResolutionDims {
		m[d] = r
	}
	return m
}()

// Dims returns the pixel dimensions of the resolution. ok is false for
// resolutions the backend has no table entry for.
func (r ColorResolution) Dims() (Dims, bool) {
	d, ok := colorResolutionDims[r]
	return d, ok
}

func (r MonoResolution) Dims() (Dims, bool) {
	d, ok := monoResolutionDims[r]
	return d, ok
}

// ColorResolutionFor looks up the resolution name for a sensor mode reported
// by the device. Unknown dimensions yield ok=false and must be skipped, not
// treated as an error: devices report modes the backend does not expose.
func ColorResolutionFor(d Dims) (ColorResolution, bool) {
	r, ok := colorResolutionByDims[d]
	return r, ok
}

func MonoResolutionFor(d Dims) (MonoResolution, bool) {
	r, ok := monoResolutionByDims[d]
	return r, ok
}

// SortDimsByArea orders sensor modes smallest-first, the order device
// properties are reported in.
func SortDimsByArea(dims []Dims) {
	sort.Slice(dims, func(i, j int) bool { return dims[i].Area() < dims[j].Area() })
}

func (r *ColorResolution) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	if _, ok := colorResolutionDims[ColorResolution(name)]; !ok {
		return fmt.Errorf("unknown color resolution %q", name)
	}
	*r = ColorResolution(name)
	return nil
}

func (r *MonoResolution) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	if _, ok := monoResolutionDims[MonoResolution(name)]; !ok {
		return fmt.Errorf("unknown mono resolution %q", name)
	}
	*r = MonoResolution(name)
	return nil
}

// MedianFilter names the stereo depth median filter kernel.
type MedianFilter string

const (
	MedianOff MedianFilter = "MEDIAN_OFF"
	Kernel3x3 MedianFilter = "KERNEL_3x3"
	Kernel5x5 MedianFilter = "KERNEL_5x5"
	Kernel7x7 MedianFilter = "KERNEL_7x7"
)

var validMedianFilters = map[MedianFilter]bool{
	MedianOff: true, Kernel3x3: true, Kernel5x5: true, Kernel7x7: true,
}

func (m *MedianFilter) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	if !validMedianFilters[MedianFilter(name)] {
		return fmt.Errorf("unknown median filter %q", name)
	}
	*m = MedianFilter(name)
	return nil
}
