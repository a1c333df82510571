package frames

import (
	"sync"
	"sync/atomic"
	"time"
)

// Point cloud buffers are large (tens of thousands of points at camera frame
// rate) and short-lived, so their slices come from pools. A PointCloud is
// reference counted: every consumer that keeps the frame past the callback
// must Retain it, and every consumer calls Release when done.

const typicalPoints = 75000
const maxPooledPoints = 150000

var floatSlicePool = sync.Pool{
	New: func() interface{} {
		return make([]float32, 0, typicalPoints)
	},
}

var byteSlicePool = sync.Pool{
	New: func() interface{} {
		return make([]byte, 0, typicalPoints*3)
	},
}

func getFloatSlice(n int) []float32 {
	s := floatSlicePool.Get().([]float32)
	if cap(s) < n {
		floatSlicePool.Put(s)
		return make([]float32, n)
	}
	return s[:n]
}

func putFloatSlice(s []float32) {
	if cap(s) > 0 && cap(s) <= maxPooledPoints {
		floatSlicePool.Put(s[:0])
	}
}

func getByteSlice(n int) []byte {
	s := byteSlicePool.Get().([]byte)
	if cap(s) < n {
		byteSlicePool.Put(s)
		return make([]byte, n)
	}
	return s[:n]
}

func putByteSlice(s []byte) {
	if cap(s) > 0 && cap(s) <= maxPooledPoints*3 {
		byteSlicePool.Put(s[:0])
	}
}

// PointCloud is a colorized point cloud. X, Y and Z are parallel coordinate
// slices in metres; Colors holds packed RGB, 3 bytes per point.
type PointCloud struct {
	X, Y, Z   []float32
	Colors    []byte
	Count     int
	Seq       uint64
	Timestamp time.Time

	refCount atomic.Int32
}

// NewPointCloud allocates a cloud for n points from the buffer pools.
func NewPointCloud(n int) *PointCloud {
	return &PointCloud{
		X:      getFloatSlice(n),
		Y:      getFloatSlice(n),
		Z:      getFloatSlice(n),
		Colors: getByteSlice(n * 3),
		Count:  n,
	}
}

// Retain adds a reference for a consumer that holds the cloud beyond the
// callback that delivered it.
func (pc *PointCloud) Retain() {
	pc.refCount.Add(1)
}

// Release drops a reference and returns the buffers to the pools once the
// last holder releases. A cloud that was never Retained is released by its
// first Release call.
func (pc *PointCloud) Release() {
	if pc == nil {
		return
	}
	if pc.refCount.Add(-1) > 0 {
		return
	}
	putFloatSlice(pc.X)
	putFloatSlice(pc.Y)
	putFloatSlice(pc.Z)
	putByteSlice(pc.Colors)
	pc.X, pc.Y, pc.Z, pc.Colors = nil, nil, nil, nil
	pc.Count = 0
}
