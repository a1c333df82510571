package logsink

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/oakview/oakbridge/internal/frames"
	"github.com/oakview/oakbridge/internal/monitoring"
)

func TestCodecRoundTrip(t *testing.T) {
	in := &Entry{
		Path:          "color/camera/rgb/image",
		Kind:          KindImage,
		Seq:           7,
		TimestampNano: time.Now().UnixNano(),
		Image: &ImagePayload{
			Width: 2, Height: 1,
			Format: "rgb8",
			Data:   []byte{1, 2, 3, 4, 5, 6},
		},
	}

	c := Codec{}
	data, err := c.Marshal(in)
	require.NoError(t, err)

	var out Entry
	require.NoError(t, c.Unmarshal(data, &out))
	assert.Equal(t, in.Path, out.Path)
	assert.Equal(t, in.Kind, out.Kind)
	assert.Equal(t, in.Seq, out.Seq)
	require.NotNil(t, out.Image)
	assert.Equal(t, in.Image.Data, out.Image.Data)
	assert.Nil(t, out.Points)
}

func TestCodecRoundTripDepth(t *testing.T) {
	in := &Entry{
		Path: "depth/camera/depth/image",
		Kind: KindDepthImage,
		Depth: &DepthPayload{
			Width: 2, Height: 2,
			MeterScale: 1000,
			Data:       []uint16{500, 1000, 1500, 4000},
		},
	}
	c := Codec{}
	data, err := c.Marshal(in)
	require.NoError(t, err)

	var out Entry
	require.NoError(t, c.Unmarshal(data, &out))
	require.NotNil(t, out.Depth)
	assert.Equal(t, in.Depth.Data, out.Depth.Data)
	assert.Equal(t, float64(1000), out.Depth.MeterScale)
}

func TestClientWants(t *testing.T) {
	everything := &clientStream{}
	assert.True(t, everything.wants("color/camera/rgb/image"))

	filtered := &clientStream{prefixes: []string{"depth/", "imu"}}
	assert.True(t, filtered.wants("depth/camera/depth/image"))
	assert.True(t, filtered.wants("imu"))
	assert.False(t, filtered.wants("color/camera/rgb/image"))
}

// captureSink collects published entries for logger tests.
type captureSink struct {
	entries []*Entry
}

func (c *captureSink) Publish(e *Entry) { c.entries = append(c.entries, e) }

func TestLoggerImageConvertsBGR(t *testing.T) {
	var sink captureSink
	l := NewLogger(&sink)

	l.Image("color/camera/rgb/image", &frames.ImageFrame{
		Width: 1, Height: 1,
		Format: frames.PixelBGR,
		Data:   []byte{10, 20, 30}, // B G R
	})

	require.Len(t, sink.entries, 1)
	e := sink.entries[0]
	assert.Equal(t, KindImage, e.Kind)
	require.NotNil(t, e.Image)
	assert.Equal(t, "rgb8", e.Image.Format)
	assert.Equal(t, []byte{30, 20, 10}, e.Image.Data)
}

func TestLoggerImageMono(t *testing.T) {
	var sink captureSink
	l := NewLogger(&sink)

	l.Image("mono/camera/left_mono/image", &frames.ImageFrame{
		Width: 2, Height: 1,
		Format: frames.PixelGray,
		Data:   []byte{100, 200},
	})

	require.Len(t, sink.entries, 1)
	assert.Equal(t, "mono8", sink.entries[0].Image.Format)
	assert.Equal(t, []byte{100, 200}, sink.entries[0].Image.Data)
}

func TestLoggerDepthMeterScale(t *testing.T) {
	var sink captureSink
	l := NewLogger(&sink)

	l.DepthImage("depth/camera/depth/image", &frames.DepthFrame{
		Width: 1, Height: 1,
		Millimetres: []uint16{1500},
	})

	require.Len(t, sink.entries, 1)
	require.NotNil(t, sink.entries[0].Depth)
	assert.Equal(t, float64(1000), sink.entries[0].Depth.MeterScale)
}

func TestLoggerSequenceIsMonotonic(t *testing.T) {
	var sink captureSink
	l := NewLogger(&sink)

	l.Clear("a")
	l.Clear("b")
	l.Rects("c", nil, nil, nil, time.Now())

	require.Len(t, sink.entries, 3)
	assert.Equal(t, uint64(1), sink.entries[0].Seq)
	assert.Equal(t, uint64(2), sink.entries[1].Seq)
	assert.Equal(t, uint64(3), sink.entries[2].Seq)
}

func TestLoggerImu(t *testing.T) {
	var sink captureSink
	l := NewLogger(&sink)

	l.Imu("imu", frames.IMUSample{
		Accel: frames.Vec3{X: 0, Y: 0, Z: 9.81},
		Gyro:  frames.Vec3{X: 0.1, Y: 0, Z: 0},
	}, [4]float64{1, 0, 0, 0})

	require.Len(t, sink.entries, 1)
	imu := sink.entries[0].Imu
	require.NotNil(t, imu)
	assert.Equal(t, [3]float64{0, 0, 9.81}, imu.Accel)
	assert.Equal(t, [4]float64{1, 0, 0, 0}, imu.Orientation)
}

func TestPublishWhenStoppedIsNoop(t *testing.T) {
	p := NewPublisher(DefaultConfig())
	p.Publish(&Entry{Path: "x", Kind: KindClear})
	assert.Equal(t, uint64(0), p.StatsSnapshot().EntryCount)
}

func TestPublishDropsOnFullQueue(t *testing.T) {
	defer monitoring.Quiet()()

	p := NewPublisher(DefaultConfig())
	// Mark running without starting the broadcast loop so the shared
	// queue fills up.
	p.running.Store(true)

	total := cap(p.entryChan) + 10
	for i := 0; i < total; i++ {
		p.Publish(&Entry{Path: "x", Kind: KindClear, Seq: uint64(i)})
	}

	stats := p.StatsSnapshot()
	assert.Equal(t, uint64(cap(p.entryChan)), stats.EntryCount)
	assert.Equal(t, uint64(10), stats.DroppedCount)
}

func TestSubscribeStream(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	p := NewPublisher(cfg)
	require.NoError(t, p.Start())
	defer p.Stop()

	conn, err := grpc.NewClient(p.Addr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := Subscribe(ctx, conn, &StreamRequest{ClientName: "test-viewer"})
	require.NoError(t, err)

	// Wait for the server to register the client before publishing.
	deadline := time.Now().Add(3 * time.Second)
	for p.StatsSnapshot().ClientCount == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	want := &Entry{
		Path: "color/camera/rgb/image",
		Kind: KindImage,
		Seq:  1,
		Image: &ImagePayload{
			Width: 1, Height: 1, Format: "rgb8", Data: []byte{1, 2, 3},
		},
	}
	p.Publish(want)

	got, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, want.Path, got.Path)
	assert.Equal(t, want.Kind, got.Kind)
	require.NotNil(t, got.Image)
	assert.Equal(t, want.Image.Data, got.Image.Data)
}

func TestSubscribeStreamPrefixFilter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	p := NewPublisher(cfg)
	require.NoError(t, p.Start())
	defer p.Stop()

	conn, err := grpc.NewClient(p.Addr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := Subscribe(ctx, conn, &StreamRequest{
		ClientName:   "depth-only",
		PathPrefixes: []string{"depth/"},
	})
	require.NoError(t, err)

	deadline := time.Now().Add(3 * time.Second)
	for p.StatsSnapshot().ClientCount == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	p.Publish(&Entry{Path: "color/camera/rgb/image", Kind: KindClear, Seq: 1})
	p.Publish(&Entry{Path: "depth/camera/depth/image", Kind: KindClear, Seq: 2})

	got, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, "depth/camera/depth/image", got.Path)
}
