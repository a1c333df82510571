package pipeline

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.ColorCamera == nil || cfg.ColorCamera.Resolution != Color1080P || cfg.ColorCamera.FPS != 30 {
		t.Errorf("unexpected default color camera: %+v", cfg.ColorCamera)
	}
	if !cfg.ColorCamera.XOutVideo {
		t.Error("default color camera should stream video out")
	}
	if cfg.LeftCamera.BoardSocket != SocketLeft || cfg.RightCamera.BoardSocket != SocketRight {
		t.Error("mono cameras should default to their sockets")
	}
	if cfg.Depth == nil || cfg.Depth.Median != Kernel7x7 || cfg.Depth.Confidence != 230 {
		t.Errorf("unexpected default depth: %+v", cfg.Depth)
	}
	if cfg.Imu == nil || cfg.Imu.ReportRate != 100 || cfg.Imu.BatchReportThreshold != 5 {
		t.Errorf("unexpected default imu: %+v", cfg.Imu)
	}
	if cfg.AiModel != nil {
		t.Error("no AI model should be selected by default")
	}
}

func TestConfigJSONRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.AiModel = &AiModelConfig{Path: "mobilenet-ssd", DisplayName: "MobileNet SSD"}

	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	// Enum fields travel as their wire names.
	for _, want := range []string{`"THE_1080_P"`, `"THE_400_P"`, `"KERNEL_7x7"`, `"RGB"`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("marshalled config missing %s: %s", want, data)
		}
	}

	var back Config
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if diff := cmp.Diff(cfg, &back); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestConfigUnmarshalRejectsUnknownEnums(t *testing.T) {
	tests := []struct {
		name string
		blob string
	}{
		{"bad resolution", `{"color_camera":{"fps":30,"resolution":"THE_9000_P","board_socket":"RGB"}}`},
		{"bad socket", `{"color_camera":{"fps":30,"resolution":"THE_1080_P","board_socket":"USB"}}`},
		{"bad median", `{"depth":{"median":"KERNEL_9x9","align":"RGB"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg Config
			if err := json.Unmarshal([]byte(tt.blob), &cfg); err == nil {
				t.Errorf("expected unmarshal error for %s", tt.blob)
			}
		})
	}
}

func TestDepthRequiresRebuild(t *testing.T) {
	base := func() *DepthConfig { return DefaultDepth() }

	tests := []struct {
		name   string
		mutate func(*DepthConfig)
		want   bool
	}{
		{"identical", func(*DepthConfig) {}, false},
		{"lrc threshold is runtime tunable", func(d *DepthConfig) { d.LRCThreshold = 9 }, false},
		{"sigma is runtime tunable", func(d *DepthConfig) { d.Sigma = 100 }, false},
		{"confidence is runtime tunable", func(d *DepthConfig) { d.Confidence = 180 }, false},
		{"median is runtime tunable", func(d *DepthConfig) { d.Median = Kernel3x3 }, false},
		{"lr check change rebuilds", func(d *DepthConfig) { d.LRCheck = false }, true},
		{"align change rebuilds", func(d *DepthConfig) { d.Align = SocketLeft }, true},
		{"subpixel change rebuilds", func(d *DepthConfig) { d.SubpixelDisparity = false }, true},
		{"extended disparity rebuilds", func(d *DepthConfig) { d.ExtendedDisparity = true }, true},
		{"pointcloud toggle rebuilds", func(d *DepthConfig) { d.PointCloud = true }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			other := base()
			tt.mutate(other)
			if got := base().RequiresRebuild(other); got != tt.want {
				t.Errorf("RequiresRebuild = %v, want %v", got, tt.want)
			}
		})
	}

	t.Run("nil transitions", func(t *testing.T) {
		var nilCfg *DepthConfig
		if !base().RequiresRebuild(nilCfg) {
			t.Error("disabling depth should rebuild")
		}
		if !nilCfg.RequiresRebuild(base()) {
			t.Error("enabling depth should rebuild")
		}
		if nilCfg.RequiresRebuild(nil) {
			t.Error("nil to nil should not rebuild")
		}
	})
}

func TestConfigTunableFrom(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   bool
	}{
		{"identical", func(*Config) {}, true},
		{"depth confidence only", func(c *Config) { c.Depth.Confidence = 180 }, true},
		{"depth median only", func(c *Config) { c.Depth.Median = Kernel3x3 }, true},
		{"depth align", func(c *Config) { c.Depth.Align = SocketLeft }, false},
		{"color fps", func(c *Config) { c.ColorCamera.FPS = 15 }, false},
		{"mono xout", func(c *Config) { c.LeftCamera.XOut = true }, false},
		{"ai model added", func(c *Config) { c.AiModel = &AiModelConfig{Path: "mobilenet-ssd"} }, false},
		{"imu removed", func(c *Config) { c.Imu = nil }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := Default()
			tt.mutate(next)
			if got := next.TunableFrom(Default()); got != tt.want {
				t.Errorf("TunableFrom = %v, want %v", got, tt.want)
			}
		})
	}

	if Default().TunableFrom(nil) {
		t.Error("no previous config should never be tunable")
	}
}

func TestResolutionTables(t *testing.T) {
	r, ok := ColorResolutionFor(Dims{1920, 1080})
	if !ok || r != Color1080P {
		t.Errorf("ColorResolutionFor(1920x1080) = %v, %v", r, ok)
	}
	m, ok := MonoResolutionFor(Dims{640, 400})
	if !ok || m != Mono400P {
		t.Errorf("MonoResolutionFor(640x400) = %v, %v", m, ok)
	}
	if _, ok := ColorResolutionFor(Dims{123, 456}); ok {
		t.Error("unknown dims should not resolve")
	}

	// Every named resolution maps back to itself through its dims.
	for res, d := range map[ColorResolution]Dims{Color720P: {1280, 720}, Color4K: {3840, 2160}} {
		got, ok := res.Dims()
		if !ok || got != d {
			t.Errorf("%v.Dims() = %v, %v, want %v", res, got, ok, d)
		}
	}
}

func TestSortDimsByArea(t *testing.T) {
	dims := []Dims{{3840, 2160}, {1280, 720}, {1920, 1080}}
	SortDimsByArea(dims)
	want := []Dims{{1280, 720}, {1920, 1080}, {3840, 2160}}
	if diff := cmp.Diff(want, dims); diff != "" {
		t.Errorf("sort mismatch (-want +got):\n%s", diff)
	}
}

func TestCloneIsDeep(t *testing.T) {
	cfg := Default()
	clone := cfg.Clone()
	clone.ColorCamera.FPS = 15
	clone.Depth.Confidence = 10
	if cfg.ColorCamera.FPS != 30 || cfg.Depth.Confidence != 230 {
		t.Error("mutating clone affected original")
	}
	if (*Config)(nil).Clone() != nil {
		t.Error("nil clone should be nil")
	}
}
