// Package pipeline defines the device pipeline configuration exchanged with
// the frontend over the control socket. Enumerated fields marshal as their
// wire names so the JSON matches what the viewer sends and displays.
package pipeline

// ColorCameraConfig configures the color sensor node.
type ColorCameraConfig struct {
	FPS         int             `json:"fps"`
	Resolution  ColorResolution `json:"resolution"`
	BoardSocket BoardSocket     `json:"board_socket"`
	OutPreview  bool            `json:"out_preview"`
	XOutStill   bool            `json:"xout_still"`
	XOutVideo   bool            `json:"xout_video"`
}

// MonoCameraConfig configures one of the mono (stereo pair) sensor nodes.
type MonoCameraConfig struct {
	FPS         int            `json:"fps"`
	Resolution  MonoResolution `json:"resolution"`
	BoardSocket BoardSocket    `json:"board_socket"`
	XOut        bool           `json:"xout"`
}

// DepthConfig configures the stereo depth node.
type DepthConfig struct {
	Median            MedianFilter `json:"median"`
	LRCheck           bool         `json:"lr_check"`
	LRCThreshold      int          `json:"lrc_threshold"` // 0..10
	ExtendedDisparity bool         `json:"extended_disparity"`
	SubpixelDisparity bool         `json:"subpixel_disparity"`
	Align             BoardSocket  `json:"align"`
	Sigma             int          `json:"sigma"` // 0..65535
	Confidence        int          `json:"confidence"`
	PointCloud        bool         `json:"pointcloud"`
}

// RequiresRebuild reports whether switching from c to other needs the device
// pipeline to be torn down and rebuilt. The threshold, sigma, confidence and
// median settings are runtime-tunable; everything else is baked into the
// pipeline graph.
func (c *DepthConfig) RequiresRebuild(other *DepthConfig) bool {
	if (c == nil) != (other == nil) {
		return true
	}
	if c == nil {
		return false
	}
	return c.LRCheck != other.LRCheck ||
		c.ExtendedDisparity != other.ExtendedDisparity ||
		c.SubpixelDisparity != other.SubpixelDisparity ||
		c.Align != other.Align ||
		c.PointCloud != other.PointCloud
}

// TunableFrom reports whether switching from prev to c can be done on a
// running pipeline: every section except the depth tunables must be
// identical, and the depth change itself must not require a rebuild.
func (c *Config) TunableFrom(prev *Config) bool {
	if c == nil || prev == nil {
		return false
	}
	if !sectionEqual(c.ColorCamera, prev.ColorCamera) ||
		!sectionEqual(c.LeftCamera, prev.LeftCamera) ||
		!sectionEqual(c.RightCamera, prev.RightCamera) ||
		!sectionEqual(c.AiModel, prev.AiModel) ||
		!sectionEqual(c.Imu, prev.Imu) {
		return false
	}
	return !c.Depth.RequiresRebuild(prev.Depth)
}

func sectionEqual[T comparable](a, b *T) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}

// AiModelConfig selects an on-device neural network.
type AiModelConfig struct {
	Path        string `json:"path"`
	DisplayName string `json:"display_name"`
}

// ImuConfig configures IMU reporting.
type ImuConfig struct {
	ReportRate           int `json:"report_rate"`
	BatchReportThreshold int `json:"batch_report_threshold"`
}

// Config is the full pipeline configuration. Nil sections disable the
// corresponding node.
type Config struct {
	ColorCamera *ColorCameraConfig `json:"color_camera,omitempty"`
	LeftCamera  *MonoCameraConfig  `json:"left_camera,omitempty"`
	RightCamera *MonoCameraConfig  `json:"right_camera,omitempty"`
	Depth       *DepthConfig       `json:"depth,omitempty"`
	AiModel     *AiModelConfig     `json:"ai_model,omitempty"`
	Imu         *ImuConfig         `json:"imu,omitempty"`
}

// DefaultColorCamera returns the default color sensor configuration.
func DefaultColorCamera() *ColorCameraConfig {
	return &ColorCameraConfig{
		FPS:         30,
		Resolution:  Color1080P,
		BoardSocket: SocketRGB,
		XOutVideo:   true,
	}
}

// DefaultLeftCamera returns the default left mono configuration.
func DefaultLeftCamera() *MonoCameraConfig {
	return &MonoCameraConfig{FPS: 30, Resolution: Mono400P, BoardSocket: SocketLeft}
}

// DefaultRightCamera returns the default right mono configuration.
func DefaultRightCamera() *MonoCameraConfig {
	return &MonoCameraConfig{FPS: 30, Resolution: Mono400P, BoardSocket: SocketRight}
}

// DefaultDepth returns the default stereo depth configuration.
func DefaultDepth() *DepthConfig {
	return &DepthConfig{
		Median:            Kernel7x7,
		LRCheck:           true,
		LRCThreshold:      5,
		SubpixelDisparity: true,
		Align:             SocketRGB,
		Confidence:        230,
	}
}

// Default returns the configuration applied before the frontend sends one.
func Default() *Config {
	return &Config{
		ColorCamera: DefaultColorCamera(),
		LeftCamera:  DefaultLeftCamera(),
		RightCamera: DefaultRightCamera(),
		Depth:       DefaultDepth(),
		Imu:         &ImuConfig{ReportRate: 100, BatchReportThreshold: 5},
	}
}

// Clone returns a deep copy of the configuration. The store keeps a clone of
// the previous config so a failed update can be rolled back.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := &Config{}
	if c.ColorCamera != nil {
		cc := *c.ColorCamera
		out.ColorCamera = &cc
	}
	if c.LeftCamera != nil {
		lc := *c.LeftCamera
		out.LeftCamera = &lc
	}
	if c.RightCamera != nil {
		rc := *c.RightCamera
		out.RightCamera = &rc
	}
	if c.Depth != nil {
		dc := *c.Depth
		out.Depth = &dc
	}
	if c.AiModel != nil {
		ac := *c.AiModel
		out.AiModel = &ac
	}
	if c.Imu != nil {
		ic := *c.Imu
		out.Imu = &ic
	}
	return out
}

// KnownAiModels lists the networks the backend knows how to relay output
// for, in the order the frontend presents them.
func KnownAiModels() []AiModelConfig {
	return []AiModelConfig{
		{Path: "", DisplayName: "No model selected"},
		{Path: "yolo-v3-tiny-tf", DisplayName: "Yolo (tiny)"},
		{Path: "mobilenet-ssd", DisplayName: "MobileNet SSD"},
		{Path: "face-detection-retail-0004", DisplayName: "Face Detection"},
		{Path: "age-gender-recognition-retail-0013", DisplayName: "Age gender recognition"},
	}
}
