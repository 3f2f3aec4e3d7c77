// Package config provides the configuration schema and loader for the
// SparkBox station.
package config

// LogLevel controls log verbosity for the station.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// ButtonMode selects how a physical button line is interpreted.
type ButtonMode string

const (
	// ButtonSingle fires once per falling edge (after debounce).
	ButtonSingle ButtonMode = "single"

	// ButtonContinuous reports the instantaneous press level, used for
	// push-to-talk semantics.
	ButtonContinuous ButtonMode = "continuous"
)

// IsValid reports whether m is a recognised button mode.
func (m ButtonMode) IsValid() bool {
	return m == ButtonSingle || m == ButtonContinuous
}

// Config is the root configuration structure for SparkBox.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server            ServerConfig   `yaml:"server"`
	Vision            StageConfig    `yaml:"vision"`
	SolutionGenerator StageConfig    `yaml:"solution_generator"`
	ImageGenerator    ImageGenConfig `yaml:"image_generator"`
	Voice             VoiceConfig    `yaml:"voice"`
	Camera            CameraConfig   `yaml:"camera"`
	IO                IOConfig       `yaml:"io"`
	Logs              LogsConfig     `yaml:"logs"`
}

// ServerConfig holds network and logging settings for the web surface.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server listens on (e.g., ":8000").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// StageConfig configures one remote LLM stage (vision or solution).
// All stages speak the OpenAI-compatible chat completion API.
type StageConfig struct {
	// APIKey authenticates against the stage endpoint.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// ModelName selects the model (e.g., "qwen-vl-max", "qwen-plus").
	ModelName string `yaml:"model_name"`

	// Prompt is the stage's instruction prompt.
	Prompt string `yaml:"prompt"`

	// TargetMinSize is the minimum length of the shorter image side before
	// the image is sent upstream. Only meaningful for the vision stage.
	TargetMinSize int `yaml:"target_min_size"`
}

// ImageGenConfig configures the preview image generation stage.
type ImageGenConfig struct {
	// ModelName selects the text-to-image model (e.g., "flux").
	ModelName string `yaml:"model_name"`

	// Width and Height of the generated preview in pixels.
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// VoiceConfig configures the push-to-talk recorder and the remote
// speech-to-text endpoint.
type VoiceConfig struct {
	// APIKey authenticates against the transcription endpoint.
	APIKey string `yaml:"api_key"`

	// BaseURL is the transcription server address.
	BaseURL string `yaml:"base_url"`

	// ModelName is an optional model hint forwarded to the server.
	ModelName string `yaml:"model_name"`

	// RecorderFile is the path the recorder writes its WAV capture to.
	RecorderFile string `yaml:"recorder_file"`
}

// CameraConfig configures the frame source.
type CameraConfig struct {
	// DeviceID is the video device index (/dev/video<N> on Linux).
	DeviceID int `yaml:"device_id"`

	// Width and Height of the requested capture resolution.
	Width  int `yaml:"width"`
	Height int `yaml:"height"`

	// FPS is the requested capture rate. Defaults to 30.
	FPS int `yaml:"fps"`

	// Intrinsics is the path to the calibration YAML holding the camera
	// matrix and distortion coefficients. Empty disables undistortion.
	Intrinsics string `yaml:"intrinsics"`
}

// ButtonConfig describes a single physical input line.
type ButtonConfig struct {
	// Pin is the GPIO line name (e.g., "GPIO17").
	Pin string `yaml:"pin"`

	// Mode selects edge or level semantics.
	Mode ButtonMode `yaml:"mode"`

	// DebounceMs is the software debounce window in milliseconds.
	DebounceMs int `yaml:"debounce_ms"`
}

// IOConfig names the button lines the station listens on. A button with an
// empty pin is disabled; the HTTP equivalents keep working without it.
type IOConfig struct {
	Capture ButtonConfig `yaml:"capture"`
	Video   ButtonConfig `yaml:"video"`
	PgUp    ButtonConfig `yaml:"pgup"`
	PgDn    ButtonConfig `yaml:"pgdn"`
}

// LogsConfig holds the on-disk artifact layout.
type LogsConfig struct {
	// Dir is the root of all persisted artifacts. Defaults to "logs".
	// Capture snapshots go to <dir>/capture, transient pipeline inputs to
	// <dir>/temp, and session logs to <dir>/ai_logs.
	Dir string `yaml:"dir"`
}
