package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and validates
// the result. Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills in values that are optional in the YAML document.
func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8000"
	}
	if cfg.Camera.Width == 0 {
		cfg.Camera.Width = 1280
	}
	if cfg.Camera.Height == 0 {
		cfg.Camera.Height = 720
	}
	if cfg.Camera.FPS == 0 {
		cfg.Camera.FPS = 30
	}
	if cfg.Vision.TargetMinSize == 0 {
		cfg.Vision.TargetMinSize = 720
	}
	if cfg.ImageGenerator.Width == 0 {
		cfg.ImageGenerator.Width = 1024
	}
	if cfg.ImageGenerator.Height == 0 {
		cfg.ImageGenerator.Height = 1024
	}
	if cfg.Voice.RecorderFile == "" {
		cfg.Voice.RecorderFile = "recording.wav"
	}
	if cfg.Logs.Dir == "" {
		cfg.Logs.Dir = "logs"
	}
	for _, b := range []*ButtonConfig{&cfg.IO.Capture, &cfg.IO.Video, &cfg.IO.PgUp, &cfg.IO.PgDn} {
		if b.Pin == "" {
			continue
		}
		if b.Mode == "" {
			b.Mode = ButtonSingle
		}
		if b.DebounceMs == 0 {
			b.DebounceMs = 50
		}
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// LLM stages
	if cfg.Vision.APIKey == "" {
		errs = append(errs, errors.New("vision.api_key is required"))
	}
	if cfg.Vision.ModelName == "" {
		errs = append(errs, errors.New("vision.model_name is required"))
	}
	if cfg.SolutionGenerator.APIKey == "" {
		errs = append(errs, errors.New("solution_generator.api_key is required"))
	}
	if cfg.SolutionGenerator.ModelName == "" {
		errs = append(errs, errors.New("solution_generator.model_name is required"))
	}
	if cfg.Vision.Prompt == "" {
		slog.Warn("vision.prompt is empty; the vision stage will run without task instructions")
	}
	if cfg.SolutionGenerator.Prompt == "" {
		slog.Warn("solution_generator.prompt is empty; the solution stage will run without task instructions")
	}
	if cfg.Vision.TargetMinSize < 0 {
		errs = append(errs, fmt.Errorf("vision.target_min_size %d must not be negative", cfg.Vision.TargetMinSize))
	}

	// Preview
	if cfg.ImageGenerator.Width <= 0 || cfg.ImageGenerator.Height <= 0 {
		errs = append(errs, fmt.Errorf("image_generator dimensions %dx%d must be positive", cfg.ImageGenerator.Width, cfg.ImageGenerator.Height))
	}

	// Voice
	if cfg.Voice.BaseURL == "" {
		slog.Warn("voice.base_url is empty; push-to-talk transcription is disabled")
	}

	// Camera
	if cfg.Camera.DeviceID < 0 {
		errs = append(errs, fmt.Errorf("camera.device_id %d must not be negative", cfg.Camera.DeviceID))
	}
	if cfg.Camera.Width <= 0 || cfg.Camera.Height <= 0 {
		errs = append(errs, fmt.Errorf("camera resolution %dx%d must be positive", cfg.Camera.Width, cfg.Camera.Height))
	}
	if cfg.Camera.FPS <= 0 {
		errs = append(errs, fmt.Errorf("camera.fps %d must be positive", cfg.Camera.FPS))
	}
	if cfg.Camera.Intrinsics == "" {
		slog.Warn("camera.intrinsics is empty; frames will not be undistorted")
	}

	// Buttons
	validateButton("io.capture", cfg.IO.Capture, &errs)
	validateButton("io.video", cfg.IO.Video, &errs)
	validateButton("io.pgup", cfg.IO.PgUp, &errs)
	validateButton("io.pgdn", cfg.IO.PgDn, &errs)

	return errors.Join(errs...)
}

// validateButton checks a single button entry. Disabled buttons (empty pin)
// are always valid.
func validateButton(name string, b ButtonConfig, errs *[]error) {
	if b.Pin == "" {
		if b.Mode != "" || b.DebounceMs != 0 {
			slog.Warn("button has settings but no pin; it stays disabled", "button", name)
		}
		return
	}
	if b.Mode != "" && !b.Mode.IsValid() {
		*errs = append(*errs, fmt.Errorf("%s.mode %q is invalid; valid values: single, continuous", name, b.Mode))
	}
	if b.DebounceMs < 0 {
		*errs = append(*errs, fmt.Errorf("%s.debounce_ms %d must not be negative", name, b.DebounceMs))
	}
}
