package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the orchestrator configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Transcoding TranscodingConfig `mapstructure:"transcoding"`
	Jobs        JobsConfig        `mapstructure:"jobs"`
	Notify      NotifyConfig      `mapstructure:"notify"`
	Log         LogConfig         `mapstructure:"log"`
}

// ServerConfig holds the HTTP server settings
type ServerConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
	// BaseURL is the externally reachable URL runners use to download
	// source files referenced in job payloads.
	BaseURL string `mapstructure:"base_url"`
}

// DatabaseConfig holds database settings
type DatabaseConfig struct {
	Type string `mapstructure:"type"`
	DSN  string `mapstructure:"dsn"`
	Path string `mapstructure:"path"`
}

// StorageConfig holds file storage settings
type StorageConfig struct {
	Root string `mapstructure:"root"`
}

// TranscodingConfig holds the resolution ladder and FPS planning settings
type TranscodingConfig struct {
	// Resolutions enables rungs of the transcoding ladder by label,
	// e.g. "480p": true. The audio-only rung is "0p".
	Resolutions map[string]bool `mapstructure:"resolutions"`
	// AlwaysTranscodeOriginalResolution adds the input resolution to the
	// plan even when it is not an enabled ladder rung.
	AlwaysTranscodeOriginalResolution bool `mapstructure:"always_transcode_original_resolution"`

	FPSMin                     int `mapstructure:"fps_min"`
	FPSMax                     int `mapstructure:"fps_max"`
	FPSAverage                 int `mapstructure:"fps_average"`
	FPSKeepOriginMinResolution int `mapstructure:"fps_keep_origin_min_resolution"`
}

// JobsConfig holds job lifecycle settings
type JobsConfig struct {
	// MaxFailures is the failure threshold after which a job is parked in
	// the errored state instead of being retried.
	MaxFailures int `mapstructure:"max_failures"`
	// TranscriptionLanguages is the allow-list for reported transcript
	// languages. Empty means any language is accepted.
	TranscriptionLanguages []string `mapstructure:"transcription_languages"`
}

// NotifyConfig holds runner notification settings
type NotifyConfig struct {
	// Mode is one of "none", "log" or "webhook"
	Mode       string `mapstructure:"mode"`
	WebhookURL string `mapstructure:"webhook_url"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// EnabledResolutions translates the resolution label map into numeric rungs
func (c *TranscodingConfig) EnabledResolutions() map[int]bool {
	enabled := make(map[int]bool, len(c.Resolutions))
	for label, on := range c.Resolutions {
		var value int
		if _, err := fmt.Sscanf(label, "%dp", &value); err != nil {
			continue
		}
		enabled[value] = on
	}
	return enabled
}

// Load reads the configuration from an optional file and the environment
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("ORCHESTRATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.base_url", "http://localhost:8080")

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.path", "orchestrator.db")

	v.SetDefault("storage.root", "./data")

	v.SetDefault("transcoding.resolutions", map[string]bool{
		"0p":    false,
		"144p":  false,
		"240p":  true,
		"360p":  true,
		"480p":  true,
		"720p":  true,
		"1080p": true,
		"1440p": false,
		"2160p": false,
	})
	v.SetDefault("transcoding.always_transcode_original_resolution", true)
	v.SetDefault("transcoding.fps_min", 1)
	v.SetDefault("transcoding.fps_max", 60)
	v.SetDefault("transcoding.fps_average", 30)
	v.SetDefault("transcoding.fps_keep_origin_min_resolution", 720)

	v.SetDefault("jobs.max_failures", 5)
	v.SetDefault("jobs.transcription_languages", []string{})

	v.SetDefault("notify.mode", "log")

	v.SetDefault("log.level", "INFO")
	v.SetDefault("log.json", false)
}
