// Package config provides configuration management for roomrec using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/jmylchreest/roomrec/internal/urlutil"
)

// Default configuration values.
const (
	defaultServerPort      = 9002
	defaultServerTimeout   = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second

	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 10
	defaultConnMaxIdleTime = 30 * time.Minute

	defaultSignallingHTTPURL   = "http://localhost:8088/janus"
	defaultSignallingWSURL     = "ws://localhost:8188"
	defaultSignallingPlugin    = "janus.plugin.videoroom"
	defaultKeepaliveInterval   = 30 * time.Second
	defaultConnectAttempts     = 10
	defaultConnectBackoff      = 3 * time.Second
	defaultRequestTimeout      = 10 * time.Second
	defaultForwardPortMin      = 20001
	defaultForwardPortMax      = 50000
	defaultPublisherCam1       = 1
	defaultPublisherCam2       = 2
	defaultPublisherScreen     = 9
	defaultPublisherRecorder   = 911
	defaultEncoderStopGrace    = 2 * time.Second
	defaultOutputWait          = 20 * time.Second
	defaultAudioPayloadType    = 96
	defaultVideoPayloadType    = 102
	defaultUploadTimeout       = 60 * time.Second
	defaultUploadRetryAttempts = 1
)

// Config holds all configuration for the application.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Signalling SignallingConfig `mapstructure:"signalling"`
	Recording  RecordingConfig  `mapstructure:"recording"`
	FFmpeg     FFmpegConfig     `mapstructure:"ffmpeg"`
	Upload     UploadConfig     `mapstructure:"upload"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Retention  RetentionConfig  `mapstructure:"retention"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// SignallingConfig holds upstream media-server signalling configuration.
type SignallingConfig struct {
	// Transport selects the signalling variant: "http" (request/response)
	// or "websocket" (persistent event stream).
	Transport string `mapstructure:"transport"`

	// HTTPURL is the Janus REST gateway base URL (http transport).
	HTTPURL string `mapstructure:"http_url"`

	// WebSocketURL is the Janus WebSocket gateway URL (websocket transport).
	WebSocketURL string `mapstructure:"websocket_url"`

	// Plugin is the videoroom plugin identifier attached after session create.
	Plugin string `mapstructure:"plugin"`

	// AdminSecret authorizes videoroom admin requests such as rtp_forward.
	AdminSecret string `mapstructure:"admin_secret" masq:"secret"`

	// RoomPin joins pin-protected rooms; empty when rooms are open.
	RoomPin string `mapstructure:"room_pin" masq:"secret"`

	// Display is the participant display name used when joining.
	Display string `mapstructure:"display"`

	// ForwardHost is the address RTP forwards are sent to. It must be this
	// recorder's address as reachable from the media server.
	ForwardHost string `mapstructure:"forward_host"`

	KeepaliveInterval time.Duration `mapstructure:"keepalive_interval"`

	// ConnectAttempts bounds the configure-time handshake retry loop.
	// Zero retries forever.
	ConnectAttempts int           `mapstructure:"connect_attempts"`
	ConnectBackoff  time.Duration `mapstructure:"connect_backoff"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`

	// PortRangeMin/Max bound the local UDP port pool used for RTP forwards.
	PortRangeMin int `mapstructure:"port_range_min"`
	PortRangeMax int `mapstructure:"port_range_max"`

	Publishers PublisherConfig `mapstructure:"publishers"`
}

// PublisherConfig maps well-known publisher roles to videoroom feed IDs.
type PublisherConfig struct {
	Cam1     uint64 `mapstructure:"cam1"`
	Cam2     uint64 `mapstructure:"cam2"`
	Screen   uint64 `mapstructure:"screen"`
	Recorder uint64 `mapstructure:"recorder"`
}

// RecordingConfig holds encoder child process and segment configuration.
type RecordingConfig struct {
	// StopGrace is how long to wait for an encoder to exit after an
	// interrupt before escalating to a kill.
	StopGrace time.Duration `mapstructure:"stop_grace"`

	// OutputWait is how long the post-processor waits for an expected
	// output file to materialize before declaring failure.
	OutputWait time.Duration `mapstructure:"output_wait"`

	// AudioPayloadType / VideoPayloadType are the RTP payload types written
	// into generated SDP files (opus and H264 respectively).
	AudioPayloadType int `mapstructure:"audio_payload_type"`
	VideoPayloadType int `mapstructure:"video_payload_type"`
}

// FFmpegConfig holds FFmpeg binary configuration.
type FFmpegConfig struct {
	BinaryPath      string   `mapstructure:"binary_path"`      // Path to ffmpeg binary (empty = auto-detect)
	ProbePath       string   `mapstructure:"probe_path"`       // Path to ffprobe binary (empty = auto-detect)
	HWAccelPriority []string `mapstructure:"hwaccel_priority"` // Priority order: nvenc, videotoolbox, qsv
}

// UploadConfig holds classroom upload client configuration.
type UploadConfig struct {
	Timeout       time.Duration `mapstructure:"timeout"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
}

// DatabaseConfig holds recording-catalog database configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// StorageConfig holds recordings filesystem configuration.
type StorageConfig struct {
	// Root is the recordings root directory. Empty selects the platform
	// default: ~/recordings on POSIX, %USERPROFILE%\recordings on Windows.
	Root string `mapstructure:"root"`

	// MinFree refuses new recordings when free space drops below this.
	// Supports human-readable values like "500MB", "2GB".
	MinFree ByteSize `mapstructure:"min_free"`
}

// RetentionConfig holds aged-artifact sweep configuration.
type RetentionConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Cron is a 6-field cron expression for the sweep schedule.
	Cron string `mapstructure:"cron"`

	// MaxAge is the artifact age beyond which outputs are reaped.
	// Supports human-readable values like "30 days", "2w".
	MaxAge Duration `mapstructure:"max_age"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`

	// Requests enables access logging for successful requests; 4xx/5xx
	// responses are logged regardless.
	Requests bool `mapstructure:"requests"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with ROOMREC_ and use underscores for
// nesting. Example: ROOMREC_SERVER_PORT=9002.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	SetDefaults(v)

	// Config file settings
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/roomrec")
		v.AddConfigPath("$HOME/.roomrec")
	}

	// Environment variable settings
	v.SetEnvPrefix("ROOMREC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars
	}

	// The TextUnmarshaller hook lets ByteSize and Duration fields accept
	// their human-readable forms ("500MB", "30 days").
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
	))); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults
// are in place.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})

	// Signalling defaults
	v.SetDefault("signalling.transport", "websocket")
	v.SetDefault("signalling.http_url", defaultSignallingHTTPURL)
	v.SetDefault("signalling.websocket_url", defaultSignallingWSURL)
	v.SetDefault("signalling.plugin", defaultSignallingPlugin)
	v.SetDefault("signalling.admin_secret", "adminpwd")
	v.SetDefault("signalling.room_pin", "")
	v.SetDefault("signalling.display", "recorder")
	v.SetDefault("signalling.forward_host", "127.0.0.1")
	v.SetDefault("signalling.keepalive_interval", defaultKeepaliveInterval)
	v.SetDefault("signalling.connect_attempts", defaultConnectAttempts)
	v.SetDefault("signalling.connect_backoff", defaultConnectBackoff)
	v.SetDefault("signalling.request_timeout", defaultRequestTimeout)
	v.SetDefault("signalling.port_range_min", defaultForwardPortMin)
	v.SetDefault("signalling.port_range_max", defaultForwardPortMax)
	v.SetDefault("signalling.publishers.cam1", defaultPublisherCam1)
	v.SetDefault("signalling.publishers.cam2", defaultPublisherCam2)
	v.SetDefault("signalling.publishers.screen", defaultPublisherScreen)
	v.SetDefault("signalling.publishers.recorder", defaultPublisherRecorder)

	// Recording defaults
	v.SetDefault("recording.stop_grace", defaultEncoderStopGrace)
	v.SetDefault("recording.output_wait", defaultOutputWait)
	v.SetDefault("recording.audio_payload_type", defaultAudioPayloadType)
	v.SetDefault("recording.video_payload_type", defaultVideoPayloadType)

	// FFmpeg defaults
	v.SetDefault("ffmpeg.binary_path", "")
	v.SetDefault("ffmpeg.probe_path", "")
	v.SetDefault("ffmpeg.hwaccel_priority", []string{"nvenc", "videotoolbox", "qsv"})

	// Upload defaults
	v.SetDefault("upload.timeout", defaultUploadTimeout)
	v.SetDefault("upload.retry_attempts", defaultUploadRetryAttempts)

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "roomrec.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	// Storage defaults
	v.SetDefault("storage.root", "")
	v.SetDefault("storage.min_free", "500MB")

	// Retention defaults
	v.SetDefault("retention.enabled", false)
	v.SetDefault("retention.cron", "0 0 3 * * *") // Daily at 3 AM (6-field cron)
	v.SetDefault("retention.max_age", "30 days")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)
	v.SetDefault("logging.requests", true)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Server validation
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	// Signalling validation
	switch c.Signalling.Transport {
	case "http":
		if err := urlutil.ValidateURL(c.Signalling.HTTPURL); err != nil {
			return fmt.Errorf("signalling.http_url: %w", err)
		}
	case "websocket":
		if !urlutil.IsWebSocketURL(c.Signalling.WebSocketURL) {
			return fmt.Errorf("signalling.websocket_url must use the ws:// or wss:// scheme")
		}
	default:
		return fmt.Errorf("signalling.transport must be one of: http, websocket")
	}
	if c.Signalling.PortRangeMin < 1024 || c.Signalling.PortRangeMax > maxPort ||
		c.Signalling.PortRangeMin >= c.Signalling.PortRangeMax {
		return fmt.Errorf("signalling.port_range must satisfy 1024 <= min < max <= %d", maxPort)
	}
	if c.Signalling.ConnectBackoff <= 0 {
		return fmt.Errorf("signalling.connect_backoff must be positive")
	}
	if c.Signalling.ForwardHost == "" {
		return fmt.Errorf("signalling.forward_host is required")
	}

	// Recording validation
	if c.Recording.StopGrace <= 0 {
		return fmt.Errorf("recording.stop_grace must be positive")
	}
	if c.Recording.OutputWait <= 0 {
		return fmt.Errorf("recording.output_wait must be positive")
	}

	// Database validation
	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RootDir resolves the recordings root directory, falling back to the
// platform default under the user's home directory.
func (c *StorageConfig) RootDir() (string, error) {
	if c.Root != "" {
		return c.Root, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, "recordings"), nil
}

// BaseURL returns the signalling endpoint for the configured transport.
func (c *SignallingConfig) BaseURL() string {
	if c.Transport == "http" {
		return c.HTTPURL
	}
	return c.WebSocketURL
}
