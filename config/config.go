// Package config loads the scanner configuration from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	barcodescan "github.com/ericlevine/barcodescan"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "BARCODESCAN_"

// Device kinds.
const (
	DeviceReplay = "replay"
	DeviceWebcam = "webcam"
	DeviceNone   = "none"
)

// Config is the full command configuration. Each section reads from its own
// YAML key and environment prefix.
type Config struct {
	Log       LogConfig       `yaml:"log" envPrefix:"LOG_"`
	Scan      ScanConfig      `yaml:"scan" envPrefix:"SCAN_"`
	Device    DeviceConfig    `yaml:"device" envPrefix:"DEVICE_"`
	Preview   PreviewConfig   `yaml:"preview" envPrefix:"PREVIEW_"`
	Server    ServerConfig    `yaml:"server" envPrefix:"SERVER_"`
	NATS      NATSConfig      `yaml:"nats" envPrefix:"NATS_"`
	Telemetry TelemetryConfig `yaml:"telemetry" envPrefix:"OTEL_"`
}

// LogConfig selects the slog level and handler format.
type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// ScanConfig holds the per-attempt scan configuration.
type ScanConfig struct {
	ShowHelper  bool   `yaml:"show_helper" env:"SHOW_HELPER"`
	HelperColor string `yaml:"helper_color" env:"HELPER_COLOR"`
	CancelLabel string `yaml:"cancel_label" env:"CANCEL_LABEL"`
	CloseIcon   string `yaml:"close_icon" env:"CLOSE_ICON"`
	UseQR       bool   `yaml:"use_qr" env:"USE_QR"`
	Locale      string `yaml:"locale" env:"LOCALE"`
	TryHarder   bool   `yaml:"try_harder" env:"TRY_HARDER"`
}

// DeviceConfig picks the camera backend. Paths apply to the replay camera,
// Index to the webcam.
type DeviceConfig struct {
	Kind          string        `yaml:"kind" env:"KIND"`
	Paths         []string      `yaml:"paths" env:"PATHS" envSeparator:","`
	Index         int           `yaml:"index" env:"INDEX"`
	FrameInterval time.Duration `yaml:"frame_interval" env:"FRAME_INTERVAL"`
	Loop          bool          `yaml:"loop" env:"LOOP"`
}

// PreviewConfig describes the host preview in points.
type PreviewConfig struct {
	Width    float64 `yaml:"width" env:"WIDTH"`
	Height   float64 `yaml:"height" env:"HEIGHT"`
	Gravity  string  `yaml:"gravity" env:"GRAVITY"`
	Rotation int     `yaml:"rotation" env:"ROTATION"`
}

// ServerConfig is the HTTP listen address.
type ServerConfig struct {
	Host string `yaml:"host" env:"HOST"`
	Port int    `yaml:"port" env:"PORT"`
}

// Addr returns host:port for net.Listen.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + strconv.Itoa(s.Port)
}

// NATSConfig enables result publishing when URL is set.
type NATSConfig struct {
	URL     string        `yaml:"url" env:"URL"`
	Subject string        `yaml:"subject" env:"SUBJECT"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// TelemetryConfig enables OTLP trace export when Endpoint is set.
type TelemetryConfig struct {
	Endpoint    string `yaml:"endpoint" env:"ENDPOINT"`
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Scan: ScanConfig{
			ShowHelper:  true,
			HelperColor: "#ffffff",
			Locale:      "en",
		},
		Device: DeviceConfig{
			Kind:          DeviceReplay,
			FrameInterval: 33 * time.Millisecond,
		},
		Preview: PreviewConfig{Width: 390, Height: 844, Gravity: "aspect"},
		Server:  ServerConfig{Host: "127.0.0.1", Port: 8080},
		NATS: NATSConfig{
			Subject: "barcodescan.results",
			Timeout: 5 * time.Second,
		},
		Telemetry: TelemetryConfig{ServiceName: "barcodescan"},
	}
}

// Load reads the YAML file at path over the defaults, then applies
// BARCODESCAN_* environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	switch c.Device.Kind {
	case DeviceReplay, DeviceWebcam, DeviceNone:
	default:
		errs = append(errs, fmt.Errorf("device.kind: unknown kind %q", c.Device.Kind))
	}
	if c.Device.FrameInterval < 0 {
		errs = append(errs, errors.New("device.frame_interval: must not be negative"))
	}
	if _, err := ParseColor(c.Scan.HelperColor); err != nil {
		errs = append(errs, fmt.Errorf("scan.helper_color: %w", err))
	}
	if _, err := language.Parse(c.Scan.Locale); err != nil {
		errs = append(errs, fmt.Errorf("scan.locale: %w", err))
	}
	if c.Preview.Width <= 0 || c.Preview.Height <= 0 {
		errs = append(errs, errors.New("preview: width and height must be positive"))
	}
	if c.Preview.Rotation%90 != 0 {
		errs = append(errs, fmt.Errorf("preview.rotation: %d is not a multiple of 90", c.Preview.Rotation))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port: %d out of range", c.Server.Port))
	}
	return errors.Join(errs...)
}

// ScanConfiguration converts the scan section into a scan configuration.
func (c *Config) ScanConfiguration() (barcodescan.Configuration, error) {
	helper, err := ParseColor(c.Scan.HelperColor)
	if err != nil {
		return barcodescan.Configuration{}, err
	}
	return barcodescan.Configuration{
		ShowHelperOverlay: c.Scan.ShowHelper,
		HelperColor:       helper,
		CancelLabel:       c.Scan.CancelLabel,
		CloseIcon:         c.Scan.CloseIcon,
		UseExtendedFormat: c.Scan.UseQR,
	}, nil
}

// Locale returns the configured locale, or English when it does not parse.
func (c *Config) Locale() language.Tag {
	tag, err := language.Parse(c.Scan.Locale)
	if err != nil {
		return language.English
	}
	return tag
}

// ParseColor parses "#rgb", "#rrggbb" or "#rrggbbaa".
func ParseColor(s string) (color.RGBA, error) {
	hex := strings.TrimPrefix(s, "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	if len(hex) != 8 {
		return color.RGBA{}, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color %q", s)
	}
	return color.RGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}
