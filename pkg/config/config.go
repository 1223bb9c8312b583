// Package config loads armrec settings from armrec.yaml, ARMREC_* environment
// variables and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/gwillem/armrec/pkg/camera"
	"github.com/gwillem/armrec/pkg/logging"
	"github.com/gwillem/armrec/pkg/protocol"
	"github.com/gwillem/armrec/pkg/robot"
	"github.com/gwillem/armrec/pkg/transport"
)

const (
	// DefaultConfigFile is looked up in the working directory, then in the user config dir.
	DefaultConfigFile = "armrec.yaml"

	envPrefix = "ARMREC"
)

// Control pairing modes.
const (
	ControlFromFollower = "follower"
	ControlFromCommand  = "command"
)

// Config holds every armrec setting.
type Config struct {
	Master   SerialConfig   `mapstructure:"master" yaml:"master"`
	Follower SerialConfig   `mapstructure:"follower" yaml:"follower"`
	Control  ControlConfig  `mapstructure:"control" yaml:"control"`
	Camera   CameraConfig   `mapstructure:"camera" yaml:"camera"`
	Output   OutputConfig   `mapstructure:"output" yaml:"output"`
	SafeZone SafeZoneConfig `mapstructure:"safe_zone" yaml:"safe_zone"`
	Log      logging.Config `mapstructure:"log" yaml:"log"`
	Catalog  CatalogConfig  `mapstructure:"catalog" yaml:"catalog"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`

	path string
}

// SerialConfig configures one arm's serial link.
type SerialConfig struct {
	Port        string        `mapstructure:"port" yaml:"port"`
	Baud        int           `mapstructure:"baud" yaml:"baud"`
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
}

// ControlConfig configures the control loop.
type ControlConfig struct {
	Period        time.Duration `mapstructure:"period" yaml:"period"`
	RetryAttempts int           `mapstructure:"retry_attempts" yaml:"retry_attempts"`
	RetryInterval time.Duration `mapstructure:"retry_interval" yaml:"retry_interval"`
	// ControlSource is "follower" (previous record paired with the current
	// follower sample) or "command" (paired with the previous drive command).
	ControlSource string `mapstructure:"control_source" yaml:"control_source"`
}

// CameraConfig configures the capture loop.
type CameraConfig struct {
	Enabled bool          `mapstructure:"enabled" yaml:"enabled"`
	Device  string        `mapstructure:"device" yaml:"device"`
	Width   uint32        `mapstructure:"width" yaml:"width"`
	Height  uint32        `mapstructure:"height" yaml:"height"`
	Period  time.Duration `mapstructure:"period" yaml:"period"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// OutputConfig names the roots for per-run directories.
type OutputConfig struct {
	SnapshotRoot string `mapstructure:"snapshot_root" yaml:"snapshot_root"`
	ImageRoot    string `mapstructure:"image_root" yaml:"image_root"`
}

// SafeZoneConfig bounds the follower end effector. Only checked when Enforce is set.
type SafeZoneConfig struct {
	Enforce bool    `mapstructure:"enforce" yaml:"enforce"`
	MinX    float32 `mapstructure:"min_x" yaml:"min_x"`
	MaxX    float32 `mapstructure:"max_x" yaml:"max_x"`
	MinY    float32 `mapstructure:"min_y" yaml:"min_y"`
	MaxY    float32 `mapstructure:"max_y" yaml:"max_y"`
	MinZ    float32 `mapstructure:"min_z" yaml:"min_z"`
	MaxZ    float32 `mapstructure:"max_z" yaml:"max_z"`
}

// CatalogConfig locates the run catalog. An empty path disables it.
type CatalogConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// MetricsConfig exposes /metrics when Listen is set.
type MetricsConfig struct {
	Listen string `mapstructure:"listen" yaml:"listen"`
}

func setDefaults(v *viper.Viper) {
	serial := transport.DefaultOptions()
	for role, port := range map[string]string{
		"master":   transport.DefaultMasterDevice,
		"follower": transport.DefaultFollowerDevice,
	} {
		v.SetDefault(role+".port", port)
		v.SetDefault(role+".baud", serial.BaudRate)
		v.SetDefault(role+".read_timeout", serial.ReadTimeout)
	}

	retry := protocol.DefaultRetryPolicy()
	v.SetDefault("control.period", 40*time.Millisecond)
	v.SetDefault("control.retry_attempts", retry.Attempts)
	v.SetDefault("control.retry_interval", retry.Interval)
	v.SetDefault("control.control_source", ControlFromFollower)

	cam := camera.DefaultOptions()
	v.SetDefault("camera.enabled", true)
	v.SetDefault("camera.device", cam.Device)
	v.SetDefault("camera.width", cam.Width)
	v.SetDefault("camera.height", cam.Height)
	v.SetDefault("camera.period", 40*time.Millisecond)
	v.SetDefault("camera.timeout", cam.Timeout)

	v.SetDefault("output.snapshot_root", "pickles")
	v.SetDefault("output.image_root", "camera_images")

	zone := robot.DefaultSafeZone()
	v.SetDefault("safe_zone.enforce", false)
	v.SetDefault("safe_zone.min_x", zone.X.Min)
	v.SetDefault("safe_zone.max_x", zone.X.Max)
	v.SetDefault("safe_zone.min_y", zone.Y.Min)
	v.SetDefault("safe_zone.max_y", zone.Y.Max)
	v.SetDefault("safe_zone.min_z", zone.Z.Min)
	v.SetDefault("safe_zone.max_z", zone.Z.Max)

	logCfg := logging.DefaultConfig()
	v.SetDefault("log.level", logCfg.Level)
	v.SetDefault("log.format", logCfg.Format)

	v.SetDefault("catalog.path", "armrec.db")
	v.SetDefault("metrics.listen", "")
}

// Default returns the configuration used when no file or environment overrides exist.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return &cfg
}

// UserConfigDir returns $HOME/.config/armrec, or "" if the home directory is unknown.
func UserConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "armrec")
}

// Load reads configuration. With an empty path armrec.yaml is searched in the
// working directory and the user config dir. A missing file is not an error:
// defaults and environment variables still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(strings.TrimSuffix(DefaultConfigFile, filepath.Ext(DefaultConfigFile)))
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir := UserConfigDir(); dir != "" {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.path = v.ConfigFileUsed()
	if cfg.path == "" {
		cfg.path = path
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Path returns the file the configuration was read from, or the explicit path
// passed to Load. It is empty when defaults were used without a file.
func (c *Config) Path() string {
	return c.path
}

// Validate checks values that would make the recorder misbehave.
func (c *Config) Validate() error {
	var errs []error
	for _, s := range []struct {
		name string
		cfg  SerialConfig
	}{{"master", c.Master}, {"follower", c.Follower}} {
		if s.cfg.Baud <= 0 {
			errs = append(errs, fmt.Errorf("%s.baud must be positive", s.name))
		}
		if s.cfg.ReadTimeout < 0 {
			errs = append(errs, fmt.Errorf("%s.read_timeout must not be negative", s.name))
		}
	}
	if c.Master.Port != "" && c.Master.Port == c.Follower.Port {
		errs = append(errs, fmt.Errorf("master and follower share port %s", c.Master.Port))
	}

	if c.Control.Period <= 0 {
		errs = append(errs, errors.New("control.period must be positive"))
	}
	if c.Control.RetryAttempts <= 0 {
		errs = append(errs, errors.New("control.retry_attempts must be positive"))
	}
	if c.Control.RetryInterval < 0 {
		errs = append(errs, errors.New("control.retry_interval must not be negative"))
	}
	switch c.Control.ControlSource {
	case ControlFromFollower, ControlFromCommand:
	default:
		errs = append(errs, fmt.Errorf("control.control_source %q: want %s or %s",
			c.Control.ControlSource, ControlFromFollower, ControlFromCommand))
	}

	if c.Camera.Enabled {
		if c.Camera.Device == "" {
			errs = append(errs, errors.New("camera.device is empty"))
		}
		if c.Camera.Width == 0 || c.Camera.Height == 0 {
			errs = append(errs, errors.New("camera.width and camera.height must be positive"))
		}
		if c.Camera.Period <= 0 {
			errs = append(errs, errors.New("camera.period must be positive"))
		}
	}

	if c.Output.SnapshotRoot == "" || c.Output.ImageRoot == "" {
		errs = append(errs, errors.New("output.snapshot_root and output.image_root must be set"))
	}

	z := c.SafeZone
	if z.MinX > z.MaxX || z.MinY > z.MaxY || z.MinZ > z.MaxZ {
		errs = append(errs, errors.New("safe_zone minimum exceeds maximum"))
	}

	if err := c.Log.Validate(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Save writes the configuration as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	c.path = path
	return nil
}

// Exists reports whether path names an existing config file.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// SerialOptions returns the link options for one arm.
func (s SerialConfig) SerialOptions() transport.Options {
	return transport.Options{BaudRate: s.Baud, ReadTimeout: s.ReadTimeout}.Normalize()
}

// RetryPolicy returns the exchange retry policy.
func (c ControlConfig) RetryPolicy() protocol.RetryPolicy {
	return protocol.RetryPolicy{Attempts: c.RetryAttempts, Interval: c.RetryInterval}
}

// Zone returns the configured safe zone box.
func (z SafeZoneConfig) Zone() robot.SafeZone {
	return robot.SafeZone{
		X: robot.Bounds{Min: z.MinX, Max: z.MaxX},
		Y: robot.Bounds{Min: z.MinY, Max: z.MaxY},
		Z: robot.Bounds{Min: z.MinZ, Max: z.MaxZ},
	}
}

// Options returns the capture device options.
func (c CameraConfig) Options() camera.Options {
	return camera.Options{Device: c.Device, Width: c.Width, Height: c.Height, Timeout: c.Timeout}
}
