package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/lowaak/smart-trainer/notch-rider/internal/ride"
)

const (
	AppDirName = ".notch-rider"
	EnvPrefix  = "NOTCH_RIDER"
)

var ErrInvalidConfig = errors.New("invalid config")

type SimConfig struct {
	Seed        uint64
	BasePower   float64
	RiderWeight float64
	BikeWeight  float64
}

type LogConfig struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type Config struct {
	Zone         ride.TargetZone
	TrackWidth   int
	HoverOffset  int
	FPS          int
	PollInterval time.Duration

	Simulate    bool
	MockBLE     bool
	DeviceName  string
	ScanTimeout time.Duration

	Sim SimConfig

	RecorderDir   string
	ExportParquet bool
	HistoryDB     string
	ImportOnStart bool

	Log LogConfig

	// ConfigFile is the file that was read, empty if none.
	ConfigFile string
	// PrintConfig asks for the merged settings to be printed instead of riding.
	PrintConfig bool

	settings map[string]any
}

// FrameInterval is the animation tick period.
func (c *Config) FrameInterval() time.Duration {
	return time.Second / time.Duration(c.FPS)
}

// AppDir is where state lives by default, ~/.notch-rider.
func AppDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return AppDirName
	}
	return filepath.Join(home, AppDirName)
}

func setDefaults(v *viper.Viper, appDir string) {
	v.SetDefault("zone.metric", "power")
	v.SetDefault("zone.min", 140)
	v.SetDefault("zone.max", 180)
	v.SetDefault("track.width", 80)
	v.SetDefault("hover.offset", 3)
	v.SetDefault("animation.fps", 30)
	v.SetDefault("telemetry.poll_interval", 100*time.Millisecond)
	v.SetDefault("telemetry.simulate", false)
	v.SetDefault("telemetry.mock_ble", false)
	v.SetDefault("telemetry.device_name", "")
	v.SetDefault("ble.scan_timeout", 10*time.Second)
	v.SetDefault("sim.seed", 0)
	v.SetDefault("sim.base_power", 160)
	v.SetDefault("sim.rider_weight", 75)
	v.SetDefault("sim.bike_weight", 9)
	v.SetDefault("recorder.dir", filepath.Join(appDir, "workouts"))
	v.SetDefault("recorder.export_parquet", false)
	v.SetDefault("history.db", filepath.Join(appDir, "history.db"))
	v.SetDefault("history.import_on_start", true)
	v.SetDefault("log.file", filepath.Join(appDir, "notch-rider.log"))
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
}

// flag name -> config key
var flagKeys = map[string]string{
	"zone-metric":    "zone.metric",
	"zone-min":       "zone.min",
	"zone-max":       "zone.max",
	"track-width":    "track.width",
	"fps":            "animation.fps",
	"poll-interval":  "telemetry.poll_interval",
	"simulate":       "telemetry.simulate",
	"mock-ble":       "telemetry.mock_ble",
	"device":         "telemetry.device_name",
	"scan-timeout":   "ble.scan_timeout",
	"seed":           "sim.seed",
	"workout-dir":    "recorder.dir",
	"export-parquet": "recorder.export_parquet",
	"history-db":     "history.db",
	"log-file":       "log.file",
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("notch-rider", pflag.ContinueOnError)
	fs.String("config", "", "config file (default ~/.notch-rider/config.yaml)")
	fs.String("zone-metric", "power", "zone metric: power or heart_rate")
	fs.Float64("zone-min", 140, "lower bound of the target zone")
	fs.Float64("zone-max", 180, "upper bound of the target zone")
	fs.Int("track-width", 80, "track width in cells")
	fs.Int("fps", 30, "animation frames per second")
	fs.Duration("poll-interval", 100*time.Millisecond, "telemetry poll interval")
	fs.Bool("simulate", false, "skip the trainer search and simulate a ride")
	fs.Bool("mock-ble", false, "use built-in mock BLE devices instead of the radio")
	fs.String("device", "", "connect to the trainer whose name contains this")
	fs.Duration("scan-timeout", 10*time.Second, "how long to look for a trainer")
	fs.Uint64("seed", 0, "simulation seed, 0 picks one")
	fs.String("workout-dir", "", "where FIT files are written")
	fs.Bool("export-parquet", false, "also write a parquet file of samples per ride")
	fs.String("history-db", "", "ride history database")
	fs.String("log-file", "", "log file")
	fs.Bool("print-config", false, "print the merged configuration as YAML and exit")
	return fs
}

// Load reads flags, then NOTCH_RIDER_* environment variables, then the
// config file, then defaults, in that order of precedence.
func Load(args []string) (*Config, error) {
	return load(args, AppDir())
}

func load(args []string, appDir string) (*Config, error) {
	flags := newFlagSet()
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v, appDir)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for name, key := range flagKeys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", name, err)
		}
	}

	configFile, _ := flags.GetString("config")
	explicit := configFile != ""
	if !explicit {
		configFile = filepath.Join(appDir, "config.yaml")
	}
	v.SetConfigFile(configFile)
	if err := v.ReadInConfig(); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
		configFile = ""
	}

	cfg, err := fromViper(v)
	if err != nil {
		return nil, err
	}
	cfg.ConfigFile = configFile
	cfg.PrintConfig, _ = flags.GetBool("print-config")
	cfg.settings = v.AllSettings()
	return cfg, nil
}

// WriteYAML writes the merged settings in config file form.
func (c *Config) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c.settings); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}

func fromViper(v *viper.Viper) (*Config, error) {
	metric, err := ride.ParseZoneMetric(v.GetString("zone.metric"))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	zone, err := ride.NewTargetZone(v.GetFloat64("zone.min"), v.GetFloat64("zone.max"), metric)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	cfg := &Config{
		Zone:         zone,
		TrackWidth:   v.GetInt("track.width"),
		HoverOffset:  v.GetInt("hover.offset"),
		FPS:          v.GetInt("animation.fps"),
		PollInterval: v.GetDuration("telemetry.poll_interval"),
		Simulate:     v.GetBool("telemetry.simulate"),
		MockBLE:      v.GetBool("telemetry.mock_ble"),
		DeviceName:   v.GetString("telemetry.device_name"),
		ScanTimeout:  v.GetDuration("ble.scan_timeout"),
		Sim: SimConfig{
			Seed:        v.GetUint64("sim.seed"),
			BasePower:   v.GetFloat64("sim.base_power"),
			RiderWeight: v.GetFloat64("sim.rider_weight"),
			BikeWeight:  v.GetFloat64("sim.bike_weight"),
		},
		RecorderDir:   v.GetString("recorder.dir"),
		ExportParquet: v.GetBool("recorder.export_parquet"),
		HistoryDB:     v.GetString("history.db"),
		ImportOnStart: v.GetBool("history.import_on_start"),
		Log: LogConfig{
			File:       v.GetString("log.file"),
			MaxSizeMB:  v.GetInt("log.max_size_mb"),
			MaxBackups: v.GetInt("log.max_backups"),
			MaxAgeDays: v.GetInt("log.max_age_days"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.TrackWidth <= 0 {
		errs = append(errs, fmt.Errorf("track.width must be positive, got %d", c.TrackWidth))
	}
	if c.HoverOffset < 0 {
		errs = append(errs, fmt.Errorf("hover.offset must not be negative, got %d", c.HoverOffset))
	}
	if c.FPS <= 0 || c.FPS > 120 {
		errs = append(errs, fmt.Errorf("animation.fps must be in 1..120, got %d", c.FPS))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("telemetry.poll_interval must be positive, got %v", c.PollInterval))
	}
	if c.ScanTimeout <= 0 {
		errs = append(errs, fmt.Errorf("ble.scan_timeout must be positive, got %v", c.ScanTimeout))
	}
	if c.RecorderDir == "" {
		errs = append(errs, errors.New("recorder.dir must be set"))
	}
	if c.HistoryDB == "" {
		errs = append(errs, errors.New("history.db must be set"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
