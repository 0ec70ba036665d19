package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. PIXELFIND_MIN_SIMILARITY.
const EnvPrefix = "PIXELFIND"

// Config holds global defaults for searches and observers. Regions copy the
// values they need at construction and can override them individually.
type Config struct {
	Debug    bool   `json:"debug" mapstructure:"debug"`
	LogLevel string `json:"log_level" mapstructure:"log_level"`

	// Search defaults
	MinSimilarity          float64 `json:"min_similarity" mapstructure:"min_similarity"`
	AutoWaitTimeoutSeconds float64 `json:"auto_wait_timeout" mapstructure:"auto_wait_timeout"`
	WaitScanRate           float64 `json:"wait_scan_rate" mapstructure:"wait_scan_rate"`
	RepeatWaitSeconds      float64 `json:"repeat_wait_time" mapstructure:"repeat_wait_time"`
	FindFailedResponse     string  `json:"find_failed_response" mapstructure:"find_failed_response"`

	// Observer defaults
	ObserveScanRate         float64 `json:"observe_scan_rate" mapstructure:"observe_scan_rate"`
	ObserveMinChangedPixels int     `json:"observe_min_changed_pixels" mapstructure:"observe_min_changed_pixels"`

	// Pattern images
	ImagePaths      []string `json:"image_paths" mapstructure:"image_paths"`
	BundlePath      string   `json:"bundle_path" mapstructure:"bundle_path"`
	ImageCacheSize  int      `json:"image_cache_size" mapstructure:"image_cache_size"`
	WatchImagePaths bool     `json:"watch_image_paths" mapstructure:"watch_image_paths"`

	// Matcher tuning
	PyramidLevels  int     `json:"pyramid_levels" mapstructure:"pyramid_levels"`
	PyramidMinSide int     `json:"pyramid_min_side" mapstructure:"pyramid_min_side"`
	PyramidRelax   float64 `json:"pyramid_relax" mapstructure:"pyramid_relax"`
	FindAllLimit   int     `json:"find_all_limit" mapstructure:"find_all_limit"`
}

// DefaultConfig returns a Config populated with standard defaults.
func DefaultConfig() *Config {
	return &Config{
		Debug:                   false,
		LogLevel:                "info",
		MinSimilarity:           0.7,
		AutoWaitTimeoutSeconds:  3.0,
		WaitScanRate:            3.0,
		RepeatWaitSeconds:       0.3,
		FindFailedResponse:      "abort",
		ObserveScanRate:         3.0,
		ObserveMinChangedPixels: 50,
		ImagePaths:              []string{},
		BundlePath:              "",
		ImageCacheSize:          64,
		WatchImagePaths:         false,
		PyramidLevels:           3,
		PyramidMinSide:          20,
		PyramidRelax:            0.2,
		FindAllLimit:            100,
	}
}

// Validate clamps/normalizes values to safe ranges. It only fails for
// values that cannot be repaired.
func (c *Config) Validate() error {
	d := DefaultConfig()
	if c.MinSimilarity < 0 || c.MinSimilarity > 1 {
		c.MinSimilarity = d.MinSimilarity
	}
	if c.AutoWaitTimeoutSeconds < 0 {
		c.AutoWaitTimeoutSeconds = d.AutoWaitTimeoutSeconds
	}
	if c.WaitScanRate <= 0 {
		c.WaitScanRate = d.WaitScanRate
	}
	if c.RepeatWaitSeconds < 0 {
		c.RepeatWaitSeconds = d.RepeatWaitSeconds
	}
	if c.ObserveScanRate <= 0 {
		c.ObserveScanRate = d.ObserveScanRate
	}
	if c.ObserveMinChangedPixels <= 0 {
		c.ObserveMinChangedPixels = d.ObserveMinChangedPixels
	}
	if c.ImageCacheSize <= 0 {
		c.ImageCacheSize = d.ImageCacheSize
	}
	if c.PyramidLevels <= 0 {
		c.PyramidLevels = d.PyramidLevels
	}
	if c.PyramidMinSide <= 0 {
		c.PyramidMinSide = d.PyramidMinSide
	}
	if c.PyramidRelax < 0 || c.PyramidRelax >= 1 {
		c.PyramidRelax = d.PyramidRelax
	}
	if c.FindAllLimit <= 0 {
		c.FindAllLimit = d.FindAllLimit
	}
	c.FindFailedResponse = strings.ToLower(strings.TrimSpace(c.FindFailedResponse))
	switch c.FindFailedResponse {
	case "abort", "skip", "retry", "prompt":
	case "":
		c.FindFailedResponse = d.FindFailedResponse
	default:
		return fmt.Errorf("config: unknown find_failed_response %q", c.FindFailedResponse)
	}
	return nil
}

// AutoWaitTimeout returns the default search timeout.
func (c *Config) AutoWaitTimeout() time.Duration { return seconds(c.AutoWaitTimeoutSeconds) }

// RepeatWait returns the pause before a RETRY restarts a search.
func (c *Config) RepeatWait() time.Duration { return seconds(c.RepeatWaitSeconds) }

func seconds(s float64) time.Duration { return time.Duration(s * float64(time.Second)) }

// setDefaults registers every default on v so that env overrides work for
// keys absent from the file.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("debug", d.Debug)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("min_similarity", d.MinSimilarity)
	v.SetDefault("auto_wait_timeout", d.AutoWaitTimeoutSeconds)
	v.SetDefault("wait_scan_rate", d.WaitScanRate)
	v.SetDefault("repeat_wait_time", d.RepeatWaitSeconds)
	v.SetDefault("find_failed_response", d.FindFailedResponse)
	v.SetDefault("observe_scan_rate", d.ObserveScanRate)
	v.SetDefault("observe_min_changed_pixels", d.ObserveMinChangedPixels)
	v.SetDefault("image_paths", []string{})
	v.SetDefault("bundle_path", d.BundlePath)
	v.SetDefault("image_cache_size", d.ImageCacheSize)
	v.SetDefault("watch_image_paths", d.WatchImagePaths)
	v.SetDefault("pyramid_levels", d.PyramidLevels)
	v.SetDefault("pyramid_min_side", d.PyramidMinSide)
	v.SetDefault("pyramid_relax", d.PyramidRelax)
	v.SetDefault("find_all_limit", d.FindAllLimit)
}

// Load reads configuration from path (JSON, YAML or TOML by extension) and
// applies PIXELFIND_* environment overrides. A missing file or an empty
// path yields defaults plus environment. On a decode error the defaults
// are returned together with the error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return DefaultConfig(), fmt.Errorf("config: read %s: %w", path, err)
			}
		}
	}
	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return DefaultConfig(), err
	}
	return cfg, nil
}

// Save writes the configuration to the given path in JSON format.
func (c *Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}
