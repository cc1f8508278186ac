package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// FeatureConfig represents the root configuration for the feature pipeline.
// All fields are optional; values omitted from the JSON file retain their
// defaults, so partial configs are safe. Environment variables applied via
// ApplyEnv take precedence over both.
type FeatureConfig struct {
	// Scheduler params
	ChunkMinutes *int    `json:"chunk_minutes,omitempty"`
	LoopInterval *string `json:"loop_interval,omitempty"` // duration string like "60s"
	Workers      *int    `json:"workers,omitempty"`       // 0 means one per CPU

	// Horizon / trend params
	HorizonMinutes       *int     `json:"horizon_minutes,omitempty"`
	AsOfToleranceMinutes *int     `json:"asof_tolerance_minutes,omitempty"`
	TrendPctUp           *float64 `json:"trend_pct_up,omitempty"`
	TrendPctDown         *float64 `json:"trend_pct_down,omitempty"`
	// TrendAbsMin is a reserved minimum-magnitude floor for trend labelling.
	// It is carried in configuration but not yet applied.
	TrendAbsMin *float64 `json:"trend_abs_min,omitempty"`

	// Rolling-window params. BaseWindow drives the short per-metric means;
	// RollingWindows drives the extended mean/std/min/max set.
	BaseWindow     *string  `json:"base_window,omitempty"`
	RollingWindows []string `json:"rolling_windows,omitempty"`

	// Signal classification thresholds (dBm / dB)
	RsrpExcellent *float64 `json:"rsrp_excellent,omitempty"`
	RsrpGood      *float64 `json:"rsrp_good,omitempty"`
	RsrpWeak      *float64 `json:"rsrp_weak,omitempty"`
	SnrGood       *float64 `json:"snr_good,omitempty"`
	SnrWeak       *float64 `json:"snr_weak,omitempty"`
	RsrqStrong    *float64 `json:"rsrq_strong,omitempty"`
	RsrqWeak      *float64 `json:"rsrq_weak,omitempty"`
}

// EmptyFeatureConfig returns a FeatureConfig with all fields set to nil.
func EmptyFeatureConfig() *FeatureConfig {
	return &FeatureConfig{}
}

// LoadFeatureConfig loads a FeatureConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the
// max file size.
func LoadFeatureConfig(path string) (*FeatureConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyFeatureConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overrides configuration values from environment variables. Unset
// or unparseable variables are ignored.
func (c *FeatureConfig) ApplyEnv() {
	if v, ok := envInt("CHUNK_MINUTES"); ok {
		c.ChunkMinutes = &v
	}
	if v, ok := envInt("HORIZON_MINUTES"); ok {
		c.HorizonMinutes = &v
	}
	if v, ok := envInt("ASOF_TOLERANCE_MINUTES"); ok {
		c.AsOfToleranceMinutes = &v
	}
	if v, ok := envFloat("TREND_PCT_UP"); ok {
		c.TrendPctUp = &v
	}
	if v, ok := envFloat("TREND_PCT_DOWN"); ok {
		c.TrendPctDown = &v
	}
	if v, ok := envFloat("TREND_ABS_MIN"); ok {
		c.TrendAbsMin = &v
	}
}

func envInt(name string) (int, bool) {
	s := os.Getenv(name)
	if s == "" {
		return 0, false
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}

func envFloat(name string) (float64, bool) {
	s := os.Getenv(name)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Validate checks that the configuration values are valid.
func (c *FeatureConfig) Validate() error {
	if c.ChunkMinutes != nil && *c.ChunkMinutes <= 0 {
		return fmt.Errorf("chunk_minutes must be positive, got %d", *c.ChunkMinutes)
	}
	if c.HorizonMinutes != nil && *c.HorizonMinutes <= 0 {
		return fmt.Errorf("horizon_minutes must be positive, got %d", *c.HorizonMinutes)
	}
	if c.AsOfToleranceMinutes != nil && *c.AsOfToleranceMinutes < 0 {
		return fmt.Errorf("asof_tolerance_minutes must be non-negative, got %d", *c.AsOfToleranceMinutes)
	}
	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}
	if c.TrendPctUp != nil && c.TrendPctDown != nil && *c.TrendPctUp < *c.TrendPctDown {
		return fmt.Errorf("trend_pct_up (%f) must not be below trend_pct_down (%f)", *c.TrendPctUp, *c.TrendPctDown)
	}
	if c.LoopInterval != nil && *c.LoopInterval != "" {
		if _, err := time.ParseDuration(*c.LoopInterval); err != nil {
			return fmt.Errorf("invalid loop_interval '%s': %w", *c.LoopInterval, err)
		}
	}
	if c.BaseWindow != nil && *c.BaseWindow != "" {
		d, err := time.ParseDuration(*c.BaseWindow)
		if err != nil {
			return fmt.Errorf("invalid base_window '%s': %w", *c.BaseWindow, err)
		}
		if d <= 0 {
			return fmt.Errorf("base_window must be positive, got %s", *c.BaseWindow)
		}
	}
	for _, w := range c.RollingWindows {
		d, err := time.ParseDuration(w)
		if err != nil {
			return fmt.Errorf("invalid rolling window '%s': %w", w, err)
		}
		if d <= 0 {
			return fmt.Errorf("rolling window must be positive, got %s", w)
		}
	}
	return nil
}

// GetChunkDuration returns the chunk duration or the one-day default.
func (c *FeatureConfig) GetChunkDuration() time.Duration {
	if c.ChunkMinutes == nil || *c.ChunkMinutes <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(*c.ChunkMinutes) * time.Minute
}

// GetLoopInterval parses and returns the LoopInterval as a time.Duration.
func (c *FeatureConfig) GetLoopInterval() time.Duration {
	if c.LoopInterval == nil || *c.LoopInterval == "" {
		return 60 * time.Second // default
	}
	d, err := time.ParseDuration(*c.LoopInterval)
	if err != nil {
		return 60 * time.Second // default on parse error
	}
	return d
}

// GetWorkers returns the worker-pool size, 0 meaning one worker per CPU.
func (c *FeatureConfig) GetWorkers() int {
	if c.Workers == nil || *c.Workers < 0 {
		return 0
	}
	return *c.Workers
}

// GetHorizon returns the forward-label horizon or the 15 minute default.
func (c *FeatureConfig) GetHorizon() time.Duration {
	if c.HorizonMinutes == nil || *c.HorizonMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(*c.HorizonMinutes) * time.Minute
}

// GetHorizonMinutes returns the horizon in whole minutes, as recorded per row.
func (c *FeatureConfig) GetHorizonMinutes() int {
	return int(c.GetHorizon() / time.Minute)
}

// GetAsOfTolerance returns the as-of join staleness bound or the 240 minute
// default.
func (c *FeatureConfig) GetAsOfTolerance() time.Duration {
	if c.AsOfToleranceMinutes == nil || *c.AsOfToleranceMinutes < 0 {
		return 240 * time.Minute
	}
	return time.Duration(*c.AsOfToleranceMinutes) * time.Minute
}

// GetTrendPctUp returns the inclusive Up threshold or the default.
func (c *FeatureConfig) GetTrendPctUp() float64 {
	if c.TrendPctUp == nil {
		return 0.10
	}
	return *c.TrendPctUp
}

// GetTrendPctDown returns the inclusive Down threshold or the default.
func (c *FeatureConfig) GetTrendPctDown() float64 {
	if c.TrendPctDown == nil {
		return -0.10
	}
	return *c.TrendPctDown
}

// GetTrendAbsMin returns the reserved minimum-magnitude floor or the default.
func (c *FeatureConfig) GetTrendAbsMin() float64 {
	if c.TrendAbsMin == nil {
		return 1.0
	}
	return *c.TrendAbsMin
}

// GetBaseWindow returns the short rolling window or the 15 minute default.
// A window that is not positive falls back to the default; rolling windows
// must look backward.
func (c *FeatureConfig) GetBaseWindow() time.Duration {
	if c.BaseWindow == nil || *c.BaseWindow == "" {
		return 15 * time.Minute
	}
	d, err := time.ParseDuration(*c.BaseWindow)
	if err != nil || d <= 0 {
		return 15 * time.Minute
	}
	return d
}

// GetRollingWindows returns the named extended window set, defaulting to
// 30m/1h/3h. Unparseable entries are skipped.
func (c *FeatureConfig) GetRollingWindows() map[string]time.Duration {
	names := c.RollingWindows
	if len(names) == 0 {
		names = []string{"30m", "1h", "3h"}
	}
	out := make(map[string]time.Duration, len(names))
	for _, name := range names {
		d, err := time.ParseDuration(name)
		if err != nil || d <= 0 {
			continue
		}
		out[name] = d
	}
	return out
}

// GetRsrpExcellent returns the rsrp threshold for the Excellent class.
func (c *FeatureConfig) GetRsrpExcellent() float64 {
	if c.RsrpExcellent == nil {
		return -80
	}
	return *c.RsrpExcellent
}

// GetRsrpGood returns the rsrp threshold for the Good class.
func (c *FeatureConfig) GetRsrpGood() float64 {
	if c.RsrpGood == nil {
		return -95
	}
	return *c.RsrpGood
}

// GetRsrpWeak returns the rsrp threshold for the Weak class.
func (c *FeatureConfig) GetRsrpWeak() float64 {
	if c.RsrpWeak == nil {
		return -110
	}
	return *c.RsrpWeak
}

// GetSnrGood returns the snr fallback threshold for the Good class.
func (c *FeatureConfig) GetSnrGood() float64 {
	if c.SnrGood == nil {
		return 10
	}
	return *c.SnrGood
}

// GetSnrWeak returns the snr fallback threshold for the Weak class.
func (c *FeatureConfig) GetSnrWeak() float64 {
	if c.SnrWeak == nil {
		return 0
	}
	return *c.SnrWeak
}

// GetRsrqStrong returns the rsrq level that nudges the class up one step.
func (c *FeatureConfig) GetRsrqStrong() float64 {
	if c.RsrqStrong == nil {
		return -10
	}
	return *c.RsrqStrong
}

// GetRsrqWeak returns the rsrq level that nudges the class down one step.
func (c *FeatureConfig) GetRsrqWeak() float64 {
	if c.RsrqWeak == nil {
		return -15
	}
	return *c.RsrqWeak
}
