package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := EmptyFeatureConfig()

	if got := cfg.GetChunkDuration(); got != 24*time.Hour {
		t.Errorf("GetChunkDuration() = %v, want 24h", got)
	}
	if got := cfg.GetHorizon(); got != 15*time.Minute {
		t.Errorf("GetHorizon() = %v, want 15m", got)
	}
	if got := cfg.GetAsOfTolerance(); got != 240*time.Minute {
		t.Errorf("GetAsOfTolerance() = %v, want 240m", got)
	}
	if got := cfg.GetTrendPctUp(); got != 0.10 {
		t.Errorf("GetTrendPctUp() = %v, want 0.10", got)
	}
	if got := cfg.GetTrendPctDown(); got != -0.10 {
		t.Errorf("GetTrendPctDown() = %v, want -0.10", got)
	}
	if got := cfg.GetBaseWindow(); got != 15*time.Minute {
		t.Errorf("GetBaseWindow() = %v, want 15m", got)
	}

	windows := cfg.GetRollingWindows()
	want := map[string]time.Duration{
		"30m": 30 * time.Minute,
		"1h":  time.Hour,
		"3h":  3 * time.Hour,
	}
	if len(windows) != len(want) {
		t.Fatalf("GetRollingWindows() = %v, want %v", windows, want)
	}
	for name, d := range want {
		if windows[name] != d {
			t.Errorf("window %q = %v, want %v", name, windows[name], d)
		}
	}
}

func TestLoadFeatureConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "features.json")
	content := `{
		"chunk_minutes": 120,
		"horizon_minutes": 30,
		"trend_pct_up": 0.2,
		"trend_pct_down": -0.2,
		"rolling_windows": ["10m", "1h"]
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFeatureConfig(path)
	if err != nil {
		t.Fatalf("LoadFeatureConfig failed: %v", err)
	}
	if got := cfg.GetChunkDuration(); got != 2*time.Hour {
		t.Errorf("GetChunkDuration() = %v, want 2h", got)
	}
	if got := cfg.GetHorizon(); got != 30*time.Minute {
		t.Errorf("GetHorizon() = %v, want 30m", got)
	}
	if got := cfg.GetTrendPctUp(); got != 0.2 {
		t.Errorf("GetTrendPctUp() = %v, want 0.2", got)
	}
	windows := cfg.GetRollingWindows()
	if len(windows) != 2 || windows["10m"] != 10*time.Minute {
		t.Errorf("GetRollingWindows() = %v", windows)
	}
}

func TestLoadFeatureConfigRejectsNonJSON(t *testing.T) {
	if _, err := LoadFeatureConfig("features.yaml"); err == nil {
		t.Fatal("expected error for non-JSON extension")
	}
}

func TestValidate(t *testing.T) {
	bad := -5
	cfg := &FeatureConfig{ChunkMinutes: &bad}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for negative chunk_minutes")
	}

	up, down := -0.1, 0.1
	cfg = &FeatureConfig{TrendPctUp: &up, TrendPctDown: &down}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for inverted trend thresholds")
	}

	badWindow := "not-a-duration"
	cfg = &FeatureConfig{RollingWindows: []string{badWindow}}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unparseable rolling window")
	}

	negWindow := "-15m"
	cfg = &FeatureConfig{BaseWindow: &negWindow}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for negative base_window")
	}

	cfg = &FeatureConfig{RollingWindows: []string{"30m", "0s"}}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero rolling window")
	}
}

func TestGetBaseWindowRejectsNonPositive(t *testing.T) {
	neg := "-15m"
	cfg := &FeatureConfig{BaseWindow: &neg}
	if got := cfg.GetBaseWindow(); got != 15*time.Minute {
		t.Errorf("GetBaseWindow() = %v, want 15m fallback", got)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("HORIZON_MINUTES", "45")
	t.Setenv("TREND_PCT_UP", "0.25")
	t.Setenv("TREND_PCT_DOWN", "garbage")

	cfg := EmptyFeatureConfig()
	cfg.ApplyEnv()

	if got := cfg.GetHorizon(); got != 45*time.Minute {
		t.Errorf("GetHorizon() = %v, want 45m", got)
	}
	if got := cfg.GetTrendPctUp(); got != 0.25 {
		t.Errorf("GetTrendPctUp() = %v, want 0.25", got)
	}
	// unparseable env values fall back to defaults
	if got := cfg.GetTrendPctDown(); got != -0.10 {
		t.Errorf("GetTrendPctDown() = %v, want -0.10", got)
	}
}
