package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "MATCH_THRESHOLD", "TRACK_TTL", "DWELL_DELAY", "FORWARD_TIMEOUT", "MAX_CAPTURES"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", cfg.Port)
	}
	if cfg.MatchThreshold != 0.3 {
		t.Errorf("Expected match threshold 0.3, got %f", cfg.MatchThreshold)
	}
	if cfg.TrackTTL != 3*time.Second {
		t.Errorf("Expected TTL 3s, got %v", cfg.TrackTTL)
	}
	if cfg.ForwardTimeout < time.Minute {
		t.Errorf("Forward timeout should be minutes-scale, got %v", cfg.ForwardTimeout)
	}
	if cfg.MaxCaptures != 0 {
		t.Errorf("Expected unbounded captures by default, got %d", cfg.MaxCaptures)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("MATCH_THRESHOLD", "0.45")
	t.Setenv("DWELL_DELAY", "1500ms")
	t.Setenv("TRACK_TTL", "2.5")
	t.Setenv("MAX_CAPTURES", "abc")

	cfg := Load()

	if cfg.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Port)
	}
	if cfg.MatchThreshold != 0.45 {
		t.Errorf("Expected match threshold 0.45, got %f", cfg.MatchThreshold)
	}
	if cfg.DwellDelay != 1500*time.Millisecond {
		t.Errorf("Expected dwell 1.5s, got %v", cfg.DwellDelay)
	}
	if cfg.TrackTTL != 2500*time.Millisecond {
		t.Errorf("Expected TTL 2.5s from plain seconds, got %v", cfg.TrackTTL)
	}
	if cfg.MaxCaptures != 0 {
		t.Errorf("Invalid integer should fall back to default, got %d", cfg.MaxCaptures)
	}
}

func TestLoad_MatchThresholdOutOfRange(t *testing.T) {
	for _, value := range []string{"0", "-0.2", "1.5"} {
		t.Run(value, func(t *testing.T) {
			t.Setenv("MATCH_THRESHOLD", value)

			cfg := Load()

			if cfg.MatchThreshold != 0.3 {
				t.Errorf("MATCH_THRESHOLD=%s should fall back to 0.3, got %f", value, cfg.MatchThreshold)
			}
		})
	}

	t.Setenv("MATCH_THRESHOLD", "1")
	if cfg := Load(); cfg.MatchThreshold != 1 {
		t.Errorf("Expected match threshold 1 to be accepted, got %f", cfg.MatchThreshold)
	}
}
