package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.SimilarityThreshold != 0.75 {
		t.Errorf("SimilarityThreshold = %v, want 0.75", cfg.SimilarityThreshold)
	}
	if cfg.CentroidAlpha != 0.1 {
		t.Errorf("CentroidAlpha = %v, want 0.1", cfg.CentroidAlpha)
	}
	if cfg.AttributionWindow != 30*time.Minute {
		t.Errorf("AttributionWindow = %v, want 30m", cfg.AttributionWindow)
	}
	if cfg.EmbedDimension != 384 {
		t.Errorf("EmbedDimension = %v, want 384", cfg.EmbedDimension)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crowdwise.yaml")
	content := []byte("similarity_threshold: 0.3\nmax_clusters: 42\n")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("CROWDWISE_CONFIG", path)
	t.Setenv("CROWDWISE_SIMILARITY_THRESHOLD", "0.8")

	cfg := Load()

	// Env wins over file.
	if cfg.SimilarityThreshold != 0.8 {
		t.Errorf("SimilarityThreshold = %v, want 0.8 (env)", cfg.SimilarityThreshold)
	}
	// File wins over defaults.
	if cfg.MaxClusters != 42 {
		t.Errorf("MaxClusters = %v, want 42 (file)", cfg.MaxClusters)
	}
}

func TestLoad_BadFileIgnored(t *testing.T) {
	t.Setenv("CROWDWISE_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg := Load()
	if cfg.SimilarityThreshold != 0.75 {
		t.Errorf("SimilarityThreshold = %v, want default 0.75", cfg.SimilarityThreshold)
	}
}

func TestLoad_InvalidNumbersKeepDefaults(t *testing.T) {
	t.Setenv("CROWDWISE_MAX_CLUSTERS", "lots")
	t.Setenv("CROWDWISE_CENTROID_ALPHA", "never")
	t.Setenv("CROWDWISE_ATTRIBUTION_WINDOW", "soon")

	cfg := Load()
	if cfg.MaxClusters != 500 {
		t.Errorf("MaxClusters = %v, want default 500", cfg.MaxClusters)
	}
	if cfg.CentroidAlpha != 0.1 {
		t.Errorf("CentroidAlpha = %v, want default 0.1", cfg.CentroidAlpha)
	}
	if cfg.AttributionWindow != 30*time.Minute {
		t.Errorf("AttributionWindow = %v, want default 30m", cfg.AttributionWindow)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLogLevel(tt.in); got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
