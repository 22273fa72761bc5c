package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/maruel/krawldb/internal/errors"
)

func TestLoad(t *testing.T) {
	t.Run("missing file uses defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), FileName))
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if *cfg != Default() {
			t.Errorf("Load() = %+v, want %+v", *cfg, Default())
		}
	})

	t.Run("overrides", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), FileName)
		data := "database: dict\ncodec: go-json\nworkers: 4\n"
		if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
			t.Fatal(err)
		}
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Database != "dict" || cfg.Codec != "go-json" || cfg.Workers != 4 {
			t.Errorf("Load() = %+v", cfg)
		}
		if cfg.LogLevel != "info" {
			t.Errorf("LogLevel = %q, want default info", cfg.LogLevel)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		tests := []struct {
			name string
			data string
		}{
			{"codec", "codec: xml\n"},
			{"log level", "log_level: verbose\n"},
			{"workers", "workers: -1\n"},
			{"rate", "watch_rate_per_sec: -2\n"},
			{"database", "database: \"\"\n"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				path := filepath.Join(t.TempDir(), FileName)
				if err := os.WriteFile(path, []byte(tt.data), 0o600); err != nil {
					t.Fatal(err)
				}
				if _, err := Load(path); !stderrors.Is(err, errors.ErrInvalidConfig) {
					t.Errorf("Load() error = %v, want INVALID_CONFIG", err)
				}
			})
		}
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), FileName)
		if err := os.WriteFile(path, []byte("workers: [1, 2\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); err == nil {
			t.Error("Load() succeeded on malformed yaml")
		}
	})
}

func TestSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	cfg := Default()
	cfg.Database = "words"
	cfg.WatchRatePerSec = 2.5
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if *got != cfg {
		t.Errorf("Load() = %+v, want %+v", *got, cfg)
	}

	bad := Default()
	bad.Codec = "csv"
	if err := bad.Save(path); err == nil {
		t.Error("Save() succeeded with invalid config")
	}
}
