package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(EnvPath, "")
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg != Default() {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadPartialFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memagent.json")
	os.WriteFile(path, []byte(`{"scan_limit": 50, "prompt": "agent"}`), 0644)
	t.Setenv(EnvPath, path)

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ScanLimit != 50 || cfg.Prompt != "agent" || cfg.FreezeIntervalMs != 100 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(path, []byte(`{"scan_limit": 0, "max_read_bytes": 99999999}`), 0644)

	_, err := Load(path)
	if err == nil {
		t.Fatal("invalid config accepted")
	}
	for _, want := range []string{"scan_limit", "max_read_bytes"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("missing file accepted")
	}
}
