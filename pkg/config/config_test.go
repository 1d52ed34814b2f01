package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sample struct {
	Name string `yaml:"name"`
	Port int    `yaml:"port"`
}

func (s *sample) Validate() error {
	if s.Port <= 0 {
		return errors.New("port must be positive")
	}
	return nil
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ExpandsEnvAndKeepsDefaults(t *testing.T) {
	t.Setenv("SAMPLE_NAME", "notes")
	path := writeConfig(t, "name: ${SAMPLE_NAME}\n")

	cfg := sample{Port: 8080}
	if err := Load(path, &cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Name != "notes" {
		t.Errorf("name = %q", cfg.Name)
	}
	if cfg.Port != 8080 {
		t.Errorf("port = %d, default should survive", cfg.Port)
	}
}

func TestLoad_Validates(t *testing.T) {
	path := writeConfig(t, "port: 0\n")
	cfg := sample{Port: 1}
	err := Load(path, &cfg)
	if err == nil || !strings.Contains(err.Error(), "validation failed") {
		t.Errorf("err = %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	var cfg sample
	if err := Load(filepath.Join(t.TempDir(), "nope.yaml"), &cfg); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadOptional(t *testing.T) {
	cfg := sample{Port: 9000}
	found, err := LoadOptional(filepath.Join(t.TempDir(), "nope.yaml"), &cfg)
	if err != nil || found {
		t.Fatalf("found=%v err=%v", found, err)
	}
	if cfg.Port != 9000 {
		t.Errorf("defaults changed: %+v", cfg)
	}

	bad := sample{}
	if _, err := LoadOptional(filepath.Join(t.TempDir(), "nope.yaml"), &bad); err == nil {
		t.Error("invalid defaults should still fail validation")
	}

	path := writeConfig(t, "port: 7000\n")
	found, err = LoadOptional(path, &cfg)
	if err != nil || !found || cfg.Port != 7000 {
		t.Errorf("found=%v err=%v cfg=%+v", found, err, cfg)
	}
}
