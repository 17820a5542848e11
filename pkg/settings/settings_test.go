package settings

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSettings_Set(t *testing.T) {
	s := &Settings{}

	if !s.Set("inventory", "/etc/fleetwire/devices.yaml") {
		t.Error("Set(inventory) rejected")
	}
	if s.DefaultInventory != "/etc/fleetwire/devices.yaml" {
		t.Errorf("DefaultInventory = %q", s.DefaultInventory)
	}

	if !s.Set("user", "noc") {
		t.Error("Set(user) rejected")
	}
	if s.DefaultUser != "noc" {
		t.Errorf("DefaultUser = %q", s.DefaultUser)
	}

	if s.Set("no_such_key", "x") {
		t.Error("Set() accepted an unknown key")
	}
}

func TestSettings_Clear(t *testing.T) {
	s := &Settings{
		DefaultInventory: "/path",
		DefaultUser:      "noc",
		DefaultDevices:   "sw-01,sw-02",
	}

	s.Clear()

	if s.DefaultInventory != "" || s.DefaultUser != "" || s.DefaultDevices != "" {
		t.Error("Clear() should reset all fields to empty")
	}
}

func TestSettings_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")

	original := &Settings{
		DefaultInventory: "/etc/fleetwire/devices.yaml",
		DefaultUser:      "noc",
		DefaultDevices:   "sw-01,sw-02",
	}

	if err := original.SaveTo(path); err != nil {
		t.Fatalf("SaveTo() failed: %v", err)
	}

	loaded, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() failed: %v", err)
	}

	if *loaded != *original {
		t.Errorf("round trip mismatch: got %+v, want %+v", loaded, original)
	}
}

func TestSettings_LoadNonExistent(t *testing.T) {
	// Load from non-existent path should return empty settings
	s, err := LoadFrom("/nonexistent/path/settings.json")
	if err != nil {
		t.Fatalf("LoadFrom() non-existent should not error: %v", err)
	}
	if s == nil {
		t.Fatal("LoadFrom() should return non-nil Settings")
	}
	if s.DefaultInventory != "" || s.DefaultUser != "" {
		t.Error("LoadFrom() non-existent should return empty settings")
	}
}

func TestSettings_LoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte("invalid json {"), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	if _, err := LoadFrom(path); err == nil {
		t.Error("LoadFrom() with invalid JSON should error")
	}
}

func TestSettings_SaveCreatesDirectory(t *testing.T) {
	// Path with non-existent directory
	path := filepath.Join(t.TempDir(), "subdir", "nested", "settings.json")

	s := &Settings{DefaultUser: "noc"}
	if err := s.SaveTo(path); err != nil {
		t.Fatalf("SaveTo() should create directories: %v", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("SaveTo() should have created the file")
	}
}

func TestLoad(t *testing.T) {
	// Point HOME at a temp directory for the duration of the test
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	// Load() with nothing on disk returns empty settings
	s, err := Load()
	if err != nil {
		t.Fatalf("Load() with non-existent file should not error: %v", err)
	}
	if s.DefaultInventory != "" {
		t.Error("Load() with non-existent file should return empty settings")
	}

	settingsDir := filepath.Join(tmpDir, ".fleetwire")
	if err := os.MkdirAll(settingsDir, 0755); err != nil {
		t.Fatalf("Failed to create settings dir: %v", err)
	}
	content := `{"default_inventory":"/srv/devices.yaml","default_user":"ops"}`
	if err := os.WriteFile(filepath.Join(settingsDir, "settings.json"), []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test settings: %v", err)
	}

	s, err = Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if s.DefaultInventory != "/srv/devices.yaml" || s.DefaultUser != "ops" {
		t.Errorf("Load() = %+v", s)
	}
}

func TestSave(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	s := &Settings{DefaultInventory: "/srv/devices.yaml"}
	if err := s.Save(); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	expectedPath := filepath.Join(tmpDir, ".fleetwire", "settings.json")
	if _, err := os.Stat(expectedPath); os.IsNotExist(err) {
		t.Fatalf("Save() did not create file at %s", expectedPath)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load() after Save() failed: %v", err)
	}
	if loaded.DefaultInventory != "/srv/devices.yaml" {
		t.Errorf("After Save(), DefaultInventory = %q", loaded.DefaultInventory)
	}
}

func TestLoadFrom_ReadError(t *testing.T) {
	// A directory where the file should be causes a read error
	dirAsFile := filepath.Join(t.TempDir(), "settings.json")
	if err := os.Mkdir(dirAsFile, 0755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}

	if _, err := LoadFrom(dirAsFile); err == nil {
		t.Error("LoadFrom() should error when path is a directory")
	}
}
