// Package settings manages persistent user preferences for the
// fleetwire CLI. Engine tuning lives in the config file; settings
// hold per-user defaults like the inventory path so they need not be
// repeated on every invocation.
package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Settings holds persistent user preferences
type Settings struct {
	// DefaultInventory is the device directory file used when
	// --inventory is not specified
	DefaultInventory string `json:"default_inventory,omitempty"`

	// DefaultUser is the session owner used when --user is not
	// specified
	DefaultUser string `json:"default_user,omitempty"`

	// DefaultDevices is the run target list used when -d is not
	// specified (comma separated device ids)
	DefaultDevices string `json:"default_devices,omitempty"`
}

// DefaultSettingsPath returns the default path for the settings file
func DefaultSettingsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "fleetwire_settings.json"
	}
	return filepath.Join(home, ".fleetwire", "settings.json")
}

// Load reads settings from the default location
func Load() (*Settings, error) {
	return LoadFrom(DefaultSettingsPath())
}

// LoadFrom reads settings from a specific path
func LoadFrom(path string) (*Settings, error) {
	s := &Settings{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return empty settings if file doesn't exist
			return s, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, s); err != nil {
		return nil, err
	}

	return s, nil
}

// Save writes settings to the default location
func (s *Settings) Save() error {
	return s.SaveTo(DefaultSettingsPath())
}

// SaveTo writes settings to a specific path
func (s *Settings) SaveTo(path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Set assigns a named setting. Unknown keys are rejected so typos do
// not silently land in the file.
func (s *Settings) Set(key, value string) bool {
	switch key {
	case "inventory":
		s.DefaultInventory = value
	case "user":
		s.DefaultUser = value
	case "devices":
		s.DefaultDevices = value
	default:
		return false
	}
	return true
}

// Keys lists the settable keys.
func Keys() []string {
	return []string{"inventory", "user", "devices"}
}

// Clear resets all settings to defaults
func (s *Settings) Clear() {
	*s = Settings{}
}
