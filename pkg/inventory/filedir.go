package inventory

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileDirectory is a YAML-backed device directory for the CLI and for
// small installations without an external source of truth. The file
// holds descriptors and credential sets side by side; production
// deployments point the engine at a real directory instead.
type FileDirectory struct {
	devices     []Device
	credentials map[string]Credentials
}

type fileDevice struct {
	ID             string `yaml:"id"`
	Name           string `yaml:"name"`
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	Platform       string `yaml:"platform"`
	CredentialRef  string `yaml:"credential_ref"`
	Location       string `yaml:"location"`
	PollingEnabled bool   `yaml:"polling_enabled"`
	SNMPCommunity  string `yaml:"snmp_community"`
}

type fileCredential struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Enable   string `yaml:"enable,omitempty"`
}

type directoryFile struct {
	Devices     []fileDevice              `yaml:"devices"`
	Credentials map[string]fileCredential `yaml:"credentials"`
}

// LoadFileDirectory reads a YAML directory file.
func LoadFileDirectory(path string) (*FileDirectory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading device directory: %w", err)
	}
	var f directoryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing device directory: %w", err)
	}

	dir := &FileDirectory{
		credentials: make(map[string]Credentials, len(f.Credentials)),
	}
	seen := make(map[string]bool, len(f.Devices))
	for _, fd := range f.Devices {
		if fd.ID == "" || fd.Host == "" {
			return nil, fmt.Errorf("device entry %q missing id or host", fd.Name)
		}
		if seen[fd.ID] {
			return nil, fmt.Errorf("duplicate device id %q", fd.ID)
		}
		seen[fd.ID] = true
		if fd.CredentialRef == "" {
			return nil, fmt.Errorf("device %s has no credential_ref", fd.ID)
		}
		if _, ok := f.Credentials[fd.CredentialRef]; !ok {
			return nil, fmt.Errorf("device %s references unknown credential set %q", fd.ID, fd.CredentialRef)
		}
		dir.devices = append(dir.devices, Device{
			ID:             fd.ID,
			Name:           fd.Name,
			Host:           fd.Host,
			Port:           fd.Port,
			Platform:       fd.Platform,
			CredentialRef:  fd.CredentialRef,
			Location:       fd.Location,
			PollingEnabled: fd.PollingEnabled,
			SNMPCommunity:  fd.SNMPCommunity,
		})
	}
	for name, fc := range f.Credentials {
		dir.credentials[name] = Credentials{
			Username: fc.Username,
			Password: fc.Password,
			Enable:   fc.Enable,
		}
	}
	return dir, nil
}

// ListDevices returns descriptors matching the filter.
func (d *FileDirectory) ListDevices(ctx context.Context, filter Filter) ([]Device, error) {
	var out []Device
	for _, dev := range d.devices {
		if MatchesFilter(dev, filter) {
			out = append(out, dev)
		}
	}
	return out, nil
}

// ResolveCredentials returns the credential set a device references.
func (d *FileDirectory) ResolveCredentials(ctx context.Context, deviceID string) (Credentials, error) {
	for _, dev := range d.devices {
		if dev.ID == deviceID {
			creds, ok := d.credentials[dev.CredentialRef]
			if !ok {
				return Credentials{}, fmt.Errorf("credential set %q not found", dev.CredentialRef)
			}
			return creds, nil
		}
	}
	return Credentials{}, fmt.Errorf("device %s not in directory", deviceID)
}
