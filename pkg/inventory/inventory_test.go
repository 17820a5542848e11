package inventory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fleetwire-net/fleetwire/pkg/util"
)

type fakeDirectory struct {
	devices []Device
	creds   map[string]Credentials
	listErr error
}

func (f *fakeDirectory) ListDevices(ctx context.Context, filter Filter) ([]Device, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []Device
	for _, d := range f.devices {
		if MatchesFilter(d, filter) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeDirectory) ResolveCredentials(ctx context.Context, id string) (Credentials, error) {
	c, ok := f.creds[id]
	if !ok {
		return Credentials{}, errors.New("no credentials")
	}
	return c, nil
}

func testDirectory() *fakeDirectory {
	return &fakeDirectory{
		devices: []Device{
			{ID: "d1", Name: "sw-access-01", Host: "10.0.0.1", Platform: "hp_comware", Location: "dc-a", PollingEnabled: true},
			{ID: "d2", Name: "sw-access-02", Host: "10.0.0.2", Platform: "cisco_ios", Location: "dc-a"},
			{ID: "d3", Name: "core-rt-01", Host: "10.0.0.3", Platform: "huawei_vrp", Location: "dc-b", PollingEnabled: true},
		},
		creds: map[string]Credentials{
			"d1": {Username: "ops", Password: "x"},
			"d2": {Username: "ops", Password: "x"},
			"d3": {Username: "ops", Password: "x", Enable: "y"},
		},
	}
}

func TestBuildFromIDs(t *testing.T) {
	b := NewBuilder(testDirectory())

	batch, err := b.BuildFromIDs(context.Background(), []string{"d1", "d3"})
	if err != nil {
		t.Fatalf("BuildFromIDs: %v", err)
	}
	if len(batch.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(batch.Entries))
	}
	// Order follows the requested id list.
	if batch.Entries[0].Device.ID != "d1" || batch.Entries[1].Device.ID != "d3" {
		t.Errorf("batch order = %s, %s", batch.Entries[0].Device.ID, batch.Entries[1].Device.ID)
	}
	if batch.Entries[1].Credentials.Enable != "y" {
		t.Errorf("credentials not resolved for d3")
	}
}

func TestBuildFromIDsMissingDevice(t *testing.T) {
	b := NewBuilder(testDirectory())

	_, err := b.BuildFromIDs(context.Background(), []string{"d1", "d9"})
	if !errors.Is(err, util.ErrDeviceNotFound) {
		t.Fatalf("missing device should be fatal, got %v", err)
	}
}

func TestBuildFromIDsEmpty(t *testing.T) {
	b := NewBuilder(testDirectory())
	if _, err := b.BuildFromIDs(context.Background(), nil); err == nil {
		t.Fatal("empty id list should be rejected")
	}
}

func TestBuildFromIDsDirectoryDown(t *testing.T) {
	b := NewBuilder(&fakeDirectory{listErr: errors.New("directory unreachable")})
	if _, err := b.BuildFromIDs(context.Background(), []string{"d1"}); err == nil {
		t.Fatal("directory failure must abort the build")
	}
}

func TestBuildFromFilter(t *testing.T) {
	b := NewBuilder(testDirectory())

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 3},
		{"by location", Filter{Location: "dc-a"}, 2},
		{"by platform", Filter{Platform: "cisco_ios"}, 1},
		{"polling only", Filter{PollingOnly: true}, 2},
		{"no match", Filter{Location: "dc-z"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batch, err := b.BuildFromFilter(context.Background(), tt.filter)
			if err != nil {
				t.Fatalf("BuildFromFilter: %v", err)
			}
			if len(batch.Entries) != tt.want {
				t.Errorf("entries = %d, want %d", len(batch.Entries), tt.want)
			}
		})
	}
}

func TestDeviceAddr(t *testing.T) {
	d := Device{Host: "10.0.0.1"}
	if d.Addr() != "10.0.0.1:22" {
		t.Errorf("default port Addr = %q", d.Addr())
	}
	d.Port = 2222
	if d.Addr() != "10.0.0.1:2222" {
		t.Errorf("explicit port Addr = %q", d.Addr())
	}
}

const directoryYAML = `
devices:
  - id: d1
    name: sw-access-01
    host: 10.0.0.1
    platform: hp_comware
    credential_ref: campus
    location: dc-a
    polling_enabled: true
    snmp_community: ops-ro
  - id: d2
    name: core-rt-01
    host: 10.0.0.3
    port: 2022
    platform: cisco_ios
    credential_ref: core
credentials:
  campus:
    username: netops
    password: secret1
  core:
    username: netops
    password: secret2
    enable: super
`

func writeDirectoryFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "devices.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFileDirectory(t *testing.T) {
	dir, err := LoadFileDirectory(writeDirectoryFile(t, directoryYAML))
	if err != nil {
		t.Fatalf("LoadFileDirectory: %v", err)
	}

	devices, err := dir.ListDevices(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("devices = %d, want 2", len(devices))
	}
	if devices[0].SNMPCommunity != "ops-ro" {
		t.Errorf("SNMPCommunity = %q", devices[0].SNMPCommunity)
	}

	creds, err := dir.ResolveCredentials(context.Background(), "d2")
	if err != nil {
		t.Fatalf("ResolveCredentials: %v", err)
	}
	if creds.Username != "netops" || creds.Enable != "super" {
		t.Errorf("credentials = %+v", creds)
	}

	if _, err := dir.ResolveCredentials(context.Background(), "d9"); err == nil {
		t.Error("unknown device should fail credential resolution")
	}
}

func TestFileDirectoryValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing credential set", `
devices:
  - id: d1
    host: 10.0.0.1
    credential_ref: nope
credentials: {}
`},
		{"duplicate id", `
devices:
  - id: d1
    host: 10.0.0.1
    credential_ref: c
  - id: d1
    host: 10.0.0.2
    credential_ref: c
credentials:
  c: {username: u, password: p}
`},
		{"missing host", `
devices:
  - id: d1
    credential_ref: c
credentials:
  c: {username: u, password: p}
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadFileDirectory(writeDirectoryFile(t, tt.yaml)); err == nil {
				t.Error("invalid directory file should be rejected")
			}
		})
	}
}
