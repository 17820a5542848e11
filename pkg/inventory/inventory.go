// Package inventory assembles batches of device descriptors and
// credentials from the external device directory. Descriptors are
// immutable snapshots: each new build re-reads the directory, so
// credential rotations and fleet changes take effect on the next
// task or poll cycle rather than mid-flight.
package inventory

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/fleetwire-net/fleetwire/pkg/util"
)

// Device describes one network element for the duration of a task or
// session. CredentialRef is an opaque handle resolved through the
// directory; secrets never live on the descriptor.
type Device struct {
	ID             string
	Name           string
	Host           string
	Port           int
	Platform       string // adapter tag: hp_comware, huawei_vrp, cisco_ios, generic
	CredentialRef  string
	Location       string
	PollingEnabled bool
	SNMPCommunity  string
}

// Addr returns the host:port dial address.
func (d Device) Addr() string {
	port := d.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(d.Host, strconv.Itoa(port))
}

// Credentials is the resolved secret material for one device. Held
// only for the lifetime of a connection; never logged or persisted.
type Credentials struct {
	Username string
	Password string
	Enable   string
}

// Filter narrows a directory listing.
type Filter struct {
	IDs         []string
	Platform    string
	Location    string
	PollingOnly bool
}

// Directory is the external device source of truth.
type Directory interface {
	ListDevices(ctx context.Context, filter Filter) ([]Device, error)
	ResolveCredentials(ctx context.Context, deviceID string) (Credentials, error)
}

// Entry pairs a device with its resolved credentials inside a batch.
type Entry struct {
	Device      Device
	Credentials Credentials
}

// Batch is the in-memory device set for one task invocation or poll
// cycle.
type Batch struct {
	Entries []Entry
}

// Devices returns the descriptors in the batch.
func (b *Batch) Devices() []Device {
	out := make([]Device, len(b.Entries))
	for i, e := range b.Entries {
		out[i] = e.Device
	}
	return out
}

// Builder assembles batches from the directory.
type Builder struct {
	dir Directory
}

// NewBuilder creates an inventory builder over a directory.
func NewBuilder(dir Directory) *Builder {
	return &Builder{dir: dir}
}

// BuildFromIDs assembles a batch for the named devices. Every id must
// resolve: a missing device is a fatal inventory error, since running
// a task against a silently shrunken batch hides operator mistakes.
func (b *Builder) BuildFromIDs(ctx context.Context, ids []string) (*Batch, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("device id list must not be empty")
	}
	devices, err := b.dir.ListDevices(ctx, Filter{IDs: ids})
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	byID := make(map[string]Device, len(devices))
	for _, d := range devices {
		byID[d.ID] = d
	}
	batch := &Batch{Entries: make([]Entry, 0, len(ids))}
	for _, id := range ids {
		d, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("device %s: %w", id, util.ErrDeviceNotFound)
		}
		creds, err := b.dir.ResolveCredentials(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("resolving credentials for %s: %w", id, err)
		}
		batch.Entries = append(batch.Entries, Entry{Device: d, Credentials: creds})
	}
	return batch, nil
}

// BuildFromFilter assembles a batch for every device matching the
// filter. An empty result is not an error here; callers decide whether
// an empty fleet slice is meaningful.
func (b *Builder) BuildFromFilter(ctx context.Context, filter Filter) (*Batch, error) {
	devices, err := b.dir.ListDevices(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	batch := &Batch{Entries: make([]Entry, 0, len(devices))}
	for _, d := range devices {
		creds, err := b.dir.ResolveCredentials(ctx, d.ID)
		if err != nil {
			return nil, fmt.Errorf("resolving credentials for %s: %w", d.ID, err)
		}
		batch.Entries = append(batch.Entries, Entry{Device: d, Credentials: creds})
	}
	return batch, nil
}

// Lookup fetches a single device and its credentials.
func (b *Builder) Lookup(ctx context.Context, id string) (Entry, error) {
	batch, err := b.BuildFromIDs(ctx, []string{id})
	if err != nil {
		return Entry{}, err
	}
	return batch.Entries[0], nil
}

// MatchesFilter reports whether a device passes a filter. Exposed for
// directory implementations that filter in memory.
func MatchesFilter(d Device, f Filter) bool {
	if len(f.IDs) > 0 {
		found := false
		for _, id := range f.IDs {
			if d.ID == id {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Platform != "" && d.Platform != f.Platform {
		return false
	}
	if f.Location != "" && d.Location != f.Location {
		return false
	}
	if f.PollingOnly && !d.PollingEnabled {
		return false
	}
	return true
}
