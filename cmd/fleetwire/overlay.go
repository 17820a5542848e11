package main

import (
	"context"

	"github.com/fleetwire-net/fleetwire/pkg/inventory"
)

// inventoryOverlay substitutes one device's password over the backing
// directory, for --ask-password.
type inventoryOverlay struct {
	inventory.Directory
	deviceID string
	password string
}

func (o inventoryOverlay) ResolveCredentials(ctx context.Context, deviceID string) (inventory.Credentials, error) {
	creds, err := o.Directory.ResolveCredentials(ctx, deviceID)
	if err != nil {
		return creds, err
	}
	if deviceID == o.deviceID {
		creds.Password = o.password
	}
	return creds, nil
}

func rebuildBuilder() {
	builder = inventory.NewBuilder(directory)
}
