package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/afterword/afterword/internal/kv"
)

const deviceKey = "device_id"

// DeviceID returns this installation's device id, generating and storing
// a random one on first use. The backend holds edit locks per device.
func DeviceID(ctx context.Context, s kv.Store) (string, error) {
	id, ok, err := s.Get(ctx, deviceKey)
	if err != nil {
		return "", fmt.Errorf("reading device id: %w", err)
	}
	if ok && id != "" {
		return id, nil
	}
	id = uuid.NewString()
	if err := s.Set(ctx, deviceKey, id, 0); err != nil {
		return "", fmt.Errorf("storing device id: %w", err)
	}
	return id, nil
}
