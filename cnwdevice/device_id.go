package cnwdevice

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/CloudNativeWorks/cnw-device-sdk/cnwdevice/clientstore"
)

// DeviceIDEnv overrides the computed device id entirely when set. Useful for
// kiosks and containers whose signals are not stable.
const DeviceIDEnv = "CNW_DEVICE_ID"

// DeviceIdentifier produces the device id: the fingerprint computed once and
// then cached in durable storage.
type DeviceIdentifier struct {
	store  clientstore.Store
	probes Probes
	logger *slog.Logger
}

// NewDeviceIdentifier creates an identifier caching into store.
func NewDeviceIdentifier(store clientstore.Store, probes Probes, logger *slog.Logger) *DeviceIdentifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeviceIdentifier{store: store, probes: probes, logger: logger}
}

// GetOrCreateDeviceID returns the cached id, computing and persisting it if
// absent. A cached id is returned unchanged even if the signals drifted since
// it was computed. It never fails: storage errors only cost the cache.
func (d *DeviceIdentifier) GetOrCreateDeviceID(ctx context.Context) string {
	if id := os.Getenv(DeviceIDEnv); id != "" {
		return id
	}

	cached, err := d.store.Get(ctx, KeyDeviceID)
	if err == nil && cached != "" {
		return cached
	}
	if err != nil && !errors.Is(err, clientstore.ErrNotFound) {
		d.logger.Warn("Failed to read cached device id", "error", err)
	}

	id := ComputeFingerprint(CollectSignals(ctx, d.probes))
	if err := d.store.Set(ctx, KeyDeviceID, id); err != nil {
		d.logger.Warn("Failed to cache device id", "deviceID", id, "error", err)
	} else {
		d.logger.Debug("Device id generated", "deviceID", id)
	}
	return id
}
