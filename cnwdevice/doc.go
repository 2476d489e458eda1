// Package cnwdevice enforces per-user device limits for the CNW platform.
//
// Install with:
//
//	go get github.com/CloudNativeWorks/cnw-device-sdk/cnwdevice
//
// A device is identified by a fingerprint derived from hardware and software
// signals. A remote registry decides how many devices a user may hold; the
// client asks it before a session starts and keeps checking while the
// session lives:
//
//   - RegistryClient talks to the registry HTTP API
//   - Controller runs one session: admission, heartbeat, revocation checks
//     and user refresh
//   - ComputeFingerprint and DeviceIdentifier produce the device id
//
// # Quick Start
//
//	registry := cnwdevice.NewRegistryClient("https://app.example.com/api")
//	ctrl, err := cnwdevice.NewController(registry, cnwdevice.Env{
//	    Durable:   clientstore.NewMemoryStore(),
//	    Tab:       clientstore.NewMemoryStore(),
//	    Navigator: nav,
//	    Probes:    cnwdevice.HostProbes(userAgent),
//	})
//	if err := ctrl.Start(ctx, user); errors.Is(err, cnwdevice.ErrDeviceLimitReached) {
//	    // blocked: the user must free a device first
//	}
//	<-ctrl.Done()
//
// # Storage
//
// Durable state (cached device id, session token, cached user) lives in a
// clientstore.Store. Memory, JSON file, PostgreSQL, MongoDB and Redis
// backends are provided.
package cnwdevice
