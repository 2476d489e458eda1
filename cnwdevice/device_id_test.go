package cnwdevice

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CloudNativeWorks/cnw-device-sdk/cnwdevice/clientstore"
)

// brokenStore fails every operation, like storage in a locked-down
// private browsing session.
type brokenStore struct{}

var errStorageUnavailable = errors.New("storage unavailable")

func (brokenStore) Get(context.Context, string) (string, error) { return "", errStorageUnavailable }
func (brokenStore) Set(context.Context, string, string) error { return errStorageUnavailable }
func (brokenStore) Delete(context.Context, string) error { return errStorageUnavailable }
func (brokenStore) Close(context.Context) error { return nil }

func sampleProbes() Probes {
	b := sampleBundle()
	return Probes{
		Canvas: Static(b.Canvas), Screen: Static(b.Screen), Timezone: Static(b.Timezone),
		Languages: Static(b.Languages), Platform: Static(b.Platform),
		HardwareConcurrency: Static(b.HardwareConcurrency), DeviceMemory: Static(b.DeviceMemory),
		TouchPoints: Static(b.TouchPoints), WebGLVendor: Static(b.WebGLVendor),
		WebGLRenderer: Static(b.WebGLRenderer), Audio: Static(b.Audio),
		Fonts: Static(b.Fonts), UserAgent: Static(b.UserAgent),
	}
}

func TestGetOrCreateDeviceID_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := clientstore.NewMemoryStore()
	d := NewDeviceIdentifier(store, sampleProbes(), nil)

	id1 := d.GetOrCreateDeviceID(ctx)
	id2 := d.GetOrCreateDeviceID(ctx)
	assert.Equal(t, "dev_v28qbe_i7gt19_kac8ee", id1)
	assert.Equal(t, id1, id2)

	cached, err := store.Get(ctx, KeyDeviceID)
	require.NoError(t, err)
	assert.Equal(t, id1, cached)
}

func TestGetOrCreateDeviceID_CachedSurvivesSignalDrift(t *testing.T) {
	ctx := context.Background()
	store := clientstore.NewMemoryStore()
	id := NewDeviceIdentifier(store, sampleProbes(), nil).GetOrCreateDeviceID(ctx)

	drifted := sampleProbes()
	drifted.Fonts = Static("Arial,Verdana,NewFont")
	again := NewDeviceIdentifier(store, drifted, nil).GetOrCreateDeviceID(ctx)
	assert.Equal(t, id, again)
}

func TestGetOrCreateDeviceID_RegeneratedWhenCacheCleared(t *testing.T) {
	ctx := context.Background()
	store := clientstore.NewMemoryStore()
	d := NewDeviceIdentifier(store, sampleProbes(), nil)
	id := d.GetOrCreateDeviceID(ctx)

	store.Clear()
	assert.Equal(t, id, d.GetOrCreateDeviceID(ctx), "same signals must give the same id")
}

func TestGetOrCreateDeviceID_StorageFailure(t *testing.T) {
	d := NewDeviceIdentifier(brokenStore{}, sampleProbes(), nil)
	assert.Equal(t, "dev_v28qbe_i7gt19_kac8ee", d.GetOrCreateDeviceID(context.Background()))
}

func TestGetOrCreateDeviceID_EnvOverride(t *testing.T) {
	const custom = "custom-device-from-env"
	t.Setenv(DeviceIDEnv, custom)

	store := clientstore.NewMemoryStore()
	d := NewDeviceIdentifier(store, sampleProbes(), nil)
	assert.Equal(t, custom, d.GetOrCreateDeviceID(context.Background()))
	assert.Equal(t, 0, store.Len(), "override must not be cached")
}
