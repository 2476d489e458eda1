package cnwdevice

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollectSignals_UnavailableSignals(t *testing.T) {
	ctx := context.Background()
	bundle := CollectSignals(ctx, Probes{
		Canvas:   func(context.Context) (string, error) { return "", errors.New("canvas blocked") },
		Screen:   func(context.Context) (string, error) { panic("no display") },
		Timezone: Static("   "),
		Platform: Static("Linux x86_64"),
	})

	assert.Equal(t, UnknownSignal, bundle.Canvas)
	assert.Equal(t, UnknownSignal, bundle.Screen)
	assert.Equal(t, UnknownSignal, bundle.Timezone)
	assert.Equal(t, "Linux x86_64", bundle.Platform)
	assert.Equal(t, UnknownSignal, bundle.WebGLRenderer)
	assert.Equal(t, UnknownSignal, bundle.UserAgent)
}

func TestCollectSignals_NoProbes(t *testing.T) {
	bundle := CollectSignals(context.Background(), Probes{})
	assert.Equal(t, unknownBundle(), bundle)
	assert.Equal(t, "dev_wmrzta_u3pw11_dghkya", ComputeFingerprint(bundle))
}

func TestHostProbes_Deterministic(t *testing.T) {
	ctx := context.Background()
	p := HostProbes("cnw-test-agent")
	a := CollectSignals(ctx, p)
	b := CollectSignals(ctx, p)
	assert.Equal(t, a, b)
	assert.Equal(t, "cnw-test-agent", a.UserAgent)
	assert.NotEqual(t, UnknownSignal, a.Platform)
	assert.NotEqual(t, UnknownSignal, a.HardwareConcurrency)
	assert.Equal(t, UnknownSignal, a.WebGLVendor)
}

func TestHostLanguages(t *testing.T) {
	t.Setenv("LANGUAGE", "fr_FR:en_US")
	t.Setenv("LC_ALL", "")
	t.Setenv("LANG", "fr_FR.UTF-8")

	got, err := hostLanguages(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "fr-FR,en-US", got)
}

func TestHostLanguages_None(t *testing.T) {
	t.Setenv("LANGUAGE", "")
	t.Setenv("LC_ALL", "C")
	t.Setenv("LANG", "")

	_, err := hostLanguages(context.Background())
	assert.Error(t, err)
}

func TestHostTimezone_FromEnv(t *testing.T) {
	t.Setenv("TZ", ":Europe/Paris")
	got, err := hostTimezone(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "Europe/Paris", got)
}

func TestDeviceMemoryBucket(t *testing.T) {
	tests := []struct {
		gib  float64
		want string
	}{
		{0.1, "0.25"},
		{0.6, "0.5"},
		{3.8, "2"},
		{7.7, "4"},
		{16, "8"},
		{64, "8"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, deviceMemoryBucket(tt.gib), "gib=%v", tt.gib)
	}
}
