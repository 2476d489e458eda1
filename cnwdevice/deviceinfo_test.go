package cnwdevice

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CloudNativeWorks/cnw-device-sdk/cnwdevice/clientstore"
)

func TestParseUserAgent(t *testing.T) {
	tests := []struct {
		name    string
		ua      string
		browser string
		os      string
		typ     string
	}{
		{
			"chrome windows",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			"Chrome", "Windows", DeviceTypeDesktop,
		},
		{
			"edge windows",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.2210.61",
			"Edge", "Windows", DeviceTypeDesktop,
		},
		{
			"opera mac",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36 OPR/105.0.0.0",
			"Opera", "macOS", DeviceTypeDesktop,
		},
		{
			"safari mac",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
			"Safari", "macOS", DeviceTypeDesktop,
		},
		{
			"firefox linux",
			"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
			"Firefox", "Linux", DeviceTypeDesktop,
		},
		{
			"chrome android phone",
			"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
			"Chrome", "Android", DeviceTypeMobile,
		},
		{
			"samsung android tablet",
			"Mozilla/5.0 (Linux; Android 13; SM-X700) AppleWebKit/537.36 (KHTML, like Gecko) SamsungBrowser/23.0 Chrome/115.0.0.0 Safari/537.36",
			"Samsung Internet", "Android", DeviceTypeTablet,
		},
		{
			"chrome ipad",
			"Mozilla/5.0 (iPad; CPU OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) CriOS/120.0.6099.119 Mobile/15E148 Safari/604.1",
			"Chrome", "iOS", DeviceTypeTablet,
		},
		{
			"firefox iphone",
			"Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) FxiOS/121.0 Mobile/15E148 Safari/605.1.15",
			"Firefox", "iOS", DeviceTypeMobile,
		},
		{
			"chromebook",
			"Mozilla/5.0 (X11; CrOS x86_64 14541.0.0) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			"Chrome", "ChromeOS", DeviceTypeDesktop,
		},
		{"empty", "", "Unknown browser", "Unknown OS", DeviceTypeDesktop},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := ParseUserAgent(tt.ua)
			assert.Equal(t, tt.browser, info.Browser)
			assert.Equal(t, tt.os, info.OS)
			assert.Equal(t, tt.typ, info.Type)
		})
	}
}

func TestDeviceInfo_Name(t *testing.T) {
	info := DeviceInfo{Browser: "Firefox", OS: "Linux"}
	assert.Equal(t, "Firefox on Linux", info.Name())
	info.Private = true
	assert.Equal(t, "Firefox on Linux (Private)", info.Name())
}

func TestTabDeviceName(t *testing.T) {
	assert.Equal(t, "Chrome on Windows #6789ab", TabDeviceName("Chrome on Windows", "sess_lq2x9k_0123456789ab"))
	assert.Equal(t, "Chrome on Windows", baseDeviceName("Chrome on Windows #6789ab"))
	assert.Equal(t, "Chrome on Windows", baseDeviceName("Chrome on Windows"))
}

func TestDetectPrivateMode(t *testing.T) {
	ctx := context.Background()
	store := clientstore.NewMemoryStore()
	assert.False(t, DetectPrivateMode(ctx, store))
	assert.Zero(t, store.Len(), "probe key must be removed")

	assert.True(t, DetectPrivateMode(ctx, brokenStore{}))
}

func TestGroupDevices(t *testing.T) {
	records := []DeviceRecord{
		{DeviceID: "dev_b", DeviceName: "Safari on macOS #aaaaaa", SessionToken: "s1"},
		{DeviceID: "dev_a", DeviceName: "Chrome on Windows #bbbbbb", SessionToken: "s2", IsActive: true},
		{DeviceID: "dev_c", DeviceName: "Firefox on Linux #cccccc", SessionToken: "s3", IsActive: true},
		{DeviceID: "dev_a", DeviceName: "Chrome on Windows #dddddd", SessionToken: "s4"},
	}

	groups := GroupDevices(records, "dev_c")
	require.Len(t, groups, 3)

	assert.Equal(t, "dev_c", groups[0].DeviceID)
	assert.True(t, groups[0].Current)
	assert.Equal(t, "dev_b", groups[1].DeviceID)
	assert.False(t, groups[1].Active)
	assert.Equal(t, "Safari on macOS", groups[1].Name)
	assert.Equal(t, "dev_a", groups[2].DeviceID)
	assert.True(t, groups[2].Active)
	assert.Len(t, groups[2].Sessions, 2)
	assert.Equal(t, "Chrome on Windows", groups[2].Name)
}

func TestGroupDevices_NoCurrent(t *testing.T) {
	groups := GroupDevices([]DeviceRecord{{DeviceID: "dev_a"}}, "")
	require.Len(t, groups, 1)
	assert.False(t, groups[0].Current)
	assert.Empty(t, GroupDevices(nil, "dev_a"))
}
