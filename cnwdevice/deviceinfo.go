package cnwdevice

import (
	"context"
	"sort"
	"strings"

	"github.com/CloudNativeWorks/cnw-device-sdk/cnwdevice/clientstore"
)

// Device types reported to the registry.
const (
	DeviceTypeDesktop = "desktop"
	DeviceTypeMobile  = "mobile"
	DeviceTypeTablet  = "tablet"
)

// DeviceInfo is the human-facing metadata sent with a registration.
type DeviceInfo struct {
	Type    string
	Browser string
	OS      string
	Screen  string
	Private bool
}

// ParseUserAgent derives device type, browser and OS from a user agent.
// Order matters: Edge and Opera also announce Chrome, Chrome announces Safari.
func ParseUserAgent(ua string) DeviceInfo {
	l := strings.ToLower(ua)
	info := DeviceInfo{
		Type:    DeviceTypeDesktop,
		Browser: "Unknown browser",
		OS:      "Unknown OS",
	}

	switch {
	case strings.Contains(l, "edg/") || strings.Contains(l, "edge/"):
		info.Browser = "Edge"
	case strings.Contains(l, "opr/") || strings.Contains(l, "opera"):
		info.Browser = "Opera"
	case strings.Contains(l, "samsungbrowser"):
		info.Browser = "Samsung Internet"
	case strings.Contains(l, "firefox/") || strings.Contains(l, "fxios"):
		info.Browser = "Firefox"
	case strings.Contains(l, "chrome/") || strings.Contains(l, "crios"):
		info.Browser = "Chrome"
	case strings.Contains(l, "safari/"):
		info.Browser = "Safari"
	}

	switch {
	case strings.Contains(l, "windows"):
		info.OS = "Windows"
	case strings.Contains(l, "iphone") || strings.Contains(l, "ipad") || strings.Contains(l, "ipod"):
		info.OS = "iOS"
	case strings.Contains(l, "mac os") || strings.Contains(l, "macintosh"):
		info.OS = "macOS"
	case strings.Contains(l, "android"):
		info.OS = "Android"
	case strings.Contains(l, "cros "):
		info.OS = "ChromeOS"
	case strings.Contains(l, "linux"):
		info.OS = "Linux"
	}

	switch {
	case strings.Contains(l, "ipad") || strings.Contains(l, "tablet") ||
		(strings.Contains(l, "android") && !strings.Contains(l, "mobile")):
		info.Type = DeviceTypeTablet
	case strings.Contains(l, "mobi") || strings.Contains(l, "iphone") || strings.Contains(l, "ipod"):
		info.Type = DeviceTypeMobile
	}
	return info
}

// Name is the default display name, e.g. "Chrome on Windows (Private)".
func (i DeviceInfo) Name() string {
	name := i.Browser + " on " + i.OS
	if i.Private {
		name += " (Private)"
	}
	return name
}

// TabDeviceName suffixes base with the tail of the tab's session token so
// several tabs on one device stay distinguishable in a device list.
func TabDeviceName(base, sessionToken string) string {
	return base + " #" + tokenTail(sessionToken)
}

// DetectPrivateMode guesses whether durable storage is unusable, as in
// private browsing. The result only tags the device name.
func DetectPrivateMode(ctx context.Context, store clientstore.Store) bool {
	if err := store.Set(ctx, keyPrivateModeProbe, privateModeProbeMarker); err != nil {
		return true
	}
	v, err := store.Get(ctx, keyPrivateModeProbe)
	_ = store.Delete(ctx, keyPrivateModeProbe)
	return err != nil || v != privateModeProbeMarker
}

// DeviceGroup is every record sharing one fingerprint, i.e. one physical
// device with possibly several tab sessions.
type DeviceGroup struct {
	DeviceID string
	Name     string
	Sessions []DeviceRecord
	Active   bool // at least one session is active
	Current  bool // the device this process runs on
}

// GroupDevices groups records by device id for display. Groups keep the
// order in which their first record appears; the current device sorts first.
func GroupDevices(records []DeviceRecord, currentDeviceID string) []DeviceGroup {
	index := make(map[string]int)
	var groups []DeviceGroup
	for _, r := range records {
		i, ok := index[r.DeviceID]
		if !ok {
			i = len(groups)
			index[r.DeviceID] = i
			groups = append(groups, DeviceGroup{
				DeviceID: r.DeviceID,
				Name:     baseDeviceName(r.DeviceName),
				Current:  currentDeviceID != "" && r.DeviceID == currentDeviceID,
			})
		}
		groups[i].Sessions = append(groups[i].Sessions, r)
		if r.IsActive {
			groups[i].Active = true
		}
	}
	sort.SliceStable(groups, func(a, b int) bool {
		return groups[a].Current && !groups[b].Current
	})
	return groups
}

// baseDeviceName strips the " #xxxxxx" tab suffix added by TabDeviceName.
func baseDeviceName(name string) string {
	if i := strings.LastIndex(name, " #"); i > 0 {
		return name[:i]
	}
	return name
}
