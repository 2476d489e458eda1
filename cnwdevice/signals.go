package cnwdevice

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Probe reads one fingerprint signal. A probe that returns an error, an
// empty string or panics yields UnknownSignal.
type Probe func(ctx context.Context) (string, error)

// Probes is the set of signal readers used to build a SignalBundle. A nil
// probe means the signal is unavailable on this platform.
type Probes struct {
	Canvas              Probe
	Screen              Probe
	Timezone            Probe
	Languages           Probe
	Platform            Probe
	HardwareConcurrency Probe
	DeviceMemory        Probe
	TouchPoints         Probe
	WebGLVendor         Probe
	WebGLRenderer       Probe
	Audio               Probe
	Fonts               Probe
	UserAgent           Probe
}

// CollectSignals runs every probe. It never fails: unreadable signals are
// replaced by UnknownSignal so the id stays deterministic, just with less
// entropy.
func CollectSignals(ctx context.Context, p Probes) SignalBundle {
	return SignalBundle{
		Canvas:              readSignal(ctx, p.Canvas),
		Screen:              readSignal(ctx, p.Screen),
		Timezone:            readSignal(ctx, p.Timezone),
		Languages:           readSignal(ctx, p.Languages),
		Platform:            readSignal(ctx, p.Platform),
		HardwareConcurrency: readSignal(ctx, p.HardwareConcurrency),
		DeviceMemory:        readSignal(ctx, p.DeviceMemory),
		TouchPoints:         readSignal(ctx, p.TouchPoints),
		WebGLVendor:         readSignal(ctx, p.WebGLVendor),
		WebGLRenderer:       readSignal(ctx, p.WebGLRenderer),
		Audio:               readSignal(ctx, p.Audio),
		Fonts:               readSignal(ctx, p.Fonts),
		UserAgent:           readSignal(ctx, p.UserAgent),
	}
}

func readSignal(ctx context.Context, probe Probe) (value string) {
	if probe == nil {
		return UnknownSignal
	}
	defer func() {
		if r := recover(); r != nil {
			value = UnknownSignal
		}
	}()
	v, err := probe(ctx)
	if err != nil || strings.TrimSpace(v) == "" {
		return UnknownSignal
	}
	return v
}

// Static returns a probe that always yields v.
func Static(v string) Probe {
	return func(context.Context) (string, error) {
		return v, nil
	}
}

// HostProbes returns the probes a Go process can answer on its own.
// Display, WebGL, audio, touch and font probes stay nil; embedders running
// inside a browser bridge or webview should supply them.
//
// There is no canvas on a host, so the canvas slot carries the machine
// identity instead (machine-id plus sorted MAC addresses), which fills the
// same role of a high-entropy per-device value.
func HostProbes(userAgent string) Probes {
	p := Probes{
		Canvas:              machineIdentity,
		Timezone:            hostTimezone,
		Languages:           hostLanguages,
		Platform:            Static(runtime.GOOS + "/" + runtime.GOARCH),
		HardwareConcurrency: Static(strconv.Itoa(runtime.NumCPU())),
		DeviceMemory:        hostDeviceMemory,
	}
	if userAgent != "" {
		p.UserAgent = Static(userAgent)
	}
	return p
}

// machineIdentity combines /etc/machine-id (Linux) and MAC addresses.
func machineIdentity(context.Context) (string, error) {
	var parts []string
	if machineID, err := os.ReadFile("/etc/machine-id"); err == nil {
		if id := strings.TrimSpace(string(machineID)); id != "" {
			parts = append(parts, id)
		}
	}
	if macs, err := getMACAddresses(); err == nil {
		parts = append(parts, macs...)
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("no machine identity available")
	}
	return strings.Join(parts, ","), nil
}

// getMACAddresses returns sorted, non-loopback hardware MAC addresses.
func getMACAddresses() ([]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var macs []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		mac := iface.HardwareAddr.String()
		if mac == "" {
			continue
		}
		macs = append(macs, mac)
	}
	sort.Strings(macs)
	return macs, nil
}

// hostTimezone prefers the IANA name from TZ, then the local zone.
func hostTimezone(context.Context) (string, error) {
	if tz := os.Getenv("TZ"); tz != "" {
		return strings.TrimPrefix(tz, ":"), nil
	}
	if name := time.Local.String(); name != "" && name != "Local" {
		return name, nil
	}
	name, offset := time.Now().Zone()
	return fmt.Sprintf("%s%+d", name, offset/60), nil
}

// hostLanguages mirrors navigator.languages from POSIX locale variables,
// e.g. LANG=fr_FR.UTF-8 gives "fr-FR".
func hostLanguages(context.Context) (string, error) {
	var langs []string
	seen := make(map[string]bool)
	add := func(v string) {
		v, _, _ = strings.Cut(v, ".")
		v, _, _ = strings.Cut(v, "@")
		v = strings.ReplaceAll(v, "_", "-")
		if v == "" || v == "C" || v == "POSIX" || seen[v] {
			return
		}
		seen[v] = true
		langs = append(langs, v)
	}
	for _, l := range strings.Split(os.Getenv("LANGUAGE"), ":") {
		add(l)
	}
	add(os.Getenv("LC_ALL"))
	add(os.Getenv("LANG"))
	if len(langs) == 0 {
		return "", fmt.Errorf("no locale configured")
	}
	return strings.Join(langs, ","), nil
}

// hostDeviceMemory reports RAM the way navigator.deviceMemory does: GiB
// rounded down to a power of two and clamped to [0.25, 8].
func hostDeviceMemory(context.Context) (string, error) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 || fields[0] != "MemTotal:" {
			continue
		}
		kb, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return "", err
		}
		return deviceMemoryBucket(kb / (1024 * 1024)), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("MemTotal not found")
}

func deviceMemoryBucket(gib float64) string {
	bucket := 0.25
	for bucket*2 <= gib && bucket < 8 {
		bucket *= 2
	}
	return strconv.FormatFloat(bucket, 'f', -1, 64)
}
