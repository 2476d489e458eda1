package cnwdevice

import (
	"strconv"
	"strings"
	"unicode/utf16"
)

const (
	// UnknownSignal replaces any signal that cannot be read.
	UnknownSignal = "unknown"

	fingerprintTag     = "dev"
	signalDelimiter    = "|"
	maxUserAgentSignal = 100
)

const djb2Seed int32 = 5381

// SignalBundle holds the hardware and software signals a device id is
// derived from. Field order is part of the id format: changing it changes
// every device id already held by the registry.
type SignalBundle struct {
	Canvas              string
	Screen              string
	Timezone            string
	Languages           string
	Platform            string
	HardwareConcurrency string
	DeviceMemory        string
	TouchPoints         string
	WebGLVendor         string
	WebGLRenderer       string
	Audio               string
	Fonts               string
	UserAgent           string
}

func (s SignalBundle) values() []string {
	return []string{
		s.Canvas,
		s.Screen,
		s.Timezone,
		s.Languages,
		s.Platform,
		s.HardwareConcurrency,
		s.DeviceMemory,
		s.TouchPoints,
		s.WebGLVendor,
		s.WebGLRenderer,
		s.Audio,
		s.Fonts,
		truncateUTF16(s.UserAgent, maxUserAgentSignal),
	}
}

// ComputeFingerprint derives the device id from a signal bundle:
//
//	dev_<h1>_<h2>_<h3>
//
// where each h is the base-36 absolute value of a 32-bit rolling hash over
// the "|"-joined signals. The hashes walk UTF-16 code units and wrap at 32
// bits so the result matches ids produced by the browser build.
func ComputeFingerprint(s SignalBundle) string {
	units := utf16.Encode([]rune(strings.Join(s.values(), signalDelimiter)))
	return strings.Join([]string{
		fingerprintTag,
		base36Abs(hashMultiplicative(units)),
		base36Abs(hashDJB2(units)),
		base36Abs(hashSDBM(units)),
	}, "_")
}

// hashMultiplicative is h*31 + c.
func hashMultiplicative(units []uint16) int32 {
	var h int32
	for _, c := range units {
		h = (h << 5) - h + int32(c)
	}
	return h
}

// hashDJB2 is h*33 + c seeded with 5381.
func hashDJB2(units []uint16) int32 {
	h := djb2Seed
	for _, c := range units {
		h = (h << 5) + h + int32(c)
	}
	return h
}

// hashSDBM is c + h<<6 + h<<16 - h.
func hashSDBM(units []uint16) int32 {
	var h int32
	for _, c := range units {
		h = int32(c) + (h << 6) + (h << 16) - h
	}
	return h
}

func base36Abs(h int32) string {
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return strconv.FormatInt(v, 36)
}

func truncateUTF16(s string, n int) string {
	units := utf16.Encode([]rune(s))
	if len(units) <= n {
		return s
	}
	return string(utf16.Decode(units[:n]))
}
