package cnwdevice

import (
	"regexp"
	"strings"
	"testing"
	"unicode/utf16"
)

var fingerprintPattern = regexp.MustCompile(`^dev_[0-9a-z]+_[0-9a-z]+_[0-9a-z]+$`)

func unknownBundle() SignalBundle {
	return SignalBundle{
		Canvas: UnknownSignal, Screen: UnknownSignal, Timezone: UnknownSignal,
		Languages: UnknownSignal, Platform: UnknownSignal, HardwareConcurrency: UnknownSignal,
		DeviceMemory: UnknownSignal, TouchPoints: UnknownSignal, WebGLVendor: UnknownSignal,
		WebGLRenderer: UnknownSignal, Audio: UnknownSignal, Fonts: UnknownSignal,
		UserAgent: UnknownSignal,
	}
}

func sampleBundle() SignalBundle {
	return SignalBundle{
		Canvas:              "canvas-data",
		Screen:              "1920x1080x24",
		Timezone:            "Europe/Paris",
		Languages:           "fr-FR,en-US",
		Platform:            "Win32",
		HardwareConcurrency: "8",
		DeviceMemory:        "8",
		TouchPoints:         "0",
		WebGLVendor:         "Google Inc.",
		WebGLRenderer:       "ANGLE (NVIDIA)",
		Audio:               "124.04",
		Fonts:               "Arial,Verdana",
		UserAgent:           "Mozilla/5.0 (Windows NT 10.0; Win64; x64)",
	}
}

func TestRollingHashes(t *testing.T) {
	tests := []struct {
		in              string
		mul, djb2, sdbm int32
	}{
		{in: "a", mul: 97, djb2: 177670, sdbm: 97},
		{in: "hello", mul: 99162322, djb2: 261238937, sdbm: 684824882},
		// surrogate pair: two UTF-16 code units, sdbm overflows negative
		{in: "😀", mul: 1772899, djb2: 7743522, sdbm: -663546621},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			units := utf16.Encode([]rune(tt.in))
			if got := hashMultiplicative(units); got != tt.mul {
				t.Errorf("hashMultiplicative(%q) = %d, want %d", tt.in, got, tt.mul)
			}
			if got := hashDJB2(units); got != tt.djb2 {
				t.Errorf("hashDJB2(%q) = %d, want %d", tt.in, got, tt.djb2)
			}
			if got := hashSDBM(units); got != tt.sdbm {
				t.Errorf("hashSDBM(%q) = %d, want %d", tt.in, got, tt.sdbm)
			}
		})
	}
}

func TestBase36Abs(t *testing.T) {
	if got := base36Abs(97); got != "2p" {
		t.Errorf("base36Abs(97) = %q, want 2p", got)
	}
	if got := base36Abs(-663546621); got != "az23ul" {
		t.Errorf("base36Abs(-663546621) = %q, want az23ul", got)
	}
	// MinInt32 must not overflow when negated
	if got := base36Abs(-2147483648); got != "zik0zk" {
		t.Errorf("base36Abs(MinInt32) = %q, want zik0zk", got)
	}
}

func TestComputeFingerprint_KnownValues(t *testing.T) {
	if got := ComputeFingerprint(unknownBundle()); got != "dev_wmrzta_u3pw11_dghkya" {
		t.Errorf("all-unknown fingerprint = %q", got)
	}
	if got := ComputeFingerprint(sampleBundle()); got != "dev_v28qbe_i7gt19_kac8ee" {
		t.Errorf("sample fingerprint = %q", got)
	}
}

func TestComputeFingerprint_Format(t *testing.T) {
	fp := ComputeFingerprint(sampleBundle())
	if !fingerprintPattern.MatchString(fp) {
		t.Errorf("fingerprint %q does not match %s", fp, fingerprintPattern)
	}
}

func TestComputeFingerprint_Deterministic(t *testing.T) {
	fp1 := ComputeFingerprint(sampleBundle())
	fp2 := ComputeFingerprint(sampleBundle())
	if fp1 != fp2 {
		t.Errorf("fingerprint should be deterministic: %s != %s", fp1, fp2)
	}
}

func TestComputeFingerprint_SignalSensitive(t *testing.T) {
	base := ComputeFingerprint(sampleBundle())
	changed := sampleBundle()
	changed.Screen = "2560x1440x24"
	if ComputeFingerprint(changed) == base {
		t.Error("changing the screen signal should change the fingerprint")
	}
}

func TestComputeFingerprint_UserAgentTruncated(t *testing.T) {
	a := sampleBundle()
	a.UserAgent = strings.Repeat("x", maxUserAgentSignal) + "suffix-A"
	b := sampleBundle()
	b.UserAgent = strings.Repeat("x", maxUserAgentSignal) + "suffix-B"
	if ComputeFingerprint(a) != ComputeFingerprint(b) {
		t.Error("user agent beyond the truncation limit must not affect the fingerprint")
	}
}

func TestTruncateUTF16(t *testing.T) {
	if got := truncateUTF16("short", 10); got != "short" {
		t.Errorf("truncateUTF16 short = %q", got)
	}
	if got := truncateUTF16("abcdef", 3); got != "abc" {
		t.Errorf("truncateUTF16 = %q, want abc", got)
	}
}
