package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"github.com/CloudNativeWorks/cnw-device-sdk/cnwdevice"
)

// consoleHost stands in for the browser: it reports blocks and redirects on
// the terminal and ends the process's session when asked to go to login.
type consoleHost struct {
	out      io.Writer
	redirect chan cnwdevice.TerminationReason
}

func newConsoleHost(out io.Writer) *consoleHost {
	return &consoleHost{out: out, redirect: make(chan cnwdevice.TerminationReason, 1)}
}

func (h *consoleHost) RedirectToLogin(reason cnwdevice.TerminationReason) {
	fmt.Fprintf(h.out, "Session ended (%s), please sign in again.\n", reason)
	select {
	case h.redirect <- reason:
	default:
	}
}

func (h *consoleHost) NotifyBlocked(limit cnwdevice.AccessLimit) {
	fmt.Fprintf(h.out, "Device limit reached: %s.\n", limit.Summary())
	fmt.Fprintln(h.out, "Remove a device with `cnw-device remove` and try again.")
}

func (h *consoleHost) NotifyError(message string) {
	fmt.Fprintln(h.out, message)
}

func (h *consoleHost) BroadcastUser(u cnwdevice.User) {
	slog.Debug("User refreshed", "userID", u.ID.String(), "licenseCount", int(u.LicenseCount))
}

// defaultUserAgent describes this host in the browser/OS vocabulary the
// registry's device names use.
func defaultUserAgent(version string) string {
	platform := map[string]string{
		"windows": "Windows NT 10.0",
		"darwin":  "Macintosh; Mac OS X",
		"linux":   "X11; Linux",
	}[runtime.GOOS]
	if platform == "" {
		platform = runtime.GOOS
	}
	return fmt.Sprintf("cnw-device/%s (%s; %s)", version, platform, runtime.GOARCH)
}

func printDevices(out io.Writer, groups []cnwdevice.DeviceGroup) {
	if len(groups) == 0 {
		fmt.Fprintln(out, "No devices registered.")
		return
	}
	for _, g := range groups {
		markers := []string{}
		if g.Current {
			markers = append(markers, "this device")
		}
		if g.Active {
			markers = append(markers, "active")
		}
		line := fmt.Sprintf("%s  %s", g.DeviceID, g.Name)
		if len(markers) > 0 {
			line += "  [" + strings.Join(markers, ", ") + "]"
		}
		fmt.Fprintln(out, line)
		for _, s := range g.Sessions {
			last := "never"
			if t, ok := s.LastAccessTime(); ok {
				last = t.Local().Format("2006-01-02 15:04")
			}
			state := "inactive"
			if s.IsActive {
				state = "active"
			}
			fmt.Fprintf(out, "    %s  %s  last seen %s\n", s.DeviceName, state, last)
		}
	}
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}
