package cnwdevice

import "fmt"

// CheckAccess turns the registry's limit decision into an error.
// Returns nil if access is granted, ErrDeviceLimitReached otherwise.
func CheckAccess(limit AccessLimit) error {
	if limit.CanAccess {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrDeviceLimitReached, limit.Summary())
}

// Summary formats the device usage, e.g. "1 of 1 devices active".
func (l AccessLimit) Summary() string {
	return fmt.Sprintf("%d of %d devices active", int(l.ActiveDevices), int(l.MaxDevices))
}

// Remaining returns how many more devices may be admitted. A negative
// value means the account is over its limit.
func (l AccessLimit) Remaining() int {
	return int(l.MaxDevices) - int(l.ActiveDevices)
}
