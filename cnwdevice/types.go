package cnwdevice

import (
	"encoding/json"
	"time"
)

// AccessLimit is the registry's decision for the
// /devices?action=check-device-limit endpoint.
type AccessLimit struct {
	CanAccess     FlexBool `json:"can_access"`
	ActiveDevices FlexInt  `json:"active_devices"`
	MaxDevices    FlexInt  `json:"max_devices"`
}

// DeviceRecord is one row of the remote device registry. A physical device
// has one fingerprint (DeviceID) but may own several records, one per tab
// session, each with its own SessionToken.
type DeviceRecord struct {
	ID               FlexString `json:"id,omitempty"`
	UserID           FlexString `json:"user_id"`
	DeviceID         string     `json:"device_id"`
	DeviceName       string     `json:"device_name"`
	DeviceType       string     `json:"device_type,omitempty"`
	Browser          string     `json:"browser,omitempty"`
	OS               string     `json:"os,omitempty"`
	ScreenResolution string     `json:"screen_resolution,omitempty"`
	IPAddress        string     `json:"ip_address,omitempty"`
	LastAccess       string     `json:"last_access,omitempty"`
	SessionToken     string     `json:"session_token,omitempty"`
	IsActive         FlexBool   `json:"is_active"`
}

// LastAccessTime parses LastAccess. ok is false when it is empty or malformed.
func (r DeviceRecord) LastAccessTime() (t time.Time, ok bool) {
	return ParseTimestamp(r.LastAccess)
}

// DeviceRegistration is the request body for /devices?action=register.
// UpdateExisting is always sent as true: whether the registry upserts or adds
// a row is its own decision.
type DeviceRegistration struct {
	UserID           string `json:"user_id"`
	DeviceID         string `json:"device_id"`
	DeviceName       string `json:"device_name"`
	DeviceType       string `json:"device_type"`
	Browser          string `json:"browser"`
	OS               string `json:"os"`
	ScreenResolution string `json:"screen_resolution"`
	SessionToken     string `json:"session_token"`
	UpdateExisting   bool   `json:"update_existing"`
}

// RegisterResult is what the registry answers to a registration.
type RegisterResult struct {
	Success FlexBool   `json:"success"`
	ID      FlexString `json:"id,omitempty"`
	Message string     `json:"message,omitempty"`
}

type removeRequest struct {
	UserID       string `json:"user_id"`
	DeviceID     string `json:"device_id"`
	SessionToken string `json:"session_token"`
}

type heartbeatRequest struct {
	SessionToken string `json:"session_token"`
}

type updateNameRequest struct {
	UserID   string `json:"user_id"`
	DeviceID string `json:"device_id"`
	Name     string `json:"name"`
}

// User is the account record as cached on the client.
type User struct {
	ID              FlexString                 `json:"id"`
	Email           string                     `json:"email,omitempty"`
	Name            string                     `json:"name,omitempty"`
	IsAdmin         FlexBool                   `json:"is_admin"`
	LicenseCount    FlexInt                    `json:"license_count"`
	AccessExpiresAt string                     `json:"access_expires_at,omitempty"`
	Progress        map[string]json.RawMessage `json:"progress,omitempty"`
	Favorites       json.RawMessage            `json:"favorites,omitempty"`
}

// ExpiresAt parses AccessExpiresAt. ok is false when the user has no expiry.
func (u User) ExpiresAt() (t time.Time, ok bool) {
	return ParseTimestamp(u.AccessExpiresAt)
}

// AccessExpired reports whether the user's paid access ended before now.
func (u User) AccessExpired(now time.Time) bool {
	t, ok := u.ExpiresAt()
	return ok && t.Before(now)
}

// SessionInfo describes the session held by a Controller.
type SessionInfo struct {
	UserID       string
	DeviceID     string
	SessionToken string
	DeviceName   string
	Exempt       bool // admin session, no device enforcement
	StartedAt    time.Time
}
