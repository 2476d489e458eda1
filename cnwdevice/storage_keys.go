package cnwdevice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/CloudNativeWorks/cnw-device-sdk/cnwdevice/clientstore"
)

// Durable storage keys.
const (
	// KeyDeviceID caches the fingerprint. Bump the version suffix to force
	// every client to derive a fresh id.
	KeyDeviceID = "cnw_device_id_v2"

	KeySessionToken        = "cnw_session_token"
	KeyUser                = "cnw_user"
	KeyRememberedEmail     = "cnw_remembered_email"
	KeyRememberedPassword  = "cnw_remembered_password"
	keyPrivateModeProbe    = "cnw_storage_probe"
	privateModeProbeMarker = "1"
)

// Tab-scoped storage keys.
const (
	KeyActiveSession = "cnw_active_session"
	KeyTabSession    = "cnw_tab_session"
)

// Credentials is the opt-in "remember me" pair kept in durable storage.
type Credentials struct {
	Email    string
	Password string
}

// RememberCredentials stores creds in durable storage.
func RememberCredentials(ctx context.Context, store clientstore.Store, creds Credentials) error {
	if err := store.Set(ctx, KeyRememberedEmail, creds.Email); err != nil {
		return fmt.Errorf("remember email: %w", err)
	}
	if err := store.Set(ctx, KeyRememberedPassword, creds.Password); err != nil {
		return fmt.Errorf("remember password: %w", err)
	}
	return nil
}

// RecalledCredentials returns the remembered pair. ok is false when nothing
// was remembered.
func RecalledCredentials(ctx context.Context, store clientstore.Store) (creds Credentials, ok bool, err error) {
	email, err := store.Get(ctx, KeyRememberedEmail)
	if errors.Is(err, clientstore.ErrNotFound) {
		return Credentials{}, false, nil
	}
	if err != nil {
		return Credentials{}, false, err
	}
	password, err := store.Get(ctx, KeyRememberedPassword)
	if err != nil && !errors.Is(err, clientstore.ErrNotFound) {
		return Credentials{}, false, err
	}
	return Credentials{Email: email, Password: password}, true, nil
}

// ForgetCredentials removes the remembered pair.
func ForgetCredentials(ctx context.Context, store clientstore.Store) error {
	return errors.Join(
		store.Delete(ctx, KeyRememberedEmail),
		store.Delete(ctx, KeyRememberedPassword),
	)
}

// CachedUser reads the user record cached in durable storage.
func CachedUser(ctx context.Context, store clientstore.Store) (*User, error) {
	raw, err := store.Get(ctx, KeyUser)
	if err != nil {
		return nil, err
	}
	var u User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return nil, fmt.Errorf("decode cached user: %w", err)
	}
	return &u, nil
}

func cacheUser(ctx context.Context, store clientstore.Store, u User) error {
	raw, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	return store.Set(ctx, KeyUser, string(raw))
}
