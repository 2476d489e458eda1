package cnwdevice

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/CloudNativeWorks/cnw-device-sdk/cnwdevice/clientstore"
)

const (
	sessionTokenPrefix = "sess"
	randomSuffixLen    = 12
	nameSuffixLen      = 6
)

// SessionIssuer mints the per-tab session token. Several tabs on one device
// share a device id but each holds its own token.
type SessionIssuer struct {
	tab     clientstore.Store
	durable clientstore.Store
	now     func() time.Time
}

// NewSessionIssuer creates an issuer writing to the tab and durable stores.
func NewSessionIssuer(tab, durable clientstore.Store, now func() time.Time) *SessionIssuer {
	if now == nil {
		now = time.Now
	}
	return &SessionIssuer{tab: tab, durable: durable, now: now}
}

// Issue returns this tab's session token, minting one if the tab has none.
// The token is also written to the durable session-token field that later
// requests present. Uniqueness is probabilistic: millisecond timestamp plus
// 48 random bits.
func (i *SessionIssuer) Issue(ctx context.Context) (string, error) {
	token, err := i.tab.Get(ctx, KeyTabSession)
	switch {
	case err == nil && token != "":
	case err == nil || errors.Is(err, clientstore.ErrNotFound):
		token = NewSessionToken(i.now())
		if err := i.tab.Set(ctx, KeyTabSession, token); err != nil {
			return "", fmt.Errorf("store tab session: %w", err)
		}
	default:
		return "", fmt.Errorf("read tab session: %w", err)
	}

	if err := i.durable.Set(ctx, KeySessionToken, token); err != nil {
		return "", fmt.Errorf("store session token: %w", err)
	}
	return token, nil
}

// NewSessionToken formats a token as sess_<base36 millis>_<random hex>.
func NewSessionToken(now time.Time) string {
	id := uuid.New()
	suffix := hex.EncodeToString(id[:])[:randomSuffixLen]
	return sessionTokenPrefix + "_" + strconv.FormatInt(now.UnixMilli(), 36) + "_" + suffix
}

// tokenTail returns the last few characters of token, used to tell tabs
// apart in device names.
func tokenTail(token string) string {
	if len(token) <= nameSuffixLen {
		return token
	}
	return token[len(token)-nameSuffixLen:]
}
