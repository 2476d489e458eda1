package cnwdevice

import (
	"context"
)

// runLoop calls fn on every tick, and on every trigger if trigger is
// non-nil, until ctx is cancelled or fn returns an error. Iterations of one
// loop never overlap; the loops share nothing with each other.
func (c *Controller) runLoop(ctx context.Context, t Ticker, trigger <-chan struct{}, fn func(context.Context) error) error {
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C():
		case <-trigger:
		}
		if ctx.Err() != nil {
			return nil
		}
		if err := fn(ctx); err != nil {
			return err
		}
	}
}

// sendHeartbeat pings the registry while this tab holds the active-session
// marker. Failures are logged and left to the next tick.
func (c *Controller) sendHeartbeat(ctx context.Context) error {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()

	if _, err := c.env.Tab.Get(ctx, KeyActiveSession); err != nil {
		c.logger.Debug("Heartbeat skipped, no active session marker", "userID", session.UserID)
		return nil
	}
	if err := c.registry.SendHeartbeat(ctx, session.SessionToken); err != nil {
		if ctx.Err() == nil {
			c.logger.Warn("Heartbeat failed", "userID", session.UserID, "deviceID", session.DeviceID, "error", err)
		}
		return nil
	}
	c.logger.Debug("Heartbeat sent", "userID", session.UserID)
	return nil
}

// checkValidity ends the session when the registry no longer holds an
// active record for (device id, session token). A failed fetch is not
// revocation and is only logged.
func (c *Controller) checkValidity(ctx context.Context) (valid bool) {
	c.mu.Lock()
	session := c.session
	state := c.state
	c.mu.Unlock()
	if state != StateActive {
		return false
	}

	deviceID := c.identifier.GetOrCreateDeviceID(ctx)
	devices, err := c.registry.ListDevices(ctx, session.UserID)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Warn("Device validity check failed", "userID", session.UserID, "error", err)
		}
		return true
	}
	for _, d := range devices {
		if d.DeviceID == deviceID && bool(d.IsActive) && d.SessionToken == session.SessionToken {
			return true
		}
	}

	c.logger.Warn("Device session revoked",
		"userID", session.UserID,
		"deviceID", deviceID,
		"listedDevices", len(devices))
	c.terminate(ReasonRevoked)
	return false
}

// validityTick runs checkValidity for the validity loop. A revocation ends
// the loop with ErrSessionTerminated, which cancels the sibling loops.
func (c *Controller) validityTick(ctx context.Context) error {
	if !c.checkValidity(ctx) {
		return ErrSessionTerminated
	}
	return nil
}

// refreshUser re-fetches the user, caches it and broadcasts it so plan and
// expiry changes reach this session without a reload.
func (c *Controller) refreshUser(ctx context.Context) error {
	c.mu.Lock()
	userID := c.session.UserID
	c.mu.Unlock()

	user, err := c.registry.GetUser(ctx, userID)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Warn("User refresh failed", "userID", userID, "error", err)
		}
		return nil
	}
	if err := cacheUser(ctx, c.env.Durable, *user); err != nil {
		c.logger.Warn("Failed to cache user", "userID", userID, "error", err)
	}
	c.env.Users.BroadcastUser(*user)
	return nil
}
