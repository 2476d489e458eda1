package cnwdevice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultHeartbeatInterval   = 3 * time.Minute
	DefaultValidityInterval    = 15 * time.Second
	DefaultUserRefreshInterval = 30 * time.Second

	cleanupTimeout        = 5 * time.Second
	admissionErrorMessage = "We could not verify access for this device. Please sign in again."
)

// State is the lifecycle stage of a device session.
type State int

const (
	StateIdle State = iota
	StateInitializing
	StateAdmitted
	StateActive
	StateBlocked
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateAdmitted:
		return "admitted"
	case StateActive:
		return "active"
	case StateBlocked:
		return "blocked"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Registry is the remote device registry as the controller needs it.
// *RegistryClient implements it.
type Registry interface {
	CheckAccessLimit(ctx context.Context, userID, deviceID string) (*AccessLimit, error)
	RegisterDevice(ctx context.Context, reg DeviceRegistration) (*RegisterResult, error)
	ListDevices(ctx context.Context, userID string) ([]DeviceRecord, error)
	RemoveDevice(ctx context.Context, userID, deviceID, sessionToken string) error
	SendHeartbeat(ctx context.Context, sessionToken string) error
	UpdateDeviceName(ctx context.Context, userID, deviceID, name string) error
	GetUser(ctx context.Context, userID string) (*User, error)
}

// Controller enforces the device limit for one logged-in session (one tab).
//
// Start admits or blocks the session. Once active, three independent loops
// run until the session ends:
//   - heartbeat: keeps the registry record alive
//   - validity: ends the session when its record disappears (revocation)
//   - user refresh: re-fetches and broadcasts the user record
//
// Admission fails closed: any error before the session is active clears
// local state and sends the user to login. Steady-state errors are logged.
// A Controller is single-use.
type Controller struct {
	registry   Registry
	env        Env
	logger     *slog.Logger
	identifier *DeviceIdentifier
	issuer     *SessionIssuer

	heartbeatInterval   time.Duration
	validityInterval    time.Duration
	userRefreshInterval time.Duration

	userUpdated chan struct{}
	done        chan struct{}

	mu          sync.Mutex
	state       State
	reason      TerminationReason
	session     SessionInfo
	cancel      context.CancelFunc
	group       *errgroup.Group
	removeHooks func()
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithHeartbeatInterval sets the heartbeat period. Default is 3 minutes.
func WithHeartbeatInterval(d time.Duration) ControllerOption {
	return func(c *Controller) {
		c.heartbeatInterval = d
	}
}

// WithValidityInterval sets how often the session checks it has not been
// revoked. Default is 15 seconds.
func WithValidityInterval(d time.Duration) ControllerOption {
	return func(c *Controller) {
		c.validityInterval = d
	}
}

// WithUserRefreshInterval sets the user record refresh period. Default is 30 seconds.
func WithUserRefreshInterval(d time.Duration) ControllerOption {
	return func(c *Controller) {
		c.userRefreshInterval = d
	}
}

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(l *slog.Logger) ControllerOption {
	return func(c *Controller) {
		c.logger = l
	}
}

// NewController creates a controller for one session.
func NewController(registry Registry, env Env, opts ...ControllerOption) (*Controller, error) {
	if registry == nil {
		return nil, errors.New("registry is required")
	}
	if err := env.validate(); err != nil {
		return nil, fmt.Errorf("invalid env: %w", err)
	}
	c := &Controller{
		registry:            registry,
		heartbeatInterval:   DefaultHeartbeatInterval,
		validityInterval:    DefaultValidityInterval,
		userRefreshInterval: DefaultUserRefreshInterval,
		userUpdated:         make(chan struct{}, 1),
		done:                make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	env.applyDefaults(c.logger)
	c.env = env
	c.identifier = NewDeviceIdentifier(env.Durable, env.Probes, c.logger)
	c.issuer = NewSessionIssuer(env.Tab, env.Durable, env.Clock.Now)
	return c, nil
}

// Start admits user on this device:
//  1. Admins skip device enforcement entirely
//  2. Computes the device id and asks the registry for the limit decision
//  3. Blocks (and registers nothing) when the limit is reached
//  4. Issues the tab session token and registers the device record
//  5. Marks this tab as holding the active session and starts the loops
//
// It returns ErrDeviceLimitReached when blocked and ErrAdmissionFailed when
// admission could not complete. In both cases the session is already
// terminated. Logout or Close during admission cancels it: Start then
// returns ErrSessionTerminated and leaves no local session state behind.
func (c *Controller) Start(ctx context.Context, user User) error {
	admitCtx, cancelAdmission := context.WithCancel(ctx)
	defer cancelAdmission()

	c.mu.Lock()
	if c.state != StateIdle {
		st := c.state
		c.mu.Unlock()
		return fmt.Errorf("controller already started (state %s)", st)
	}
	c.state = StateInitializing
	c.cancel = cancelAdmission
	c.mu.Unlock()

	userID := user.ID.String()
	now := c.env.Clock.Now()

	if user.IsAdmin {
		c.logger.Info("Admin session, device enforcement skipped", "userID", userID)
		return c.activate(ctx, user, SessionInfo{UserID: userID, Exempt: true, StartedAt: now})
	}

	deviceID := c.identifier.GetOrCreateDeviceID(admitCtx)
	limit, err := c.registry.CheckAccessLimit(admitCtx, userID, deviceID)
	if abandoned := c.abandoned("check device limit", userID, false); abandoned != nil {
		return abandoned
	}
	if err != nil {
		return c.failAdmission("check device limit", userID, err)
	}
	if err := CheckAccess(*limit); err != nil {
		c.setState(StateBlocked)
		c.logger.Warn("Device limit reached",
			"userID", userID,
			"deviceID", deviceID,
			"activeDevices", int(limit.ActiveDevices),
			"maxDevices", int(limit.MaxDevices))
		c.env.Notifier.NotifyBlocked(*limit)
		c.terminate(ReasonDeviceLimit)
		return err
	}
	c.setState(StateAdmitted)

	token, err := c.issuer.Issue(admitCtx)
	if abandoned := c.abandoned("issue session token", userID, true); abandoned != nil {
		return abandoned
	}
	if err != nil {
		return c.failAdmission("issue session token", userID, err)
	}

	info := ParseUserAgent(c.env.UserAgent)
	info.Screen = c.env.Screen
	info.Private = DetectPrivateMode(admitCtx, c.env.Durable)
	name := TabDeviceName(info.Name(), token)

	if abandoned := c.abandoned("register device", userID, true); abandoned != nil {
		return abandoned
	}
	_, err = c.registry.RegisterDevice(admitCtx, DeviceRegistration{
		UserID:           userID,
		DeviceID:         deviceID,
		DeviceName:       name,
		DeviceType:       info.Type,
		Browser:          info.Browser,
		OS:               info.OS,
		ScreenResolution: info.Screen,
		SessionToken:     token,
	})
	if abandoned := c.abandoned("register device", userID, true); abandoned != nil {
		return abandoned
	}
	if err != nil {
		return c.failAdmission("register device", userID, err)
	}

	if err := c.env.Tab.Set(admitCtx, KeyActiveSession, token); err != nil {
		if abandoned := c.abandoned("mark active session", userID, true); abandoned != nil {
			return abandoned
		}
		return c.failAdmission("mark active session", userID, err)
	}

	c.logger.Info("Device session admitted",
		"userID", userID,
		"deviceID", deviceID,
		"deviceName", name,
		"activeDevices", int(limit.ActiveDevices),
		"maxDevices", int(limit.MaxDevices))

	return c.activate(ctx, user, SessionInfo{
		UserID:       userID,
		DeviceID:     deviceID,
		SessionToken: token,
		DeviceName:   name,
		StartedAt:    now,
	})
}

// abandoned returns ErrSessionTerminated when Logout or Close ended the
// session while admission was in flight. wrote means admission already
// stored session keys, which are then removed again.
func (c *Controller) abandoned(step, userID string, wrote bool) error {
	c.mu.Lock()
	terminated := c.state == StateTerminated
	reason := c.reason
	c.mu.Unlock()
	if !terminated {
		return nil
	}
	if wrote {
		c.clearLocalState()
	}
	c.logger.Info("Device admission abandoned", "step", step, "userID", userID, "reason", string(reason))
	return fmt.Errorf("%w: %s", ErrSessionTerminated, step)
}

func (c *Controller) failAdmission(step, userID string, err error) error {
	c.logger.Error("Device admission failed", "step", step, "userID", userID, "error", err)
	c.env.Notifier.NotifyError(admissionErrorMessage)
	c.terminate(ReasonAdmissionFailed)
	return fmt.Errorf("%w: %s: %w", ErrAdmissionFailed, step, err)
}

// activate enters StateActive and starts the loops. Tickers are created
// before it returns. It fails with ErrSessionTerminated when the session
// ended first, after removing what admission stored.
func (c *Controller) activate(ctx context.Context, user User, session SessionInfo) error {
	if err := cacheUser(ctx, c.env.Durable, user); err != nil {
		c.logger.Warn("Failed to cache user", "userID", session.UserID, "error", err)
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	group, groupCtx := errgroup.WithContext(loopCtx)

	c.mu.Lock()
	if c.state == StateTerminated {
		c.mu.Unlock()
		cancel()
		return c.abandoned("activate", session.UserID, true)
	}
	defer c.mu.Unlock()
	c.session = session
	c.cancel = cancel
	c.group = group
	c.state = StateActive

	// Loops only end early with ErrSessionTerminated, which cancels groupCtx
	// and with it the other loops.
	if !session.Exempt {
		c.removeHooks = c.env.Lifecycle.OnClose(c.onTabClose)
		heartbeat := c.env.Clock.NewTicker(c.heartbeatInterval)
		validity := c.env.Clock.NewTicker(c.validityInterval)
		group.Go(func() error {
			return c.runLoop(groupCtx, heartbeat, nil, c.sendHeartbeat)
		})
		group.Go(func() error {
			return c.runLoop(groupCtx, validity, nil, c.validityTick)
		})
	}
	refresh := c.env.Clock.NewTicker(c.userRefreshInterval)
	group.Go(func() error {
		return c.runLoop(groupCtx, refresh, c.userUpdated, c.refreshUser)
	})
	return nil
}

// onTabClose drops this tab's active-session marker. Other tabs keep theirs.
func (c *Controller) onTabClose() {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	if err := c.env.Tab.Delete(ctx, KeyActiveSession); err != nil {
		c.logger.Warn("Failed to clear active session marker", "error", err)
	}
}

// NotifyUserUpdated asks the user refresh loop to re-fetch now, e.g. after
// another part of the application changed the user record.
func (c *Controller) NotifyUserUpdated() {
	select {
	case c.userUpdated <- struct{}{}:
	default:
	}
}

// Logout ends the session on explicit user request. Local session state is
// cleared; the registry record is left for the registry's own expiry.
func (c *Controller) Logout(ctx context.Context) error {
	c.terminate(ReasonLogout)
	return c.wait(ctx)
}

// Close stops the loops without touching local state, for teardown of the
// view that owns the session.
func (c *Controller) Close(ctx context.Context) error {
	c.terminate(ReasonClosed)
	return c.wait(ctx)
}

func (c *Controller) wait(ctx context.Context) error {
	c.mu.Lock()
	group := c.group
	c.mu.Unlock()
	if group == nil {
		return nil
	}
	waited := make(chan error, 1)
	go func() { waited <- group.Wait() }()
	select {
	case err := <-waited:
		if errors.Is(err, ErrSessionTerminated) {
			return nil
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// terminate moves to StateTerminated once. Forced reasons also clear local
// state and redirect to login; logout clears without redirect; close only
// stops the loops.
func (c *Controller) terminate(reason TerminationReason) {
	c.mu.Lock()
	if c.state == StateTerminated {
		c.mu.Unlock()
		return
	}
	c.state = StateTerminated
	c.reason = reason
	cancel := c.cancel
	removeHooks := c.removeHooks
	c.removeHooks = nil
	session := c.session
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if removeHooks != nil {
		removeHooks()
	}
	if reason != ReasonClosed {
		c.clearLocalState()
	}
	c.logger.Info("Device session terminated",
		"reason", string(reason),
		"userID", session.UserID,
		"deviceID", session.DeviceID)
	if reason.Forced() {
		c.env.Navigator.RedirectToLogin(reason)
	}
	close(c.done)
}

// clearLocalState removes the session token, cached user and tab markers.
// The cached fingerprint and remembered credentials are kept.
func (c *Controller) clearLocalState() {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	err := errors.Join(
		c.env.Durable.Delete(ctx, KeySessionToken),
		c.env.Durable.Delete(ctx, KeyUser),
		c.env.Tab.Delete(ctx, KeyActiveSession),
		c.env.Tab.Delete(ctx, KeyTabSession),
	)
	if err != nil {
		c.logger.Warn("Failed to clear local session state", "error", err)
	}
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateTerminated {
		c.state = s
	}
}

// State returns the current session state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Reason returns why the session terminated, or "" while it has not.
func (c *Controller) Reason() TerminationReason {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// Session returns the active session. ok is false unless the state is active.
func (c *Controller) Session() (info SessionInfo, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session, c.state == StateActive
}

// Done is closed when the session terminates.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Devices lists the user's devices grouped by physical device, the
// current one first.
func (c *Controller) Devices(ctx context.Context) ([]DeviceGroup, error) {
	session, ok := c.Session()
	if !ok {
		return nil, ErrSessionNotActive
	}
	records, err := c.registry.ListDevices(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return GroupDevices(records, c.identifier.GetOrCreateDeviceID(ctx)), nil
}

// RenameDevice changes the display name of one of the user's devices.
func (c *Controller) RenameDevice(ctx context.Context, deviceID, name string) error {
	session, ok := c.Session()
	if !ok {
		return ErrSessionNotActive
	}
	if err := c.registry.UpdateDeviceName(ctx, session.UserID, deviceID, name); err != nil {
		return fmt.Errorf("rename device: %w", err)
	}
	return nil
}

// RemoveDevice removes one of the user's devices and immediately re-checks
// this session, so removing the current device ends it at once. Removing
// another device leaves this session running.
func (c *Controller) RemoveDevice(ctx context.Context, deviceID string) error {
	session, ok := c.Session()
	if !ok {
		return ErrSessionNotActive
	}
	if err := c.registry.RemoveDevice(ctx, session.UserID, deviceID, session.SessionToken); err != nil {
		return fmt.Errorf("remove device: %w", err)
	}
	c.logger.Info("Device removed", "userID", session.UserID, "deviceID", deviceID)
	if !session.Exempt {
		c.checkValidity(ctx)
	}
	return nil
}
