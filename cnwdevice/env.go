package cnwdevice

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/CloudNativeWorks/cnw-device-sdk/cnwdevice/clientstore"
)

// TerminationReason says why a device session ended.
type TerminationReason string

const (
	ReasonLogout          TerminationReason = "logout"
	ReasonDeviceLimit     TerminationReason = "device_limit"
	ReasonAdmissionFailed TerminationReason = "admission_failed"
	ReasonRevoked         TerminationReason = "revoked"
	// ReasonClosed is a teardown of the owning view: loops stop, local
	// state is kept for the next mount.
	ReasonClosed TerminationReason = "closed"
)

// Forced reports whether the reason sends the user back to the login screen.
func (r TerminationReason) Forced() bool {
	return r != ReasonLogout && r != ReasonClosed
}

// Navigator moves the host application back to its login screen.
type Navigator interface {
	RedirectToLogin(reason TerminationReason)
}

// Notifier shows blocking messages to the user.
type Notifier interface {
	// NotifyBlocked reports that the device limit refused this session.
	NotifyBlocked(limit AccessLimit)
	// NotifyError reports a plain-language failure.
	NotifyError(message string)
}

// UserBroadcaster hands fresh user records to the rest of the application.
type UserBroadcaster interface {
	BroadcastUser(user User)
}

// TabLifecycle lets the controller run cleanup when the tab or window that
// owns the session closes.
type TabLifecycle interface {
	OnClose(fn func()) (remove func())
}

// Ticker is the part of time.Ticker the controller uses.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Clock creates tickers and tells time.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Env is everything ambient a Controller touches. Storage, timers and host
// callbacks are injected so sessions can run outside a browser and under test.
type Env struct {
	Durable   clientstore.Store
	Tab       clientstore.Store
	Clock     Clock
	Navigator Navigator
	Notifier  Notifier
	Users     UserBroadcaster
	Lifecycle TabLifecycle
	Probes    Probes
	// Screen is reported in device registrations, e.g. "1920x1080".
	Screen string
	// UserAgent feeds device metadata (browser, OS, type).
	UserAgent string
}

func (e *Env) validate() error {
	var errs []error
	if e.Durable == nil {
		errs = append(errs, errors.New("durable store is required"))
	}
	if e.Tab == nil {
		errs = append(errs, errors.New("tab store is required"))
	}
	if e.Navigator == nil {
		errs = append(errs, errors.New("navigator is required"))
	}
	return errors.Join(errs...)
}

func (e *Env) applyDefaults(logger *slog.Logger) {
	if e.Clock == nil {
		e.Clock = SystemClock{}
	}
	if e.Notifier == nil {
		e.Notifier = logNotifier{logger: logger}
	}
	if e.Users == nil {
		e.Users = noopBroadcaster{}
	}
	if e.Lifecycle == nil {
		e.Lifecycle = NewTabHooks()
	}
}

// SystemClock is the real clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) NewTicker(d time.Duration) Ticker {
	return systemTicker{time.NewTicker(d)}
}

type systemTicker struct{ t *time.Ticker }

func (s systemTicker) C() <-chan time.Time { return s.t.C }
func (s systemTicker) Stop() { s.t.Stop() }

// TabHooks is a TabLifecycle the host fires itself, e.g. on process
// shutdown or when a webview closes.
type TabHooks struct {
	mu    sync.Mutex
	next  int
	hooks map[int]func()
}

// NewTabHooks creates an empty hook set.
func NewTabHooks() *TabHooks {
	return &TabHooks{hooks: make(map[int]func())}
}

func (h *TabHooks) OnClose(fn func()) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.next
	h.next++
	h.hooks[id] = fn
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.hooks, id)
	}
}

// Close runs and clears every registered hook.
func (h *TabHooks) Close() {
	h.mu.Lock()
	hooks := h.hooks
	h.hooks = make(map[int]func())
	h.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

type logNotifier struct{ logger *slog.Logger }

func (n logNotifier) NotifyBlocked(limit AccessLimit) {
	n.logger.Warn("Device limit reached", "summary", limit.Summary())
}

func (n logNotifier) NotifyError(message string) {
	n.logger.Error(message)
}

type noopBroadcaster struct{}

func (noopBroadcaster) BroadcastUser(User) {}
