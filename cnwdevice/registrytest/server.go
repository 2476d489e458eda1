// Package registrytest runs an in-process device registry for tests. It
// speaks the same ?action= HTTP API as the production registry, including
// its habit of answering errors with HTTP 200 and an "error" field.
package registrytest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/CloudNativeWorks/cnw-device-sdk/cnwdevice"
)

const timestampLayout = "2006-01-02 15:04:05"

// Server is a fake registry. Users must be added with AddUser before they
// can be admitted; a user's device limit is its LicenseCount (at least 1).
type Server struct {
	*httptest.Server

	apiKey string
	now    func() time.Time

	mu         sync.Mutex
	users      map[string]cnwdevice.User
	records    []cnwdevice.DeviceRecord
	nextID     int
	heartbeats map[string]int
	failures   map[string]failure
}

type failure struct {
	status      int
	contentType string
	body        string
}

// Option configures a Server.
type Option func(*Server)

// WithAPIKey makes the server reject requests without this X-API-Key.
func WithAPIKey(key string) Option {
	return func(s *Server) {
		s.apiKey = key
	}
}

// WithNow sets the clock used for last_access stamps.
func WithNow(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// NewServer starts a registry. Call Close when done.
func NewServer(opts ...Option) *Server {
	s := &Server{
		now:        time.Now,
		users:      make(map[string]cnwdevice.User),
		heartbeats: make(map[string]int),
		failures:   make(map[string]failure),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Server = httptest.NewServer(s.routes())
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.authenticate)
	r.Use(s.injectFailures)

	r.Get("/devices", s.dispatch(map[string]http.HandlerFunc{
		"check-device-limit": s.checkDeviceLimit,
		"user-devices":       s.userDevices,
	}))
	r.Post("/devices", s.dispatch(map[string]http.HandlerFunc{
		"register":    s.register,
		"heartbeat":   s.heartbeat,
		"update-name": s.updateName,
	}))
	r.Delete("/devices", s.dispatch(map[string]http.HandlerFunc{
		"remove": s.remove,
	}))
	r.Get("/users", s.dispatch(map[string]http.HandlerFunc{
		"get": s.getUser,
	}))
	return r
}

func (s *Server) dispatch(actions map[string]http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h, ok := actions[r.URL.Query().Get("action")]
		if !ok {
			writeError(w, r, http.StatusBadRequest, "INVALID_ACTION", "Invalid action")
			return
		}
		h(w, r)
	}
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && r.Header.Get("X-API-Key") != s.apiKey {
			writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) injectFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		action := r.URL.Query().Get("action")
		s.mu.Lock()
		f, ok := s.failures[action]
		delete(s.failures, action)
		s.mu.Unlock()
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Content-Type", f.contentType)
		w.WriteHeader(f.status)
		_, _ = w.Write([]byte(f.body))
	})
}

// FailNext makes the next call of action answer with an HTML error page,
// the way a misbehaving proxy or PHP fatal error would.
func (s *Server) FailNext(action string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[action] = failure{
		status:      status,
		contentType: "text/html; charset=UTF-8",
		body:        "<html><body><h1>" + http.StatusText(status) + "</h1></body></html>",
	}
}

// AddUser creates or replaces a user.
func (s *Server) AddUser(u cnwdevice.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID.String()] = u
}

// Devices returns a copy of userID's records.
func (s *Server) Devices(userID string) []cnwdevice.DeviceRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.devicesLocked(userID)
}

// RevokeDevice deletes every record of a device, as an admin would.
func (s *Server) RevokeDevice(userID, deviceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(userID, deviceID)
}

// Heartbeats returns how many heartbeats sessionToken has sent.
func (s *Server) Heartbeats(sessionToken string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heartbeats[sessionToken]
}

func (s *Server) checkDeviceLimit(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	deviceID := r.URL.Query().Get("device_id")
	if userID == "" || deviceID == "" {
		writeError(w, r, http.StatusOK, "", "Missing user_id or device_id")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		writeError(w, r, http.StatusOK, "USER_NOT_FOUND", "user not found")
		return
	}
	active := make(map[string]bool)
	for _, rec := range s.records {
		if rec.UserID.String() == userID && bool(rec.IsActive) {
			active[rec.DeviceID] = true
		}
	}
	limit := maxDevices(u)
	// PHP sends these as strings
	render.JSON(w, r, map[string]string{
		"can_access":     boolString(active[deviceID] || len(active) < limit),
		"active_devices": strconv.Itoa(len(active)),
		"max_devices":    strconv.Itoa(limit),
	})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var reg cnwdevice.DeviceRegistration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
		writeError(w, r, http.StatusOK, "", "Invalid JSON")
		return
	}
	if reg.UserID == "" || reg.DeviceID == "" {
		writeError(w, r, http.StatusOK, "", "Missing user_id or device_id")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec := cnwdevice.DeviceRecord{
		UserID:           cnwdevice.FlexString(reg.UserID),
		DeviceID:         reg.DeviceID,
		DeviceName:       reg.DeviceName,
		DeviceType:       reg.DeviceType,
		Browser:          reg.Browser,
		OS:               reg.OS,
		ScreenResolution: reg.ScreenResolution,
		IPAddress:        r.RemoteAddr,
		LastAccess:       s.now().UTC().Format(timestampLayout),
		SessionToken:     reg.SessionToken,
		IsActive:         true,
	}
	if reg.UpdateExisting {
		for i, existing := range s.records {
			if existing.UserID.String() == reg.UserID && existing.DeviceID == reg.DeviceID &&
				existing.SessionToken == reg.SessionToken {
				rec.ID = existing.ID
				s.records[i] = rec
				render.JSON(w, r, map[string]any{"success": 1, "id": rec.ID, "message": "Device updated"})
				return
			}
		}
	}
	s.nextID++
	rec.ID = cnwdevice.FlexString(strconv.Itoa(s.nextID))
	s.records = append(s.records, rec)
	render.JSON(w, r, map[string]any{"success": 1, "id": s.nextID, "message": "Device registered"})
}

func (s *Server) userDevices(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	s.mu.Lock()
	devices := s.devicesLocked(userID)
	s.mu.Unlock()
	if devices == nil {
		devices = []cnwdevice.DeviceRecord{}
	}
	render.JSON(w, r, map[string]any{"devices": devices})
}

func (s *Server) heartbeat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionToken string `json:"session_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionToken == "" {
		writeError(w, r, http.StatusOK, "", "Missing session_token")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, rec := range s.records {
		if rec.SessionToken == req.SessionToken && bool(rec.IsActive) {
			s.records[i].LastAccess = s.now().UTC().Format(timestampLayout)
			s.heartbeats[req.SessionToken]++
			render.JSON(w, r, map[string]bool{"success": true})
			return
		}
	}
	writeError(w, r, http.StatusOK, "SESSION_INVALID", "session not found")
}

func (s *Server) updateName(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID   string `json:"user_id"`
		DeviceID string `json:"device_id"`
		Name     string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusOK, "", "Invalid JSON")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	found := false
	for i, rec := range s.records {
		if rec.UserID.String() == req.UserID && rec.DeviceID == req.DeviceID {
			s.records[i].DeviceName = req.Name
			found = true
		}
	}
	if !found {
		writeError(w, r, http.StatusOK, "DEVICE_NOT_FOUND", "device not found")
		return
	}
	render.JSON(w, r, map[string]bool{"success": true})
}

func (s *Server) remove(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID   string `json:"user_id"`
		DeviceID string `json:"device_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusOK, "", "Invalid JSON")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.removeLocked(req.UserID, req.DeviceID) {
		writeError(w, r, http.StatusOK, "DEVICE_NOT_FOUND", "device not found")
		return
	}
	render.JSON(w, r, map[string]bool{"success": true})
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	u, ok := s.users[r.URL.Query().Get("id")]
	s.mu.Unlock()
	if !ok {
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "user not found")
		return
	}
	render.JSON(w, r, map[string]any{"user": u})
}

func (s *Server) devicesLocked(userID string) []cnwdevice.DeviceRecord {
	var out []cnwdevice.DeviceRecord
	for _, rec := range s.records {
		if rec.UserID.String() == userID {
			out = append(out, rec)
		}
	}
	return out
}

func (s *Server) removeLocked(userID, deviceID string) bool {
	kept := s.records[:0]
	removed := false
	for _, rec := range s.records {
		if rec.UserID.String() == userID && rec.DeviceID == deviceID {
			removed = true
			continue
		}
		kept = append(kept, rec)
	}
	s.records = kept
	return removed
}

func maxDevices(u cnwdevice.User) int {
	if n := int(u.LicenseCount); n > 0 {
		return n
	}
	return 1
}

func boolString(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// writeError answers the way the registry does: a JSON "error" field, a
// code when there is one, and often HTTP 200.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	render.Status(r, status)
	if code == "" {
		render.JSON(w, r, map[string]string{"error": message})
		return
	}
	render.JSON(w, r, map[string]any{"error": map[string]string{"code": code, "message": message}})
}
