package cnwdevice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultTimeout   = 10 * time.Second
	maxResponseBytes = 1 << 20 // 1 MB

	devicesResource = "devices"
	usersResource   = "users"
)

// RegistryClient talks to the remote device registry. Every logical
// operation is an endpoint under the base URL selected by an "action" query
// parameter. Calls never panic; failures come back as errors.
type RegistryClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	timeout    time.Duration // applied after all options
	userAgent  string
	logger     *slog.Logger
}

// NewRegistryClient creates a new client for the device registry.
// baseURL is the API root (e.g. "https://app.example.com/api").
func NewRegistryClient(baseURL string, opts ...ClientOption) *RegistryClient {
	c := &RegistryClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		timeout:   defaultTimeout,
		userAgent: "cnw-device-sdk-go/1.0",
	}
	for _, opt := range opts {
		opt(c)
	}
	// Apply timeout after all options so ordering doesn't matter.
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	c.httpClient.Timeout = c.timeout
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// CheckAccessLimit asks the registry whether deviceID may open a new session
// for userID. The answer is authoritative; the client never second-guesses it.
func (c *RegistryClient) CheckAccessLimit(ctx context.Context, userID, deviceID string) (*AccessLimit, error) {
	q := url.Values{}
	q.Set("user_id", userID)
	q.Set("device_id", deviceID)
	var limit AccessLimit
	if err := c.do(ctx, http.MethodGet, devicesResource, "check-device-limit", q, nil, &limit); err != nil {
		return nil, err
	}
	return &limit, nil
}

// RegisterDevice upserts a device record. UpdateExisting is forced to true.
func (c *RegistryClient) RegisterDevice(ctx context.Context, reg DeviceRegistration) (*RegisterResult, error) {
	reg.UpdateExisting = true
	var result RegisterResult
	if err := c.do(ctx, http.MethodPost, devicesResource, "register", nil, reg, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListDevices returns every device record of userID. The registry answers
// with either a bare array or {"devices": [...]}.
func (c *RegistryClient) ListDevices(ctx context.Context, userID string) ([]DeviceRecord, error) {
	q := url.Values{}
	q.Set("user_id", userID)
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, devicesResource, "user-devices", q, nil, &raw); err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var devices []DeviceRecord
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &devices); err != nil {
			return nil, fmt.Errorf("%w: decode devices: %v", ErrInvalidResponse, err)
		}
		return devices, nil
	}
	var wrapper struct {
		Devices []DeviceRecord `json:"devices"`
	}
	if err := json.Unmarshal(trimmed, &wrapper); err != nil {
		return nil, fmt.Errorf("%w: decode devices: %v", ErrInvalidResponse, err)
	}
	return wrapper.Devices, nil
}

// RemoveDevice deletes a device record. sessionToken is the caller's own
// session so the registry can tell "remove this session" from "remove the
// whole physical device".
func (c *RegistryClient) RemoveDevice(ctx context.Context, userID, deviceID, sessionToken string) error {
	body := removeRequest{UserID: userID, DeviceID: deviceID, SessionToken: sessionToken}
	return c.do(ctx, http.MethodDelete, devicesResource, "remove", nil, body, nil)
}

// SendHeartbeat tells the registry that sessionToken is still alive.
func (c *RegistryClient) SendHeartbeat(ctx context.Context, sessionToken string) error {
	return c.do(ctx, http.MethodPost, devicesResource, "heartbeat", nil, heartbeatRequest{SessionToken: sessionToken}, nil)
}

// UpdateDeviceName renames a device in the registry.
func (c *RegistryClient) UpdateDeviceName(ctx context.Context, userID, deviceID, name string) error {
	body := updateNameRequest{UserID: userID, DeviceID: deviceID, Name: name}
	return c.do(ctx, http.MethodPost, devicesResource, "update-name", nil, body, nil)
}

// GetUser fetches the user record. The registry answers with the record
// itself or {"user": {...}}.
func (c *RegistryClient) GetUser(ctx context.Context, userID string) (*User, error) {
	q := url.Values{}
	q.Set("id", userID)
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, usersResource, "get", q, nil, &raw); err != nil {
		return nil, err
	}
	var wrapper struct {
		User *User `json:"user"`
	}
	if err := json.Unmarshal(raw, &wrapper); err == nil && wrapper.User != nil {
		return wrapper.User, nil
	}
	var user User
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("%w: decode user: %v", ErrInvalidResponse, err)
	}
	if user.ID == "" {
		return nil, fmt.Errorf("%w: user record without id", ErrInvalidResponse)
	}
	return &user, nil
}

// do performs one registry call. body, if non-nil, is sent as JSON; dest, if
// non-nil, receives the decoded response.
func (c *RegistryClient) do(ctx context.Context, method, resource, action string, query url.Values, body, dest interface{}) error {
	if query == nil {
		query = url.Values{}
	}
	query.Set("action", action)
	endpoint := c.baseURL + "/" + resource + "?" + query.Encode()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if looksLikeHTML(resp.Header.Get("Content-Type"), respBody) {
		c.logger.Warn("registry returned a non-JSON page",
			"action", action, "status", resp.StatusCode, "contentType", resp.Header.Get("Content-Type"))
		return fmt.Errorf("%w (status %d)", ErrUnexpectedResponse, resp.StatusCode)
	}

	trimmed := bytes.TrimSpace(respBody)
	if len(trimmed) == 0 {
		if resp.StatusCode >= 400 {
			return &ServerError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		if dest != nil {
			return fmt.Errorf("%w (empty body)", ErrUnexpectedResponse)
		}
		return nil
	}
	if !json.Valid(trimmed) {
		return fmt.Errorf("%w (status %d)", ErrUnexpectedResponse, resp.StatusCode)
	}

	if se := parseError(resp.StatusCode, trimmed); se != nil {
		return mapServerError(se)
	}

	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(trimmed, dest); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}

// looksLikeHTML detects error pages served in place of JSON.
func looksLikeHTML(contentType string, body []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "text/html") {
		return true
	}
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) > 0 && trimmed[0] == '<'
}

// parseError extracts the registry error from a JSON body. It returns nil
// for successful responses. Both {"error": "..."} and
// {"error": {"code": "...", "message": "..."}} are understood.
func parseError(statusCode int, body []byte) *ServerError {
	var envelope struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if body[0] != '{' || json.Unmarshal(body, &envelope) != nil {
		if statusCode >= 400 {
			return &ServerError{StatusCode: statusCode, Code: "UNKNOWN", Message: string(body)}
		}
		return nil
	}

	raw := bytes.TrimSpace(envelope.Error)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) || bytes.Equal(raw, []byte("false")) {
		if statusCode >= 400 {
			msg := envelope.Message
			if msg == "" {
				msg = http.StatusText(statusCode)
			}
			return &ServerError{StatusCode: statusCode, Message: msg}
		}
		return nil
	}

	se := &ServerError{StatusCode: statusCode}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		se.Message = text
		return se
	}
	var detail struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &detail); err == nil {
		se.Code = detail.Code
		se.Message = detail.Message
		return se
	}
	se.Message = string(raw)
	return se
}
