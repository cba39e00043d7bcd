// Package upstream relays newly ingested punches to a central attendance server.
package upstream

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/example/attendance-sync/internal/application"
	"github.com/example/attendance-sync/internal/attendance"
)

const (
	// APIKeyHeader carries the configured API key.
	APIKeyHeader = "X-API-Key"
	// SignatureHeader carries the hex keyed BLAKE2b-256 MAC of the body.
	SignatureHeader = "X-Signature"

	defaultTimeout    = 120 * time.Second
	defaultRetryCount = 3
	retryStep         = 5 * time.Second
	maxErrorBody      = 512
)

// ErrRejected is returned when every attempt failed.
var ErrRejected = errors.New("upstream: relay rejected")

// Settings configures a Client.
type Settings struct {
	BaseURL      string
	SyncEndpoint string
	APIKey       string
	SigningKey   string
	Timeout      time.Duration
	RetryCount   int
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. Its timeout is overridden by Settings.Timeout.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.http = client }
}

// WithWait replaces the wait between attempts.
func WithWait(wait application.WaitFunc) Option {
	return func(c *Client) { c.wait = wait }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithClock sets the time source for the payload sync time.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// Client posts records to the central server.
type Client struct {
	endpoint   string
	apiKey     string
	signingKey []byte
	retryCount int
	http       *http.Client
	wait       application.WaitFunc
	now        func() time.Time
	logger     *slog.Logger
}

// New builds a client for settings.
func New(settings Settings, opts ...Option) (*Client, error) {
	endpoint, err := resolveEndpoint(settings.BaseURL, settings.SyncEndpoint)
	if err != nil {
		return nil, err
	}
	if len(settings.SigningKey) > blake2b.Size {
		return nil, fmt.Errorf("upstream: signing key longer than %d bytes", blake2b.Size)
	}
	c := &Client{
		endpoint:   endpoint,
		apiKey:     settings.APIKey,
		signingKey: []byte(settings.SigningKey),
		retryCount: settings.RetryCount,
		http:       &http.Client{},
		wait:       application.SleepContext,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retryCount <= 0 {
		c.retryCount = defaultRetryCount
	}
	timeout := settings.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := *c.http
	client.Timeout = timeout
	c.http = &client
	c.logger = c.logger.With("component", "upstream", "endpoint", endpoint)
	return c, nil
}

func resolveEndpoint(base, path string) (string, error) {
	if strings.TrimSpace(base) == "" {
		return "", errors.New("upstream: base URL is required")
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("upstream: parse base URL: %w", err)
	}
	if baseURL.Scheme == "" || baseURL.Host == "" {
		return "", fmt.Errorf("upstream: base URL %q must be absolute", base)
	}
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("upstream: parse sync endpoint: %w", err)
	}
	return baseURL.ResolveReference(ref).String(), nil
}

type punchPayload struct {
	BiometricUserID string    `json:"biometricUserId"`
	AttendanceTime  time.Time `json:"attendanceTime"`
	VerifyMethod    string    `json:"verifyMethod"`
	AttendanceType  string    `json:"attendanceType"`
	WorkCode        int       `json:"workCode"`
}

type syncPayload struct {
	BranchID       int64          `json:"branchId"`
	DeviceID       int64          `json:"deviceId"`
	AttendanceLogs []punchPayload `json:"attendanceLogs"`
	SyncTime       time.Time      `json:"syncTime"`
}

// Send posts records, retrying failed attempts with a linearly growing pause.
func (c *Client) Send(ctx context.Context, records []attendance.Record, branchID, deviceID int64) error {
	if len(records) == 0 {
		return nil
	}
	payload := syncPayload{
		BranchID:       branchID,
		DeviceID:       deviceID,
		AttendanceLogs: make([]punchPayload, len(records)),
		SyncTime:       c.now(),
	}
	for i, r := range records {
		payload.AttendanceLogs[i] = punchPayload{
			BiometricUserID: r.BiometricUserID,
			AttendanceTime:  r.Time,
			VerifyMethod:    r.VerifyMethod,
			AttendanceType:  r.AttendanceType,
			WorkCode:        r.WorkCode,
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("upstream: encode payload: %w", err)
	}
	signature, err := Sign(c.signingKey, body)
	if err != nil {
		return err
	}

	logger := c.logger.With("device_id", deviceID, "records", len(records))
	var lastErr error
	for attempt := 1; attempt <= c.retryCount; attempt++ {
		lastErr = c.post(ctx, body, signature)
		if lastErr == nil {
			logger.InfoContext(ctx, "records relayed", "attempt", attempt)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.WarnContext(ctx, "relay attempt failed", "attempt", attempt, "of", c.retryCount, "error", lastErr)
		if attempt < c.retryCount {
			if err := c.wait(ctx, time.Duration(attempt)*retryStep); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrRejected, c.retryCount, lastErr)
}

func (c *Client) post(ctx context.Context, body []byte, signature string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("upstream: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(APIKeyHeader, c.apiKey)
	}
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("upstream: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Sign returns the hex keyed BLAKE2b-256 MAC of body, or "" when key is empty.
func Sign(key, body []byte) (string, error) {
	if len(key) == 0 {
		return "", nil
	}
	mac, err := blake2b.New256(key)
	if err != nil {
		return "", fmt.Errorf("upstream: signing key: %w", err)
	}
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil)), nil
}
