// Package backend talks to the remote attendance source of truth. The kiosk
// treats it as authoritative for the per-day uniqueness invariant; local
// checks are an optimistic fast path only.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"absengo/internal/attendance"
)

// ErrUnavailable wraps transport failures. Transient: callers fall back to
// the cache mirror and retry on the next refresh tick.
var ErrUnavailable = errors.New("attendance backend unavailable")

// ErrMalformed reports an unexpected response shape. Callers treat the result
// as an empty set for display and log it.
var ErrMalformed = errors.New("malformed backend response")

// ScanResult is the backend's answer to a scan submission.
type ScanResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Client calls the remote attendance service.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	loc     *time.Location
}

// New creates a client with a short timeout so a slow backend never stalls
// the dashboard timers.
func New(baseURL string, loc *time.Location) *Client {
	if loc == nil {
		loc = time.Local
	}
	return &Client{
		BaseURL: baseURL,
		loc:     loc,
		HTTP: &http.Client{
			Timeout: 4 * time.Second,
		},
	}
}

// Today fetches today's attendance list for all students.
// Wire shape: {success, data}.
func (c *Client) Today(ctx context.Context) ([]attendance.Record, error) {
	body, err := c.get(ctx, "/api/absensi/today")
	if err != nil {
		return nil, err
	}
	var out struct {
		Success bool              `json:"success"`
		Data    []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !out.Success {
		return nil, fmt.Errorf("%w: success=false", ErrMalformed)
	}
	return c.normalizeAll(out.Data)
}

// All fetches the all-time attendance list and its total count.
// Wire shape: {success, data, count}.
func (c *Client) All(ctx context.Context) ([]attendance.Record, int, error) {
	body, err := c.get(ctx, "/api/absensi")
	if err != nil {
		return nil, 0, err
	}
	var out struct {
		Success bool              `json:"success"`
		Data    []json.RawMessage `json:"data"`
		Count   int               `json:"count"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !out.Success {
		return nil, 0, fmt.Errorf("%w: success=false", ErrMalformed)
	}
	recs, err := c.normalizeAll(out.Data)
	if err != nil {
		return nil, 0, err
	}
	count := out.Count
	if count == 0 {
		count = len(recs)
	}
	return recs, count, nil
}

// StudentHistory fetches one student's records. Older backend revisions
// return a bare array, newer ones wrap it in {data}; both are accepted.
func (c *Client) StudentHistory(ctx context.Context, studentID string) ([]attendance.Record, error) {
	body, err := c.get(ctx, "/api/history/"+studentID)
	if err != nil {
		return nil, err
	}

	var bare []json.RawMessage
	if err := json.Unmarshal(body, &bare); err == nil {
		return c.normalizeAll(bare)
	}
	var wrapped struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil || wrapped.Data == nil {
		return nil, fmt.Errorf("%w: history is neither array nor {data}", ErrMalformed)
	}
	return c.normalizeAll(wrapped.Data)
}

// SubmitScan posts a scan for the student. The backend is the authoritative
// dedup enforcer; its status string is returned verbatim.
func (c *Client) SubmitScan(ctx context.Context, studentID string) (ScanResult, error) {
	payload, _ := json.Marshal(map[string]string{"studentId": studentID})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/scan", bytes.NewReader(payload))
	if err != nil {
		return ScanResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return ScanResult{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	var out ScanResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ScanResult{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if out.Status == "" {
		return ScanResult{}, fmt.Errorf("%w: missing status", ErrMalformed)
	}
	return out, nil
}

// FreshToken asks the backend to issue a rotation token.
// Wire shape: {token}.
func (c *Client) FreshToken(ctx context.Context) (string, error) {
	body, err := c.get(ctx, "/api/token")
	if err != nil {
		return "", err
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.Token == "" {
		return "", fmt.Errorf("%w: missing token", ErrMalformed)
	}
	return out.Token, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: %s: %s", ErrUnavailable, resp.Status, string(bodyBytes))
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) normalizeAll(raws []json.RawMessage) ([]attendance.Record, error) {
	recs := make([]attendance.Record, 0, len(raws))
	for _, raw := range raws {
		rec, err := attendance.NormalizeRecord(raw, c.loc)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}
