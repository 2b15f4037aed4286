// Package collab talks to the account and session service that persists
// rooms and focus sessions. The relay never calls it; clients do.
package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dkeye/grinder/internal/domain"
	"github.com/rs/zerolog"
)

var ErrNotFound = errors.New("collab: not found")

// StatusError is a non-2xx answer from the service.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("collab: status %d", e.Code)
	}
	return fmt.Sprintf("collab: status %d: %s", e.Code, e.Message)
}

type Room struct {
	ID     int64           `json:"id"`
	Code   domain.RoomCode `json:"code"`
	Name   string          `json:"name"`
	HostID int64           `json:"hostId"`
}

// SessionReport is what a participant submits when leaving a room.
type SessionReport struct {
	SessionID             int64  `json:"sessionId"`
	DurationSeconds       int64  `json:"durationSeconds"`
	PomodorosCompleted    int    `json:"pomodorosCompleted"`
	Role                  string `json:"role"`
	TimeFocusedSeconds    int64  `json:"time_focused_seconds"`
	TimeNeutralSeconds    int64  `json:"time_neutral_seconds"`
	TimeDistractedSeconds int64  `json:"time_distracted_seconds"`
	TimesLeftApp          int    `json:"times_left_app"`
	TimesTalked           int    `json:"times_talked"`
	TimesMuted            int    `json:"times_muted"`
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     zerolog.Logger
}

// NewClient returns a client for the service at baseURL authenticating with
// a bearer token. A nil hc gets a client with a 30 second timeout.
func NewClient(baseURL, token string, hc *http.Client, logger zerolog.Logger) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("collab: base URL is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("collab: invalid base URL %q: %w", baseURL, err)
	}
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    hc,
		log:     logger.With().Str("module", "collab").Logger(),
	}, nil
}

func (c *Client) Room(ctx context.Context, code domain.RoomCode) (Room, error) {
	var resp struct {
		Room Room `json:"room"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/rooms/"+url.PathEscape(string(code)), nil, &resp); err != nil {
		return Room{}, err
	}
	return resp.Room, nil
}

// StartSession opens a focus session in roomID and returns its id.
func (c *Client) StartSession(ctx context.Context, roomID int64, pomodoroMinutes int) (int64, error) {
	req := struct {
		RoomID          int64 `json:"roomId"`
		PomodoroMinutes int   `json:"pomodoroMinutes"`
	}{roomID, pomodoroMinutes}
	var resp struct {
		Session struct {
			ID int64 `json:"id"`
		} `json:"session"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/sessions/start", req, &resp); err != nil {
		return 0, err
	}
	c.log.Info().Int64("session", resp.Session.ID).Int64("room_id", roomID).Msg("session started")
	return resp.Session.ID, nil
}

func (c *Client) EndSession(ctx context.Context, report SessionReport) error {
	if err := c.do(ctx, http.MethodPost, "/api/sessions/end", report, nil); err != nil {
		return err
	}
	c.log.Info().
		Int64("session", report.SessionID).
		Int64("duration_s", report.DurationSeconds).
		Int("pomodoros", report.PomodorosCompleted).
		Msg("session ended")
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("collab: encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("collab: build %s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("collab: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("collab: read %s %s: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(data, &apiErr)
		se := &StatusError{Code: resp.StatusCode, Message: apiErr.Error}
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %w", ErrNotFound, se)
		}
		return se
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("collab: decode %s %s: %w", method, path, err)
	}
	return nil
}
