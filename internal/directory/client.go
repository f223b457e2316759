package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("directory")

// Client talks to the appointment directory service over HTTP.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient creates a directory client for baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		HTTP: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// getJSON performs a GET, drains the body, and decodes JSON into v.
// Returns (true, nil) on 2xx, (false, nil) on 404, (false, err) otherwise.
func (c *Client) getJSON(ctx context.Context, url string, v any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return false, err
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode/100 != 2 {
		return false, fmt.Errorf("GET %s: status %s", url, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return false, err
	}
	return true, nil
}

// putJSON performs a PUT with a JSON body and decodes the JSON response.
// The returned status lets callers treat conflicts specially.
func (c *Client) putJSON(ctx context.Context, url string, body, v any) (int, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(b))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode/100 == 2 && v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

// Appointment fetches one appointment by id.
func (c *Client) Appointment(ctx context.Context, id string) (*Appointment, error) {
	var appt Appointment
	found, err := c.getJSON(ctx, c.BaseURL+"/api/appointments/"+id, &appt)
	if err != nil {
		return nil, fmt.Errorf("fetch appointment %s: %w", id, err)
	}
	if !found {
		return nil, ErrNotFound
	}
	return &appt, nil
}

// ClaimRoom asks the directory to set the room id if none is set yet.
// A 409 means another joiner won the race; that is success, and the
// authoritative id is re-fetched and returned.
func (c *Client) ClaimRoom(ctx context.Context, id, roomID string) (string, error) {
	var out struct {
		RoomID string `json:"roomId"`
	}
	status, err := c.putJSON(ctx, c.BaseURL+"/api/appointments/"+id+"/room",
		map[string]string{"roomId": roomID}, &out)
	if err != nil {
		return "", fmt.Errorf("claim room for %s: %w", id, err)
	}

	switch {
	case status/100 == 2:
		if out.RoomID != "" {
			return out.RoomID, nil
		}
		return roomID, nil
	case status == http.StatusConflict:
		// Lost the allocation race. Fetch whoever won.
		log.Debugf("room claim conflict for %s, refetching", id)
		appt, err := c.Appointment(ctx, id)
		if err != nil {
			return "", fmt.Errorf("refetch after room conflict: %w", err)
		}
		if appt.RoomID == "" {
			return "", fmt.Errorf("room conflict for %s but no room id on refetch", id)
		}
		return appt.RoomID, nil
	default:
		return "", fmt.Errorf("claim room for %s: status %d", id, status)
	}
}

// History fetches the appointment's chat history. An empty result is an
// empty slice, never an error.
func (c *Client) History(ctx context.Context, id string) ([]Message, error) {
	var msgs []Message
	found, err := c.getJSON(ctx, c.BaseURL+"/api/appointments/"+id+"/chat-history", &msgs)
	if err != nil {
		return nil, fmt.Errorf("fetch history for %s: %w", id, err)
	}
	if !found || msgs == nil {
		return []Message{}, nil
	}
	return msgs, nil
}
