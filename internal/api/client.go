package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"wifirtt/internal/model"
)

// Client is a thin HTTP client for the measurement server.
type Client struct {
	baseURL string
	http    *http.Client
	dialer  *websocket.Dialer
}

// NewClient creates a client for the given base URL (e.g. http://host:port).
// Probing a host takes several seconds, so the timeout is generous.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// Scan fetches the current radio scan.
func (c *Client) Scan(ctx context.Context) (model.ScanResult, error) {
	var resp model.ScanResult
	if err := c.getJSON(ctx, PathScan, &resp); err != nil {
		return resp, err
	}
	return resp, nil
}

// RTT measures one host on the server.
func (c *Client) RTT(ctx context.Context, host string) (model.HostLatency, error) {
	var resp model.HostLatency
	if err := c.getJSON(ctx, PathRTT+url.PathEscape(host), &resp); err != nil {
		return resp, err
	}
	return resp, nil
}

// ARP fetches the neighbor address table.
func (c *Client) ARP(ctx context.Context) ([]model.AddressEntry, error) {
	var resp []model.AddressEntry
	if err := c.getJSON(ctx, PathARP, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Snapshot builds one aggregated snapshot on demand.
func (c *Client) Snapshot(ctx context.Context) (model.Snapshot, error) {
	var resp model.Snapshot
	if err := c.getJSON(ctx, PathSnapshot, &resp); err != nil {
		return resp, err
	}
	return resp, nil
}

// Health reports the server's live session state.
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var resp HealthResponse
	if err := c.getJSON(ctx, PathHealth, &resp); err != nil {
		return resp, err
	}
	return resp, nil
}

// WatchURL returns the viewer stream endpoint for the base URL.
func (c *Client) WatchURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + PathWatch
	return u.String(), nil
}

// Watch joins the viewer stream and calls fn for every frame until ctx ends,
// the server closes the stream, or fn returns an error.
func (c *Client) Watch(ctx context.Context, fn func(StreamMessage) error) error {
	endpoint, err := c.WatchURL()
	if err != nil {
		return err
	}
	conn, _, err := c.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", endpoint, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		msg, err := DecodeStreamMessage(data)
		if err != nil {
			return err
		}
		if err := fn(msg); err != nil {
			return err
		}
	}
}

// DecodeStreamMessage tells a snapshot frame from an error frame.
func DecodeStreamMessage(data []byte) (StreamMessage, error) {
	var probe struct {
		Error *string `json:"error"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return StreamMessage{}, fmt.Errorf("decode stream frame: %w", err)
	}
	if probe.Error != nil {
		return StreamMessage{Err: *probe.Error}, nil
	}
	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return StreamMessage{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return StreamMessage{Snapshot: &snap}, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return responseError(res)
	}

	decoder := json.NewDecoder(res.Body)
	return decoder.Decode(out)
}

func responseError(res *http.Response) error {
	body, _ := io.ReadAll(res.Body)
	body = bytes.TrimSpace(body)
	var payload model.ErrorMessage
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		return fmt.Errorf("request failed: %s: %s", res.Status, payload.Error)
	}
	if len(body) > 0 {
		return fmt.Errorf("request failed: %s: %s", res.Status, body)
	}
	return fmt.Errorf("request failed: %s", res.Status)
}
