package hue

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/amimof/huego"

	"github.com/dokzlo13/lightfade/internal/device"
)

// Hue v1 API error types that matter to the fade engine.
const (
	errTypeUnauthorized   = 1
	errTypeDeviceIsOff    = 201
	errTypeNotModifiable  = 6
	errTypeResourceAbsent = 3
)

// APIError is an error entry returned by the bridge.
type APIError struct {
	Type        int    `json:"type"`
	Address     string `json:"address"`
	Description string `json:"description"`
}

// Error implements error.
func (e *APIError) Error() string {
	return fmt.Sprintf("hue api error %d at %s: %s", e.Type, e.Address, e.Description)
}

// Unwrap maps bridge error types onto the device error taxonomy.
func (e *APIError) Unwrap() error {
	switch e.Type {
	case errTypeUnauthorized, errTypeResourceAbsent:
		return device.ErrConnection
	case errTypeDeviceIsOff, errTypeNotModifiable:
		return device.ErrRejected
	default:
		return nil
	}
}

// Client talks to a Hue bridge. Reads and power switching go through huego;
// state writes use the v1 REST API directly because huego omits zero values,
// which makes "hue 0" and "transitiontime 0" impossible to send.
type Client struct {
	address    string
	token      string
	timeout    time.Duration
	httpClient *http.Client
	bridge     *huego.Bridge
}

// NewClient creates a new Hue client
func NewClient(address, token string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		address: address,
		token:   token,
		timeout: timeout,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		bridge: huego.New(address, token),
	}
}

// Bridge returns the underlying huego bridge.
func (c *Client) Bridge() *huego.Bridge {
	return c.bridge
}

// withTimeout bounds a huego call, which always goes through http.DefaultClient.
func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

// Address returns the bridge address
func (c *Client) Address() string {
	return c.address
}

// Close closes idle connections
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

func (c *Client) v1URL(path string) string {
	base := c.address
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return fmt.Sprintf("%s/api/%s/%s", base, c.token, path)
}

func (c *Client) v1Request(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.v1URL(path), body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.httpClient.Do(req)
}

// SetLightState sends a state update to a light (v1 API).
// The first error entry in the bridge response is returned as *APIError.
func (c *Client) SetLightState(ctx context.Context, lightID string, state map[string]interface{}) error {
	bodyBytes, err := json.Marshal(state)
	if err != nil {
		return err
	}

	resp, err := c.v1Request(ctx, "PUT", fmt.Sprintf("lights/%s/state", lightID), strings.NewReader(string(bodyBytes)))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to set light state: status %d: %s", resp.StatusCode, string(body))
	}

	var entries []struct {
		Error *APIError `json:"error,omitempty"`
	}
	if err := json.Unmarshal(body, &entries); err != nil {
		return fmt.Errorf("failed to decode light state response: %w", err)
	}
	for _, e := range entries {
		if e.Error != nil {
			return e.Error
		}
	}

	return nil
}
