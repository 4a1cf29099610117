package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/runningwild/storagebench/pkg/engine"
)

// Client runs benchmarks on a remote agent. It satisfies engine.Runner, so
// a session can drive a remote host exactly like a local engine.
type Client struct {
	host string
	hc   *http.Client
}

// NewClient talks to the agent at host ("host:port").
func NewClient(host string) *Client {
	return &Client{host: host, hc: &http.Client{}}
}

func (c *Client) Run(ctx context.Context, cfg engine.RunConfig) (*engine.RunResult, error) {
	url := fmt.Sprintf("http://%s/run", c.host)

	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}

	// Preparing a large area can take a while on top of the run itself.
	timeout := time.Duration(cfg.WarmupSec+cfg.DurationSec)*time.Second + engine.DefaultOpTimeout + 5*time.Minute
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &engine.RunError{Kind: engine.ErrCancelled, Err: err}
		}
		return nil, fmt.Errorf("agent %s: %w", c.host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, remoteError(c.host, resp.Status, body)
	}

	var res engine.RunResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("agent %s: decode result: %w", c.host, err)
	}
	if msg := resp.Header.Get(runErrorHeader); msg != "" {
		return &res, &engine.RunError{Kind: engine.ErrIoFailure, State: engine.StateMeasuring, Err: errors.New(msg)}
	}
	return &res, nil
}

// remoteError maps the agent's error body back onto the engine sentinels.
func remoteError(host, status string, body []byte) error {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil || eb.Error == "" {
		return fmt.Errorf("agent %s error (%s): %s", host, status, string(bytes.TrimSpace(body)))
	}
	err := fmt.Errorf("agent %s error (%s): %s", host, status, eb.Error)
	for _, k := range kinds {
		if eb.Kind == k.Error() {
			return &engine.RunError{Kind: k, Err: err}
		}
	}
	return err
}

var _ engine.Runner = (*Client)(nil)
