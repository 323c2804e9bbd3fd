package server

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

	"github.com/danmuck/globalbehavior/internal/window"
)

const defaultClientTimeout = 10 * time.Second

// Client drives a node's admin API.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewClient(baseURL, token string) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: defaultClientTimeout},
	}
}

func (c *Client) Trigger(ctx context.Context, name string) error {
	_, err := c.request(ctx, http.MethodPost, "/behaviors/"+url.PathEscape(name)+"/trigger", nil)
	return err
}

func (c *Client) Allow(ctx context.Context, origin string) error {
	_, err := c.request(ctx, http.MethodPost, "/origins", originRequest{Origin: origin})
	return err
}

func (c *Client) StartTicker(ctx context.Context, name string, req TickerRequest) error {
	_, err := c.request(ctx, http.MethodPost, "/tickers/"+url.PathEscape(name), req)
	return err
}

func (c *Client) StopTicker(ctx context.Context, name string) error {
	_, err := c.request(ctx, http.MethodDelete, "/tickers/"+url.PathEscape(name), nil)
	return err
}

func (c *Client) StopAllTickers(ctx context.Context) error {
	_, err := c.request(ctx, http.MethodDelete, "/tickers", nil)
	return err
}

func (c *Client) Snapshot(ctx context.Context) (window.Snapshot, error) {
	body, err := c.request(ctx, http.MethodGet, "/snapshot", nil)
	if err != nil {
		return window.Snapshot{}, err
	}
	var snap window.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return window.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

func (c *Client) request(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reqBody = buf
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		var er struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(payload, &er) == nil && er.Error != "" {
			return nil, fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, er.Error)
		}
		return nil, fmt.Errorf("%s %s: %d", method, path, resp.StatusCode)
	}
	return payload, nil
}
