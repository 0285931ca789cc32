// Package disk talks to the Yandex Disk public resources API.
package disk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const apiURL = "https://cloud-api.yandex.net/v1/disk/public/resources"

// pageSize is the listing page size; pageDelay is a small politeness pause
// between page requests against the rate-sensitive remote API.
const (
	pageSize  = 200
	pageDelay = 50 * time.Millisecond
)

// Entry is one item of a directory listing.
type Entry struct {
	Type        string `json:"type"`
	Path        string `json:"path"`
	Name        string `json:"name"`
	Modified    string `json:"modified"`
	Created     string `json:"created"`
	MD5         string `json:"md5"`
	ResourceID  string `json:"resource_id"`
	DownloadURL string `json:"file"`
}

// IsFile reports whether the entry is a regular file.
func (e *Entry) IsFile() bool { return e.Type == "file" }

// IsDir reports whether the entry is a directory.
func (e *Entry) IsDir() bool { return e.Type == "dir" }

type listResponse struct {
	Embedded struct {
		Items []Entry `json:"items"`
	} `json:"_embedded"`
}

// Client lists directories under one public disk root.
type Client struct {
	http    *http.Client
	root    string
	baseURL string
	timeout time.Duration
	delay   time.Duration
}

// New creates a Client for the given public root URL.
func New(httpClient *http.Client, publicRootURL string) *Client {
	return &Client{
		http:    httpClient,
		root:    publicRootURL,
		baseURL: apiURL,
		timeout: 10 * time.Second,
		delay:   pageDelay,
	}
}

// SetTimeout overrides the default per-request timeout.
func (c *Client) SetTimeout(d time.Duration) {
	c.timeout = d
}

// Root returns the public root URL this client watches.
func (c *Client) Root() string { return c.root }

// ListDirectory fetches one page of a directory listing.
func (c *Client) ListDirectory(ctx context.Context, path string, offset, limit int) ([]Entry, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := url.Values{}
	params.Set("public_key", c.root)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))
	if path != "" {
		params.Set("path", path)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	var parsed listResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse listing: %w", err)
	}
	return parsed.Embedded.Items, nil
}

// FetchDirectory fetches a complete directory listing page by page, pausing
// between pages, until a short page signals the end.
func (c *Client) FetchDirectory(ctx context.Context, path string) ([]Entry, error) {
	var all []Entry
	offset := 0
	for {
		items, err := c.ListDirectory(ctx, path, offset, pageSize)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			break
		}
		all = append(all, items...)
		if len(items) < pageSize {
			break
		}
		offset += pageSize

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.delay):
		}
	}
	return all, nil
}
