// Package download opens the update package URL as a byte stream.
//
// The request identifies the device: serial number and installed versions
// are appended to the query string and the OS version is sent in the
// User-Agent header. No timeout is applied; callers cancel through the
// context.
package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/juju/ratelimit"

	"updateengine/internal/config"
	"updateengine/internal/failure"
	"updateengine/internal/system"
)

const defaultProduct = "Victor"

// Identity is the device information attached to every request.
type Identity struct {
	Serial        string
	OSVersion     string
	VictorVersion string
}

// LookupIdentity reads the identity properties. Every property must be set.
func LookupIdentity(ctx context.Context, props system.Properties, names config.Properties) (Identity, error) {
	var id Identity
	for _, field := range []struct {
		name string
		dst  *string
	}{
		{names.Serial, &id.Serial},
		{names.Version, &id.OSVersion},
		{names.VictorVersion, &id.VictorVersion},
	} {
		value, ok := props.Get(ctx, field.name)
		if !ok {
			return Identity{}, failure.Newf(failure.CodeDownload, "open url", "Failed to open URL: property %s unavailable", field.name)
		}
		*field.dst = value
	}
	return id, nil
}

// BuildURL appends the identity query to raw. Only http and https URLs are
// accepted.
func BuildURL(raw string, id Identity) (string, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", failure.Wrap(failure.CodeDownload, "open url", "Failed to open URL", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", failure.Newf(failure.CodeDownload, "open url", "Failed to open URL: unsupported scheme %q", parsed.Scheme)
	}
	switch {
	case !strings.Contains(raw, "?"):
		raw += "?"
	case !strings.HasSuffix(raw, "?"):
		raw += "&"
	}
	raw += fmt.Sprintf("emresn=%s&ankiversion=%s&victorversion=%s",
		url.QueryEscape(id.Serial), url.QueryEscape(id.OSVersion), url.QueryEscape(id.VictorVersion))
	return raw, nil
}

// Config describes the client.
type Config struct {
	Product      string
	RateLimitKiB int
	HTTPClient   *http.Client
}

// Client fetches update packages.
type Client struct {
	product string
	limit   int64
	http    *http.Client
}

// New creates a Client from cfg.
func New(cfg Config) *Client {
	product := strings.TrimSpace(cfg.Product)
	if product == "" {
		product = defaultProduct
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	var limit int64
	if cfg.RateLimitKiB > 0 {
		limit = int64(cfg.RateLimitKiB) * 1024
	}
	return &Client{product: product, limit: limit, http: client}
}

// NewFromConfig creates a Client from the download section.
func NewFromConfig(cfg config.Download) *Client {
	return New(Config{Product: cfg.UserAgentProduct, RateLimitKiB: cfg.RateLimitKiB})
}

// Response is an open package download.
type Response struct {
	io.Reader
	// ContentLength is the length reported by the server, or -1.
	ContentLength int64
	body          io.Closer
}

// Close releases the connection.
func (r *Response) Close() error {
	return r.body.Close()
}

// Open starts the download of raw on behalf of id.
func (c *Client) Open(ctx context.Context, raw string, id Identity) (*Response, error) {
	target, err := BuildURL(raw, id)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, failure.Wrap(failure.CodeDownload, "open url", "Failed to open URL", err)
	}
	req.Header.Set("User-Agent", fmt.Sprintf("%s/%s", c.product, id.OSVersion))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, failure.Wrap(failure.CodeDownload, "open url", "Failed to open URL", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, failure.Newf(failure.CodeDownload, "open url", "Failed to open URL: HTTP Error %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	var body io.Reader = resp.Body
	if c.limit > 0 {
		bucket := ratelimit.NewBucketWithRate(float64(c.limit), 2*c.limit)
		body = ratelimit.Reader(resp.Body, bucket)
	}
	return &Response{Reader: body, ContentLength: resp.ContentLength, body: resp.Body}, nil
}
