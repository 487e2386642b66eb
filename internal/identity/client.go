package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kuitang/loginform/internal/errs"
	"github.com/kuitang/loginform/internal/logutil"
	"github.com/kuitang/loginform/internal/obs"
	"github.com/kuitang/loginform/internal/urlutil"
)

// Default request timeout when the config does not override it.
const DefaultTimeout = 10 * time.Second

// userMessage is the only fetch-failure text shown to users. Transport
// details stay in logs; the rendered page never exposes them.
const userMessage = "Could not sign you in. Please try again."

// Client is the HTTP implementation of Fetcher.
type Client struct {
	endpoint string
	http     *http.Client
}

// NewClient creates a client for the identity endpoint.
// A non-positive timeout falls back to DefaultTimeout.
func NewClient(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		endpoint: urlutil.Normalize(endpoint),
		http:     &http.Client{Timeout: timeout},
	}
}

type fetchRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Fetch posts the credentials as JSON and decodes the identity payload.
// All failure modes collapse into a single errs.FetchFailed error; the
// caller converts it into the form's error message.
func (c *Client) Fetch(ctx context.Context, creds Credentials) (Identity, error) {
	body, err := json.Marshal(fetchRequest{
		Username: creds.Username,
		Password: creds.Password,
	})
	if err != nil {
		return Identity{}, errs.Wrap(errs.Internal, userMessage, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Identity{}, errs.Wrap(errs.Internal, userMessage, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		obs.From(ctx).Warn("identity_fetch_transport_error", "endpoint", c.endpoint, "error", err.Error())
		return Identity{}, errs.Wrap(errs.FetchFailed, userMessage, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// A bounded read gives the log a snippet and drains the connection
		// for reuse.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		obs.From(ctx).Warn("identity_fetch_bad_status",
			"endpoint", c.endpoint,
			"status", resp.StatusCode,
			"body", logutil.TruncateForLog(string(snippet), 256),
		)
		return Identity{}, errs.Wrap(errs.FetchFailed, userMessage,
			fmt.Errorf("identity endpoint returned %d", resp.StatusCode))
	}

	var ident Identity
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&ident); err != nil {
		obs.From(ctx).Warn("identity_fetch_bad_payload", "endpoint", c.endpoint, "error", err.Error())
		return Identity{}, errs.Wrap(errs.FetchFailed, userMessage, err)
	}
	if ident.Name == "" {
		return Identity{}, errs.Wrap(errs.FetchFailed, userMessage,
			fmt.Errorf("identity payload missing name"))
	}

	return ident, nil
}
