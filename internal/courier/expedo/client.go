// Package expedo implements the courier.Client interface against the
// Expedo HTTP API.
package expedo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/cache"
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/courier"

	"github.com/pkg/errors"
)

// TokenStore caches session tokens per tenant. Satisfied by
// cache.RedisCache and cache.MemoryStore.
type TokenStore interface {
	Get(ctx context.Context, key string, value interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

// Client talks to the Expedo API.
type Client struct {
	baseURL  string
	httpc    *http.Client
	tokens   TokenStore
	tokenTTL time.Duration
}

// Config holds the client settings.
type Config struct {
	BaseURL        string
	RequestTimeout time.Duration
	TokenTTL       time.Duration
}

// New creates a new Expedo client.
func New(cfg Config, tokens TokenStore) *Client {
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	ttl := cfg.TokenTTL
	if ttl == 0 {
		// Provider sessions last ~24h; expire earlier to absorb clock skew.
		ttl = 23 * time.Hour
	}
	return &Client{
		baseURL:  cfg.BaseURL,
		httpc:    &http.Client{Timeout: timeout},
		tokens:   tokens,
		tokenTTL: ttl,
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	ClientID string `json:"client_id"`
}

type loginResponse struct {
	Token string `json:"token"`
	Error string `json:"error"`
}

// Authenticate exchanges credentials for a bearer token. Tokens are
// cached per (client id, username) pair so tenants never share sessions.
func (c *Client) Authenticate(ctx context.Context, creds courier.Credentials) (string, error) {
	key := cache.GetCourierTokenCacheKey(creds.ClientID, creds.Username)

	var token string
	if c.tokens != nil {
		if err := c.tokens.Get(ctx, key, &token); err == nil && token != "" {
			return token, nil
		}
	}

	token, err := c.login(ctx, creds)
	if err != nil {
		return "", err
	}

	if c.tokens != nil {
		if err := c.tokens.Set(ctx, key, token, c.tokenTTL); err != nil {
			// A cold cache only costs an extra login next time.
			return token, nil
		}
	}
	return token, nil
}

func (c *Client) login(ctx context.Context, creds courier.Credentials) (string, error) {
	var resp loginResponse
	status, err := c.do(ctx, http.MethodPost, "/login", "", loginRequest{
		Username: creds.Username,
		Password: creds.Password,
		ClientID: creds.ClientID,
	}, &resp)
	if err != nil {
		return "", err
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return "", courier.NewError(courier.CodeAuth, "authentication failed").
			WithCause(errors.New(resp.Error))
	}
	if status/100 != 2 || resp.Token == "" {
		return "", courier.NewError(courier.CodeTransport,
			fmt.Sprintf("login failed with http %d", status)).WithRetryable(true)
	}
	return resp.Token, nil
}

// invalidateToken drops the cached token after a 401 so the next call
// performs a fresh login.
func (c *Client) invalidateToken(ctx context.Context, creds courier.Credentials) {
	if c.tokens == nil {
		return
	}
	key := cache.GetCourierTokenCacheKey(creds.ClientID, creds.Username)
	_ = c.tokens.Set(ctx, key, "", time.Millisecond)
}

type createAwbResponse struct {
	AwbNumber string            `json:"awb_number"`
	Errors    map[string]string `json:"errors"`
	Error     string            `json:"error"`
}

// CreateAWB validates the spec locally and submits it to the provider.
func (c *Client) CreateAWB(ctx context.Context, creds courier.Credentials, spec courier.AWBSpec) (courier.CreateResult, error) {
	if err := spec.Validate(); err != nil {
		return courier.CreateResult{}, err
	}

	payload := buildAwbPayload(spec)

	var resp createAwbResponse
	status, err := c.doAuthed(ctx, creds, http.MethodPost, "/awb", payload, &resp)
	if err != nil {
		return courier.CreateResult{}, err
	}

	if status/100 == 2 && resp.AwbNumber != "" {
		return courier.CreateResult{AwbNumber: resp.AwbNumber}, nil
	}

	if status == http.StatusBadRequest || status == http.StatusUnprocessableEntity {
		rejection := courier.NewError(courier.CodeRejected, providerMessage(resp))
		for field, msg := range resp.Errors {
			rejection.WithField(field, msg)
		}
		return courier.CreateResult{}, rejection
	}

	return courier.CreateResult{}, courier.NewError(courier.CodeTransport,
		fmt.Sprintf("awb creation failed with http %d", status)).WithRetryable(true)
}

// Track fetches and normalizes the tracking feed for one AWB.
func (c *Client) Track(ctx context.Context, creds courier.Credentials, awbNumber string) (courier.TrackingResult, error) {
	var resp trackResponse
	path := "/awb/" + url.PathEscape(awbNumber) + "/events"
	status, err := c.doAuthed(ctx, creds, http.MethodGet, path, nil, &resp)
	if err != nil {
		return courier.TrackingResult{}, err
	}

	if status == http.StatusNotFound {
		return courier.TrackingResult{}, courier.NewError(courier.CodeNotFound,
			fmt.Sprintf("awb %s not found", awbNumber))
	}
	if status/100 != 2 {
		return courier.TrackingResult{}, courier.NewError(courier.CodeTransport,
			fmt.Sprintf("tracking failed with http %d", status)).WithRetryable(true)
	}
	if resp.Error != "" {
		// Some deployments answer 200 with an error body for unknown AWBs.
		if courier.IsNotFound(errors.New(resp.Error)) {
			return courier.TrackingResult{}, courier.NewError(courier.CodeNotFound, resp.Error)
		}
		return courier.TrackingResult{}, courier.NewError(courier.CodeTransport, resp.Error).
			WithRetryable(true)
	}

	return resp.normalize(), nil
}

// Delete removes an AWB on the provider side.
func (c *Client) Delete(ctx context.Context, creds courier.Credentials, awbNumber string) error {
	var resp struct {
		Error string `json:"error"`
	}
	path := "/awb/" + url.PathEscape(awbNumber)
	status, err := c.doAuthed(ctx, creds, http.MethodDelete, path, nil, &resp)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		return courier.NewError(courier.CodeNotFound,
			fmt.Sprintf("awb %s not found", awbNumber))
	}
	if status/100 != 2 {
		return courier.NewError(courier.CodeTransport,
			fmt.Sprintf("awb deletion failed with http %d", status)).WithRetryable(true)
	}
	return nil
}

// Localities lists the provider's localities for a county.
func (c *Client) Localities(ctx context.Context, creds courier.Credentials, county string) ([]courier.NomenclatureEntry, error) {
	q := url.Values{"county": {county}}
	return c.nomenclature(ctx, creds, "/nomenclature/localities?"+q.Encode())
}

// Streets lists the street nomenclature for a (county, locality) pair.
func (c *Client) Streets(ctx context.Context, creds courier.Credentials, county, locality string) ([]courier.NomenclatureEntry, error) {
	q := url.Values{"county": {county}, "locality": {locality}}
	return c.nomenclature(ctx, creds, "/nomenclature/streets?"+q.Encode())
}

func (c *Client) nomenclature(ctx context.Context, creds courier.Credentials, path string) ([]courier.NomenclatureEntry, error) {
	var resp nomenclatureResponse
	status, err := c.doAuthed(ctx, creds, http.MethodGet, path, nil, &resp)
	if err != nil {
		return nil, err
	}
	if status/100 != 2 {
		return nil, courier.NewError(courier.CodeTransport,
			fmt.Sprintf("nomenclature lookup failed with http %d", status)).WithRetryable(true)
	}
	return resp.normalize(), nil
}

// doAuthed performs an authenticated request, retrying once with a fresh
// login when the cached token has been invalidated remotely.
func (c *Client) doAuthed(ctx context.Context, creds courier.Credentials, method, path string, body, out interface{}) (int, error) {
	token, err := c.Authenticate(ctx, creds)
	if err != nil {
		return 0, err
	}

	status, err := c.do(ctx, method, path, token, body, out)
	if err != nil {
		return 0, err
	}
	if status == http.StatusUnauthorized {
		c.invalidateToken(ctx, creds)
		token, err = c.Authenticate(ctx, creds)
		if err != nil {
			return 0, err
		}
		return c.do(ctx, method, path, token, body, out)
	}
	return status, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out interface{}) (int, error) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, errors.Wrap(err, "failed to marshal request body")
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return 0, courier.NewError(courier.CodeTransport, "request failed").
			WithCause(err).WithRetryable(true)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			// Tolerate empty bodies on non-2xx answers; the status code
			// carries the signal there.
			if resp.StatusCode/100 == 2 {
				return resp.StatusCode, errors.Wrap(err, "failed to decode response")
			}
		}
	}
	return resp.StatusCode, nil
}

func providerMessage(resp createAwbResponse) string {
	if resp.Error != "" {
		return resp.Error
	}
	return "awb rejected by provider"
}
