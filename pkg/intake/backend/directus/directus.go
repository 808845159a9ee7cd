package directus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tendant/simple-intake/pkg/intake"
)

// DefaultTimeout bounds a single HTTP call when the client carries no timeout
const DefaultTimeout = 30 * time.Second

// tokenSlack is subtracted from the server-reported expiry before reuse
const tokenSlack = 30 * time.Second

// Config holds the connection settings for a Directus instance
type Config struct {
	BaseURL string

	// Email and Password authenticate through /auth/login
	Email    string
	Password string

	// StaticToken skips login and is sent as a bearer token
	StaticToken string

	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     *slog.Logger
}

// Client implements intake.Store against the Directus items API
type Client struct {
	baseURL     *url.URL
	http        *http.Client
	email       string
	password    string
	staticToken string
	logger      *slog.Logger
	now         func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// New creates a Directus client
func New(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, errors.New("directus base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(config.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid directus base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid directus base URL scheme %q", base.Scheme)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		timeout := config.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:     base,
		http:        httpClient,
		email:       config.Email,
		password:    config.Password,
		staticToken: config.StaticToken,
		logger:      logger,
		now:         time.Now,
	}, nil
}

type envelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	// Expires is the token lifetime in milliseconds
	Expires int64 `json:"expires"`
}

// Login authenticates with the configured credentials and caches the token
func (c *Client) Login(ctx context.Context) (string, error) {
	if c.email == "" || c.password == "" {
		return "", &intake.BackendError{Op: "login", Err: errors.New("directus credentials are not configured")}
	}

	body := map[string]string{"email": c.email, "password": c.password}
	var resp loginResponse
	if err := c.send(ctx, http.MethodPost, "/auth/login", nil, body, "", &resp, "", "login"); err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", &intake.BackendError{Op: "login", Err: errors.New("login response carries no access token")}
	}

	c.mu.Lock()
	c.token = resp.AccessToken
	if resp.Expires > 0 {
		c.expiresAt = c.now().Add(time.Duration(resp.Expires) * time.Millisecond)
	} else {
		c.expiresAt = time.Time{}
	}
	c.mu.Unlock()

	c.logger.Debug("Authenticated with directus", "base_url", c.baseURL.String())
	return resp.AccessToken, nil
}

// authToken returns the bearer token for the next call. An empty token means
// unauthenticated access.
func (c *Client) authToken(ctx context.Context) (string, error) {
	if c.staticToken != "" {
		return c.staticToken, nil
	}
	if c.email == "" {
		return "", nil
	}

	c.mu.Lock()
	token, expiresAt := c.token, c.expiresAt
	c.mu.Unlock()
	if token != "" && (expiresAt.IsZero() || c.now().Add(tokenSlack).Before(expiresAt)) {
		return token, nil
	}
	return c.Login(ctx)
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.expiresAt = time.Time{}
	c.mu.Unlock()
}

// call sends an authenticated request and retries once with a fresh login on 401
func (c *Client) call(ctx context.Context, method, path string, query url.Values, body, out interface{}, collection, op string) error {
	token, err := c.authToken(ctx)
	if err != nil {
		return err
	}

	err = c.send(ctx, method, path, query, body, token, out, collection, op)
	var be *intake.BackendError
	if errors.As(err, &be) && be.StatusCode == http.StatusUnauthorized && c.staticToken == "" && c.email != "" {
		c.invalidateToken()
		if token, err = c.Login(ctx); err != nil {
			return err
		}
		return c.send(ctx, method, path, query, body, token, out, collection, op)
	}
	return err
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, body interface{}, token string, out interface{}, collection, op string) error {
	u := *c.baseURL
	u.Path = u.Path + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &intake.BackendError{Collection: collection, Op: op, Err: fmt.Errorf("failed to encode request: %w", err)}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return &intake.BackendError{Collection: collection, Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &intake.BackendError{Collection: collection, Op: op, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return &intake.BackendError{Collection: collection, Op: op, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(collection, op, resp.StatusCode, payload)
	}

	if out == nil || len(payload) == 0 {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return &intake.BackendError{Collection: collection, Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &intake.BackendError{Collection: collection, Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response data: %w", err)}
	}
	return nil
}

func statusError(collection, op string, status int, payload []byte) error {
	var cause error
	var env envelope
	if err := json.Unmarshal(payload, &env); err == nil && len(env.Errors) > 0 {
		messages := make([]string, 0, len(env.Errors))
		for _, e := range env.Errors {
			messages = append(messages, e.Message)
		}
		cause = errors.New(strings.Join(messages, "; "))
	} else {
		cause = errors.New(http.StatusText(status))
	}
	if status == http.StatusNotFound {
		cause = fmt.Errorf("%w: %v", intake.ErrRecordNotFound, cause)
	}
	return &intake.BackendError{Collection: collection, Op: op, StatusCode: status, Err: cause}
}

func itemsPath(collection string, id ...string) string {
	p := "/items/" + collection
	if len(id) > 0 {
		p += "/" + id[0]
	}
	return p
}

// Create posts a record to /items/<collection> and returns the assigned id
func (c *Client) Create(ctx context.Context, collection string, record intake.Record) (string, error) {
	var created intake.Record
	if err := c.call(ctx, http.MethodPost, itemsPath(collection), nil, record, &created, collection, "create"); err != nil {
		return "", err
	}
	return created.ID(), nil
}

// List fetches records from a collection
func (c *Client) List(ctx context.Context, collection string, query intake.ListQuery) ([]intake.Record, error) {
	values := url.Values{}
	if query.NullField != "" {
		values.Set("filter["+query.NullField+"][_null]", "true")
	}
	if query.Limit > 0 {
		values.Set("limit", strconv.Itoa(query.Limit))
	}
	if query.Newest {
		values.Set("sort", "-"+intake.FieldDatetime)
	}

	var records []intake.Record
	if err := c.call(ctx, http.MethodGet, itemsPath(collection), values, nil, &records, collection, "list"); err != nil {
		return nil, err
	}
	return records, nil
}

// Get fetches one record by id
func (c *Client) Get(ctx context.Context, collection, id string) (intake.Record, error) {
	var record intake.Record
	if err := c.call(ctx, http.MethodGet, itemsPath(collection, id), nil, nil, &record, collection, "get"); err != nil {
		return nil, err
	}
	if record == nil {
		return nil, &intake.BackendError{Collection: collection, Op: "get", StatusCode: http.StatusNotFound, Err: intake.ErrRecordNotFound}
	}
	return record, nil
}

// Update patches fields of one record
func (c *Client) Update(ctx context.Context, collection, id string, patch intake.Record) error {
	return c.call(ctx, http.MethodPatch, itemsPath(collection, id), nil, patch, nil, collection, "update")
}

// Ping checks that the instance answers. With credentials configured it
// reuses the cached token and logs in only when the token is missing or stale.
func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, http.MethodGet, "/server/ping", nil, nil, nil, "", "ping")
}
