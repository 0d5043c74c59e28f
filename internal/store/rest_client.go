package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"sgp-service/internal/util"

	"github.com/google/uuid"
)

// HTTPDoer is the subset of *http.Client used by RESTClient.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RESTClient talks to the generic table API at <baseURL>/tables/<collection>.
type RESTClient struct {
	baseURL    string
	token      string
	httpClient HTTPDoer
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

var _ RecordStore = (*RESTClient)(nil)

// NewRESTClient creates a REST table API client
func NewRESTClient(baseURL, token string, httpClient HTTPDoer) *RESTClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:3000"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &RESTClient{
		baseURL:    baseURL,
		token:      strings.TrimSpace(token),
		httpClient: httpClient,
		maxRetries: 3,
		baseDelay:  100 * time.Millisecond,
		maxDelay:   2 * time.Second,
	}
}

// List fetches one page of records
func (c *RESTClient) List(ctx context.Context, collection string, params ListParams) (*ListResponse, error) {
	requestPath := tablePath(collection)
	if q := params.Values().Encode(); q != "" {
		requestPath += "?" + q
	}
	var out ListResponse
	if err := c.doJSON(ctx, http.MethodGet, collection, requestPath, nil, &out); err != nil {
		return nil, err
	}
	if out.Data == nil {
		out.Data = []json.RawMessage{}
	}
	return &out, nil
}

// Get fetches one record, returning nil when it does not exist
func (c *RESTClient) Get(ctx context.Context, collection, id string) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.doJSON(ctx, http.MethodGet, collection, recordPath(collection, id), nil, &out)
	if err != nil {
		if httpErr, ok := err.(*HTTPError); ok && httpErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	return out, nil
}

// Create inserts a record
func (c *RESTClient) Create(ctx context.Context, collection string, record any) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.doJSON(ctx, http.MethodPost, collection, tablePath(collection), record, &out)
	return out, err
}

// Update replaces a record
func (c *RESTClient) Update(ctx context.Context, collection, id string, record any) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.doJSON(ctx, http.MethodPut, collection, recordPath(collection, id), record, &out)
	return out, err
}

// Patch merges fields into a record
func (c *RESTClient) Patch(ctx context.Context, collection, id string, fields map[string]any) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.doJSON(ctx, http.MethodPatch, collection, recordPath(collection, id), fields, &out)
	return out, err
}

// Delete removes a record
func (c *RESTClient) Delete(ctx context.Context, collection, id string) (bool, error) {
	if err := c.doJSON(ctx, http.MethodDelete, collection, recordPath(collection, id), nil, nil); err != nil {
		return false, err
	}
	return true, nil
}

// Close is a no-op; the HTTP client is owned by the caller.
func (c *RESTClient) Close() error {
	return nil
}

func (c *RESTClient) doJSON(
	ctx context.Context,
	method, collection, requestPath string,
	body any,
	out any,
) (err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		util.StoreRequestDuration.WithLabelValues(method, collection, outcome).Observe(time.Since(start).Seconds())
	}()

	var bodyBytes []byte
	if body != nil {
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}
	for attempt := 0; ; attempt++ {
		var bodyReader io.Reader
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bodyReader)
		if err != nil {
			return err
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Request-Id", uuid.NewString())
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		// A failed POST may already have been applied; only 429 is safe to resend.
		resendable := method != http.MethodPost

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if resendable && attempt < c.maxRetries && ctx.Err() == nil {
				if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, "")); waitErr != nil {
					return waitErr
				}
				continue
			}
			return fmt.Errorf("%s %s: %w", method, requestPath, err)
		}
		payload, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return readErr
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			if out == nil || len(bytes.TrimSpace(payload)) == 0 {
				return nil
			}
			if err := json.Unmarshal(payload, out); err != nil {
				return fmt.Errorf("failed to decode %s response: %w", collection, err)
			}
			return nil
		}

		retryable := resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resendable)
		if retryable && attempt < c.maxRetries {
			if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
				return waitErr
			}
			continue
		}

		var errPayload struct {
			Code    string `json:"code"`
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		_ = json.Unmarshal(payload, &errPayload)
		if errPayload.Message == "" {
			errPayload.Message = errPayload.Error
		}
		if errPayload.Message == "" {
			errPayload.Message = http.StatusText(resp.StatusCode)
		}
		return &HTTPError{
			StatusCode: resp.StatusCode,
			Code:       errPayload.Code,
			Message:    errPayload.Message,
		}
	}
}

func (c *RESTClient) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	maxDelay := c.maxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	if retryAfter := parseRetryAfter(retryAfterHeader); retryAfter > 0 {
		if retryAfter > maxDelay {
			return maxDelay
		}
		return retryAfter
	}
	delay := c.baseDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	return delay
}

func parseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if ts, err := time.Parse(time.RFC1123, header); err == nil {
		if delta := time.Until(ts); delta > 0 {
			return delta
		}
	}
	return 0
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func tablePath(collection string) string {
	return "/tables/" + url.PathEscape(collection)
}

func recordPath(collection, id string) string {
	return tablePath(collection) + "/" + url.PathEscape(id)
}
