package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record conflict")
)

// RecordStore is the generic table API every backend implements.
//
// Get returns (nil, nil) when the record does not exist. Update replaces the
// whole record; Patch merges the given fields into it.
type RecordStore interface {
	List(ctx context.Context, collection string, params ListParams) (*ListResponse, error)
	Get(ctx context.Context, collection, id string) (json.RawMessage, error)
	Create(ctx context.Context, collection string, record any) (json.RawMessage, error)
	Update(ctx context.Context, collection, id string, record any) (json.RawMessage, error)
	Patch(ctx context.Context, collection, id string, fields map[string]any) (json.RawMessage, error)
	Delete(ctx context.Context, collection, id string) (bool, error)
	Close() error
}

// ListParams are the query parameters understood by List.
type ListParams struct {
	Search  string
	Filters map[string]string
	Page    int
	Limit   int
	// Sort names a field; a leading "-" sorts descending.
	Sort string
}

// Values encodes the params as a table API query string.
func (p ListParams) Values() url.Values {
	q := url.Values{}
	if s := strings.TrimSpace(p.Search); s != "" {
		q.Set("search", s)
	}
	for field, value := range p.Filters {
		if strings.TrimSpace(field) == "" {
			continue
		}
		q.Set(field, value)
	}
	if p.Page > 0 {
		q.Set("page", strconv.Itoa(p.Page))
	}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	if s := strings.TrimSpace(p.Sort); s != "" {
		q.Set("sort", s)
	}
	return q
}

// ListResponse is the JSON envelope returned by List.
type ListResponse struct {
	Data  []json.RawMessage `json:"data"`
	Total int               `json:"total"`
	Page  int               `json:"page"`
	Limit int               `json:"limit"`
	Table string            `json:"table,omitempty"`
}

// HTTPError is a non-2xx answer from the REST table API.
type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("http %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

func (e *HTTPError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == 404
	case ErrConflict:
		return e.StatusCode == 409
	}
	return false
}

// New builds the backend named by kind.
func New(kind string, opts Options) (RecordStore, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "rest":
		return NewRESTClient(opts.BaseURL, opts.Token, opts.HTTPClient), nil
	case "postgres":
		return NewPostgresStore(opts.DatabaseURL)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", kind)
	}
}

// Options configures New.
type Options struct {
	BaseURL     string
	Token       string
	DatabaseURL string
	HTTPClient  HTTPDoer
}

func encodeRecord(record any) (map[string]any, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}
	fields := map[string]any{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("record must be a JSON object: %w", err)
	}
	return fields, nil
}
