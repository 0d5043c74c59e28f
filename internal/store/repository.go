package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"sgp-service/internal/util"

	"go.uber.org/zap"
)

const maxListPages = 1000

var errMissingID = errors.New("record has no id")

// Repository maps raw records of a RecordStore onto typed entities.
// Malformed list entries are logged and skipped so one bad row never
// hides the rest of a collection.
type Repository struct {
	rs       RecordStore
	pageSize int
	logger   *zap.Logger
}

// NewRepository creates a typed repository over a record store
func NewRepository(rs RecordStore, pageSize int) *Repository {
	if pageSize <= 0 {
		pageSize = 500
	}
	return &Repository{
		rs:       rs,
		pageSize: pageSize,
		logger:   util.GetLogger().Named("repository"),
	}
}

// RecordStore returns the underlying record store
func (r *Repository) RecordStore() RecordStore {
	return r.rs
}

// listAll walks every page of a collection. Table APIs may cap the page size
// below the requested limit, so a reported total (or else the limit the
// server actually applied) decides when the last page was read.
func (r *Repository) listAll(ctx context.Context, collection string, params ListParams) ([]json.RawMessage, error) {
	params.Limit = r.pageSize
	var all []json.RawMessage
	for page := 1; page <= maxListPages; page++ {
		params.Page = page
		resp, err := r.rs.List(ctx, collection, params)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", collection, err)
		}
		if len(resp.Data) == 0 {
			break
		}
		all = append(all, resp.Data...)

		switch {
		case resp.Total > 0:
			if len(all) >= resp.Total {
				return all, nil
			}
		case resp.Limit > 0:
			if len(resp.Data) < resp.Limit {
				return all, nil
			}
		}
	}
	return all, nil
}

func decodeList[T any](r *Repository, collection string, raws []json.RawMessage, check func(T) error) []T {
	out := make([]T, 0, len(raws))
	for i, raw := range raws {
		var rec T
		if err := json.Unmarshal(raw, &rec); err != nil {
			r.logger.Warn("Skipping malformed record",
				zap.String("collection", collection),
				zap.Int("index", i),
				zap.Error(err))
			continue
		}
		if err := check(rec); err != nil {
			r.logger.Warn("Skipping invalid record",
				zap.String("collection", collection),
				zap.Int("index", i),
				zap.Error(err))
			continue
		}
		out = append(out, rec)
	}
	return out
}

// decodeOne decodes a single record. A nil or JSON null payload yields (nil, nil).
func decodeOne[T any](collection string, raw json.RawMessage, check func(T) error) (*T, error) {
	if isNull(raw) {
		return nil, nil
	}
	var rec T
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("malformed %s record: %w", collection, err)
	}
	if err := check(rec); err != nil {
		return nil, fmt.Errorf("invalid %s record: %w", collection, err)
	}
	return &rec, nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
