package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"sgp-service/internal/models"

	"github.com/google/uuid"
)

// MemoryStore is an in-process RecordStore. It mirrors the Postgres backend,
// including the uniqueness rule for active expiring-soon alerts.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
}

type memCollection struct {
	order   []string
	records map[string]map[string]any
}

var _ RecordStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: map[string]*memCollection{}}
}

// List returns one page of a collection
func (m *MemoryStore) List(_ context.Context, collection string, params ListParams) (*ListResponse, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := []map[string]any{}
	if c, ok := m.collections[collection]; ok {
		search := strings.ToLower(strings.TrimSpace(params.Search))
		for _, id := range c.order {
			rec := c.records[id]
			if !matchesFilters(rec, params.Filters) {
				continue
			}
			if search != "" && !matchesSearch(rec, search) {
				continue
			}
			matched = append(matched, rec)
		}
	}

	if field := strings.TrimSpace(params.Sort); field != "" {
		desc := strings.HasPrefix(field, "-")
		field = strings.TrimPrefix(field, "-")
		sort.SliceStable(matched, func(i, j int) bool {
			if desc {
				return lessValue(matched[j][field], matched[i][field])
			}
			return lessValue(matched[i][field], matched[j][field])
		})
	}

	limit := params.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	page := params.Page
	if page <= 0 {
		page = 1
	}
	start := (page - 1) * limit
	if start > len(matched) {
		start = len(matched)
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}

	data := make([]json.RawMessage, 0, end-start)
	for _, rec := range matched[start:end] {
		raw, err := json.Marshal(rec)
		if err != nil {
			return nil, err
		}
		data = append(data, raw)
	}
	return &ListResponse{Data: data, Total: len(matched), Page: page, Limit: limit, Table: collection}, nil
}

// Get returns one record or nil when it does not exist
func (m *MemoryStore) Get(_ context.Context, collection, id string) (json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.collections[collection]
	if !ok {
		return nil, nil
	}
	rec, ok := c.records[id]
	if !ok {
		return nil, nil
	}
	return json.Marshal(rec)
}

// Create inserts a record, generating an id when the record has none
func (m *MemoryStore) Create(_ context.Context, collection string, record any) (json.RawMessage, error) {
	fields, err := encodeRecord(record)
	if err != nil {
		return nil, err
	}
	id, _ := fields["id"].(string)
	if strings.TrimSpace(id) == "" {
		id = uuid.NewString()
		fields["id"] = id
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.collection(collection)
	if _, exists := c.records[id]; exists {
		return nil, fmt.Errorf("%w: %s/%s already exists", ErrConflict, collection, id)
	}
	if err := m.checkUnique(collection, id, fields); err != nil {
		return nil, err
	}
	c.records[id] = fields
	c.order = append(c.order, id)
	return json.Marshal(fields)
}

// Update replaces a record
func (m *MemoryStore) Update(_ context.Context, collection, id string, record any) (json.RawMessage, error) {
	fields, err := encodeRecord(record)
	if err != nil {
		return nil, err
	}
	fields["id"] = id

	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.collection(collection)
	if _, exists := c.records[id]; !exists {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	if err := m.checkUnique(collection, id, fields); err != nil {
		return nil, err
	}
	c.records[id] = fields
	return json.Marshal(fields)
}

// Patch merges fields into a record
func (m *MemoryStore) Patch(_ context.Context, collection, id string, fields map[string]any) (json.RawMessage, error) {
	partial, err := encodeRecord(fields)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.collection(collection)
	current, exists := c.records[id]
	if !exists {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	merged := make(map[string]any, len(current)+len(partial))
	for k, v := range current {
		merged[k] = v
	}
	for k, v := range partial {
		if k == "id" {
			continue
		}
		merged[k] = v
	}
	if err := m.checkUnique(collection, id, merged); err != nil {
		return nil, err
	}
	c.records[id] = merged
	return json.Marshal(merged)
}

// Delete removes a record
func (m *MemoryStore) Delete(_ context.Context, collection, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.collection(collection)
	if _, exists := c.records[id]; !exists {
		return false, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	delete(c.records, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return true, nil
}

// Close is a no-op
func (m *MemoryStore) Close() error {
	return nil
}

func (m *MemoryStore) collection(name string) *memCollection {
	c, ok := m.collections[name]
	if !ok {
		c = &memCollection{records: map[string]map[string]any{}}
		m.collections[name] = c
	}
	return c
}

// checkUnique enforces at most one active expiring-soon alert per proposal.
func (m *MemoryStore) checkUnique(collection, id string, rec map[string]any) error {
	if collection != models.CollectionAlerts || !isActiveExpiringAlert(rec) {
		return nil
	}
	proposalID := fmt.Sprint(rec["proposta_id"])
	for otherID, other := range m.collection(collection).records {
		if otherID == id || !isActiveExpiringAlert(other) {
			continue
		}
		if fmt.Sprint(other["proposta_id"]) == proposalID {
			return fmt.Errorf("%w: active %s alert already exists for proposal %s",
				ErrConflict, models.AlertTypeExpiringSoon, proposalID)
		}
	}
	return nil
}

func isActiveExpiringAlert(rec map[string]any) bool {
	ativo, _ := rec["ativo"].(bool)
	tipo, _ := rec["tipo_alerta"].(string)
	return ativo && tipo == models.AlertTypeExpiringSoon && rec["proposta_id"] != nil
}

func matchesFilters(rec map[string]any, filters map[string]string) bool {
	for field, want := range filters {
		value, ok := rec[field]
		if !ok || value == nil {
			return false
		}
		if fmt.Sprint(value) != want {
			return false
		}
	}
	return true
}

func matchesSearch(rec map[string]any, needle string) bool {
	for _, value := range rec {
		if s, ok := value.(string); ok && strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}
	return false
}

func lessValue(a, b any) bool {
	af, aNum := a.(float64)
	bf, bNum := b.(float64)
	if aNum && bNum {
		return af < bf
	}
	if a == nil {
		return b != nil
	}
	if b == nil {
		return false
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}
