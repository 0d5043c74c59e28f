package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"sgp-service/internal/util"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const defaultPageSize = 100

const schema = `
CREATE TABLE IF NOT EXISTS records (
	collection TEXT        NOT NULL,
	id         TEXT        NOT NULL,
	data       JSONB       NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (collection, id)
);

CREATE UNIQUE INDEX IF NOT EXISTS records_active_expiring_alert_uniq
	ON records ((data->>'proposta_id'))
	WHERE collection = 'alertas'
	  AND data->>'tipo_alerta' = 'vencimento_proximo'
	  AND data->'ativo' = 'true'::jsonb;`

var fieldPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresStore keeps every collection in a single JSONB table.
type PostgresStore struct {
	db *sqlx.DB
}

var _ RecordStore = (*PostgresStore)(nil)

// NewPostgresStore connects to Postgres and ensures the records schema exists
func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PostgresStore{db: db}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the records table and the alert uniqueness index
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply records schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *PostgresStore) GetDB() *sqlx.DB {
	return s.db
}

// List returns one page of a collection
func (s *PostgresStore) List(ctx context.Context, collection string, params ListParams) (resp *ListResponse, err error) {
	defer observe("LIST", collection, time.Now(), &err)

	where, args, err := buildWhere(collection, params)
	if err != nil {
		return nil, err
	}

	var total int
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM records WHERE "+where, args...); err != nil {
		return nil, fmt.Errorf("failed to count %s: %w", collection, err)
	}

	limit := params.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	page := params.Page
	if page <= 0 {
		page = 1
	}
	query := fmt.Sprintf("SELECT data FROM records WHERE %s ORDER BY %s LIMIT %d OFFSET %d",
		where, orderBy(params.Sort), limit, (page-1)*limit)

	var rows [][]byte
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}

	data := make([]json.RawMessage, 0, len(rows))
	for _, row := range rows {
		data = append(data, json.RawMessage(row))
	}
	return &ListResponse{Data: data, Total: total, Page: page, Limit: limit, Table: collection}, nil
}

// Get returns one record or nil when it does not exist
func (s *PostgresStore) Get(ctx context.Context, collection, id string) (raw json.RawMessage, err error) {
	defer observe("GET", collection, time.Now(), &err)

	var data []byte
	err = s.db.GetContext(ctx, &data,
		"SELECT data FROM records WHERE collection = $1 AND id = $2", collection, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

// Create inserts a record, generating an id when the record has none
func (s *PostgresStore) Create(ctx context.Context, collection string, record any) (raw json.RawMessage, err error) {
	defer observe("POST", collection, time.Now(), &err)

	fields, err := encodeRecord(record)
	if err != nil {
		return nil, err
	}
	id, _ := fields["id"].(string)
	if strings.TrimSpace(id) == "" {
		id = uuid.NewString()
		fields["id"] = id
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}

	var data []byte
	err = s.db.GetContext(ctx, &data, `
		INSERT INTO records (collection, id, data)
		VALUES ($1, $2, $3::jsonb)
		RETURNING data`,
		collection, id, string(payload))
	if err != nil {
		return nil, mapPQError(err)
	}
	return json.RawMessage(data), nil
}

// Update replaces a record
func (s *PostgresStore) Update(ctx context.Context, collection, id string, record any) (raw json.RawMessage, err error) {
	defer observe("PUT", collection, time.Now(), &err)

	fields, err := encodeRecord(record)
	if err != nil {
		return nil, err
	}
	fields["id"] = id
	payload, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}

	var data []byte
	err = s.db.GetContext(ctx, &data, `
		UPDATE records SET data = $3::jsonb, updated_at = NOW()
		WHERE collection = $1 AND id = $2
		RETURNING data`,
		collection, id, string(payload))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return nil, mapPQError(err)
	}
	return json.RawMessage(data), nil
}

// Patch merges fields into a record
func (s *PostgresStore) Patch(ctx context.Context, collection, id string, fields map[string]any) (raw json.RawMessage, err error) {
	defer observe("PATCH", collection, time.Now(), &err)

	partial := make(map[string]any, len(fields))
	for k, v := range fields {
		if k == "id" {
			continue
		}
		partial[k] = v
	}
	payload, err := json.Marshal(partial)
	if err != nil {
		return nil, err
	}

	var data []byte
	err = s.db.GetContext(ctx, &data, `
		UPDATE records SET data = data || $3::jsonb, updated_at = NOW()
		WHERE collection = $1 AND id = $2
		RETURNING data`,
		collection, id, string(payload))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return nil, mapPQError(err)
	}
	return json.RawMessage(data), nil
}

// Delete removes a record
func (s *PostgresStore) Delete(ctx context.Context, collection, id string) (ok bool, err error) {
	defer observe("DELETE", collection, time.Now(), &err)

	res, err := s.db.ExecContext(ctx,
		"DELETE FROM records WHERE collection = $1 AND id = $2", collection, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return true, nil
}

func buildWhere(collection string, params ListParams) (string, []any, error) {
	clauses := []string{"collection = $1"}
	args := []any{collection}

	if search := strings.TrimSpace(params.Search); search != "" {
		args = append(args, "%"+search+"%")
		clauses = append(clauses, fmt.Sprintf("data::text ILIKE $%d", len(args)))
	}

	fields := make([]string, 0, len(params.Filters))
	for field := range params.Filters {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		if !fieldPattern.MatchString(field) {
			return "", nil, fmt.Errorf("invalid filter field %q", field)
		}
		args = append(args, field, params.Filters[field])
		clauses = append(clauses, fmt.Sprintf("data->>$%d = $%d", len(args)-1, len(args)))
	}
	return strings.Join(clauses, " AND "), args, nil
}

func orderBy(sortField string) string {
	sortField = strings.TrimSpace(sortField)
	dir := "ASC"
	if strings.HasPrefix(sortField, "-") {
		dir = "DESC"
		sortField = sortField[1:]
	}
	if sortField == "" || !fieldPattern.MatchString(sortField) {
		return "created_at " + dir
	}
	return fmt.Sprintf("data->>'%s' %s, created_at %s", sortField, dir, dir)
}

func mapPQError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrConflict, pqErr.Constraint)
	}
	return err
}

func observe(method, collection string, start time.Time, errp *error) {
	outcome := "ok"
	if errp != nil && *errp != nil {
		outcome = "error"
	}
	util.StoreRequestDuration.WithLabelValues(method, collection, outcome).Observe(time.Since(start).Seconds())
}
