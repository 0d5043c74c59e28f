package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"sgp-service/internal/models"
	"sgp-service/internal/store"
	"sgp-service/internal/util"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testNow = time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)

var errStoreDown = errors.New("store unavailable")

func init() {
	util.SetLogger(zap.NewNop())
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}

// flakyStore wraps a RecordStore and fails selected operations.
type flakyStore struct {
	store.RecordStore

	mu           sync.Mutex
	failPatch    map[string]bool
	failList     map[string]bool
	failAlertFor map[string]bool
	hideAlerts   bool
	// maxLimit caps the page size of List like a server-side limit would.
	maxLimit int
}

func newFlakyStore(inner store.RecordStore) *flakyStore {
	return &flakyStore{
		RecordStore:  inner,
		failPatch:    map[string]bool{},
		failList:     map[string]bool{},
		failAlertFor: map[string]bool{},
	}
}

func (f *flakyStore) List(ctx context.Context, collection string, params store.ListParams) (*store.ListResponse, error) {
	f.mu.Lock()
	fail, hide := f.failList[collection], f.hideAlerts && collection == models.CollectionAlerts
	if f.maxLimit > 0 && (params.Limit <= 0 || params.Limit > f.maxLimit) {
		params.Limit = f.maxLimit
	}
	f.mu.Unlock()
	if fail {
		return nil, errStoreDown
	}
	if hide {
		return &store.ListResponse{Data: []json.RawMessage{}}, nil
	}
	return f.RecordStore.List(ctx, collection, params)
}

func (f *flakyStore) Patch(ctx context.Context, collection, id string, fields map[string]any) (json.RawMessage, error) {
	f.mu.Lock()
	fail := f.failPatch[id]
	f.mu.Unlock()
	if fail {
		return nil, errStoreDown
	}
	return f.RecordStore.Patch(ctx, collection, id, fields)
}

func (f *flakyStore) Create(ctx context.Context, collection string, record any) (json.RawMessage, error) {
	if a, ok := record.(*models.Alert); ok {
		f.mu.Lock()
		fail := f.failAlertFor[a.ProposalRef()]
		f.mu.Unlock()
		if fail {
			return nil, errStoreDown
		}
	}
	return f.RecordStore.Create(ctx, collection, record)
}

// memoryGuard is an in-process IdempotencyGuard.
type memoryGuard struct {
	mu     sync.Mutex
	claims map[string]bool
	err    error
}

func newMemoryGuard() *memoryGuard {
	return &memoryGuard{claims: map[string]bool{}}
}

func (g *memoryGuard) ClaimIdempotencyKey(_ context.Context, key string, _ time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return false, g.err
	}
	if g.claims[key] {
		return false, nil
	}
	g.claims[key] = true
	return true, nil
}

func (g *memoryGuard) ReleaseIdempotencyKey(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.claims, key)
	return nil
}

func (g *memoryGuard) claimed(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.claims[key]
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu      sync.Mutex
	changed []*models.ProposalChangedEvent
	expired []*models.ProposalExpiredEvent
	alerts  []*models.AlertCreatedEvent
}

func (p *recordingPublisher) PublishProposalChanged(_ context.Context, e *models.ProposalChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changed = append(p.changed, e)
	return nil
}

func (p *recordingPublisher) PublishProposalExpired(_ context.Context, e *models.ProposalExpiredEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expired = append(p.expired, e)
	return nil
}

func (p *recordingPublisher) PublishAlertCreated(_ context.Context, e *models.AlertCreatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alerts = append(p.alerts, e)
	return nil
}

type fixture struct {
	flaky     *flakyStore
	repo      *store.Repository
	guard     *memoryGuard
	publisher *recordingPublisher
	proposals *ProposalService
	alerts    *AlertService
	inbox     *Inbox
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	flaky := newFlakyStore(store.NewMemoryStore())
	repo := store.NewRepository(flaky, 2)
	guard := newMemoryGuard()
	pub := &recordingPublisher{}

	alerts := NewAlertService(repo, guard, pub, AlertOptions{})
	alerts.now = func() time.Time { return testNow }
	proposals := NewProposalService(repo, alerts, pub, ProposalOptions{})
	proposals.now = func() time.Time { return testNow }

	return &fixture{
		flaky:     flaky,
		repo:      repo,
		guard:     guard,
		publisher: pub,
		proposals: proposals,
		alerts:    alerts,
		inbox:     NewInbox(repo),
	}
}

func (f *fixture) createProposal(t *testing.T, numero string, validade time.Time, status models.ProposalStatus) *models.Proposal {
	t.Helper()
	p, err := f.proposals.Create(context.Background(), ProposalInput{
		NumeroProposta: numero,
		ProdutoID:      "prod-1",
		FornecedorID:   "forn-1",
		Quantidade:     2,
		PrecoUnitario:  10,
		DataValidade:   models.NewTimestamp(validade),
		Status:         status,
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) seedAlert(t *testing.T, id, tipo string, lido, ativo bool) models.Alert {
	t.Helper()
	a := models.Alert{
		ID:         id,
		TipoAlerta: tipo,
		Mensagem:   "alerta " + id,
		DataAlerta: models.NewTimestamp(testNow),
		Lido:       lido,
		Ativo:      ativo,
	}
	require.NoError(t, f.repo.CreateAlert(context.Background(), &a))
	return a
}

func (f *fixture) allAlerts(t *testing.T) []models.Alert {
	t.Helper()
	alerts, err := f.repo.ListAlerts(context.Background())
	require.NoError(t, err)
	return alerts
}

func countAlerts(alerts []models.Alert, proposalID, tipo string, activeOnly bool) int {
	n := 0
	for _, a := range alerts {
		if a.ProposalRef() != proposalID || a.TipoAlerta != tipo {
			continue
		}
		if activeOnly && !a.Ativo {
			continue
		}
		n++
	}
	return n
}
