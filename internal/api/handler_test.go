package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"sgp-service/internal/models"
	"sgp-service/internal/service"
	"sgp-service/internal/store"
	"sgp-service/internal/util"
	"sgp-service/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
	util.SetLogger(zap.NewNop())
}

type testServer struct {
	router *gin.Engine
	mem    *store.MemoryStore
	inbox  *service.Inbox
}

func newTestServer(t *testing.T, ready func(context.Context) error) *testServer {
	t.Helper()
	mem := store.NewMemoryStore()
	repo := store.NewRepository(mem, 0)
	alerts := service.NewAlertService(repo, nil, nil, service.AlertOptions{})
	proposals := service.NewProposalService(repo, alerts, nil, service.ProposalOptions{})
	inbox := service.NewInbox(repo)

	h := NewHandler(Services{
		Proposals: proposals,
		Alerts:    alerts,
		Inbox:     inbox,
		Stats:     service.NewStatsService(repo),
		Catalog:   repo,
		Scheduler: worker.NewScheduler(proposals, alerts, inbox, nil, worker.SchedulerConfig{}),
		Ready:     ready,
	})
	router := gin.New()
	h.SetupRoutes(router)
	return &testServer{router: router, mem: mem, inbox: inbox}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func proposalBody(numero string, validade time.Time) map[string]any {
	return map[string]any{
		"numero_proposta": numero,
		"produto_id":      "prod-1",
		"fornecedor_id":   "forn-1",
		"quantidade":      10,
		"preco_unitario":  2.5,
		"data_validade":   validade.Format(time.RFC3339),
	}
}

func (s *testServer) createProposal(t *testing.T, numero string, validade time.Time) models.Proposal {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/propostas", proposalBody(numero, validade))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[models.Proposal](t, w)
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, nil)

	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/ready", nil).Code)

	down := newTestServer(t, func(context.Context) error { return errors.New("store unreachable") })
	w := down.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "store unreachable")
}

func TestCreateProposal(t *testing.T) {
	srv := newTestServer(t, nil)

	p := srv.createProposal(t, "PROP-001", time.Now().Add(90*24*time.Hour))
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, models.ProposalStatusPending, p.Status)
	assert.Equal(t, 25.0, p.PrecoTotal)

	t.Run("duplicate number", func(t *testing.T) {
		w := srv.do(t, http.MethodPost, "/api/v1/propostas", proposalBody("PROP-001", time.Now()))
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("invalid input", func(t *testing.T) {
		w := srv.do(t, http.MethodPost, "/api/v1/propostas", map[string]any{"quantidade": 0})
		require.Equal(t, http.StatusBadRequest, w.Code)

		body := decode[struct {
			Violations map[string]string `json:"violations"`
		}](t, w)
		assert.Contains(t, body.Violations, "numero_proposta")
		assert.Contains(t, body.Violations, "quantidade")
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/propostas", bytes.NewBufferString("{"))
		w := httptest.NewRecorder()
		srv.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestGetAndUpdateProposal(t *testing.T) {
	srv := newTestServer(t, nil)
	p := srv.createProposal(t, "PROP-001", time.Now().Add(90*24*time.Hour))

	w := srv.do(t, http.MethodGet, "/api/v1/propostas/"+p.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "PROP-001", decode[models.Proposal](t, w).NumeroProposta)

	assert.Equal(t, http.StatusNotFound, srv.do(t, http.MethodGet, "/api/v1/propostas/missing", nil).Code)

	body := proposalBody("PROP-001", time.Now().Add(90*24*time.Hour))
	body["quantidade"] = 4
	w = srv.do(t, http.MethodPut, "/api/v1/propostas/"+p.ID, body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 10.0, decode[models.Proposal](t, w).PrecoTotal)

	assert.Equal(t, http.StatusNotFound, srv.do(t, http.MethodPut, "/api/v1/propostas/missing", body).Code)
}

func TestListProposals(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.createProposal(t, "PROP-001", time.Now().Add(90*24*time.Hour))
	srv.createProposal(t, "PROP-002", time.Now().Add(90*24*time.Hour))

	w := srv.do(t, http.MethodGet, "/api/v1/propostas", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, decode[struct {
		Total int `json:"total"`
	}](t, w).Total)
}

func TestSetProposalStatus(t *testing.T) {
	srv := newTestServer(t, nil)
	p := srv.createProposal(t, "PROP-001", time.Now().Add(90*24*time.Hour))

	w := srv.do(t, http.MethodPatch, "/api/v1/propostas/"+p.ID+"/status", map[string]string{"status": "aprovada"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.ProposalStatusApproved, decode[models.Proposal](t, w).Status)

	w = srv.do(t, http.MethodPatch, "/api/v1/propostas/"+p.ID+"/status", map[string]string{"status": "expirada"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = srv.do(t, http.MethodPatch, "/api/v1/propostas/"+p.ID+"/status", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequestRenewalCreatesAlert(t *testing.T) {
	srv := newTestServer(t, nil)
	p := srv.createProposal(t, "PROP-001", time.Now().Add(10*24*time.Hour))

	w := srv.do(t, http.MethodPost, "/api/v1/propostas/"+p.ID+"/renovacao", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.ProposalStatusRenewalRequested, decode[models.Proposal](t, w).Status)

	w = srv.do(t, http.MethodGet, "/api/v1/alertas?tipo=renovacao_solicitada", nil)
	require.Equal(t, http.StatusOK, w.Code)
	alerts := decode[struct {
		Data []models.Alert `json:"data"`
	}](t, w).Data
	require.Len(t, alerts, 1)
	assert.Equal(t, p.ID, alerts[0].ProposalRef())

	assert.Equal(t, http.StatusNotFound, srv.do(t, http.MethodPost, "/api/v1/propostas/missing/renovacao", nil).Code)
}

func TestExpiringAndOverdue(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.createProposal(t, "PROP-001", time.Now().Add(10*24*time.Hour))
	srv.createProposal(t, "PROP-002", time.Now().Add(-3*24*time.Hour))
	srv.createProposal(t, "PROP-003", time.Now().Add(200*24*time.Hour))

	w := srv.do(t, http.MethodGet, "/api/v1/propostas/vencendo", nil)
	require.Equal(t, http.StatusOK, w.Code)
	soon := decode[struct {
		Data []models.Proposal `json:"data"`
	}](t, w).Data
	require.Len(t, soon, 1)
	assert.Equal(t, "PROP-001", soon[0].NumeroProposta)

	w = srv.do(t, http.MethodGet, "/api/v1/propostas/vencendo?dias=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[struct {
		Data []models.Proposal `json:"data"`
	}](t, w).Data)

	assert.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodGet, "/api/v1/propostas/vencendo?dias=abc", nil).Code)

	w = srv.do(t, http.MethodGet, "/api/v1/propostas/vencidas", nil)
	require.Equal(t, http.StatusOK, w.Code)
	overdue := decode[struct {
		Data []models.Proposal `json:"data"`
	}](t, w).Data
	require.Len(t, overdue, 1)
	assert.Equal(t, "PROP-002", overdue[0].NumeroProposta)
}

func TestAlertInbox(t *testing.T) {
	srv := newTestServer(t, nil)

	w := srv.do(t, http.MethodPost, "/api/v1/alertas", map[string]string{"mensagem": "Revisar contratos"})
	require.Equal(t, http.StatusCreated, w.Code)
	manual := decode[models.Alert](t, w)
	assert.Equal(t, models.AlertTypeInfo, manual.TipoAlerta)
	assert.Equal(t, 1, srv.inbox.Badge())

	assert.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodPost, "/api/v1/alertas", map[string]string{}).Code)

	w = srv.do(t, http.MethodPost, "/api/v1/alertas", map[string]string{"mensagem": "Segundo", "tipo_alerta": "info"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = srv.do(t, http.MethodGet, "/api/v1/alertas/nao-lidos", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"nao_lidos":2}`, w.Body.String())

	w = srv.do(t, http.MethodPatch, "/api/v1/alertas/"+manual.ID+"/lido", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"nao_lidos":1}`, w.Body.String())

	assert.Equal(t, http.StatusNotFound, srv.do(t, http.MethodPatch, "/api/v1/alertas/missing/lido", nil).Code)

	w = srv.do(t, http.MethodDelete, "/api/v1/alertas/lidos", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"removidos":1,"nao_lidos":1}`, w.Body.String())

	w = srv.do(t, http.MethodPost, "/api/v1/alertas/lidos", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"atualizados":1,"nao_lidos":0}`, w.Body.String())

	w = srv.do(t, http.MethodGet, "/api/v1/alertas", nil)
	require.Equal(t, http.StatusOK, w.Code)
	active := decode[struct {
		Data []models.Alert `json:"data"`
	}](t, w).Data
	require.Len(t, active, 1)

	w = srv.do(t, http.MethodDelete, "/api/v1/alertas/"+active[0].ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = srv.do(t, http.MethodGet, "/api/v1/alertas/resumo", nil)
	require.Equal(t, http.StatusOK, w.Code)
	summary := decode[service.AlertSummary](t, w)
	assert.Zero(t, summary.Total)
}

func TestMonitorRun(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.createProposal(t, "PROP-001", time.Now().Add(-2*24*time.Hour))
	srv.createProposal(t, "PROP-002", time.Now().Add(7*24*time.Hour))

	w := srv.do(t, http.MethodPost, "/api/v1/monitor/run", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := decode[worker.TickResult](t, w)
	assert.Equal(t, 1, result.Expired)
	assert.Equal(t, 1, result.AlertsCreated)

	w = srv.do(t, http.MethodGet, "/api/v1/alertas/resumo", nil)
	require.Equal(t, http.StatusOK, w.Code)
	summary := decode[service.AlertSummary](t, w)
	assert.Equal(t, 1, summary.Expired)
	assert.Equal(t, 1, summary.ExpiringSoon)
	assert.Equal(t, 2, summary.Unread)
}

func TestCatalogAndStats(t *testing.T) {
	srv := newTestServer(t, nil)
	ctx := context.Background()
	_, err := srv.mem.Create(ctx, models.CollectionProducts, models.Product{ID: "prod-1", Nome: "Cimento", Ativo: true})
	require.NoError(t, err)
	_, err = srv.mem.Create(ctx, models.CollectionProducts, models.Product{ID: "prod-2", Nome: "Areia", Ativo: true})
	require.NoError(t, err)
	_, err = srv.mem.Create(ctx, models.CollectionSuppliers, models.Supplier{ID: "forn-1", RazaoSocial: "Construtora X", CNPJ: "00.000.000/0001-00", Ativo: true})
	require.NoError(t, err)
	srv.createProposal(t, "PROP-001", time.Now().Add(90*24*time.Hour))

	w := srv.do(t, http.MethodGet, "/api/v1/produtos?search=cimento", nil)
	require.Equal(t, http.StatusOK, w.Code)
	products := decode[struct {
		Data []models.Product `json:"data"`
	}](t, w).Data
	require.Len(t, products, 1)
	assert.Equal(t, "prod-1", products[0].ID)

	w = srv.do(t, http.MethodGet, "/api/v1/fornecedores", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Construtora X")

	w = srv.do(t, http.MethodGet, "/api/v1/produtos/prod-2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Areia", decode[models.Product](t, w).Nome)
	assert.Equal(t, http.StatusNotFound, srv.do(t, http.MethodGet, "/api/v1/produtos/prod-9", nil).Code)

	w = srv.do(t, http.MethodGet, "/api/v1/fornecedores/forn-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Construtora X", decode[models.Supplier](t, w).RazaoSocial)
	assert.Equal(t, http.StatusNotFound, srv.do(t, http.MethodGet, "/api/v1/fornecedores/forn-9", nil).Code)

	w = srv.do(t, http.MethodGet, "/api/v1/estatisticas", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[service.Stats](t, w)
	assert.Equal(t, 2, stats.TotalProdutos)
	assert.Equal(t, 1, stats.TotalFornecedores)
	assert.Equal(t, 1, stats.TotalPropostas)
	assert.Zero(t, stats.TotalAlertas)
}

func TestListProposals_ByNumber(t *testing.T) {
	srv := newTestServer(t, nil)
	validade := time.Now().Add(90 * 24 * time.Hour)
	created := srv.createProposal(t, "PROP-001", validade)
	srv.createProposal(t, "PROP-002", validade)

	type listing struct {
		Data  []models.Proposal `json:"data"`
		Total int               `json:"total"`
	}

	w := srv.do(t, http.MethodGet, "/api/v1/propostas?numero=PROP-001", nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[listing](t, w)
	require.Len(t, got.Data, 1)
	assert.Equal(t, created.ID, got.Data[0].ID)
	assert.Equal(t, 1, got.Total)

	w = srv.do(t, http.MethodGet, "/api/v1/propostas?numero=PROP-404", nil)
	require.Equal(t, http.StatusOK, w.Code)
	got = decode[listing](t, w)
	assert.Empty(t, got.Data)
	assert.Zero(t, got.Total)
}
