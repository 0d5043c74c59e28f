package store

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"sgp-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(t *testing.T, resp *ListResponse) []string {
	t.Helper()
	out := make([]string, 0, len(resp.Data))
	for _, raw := range resp.Data {
		var rec struct {
			ID string `json:"id"`
		}
		require.NoError(t, json.Unmarshal(raw, &rec))
		out = append(out, rec.ID)
	}
	return out
}

func expiringAlert(id, proposalID string) models.Alert {
	return models.Alert{
		ID:         id,
		PropostaID: models.StringPtr(proposalID),
		TipoAlerta: models.AlertTypeExpiringSoon,
		Mensagem:   "vence em breve",
		Ativo:      true,
	}
}

func TestMemoryStore_CreateAssignsID(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	raw, err := m.Create(ctx, "produtos", map[string]any{"nome": "Cimento"})
	require.NoError(t, err)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(raw, &rec))
	assert.NotEmpty(t, rec["id"])

	_, err = m.Create(ctx, "produtos", map[string]any{"id": rec["id"], "nome": "Areia"})
	assert.ErrorIs(t, err, ErrConflict)
	page, err := m.List(ctx, "produtos", ListParams{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

func TestMemoryStore_ListPaginatesAndFilters(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		status := "pendente"
		if i%2 == 0 {
			status = "aprovada"
		}
		_, err := m.Create(ctx, "propostas", map[string]any{
			"id":              fmt.Sprintf("p-%d", i),
			"numero_proposta": fmt.Sprintf("PROP-%03d", i),
			"status":          status,
			"quantidade":      float64(10 - i),
		})
		require.NoError(t, err)
	}

	page, err := m.List(ctx, "propostas", ListParams{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"p-3", "p-4"}, ids(t, page))
	assert.Equal(t, 5, page.Total)

	page, err = m.List(ctx, "propostas", ListParams{Page: 4, Limit: 2})
	require.NoError(t, err)
	assert.Empty(t, page.Data)

	page, err = m.List(ctx, "propostas", ListParams{Filters: map[string]string{"status": "aprovada"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"p-2", "p-4"}, ids(t, page))

	page, err = m.List(ctx, "propostas", ListParams{Search: "prop-005"})
	require.NoError(t, err)
	assert.Equal(t, []string{"p-5"}, ids(t, page))

	page, err = m.List(ctx, "propostas", ListParams{Sort: "quantidade"})
	require.NoError(t, err)
	assert.Equal(t, []string{"p-5", "p-4", "p-3", "p-2", "p-1"}, ids(t, page))

	page, err = m.List(ctx, "propostas", ListParams{Sort: "-numero_proposta"})
	require.NoError(t, err)
	assert.Equal(t, []string{"p-5", "p-4", "p-3", "p-2", "p-1"}, ids(t, page))

	page, err = m.List(ctx, "missing", ListParams{})
	require.NoError(t, err)
	assert.Empty(t, page.Data)
}

func TestMemoryStore_GetUpdatePatchDelete(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	raw, err := m.Get(ctx, "alertas", "a-1")
	require.NoError(t, err)
	assert.Nil(t, raw)

	_, err = m.Create(ctx, "alertas", map[string]any{"id": "a-1", "mensagem": "x", "lido": false})
	require.NoError(t, err)

	raw, err = m.Patch(ctx, "alertas", "a-1", map[string]any{"lido": true, "id": "other"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"a-1","mensagem":"x","lido":true}`, string(raw))

	raw, err = m.Update(ctx, "alertas", "a-1", map[string]any{"mensagem": "y"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"a-1","mensagem":"y"}`, string(raw))

	_, err = m.Patch(ctx, "alertas", "missing", map[string]any{"lido": true})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.Update(ctx, "alertas", "missing", map[string]any{})
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := m.Delete(ctx, "alertas", "a-1")
	require.NoError(t, err)
	assert.True(t, ok)
	_, err = m.Delete(ctx, "alertas", "a-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_OneActiveExpiringAlertPerProposal(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	_, err := m.Create(ctx, models.CollectionAlerts, expiringAlert("a-1", "p-1"))
	require.NoError(t, err)

	_, err = m.Create(ctx, models.CollectionAlerts, expiringAlert("a-2", "p-1"))
	assert.ErrorIs(t, err, ErrConflict)

	_, err = m.Create(ctx, models.CollectionAlerts, expiringAlert("a-3", "p-2"))
	assert.NoError(t, err, "other proposals are independent")

	expired := expiringAlert("a-4", "p-1")
	expired.TipoAlerta = models.AlertTypeExpired
	_, err = m.Create(ctx, models.CollectionAlerts, expired)
	assert.NoError(t, err, "only expiring-soon alerts are unique")

	manual := expiringAlert("a-5", "")
	_, err = m.Create(ctx, models.CollectionAlerts, manual)
	require.NoError(t, err)
	_, err = m.Create(ctx, models.CollectionAlerts, expiringAlert("a-6", ""))
	assert.NoError(t, err, "alerts without a proposal are not constrained")

	_, err = m.Patch(ctx, models.CollectionAlerts, "a-1", map[string]any{"ativo": false})
	require.NoError(t, err)
	_, err = m.Create(ctx, models.CollectionAlerts, expiringAlert("a-7", "p-1"))
	assert.NoError(t, err, "a soft-deleted alert frees the slot")

	_, err = m.Patch(ctx, models.CollectionAlerts, "a-1", map[string]any{"ativo": true})
	assert.ErrorIs(t, err, ErrConflict, "reactivating would create a second active alert")
}
