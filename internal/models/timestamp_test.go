package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestamp_Time(t *testing.T) {
	want := time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		raw  Timestamp
	}{
		{"date only", "2026-03-15"},
		{"rfc3339", "2026-03-15T00:00:00Z"},
		{"without zone", "2026-03-15T00:00:00"},
		{"with space", "2026-03-15 00:00:00"},
		{"unix millis", Timestamp("1773532800000")},
		{"unix seconds", Timestamp("1773532800")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := tc.raw.Time()
			require.True(t, ok)
			assert.True(t, want.Equal(got), "got %s", got)
		})
	}
}

func TestTimestamp_Unparseable(t *testing.T) {
	for _, raw := range []Timestamp{"", "   ", "amanhã", "15/03/2026"} {
		_, ok := raw.Time()
		assert.False(t, ok, "%q", raw)
		assert.Equal(t, FarFuture, raw.TimeOr(FarFuture))
	}
	assert.Equal(t, "amanhã", Timestamp("amanhã").FormatBR())
}

func TestTimestamp_FormatBR(t *testing.T) {
	assert.Equal(t, "15/03/2026", Timestamp("2026-03-15T10:30:00Z").FormatBR())
	assert.Equal(t, "01/12/2025", NewTimestamp(time.Date(2025, 12, 1, 8, 0, 0, 0, time.UTC)).FormatBR())
}

func TestNewTimestamp_FixedWidth(t *testing.T) {
	whole := NewTimestamp(time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC))
	half := NewTimestamp(time.Date(2026, 3, 15, 12, 0, 0, 500_000_000, time.UTC))

	assert.Equal(t, Timestamp("2026-03-15T12:00:00.000Z"), whole)
	assert.Equal(t, Timestamp("2026-03-15T12:00:00.500Z"), half)
	assert.Less(t, string(whole), string(half))

	got, ok := half.Time()
	require.True(t, ok)
	assert.Equal(t, 500*time.Millisecond, got.Sub(time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)))
}

func TestTimestamp_JSON(t *testing.T) {
	var rec struct {
		Criacao  Timestamp `json:"data_criacao"`
		Validade Timestamp `json:"data_validade"`
		Alerta   Timestamp `json:"data_alerta"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"data_criacao":" 2026-01-02 ","data_validade":1773532800000,"data_alerta":null}`), &rec))

	assert.Equal(t, Timestamp("2026-01-02"), rec.Criacao)
	assert.Equal(t, Timestamp("1773532800000"), rec.Validade)
	assert.True(t, rec.Alerta.IsZero())

	out, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{"data_criacao":"2026-01-02","data_validade":1773532800000,"data_alerta":null}`, string(out))
}

func TestAlertHelpers(t *testing.T) {
	manual := Alert{ID: "a-1", Ativo: true}
	assert.Equal(t, "", manual.ProposalRef())
	assert.True(t, manual.Unread())

	manual.Lido = true
	assert.False(t, manual.Unread())

	draft := AlertDraft{PropostaID: StringPtr("p-1"), TipoAlerta: AlertTypeExpiringSoon, Mensagem: "m"}
	created := NewTimestamp(time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC))
	a := draft.ToAlert("a-2", created)

	assert.Equal(t, "p-1", a.ProposalRef())
	assert.True(t, a.Ativo)
	assert.False(t, a.Lido)
	assert.Equal(t, created, a.DataAlerta)
	assert.Nil(t, StringPtr(""))
}

func TestProposalStatusValid(t *testing.T) {
	for _, s := range []ProposalStatus{
		ProposalStatusPending, ProposalStatusApproved, ProposalStatusRejected,
		ProposalStatusExpired, ProposalStatusRenewalRequested,
	} {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, ProposalStatus("cancelada").Valid())
	assert.False(t, ProposalStatus("").Valid())
}
