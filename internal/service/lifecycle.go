package service

import (
	"fmt"
	"time"

	"sgp-service/internal/models"

	"github.com/shopspring/decimal"
)

const (
	// DefaultExpiringSoonDays is the window used for renewal candidates and the "vencendo" view.
	DefaultExpiringSoonDays = 60
	// DefaultValidityMonths is added to data_criacao when data_validade is not supplied.
	DefaultValidityMonths = 6
)

// ReconcileResult is the outcome of ReconcileExpirations.
// Alerts[i] is the "vencido" alert belonging to Updates[i].
type ReconcileResult struct {
	Updates []models.StatusUpdate
	Alerts  []models.AlertDraft
}

// ReconcileExpirations computes the status updates and alerts needed for
// every proposal whose validity lapsed before now. Any status other than
// expirada is overridden, including aprovada and rejeitada. Running it again
// over the updated proposals yields nothing.
func ReconcileExpirations(proposals []models.Proposal, now time.Time) ReconcileResult {
	var result ReconcileResult
	for _, p := range Expired(proposals, now) {
		result.Updates = append(result.Updates, models.StatusUpdate{
			ProposalID:     p.ID,
			NumeroProposta: p.NumeroProposta,
			Status:         models.ProposalStatusExpired,
		})
		result.Alerts = append(result.Alerts, models.AlertDraft{
			PropostaID: models.StringPtr(p.ID),
			TipoAlerta: models.AlertTypeExpired,
			Mensagem:   fmt.Sprintf("A proposta %s expirou em %s", p.NumeroProposta, p.DataValidade.FormatBR()),
		})
	}
	return result
}

// Expired returns the proposals past their validity that are not yet marked expirada.
func Expired(proposals []models.Proposal, now time.Time) []models.Proposal {
	var out []models.Proposal
	for _, p := range proposals {
		if isOverdue(p, now) {
			out = append(out, p)
		}
	}
	return out
}

// ExpiringWithin returns the proposals whose validity falls in [now, now+days].
func ExpiringWithin(proposals []models.Proposal, now time.Time, days int) []models.Proposal {
	var out []models.Proposal
	for _, p := range proposals {
		if isExpiringWithin(p, now, days) {
			out = append(out, p)
		}
	}
	return out
}

// RenewalCandidates returns pending proposals expiring within days.
func RenewalCandidates(proposals []models.Proposal, now time.Time, days int) []models.Proposal {
	var out []models.Proposal
	for _, p := range proposals {
		if p.Status == models.ProposalStatusPending && isExpiringWithin(p, now, days) {
			out = append(out, p)
		}
	}
	return out
}

// CalculateTotal returns quantidade × preco_unitario without binary float drift.
func CalculateTotal(quantidade, precoUnitario float64) float64 {
	return decimal.NewFromFloat(quantidade).Mul(decimal.NewFromFloat(precoUnitario)).InexactFloat64()
}

// validity treats missing or unparseable dates as far future.
func validity(p models.Proposal) time.Time {
	return p.DataValidade.TimeOr(models.FarFuture)
}

func isOverdue(p models.Proposal, now time.Time) bool {
	return p.Status != models.ProposalStatusExpired && validity(p).Before(now)
}

func isExpiringWithin(p models.Proposal, now time.Time, days int) bool {
	if p.Status == models.ProposalStatusExpired {
		return false
	}
	v := validity(p)
	limit := now.Add(time.Duration(days) * 24 * time.Hour)
	return !v.Before(now) && !v.After(limit)
}
