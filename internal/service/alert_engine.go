package service

import (
	"fmt"
	"time"

	"sgp-service/internal/models"
)

// DedupKey is the idempotency key of an engine-generated alert.
func DedupKey(proposalID, tipo string) string {
	return fmt.Sprintf("alerta:%s:%s", proposalID, tipo)
}

type alertKey struct {
	proposalID string
	tipo       string
}

// alertIndex holds the (proposta_id, tipo_alerta) pairs of active alerts.
type alertIndex map[alertKey]struct{}

func indexActiveAlerts(alerts []models.Alert) alertIndex {
	idx := make(alertIndex, len(alerts))
	for _, a := range alerts {
		if !a.Ativo || a.PropostaID == nil {
			continue
		}
		idx[alertKey{proposalID: *a.PropostaID, tipo: a.TipoAlerta}] = struct{}{}
	}
	return idx
}

func (idx alertIndex) has(proposalID, tipo string) bool {
	_, ok := idx[alertKey{proposalID: proposalID, tipo: tipo}]
	return ok
}

func (idx alertIndex) add(proposalID, tipo string) {
	idx[alertKey{proposalID: proposalID, tipo: tipo}] = struct{}{}
}

// GenerateDueAlerts returns one "vencimento_proximo" draft for each pending
// proposal expiring within DefaultExpiringSoonDays that has no active alert
// of that type yet.
func GenerateDueAlerts(proposals []models.Proposal, existing []models.Alert, now time.Time) []models.AlertDraft {
	return generateDueAlerts(proposals, existing, now, DefaultExpiringSoonDays)
}

func generateDueAlerts(proposals []models.Proposal, existing []models.Alert, now time.Time, days int) []models.AlertDraft {
	if days <= 0 {
		days = DefaultExpiringSoonDays
	}
	idx := indexActiveAlerts(existing)

	var drafts []models.AlertDraft
	for _, p := range RenewalCandidates(proposals, now, days) {
		if idx.has(p.ID, models.AlertTypeExpiringSoon) {
			continue
		}
		drafts = append(drafts, models.AlertDraft{
			PropostaID: models.StringPtr(p.ID),
			TipoAlerta: models.AlertTypeExpiringSoon,
			Mensagem: fmt.Sprintf("A proposta %s vence em %s. Solicite renovação.",
				p.NumeroProposta, p.DataValidade.FormatBR()),
		})
		// a proposal listed twice must not yield two drafts
		idx.add(p.ID, models.AlertTypeExpiringSoon)
	}
	return drafts
}
