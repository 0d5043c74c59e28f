package service

import (
	"context"
	"strings"
	"sync/atomic"

	"sgp-service/internal/models"
	"sgp-service/internal/store"
	"sgp-service/internal/util"

	"go.uber.org/zap"
)

// AlertSummary counts active alerts per engine type
type AlertSummary struct {
	Total            int `json:"total"`
	Unread           int `json:"nao_lidos"`
	ExpiringSoon     int `json:"vencimento_proximo"`
	Expired          int `json:"vencido"`
	RenewalRequested int `json:"renovacao_solicitada"`
	Other            int `json:"outros"`
}

// Inbox is the read model over persisted alerts. It caches the last unread
// count for the badge and refreshes it after every mutation.
type Inbox struct {
	repo   *store.Repository
	unread atomic.Int64
	logger *zap.Logger
}

// NewInbox creates a new alert inbox
func NewInbox(repo *store.Repository) *Inbox {
	return &Inbox{
		repo:   repo,
		logger: util.GetLogger().Named("inbox"),
	}
}

// ListActive returns active alerts in store order, optionally restricted to one tipo_alerta
func (i *Inbox) ListActive(ctx context.Context, tipo string) ([]models.Alert, error) {
	ctx, span := util.StartSpan(ctx, "Inbox.ListActive")
	defer span.End()

	alerts, err := i.repo.ListAlerts(ctx)
	if err != nil {
		return nil, err
	}
	tipo = strings.TrimSpace(tipo)
	out := make([]models.Alert, 0, len(alerts))
	for _, a := range alerts {
		if !a.Ativo {
			continue
		}
		if tipo != "" && a.TipoAlerta != tipo {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// MarkRead sets lido = true. Marking an already read alert is a no-op.
func (i *Inbox) MarkRead(ctx context.Context, id string) error {
	ctx, span := util.StartSpan(ctx, "Inbox.MarkRead")
	defer span.End()

	a, err := i.getExisting(ctx, id)
	if err != nil {
		return err
	}
	if !a.Lido {
		if err := i.repo.MarkAlertRead(ctx, a.ID); err != nil {
			return err
		}
	}
	i.refreshAfterMutation(ctx)
	return nil
}

// MarkAllRead marks every active unread alert as read and returns how many were updated
func (i *Inbox) MarkAllRead(ctx context.Context) (int, error) {
	ctx, span := util.StartSpan(ctx, "Inbox.MarkAllRead")
	defer span.End()

	alerts, err := i.repo.ListAlerts(ctx)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, a := range alerts {
		if !a.Unread() {
			continue
		}
		if err := i.repo.MarkAlertRead(ctx, a.ID); err != nil {
			util.BatchFailuresTotal.WithLabelValues("mark_read").Inc()
			i.logger.Error("Failed to mark alert read", zap.String("alert_id", a.ID), zap.Error(err))
			continue
		}
		updated++
	}

	i.refreshAfterMutation(ctx)
	return updated, nil
}

// SoftDelete sets ativo = false; the record is kept
func (i *Inbox) SoftDelete(ctx context.Context, id string) error {
	ctx, span := util.StartSpan(ctx, "Inbox.SoftDelete")
	defer span.End()

	a, err := i.getExisting(ctx, id)
	if err != nil {
		return err
	}
	if a.Ativo {
		if err := i.repo.DeactivateAlert(ctx, a.ID); err != nil {
			return err
		}
	}
	i.refreshAfterMutation(ctx)
	return nil
}

// ClearRead soft-deletes every active read alert and returns how many were removed
func (i *Inbox) ClearRead(ctx context.Context) (int, error) {
	ctx, span := util.StartSpan(ctx, "Inbox.ClearRead")
	defer span.End()

	alerts, err := i.repo.ListAlerts(ctx)
	if err != nil {
		return 0, err
	}

	cleared := 0
	for _, a := range alerts {
		if !a.Ativo || !a.Lido {
			continue
		}
		if err := i.repo.DeactivateAlert(ctx, a.ID); err != nil {
			util.BatchFailuresTotal.WithLabelValues("clear_read").Inc()
			i.logger.Error("Failed to clear alert", zap.String("alert_id", a.ID), zap.Error(err))
			continue
		}
		cleared++
	}

	i.refreshAfterMutation(ctx)
	return cleared, nil
}

// UnreadCount recomputes the number of active unread alerts and caches it
func (i *Inbox) UnreadCount(ctx context.Context) (int, error) {
	alerts, err := i.repo.ListAlerts(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, a := range alerts {
		if a.Unread() {
			n++
		}
	}
	i.unread.Store(int64(n))
	util.AlertsUnread.Set(float64(n))
	return n, nil
}

// Refresh recomputes the cached unread count
func (i *Inbox) Refresh(ctx context.Context) error {
	_, err := i.UnreadCount(ctx)
	return err
}

// Badge returns the last computed unread count
func (i *Inbox) Badge() int {
	return int(i.unread.Load())
}

// Summary counts active alerts by type
func (i *Inbox) Summary(ctx context.Context) (*AlertSummary, error) {
	ctx, span := util.StartSpan(ctx, "Inbox.Summary")
	defer span.End()

	active, err := i.ListActive(ctx, "")
	if err != nil {
		return nil, err
	}
	summary := &AlertSummary{Total: len(active)}
	for _, a := range active {
		if !a.Lido {
			summary.Unread++
		}
		switch a.TipoAlerta {
		case models.AlertTypeExpiringSoon:
			summary.ExpiringSoon++
		case models.AlertTypeExpired:
			summary.Expired++
		case models.AlertTypeRenewalRequested:
			summary.RenewalRequested++
		default:
			summary.Other++
		}
	}
	i.unread.Store(int64(summary.Unread))
	util.AlertsUnread.Set(float64(summary.Unread))
	return summary, nil
}

func (i *Inbox) getExisting(ctx context.Context, id string) (*models.Alert, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrAlertNotFound
	}
	a, err := i.repo.GetAlert(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrAlertNotFound
	}
	return a, nil
}

func (i *Inbox) refreshAfterMutation(ctx context.Context) {
	if err := i.Refresh(ctx); err != nil {
		i.logger.Warn("Failed to refresh unread count", zap.Error(err))
	}
}
