package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"sgp-service/internal/models"
	"sgp-service/internal/store"
	"sgp-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultDedupTTL = 2 * time.Minute

// AlertOptions tunes AlertService
type AlertOptions struct {
	ExpiringSoonDays int
	// DedupTTL is how long an idempotency key stays claimed after an alert is persisted.
	DedupTTL time.Duration
}

// AlertService persists alerts computed by the engines and created by users
type AlertService struct {
	repo      *store.Repository
	guard     IdempotencyGuard
	publisher EventPublisher
	opts      AlertOptions
	logger    *zap.Logger
	now       func() time.Time
}

// NewAlertService creates a new alert service. guard may be nil, in which
// case deduplication relies on the batch index and the store alone.
func NewAlertService(repo *store.Repository, guard IdempotencyGuard, publisher EventPublisher, opts AlertOptions) *AlertService {
	if opts.ExpiringSoonDays <= 0 {
		opts.ExpiringSoonDays = DefaultExpiringSoonDays
	}
	if opts.DedupTTL <= 0 {
		opts.DedupTTL = defaultDedupTTL
	}
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &AlertService{
		repo:      repo,
		guard:     guard,
		publisher: publisher,
		opts:      opts,
		logger:    util.GetLogger().Named("alert-service"),
		now:       time.Now,
	}
}

// CreateDueAlerts reads proposals and alerts once, generates the due
// "vencimento_proximo" alerts and persists them. A failing draft is logged
// and skipped. Returns the number of alerts actually created.
func (s *AlertService) CreateDueAlerts(ctx context.Context, now time.Time) (int, error) {
	ctx, span := util.StartSpan(ctx, "AlertService.CreateDueAlerts")
	defer span.End()

	proposals, err := s.repo.ListProposals(ctx, store.ProposalFilter{})
	if err != nil {
		return 0, fmt.Errorf("failed to load proposals: %w", err)
	}
	alerts, err := s.repo.ListAlerts(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load alerts: %w", err)
	}

	drafts := generateDueAlerts(proposals, alerts, now, s.opts.ExpiringSoonDays)

	created := 0
	for _, draft := range drafts {
		alert, err := s.persist(ctx, draft, now, true)
		if err != nil {
			util.BatchFailuresTotal.WithLabelValues("alert_generation").Inc()
			s.logger.Error("Failed to create due alert",
				zap.String("proposal_id", draft.ProposalRef()),
				zap.Error(err))
			continue
		}
		if alert != nil {
			created++
		}
	}

	if created > 0 {
		s.logger.Info("Due alerts created", zap.Int("created", created), zap.Int("drafts", len(drafts)))
	}
	return created, nil
}

// CreateManual creates a user alert without proposal reference. tipo defaults to "info".
func (s *AlertService) CreateManual(ctx context.Context, mensagem, tipo string) (*models.Alert, error) {
	ctx, span := util.StartSpan(ctx, "AlertService.CreateManual")
	defer span.End()

	mensagem = strings.TrimSpace(mensagem)
	if mensagem == "" {
		return nil, fmt.Errorf("%w: mensagem is required", ErrInvalidAlert)
	}
	tipo = strings.TrimSpace(tipo)
	if tipo == "" {
		tipo = models.AlertTypeInfo
	}

	alert, err := s.persist(ctx, models.AlertDraft{TipoAlerta: tipo, Mensagem: mensagem}, s.now(), false)
	if err != nil {
		return nil, err
	}
	if alert == nil {
		return nil, fmt.Errorf("%w: an equivalent active alert already exists", ErrInvalidAlert)
	}
	return alert, nil
}

// persist stores a draft. With dedup set and a guard configured, the draft's
// idempotency key is claimed first. A nil alert with nil error means the
// draft was a duplicate and was dropped.
func (s *AlertService) persist(ctx context.Context, draft models.AlertDraft, now time.Time, dedup bool) (*models.Alert, error) {
	key := ""
	if dedup && s.guard != nil && draft.PropostaID != nil {
		key = DedupKey(*draft.PropostaID, draft.TipoAlerta)
		claimed, err := s.guard.ClaimIdempotencyKey(ctx, key, s.opts.DedupTTL)
		switch {
		case err != nil:
			s.logger.Warn("Idempotency guard unavailable, relying on store constraint",
				zap.String("key", key), zap.Error(err))
			key = ""
		case !claimed:
			util.AlertsDuplicateSuppressed.Inc()
			s.logger.Debug("Alert already being created elsewhere", zap.String("key", key))
			return nil, nil
		}
	}

	alert := draft.ToAlert(uuid.New().String(), models.NewTimestamp(now))
	if err := s.repo.CreateAlert(ctx, &alert); err != nil {
		if errors.Is(err, store.ErrConflict) {
			util.AlertsDuplicateSuppressed.Inc()
			s.logger.Debug("Duplicate alert rejected by store", zap.String("proposal_id", draft.ProposalRef()))
			return nil, nil
		}
		if key != "" {
			if rerr := s.guard.ReleaseIdempotencyKey(ctx, key); rerr != nil {
				s.logger.Warn("Failed to release idempotency key", zap.String("key", key), zap.Error(rerr))
			}
		}
		return nil, err
	}

	util.AlertsCreatedTotal.WithLabelValues(alert.TipoAlerta).Inc()

	event := &models.AlertCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeAlertCreated,
			Timestamp: time.Now(),
		},
		AlertID:    alert.ID,
		PropostaID: alert.PropostaID,
		TipoAlerta: alert.TipoAlerta,
		Mensagem:   alert.Mensagem,
	}
	if err := s.publisher.PublishAlertCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish AlertCreated event", zap.String("alert_id", alert.ID), zap.Error(err))
	}

	return &alert, nil
}
