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

// ProposalOptions tunes ProposalService
type ProposalOptions struct {
	ValidityMonths   int
	ExpiringSoonDays int
}

// ProposalService handles proposal business logic
type ProposalService struct {
	repo      *store.Repository
	alerts    *AlertService
	publisher EventPublisher
	opts      ProposalOptions
	logger    *zap.Logger
	now       func() time.Time
}

// NewProposalService creates a new proposal service
func NewProposalService(repo *store.Repository, alerts *AlertService, publisher EventPublisher, opts ProposalOptions) *ProposalService {
	if opts.ValidityMonths <= 0 {
		opts.ValidityMonths = DefaultValidityMonths
	}
	if opts.ExpiringSoonDays <= 0 {
		opts.ExpiringSoonDays = DefaultExpiringSoonDays
	}
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &ProposalService{
		repo:      repo,
		alerts:    alerts,
		publisher: publisher,
		opts:      opts,
		logger:    util.GetLogger().Named("proposal-service"),
		now:       time.Now,
	}
}

// ProposalInput is the writable part of a proposal. preco_total is always derived.
type ProposalInput struct {
	NumeroProposta string                `json:"numero_proposta"`
	ProdutoID      string                `json:"produto_id"`
	FornecedorID   string                `json:"fornecedor_id"`
	Quantidade     float64               `json:"quantidade"`
	PrecoUnitario  float64               `json:"preco_unitario"`
	PrazoEntrega   *int                  `json:"prazo_entrega,omitempty"`
	DataCriacao    models.Timestamp      `json:"data_criacao,omitempty"`
	DataValidade   models.Timestamp      `json:"data_validade,omitempty"`
	Status         models.ProposalStatus `json:"status,omitempty"`
	Observacoes    string                `json:"observacoes,omitempty"`
	Anexos         []string              `json:"anexos,omitempty"`
}

func (in *ProposalInput) normalize() {
	in.NumeroProposta = strings.TrimSpace(in.NumeroProposta)
	in.ProdutoID = strings.TrimSpace(in.ProdutoID)
	in.FornecedorID = strings.TrimSpace(in.FornecedorID)
	in.Observacoes = strings.TrimSpace(in.Observacoes)
	in.Status = models.ProposalStatus(strings.TrimSpace(string(in.Status)))
}

func (in *ProposalInput) validate() error {
	v := Violations{}
	required("numero_proposta", in.NumeroProposta, v)
	required("produto_id", in.ProdutoID, v)
	required("fornecedor_id", in.FornecedorID, v)
	positive("quantidade", in.Quantidade, v)
	positive("preco_unitario", in.PrecoUnitario, v)
	if in.PrazoEntrega != nil && *in.PrazoEntrega < 0 {
		v["prazo_entrega"] = "não pode ser negativo"
	}
	if in.Status != "" && !in.Status.Valid() {
		v["status"] = "status desconhecido"
	}
	if !in.DataCriacao.IsZero() {
		if _, ok := in.DataCriacao.Time(); !ok {
			v["data_criacao"] = "data inválida"
		}
	}
	if !in.DataValidade.IsZero() {
		if _, ok := in.DataValidade.Time(); !ok {
			v["data_validade"] = "data inválida"
		}
	}
	if v.Empty() {
		return nil
	}
	return v
}

// Create validates input, rejects a duplicate numero_proposta, fills defaults and stores the proposal
func (s *ProposalService) Create(ctx context.Context, in ProposalInput) (*models.Proposal, error) {
	ctx, span := util.StartSpan(ctx, "ProposalService.Create")
	defer span.End()

	in.normalize()
	if err := in.validate(); err != nil {
		return nil, err
	}

	existing, err := s.repo.FindProposalByNumber(ctx, in.NumeroProposta)
	if err != nil {
		return nil, fmt.Errorf("failed to check numero_proposta: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateNumber, in.NumeroProposta)
	}

	now := s.now()
	criacao := in.DataCriacao
	if criacao.IsZero() {
		criacao = models.NewTimestamp(now)
	}
	validade := in.DataValidade
	if validade.IsZero() {
		validade = models.NewTimestamp(criacao.TimeOr(now).AddDate(0, s.opts.ValidityMonths, 0))
	}
	status := in.Status
	if status == "" {
		status = models.ProposalStatusPending
	}

	p := &models.Proposal{
		ID:             uuid.New().String(),
		NumeroProposta: in.NumeroProposta,
		ProdutoID:      in.ProdutoID,
		FornecedorID:   in.FornecedorID,
		Quantidade:     in.Quantidade,
		PrecoUnitario:  in.PrecoUnitario,
		PrecoTotal:     CalculateTotal(in.Quantidade, in.PrecoUnitario),
		PrazoEntrega:   in.PrazoEntrega,
		DataCriacao:    criacao,
		DataValidade:   validade,
		Status:         status,
		Observacoes:    in.Observacoes,
		Anexos:         in.Anexos,
	}

	if err := s.repo.CreateProposal(ctx, p); err != nil {
		return nil, err
	}

	util.ProposalsCreatedTotal.Inc()
	s.logger.Info("Proposal created",
		zap.String("proposal_id", p.ID),
		zap.String("numero_proposta", p.NumeroProposta))
	s.publishChanged(ctx, p, models.ProposalActionCreated)

	return p, nil
}

// Update replaces a proposal. Dates and status not supplied keep their stored values.
func (s *ProposalService) Update(ctx context.Context, id string, in ProposalInput) (*models.Proposal, error) {
	ctx, span := util.StartSpan(ctx, "ProposalService.Update")
	defer span.End()

	current, err := s.getExisting(ctx, id)
	if err != nil {
		return nil, err
	}

	in.normalize()
	if err := in.validate(); err != nil {
		return nil, err
	}

	if in.NumeroProposta != current.NumeroProposta {
		other, err := s.repo.FindProposalByNumber(ctx, in.NumeroProposta)
		if err != nil {
			return nil, fmt.Errorf("failed to check numero_proposta: %w", err)
		}
		if other != nil && other.ID != current.ID {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateNumber, in.NumeroProposta)
		}
	}

	p := *current
	p.NumeroProposta = in.NumeroProposta
	p.ProdutoID = in.ProdutoID
	p.FornecedorID = in.FornecedorID
	p.Quantidade = in.Quantidade
	p.PrecoUnitario = in.PrecoUnitario
	p.PrecoTotal = CalculateTotal(in.Quantidade, in.PrecoUnitario)
	p.PrazoEntrega = in.PrazoEntrega
	p.Observacoes = in.Observacoes
	p.Anexos = in.Anexos
	if !in.DataCriacao.IsZero() {
		p.DataCriacao = in.DataCriacao
	}
	if !in.DataValidade.IsZero() {
		p.DataValidade = in.DataValidade
	}
	if in.Status != "" {
		p.Status = in.Status
	}

	if err := s.repo.UpdateProposal(ctx, &p); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrProposalNotFound
		}
		return nil, err
	}

	s.logger.Info("Proposal updated", zap.String("proposal_id", p.ID))
	s.publishChanged(ctx, &p, models.ProposalActionUpdated)
	return &p, nil
}

// Get retrieves a proposal by ID
func (s *ProposalService) Get(ctx context.Context, id string) (*models.Proposal, error) {
	ctx, span := util.StartSpan(ctx, "ProposalService.Get")
	defer span.End()

	return s.getExisting(ctx, id)
}

// List retrieves proposals matching a free-text search and an optional status
func (s *ProposalService) List(ctx context.Context, search string, status models.ProposalStatus) ([]models.Proposal, error) {
	ctx, span := util.StartSpan(ctx, "ProposalService.List")
	defer span.End()

	return s.repo.ListProposals(ctx, store.ProposalFilter{
		Search: strings.TrimSpace(search),
		Status: status,
	})
}

// FindByNumber retrieves a proposal by numero_proposta
func (s *ProposalService) FindByNumber(ctx context.Context, numero string) (*models.Proposal, error) {
	p, err := s.repo.FindProposalByNumber(ctx, strings.TrimSpace(numero))
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrProposalNotFound
	}
	return p, nil
}

// SetStatus applies an explicit user transition to pendente, aprovada or rejeitada
func (s *ProposalService) SetStatus(ctx context.Context, id string, status models.ProposalStatus) (*models.Proposal, error) {
	ctx, span := util.StartSpan(ctx, "ProposalService.SetStatus")
	defer span.End()

	switch status {
	case models.ProposalStatusPending, models.ProposalStatusApproved, models.ProposalStatusRejected:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	p, err := s.getExisting(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.patchStatus(ctx, p.ID, status); err != nil {
		return nil, err
	}
	p.Status = status

	s.logger.Info("Proposal status changed",
		zap.String("proposal_id", p.ID),
		zap.String("status", string(status)))
	s.publishChanged(ctx, p, models.ProposalActionStatusChanged)
	return p, nil
}

// RequestRenewal marks a proposal renovacao_solicitada and records a renewal alert
func (s *ProposalService) RequestRenewal(ctx context.Context, id string) (*models.Proposal, error) {
	ctx, span := util.StartSpan(ctx, "ProposalService.RequestRenewal")
	defer span.End()

	p, err := s.getExisting(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.patchStatus(ctx, p.ID, models.ProposalStatusRenewalRequested); err != nil {
		return nil, err
	}
	p.Status = models.ProposalStatusRenewalRequested
	util.RenewalsRequestedTotal.Inc()

	draft := models.AlertDraft{
		PropostaID: models.StringPtr(p.ID),
		TipoAlerta: models.AlertTypeRenewalRequested,
		Mensagem:   fmt.Sprintf("Renovação solicitada para a proposta %s", p.NumeroProposta),
	}
	if _, err := s.alerts.persist(ctx, draft, s.now(), false); err != nil {
		s.logger.Error("Failed to create renewal alert", zap.String("proposal_id", p.ID), zap.Error(err))
	}

	s.logger.Info("Renewal requested", zap.String("proposal_id", p.ID))
	s.publishChanged(ctx, p, models.ProposalActionRenewalRequested)
	return p, nil
}

// ExpireOverdue marks every proposal whose validity lapsed before now as
// expirada and records a "vencido" alert for it. A failing proposal is
// logged and skipped. Returns the number of proposals expired.
func (s *ProposalService) ExpireOverdue(ctx context.Context, now time.Time) (int, error) {
	ctx, span := util.StartSpan(ctx, "ProposalService.ExpireOverdue")
	defer span.End()

	proposals, err := s.repo.ListProposals(ctx, store.ProposalFilter{})
	if err != nil {
		return 0, fmt.Errorf("failed to load proposals: %w", err)
	}

	result := ReconcileExpirations(proposals, now)
	validade := make(map[string]models.Timestamp, len(result.Updates))
	for _, p := range proposals {
		validade[p.ID] = p.DataValidade
	}

	expired := 0
	for i, update := range result.Updates {
		if err := s.repo.UpdateProposalStatus(ctx, update.ProposalID, update.Status); err != nil {
			util.BatchFailuresTotal.WithLabelValues("expiration").Inc()
			s.logger.Error("Failed to expire proposal",
				zap.String("proposal_id", update.ProposalID),
				zap.Error(err))
			continue
		}
		expired++
		util.ProposalsExpiredTotal.Inc()

		event := &models.ProposalExpiredEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeProposalExpired,
				Timestamp: time.Now(),
			},
			ProposalID:     update.ProposalID,
			NumeroProposta: update.NumeroProposta,
			DataValidade:   validade[update.ProposalID],
		}
		if err := s.publisher.PublishProposalExpired(ctx, event); err != nil {
			s.logger.Error("Failed to publish ProposalExpired event", zap.Error(err))
		}

		if _, err := s.alerts.persist(ctx, result.Alerts[i], now, true); err != nil {
			util.BatchFailuresTotal.WithLabelValues("expiration_alert").Inc()
			s.logger.Error("Failed to create expiration alert",
				zap.String("proposal_id", update.ProposalID),
				zap.Error(err))
		}
	}

	if expired > 0 {
		s.logger.Info("Proposals expired", zap.Int("expired", expired), zap.Int("due", len(result.Updates)))
	}
	return expired, nil
}

// ExpiringSoon lists proposals expiring within days (default window when days <= 0)
func (s *ProposalService) ExpiringSoon(ctx context.Context, days int) ([]models.Proposal, error) {
	if days <= 0 {
		days = s.opts.ExpiringSoonDays
	}
	proposals, err := s.repo.ListProposals(ctx, store.ProposalFilter{})
	if err != nil {
		return nil, err
	}
	return ExpiringWithin(proposals, s.now(), days), nil
}

// Overdue lists proposals past their validity that are not yet expirada
func (s *ProposalService) Overdue(ctx context.Context) ([]models.Proposal, error) {
	proposals, err := s.repo.ListProposals(ctx, store.ProposalFilter{})
	if err != nil {
		return nil, err
	}
	return Expired(proposals, s.now()), nil
}

func (s *ProposalService) getExisting(ctx context.Context, id string) (*models.Proposal, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrProposalNotFound
	}
	p, err := s.repo.GetProposal(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrProposalNotFound
	}
	return p, nil
}

func (s *ProposalService) patchStatus(ctx context.Context, id string, status models.ProposalStatus) error {
	if err := s.repo.UpdateProposalStatus(ctx, id, status); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrProposalNotFound
		}
		return err
	}
	return nil
}

func (s *ProposalService) publishChanged(ctx context.Context, p *models.Proposal, action string) {
	event := &models.ProposalChangedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeProposalChanged,
			Timestamp: time.Now(),
		},
		ProposalID:     p.ID,
		NumeroProposta: p.NumeroProposta,
		Status:         p.Status,
		Action:         action,
	}
	if err := s.publisher.PublishProposalChanged(ctx, event); err != nil {
		s.logger.Error("Failed to publish ProposalChanged event",
			zap.String("proposal_id", p.ID),
			zap.Error(err))
	}
}
