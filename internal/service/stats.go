package service

import (
	"context"

	"sgp-service/internal/models"
	"sgp-service/internal/store"
	"sgp-service/internal/util"

	"go.uber.org/zap"
)

// Stats are the dashboard counters
type Stats struct {
	TotalProdutos     int `json:"total_produtos"`
	TotalFornecedores int `json:"total_fornecedores"`
	TotalPropostas    int `json:"total_propostas"`
	TotalAlertas      int `json:"total_alertas"`
}

// StatsService computes dashboard statistics
type StatsService struct {
	repo   *store.Repository
	logger *zap.Logger
}

// NewStatsService creates a new statistics service
func NewStatsService(repo *store.Repository) *StatsService {
	return &StatsService{repo: repo, logger: util.GetLogger().Named("stats")}
}

// Stats counts all products, active suppliers, proposals not expirada and
// active unread alerts. If any collection cannot be read every counter is zero.
func (s *StatsService) Stats(ctx context.Context) Stats {
	ctx, span := util.StartSpan(ctx, "StatsService.Stats")
	defer span.End()

	stats, err := s.collect(ctx)
	if err != nil {
		s.logger.Error("Failed to compute statistics", zap.Error(err))
		return Stats{}
	}
	return stats
}

func (s *StatsService) collect(ctx context.Context) (Stats, error) {
	var stats Stats

	products, err := s.repo.ListProducts(ctx, "")
	if err != nil {
		return Stats{}, err
	}
	stats.TotalProdutos = len(products)

	suppliers, err := s.repo.ListSuppliers(ctx, "")
	if err != nil {
		return Stats{}, err
	}
	for _, f := range suppliers {
		if f.Ativo {
			stats.TotalFornecedores++
		}
	}

	proposals, err := s.repo.ListProposals(ctx, store.ProposalFilter{})
	if err != nil {
		return Stats{}, err
	}
	for _, p := range proposals {
		if p.Status != models.ProposalStatusExpired {
			stats.TotalPropostas++
		}
	}

	alerts, err := s.repo.ListAlerts(ctx)
	if err != nil {
		return Stats{}, err
	}
	for _, a := range alerts {
		if a.Unread() {
			stats.TotalAlertas++
		}
	}

	return stats, nil
}
