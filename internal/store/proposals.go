package store

import (
	"context"
	"fmt"
	"strings"

	"sgp-service/internal/models"
)

// ProposalFilter narrows ListProposals
type ProposalFilter struct {
	Search string
	Status models.ProposalStatus
}

func checkProposal(p models.Proposal) error {
	if strings.TrimSpace(p.ID) == "" {
		return errMissingID
	}
	return nil
}

// ListProposals retrieves every proposal matching the filter
func (r *Repository) ListProposals(ctx context.Context, filter ProposalFilter) ([]models.Proposal, error) {
	params := ListParams{Search: filter.Search}
	if filter.Status != "" {
		params.Filters = map[string]string{"status": string(filter.Status)}
	}
	raws, err := r.listAll(ctx, models.CollectionProposals, params)
	if err != nil {
		return nil, err
	}
	proposals := decodeList(r, models.CollectionProposals, raws, checkProposal)
	if filter.Status == "" {
		return proposals, nil
	}
	filtered := proposals[:0]
	for _, p := range proposals {
		if p.Status == filter.Status {
			filtered = append(filtered, p)
		}
	}
	return filtered, nil
}

// GetProposal retrieves a proposal by ID, returning nil when it does not exist
func (r *Repository) GetProposal(ctx context.Context, id string) (*models.Proposal, error) {
	raw, err := r.rs.Get(ctx, models.CollectionProposals, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get proposal %s: %w", id, err)
	}
	return decodeOne(models.CollectionProposals, raw, checkProposal)
}

// FindProposalByNumber retrieves the proposal with the given business number
func (r *Repository) FindProposalByNumber(ctx context.Context, numero string) (*models.Proposal, error) {
	raws, err := r.listAll(ctx, models.CollectionProposals, ListParams{
		Filters: map[string]string{"numero_proposta": numero},
	})
	if err != nil {
		return nil, err
	}
	for _, p := range decodeList(r, models.CollectionProposals, raws, checkProposal) {
		if p.NumeroProposta == numero {
			found := p
			return &found, nil
		}
	}
	return nil, nil
}

// CreateProposal inserts a proposal and refreshes it with the stored copy
func (r *Repository) CreateProposal(ctx context.Context, p *models.Proposal) error {
	raw, err := r.rs.Create(ctx, models.CollectionProposals, p)
	if err != nil {
		return fmt.Errorf("failed to create proposal: %w", err)
	}
	return r.refreshProposal(raw, p)
}

// UpdateProposal replaces a proposal
func (r *Repository) UpdateProposal(ctx context.Context, p *models.Proposal) error {
	raw, err := r.rs.Update(ctx, models.CollectionProposals, p.ID, p)
	if err != nil {
		return fmt.Errorf("failed to update proposal %s: %w", p.ID, err)
	}
	return r.refreshProposal(raw, p)
}

// UpdateProposalStatus patches only the status of a proposal
func (r *Repository) UpdateProposalStatus(ctx context.Context, id string, status models.ProposalStatus) error {
	if _, err := r.rs.Patch(ctx, models.CollectionProposals, id, map[string]any{"status": string(status)}); err != nil {
		return fmt.Errorf("failed to update status of proposal %s: %w", id, err)
	}
	return nil
}

func (r *Repository) refreshProposal(raw []byte, p *models.Proposal) error {
	stored, err := decodeOne(models.CollectionProposals, raw, checkProposal)
	if err != nil {
		return err
	}
	if stored != nil {
		*p = *stored
	}
	return nil
}
