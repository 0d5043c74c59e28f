package store

import (
	"context"
	"fmt"
	"strings"

	"sgp-service/internal/models"
)

// alertsSortKey is the listing order used by the inbox.
const alertsSortKey = "data_alerta"

func checkAlert(a models.Alert) error {
	if strings.TrimSpace(a.ID) == "" {
		return errMissingID
	}
	return nil
}

// ListAlerts retrieves every alert ordered by data_alerta
func (r *Repository) ListAlerts(ctx context.Context) ([]models.Alert, error) {
	raws, err := r.listAll(ctx, models.CollectionAlerts, ListParams{Sort: alertsSortKey})
	if err != nil {
		return nil, err
	}
	return decodeList(r, models.CollectionAlerts, raws, checkAlert), nil
}

// GetAlert retrieves an alert by ID, returning nil when it does not exist
func (r *Repository) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	raw, err := r.rs.Get(ctx, models.CollectionAlerts, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get alert %s: %w", id, err)
	}
	return decodeOne(models.CollectionAlerts, raw, checkAlert)
}

// CreateAlert inserts an alert and refreshes it with the stored copy
func (r *Repository) CreateAlert(ctx context.Context, a *models.Alert) error {
	raw, err := r.rs.Create(ctx, models.CollectionAlerts, a)
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	stored, err := decodeOne(models.CollectionAlerts, raw, checkAlert)
	if err != nil {
		return err
	}
	if stored != nil {
		*a = *stored
	}
	return nil
}

// MarkAlertRead sets lido = true
func (r *Repository) MarkAlertRead(ctx context.Context, id string) error {
	return r.patchAlert(ctx, id, map[string]any{"lido": true})
}

// DeactivateAlert soft-deletes an alert (ativo = false)
func (r *Repository) DeactivateAlert(ctx context.Context, id string) error {
	return r.patchAlert(ctx, id, map[string]any{"ativo": false})
}

func (r *Repository) patchAlert(ctx context.Context, id string, fields map[string]any) error {
	if _, err := r.rs.Patch(ctx, models.CollectionAlerts, id, fields); err != nil {
		return fmt.Errorf("failed to patch alert %s: %w", id, err)
	}
	return nil
}
