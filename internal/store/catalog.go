package store

import (
	"context"
	"fmt"
	"strings"

	"sgp-service/internal/models"
)

func checkProduct(p models.Product) error {
	if strings.TrimSpace(p.ID) == "" {
		return errMissingID
	}
	return nil
}

func checkSupplier(s models.Supplier) error {
	if strings.TrimSpace(s.ID) == "" {
		return errMissingID
	}
	return nil
}

// ListProducts retrieves all products, optionally matching a search term
func (r *Repository) ListProducts(ctx context.Context, search string) ([]models.Product, error) {
	raws, err := r.listAll(ctx, models.CollectionProducts, ListParams{Search: search})
	if err != nil {
		return nil, err
	}
	return decodeList(r, models.CollectionProducts, raws, checkProduct), nil
}

// GetProduct retrieves a product by ID, returning nil when it does not exist
func (r *Repository) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	raw, err := r.rs.Get(ctx, models.CollectionProducts, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get product %s: %w", id, err)
	}
	return decodeOne(models.CollectionProducts, raw, checkProduct)
}

// ListSuppliers retrieves all suppliers, optionally matching a search term
func (r *Repository) ListSuppliers(ctx context.Context, search string) ([]models.Supplier, error) {
	raws, err := r.listAll(ctx, models.CollectionSuppliers, ListParams{Search: search})
	if err != nil {
		return nil, err
	}
	return decodeList(r, models.CollectionSuppliers, raws, checkSupplier), nil
}

// GetSupplier retrieves a supplier by ID, returning nil when it does not exist
func (r *Repository) GetSupplier(ctx context.Context, id string) (*models.Supplier, error) {
	raw, err := r.rs.Get(ctx, models.CollectionSuppliers, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get supplier %s: %w", id, err)
	}
	return decodeOne(models.CollectionSuppliers, raw, checkSupplier)
}
