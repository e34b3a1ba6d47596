package postgres

import (
	"context"

	"gorm.io/gorm"

	"github.com/omnihear/omnihear/internal/models"
)

type DispatchRepository interface {
	Insert(ctx context.Context, rec *models.DispatchRecord) error
	ListByUser(ctx context.Context, userID string, limit int) ([]models.DispatchRecord, error)
	GetByDispatchID(ctx context.Context, dispatchID string) (*models.DispatchRecord, error)
}

type dispatchRepo struct {
	db *gorm.DB
}

func NewDispatchRepo(db *gorm.DB) DispatchRepository {
	return &dispatchRepo{db: db}
}

func (r *dispatchRepo) Insert(ctx context.Context, rec *models.DispatchRecord) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *dispatchRepo) ListByUser(ctx context.Context, userID string, limit int) ([]models.DispatchRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var rows []models.DispatchRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *dispatchRepo) GetByDispatchID(ctx context.Context, dispatchID string) (*models.DispatchRecord, error) {
	var row models.DispatchRecord
	err := r.db.WithContext(ctx).
		Where("dispatch_id = ?", dispatchID).
		Take(&row).Error
	return &row, err
}
