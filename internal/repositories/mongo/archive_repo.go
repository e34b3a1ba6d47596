package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/omnihear/omnihear/internal/models"
)

type ArchiveRepository interface {
	Insert(ctx context.Context, doc *models.DispatchArchive) error
	GetByDispatchID(ctx context.Context, dispatchID string) (*models.DispatchArchive, error)
}

type archiveRepo struct {
	col *mongo.Collection
}

func NewArchiveRepo(db *mongo.Database) ArchiveRepository {
	return &archiveRepo{col: db.Collection("dispatch_archive")}
}

func (r *archiveRepo) Insert(ctx context.Context, doc *models.DispatchArchive) error {
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	_, err := r.col.InsertOne(ctx, doc)
	return err
}

func (r *archiveRepo) GetByDispatchID(ctx context.Context, dispatchID string) (*models.DispatchArchive, error) {
	var out models.DispatchArchive
	err := r.col.FindOne(ctx, bson.M{"dispatch_id": dispatchID}).Decode(&out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
