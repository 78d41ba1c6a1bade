package mongodb

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"fixifox/internal/domain/entity"
	"fixifox/internal/domain/repository"
	"fixifox/internal/infrastructure/metrics"
)

type MongoArtifactRepo struct {
	col    *mongo.Collection
	logger *slog.Logger
}

func NewMongoArtifactRepo(ctx context.Context, db *mongo.Database, logger *slog.Logger) repository.ArtifactRepository {
	col := db.Collection("artifacts")

	_, err := col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{bson.E{Key: "job_id", Value: 1}, bson.E{Key: "name", Value: 1}}},
	})
	if err != nil {
		logger.Warn("create artifact indexes", "err", err)
	}

	return &MongoArtifactRepo{
		col:    col,
		logger: logger,
	}
}

func (r *MongoArtifactRepo) SaveArtifacts(ctx context.Context, jobID string, artifacts []*entity.Artifact) error {
	if len(artifacts) == 0 {
		return nil
	}

	metrics.IncDBOp(storeName, "put")

	docs := make([]interface{}, len(artifacts))
	for i, a := range artifacts {
		a.JobID = jobID
		docs[i] = a
	}

	if _, err := r.col.DeleteMany(ctx, bson.M{"job_id": jobID}); err != nil {
		metrics.IncError("mongo_artifact_repo", "save_error")
		return fmt.Errorf("clear artifacts for %s: %w", jobID, err)
	}
	if _, err := r.col.InsertMany(ctx, docs); err != nil {
		metrics.IncError("mongo_artifact_repo", "save_error")
		return fmt.Errorf("insert artifacts for %s: %w", jobID, err)
	}
	return nil
}

func (r *MongoArtifactRepo) GetArtifacts(ctx context.Context, jobID string) ([]*entity.Artifact, error) {
	metrics.IncDBOp(storeName, "get")

	opts := options.Find().SetSort(bson.D{bson.E{Key: "name", Value: 1}})
	cur, err := r.col.Find(ctx, bson.M{"job_id": jobID}, opts)
	if err != nil {
		metrics.IncError("mongo_artifact_repo", "get_error")
		return nil, fmt.Errorf("find artifacts for %s: %w", jobID, err)
	}
	defer func() {
		if err := cur.Close(ctx); err != nil {
			r.logger.Warn("close cursor", "err", err)
		}
	}()

	result := make([]*entity.Artifact, 0)
	for cur.Next(ctx) {
		var doc entity.Artifact
		if err := cur.Decode(&doc); err != nil {
			metrics.IncError("mongo_artifact_repo", "decode_error")
			return nil, fmt.Errorf("decode artifact: %w", err)
		}
		result = append(result, &doc)
	}
	return result, cur.Err()
}

func (r *MongoArtifactRepo) ListJobIDs(ctx context.Context) ([]string, error) {
	metrics.IncDBOp(storeName, "list")

	values, err := r.col.Distinct(ctx, "job_id", bson.D{})
	if err != nil {
		metrics.IncError("mongo_artifact_repo", "list_error")
		return nil, fmt.Errorf("distinct job ids: %w", err)
	}

	ids := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			ids = append(ids, s)
		}
	}
	return ids, nil
}

func (r *MongoArtifactRepo) DeleteArtifacts(ctx context.Context, jobID string) error {
	metrics.IncDBOp(storeName, "delete")

	if _, err := r.col.DeleteMany(ctx, bson.M{"job_id": jobID}); err != nil {
		metrics.IncError("mongo_artifact_repo", "delete_error")
		return fmt.Errorf("delete artifacts for %s: %w", jobID, err)
	}
	return nil
}
