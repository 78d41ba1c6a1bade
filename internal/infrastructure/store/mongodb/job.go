package mongodb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"fixifox/internal/domain/entity"
	"fixifox/internal/domain/repository"
	"fixifox/internal/infrastructure/metrics"
)

const storeName = "mongo"

type MongoJobRepo struct {
	jobsCol *mongo.Collection
	logger  *slog.Logger
}

func NewMongoJobRepo(ctx context.Context, db *mongo.Database, logger *slog.Logger) repository.JobRepository {
	col := db.Collection("jobs")

	_, err := col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{bson.E{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{bson.E{Key: "status", Value: 1}, bson.E{Key: "created_at", Value: 1}}},
	})
	if err != nil {
		logger.Warn("create job indexes", "err", err)
	}

	return &MongoJobRepo{
		jobsCol: col,
		logger:  logger,
	}
}

func (r *MongoJobRepo) Create(ctx context.Context, job *entity.Job) error {
	metrics.IncDBOp(storeName, "put")

	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	if _, err := r.jobsCol.InsertOne(ctx, job); err != nil {
		metrics.IncError("mongo_job_repo", "create_error")
		return fmt.Errorf("insert job %s: %w", job.ID, err)
	}
	return nil
}

func (r *MongoJobRepo) GetByID(ctx context.Context, id string) (*entity.Job, error) {
	metrics.IncDBOp(storeName, "get")

	var job entity.Job
	err := r.jobsCol.FindOne(ctx, bson.M{"id": id}).Decode(&job)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		metrics.IncError("mongo_job_repo", "get_error")
		return nil, fmt.Errorf("find job %s: %w", id, err)
	}
	return &job, nil
}

func (r *MongoJobRepo) List(ctx context.Context) ([]*entity.Job, error) {
	metrics.IncDBOp(storeName, "list")
	return r.find(ctx, bson.D{}, "list")
}

func (r *MongoJobRepo) ListByStatus(ctx context.Context, status entity.JobStatus) ([]*entity.Job, error) {
	metrics.IncDBOp(storeName, "list")
	return r.find(ctx, bson.M{"status": status}, "list_by_status")
}

func (r *MongoJobRepo) find(ctx context.Context, filter any, op string) ([]*entity.Job, error) {
	opts := options.Find().SetSort(bson.D{bson.E{Key: "created_at", Value: 1}})
	cur, err := r.jobsCol.Find(ctx, filter, opts)
	if err != nil {
		metrics.IncError("mongo_job_repo", op+"_error")
		return nil, fmt.Errorf("find jobs: %w", err)
	}
	defer func() {
		if err := cur.Close(ctx); err != nil {
			r.logger.Warn("close cursor", "err", err)
		}
	}()

	jobs := make([]*entity.Job, 0)
	for cur.Next(ctx) {
		var j entity.Job
		if err := cur.Decode(&j); err != nil {
			metrics.IncError("mongo_job_repo", op+"_decode_error")
			return nil, fmt.Errorf("decode job: %w", err)
		}
		jobs = append(jobs, &j)
	}
	if err := cur.Err(); err != nil {
		metrics.IncError("mongo_job_repo", op+"_cursor_error")
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

func (r *MongoJobRepo) Update(ctx context.Context, job *entity.Job) error {
	metrics.IncDBOp(storeName, "put")

	job.UpdatedAt = time.Now().UTC()
	res, err := r.jobsCol.ReplaceOne(ctx, bson.M{"id": job.ID}, job)
	if err != nil {
		metrics.IncError("mongo_job_repo", "update_error")
		return fmt.Errorf("replace job %s: %w", job.ID, err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *MongoJobRepo) UpdateStatus(ctx context.Context, id string, status entity.JobStatus) error {
	metrics.IncDBOp(storeName, "put")

	filter := bson.M{"id": id}
	update := bson.M{
		"$set": bson.M{
			"status":     status,
			"updated_at": time.Now().UTC(),
		},
	}
	res, err := r.jobsCol.UpdateOne(ctx, filter, update)
	if err != nil {
		metrics.IncError("mongo_job_repo", "update_status_error")
		return fmt.Errorf("update job %s status: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *MongoJobRepo) Delete(ctx context.Context, id string) error {
	metrics.IncDBOp(storeName, "delete")

	res, err := r.jobsCol.DeleteOne(ctx, bson.M{"id": id})
	if err != nil {
		metrics.IncError("mongo_job_repo", "delete_error")
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *MongoJobRepo) CountByStatus(ctx context.Context, status entity.JobStatus) (int, error) {
	metrics.IncDBOp(storeName, "count")

	count, err := r.jobsCol.CountDocuments(ctx, bson.M{"status": status})
	if err != nil {
		metrics.IncError("mongo_job_repo", "count_by_status_error")
		return 0, fmt.Errorf("count jobs: %w", err)
	}
	return int(count), nil
}

func (r *MongoJobRepo) ClaimNext(ctx context.Context) (*entity.Job, error) {
	metrics.IncDBOp(storeName, "claim")

	filter := bson.M{"status": entity.JobStatusPending}
	update := bson.M{
		"$set": bson.M{
			"status":     entity.JobStatusRunning,
			"updated_at": time.Now().UTC(),
		},
	}
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{bson.E{Key: "created_at", Value: 1}}).
		SetReturnDocument(options.After)

	var job entity.Job
	err := r.jobsCol.FindOneAndUpdate(ctx, filter, update, opts).Decode(&job)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		metrics.IncError("mongo_job_repo", "claim_error")
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return &job, nil
}
