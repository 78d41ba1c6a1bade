package entity

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending  JobStatus = "pending"
	JobStatusRunning  JobStatus = "running"
	JobStatusDone     JobStatus = "done"
	JobStatusFailed   JobStatus = "failed"
	JobStatusCanceled JobStatus = "canceled"
)

// Terminal reports whether no further transition is expected.
func (s JobStatus) Terminal() bool {
	return s == JobStatusDone || s == JobStatusFailed || s == JobStatusCanceled
}

type Job struct {
	ID        string      `json:"id" bson:"id"`
	Task      Task        `json:"task" bson:"task"`
	Input     TaskInput   `json:"input" bson:"input"`
	Status    JobStatus   `json:"status" bson:"status"`
	Result    *TaskResult `json:"result,omitempty" bson:"result,omitempty"`
	CreatedAt time.Time   `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time   `json:"updated_at" bson:"updated_at"`
}

func NewJob(task Task, input TaskInput) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:        uuid.New().String(),
		Task:      task,
		Input:     input,
		Status:    JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (j *Job) UpdateStatus(status JobStatus) {
	j.Status = status
	j.UpdatedAt = time.Now().UTC()
}
