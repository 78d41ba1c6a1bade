package entity

import "time"

// Artifact is a file produced from a successful task result.
type Artifact struct {
	JobID     string     `json:"job_id" bson:"job_id"`
	Name      string     `json:"name" bson:"name"`
	Content   string     `json:"content" bson:"content"`
	Kind      ResultKind `json:"kind" bson:"kind"`
	Language  string     `json:"language,omitempty" bson:"language,omitempty"`
	CreatedAt time.Time  `json:"created_at" bson:"created_at"`
}
