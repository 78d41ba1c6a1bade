package entity

import "time"

// Task is one of the assistant actions a user can trigger.
type Task string

const (
	TaskExplain      Task = "explain"
	TaskExplainError Task = "explain_error"
	TaskFix          Task = "fix"
	TaskDiagram      Task = "diagram"
	TaskDebug        Task = "debug"
	TaskScan         Task = "scan"
)

var Tasks = []Task{TaskExplain, TaskExplainError, TaskFix, TaskDiagram, TaskDebug, TaskScan}

func ParseTask(s string) (Task, bool) {
	for _, t := range Tasks {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

type TaskInput struct {
	Code         string `json:"code" bson:"code"`
	ErrorMessage string `json:"error_message,omitempty" bson:"error_message,omitempty"`
}

type TaskResult struct {
	Task     Task              `json:"task" bson:"task"`
	Outcome  GenerationOutcome `json:"outcome" bson:"outcome"`
	Fallback bool              `json:"fallback,omitempty" bson:"fallback,omitempty"` // static content substituted
	Cached   bool              `json:"cached,omitempty" bson:"cached,omitempty"`
	Duration time.Duration     `json:"duration_ns" bson:"duration_ns"`
}
