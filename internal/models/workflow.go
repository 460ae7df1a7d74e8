package models

import "time"

// TriggerType enumerates how a Workflow is invoked (spec §3).
type TriggerType string

const (
	TriggerKeyword  TriggerType = "keyword"
	TriggerSchedule TriggerType = "schedule"
	TriggerManual   TriggerType = "manual"
	TriggerWebhook  TriggerType = "webhook"
)

// Workflow is a persisted named handler registration (spec §3).
type Workflow struct {
	ID            string
	Name          string
	TriggerType   TriggerType
	TriggerConfig map[string]any
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ExecutionStatus enumerates a WorkflowExecution's lifecycle (spec §3).
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

// WorkflowExecution records one invocation of a workflow handler.
type WorkflowExecution struct {
	ID             string
	WorkflowID     string
	Status         ExecutionStatus
	TriggerPayload map[string]any
	StartedAt      time.Time
	CompletedAt    *time.Time
	Error          string
}
