package orchestration

import (
	"time"

	"github.com/fiberline/switchyard/internal/domain"
)

// StepResponse is one step of a workflow run as callers see it.
type StepResponse struct {
	Name              string         `json:"name"`
	Sequence          int            `json:"sequence"`
	Kind              string         `json:"kind"`
	TargetSystem      string         `json:"target_system"`
	Status            string         `json:"status"`
	RetryCount        int            `json:"retry_count"`
	MaxRetries        int            `json:"max_retries"`
	Error             string         `json:"error,omitempty"`
	CompensationError string         `json:"compensation_error,omitempty"`
	Output            map[string]any `json:"output,omitempty"`
	StartedAt         *time.Time     `json:"started_at,omitempty"`
	CompletedAt       *time.Time     `json:"completed_at,omitempty"`
	CompensatedAt     *time.Time     `json:"compensated_at,omitempty"`
}

// WorkflowResponse is the external view of one workflow run. Steps are in
// ascending sequence order and present only on single-workflow reads.
type WorkflowResponse struct {
	WorkflowID        string         `json:"workflow_id"`
	Kind              string         `json:"kind"`
	Status            string         `json:"status"`
	TenantID          string         `json:"tenant_id"`
	SubscriberID      string         `json:"subscriber_id,omitempty"`
	CurrentStep       int            `json:"current_step"`
	TotalSteps        int            `json:"total_steps"`
	RetryCount        int            `json:"retry_count"`
	MaxRetries        int            `json:"max_retries"`
	Error             string         `json:"error,omitempty"`
	CompensationError string         `json:"compensation_error,omitempty"`
	Context           map[string]any `json:"context,omitempty"`
	Output            map[string]any `json:"output,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	StartedAt         *time.Time     `json:"started_at,omitempty"`
	CompletedAt       *time.Time     `json:"completed_at,omitempty"`
	FailedAt          *time.Time     `json:"failed_at,omitempty"`
	Steps             []StepResponse `json:"steps,omitempty"`
}

// WorkflowStatsResponse aggregates run outcomes for one tenant. SuccessRate
// is a percentage in [0, 100].
type WorkflowStatsResponse struct {
	ByStatus           map[string]int `json:"by_status"`
	ByKind             map[string]int `json:"by_kind"`
	SuccessRate        float64        `json:"success_rate"`
	AvgDurationSeconds float64        `json:"avg_duration_seconds"`
	ActiveWorkflows    int            `json:"active_workflows"`
	RecentFailures24h  int            `json:"recent_failures_24h"`
	TotalCompensations int            `json:"total_compensations"`
}

func stepResponse(step *domain.WorkflowStep) StepResponse {
	return StepResponse{
		Name:              step.Name(),
		Sequence:          step.Sequence(),
		Kind:              string(step.Kind()),
		TargetSystem:      step.TargetSystem(),
		Status:            step.Status().String(),
		RetryCount:        step.RetryCount(),
		MaxRetries:        step.MaxRetries(),
		Error:             step.ErrorMessage(),
		CompensationError: step.CompensationError(),
		Output:            step.OutputData(),
		StartedAt:         step.StartedAt(),
		CompletedAt:       step.CompletedAt(),
		CompensatedAt:     step.CompensatedAt(),
	}
}

func workflowResponse(wf *domain.Workflow, steps []*domain.WorkflowStep) *WorkflowResponse {
	resp := &WorkflowResponse{
		WorkflowID:        wf.WorkflowID(),
		Kind:              wf.Kind().String(),
		Status:            wf.Status().String(),
		TenantID:          wf.TenantID(),
		SubscriberID:      wf.SubscriberID(),
		CurrentStep:       wf.CurrentStep(),
		TotalSteps:        wf.TotalSteps(),
		RetryCount:        wf.RetryCount(),
		MaxRetries:        wf.MaxRetries(),
		Error:             wf.ErrorMessage(),
		CompensationError: wf.CompensationError(),
		Context:           wf.Context(),
		Output:            wf.OutputData(),
		CreatedAt:         wf.CreatedAt(),
		StartedAt:         wf.StartedAt(),
		CompletedAt:       wf.CompletedAt(),
		FailedAt:          wf.FailedAt(),
	}
	for _, step := range steps {
		resp.Steps = append(resp.Steps, stepResponse(step))
	}
	return resp
}
