// Package events defines the workflow lifecycle and editor notification events.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic carries every pdfflow event; the event type travels in message metadata.
const Topic = "pdfflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Workflow definition events.
	WorkflowCreatedEvent EventType = "workflow.created"
	WorkflowUpdatedEvent EventType = "workflow.updated"
	WorkflowDeletedEvent EventType = "workflow.deleted"

	// Workflow execution lifecycle events.
	WorkflowExecutionStartedEvent   EventType = "workflow.execution.started"
	WorkflowExecutionCompletedEvent EventType = "workflow.execution.completed"
	WorkflowExecutionFailedEvent    EventType = "workflow.execution.failed"

	// Node execution events.
	NodeExecutionFinishedEvent EventType = "node.execution.finished"
	NodeExecutionFailedEvent   EventType = "node.execution.failed"

	// Editor notifications.
	EditorNoticeEvent EventType = "editor.notice"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// NewBaseEvent stamps a fresh event id and time.
func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
	}
}

type WorkflowCreated struct {
	BaseEvent

	Name      string `json:"name"`
	NodeCount int    `json:"node_count"`
}

func (e WorkflowCreated) GetType() EventType {
	return WorkflowCreatedEvent
}

type WorkflowUpdated struct {
	BaseEvent

	Name      string `json:"name"`
	NodeCount int    `json:"node_count"`
}

func (e WorkflowUpdated) GetType() EventType {
	return WorkflowUpdatedEvent
}

type WorkflowDeleted struct {
	BaseEvent
}

func (e WorkflowDeleted) GetType() EventType {
	return WorkflowDeletedEvent
}

type WorkflowExecutionStarted struct {
	BaseEvent

	ExecutionID string   `json:"execution_id"`
	InputFiles  []string `json:"input_files"`
}

func (e WorkflowExecutionStarted) GetType() EventType {
	return WorkflowExecutionStartedEvent
}

type WorkflowExecutionCompleted struct {
	BaseEvent

	ExecutionID string        `json:"execution_id"`
	OutputFiles []string      `json:"output_files"`
	Duration    time.Duration `json:"duration"`
}

func (e WorkflowExecutionCompleted) GetType() EventType {
	return WorkflowExecutionCompletedEvent
}

type WorkflowExecutionFailed struct {
	BaseEvent

	ExecutionID  string        `json:"execution_id"`
	FailedNodeID string        `json:"failed_node_id,omitempty"`
	Error        string        `json:"error"`
	Duration     time.Duration `json:"duration"`
}

func (e WorkflowExecutionFailed) GetType() EventType {
	return WorkflowExecutionFailedEvent
}

type NodeExecutionFinished struct {
	BaseEvent

	ExecutionID string         `json:"execution_id"`
	NodeID      string         `json:"node_id"`
	NodeType    string         `json:"node_type"`
	Output      map[string]any `json:"output,omitempty"`
	Duration    time.Duration  `json:"duration"`
}

func (e NodeExecutionFinished) GetType() EventType {
	return NodeExecutionFinishedEvent
}

type NodeExecutionFailed struct {
	BaseEvent

	ExecutionID string        `json:"execution_id"`
	NodeID      string        `json:"node_id"`
	NodeType    string        `json:"node_type"`
	Error       string        `json:"error"`
	Duration    time.Duration `json:"duration"`
}

func (e NodeExecutionFailed) GetType() EventType {
	return NodeExecutionFailedEvent
}

// NoticeLevel is the severity of an editor notice.
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// EditorNotice is a transient message shown by the editor. A zero ExpiresAt
// means the notice stays until dismissed.
type EditorNotice struct {
	BaseEvent

	Level     NoticeLevel `json:"level"`
	Message   string      `json:"message"`
	ExpiresAt time.Time   `json:"expires_at,omitzero"`
}

func (e EditorNotice) GetType() EventType {
	return EditorNoticeEvent
}

// Expired reports whether the notice should no longer be displayed at now.
func (e EditorNotice) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}
