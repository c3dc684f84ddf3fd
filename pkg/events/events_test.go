package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventTypes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		event interface{ GetType() EventType }
		want  EventType
	}{
		{WorkflowCreated{}, WorkflowCreatedEvent},
		{WorkflowUpdated{}, WorkflowUpdatedEvent},
		{WorkflowDeleted{}, WorkflowDeletedEvent},
		{WorkflowExecutionStarted{}, WorkflowExecutionStartedEvent},
		{WorkflowExecutionCompleted{}, WorkflowExecutionCompletedEvent},
		{WorkflowExecutionFailed{}, WorkflowExecutionFailedEvent},
		{NodeExecutionFinished{}, NodeExecutionFinishedEvent},
		{NodeExecutionFailed{}, NodeExecutionFailedEvent},
		{EditorNotice{}, EditorNoticeEvent},
	}

	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.event.GetType())
		})
	}
}

func TestNewBaseEvent(t *testing.T) {
	t.Parallel()

	a := NewBaseEvent(WorkflowCreatedEvent, "wf-1")
	b := NewBaseEvent(WorkflowCreatedEvent, "wf-1")

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, "wf-1", a.WorkflowID)
	assert.False(t, a.Timestamp.IsZero())
}

func TestWorkflowExecutionFailed_JSON(t *testing.T) {
	t.Parallel()

	event := WorkflowExecutionFailed{
		BaseEvent:    NewBaseEvent(WorkflowExecutionFailedEvent, "wf-1"),
		ExecutionID:  "exec-1",
		FailedNodeID: "pdf_merge-1",
		Error:        "merge needs at least 2 files",
	}

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded WorkflowExecutionFailed
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "exec-1", decoded.ExecutionID)
	assert.Equal(t, "pdf_merge-1", decoded.FailedNodeID)
	assert.Equal(t, WorkflowExecutionFailedEvent, decoded.Type)
}

func TestEditorNotice_Expired(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	sticky := EditorNotice{Message: "saved"}
	assert.False(t, sticky.Expired(now.Add(time.Hour)))

	toast := EditorNotice{Message: "cannot connect", ExpiresAt: now.Add(3 * time.Second)}
	assert.False(t, toast.Expired(now))
	assert.False(t, toast.Expired(now.Add(2*time.Second)))
	assert.True(t, toast.Expired(now.Add(3*time.Second)))
}
