package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/astopaal/verii-wms-server-sub001/internal/documents"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeDocumentCompleted is the task type for completion notifications.
	TaskTypeDocumentCompleted = "wms:document_completed"
)

// NewDocumentCompletedTask constructs an Asynq task for a completed document.
func NewDocumentCompletedTask(event documents.CompletedEvent) (*asynq.Task, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeDocumentCompleted, data), nil
}

// HandleDocumentCompletedTask processes TaskTypeDocumentCompleted tasks.
// Delivery to downstream systems (ERP export, mobile push) is the next
// integration phase; for now the event is logged and acknowledged.
func HandleDocumentCompletedTask(ctx context.Context, t *asynq.Task) error {
	var event documents.CompletedEvent
	if err := json.Unmarshal(t.Payload(), &event); err != nil {
		return asynq.SkipRetry
	}
	slog.Info("document completed",
		"family", event.Family,
		"header_id", event.HeaderID,
		"doc_number", event.DocNumber,
		"pending_approval", event.PendingApproval,
	)
	return nil
}
