package documents

import (
	"context"
	"time"
)

// CompletedEvent describes a document that just passed its completion gate.
type CompletedEvent struct {
	Family          Family    `json:"family"`
	HeaderID        int64     `json:"header_id"`
	DocNumber       string    `json:"doc_number"`
	BranchCode      string    `json:"branch_code"`
	PendingApproval bool      `json:"pending_approval"`
	CompletedBy     int64     `json:"completed_by"`
	CompletedAt     time.Time `json:"completed_at"`
}

// CompletionNotifier delivers CompletedEvents to interested systems.
// Delivery is best effort and happens after the completing transaction
// commits; a failed enqueue never rolls the completion back.
type CompletionNotifier interface {
	DocumentCompleted(ctx context.Context, event CompletedEvent) error
}
