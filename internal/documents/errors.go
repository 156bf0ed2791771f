package documents

import (
	"errors"
	"fmt"
)

// Sentinel errors for the document engine.
var (
	// ErrInvalidQuantity indicates a non-positive quantity on input.
	ErrInvalidQuantity = errors.New("documents: quantity must be greater than zero")
	// ErrHeaderNotFound indicates a missing or soft-deleted header.
	ErrHeaderNotFound = errors.New("documents: header not found")
	// ErrLineNotFound indicates no active line matches the lookup.
	ErrLineNotFound = errors.New("documents: line not found")
	// ErrLineSerialNotFound indicates a missing or soft-deleted line serial.
	ErrLineSerialNotFound = errors.New("documents: line serial not found")
	// ErrImportLineNotFound indicates a missing or soft-deleted import line.
	ErrImportLineNotFound = errors.New("documents: import line not found")
	// ErrRouteNotFound indicates a missing or soft-deleted route.
	ErrRouteNotFound = errors.New("documents: route not found")
	// ErrHeaderCompleted rejects mutations against a completed document.
	ErrHeaderCompleted = errors.New("documents: header already completed")
	// ErrDuplicateSerial rejects a re-scan of an already collected serial.
	ErrDuplicateSerial = errors.New("documents: serial number already scanned")
	// ErrDuplicateDocNumber rejects a document number already in use.
	ErrDuplicateDocNumber = errors.New("documents: document number already exists")
	// ErrApprovalState rejects SetApproval outside the awaiting-approval state.
	ErrApprovalState = errors.New("documents: header is not awaiting an approval decision")
	// ErrUnknownFamily indicates an unrecognised workflow family.
	ErrUnknownFamily = errors.New("documents: unknown workflow family")
	// ErrUnknownEntityKind indicates an unrecognised hierarchy level.
	ErrUnknownEntityKind = errors.New("documents: unknown entity kind")
)

// ViolationKind is the machine-readable reason a line failed reconciliation.
type ViolationKind string

const (
	// ViolationNotCollected fires when collection is mandatory and a line has none.
	ViolationNotCollected ViolationKind = "NOT_COLLECTED"
	// ViolationExactMismatch fires when neither tolerance is allowed and totals differ.
	ViolationExactMismatch ViolationKind = "EXACT_MATCH_REQUIRED"
	// ViolationOverCollected fires when collected exceeds required.
	ViolationOverCollected ViolationKind = "OVER_COLLECTED"
	// ViolationUnderCollected fires when collected falls short of required.
	ViolationUnderCollected ViolationKind = "UNDER_COLLECTED"
)

// Violation reports the first line that failed the completion gate.
type Violation struct {
	Kind       ViolationKind
	LineID     int64
	StockCode  string
	ConfigCode string
	Required   float64
	Collected  float64
}

func (v *Violation) Error() string {
	return fmt.Sprintf("documents: quantity violation %s on line %d (stock %s config %s): required %.4f collected %.4f",
		v.Kind, v.LineID, v.StockCode, v.ConfigCode, v.Required, v.Collected)
}

// CorrelationKind is the machine-readable reason a bulk reference failed to resolve.
type CorrelationKind string

const (
	// CorrelationHeaderKeyNotFound indicates a child referenced an unknown header key.
	CorrelationHeaderKeyNotFound CorrelationKind = "HEADER_KEY_NOT_FOUND"
	// CorrelationLineReferenceMissing indicates neither GUID nor client key resolved a line.
	CorrelationLineReferenceMissing CorrelationKind = "LINE_REFERENCE_MISSING"
	// CorrelationRouteGroupGuidNotFound indicates a route group GUID resolved nothing.
	CorrelationRouteGroupGuidNotFound CorrelationKind = "ROUTE_GROUP_GUID_NOT_FOUND"
)

// CorrelationError aborts a whole bulk insert; no partial hierarchy survives it.
type CorrelationError struct {
	Kind  CorrelationKind
	Level EntityKind
	Ref   string
}

func (e *CorrelationError) Error() string {
	return fmt.Sprintf("documents: correlation failure %s at %s level (ref %q)", e.Kind, e.Level, e.Ref)
}

// BlockingKind is the machine-readable reason a deletion was refused.
type BlockingKind string

const (
	// BlockingSerialConsumed means an active route already carries the serial.
	BlockingSerialConsumed BlockingKind = "SERIAL_CONSUMED"
	// BlockingCollectedExceedsRequired means the delete would strand collected stock.
	BlockingCollectedExceedsRequired BlockingKind = "COLLECTED_EXCEEDS_REQUIRED"
	// BlockingActiveLineSerials means active commitments still depend on the record.
	BlockingActiveLineSerials BlockingKind = "ACTIVE_LINE_SERIALS"
	// BlockingActiveImportLines means active import lines still depend on the record.
	BlockingActiveImportLines BlockingKind = "ACTIVE_IMPORT_LINES"
	// BlockingActiveRoutes means active routes still depend on the record.
	BlockingActiveRoutes BlockingKind = "ACTIVE_ROUTES"
)

// BlockingReason refuses a soft-delete that would orphan a quantity-bearing
// dependency. The whole cascade aborts; nothing is deleted.
type BlockingReason struct {
	Kind   BlockingKind
	Entity EntityRef
	Detail string
}

func (e *BlockingReason) Error() string {
	return fmt.Sprintf("documents: deletion of %s %d blocked (%s): %s", e.Entity.Kind, e.Entity.ID, e.Kind, e.Detail)
}
