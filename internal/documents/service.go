package documents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	"github.com/astopaal/verii-wms-server-sub001/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetHeader(ctx context.Context, family Family, id int64) (Header, error)
	GetDocument(ctx context.Context, family Family, id int64) (Document, error)
	GetLineTotals(ctx context.Context, headerID int64) ([]LineTotals, error)
	ListHeaders(ctx context.Context, family Family, filter HeaderFilter) ([]Header, int, error)
}

// ParameterPort serves the per-family policy flags.
type ParameterPort interface {
	Get(ctx context.Context, family Family) (Parameter, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates the document workflows. Every mutating operation
// runs inside a single transaction; the acting user is an explicit
// parameter, never ambient request state.
type Service struct {
	repo     RepositoryPort
	params   ParameterPort
	audit    AuditPort
	notifier CompletionNotifier
	clock    shared.Clock
	logger   *slog.Logger
}

// NewService constructs the document service. Audit and notifier may be
// nil; both are best effort.
func NewService(repo RepositoryPort, params ParameterPort, audit AuditPort, notifier CompletionNotifier, clock shared.Clock, logger *slog.Logger) *Service {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, params: params, audit: audit, notifier: notifier, clock: clock, logger: logger}
}

// Complete runs the reconciliation gate over a header's lines and flips
// its completion flags. The first failing line aborts with a Violation
// and nothing changes. When the family parameter mandates approval the
// header enters the pending-approval state.
func (s *Service) Complete(ctx context.Context, family Family, headerID, actorID int64) (Header, error) {
	param, err := s.params.Get(ctx, family)
	if err != nil {
		return Header{}, fmt.Errorf("load parameters: %w", err)
	}
	var header Header
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		h, err := tx.GetHeader(ctx, family, headerID)
		if err != nil {
			return err
		}
		if h.IsCompleted {
			return ErrHeaderCompleted
		}
		totals, err := lineTotalsTx(ctx, tx, headerID)
		if err != nil {
			return err
		}
		if v := Reconcile(totals, param.Policy()); v != nil {
			return v
		}
		if err := tx.MarkCompleted(ctx, headerID, param.RequireApproval, s.clock.Now()); err != nil {
			return err
		}
		header = h
		header.IsCompleted = true
		header.IsPendingApproval = param.RequireApproval
		return nil
	})
	if err != nil {
		return Header{}, err
	}
	s.recordAudit(ctx, actorID, "document.complete", headerID, map[string]any{"family": family, "doc_number": header.DocNumber})
	if s.notifier != nil {
		event := CompletedEvent{
			Family:          family,
			HeaderID:        headerID,
			DocNumber:       header.DocNumber,
			BranchCode:      header.BranchCode,
			PendingApproval: header.IsPendingApproval,
			CompletedBy:     actorID,
			CompletedAt:     s.clock.Now(),
		}
		if err := s.notifier.DocumentCompleted(ctx, event); err != nil {
			s.logger.Warn("completion notification enqueue failed", "header_id", headerID, "error", err)
		}
	}
	return header, nil
}

// SetApproval records the approval decision on a completed header. The
// header must be in the awaiting-decision state: completed, pending
// approval, no decision recorded yet.
func (s *Service) SetApproval(ctx context.Context, family Family, headerID int64, approved bool, approverID int64) (Header, error) {
	var header Header
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		h, err := tx.GetHeader(ctx, family, headerID)
		if err != nil {
			return err
		}
		if !h.IsCompleted || !h.IsPendingApproval || h.ApprovalStatus != nil {
			return ErrApprovalState
		}
		now := s.clock.Now()
		if err := tx.SetApproval(ctx, headerID, approved, approverID, now); err != nil {
			return err
		}
		header = h
		header.IsPendingApproval = false
		header.ApprovalStatus = &approved
		header.ApprovedBy = approverID
		header.ApprovalDate = &now
		return nil
	})
	if err != nil {
		return Header{}, err
	}
	s.recordAudit(ctx, approverID, "document.approval", headerID, map[string]any{"family": family, "approved": approved})
	return header, nil
}

// BulkCreate persists a whole client-correlated hierarchy atomically and
// returns the new header id. Shape validation happens before the
// transaction opens; any correlation failure inside it persists nothing.
func (s *Service) BulkCreate(ctx context.Context, family Family, payload BulkPayload, actorID int64) (int64, error) {
	for _, ls := range payload.LineSerials {
		if ls.Quantity <= 0 {
			return 0, ErrInvalidQuantity
		}
	}
	for _, rt := range payload.Routes {
		if rt.Quantity <= 0 {
			return 0, ErrInvalidQuantity
		}
		if len(rt.Serials) > MaxRouteSerials {
			return 0, fmt.Errorf("documents: route carries %d serials, maximum is %d", len(rt.Serials), MaxRouteSerials)
		}
	}
	var headerID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := resolveAndInsert(ctx, tx, family, payload, actorID, s.clock.Now())
		if err != nil {
			return err
		}
		headerID = id
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.recordAudit(ctx, actorID, "document.bulk_create", headerID, map[string]any{"family": family})
	return headerID, nil
}

// ScanInput is one barcode scan against an assigned order.
type ScanInput struct {
	Family         Family
	HeaderID       int64
	StockCode      string
	ConfigCode     string
	Quantity       float64
	SerialNumber   string
	SourceLocation string
	TargetLocation string
	Barcode        string
	ActorID        int64
}

// AddBarcode appends one physical movement to a document: validate the
// scan, match candidate lines by stock and configuration code, run the
// incremental capacity check, pick the best line, then find or create
// the import-line bucket and append a route. Returns the import line id
// the route landed in.
func (s *Service) AddBarcode(ctx context.Context, scan ScanInput) (int64, error) {
	if scan.Quantity <= 0 {
		return 0, ErrInvalidQuantity
	}
	param, err := s.params.Get(ctx, scan.Family)
	if err != nil {
		return 0, fmt.Errorf("load parameters: %w", err)
	}
	var importLineID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		header, err := tx.GetHeader(ctx, scan.Family, scan.HeaderID)
		if err != nil {
			return err
		}
		if header.IsCompleted {
			return ErrHeaderCompleted
		}
		candidates, err := tx.ListCandidateLines(ctx, scan.HeaderID, scan.StockCode, scan.ConfigCode)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			return ErrLineNotFound
		}
		if param.RejectDuplicateSerial && scan.SerialNumber != "" {
			scanned, err := tx.AnyScannedSerial(ctx, scan.HeaderID, scan.StockCode, scan.ConfigCode, scan.SerialNumber)
			if err != nil {
				return err
			}
			if scanned {
				return ErrDuplicateSerial
			}
		}
		line, totals, err := s.selectLine(ctx, tx, candidates, scan.SerialNumber)
		if err != nil {
			return err
		}
		if v := CheckScanCapacity(totals, scan.Quantity, param.Policy()); v != nil {
			return v
		}
		il, err := tx.FindActiveImportLine(ctx, scan.HeaderID, line.ID)
		if errors.Is(err, ErrImportLineNotFound) {
			id, insErr := tx.InsertImportLine(ctx, ImportLine{
				HeaderID:   scan.HeaderID,
				LineID:     line.ID,
				StockCode:  scan.StockCode,
				ConfigCode: scan.ConfigCode,
			})
			if insErr != nil {
				return insErr
			}
			il = ImportLine{ID: id, HeaderID: scan.HeaderID, LineID: line.ID}
		} else if err != nil {
			return err
		}
		var serials []string
		if scan.SerialNumber != "" {
			serials = []string{scan.SerialNumber}
		}
		if _, err := tx.InsertRoute(ctx, Route{
			ImportLineID:   il.ID,
			Quantity:       scan.Quantity,
			Serials:        serials,
			SourceLocation: scan.SourceLocation,
			TargetLocation: scan.TargetLocation,
			Barcode:        scan.Barcode,
			CreatedBy:      scan.ActorID,
			CreatedAt:      s.clock.Now(),
		}); err != nil {
			if isUniqueViolation(err) {
				// Race backstop: a concurrent scan committed the serial first.
				return ErrDuplicateSerial
			}
			return err
		}
		importLineID = il.ID
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.recordAudit(ctx, scan.ActorID, "document.scan", scan.HeaderID, map[string]any{
		"family": scan.Family, "stock_code": scan.StockCode, "qty": scan.Quantity, "serial": scan.SerialNumber,
	})
	return importLineID, nil
}

// selectLine applies the tie-break over the candidate lines: a line
// uniquely identified by a matching serial wins; otherwise the line with
// the largest uncollected remainder; ties fall back to the first match.
// The returned totals are serial-scoped when the scan carries a serial
// and every commitment on the chosen line is serial-tagged.
func (s *Service) selectLine(ctx context.Context, tx TxRepository, candidates []Line, serial string) (Line, LineTotals, error) {
	if serial != "" {
		var matched []Line
		for _, l := range candidates {
			ok, err := tx.AnyLineSerialWithSerial(ctx, l.ID, serial)
			if err != nil {
				return Line{}, LineTotals{}, err
			}
			if ok {
				matched = append(matched, l)
			}
		}
		if len(matched) == 1 {
			totals, err := s.lineScanTotals(ctx, tx, matched[0], serial)
			return matched[0], totals, err
		}
	}
	best := candidates[0]
	bestTotals, err := s.lineScanTotals(ctx, tx, best, serial)
	if err != nil {
		return Line{}, LineTotals{}, err
	}
	for _, l := range candidates[1:] {
		totals, err := s.lineScanTotals(ctx, tx, l, serial)
		if err != nil {
			return Line{}, LineTotals{}, err
		}
		if totals.Remainder() > bestTotals.Remainder()+QtyEpsilon {
			best, bestTotals = l, totals
		}
	}
	return best, bestTotals, nil
}

// lineScanTotals computes the totals the capacity check runs against.
// When the scan carries a serial and all of the line's commitments are
// serial-tagged, the totals are scoped to the matching serial subset;
// otherwise the aggregate totals apply.
func (s *Service) lineScanTotals(ctx context.Context, tx TxRepository, line Line, serial string) (LineTotals, error) {
	totals := LineTotals{LineID: line.ID, StockCode: line.StockCode, ConfigCode: line.ConfigCode}
	if serial != "" {
		untagged, err := tx.CountUntaggedLineSerials(ctx, line.ID)
		if err != nil {
			return LineTotals{}, err
		}
		if untagged == 0 {
			required, err := tx.SumRequiredQtyForSerial(ctx, line.ID, serial)
			if err != nil {
				return LineTotals{}, err
			}
			collected, err := tx.SumCollectedQtyForSerial(ctx, line.ID, serial)
			if err != nil {
				return LineTotals{}, err
			}
			totals.Required, totals.Collected = required, collected
			return totals, nil
		}
	}
	required, err := tx.SumRequiredQty(ctx, line.ID)
	if err != nil {
		return LineTotals{}, err
	}
	collected, err := tx.SumCollectedQty(ctx, line.ID)
	if err != nil {
		return LineTotals{}, err
	}
	totals.Required, totals.Collected = required, collected
	return totals, nil
}

// SoftDelete runs the cascade manager against one record. For headers the
// family is verified before the cascade starts.
func (s *Service) SoftDelete(ctx context.Context, family Family, kind EntityKind, id, actorID int64) (DeletionOutcome, error) {
	var outcome DeletionOutcome
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if kind == KindHeader {
			if _, err := tx.GetHeader(ctx, family, id); err != nil {
				return err
			}
		}
		o, err := cascadeDelete(ctx, tx, kind, id, s.clock.Now())
		if err != nil {
			return err
		}
		outcome = o
		return nil
	})
	if err != nil {
		return DeletionOutcome{}, err
	}
	s.recordAudit(ctx, actorID, "document.delete", id, map[string]any{
		"family": family, "kind": kind, "cascade": len(outcome.Deleted),
	})
	return outcome, nil
}

// OrderInput creates a header with its requirement lines up front.
type OrderInput struct {
	BranchCode string
	DocType    string
	DocNumber  string
	Lines      []OrderLineInput
}

// OrderLineInput is one requirement line of a new order.
type OrderLineInput struct {
	StockCode  string
	ConfigCode string
	Serials    []OrderSerialInput
}

// OrderSerialInput is one required-quantity commitment.
type OrderSerialInput struct {
	Quantity     float64
	SerialNumber string
}

// GenerateOrder creates a Header with its Lines and LineSerials in one
// transaction. Collection then proceeds through AddBarcode.
func (s *Service) GenerateOrder(ctx context.Context, family Family, input OrderInput, actorID int64) (int64, error) {
	for _, l := range input.Lines {
		for _, ls := range l.Serials {
			if ls.Quantity <= 0 {
				return 0, ErrInvalidQuantity
			}
		}
	}
	now := s.clock.Now()
	docNumber := input.DocNumber
	if docNumber == "" {
		docNumber = family.DocPrefix() + "-" + uuid.NewString()
	}
	var headerID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertHeader(ctx, Header{
			Family:     family,
			BranchCode: input.BranchCode,
			DocType:    input.DocType,
			DocNumber:  docNumber,
			CreatedBy:  actorID,
			CreatedAt:  now,
		})
		if err != nil {
			return err
		}
		for _, l := range input.Lines {
			lineID, err := tx.InsertLine(ctx, Line{HeaderID: id, StockCode: l.StockCode, ConfigCode: l.ConfigCode})
			if err != nil {
				return err
			}
			for _, ls := range l.Serials {
				if _, err := tx.InsertLineSerial(ctx, LineSerial{LineID: lineID, Quantity: ls.Quantity, SerialNumber: ls.SerialNumber}); err != nil {
					return err
				}
			}
		}
		headerID = id
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.recordAudit(ctx, actorID, "document.create", headerID, map[string]any{"family": family, "doc_number": docNumber})
	return headerID, nil
}

// GetDocument loads the full active hierarchy of a header.
func (s *Service) GetDocument(ctx context.Context, family Family, headerID int64) (Document, error) {
	return s.repo.GetDocument(ctx, family, headerID)
}

// GetLineTotals exposes the reconciler's per-line view for the read side.
func (s *Service) GetLineTotals(ctx context.Context, family Family, headerID int64) ([]LineTotals, error) {
	if _, err := s.repo.GetHeader(ctx, family, headerID); err != nil {
		return nil, err
	}
	return s.repo.GetLineTotals(ctx, headerID)
}

// ListHeaders returns one page of active headers with pagination metadata.
func (s *Service) ListHeaders(ctx context.Context, family Family, filter HeaderFilter) ([]Header, shared.Pagination, error) {
	headers, total, err := s.repo.ListHeaders(ctx, family, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	perPage := filter.Limit
	if perPage <= 0 {
		perPage = 20
	}
	page := filter.Offset/perPage + 1
	return headers, shared.NewPagination(page, perPage, total), nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "document",
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
		At:       s.clock.Now(),
	})
}

// lineTotalsTx aggregates required and collected quantities per active
// line inside an open transaction.
func lineTotalsTx(ctx context.Context, tx TxRepository, headerID int64) ([]LineTotals, error) {
	lines, err := tx.ListActiveLines(ctx, headerID)
	if err != nil {
		return nil, err
	}
	totals := make([]LineTotals, 0, len(lines))
	for _, l := range lines {
		required, err := tx.SumRequiredQty(ctx, l.ID)
		if err != nil {
			return nil, err
		}
		collected, err := tx.SumCollectedQty(ctx, l.ID)
		if err != nil {
			return nil, err
		}
		totals = append(totals, LineTotals{
			LineID:     l.ID,
			StockCode:  l.StockCode,
			ConfigCode: l.ConfigCode,
			Required:   required,
			Collected:  collected,
		})
	}
	return totals, nil
}
