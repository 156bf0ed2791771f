package documents

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/astopaal/verii-wms-server-sub001/internal/platform/db"
)

// Repository persists the document hierarchy in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations consumed by the
// resolver, the cascade manager and the orchestrator. Every query sees
// only active rows; soft-deleted records are invisible except through
// the count/exists checks the cascade logic runs.
type TxRepository interface {
	InsertHeader(ctx context.Context, h Header) (int64, error)
	InsertLine(ctx context.Context, l Line) (int64, error)
	InsertLineSerial(ctx context.Context, ls LineSerial) (int64, error)
	InsertImportLine(ctx context.Context, il ImportLine) (int64, error)
	InsertRoute(ctx context.Context, rt Route) (int64, error)

	GetHeader(ctx context.Context, family Family, id int64) (Header, error)
	GetLine(ctx context.Context, id int64) (Line, error)
	GetLineSerial(ctx context.Context, id int64) (LineSerial, error)
	GetImportLine(ctx context.Context, id int64) (ImportLine, error)
	GetRoute(ctx context.Context, id int64) (Route, error)
	FindActiveImportLine(ctx context.Context, headerID, lineID int64) (ImportLine, error)

	ListActiveLines(ctx context.Context, headerID int64) ([]Line, error)
	ListActiveLineSerials(ctx context.Context, lineID int64) ([]LineSerial, error)
	ListCandidateLines(ctx context.Context, headerID int64, stockCode, configCode string) ([]Line, error)

	CountActiveLines(ctx context.Context, headerID int64) (int, error)
	CountActiveImportLines(ctx context.Context, headerID int64) (int, error)
	CountActiveImportLinesForLine(ctx context.Context, lineID int64) (int, error)
	CountActiveLineSerials(ctx context.Context, lineID int64) (int, error)
	CountUntaggedLineSerials(ctx context.Context, lineID int64) (int, error)
	CountActiveRoutes(ctx context.Context, importLineID int64) (int, error)

	SumRequiredQty(ctx context.Context, lineID int64) (float64, error)
	SumCollectedQty(ctx context.Context, lineID int64) (float64, error)
	SumRequiredQtyForSerial(ctx context.Context, lineID int64, serial string) (float64, error)
	SumCollectedQtyForSerial(ctx context.Context, lineID int64, serial string) (float64, error)

	AnyRouteWithSerial(ctx context.Context, lineID int64, serial string) (bool, error)
	AnyScannedSerial(ctx context.Context, headerID int64, stockCode, configCode, serial string) (bool, error)
	AnyLineSerialWithSerial(ctx context.Context, lineID int64, serial string) (bool, error)

	SoftDeleteHeader(ctx context.Context, id int64, at time.Time) error
	SoftDeleteLine(ctx context.Context, id int64, at time.Time) error
	SoftDeleteLineSerial(ctx context.Context, id int64, at time.Time) error
	SoftDeleteImportLine(ctx context.Context, id int64, at time.Time) error
	SoftDeleteRoute(ctx context.Context, id int64, at time.Time) error

	MarkCompleted(ctx context.Context, headerID int64, pendingApproval bool, at time.Time) error
	SetApproval(ctx context.Context, headerID int64, approved bool, approverID int64, at time.Time) error
}

// WithTx executes the callback inside a repeatable-read transaction.
// Any error rolls the whole transaction back.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// GetHeader loads an active header of the given family.
func (r *Repository) GetHeader(ctx context.Context, family Family, id int64) (Header, error) {
	return scanHeader(r.pool.QueryRow(ctx, headerSelect+` WHERE family=$1 AND id=$2 AND NOT deleted`, family, id))
}

// GetLineTotals aggregates required and collected quantities per active
// line of a header, in hierarchy order.
func (r *Repository) GetLineTotals(ctx context.Context, headerID int64) ([]LineTotals, error) {
	rows, err := r.pool.Query(ctx, `
SELECT l.id, l.stock_code, l.config_code,
       COALESCE((SELECT SUM(ls.qty) FROM doc_line_serials ls WHERE ls.line_id=l.id AND NOT ls.deleted), 0),
       COALESCE((SELECT SUM(rt.qty)
                 FROM doc_routes rt
                 JOIN doc_import_lines il ON il.id = rt.import_line_id
                 WHERE il.line_id=l.id AND NOT il.deleted AND NOT rt.deleted), 0)
FROM doc_lines l
WHERE l.header_id=$1 AND NOT l.deleted
ORDER BY l.id`, headerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var totals []LineTotals
	for rows.Next() {
		var t LineTotals
		if err := rows.Scan(&t.LineID, &t.StockCode, &t.ConfigCode, &t.Required, &t.Collected); err != nil {
			return nil, err
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

// GetDocument loads the full active hierarchy of a header.
func (r *Repository) GetDocument(ctx context.Context, family Family, id int64) (Document, error) {
	header, err := r.GetHeader(ctx, family, id)
	if err != nil {
		return Document{}, err
	}
	doc := Document{Header: header}

	lineRows, err := r.pool.Query(ctx, `SELECT id, header_id, stock_code, config_code FROM doc_lines WHERE header_id=$1 AND NOT deleted ORDER BY id`, id)
	if err != nil {
		return Document{}, err
	}
	defer lineRows.Close()
	for lineRows.Next() {
		var l Line
		if err := lineRows.Scan(&l.ID, &l.HeaderID, &l.StockCode, &l.ConfigCode); err != nil {
			return Document{}, err
		}
		doc.Lines = append(doc.Lines, DocumentLine{Line: l})
	}
	if err := lineRows.Err(); err != nil {
		return Document{}, err
	}

	for i := range doc.Lines {
		serialRows, err := r.pool.Query(ctx, `SELECT id, line_id, qty, serial_number FROM doc_line_serials WHERE line_id=$1 AND NOT deleted ORDER BY id`, doc.Lines[i].ID)
		if err != nil {
			return Document{}, err
		}
		for serialRows.Next() {
			var ls LineSerial
			if err := serialRows.Scan(&ls.ID, &ls.LineID, &ls.Quantity, &ls.SerialNumber); err != nil {
				serialRows.Close()
				return Document{}, err
			}
			doc.Lines[i].Serials = append(doc.Lines[i].Serials, ls)
		}
		err = serialRows.Err()
		serialRows.Close()
		if err != nil {
			return Document{}, err
		}
	}

	importRows, err := r.pool.Query(ctx, `SELECT id, header_id, COALESCE(line_id,0), stock_code, config_code FROM doc_import_lines WHERE header_id=$1 AND NOT deleted ORDER BY id`, id)
	if err != nil {
		return Document{}, err
	}
	defer importRows.Close()
	for importRows.Next() {
		var il ImportLine
		if err := importRows.Scan(&il.ID, &il.HeaderID, &il.LineID, &il.StockCode, &il.ConfigCode); err != nil {
			return Document{}, err
		}
		doc.ImportLines = append(doc.ImportLines, DocumentImportLine{ImportLine: il})
	}
	if err := importRows.Err(); err != nil {
		return Document{}, err
	}

	for i := range doc.ImportLines {
		routeRows, err := r.pool.Query(ctx, `SELECT id, import_line_id, qty, serials, source_location, target_location, barcode, created_by, created_at FROM doc_routes WHERE import_line_id=$1 AND NOT deleted ORDER BY id`, doc.ImportLines[i].ID)
		if err != nil {
			return Document{}, err
		}
		for routeRows.Next() {
			var rt Route
			if err := routeRows.Scan(&rt.ID, &rt.ImportLineID, &rt.Quantity, &rt.Serials, &rt.SourceLocation, &rt.TargetLocation, &rt.Barcode, &rt.CreatedBy, &rt.CreatedAt); err != nil {
				routeRows.Close()
				return Document{}, err
			}
			doc.ImportLines[i].Routes = append(doc.ImportLines[i].Routes, rt)
		}
		err = routeRows.Err()
		routeRows.Close()
		if err != nil {
			return Document{}, err
		}
	}
	return doc, nil
}

// ListHeaders returns a page of active headers plus the total count.
func (r *Repository) ListHeaders(ctx context.Context, family Family, filter HeaderFilter) ([]Header, int, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	query := headerSelect + ` WHERE family=$1 AND NOT deleted`
	countQuery := `SELECT COUNT(*) FROM doc_headers WHERE family=$1 AND NOT deleted`
	args := []any{family}
	if filter.BranchCode != "" {
		args = append(args, filter.BranchCode)
		query += ` AND branch_code=$2`
		countQuery += ` AND branch_code=$2`
	}
	if filter.IsCompleted != nil {
		args = append(args, *filter.IsCompleted)
		cond := ` AND is_completed=$` + strconv.Itoa(len(args))
		query += cond
		countQuery += cond
	}
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var headers []Header
	for rows.Next() {
		h, err := scanHeaderRows(rows)
		if err != nil {
			return nil, 0, err
		}
		headers = append(headers, h)
	}
	return headers, total, rows.Err()
}

// GetParameter loads the policy row for a family. A missing row yields the
// zero-value Parameter: strict reconciliation, no approval gate.
func (r *Repository) GetParameter(ctx context.Context, family Family) (Parameter, error) {
	p := Parameter{Family: family}
	err := r.pool.QueryRow(ctx, `
SELECT allow_less_qty, allow_more_qty, require_all_collected, require_approval, reject_duplicate_serial
FROM doc_parameters WHERE family=$1`, family).
		Scan(&p.AllowLessQuantity, &p.AllowMoreQuantity, &p.RequireAllCollected, &p.RequireApproval, &p.RejectDuplicateSerial)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Parameter{Family: family}, nil
		}
		return Parameter{}, err
	}
	return p, nil
}
