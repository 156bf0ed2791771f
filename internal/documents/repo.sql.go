package documents

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const headerSelect = `
SELECT id, family, branch_code, doc_type, doc_number, is_completed, is_pending_approval,
       approval_status, COALESCE(approved_by,0), approval_date, created_by, created_at
FROM doc_headers`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHeader(row rowScanner) (Header, error) {
	var h Header
	err := row.Scan(&h.ID, &h.Family, &h.BranchCode, &h.DocType, &h.DocNumber, &h.IsCompleted,
		&h.IsPendingApproval, &h.ApprovalStatus, &h.ApprovedBy, &h.ApprovalDate, &h.CreatedBy, &h.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Header{}, ErrHeaderNotFound
		}
		return Header{}, err
	}
	return h, nil
}

func scanHeaderRows(rows pgx.Rows) (Header, error) {
	return scanHeader(rows)
}

type txRepo struct {
	tx pgx.Tx
}

func (r *txRepo) InsertHeader(ctx context.Context, h Header) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `
INSERT INTO doc_headers (family, branch_code, doc_type, doc_number, is_completed, is_pending_approval, created_by, created_at)
VALUES ($1,$2,$3,$4,false,false,$5,$6) RETURNING id`,
		h.Family, h.BranchCode, h.DocType, h.DocNumber, h.CreatedBy, h.CreatedAt).Scan(&id)
	if isUniqueViolation(err) {
		return 0, ErrDuplicateDocNumber
	}
	return id, err
}

func (r *txRepo) InsertLine(ctx context.Context, l Line) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `
INSERT INTO doc_lines (header_id, stock_code, config_code) VALUES ($1,$2,$3) RETURNING id`,
		l.HeaderID, l.StockCode, l.ConfigCode).Scan(&id)
	return id, err
}

func (r *txRepo) InsertLineSerial(ctx context.Context, ls LineSerial) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `
INSERT INTO doc_line_serials (line_id, qty, serial_number) VALUES ($1,$2,$3) RETURNING id`,
		ls.LineID, ls.Quantity, ls.SerialNumber).Scan(&id)
	return id, err
}

func (r *txRepo) InsertImportLine(ctx context.Context, il ImportLine) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `
INSERT INTO doc_import_lines (header_id, line_id, stock_code, config_code) VALUES ($1,NULLIF($2,0),$3,$4) RETURNING id`,
		il.HeaderID, il.LineID, il.StockCode, il.ConfigCode).Scan(&id)
	return id, err
}

func (r *txRepo) InsertRoute(ctx context.Context, rt Route) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `
INSERT INTO doc_routes (import_line_id, qty, serials, source_location, target_location, barcode, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
		rt.ImportLineID, rt.Quantity, rt.Serials, rt.SourceLocation, rt.TargetLocation, rt.Barcode, rt.CreatedBy, rt.CreatedAt).Scan(&id)
	return id, err
}

func (r *txRepo) GetHeader(ctx context.Context, family Family, id int64) (Header, error) {
	return scanHeader(r.tx.QueryRow(ctx, headerSelect+` WHERE family=$1 AND id=$2 AND NOT deleted FOR UPDATE`, family, id))
}

func (r *txRepo) GetLine(ctx context.Context, id int64) (Line, error) {
	var l Line
	err := r.tx.QueryRow(ctx, `SELECT id, header_id, stock_code, config_code FROM doc_lines WHERE id=$1 AND NOT deleted`, id).
		Scan(&l.ID, &l.HeaderID, &l.StockCode, &l.ConfigCode)
	if errors.Is(err, pgx.ErrNoRows) {
		return Line{}, ErrLineNotFound
	}
	return l, err
}

func (r *txRepo) GetLineSerial(ctx context.Context, id int64) (LineSerial, error) {
	var ls LineSerial
	err := r.tx.QueryRow(ctx, `SELECT id, line_id, qty, serial_number FROM doc_line_serials WHERE id=$1 AND NOT deleted`, id).
		Scan(&ls.ID, &ls.LineID, &ls.Quantity, &ls.SerialNumber)
	if errors.Is(err, pgx.ErrNoRows) {
		return LineSerial{}, ErrLineSerialNotFound
	}
	return ls, err
}

func (r *txRepo) GetImportLine(ctx context.Context, id int64) (ImportLine, error) {
	var il ImportLine
	err := r.tx.QueryRow(ctx, `SELECT id, header_id, COALESCE(line_id,0), stock_code, config_code FROM doc_import_lines WHERE id=$1 AND NOT deleted`, id).
		Scan(&il.ID, &il.HeaderID, &il.LineID, &il.StockCode, &il.ConfigCode)
	if errors.Is(err, pgx.ErrNoRows) {
		return ImportLine{}, ErrImportLineNotFound
	}
	return il, err
}

func (r *txRepo) GetRoute(ctx context.Context, id int64) (Route, error) {
	var rt Route
	err := r.tx.QueryRow(ctx, `
SELECT id, import_line_id, qty, serials, source_location, target_location, barcode, created_by, created_at
FROM doc_routes WHERE id=$1 AND NOT deleted`, id).
		Scan(&rt.ID, &rt.ImportLineID, &rt.Quantity, &rt.Serials, &rt.SourceLocation, &rt.TargetLocation, &rt.Barcode, &rt.CreatedBy, &rt.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Route{}, ErrRouteNotFound
	}
	return rt, err
}

func (r *txRepo) FindActiveImportLine(ctx context.Context, headerID, lineID int64) (ImportLine, error) {
	var il ImportLine
	err := r.tx.QueryRow(ctx, `
SELECT id, header_id, COALESCE(line_id,0), stock_code, config_code
FROM doc_import_lines WHERE header_id=$1 AND line_id=$2 AND NOT deleted LIMIT 1`, headerID, lineID).
		Scan(&il.ID, &il.HeaderID, &il.LineID, &il.StockCode, &il.ConfigCode)
	if errors.Is(err, pgx.ErrNoRows) {
		return ImportLine{}, ErrImportLineNotFound
	}
	return il, err
}

func (r *txRepo) ListActiveLines(ctx context.Context, headerID int64) ([]Line, error) {
	return r.listLines(ctx, `SELECT id, header_id, stock_code, config_code FROM doc_lines WHERE header_id=$1 AND NOT deleted ORDER BY id`, headerID)
}

func (r *txRepo) ListCandidateLines(ctx context.Context, headerID int64, stockCode, configCode string) ([]Line, error) {
	return r.listLines(ctx, `
SELECT id, header_id, stock_code, config_code FROM doc_lines
WHERE header_id=$1 AND stock_code=$2 AND config_code=$3 AND NOT deleted ORDER BY id`, headerID, stockCode, configCode)
}

func (r *txRepo) listLines(ctx context.Context, query string, args ...any) ([]Line, error) {
	rows, err := r.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.HeaderID, &l.StockCode, &l.ConfigCode); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *txRepo) ListActiveLineSerials(ctx context.Context, lineID int64) ([]LineSerial, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, line_id, qty, serial_number FROM doc_line_serials WHERE line_id=$1 AND NOT deleted ORDER BY id`, lineID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var serials []LineSerial
	for rows.Next() {
		var ls LineSerial
		if err := rows.Scan(&ls.ID, &ls.LineID, &ls.Quantity, &ls.SerialNumber); err != nil {
			return nil, err
		}
		serials = append(serials, ls)
	}
	return serials, rows.Err()
}

func (r *txRepo) CountActiveLines(ctx context.Context, headerID int64) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM doc_lines WHERE header_id=$1 AND NOT deleted`, headerID)
}

func (r *txRepo) CountActiveImportLines(ctx context.Context, headerID int64) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM doc_import_lines WHERE header_id=$1 AND NOT deleted`, headerID)
}

func (r *txRepo) CountActiveImportLinesForLine(ctx context.Context, lineID int64) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM doc_import_lines WHERE line_id=$1 AND NOT deleted`, lineID)
}

func (r *txRepo) CountActiveLineSerials(ctx context.Context, lineID int64) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM doc_line_serials WHERE line_id=$1 AND NOT deleted`, lineID)
}

func (r *txRepo) CountUntaggedLineSerials(ctx context.Context, lineID int64) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM doc_line_serials WHERE line_id=$1 AND serial_number='' AND NOT deleted`, lineID)
}

func (r *txRepo) CountActiveRoutes(ctx context.Context, importLineID int64) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM doc_routes WHERE import_line_id=$1 AND NOT deleted`, importLineID)
}

func (r *txRepo) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	err := r.tx.QueryRow(ctx, query, args...).Scan(&n)
	return n, err
}

func (r *txRepo) SumRequiredQty(ctx context.Context, lineID int64) (float64, error) {
	return r.sum(ctx, `SELECT COALESCE(SUM(qty),0) FROM doc_line_serials WHERE line_id=$1 AND NOT deleted`, lineID)
}

func (r *txRepo) SumCollectedQty(ctx context.Context, lineID int64) (float64, error) {
	return r.sum(ctx, `
SELECT COALESCE(SUM(rt.qty),0) FROM doc_routes rt
JOIN doc_import_lines il ON il.id = rt.import_line_id
WHERE il.line_id=$1 AND NOT il.deleted AND NOT rt.deleted`, lineID)
}

func (r *txRepo) SumRequiredQtyForSerial(ctx context.Context, lineID int64, serial string) (float64, error) {
	return r.sum(ctx, `SELECT COALESCE(SUM(qty),0) FROM doc_line_serials WHERE line_id=$1 AND LOWER(serial_number)=LOWER($2) AND NOT deleted`, lineID, serial)
}

func (r *txRepo) SumCollectedQtyForSerial(ctx context.Context, lineID int64, serial string) (float64, error) {
	return r.sum(ctx, `
SELECT COALESCE(SUM(rt.qty),0) FROM doc_routes rt
JOIN doc_import_lines il ON il.id = rt.import_line_id
WHERE il.line_id=$1 AND $2 ILIKE ANY(rt.serials) AND NOT il.deleted AND NOT rt.deleted`, lineID, serial)
}

func (r *txRepo) sum(ctx context.Context, query string, args ...any) (float64, error) {
	var total float64
	err := r.tx.QueryRow(ctx, query, args...).Scan(&total)
	return total, err
}

func (r *txRepo) AnyRouteWithSerial(ctx context.Context, lineID int64, serial string) (bool, error) {
	return r.exists(ctx, `
SELECT EXISTS (
  SELECT 1 FROM doc_routes rt
  JOIN doc_import_lines il ON il.id = rt.import_line_id
  WHERE il.line_id=$1 AND $2 ILIKE ANY(rt.serials) AND NOT il.deleted AND NOT rt.deleted)`, lineID, serial)
}

func (r *txRepo) AnyScannedSerial(ctx context.Context, headerID int64, stockCode, configCode, serial string) (bool, error) {
	return r.exists(ctx, `
SELECT EXISTS (
  SELECT 1 FROM doc_routes rt
  JOIN doc_import_lines il ON il.id = rt.import_line_id
  WHERE il.header_id=$1 AND il.stock_code=$2 AND il.config_code=$3
    AND $4 ILIKE ANY(rt.serials) AND NOT il.deleted AND NOT rt.deleted)`, headerID, stockCode, configCode, serial)
}

func (r *txRepo) AnyLineSerialWithSerial(ctx context.Context, lineID int64, serial string) (bool, error) {
	return r.exists(ctx, `
SELECT EXISTS (
  SELECT 1 FROM doc_line_serials WHERE line_id=$1 AND LOWER(serial_number)=LOWER($2) AND NOT deleted)`, lineID, serial)
}

func (r *txRepo) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var ok bool
	err := r.tx.QueryRow(ctx, query, args...).Scan(&ok)
	return ok, err
}

func (r *txRepo) SoftDeleteHeader(ctx context.Context, id int64, at time.Time) error {
	return r.softDelete(ctx, `UPDATE doc_headers SET deleted=true, deleted_at=$2 WHERE id=$1 AND NOT deleted`, id, at)
}

func (r *txRepo) SoftDeleteLine(ctx context.Context, id int64, at time.Time) error {
	return r.softDelete(ctx, `UPDATE doc_lines SET deleted=true, deleted_at=$2 WHERE id=$1 AND NOT deleted`, id, at)
}

func (r *txRepo) SoftDeleteLineSerial(ctx context.Context, id int64, at time.Time) error {
	return r.softDelete(ctx, `UPDATE doc_line_serials SET deleted=true, deleted_at=$2 WHERE id=$1 AND NOT deleted`, id, at)
}

func (r *txRepo) SoftDeleteImportLine(ctx context.Context, id int64, at time.Time) error {
	return r.softDelete(ctx, `UPDATE doc_import_lines SET deleted=true, deleted_at=$2 WHERE id=$1 AND NOT deleted`, id, at)
}

func (r *txRepo) SoftDeleteRoute(ctx context.Context, id int64, at time.Time) error {
	return r.softDelete(ctx, `UPDATE doc_routes SET deleted=true, deleted_at=$2 WHERE id=$1 AND NOT deleted`, id, at)
}

func (r *txRepo) softDelete(ctx context.Context, query string, id int64, at time.Time) error {
	_, err := r.tx.Exec(ctx, query, id, at)
	return err
}

func (r *txRepo) MarkCompleted(ctx context.Context, headerID int64, pendingApproval bool, at time.Time) error {
	_, err := r.tx.Exec(ctx, `
UPDATE doc_headers SET is_completed=true, is_pending_approval=$2, completed_at=$3 WHERE id=$1`, headerID, pendingApproval, at)
	return err
}

func (r *txRepo) SetApproval(ctx context.Context, headerID int64, approved bool, approverID int64, at time.Time) error {
	_, err := r.tx.Exec(ctx, `
UPDATE doc_headers SET is_pending_approval=false, approval_status=$2, approved_by=$3, approval_date=$4 WHERE id=$1`,
		headerID, approved, approverID, at)
	return err
}

// isUniqueViolation reports a PostgreSQL 23505 unique constraint error.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
