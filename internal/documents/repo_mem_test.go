package documents

import (
	"context"
	"sort"
	"strings"
	"time"
)

// memoryRepo is the in-memory RepositoryPort used by the service and
// cascade tests. WithTx snapshots the maps and restores them when the
// callback fails, mirroring the rollback guarantee of the real store.
type memoryRepo struct {
	headers     map[int64]Header
	lines       map[int64]Line
	lineSerials map[int64]LineSerial
	importLines map[int64]ImportLine
	routes      map[int64]Route
	nextID      int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		headers:     make(map[int64]Header),
		lines:       make(map[int64]Line),
		lineSerials: make(map[int64]LineSerial),
		importLines: make(map[int64]ImportLine),
		routes:      make(map[int64]Route),
	}
}

func cloneMap[K comparable, V any](src map[K]V) map[K]V {
	dst := make(map[K]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	headers := cloneMap(r.headers)
	lines := cloneMap(r.lines)
	lineSerials := cloneMap(r.lineSerials)
	importLines := cloneMap(r.importLines)
	routes := cloneMap(r.routes)
	nextID := r.nextID
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.headers, r.lines, r.lineSerials, r.importLines, r.routes = headers, lines, lineSerials, importLines, routes
		r.nextID = nextID
		return err
	}
	return nil
}

func (r *memoryRepo) GetHeader(ctx context.Context, family Family, id int64) (Header, error) {
	h, ok := r.headers[id]
	if !ok || h.Deleted || h.Family != family {
		return Header{}, ErrHeaderNotFound
	}
	return h, nil
}

func (r *memoryRepo) GetDocument(ctx context.Context, family Family, id int64) (Document, error) {
	header, err := r.GetHeader(ctx, family, id)
	if err != nil {
		return Document{}, err
	}
	doc := Document{Header: header}
	for _, l := range r.activeLines(id) {
		dl := DocumentLine{Line: l}
		for _, ls := range r.activeLineSerials(l.ID) {
			dl.Serials = append(dl.Serials, ls)
		}
		doc.Lines = append(doc.Lines, dl)
	}
	for _, il := range r.activeImportLines(id) {
		dil := DocumentImportLine{ImportLine: il}
		for _, rt := range r.activeRoutes(il.ID) {
			dil.Routes = append(dil.Routes, rt)
		}
		doc.ImportLines = append(doc.ImportLines, dil)
	}
	return doc, nil
}

func (r *memoryRepo) GetLineTotals(ctx context.Context, headerID int64) ([]LineTotals, error) {
	var totals []LineTotals
	for _, l := range r.activeLines(headerID) {
		totals = append(totals, LineTotals{
			LineID:     l.ID,
			StockCode:  l.StockCode,
			ConfigCode: l.ConfigCode,
			Required:   r.requiredQty(l.ID),
			Collected:  r.collectedQty(l.ID),
		})
	}
	return totals, nil
}

func (r *memoryRepo) ListHeaders(ctx context.Context, family Family, filter HeaderFilter) ([]Header, int, error) {
	var all []Header
	for _, h := range r.headers {
		if h.Deleted || h.Family != family {
			continue
		}
		if filter.BranchCode != "" && h.BranchCode != filter.BranchCode {
			continue
		}
		if filter.IsCompleted != nil && h.IsCompleted != *filter.IsCompleted {
			continue
		}
		all = append(all, h)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	total := len(all)
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	if filter.Offset >= len(all) {
		return nil, total, nil
	}
	all = all[filter.Offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, total, nil
}

func (r *memoryRepo) activeLines(headerID int64) []Line {
	var out []Line
	for _, l := range r.lines {
		if !l.Deleted && l.HeaderID == headerID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *memoryRepo) activeLineSerials(lineID int64) []LineSerial {
	var out []LineSerial
	for _, ls := range r.lineSerials {
		if !ls.Deleted && ls.LineID == lineID {
			out = append(out, ls)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *memoryRepo) activeImportLines(headerID int64) []ImportLine {
	var out []ImportLine
	for _, il := range r.importLines {
		if !il.Deleted && il.HeaderID == headerID {
			out = append(out, il)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *memoryRepo) activeRoutes(importLineID int64) []Route {
	var out []Route
	for _, rt := range r.routes {
		if !rt.Deleted && rt.ImportLineID == importLineID {
			out = append(out, rt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *memoryRepo) requiredQty(lineID int64) float64 {
	var total float64
	for _, ls := range r.lineSerials {
		if !ls.Deleted && ls.LineID == lineID {
			total += ls.Quantity
		}
	}
	return total
}

func (r *memoryRepo) collectedQty(lineID int64) float64 {
	var total float64
	for _, il := range r.importLines {
		if il.Deleted || il.LineID != lineID {
			continue
		}
		for _, rt := range r.routes {
			if !rt.Deleted && rt.ImportLineID == il.ID {
				total += rt.Quantity
			}
		}
	}
	return total
}

type memoryTx struct {
	repo *memoryRepo
}

func (tx *memoryTx) id() int64 {
	tx.repo.nextID++
	return tx.repo.nextID
}

func (tx *memoryTx) InsertHeader(ctx context.Context, h Header) (int64, error) {
	for _, existing := range tx.repo.headers {
		if !existing.Deleted && existing.Family == h.Family && existing.DocNumber == h.DocNumber {
			return 0, ErrDuplicateDocNumber
		}
	}
	h.ID = tx.id()
	tx.repo.headers[h.ID] = h
	return h.ID, nil
}

func (tx *memoryTx) InsertLine(ctx context.Context, l Line) (int64, error) {
	l.ID = tx.id()
	tx.repo.lines[l.ID] = l
	return l.ID, nil
}

func (tx *memoryTx) InsertLineSerial(ctx context.Context, ls LineSerial) (int64, error) {
	ls.ID = tx.id()
	tx.repo.lineSerials[ls.ID] = ls
	return ls.ID, nil
}

func (tx *memoryTx) InsertImportLine(ctx context.Context, il ImportLine) (int64, error) {
	il.ID = tx.id()
	tx.repo.importLines[il.ID] = il
	return il.ID, nil
}

func (tx *memoryTx) InsertRoute(ctx context.Context, rt Route) (int64, error) {
	rt.ID = tx.id()
	tx.repo.routes[rt.ID] = rt
	return rt.ID, nil
}

func (tx *memoryTx) GetHeader(ctx context.Context, family Family, id int64) (Header, error) {
	return tx.repo.GetHeader(ctx, family, id)
}

func (tx *memoryTx) GetLine(ctx context.Context, id int64) (Line, error) {
	l, ok := tx.repo.lines[id]
	if !ok || l.Deleted {
		return Line{}, ErrLineNotFound
	}
	return l, nil
}

func (tx *memoryTx) GetLineSerial(ctx context.Context, id int64) (LineSerial, error) {
	ls, ok := tx.repo.lineSerials[id]
	if !ok || ls.Deleted {
		return LineSerial{}, ErrLineSerialNotFound
	}
	return ls, nil
}

func (tx *memoryTx) GetImportLine(ctx context.Context, id int64) (ImportLine, error) {
	il, ok := tx.repo.importLines[id]
	if !ok || il.Deleted {
		return ImportLine{}, ErrImportLineNotFound
	}
	return il, nil
}

func (tx *memoryTx) GetRoute(ctx context.Context, id int64) (Route, error) {
	rt, ok := tx.repo.routes[id]
	if !ok || rt.Deleted {
		return Route{}, ErrRouteNotFound
	}
	return rt, nil
}

func (tx *memoryTx) FindActiveImportLine(ctx context.Context, headerID, lineID int64) (ImportLine, error) {
	for _, il := range tx.repo.activeImportLines(headerID) {
		if il.LineID == lineID {
			return il, nil
		}
	}
	return ImportLine{}, ErrImportLineNotFound
}

func (tx *memoryTx) ListActiveLines(ctx context.Context, headerID int64) ([]Line, error) {
	return tx.repo.activeLines(headerID), nil
}

func (tx *memoryTx) ListActiveLineSerials(ctx context.Context, lineID int64) ([]LineSerial, error) {
	return tx.repo.activeLineSerials(lineID), nil
}

func (tx *memoryTx) ListCandidateLines(ctx context.Context, headerID int64, stockCode, configCode string) ([]Line, error) {
	var out []Line
	for _, l := range tx.repo.activeLines(headerID) {
		if l.StockCode == stockCode && l.ConfigCode == configCode {
			out = append(out, l)
		}
	}
	return out, nil
}

func (tx *memoryTx) CountActiveLines(ctx context.Context, headerID int64) (int, error) {
	return len(tx.repo.activeLines(headerID)), nil
}

func (tx *memoryTx) CountActiveImportLines(ctx context.Context, headerID int64) (int, error) {
	return len(tx.repo.activeImportLines(headerID)), nil
}

func (tx *memoryTx) CountActiveImportLinesForLine(ctx context.Context, lineID int64) (int, error) {
	n := 0
	for _, il := range tx.repo.importLines {
		if !il.Deleted && il.LineID == lineID {
			n++
		}
	}
	return n, nil
}

func (tx *memoryTx) CountActiveLineSerials(ctx context.Context, lineID int64) (int, error) {
	return len(tx.repo.activeLineSerials(lineID)), nil
}

func (tx *memoryTx) CountUntaggedLineSerials(ctx context.Context, lineID int64) (int, error) {
	n := 0
	for _, ls := range tx.repo.activeLineSerials(lineID) {
		if ls.SerialNumber == "" {
			n++
		}
	}
	return n, nil
}

func (tx *memoryTx) CountActiveRoutes(ctx context.Context, importLineID int64) (int, error) {
	return len(tx.repo.activeRoutes(importLineID)), nil
}

func (tx *memoryTx) SumRequiredQty(ctx context.Context, lineID int64) (float64, error) {
	return tx.repo.requiredQty(lineID), nil
}

func (tx *memoryTx) SumCollectedQty(ctx context.Context, lineID int64) (float64, error) {
	return tx.repo.collectedQty(lineID), nil
}

func (tx *memoryTx) SumRequiredQtyForSerial(ctx context.Context, lineID int64, serial string) (float64, error) {
	var total float64
	for _, ls := range tx.repo.activeLineSerials(lineID) {
		if strings.EqualFold(ls.SerialNumber, serial) {
			total += ls.Quantity
		}
	}
	return total, nil
}

func (tx *memoryTx) SumCollectedQtyForSerial(ctx context.Context, lineID int64, serial string) (float64, error) {
	var total float64
	for _, il := range tx.repo.importLines {
		if il.Deleted || il.LineID != lineID {
			continue
		}
		for _, rt := range tx.repo.activeRoutes(il.ID) {
			if rt.HasSerial(serial) {
				total += rt.Quantity
			}
		}
	}
	return total, nil
}

func (tx *memoryTx) AnyRouteWithSerial(ctx context.Context, lineID int64, serial string) (bool, error) {
	for _, il := range tx.repo.importLines {
		if il.Deleted || il.LineID != lineID {
			continue
		}
		for _, rt := range tx.repo.activeRoutes(il.ID) {
			if rt.HasSerial(serial) {
				return true, nil
			}
		}
	}
	return false, nil
}

func (tx *memoryTx) AnyScannedSerial(ctx context.Context, headerID int64, stockCode, configCode, serial string) (bool, error) {
	for _, il := range tx.repo.activeImportLines(headerID) {
		if il.StockCode != stockCode || il.ConfigCode != configCode {
			continue
		}
		for _, rt := range tx.repo.activeRoutes(il.ID) {
			if rt.HasSerial(serial) {
				return true, nil
			}
		}
	}
	return false, nil
}

func (tx *memoryTx) AnyLineSerialWithSerial(ctx context.Context, lineID int64, serial string) (bool, error) {
	for _, ls := range tx.repo.activeLineSerials(lineID) {
		if strings.EqualFold(ls.SerialNumber, serial) {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memoryTx) SoftDeleteHeader(ctx context.Context, id int64, at time.Time) error {
	h, ok := tx.repo.headers[id]
	if !ok || h.Deleted {
		return ErrHeaderNotFound
	}
	h.Deleted = true
	tx.repo.headers[id] = h
	return nil
}

func (tx *memoryTx) SoftDeleteLine(ctx context.Context, id int64, at time.Time) error {
	l, ok := tx.repo.lines[id]
	if !ok || l.Deleted {
		return ErrLineNotFound
	}
	l.Deleted = true
	tx.repo.lines[id] = l
	return nil
}

func (tx *memoryTx) SoftDeleteLineSerial(ctx context.Context, id int64, at time.Time) error {
	ls, ok := tx.repo.lineSerials[id]
	if !ok || ls.Deleted {
		return ErrLineSerialNotFound
	}
	ls.Deleted = true
	tx.repo.lineSerials[id] = ls
	return nil
}

func (tx *memoryTx) SoftDeleteImportLine(ctx context.Context, id int64, at time.Time) error {
	il, ok := tx.repo.importLines[id]
	if !ok || il.Deleted {
		return ErrImportLineNotFound
	}
	il.Deleted = true
	tx.repo.importLines[id] = il
	return nil
}

func (tx *memoryTx) SoftDeleteRoute(ctx context.Context, id int64, at time.Time) error {
	rt, ok := tx.repo.routes[id]
	if !ok || rt.Deleted {
		return ErrRouteNotFound
	}
	rt.Deleted = true
	tx.repo.routes[id] = rt
	return nil
}

func (tx *memoryTx) MarkCompleted(ctx context.Context, headerID int64, pendingApproval bool, at time.Time) error {
	h, ok := tx.repo.headers[headerID]
	if !ok || h.Deleted {
		return ErrHeaderNotFound
	}
	h.IsCompleted = true
	h.IsPendingApproval = pendingApproval
	tx.repo.headers[headerID] = h
	return nil
}

func (tx *memoryTx) SetApproval(ctx context.Context, headerID int64, approved bool, approverID int64, at time.Time) error {
	h, ok := tx.repo.headers[headerID]
	if !ok || h.Deleted {
		return ErrHeaderNotFound
	}
	h.IsPendingApproval = false
	h.ApprovalStatus = &approved
	h.ApprovedBy = approverID
	t := at
	h.ApprovalDate = &t
	tx.repo.headers[headerID] = h
	return nil
}

// fixedParams serves one in-memory Parameter row per test.
type fixedParams struct {
	p Parameter
}

func (f fixedParams) Get(ctx context.Context, family Family) (Parameter, error) {
	p := f.p
	p.Family = family
	return p, nil
}
