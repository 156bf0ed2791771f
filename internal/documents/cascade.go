package documents

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// cascadeDelete soft-deletes one record and walks the hierarchy upward,
// removing parents that the deletion emptied of all active children.
// Every rule runs inside the caller's transaction; a BlockingReason
// aborts the whole pass with nothing deleted.
func cascadeDelete(ctx context.Context, tx TxRepository, kind EntityKind, id int64, at time.Time) (DeletionOutcome, error) {
	switch kind {
	case KindRoute:
		return deleteRoute(ctx, tx, id, at)
	case KindLineSerial:
		return deleteLineSerial(ctx, tx, id, at)
	case KindLine:
		return deleteLine(ctx, tx, id, at)
	case KindImportLine:
		return deleteImportLine(ctx, tx, id, at)
	case KindHeader:
		return deleteHeader(ctx, tx, id, at)
	}
	return DeletionOutcome{}, fmt.Errorf("%w: %q", ErrUnknownEntityKind, kind)
}

// deleteRoute always succeeds for an active route; the cascade then
// sweeps the import line when it has no routes left and its linked line
// carries no commitments, and the header when nothing active remains.
func deleteRoute(ctx context.Context, tx TxRepository, id int64, at time.Time) (DeletionOutcome, error) {
	var outcome DeletionOutcome
	rt, err := tx.GetRoute(ctx, id)
	if err != nil {
		return outcome, err
	}
	if err := tx.SoftDeleteRoute(ctx, rt.ID, at); err != nil {
		return outcome, err
	}
	outcome.add(KindRoute, rt.ID)

	il, err := tx.GetImportLine(ctx, rt.ImportLineID)
	if err != nil {
		// The parent may already be gone; the route deletion stands alone.
		if errors.Is(err, ErrImportLineNotFound) {
			return outcome, nil
		}
		return outcome, err
	}
	routes, err := tx.CountActiveRoutes(ctx, il.ID)
	if err != nil {
		return outcome, err
	}
	if routes > 0 {
		return outcome, nil
	}
	if il.LineID != 0 {
		serials, err := tx.CountActiveLineSerials(ctx, il.LineID)
		if err != nil {
			return outcome, err
		}
		if serials > 0 {
			return outcome, nil
		}
	}
	if err := tx.SoftDeleteImportLine(ctx, il.ID, at); err != nil {
		return outcome, err
	}
	outcome.add(KindImportLine, il.ID)
	return sweepHeader(ctx, tx, il.HeaderID, at, outcome)
}

// deleteLineSerial refuses when the serial is already physically consumed
// by an active route, or when removing the commitment would leave more
// collected than required.
func deleteLineSerial(ctx context.Context, tx TxRepository, id int64, at time.Time) (DeletionOutcome, error) {
	var outcome DeletionOutcome
	ls, err := tx.GetLineSerial(ctx, id)
	if err != nil {
		return outcome, err
	}
	if ls.SerialNumber != "" {
		consumed, err := tx.AnyRouteWithSerial(ctx, ls.LineID, ls.SerialNumber)
		if err != nil {
			return outcome, err
		}
		if consumed {
			return outcome, &BlockingReason{
				Kind:   BlockingSerialConsumed,
				Entity: EntityRef{Kind: KindLineSerial, ID: ls.ID},
				Detail: fmt.Sprintf("serial %s is already collected by an active route", ls.SerialNumber),
			}
		}
	}
	required, err := tx.SumRequiredQty(ctx, ls.LineID)
	if err != nil {
		return outcome, err
	}
	collected, err := tx.SumCollectedQty(ctx, ls.LineID)
	if err != nil {
		return outcome, err
	}
	if required-ls.Quantity < collected-QtyEpsilon {
		return outcome, &BlockingReason{
			Kind:   BlockingCollectedExceedsRequired,
			Entity: EntityRef{Kind: KindLineSerial, ID: ls.ID},
			Detail: fmt.Sprintf("remaining requirement %.4f would fall below collected %.4f", required-ls.Quantity, collected),
		}
	}
	if err := tx.SoftDeleteLineSerial(ctx, ls.ID, at); err != nil {
		return outcome, err
	}
	outcome.add(KindLineSerial, ls.ID)

	serials, err := tx.CountActiveLineSerials(ctx, ls.LineID)
	if err != nil {
		return outcome, err
	}
	imports, err := tx.CountActiveImportLinesForLine(ctx, ls.LineID)
	if err != nil {
		return outcome, err
	}
	if serials > 0 || imports > 0 {
		return outcome, nil
	}
	line, err := tx.GetLine(ctx, ls.LineID)
	if err != nil {
		return outcome, err
	}
	if err := tx.SoftDeleteLine(ctx, line.ID, at); err != nil {
		return outcome, err
	}
	outcome.add(KindLine, line.ID)
	return sweepHeader(ctx, tx, line.HeaderID, at, outcome)
}

// deleteLine refuses while any commitment or import line still hangs off it.
func deleteLine(ctx context.Context, tx TxRepository, id int64, at time.Time) (DeletionOutcome, error) {
	var outcome DeletionOutcome
	line, err := tx.GetLine(ctx, id)
	if err != nil {
		return outcome, err
	}
	serials, err := tx.CountActiveLineSerials(ctx, line.ID)
	if err != nil {
		return outcome, err
	}
	if serials > 0 {
		return outcome, &BlockingReason{
			Kind:   BlockingActiveLineSerials,
			Entity: EntityRef{Kind: KindLine, ID: line.ID},
			Detail: fmt.Sprintf("%d active line serials remain", serials),
		}
	}
	imports, err := tx.CountActiveImportLinesForLine(ctx, line.ID)
	if err != nil {
		return outcome, err
	}
	if imports > 0 {
		return outcome, &BlockingReason{
			Kind:   BlockingActiveImportLines,
			Entity: EntityRef{Kind: KindLine, ID: line.ID},
			Detail: fmt.Sprintf("%d active import lines remain", imports),
		}
	}
	if err := tx.SoftDeleteLine(ctx, line.ID, at); err != nil {
		return outcome, err
	}
	outcome.add(KindLine, line.ID)
	return sweepHeader(ctx, tx, line.HeaderID, at, outcome)
}

// deleteImportLine refuses while it still owns routes, or while its
// linked line still carries commitments.
func deleteImportLine(ctx context.Context, tx TxRepository, id int64, at time.Time) (DeletionOutcome, error) {
	var outcome DeletionOutcome
	il, err := tx.GetImportLine(ctx, id)
	if err != nil {
		return outcome, err
	}
	routes, err := tx.CountActiveRoutes(ctx, il.ID)
	if err != nil {
		return outcome, err
	}
	if routes > 0 {
		return outcome, &BlockingReason{
			Kind:   BlockingActiveRoutes,
			Entity: EntityRef{Kind: KindImportLine, ID: il.ID},
			Detail: fmt.Sprintf("%d active routes remain", routes),
		}
	}
	if il.LineID != 0 {
		serials, err := tx.CountActiveLineSerials(ctx, il.LineID)
		if err != nil {
			return outcome, err
		}
		if serials > 0 {
			return outcome, &BlockingReason{
				Kind:   BlockingActiveLineSerials,
				Entity: EntityRef{Kind: KindImportLine, ID: il.ID},
				Detail: fmt.Sprintf("linked line %d still has %d active line serials", il.LineID, serials),
			}
		}
	}
	if err := tx.SoftDeleteImportLine(ctx, il.ID, at); err != nil {
		return outcome, err
	}
	outcome.add(KindImportLine, il.ID)
	return sweepHeader(ctx, tx, il.HeaderID, at, outcome)
}

// deleteHeader refuses while any import line is active. Lines alone do
// not block: a header holding only empty lines is removable, and the
// remaining lines and their commitments are swept down with it.
func deleteHeader(ctx context.Context, tx TxRepository, id int64, at time.Time) (DeletionOutcome, error) {
	var outcome DeletionOutcome
	imports, err := tx.CountActiveImportLines(ctx, id)
	if err != nil {
		return outcome, err
	}
	if imports > 0 {
		return outcome, &BlockingReason{
			Kind:   BlockingActiveImportLines,
			Entity: EntityRef{Kind: KindHeader, ID: id},
			Detail: fmt.Sprintf("%d active import lines remain", imports),
		}
	}
	lines, err := tx.ListActiveLines(ctx, id)
	if err != nil {
		return outcome, err
	}
	for _, line := range lines {
		serials, err := tx.ListActiveLineSerials(ctx, line.ID)
		if err != nil {
			return outcome, err
		}
		for _, ls := range serials {
			if err := tx.SoftDeleteLineSerial(ctx, ls.ID, at); err != nil {
				return outcome, err
			}
			outcome.add(KindLineSerial, ls.ID)
		}
		if err := tx.SoftDeleteLine(ctx, line.ID, at); err != nil {
			return outcome, err
		}
		outcome.add(KindLine, line.ID)
	}
	if err := tx.SoftDeleteHeader(ctx, id, at); err != nil {
		return outcome, err
	}
	outcome.add(KindHeader, id)
	return outcome, nil
}

// sweepHeader deletes the header once it has neither active lines nor
// active import lines left.
func sweepHeader(ctx context.Context, tx TxRepository, headerID int64, at time.Time, outcome DeletionOutcome) (DeletionOutcome, error) {
	lines, err := tx.CountActiveLines(ctx, headerID)
	if err != nil {
		return outcome, err
	}
	if lines > 0 {
		return outcome, nil
	}
	imports, err := tx.CountActiveImportLines(ctx, headerID)
	if err != nil {
		return outcome, err
	}
	if imports > 0 {
		return outcome, nil
	}
	if err := tx.SoftDeleteHeader(ctx, headerID, at); err != nil {
		return outcome, err
	}
	outcome.add(KindHeader, headerID)
	return outcome, nil
}
