package documents

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BulkPayload carries a whole document hierarchy wired together with
// client correlation keys and group GUIDs instead of server identifiers.
type BulkPayload struct {
	Header      BulkHeader
	Lines       []BulkLine
	LineSerials []BulkLineSerial
	ImportLines []BulkImportLine
	Routes      []BulkRoute
}

// BulkHeader is the single header of a bulk payload.
type BulkHeader struct {
	ClientKey  string
	BranchCode string
	DocType    string
	DocNumber  string
}

// BulkLine references its header by client key.
type BulkLine struct {
	ClientKey  string
	GroupGUID  uuid.UUID
	HeaderKey  string
	StockCode  string
	ConfigCode string
}

// BulkLineSerial references its line by group GUID or client key;
// the GUID wins when both are present.
type BulkLineSerial struct {
	LineGroupGUID uuid.UUID
	LineClientKey string
	Quantity      float64
	SerialNumber  string
}

// BulkImportLine references its header (mandatory) and, optionally, a
// line. RouteClientKey/RouteGroupGUID are extra aliases registered for
// route resolution.
type BulkImportLine struct {
	ClientKey      string
	GroupGUID      uuid.UUID
	HeaderKey      string
	LineClientKey  string
	LineGroupGUID  uuid.UUID
	StockCode      string
	ConfigCode     string
	RouteClientKey string
	RouteGroupGUID uuid.UUID
}

// BulkRoute resolves its import line through a four-step fallback chain:
// import-line group GUID, import-line client key, route-level alias GUID,
// route-level alias key.
type BulkRoute struct {
	ImportLineGroupGUID uuid.UUID
	ImportLineClientKey string
	ClientGroupGUID     uuid.UUID
	ClientKey           string
	Quantity            float64
	Serials             []string
	SourceLocation      string
	TargetLocation      string
	Barcode             string
}

// keymap resolves client keys (case-insensitive) and group GUIDs
// (compared by value) to server identifiers.
type keymap struct {
	byKey  map[string]int64
	byGUID map[uuid.UUID]int64
}

func newKeymap() keymap {
	return keymap{byKey: make(map[string]int64), byGUID: make(map[uuid.UUID]int64)}
}

func (m keymap) putKey(key string, id int64) {
	if key != "" {
		m.byKey[strings.ToLower(key)] = id
	}
}

func (m keymap) putGUID(g uuid.UUID, id int64) {
	if g != uuid.Nil {
		m.byGUID[g] = id
	}
}

func (m keymap) key(key string) (int64, bool) {
	if key == "" {
		return 0, false
	}
	id, ok := m.byKey[strings.ToLower(key)]
	return id, ok
}

func (m keymap) guid(g uuid.UUID) (int64, bool) {
	if g == uuid.Nil {
		return 0, false
	}
	id, ok := m.byGUID[g]
	return id, ok
}

// resolveAndInsert wires a bulk hierarchy level by level inside the open
// transaction, recording key->id mappings as rows are written so children
// always find their parents resolved. Any unresolved reference aborts the
// whole transaction. The resolver only wires identities; quantities are
// validated before the transaction opens.
func resolveAndInsert(ctx context.Context, tx TxRepository, family Family, payload BulkPayload, actorID int64, now time.Time) (int64, error) {
	docNumber := payload.Header.DocNumber
	if docNumber == "" {
		docNumber = family.DocPrefix() + "-" + uuid.NewString()
	}
	headerID, err := tx.InsertHeader(ctx, Header{
		Family:     family,
		BranchCode: payload.Header.BranchCode,
		DocType:    payload.Header.DocType,
		DocNumber:  docNumber,
		CreatedBy:  actorID,
		CreatedAt:  now,
	})
	if err != nil {
		return 0, err
	}
	headers := newKeymap()
	headers.putKey(payload.Header.ClientKey, headerID)

	lines := newKeymap()
	for _, l := range payload.Lines {
		parentID, ok := headers.key(l.HeaderKey)
		if !ok {
			return 0, &CorrelationError{Kind: CorrelationHeaderKeyNotFound, Level: KindLine, Ref: l.HeaderKey}
		}
		id, err := tx.InsertLine(ctx, Line{HeaderID: parentID, StockCode: l.StockCode, ConfigCode: l.ConfigCode})
		if err != nil {
			return 0, err
		}
		lines.putKey(l.ClientKey, id)
		lines.putGUID(l.GroupGUID, id)
	}

	for _, ls := range payload.LineSerials {
		// GUID wins over the client key when both are present.
		lineID, ok := lines.guid(ls.LineGroupGUID)
		if !ok {
			lineID, ok = lines.key(ls.LineClientKey)
		}
		if !ok {
			return 0, &CorrelationError{Kind: CorrelationLineReferenceMissing, Level: KindLineSerial, Ref: lineSerialRef(ls)}
		}
		if _, err := tx.InsertLineSerial(ctx, LineSerial{LineID: lineID, Quantity: ls.Quantity, SerialNumber: ls.SerialNumber}); err != nil {
			return 0, err
		}
	}

	imports := newKeymap()
	routeAliases := newKeymap()
	for _, il := range payload.ImportLines {
		parentID, ok := headers.key(il.HeaderKey)
		if !ok {
			return 0, &CorrelationError{Kind: CorrelationHeaderKeyNotFound, Level: KindImportLine, Ref: il.HeaderKey}
		}
		var lineID int64
		if id, ok := lines.guid(il.LineGroupGUID); ok {
			lineID = id
		} else if id, ok := lines.key(il.LineClientKey); ok {
			lineID = id
		} else if il.LineGroupGUID != uuid.Nil || il.LineClientKey != "" {
			// A line reference was supplied but resolves nothing.
			return 0, &CorrelationError{Kind: CorrelationLineReferenceMissing, Level: KindImportLine, Ref: importLineRef(il)}
		}
		id, err := tx.InsertImportLine(ctx, ImportLine{HeaderID: parentID, LineID: lineID, StockCode: il.StockCode, ConfigCode: il.ConfigCode})
		if err != nil {
			return 0, err
		}
		imports.putKey(il.ClientKey, id)
		imports.putGUID(il.GroupGUID, id)
		routeAliases.putKey(il.RouteClientKey, id)
		routeAliases.putGUID(il.RouteGroupGUID, id)
	}

	for _, rt := range payload.Routes {
		importID, ok := imports.guid(rt.ImportLineGroupGUID)
		if !ok {
			importID, ok = imports.key(rt.ImportLineClientKey)
		}
		if !ok {
			importID, ok = routeAliases.guid(rt.ClientGroupGUID)
		}
		if !ok {
			importID, ok = routeAliases.key(rt.ClientKey)
		}
		if !ok {
			if rt.ImportLineGroupGUID != uuid.Nil || rt.ClientGroupGUID != uuid.Nil {
				return 0, &CorrelationError{Kind: CorrelationRouteGroupGuidNotFound, Level: KindRoute, Ref: routeRef(rt)}
			}
			return 0, &CorrelationError{Kind: CorrelationLineReferenceMissing, Level: KindRoute, Ref: routeRef(rt)}
		}
		if _, err := tx.InsertRoute(ctx, Route{
			ImportLineID:   importID,
			Quantity:       rt.Quantity,
			Serials:        rt.Serials,
			SourceLocation: rt.SourceLocation,
			TargetLocation: rt.TargetLocation,
			Barcode:        rt.Barcode,
			CreatedBy:      actorID,
			CreatedAt:      now,
		}); err != nil {
			return 0, err
		}
	}
	return headerID, nil
}

func lineSerialRef(ls BulkLineSerial) string {
	if ls.LineGroupGUID != uuid.Nil {
		return ls.LineGroupGUID.String()
	}
	return ls.LineClientKey
}

func importLineRef(il BulkImportLine) string {
	if il.LineGroupGUID != uuid.Nil {
		return il.LineGroupGUID.String()
	}
	return il.LineClientKey
}

func routeRef(rt BulkRoute) string {
	switch {
	case rt.ImportLineGroupGUID != uuid.Nil:
		return rt.ImportLineGroupGUID.String()
	case rt.ImportLineClientKey != "":
		return rt.ImportLineClientKey
	case rt.ClientGroupGUID != uuid.Nil:
		return rt.ClientGroupGUID.String()
	}
	return rt.ClientKey
}
