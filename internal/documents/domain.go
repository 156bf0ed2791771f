package documents

import (
	"fmt"
	"strings"
	"time"
)

// Family identifies one of the four workflow families sharing the
// Header -> Line -> ImportLine -> Route document shape.
type Family string

const (
	// FamilyProductionTransfer covers transfers out of production.
	FamilyProductionTransfer Family = "PRODUCTION_TRANSFER"
	// FamilySubcontractReceipt covers subcontracting receipt transfers.
	FamilySubcontractReceipt Family = "SUBCONTRACT_RECEIPT"
	// FamilyWarehouseInbound covers warehouse inbound documents.
	FamilyWarehouseInbound Family = "WAREHOUSE_INBOUND"
	// FamilyWarehouseOutbound covers warehouse outbound documents.
	FamilyWarehouseOutbound Family = "WAREHOUSE_OUTBOUND"
)

// QtyEpsilon absorbs decimal rounding in all quantity comparisons.
const QtyEpsilon = 1e-6

// MaxRouteSerials caps the serial-number slots on a single scan event.
const MaxRouteSerials = 4

// ParseFamily maps a route/path segment onto a Family.
func ParseFamily(s string) (Family, error) {
	f := Family(strings.ToUpper(strings.ReplaceAll(s, "-", "_")))
	switch f {
	case FamilyProductionTransfer, FamilySubcontractReceipt, FamilyWarehouseInbound, FamilyWarehouseOutbound:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFamily, s)
}

// DocPrefix returns the short code used when generating document numbers.
func (f Family) DocPrefix() string {
	switch f {
	case FamilyProductionTransfer:
		return "PT"
	case FamilySubcontractReceipt:
		return "SR"
	case FamilyWarehouseInbound:
		return "WI"
	case FamilyWarehouseOutbound:
		return "WO"
	}
	return "DOC"
}

// Header is the top-level document of a workflow family.
// ApprovalStatus is tri-state: nil means a decision is still pending.
type Header struct {
	ID                int64
	Family            Family
	BranchCode        string
	DocType           string
	DocNumber         string
	IsCompleted       bool
	IsPendingApproval bool
	ApprovalStatus    *bool
	ApprovedBy        int64
	ApprovalDate      *time.Time
	CreatedBy         int64
	CreatedAt         time.Time
	Deleted           bool
}

// Line is a required item of a Header, expressed through LineSerial commitments.
type Line struct {
	ID         int64
	HeaderID   int64
	StockCode  string
	ConfigCode string
	Deleted    bool
}

// LineSerial is a required-quantity commitment under a Line, optionally
// tagged with a serial number.
type LineSerial struct {
	ID           int64
	LineID       int64
	Quantity     float64
	SerialNumber string
	Deleted      bool
}

// ImportLine buckets physical movement events for one stock+config pairing.
// LineID is zero when the bucket is not linked to a requirement line.
type ImportLine struct {
	ID         int64
	HeaderID   int64
	LineID     int64
	StockCode  string
	ConfigCode string
	Deleted    bool
}

// Route is one physical scan/move event.
type Route struct {
	ID             int64
	ImportLineID   int64
	Quantity       float64
	Serials        []string
	SourceLocation string
	TargetLocation string
	Barcode        string
	CreatedBy      int64
	CreatedAt      time.Time
	Deleted        bool
}

// HasSerial reports whether the route carries the given serial number.
func (r Route) HasSerial(serial string) bool {
	if serial == "" {
		return false
	}
	for _, s := range r.Serials {
		if strings.EqualFold(s, serial) {
			return true
		}
	}
	return false
}

// Parameter holds the per-family policy flags. One row per family; read
// once per operation and treated as immutable for that call.
type Parameter struct {
	Family                Family
	AllowLessQuantity     bool
	AllowMoreQuantity     bool
	RequireAllCollected   bool
	RequireApproval       bool
	RejectDuplicateSerial bool
}

// Policy extracts the reconciliation tolerance policy.
func (p Parameter) Policy() Policy {
	return Policy{
		AllowLess:           p.AllowLessQuantity,
		AllowMore:           p.AllowMoreQuantity,
		RequireAllCollected: p.RequireAllCollected,
	}
}

// Policy gates completion of a document against its collected quantities.
type Policy struct {
	AllowLess           bool
	AllowMore           bool
	RequireAllCollected bool
}

// LineTotals is the reconciler's per-line view: required is the sum of
// active LineSerial quantities, collected the sum of active Route
// quantities reachable through the line's import lines.
type LineTotals struct {
	LineID     int64
	StockCode  string
	ConfigCode string
	Required   float64
	Collected  float64
}

// Remainder returns the still-uncollected quantity.
func (t LineTotals) Remainder() float64 {
	return t.Required - t.Collected
}

// EntityKind names one level of the document hierarchy.
type EntityKind string

const (
	KindHeader     EntityKind = "header"
	KindLine       EntityKind = "line"
	KindLineSerial EntityKind = "line_serial"
	KindImportLine EntityKind = "import_line"
	KindRoute      EntityKind = "route"
)

// ParseEntityKind maps a route/path segment onto an EntityKind.
func ParseEntityKind(s string) (EntityKind, error) {
	k := EntityKind(strings.ToLower(strings.ReplaceAll(s, "-", "_")))
	switch k {
	case KindHeader, KindLine, KindLineSerial, KindImportLine, KindRoute:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEntityKind, s)
}

// EntityRef points at one record of the hierarchy.
type EntityRef struct {
	Kind EntityKind `json:"kind"`
	ID   int64      `json:"id"`
}

// DeletionOutcome lists every record soft-deleted by one cascade pass,
// the requested entity first.
type DeletionOutcome struct {
	Deleted []EntityRef
}

func (o *DeletionOutcome) add(kind EntityKind, id int64) {
	o.Deleted = append(o.Deleted, EntityRef{Kind: kind, ID: id})
}

// Document is a fully loaded hierarchy for the read side.
type Document struct {
	Header      Header
	Lines       []DocumentLine
	ImportLines []DocumentImportLine
}

// DocumentLine pairs a Line with its active commitments.
type DocumentLine struct {
	Line
	Serials []LineSerial
}

// DocumentImportLine pairs an ImportLine with its active routes.
type DocumentImportLine struct {
	ImportLine
	Routes []Route
}

// HeaderFilter narrows ListHeaders.
type HeaderFilter struct {
	BranchCode  string
	IsCompleted *bool
	Limit       int
	Offset      int
}
