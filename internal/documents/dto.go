package documents

import (
	"time"

	"github.com/google/uuid"

	"github.com/astopaal/verii-wms-server-sub001/internal/shared"
)

type generateOrderRequest struct {
	BranchCode string             `json:"branch_code" validate:"required,max=32"`
	DocType    string             `json:"doc_type" validate:"max=32"`
	DocNumber  string             `json:"doc_number" validate:"max=64"`
	Lines      []orderLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type orderLineRequest struct {
	StockCode  string               `json:"stock_code" validate:"required,max=64"`
	ConfigCode string               `json:"config_code" validate:"max=64"`
	Serials    []orderSerialRequest `json:"serials" validate:"required,min=1,dive"`
}

type orderSerialRequest struct {
	Quantity     float64 `json:"qty" validate:"required,gt=0"`
	SerialNumber string  `json:"serial_number" validate:"max=64"`
}

func (r generateOrderRequest) toInput() OrderInput {
	input := OrderInput{BranchCode: r.BranchCode, DocType: r.DocType, DocNumber: r.DocNumber}
	for _, l := range r.Lines {
		line := OrderLineInput{StockCode: l.StockCode, ConfigCode: l.ConfigCode}
		for _, s := range l.Serials {
			line.Serials = append(line.Serials, OrderSerialInput{Quantity: s.Quantity, SerialNumber: s.SerialNumber})
		}
		input.Lines = append(input.Lines, line)
	}
	return input
}

type bulkCreateRequest struct {
	Header      bulkHeaderRequest       `json:"header" validate:"required"`
	Lines       []bulkLineRequest       `json:"lines" validate:"dive"`
	LineSerials []bulkLineSerialRequest `json:"line_serials" validate:"dive"`
	ImportLines []bulkImportLineRequest `json:"import_lines" validate:"dive"`
	Routes      []bulkRouteRequest      `json:"routes" validate:"dive"`
}

type bulkHeaderRequest struct {
	ClientKey  string `json:"client_key" validate:"required,max=64"`
	BranchCode string `json:"branch_code" validate:"required,max=32"`
	DocType    string `json:"doc_type" validate:"max=32"`
	DocNumber  string `json:"doc_number" validate:"max=64"`
}

type bulkLineRequest struct {
	ClientKey  string    `json:"client_key" validate:"max=64"`
	GroupGUID  uuid.UUID `json:"group_guid"`
	HeaderKey  string    `json:"header_key" validate:"required,max=64"`
	StockCode  string    `json:"stock_code" validate:"required,max=64"`
	ConfigCode string    `json:"config_code" validate:"max=64"`
}

type bulkLineSerialRequest struct {
	LineGroupGUID uuid.UUID `json:"line_group_guid"`
	LineClientKey string    `json:"line_client_key" validate:"max=64"`
	Quantity      float64   `json:"qty" validate:"required,gt=0"`
	SerialNumber  string    `json:"serial_number" validate:"max=64"`
}

type bulkImportLineRequest struct {
	ClientKey      string    `json:"client_key" validate:"max=64"`
	GroupGUID      uuid.UUID `json:"group_guid"`
	HeaderKey      string    `json:"header_key" validate:"required,max=64"`
	LineClientKey  string    `json:"line_client_key" validate:"max=64"`
	LineGroupGUID  uuid.UUID `json:"line_group_guid"`
	StockCode      string    `json:"stock_code" validate:"required,max=64"`
	ConfigCode     string    `json:"config_code" validate:"max=64"`
	RouteClientKey string    `json:"route_client_key" validate:"max=64"`
	RouteGroupGUID uuid.UUID `json:"route_group_guid"`
}

type bulkRouteRequest struct {
	ImportLineGroupGUID uuid.UUID `json:"import_line_group_guid"`
	ImportLineClientKey string    `json:"import_line_client_key" validate:"max=64"`
	ClientGroupGUID     uuid.UUID `json:"client_group_guid"`
	ClientKey           string    `json:"client_key" validate:"max=64"`
	Quantity            float64   `json:"qty" validate:"required,gt=0"`
	Serials             []string  `json:"serials" validate:"max=4,dive,max=64"`
	SourceLocation      string    `json:"source_location" validate:"max=64"`
	TargetLocation      string    `json:"target_location" validate:"max=64"`
	Barcode             string    `json:"barcode" validate:"max=128"`
}

func (r bulkCreateRequest) toPayload() BulkPayload {
	payload := BulkPayload{Header: BulkHeader{
		ClientKey:  r.Header.ClientKey,
		BranchCode: r.Header.BranchCode,
		DocType:    r.Header.DocType,
		DocNumber:  r.Header.DocNumber,
	}}
	for _, l := range r.Lines {
		payload.Lines = append(payload.Lines, BulkLine{
			ClientKey:  l.ClientKey,
			GroupGUID:  l.GroupGUID,
			HeaderKey:  l.HeaderKey,
			StockCode:  l.StockCode,
			ConfigCode: l.ConfigCode,
		})
	}
	for _, ls := range r.LineSerials {
		payload.LineSerials = append(payload.LineSerials, BulkLineSerial{
			LineGroupGUID: ls.LineGroupGUID,
			LineClientKey: ls.LineClientKey,
			Quantity:      ls.Quantity,
			SerialNumber:  ls.SerialNumber,
		})
	}
	for _, il := range r.ImportLines {
		payload.ImportLines = append(payload.ImportLines, BulkImportLine{
			ClientKey:      il.ClientKey,
			GroupGUID:      il.GroupGUID,
			HeaderKey:      il.HeaderKey,
			LineClientKey:  il.LineClientKey,
			LineGroupGUID:  il.LineGroupGUID,
			StockCode:      il.StockCode,
			ConfigCode:     il.ConfigCode,
			RouteClientKey: il.RouteClientKey,
			RouteGroupGUID: il.RouteGroupGUID,
		})
	}
	for _, rt := range r.Routes {
		payload.Routes = append(payload.Routes, BulkRoute{
			ImportLineGroupGUID: rt.ImportLineGroupGUID,
			ImportLineClientKey: rt.ImportLineClientKey,
			ClientGroupGUID:     rt.ClientGroupGUID,
			ClientKey:           rt.ClientKey,
			Quantity:            rt.Quantity,
			Serials:             rt.Serials,
			SourceLocation:      rt.SourceLocation,
			TargetLocation:      rt.TargetLocation,
			Barcode:             rt.Barcode,
		})
	}
	return payload
}

type scanRequest struct {
	StockCode      string  `json:"stock_code" validate:"required,max=64"`
	ConfigCode     string  `json:"config_code" validate:"max=64"`
	Quantity       float64 `json:"qty" validate:"required,gt=0"`
	SerialNumber   string  `json:"serial_number" validate:"max=64"`
	SourceLocation string  `json:"source_location" validate:"max=64"`
	TargetLocation string  `json:"target_location" validate:"max=64"`
	Barcode        string  `json:"barcode" validate:"max=128"`
}

type approvalRequest struct {
	Approved *bool `json:"approved" validate:"required"`
}

type headerResponse struct {
	ID                int64      `json:"id"`
	Family            Family     `json:"family"`
	BranchCode        string     `json:"branch_code"`
	DocType           string     `json:"doc_type,omitempty"`
	DocNumber         string     `json:"doc_number"`
	IsCompleted       bool       `json:"is_completed"`
	IsPendingApproval bool       `json:"is_pending_approval"`
	ApprovalStatus    *bool      `json:"approval_status"`
	ApprovedBy        int64      `json:"approved_by,omitempty"`
	ApprovalDate      *time.Time `json:"approval_date,omitempty"`
	CreatedBy         int64      `json:"created_by"`
	CreatedAt         time.Time  `json:"created_at"`
}

func toHeaderResponse(h Header) headerResponse {
	return headerResponse{
		ID:                h.ID,
		Family:            h.Family,
		BranchCode:        h.BranchCode,
		DocType:           h.DocType,
		DocNumber:         h.DocNumber,
		IsCompleted:       h.IsCompleted,
		IsPendingApproval: h.IsPendingApproval,
		ApprovalStatus:    h.ApprovalStatus,
		ApprovedBy:        h.ApprovedBy,
		ApprovalDate:      h.ApprovalDate,
		CreatedBy:         h.CreatedBy,
		CreatedAt:         h.CreatedAt,
	}
}

type lineSerialResponse struct {
	ID           int64   `json:"id"`
	Quantity     float64 `json:"qty"`
	SerialNumber string  `json:"serial_number,omitempty"`
}

type lineResponse struct {
	ID         int64                `json:"id"`
	StockCode  string               `json:"stock_code"`
	ConfigCode string               `json:"config_code,omitempty"`
	Serials    []lineSerialResponse `json:"serials"`
}

type routeResponse struct {
	ID             int64     `json:"id"`
	Quantity       float64   `json:"qty"`
	Serials        []string  `json:"serials,omitempty"`
	SourceLocation string    `json:"source_location,omitempty"`
	TargetLocation string    `json:"target_location,omitempty"`
	Barcode        string    `json:"barcode,omitempty"`
	CreatedBy      int64     `json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
}

type importLineResponse struct {
	ID         int64           `json:"id"`
	LineID     int64           `json:"line_id,omitempty"`
	StockCode  string          `json:"stock_code"`
	ConfigCode string          `json:"config_code,omitempty"`
	Routes     []routeResponse `json:"routes"`
}

type documentResponse struct {
	Header      headerResponse       `json:"header"`
	Lines       []lineResponse       `json:"lines"`
	ImportLines []importLineResponse `json:"import_lines"`
}

func toDocumentResponse(doc Document) documentResponse {
	resp := documentResponse{
		Header:      toHeaderResponse(doc.Header),
		Lines:       []lineResponse{},
		ImportLines: []importLineResponse{},
	}
	for _, l := range doc.Lines {
		line := lineResponse{ID: l.ID, StockCode: l.StockCode, ConfigCode: l.ConfigCode, Serials: []lineSerialResponse{}}
		for _, ls := range l.Serials {
			line.Serials = append(line.Serials, lineSerialResponse{ID: ls.ID, Quantity: ls.Quantity, SerialNumber: ls.SerialNumber})
		}
		resp.Lines = append(resp.Lines, line)
	}
	for _, il := range doc.ImportLines {
		bucket := importLineResponse{ID: il.ID, LineID: il.LineID, StockCode: il.StockCode, ConfigCode: il.ConfigCode, Routes: []routeResponse{}}
		for _, rt := range il.Routes {
			bucket.Routes = append(bucket.Routes, routeResponse{
				ID:             rt.ID,
				Quantity:       rt.Quantity,
				Serials:        rt.Serials,
				SourceLocation: rt.SourceLocation,
				TargetLocation: rt.TargetLocation,
				Barcode:        rt.Barcode,
				CreatedBy:      rt.CreatedBy,
				CreatedAt:      rt.CreatedAt,
			})
		}
		resp.ImportLines = append(resp.ImportLines, bucket)
	}
	return resp
}

type listHeadersResponse struct {
	Items      []headerResponse  `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

type createdResponse struct {
	ID int64 `json:"id"`
}

type scanResponse struct {
	ImportLineID int64 `json:"import_line_id"`
}

type deletionResponse struct {
	Deleted []EntityRef `json:"deleted"`
}

type lineTotalsResponse struct {
	LineID     int64   `json:"line_id"`
	StockCode  string  `json:"stock_code"`
	ConfigCode string  `json:"config_code,omitempty"`
	Required   float64 `json:"required"`
	Collected  float64 `json:"collected"`
	Remainder  float64 `json:"remainder"`
}
