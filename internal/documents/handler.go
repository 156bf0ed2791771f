package documents

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/astopaal/verii-wms-server-sub001/internal/platform/httpx"
	"github.com/astopaal/verii-wms-server-sub001/internal/shared"
)

// Handler exposes the document engine over JSON.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers the per-family document routes. The family path
// segment accepts both dashed and underscored spellings.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/{family}", func(r chi.Router) {
		r.Post("/orders", h.generateOrder)
		r.Post("/bulk", h.bulkCreate)
		r.Get("/orders", h.listHeaders)
		r.Get("/orders/{id}", h.getDocument)
		r.Get("/orders/{id}/totals", h.getLineTotals)
		r.Post("/orders/{id}/complete", h.complete)
		r.Post("/orders/{id}/approval", h.setApproval)
		r.Post("/orders/{id}/barcodes", h.addBarcode)
		r.Delete("/{kind}/{id}", h.softDelete)
	})
}

func (h *Handler) generateOrder(w http.ResponseWriter, r *http.Request) {
	family, ok := h.family(w, r)
	if !ok {
		return
	}
	var req generateOrderRequest
	if !h.decode(w, r, &req) {
		return
	}
	id, err := h.service.GenerateOrder(r.Context(), family, req.toInput(), shared.ActorID(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, createdResponse{ID: id})
}

func (h *Handler) bulkCreate(w http.ResponseWriter, r *http.Request) {
	family, ok := h.family(w, r)
	if !ok {
		return
	}
	var req bulkCreateRequest
	if !h.decode(w, r, &req) {
		return
	}
	id, err := h.service.BulkCreate(r.Context(), family, req.toPayload(), shared.ActorID(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, createdResponse{ID: id})
}

func (h *Handler) listHeaders(w http.ResponseWriter, r *http.Request) {
	family, ok := h.family(w, r)
	if !ok {
		return
	}
	filter := HeaderFilter{BranchCode: r.URL.Query().Get("branch_code")}
	if raw := r.URL.Query().Get("completed"); raw != "" {
		completed := raw == "true" || raw == "1"
		filter.IsCompleted = &completed
	}
	filter.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	filter.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))

	headers, pagination, err := h.service.ListHeaders(r.Context(), family, filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	items := make([]headerResponse, 0, len(headers))
	for _, hd := range headers {
		items = append(items, toHeaderResponse(hd))
	}
	httpx.JSON(w, http.StatusOK, listHeadersResponse{Items: items, Pagination: pagination})
}

func (h *Handler) getDocument(w http.ResponseWriter, r *http.Request) {
	family, ok := h.family(w, r)
	if !ok {
		return
	}
	id, ok := h.id(w, r, "id")
	if !ok {
		return
	}
	doc, err := h.service.GetDocument(r.Context(), family, id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toDocumentResponse(doc))
}

func (h *Handler) getLineTotals(w http.ResponseWriter, r *http.Request) {
	family, ok := h.family(w, r)
	if !ok {
		return
	}
	id, ok := h.id(w, r, "id")
	if !ok {
		return
	}
	totals, err := h.service.GetLineTotals(r.Context(), family, id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	items := make([]lineTotalsResponse, 0, len(totals))
	for _, t := range totals {
		items = append(items, lineTotalsResponse{
			LineID:     t.LineID,
			StockCode:  t.StockCode,
			ConfigCode: t.ConfigCode,
			Required:   t.Required,
			Collected:  t.Collected,
			Remainder:  t.Remainder(),
		})
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	family, ok := h.family(w, r)
	if !ok {
		return
	}
	id, ok := h.id(w, r, "id")
	if !ok {
		return
	}
	header, err := h.service.Complete(r.Context(), family, id, shared.ActorID(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toHeaderResponse(header))
}

func (h *Handler) setApproval(w http.ResponseWriter, r *http.Request) {
	family, ok := h.family(w, r)
	if !ok {
		return
	}
	id, ok := h.id(w, r, "id")
	if !ok {
		return
	}
	var req approvalRequest
	if !h.decode(w, r, &req) {
		return
	}
	header, err := h.service.SetApproval(r.Context(), family, id, *req.Approved, shared.ActorID(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toHeaderResponse(header))
}

func (h *Handler) addBarcode(w http.ResponseWriter, r *http.Request) {
	family, ok := h.family(w, r)
	if !ok {
		return
	}
	id, ok := h.id(w, r, "id")
	if !ok {
		return
	}
	var req scanRequest
	if !h.decode(w, r, &req) {
		return
	}
	importLineID, err := h.service.AddBarcode(r.Context(), ScanInput{
		Family:         family,
		HeaderID:       id,
		StockCode:      req.StockCode,
		ConfigCode:     req.ConfigCode,
		Quantity:       req.Quantity,
		SerialNumber:   req.SerialNumber,
		SourceLocation: req.SourceLocation,
		TargetLocation: req.TargetLocation,
		Barcode:        req.Barcode,
		ActorID:        shared.ActorID(r.Context()),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, scanResponse{ImportLineID: importLineID})
}

func (h *Handler) softDelete(w http.ResponseWriter, r *http.Request) {
	family, ok := h.family(w, r)
	if !ok {
		return
	}
	kind, err := ParseEntityKind(chi.URLParam(r, "kind"))
	if err != nil {
		httpx.Problem(w, http.StatusNotFound, "Unknown Entity Kind", err.Error())
		return
	}
	id, ok := h.id(w, r, "id")
	if !ok {
		return
	}
	outcome, err := h.service.SoftDelete(r.Context(), family, kind, id, shared.ActorID(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, deletionResponse{Deleted: outcome.Deleted})
}

func (h *Handler) family(w http.ResponseWriter, r *http.Request) (Family, bool) {
	family, err := ParseFamily(chi.URLParam(r, "family"))
	if err != nil {
		httpx.Problem(w, http.StatusNotFound, "Unknown Workflow Family", err.Error())
		return "", false
	}
	return family, true
}

func (h *Handler) id(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Identifier", "path id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed JSON", err.Error())
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

// respondError maps engine errors onto RFC7807 problems. Typed failures
// carry their machine-readable kind in the problem type field.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var violation *Violation
	var correlation *CorrelationError
	var blocking *BlockingReason
	switch {
	case errors.As(err, &violation):
		httpx.JSON(w, http.StatusUnprocessableEntity, httpx.ProblemDetail{
			Type:   string(violation.Kind),
			Title:  "Quantity Violation",
			Status: http.StatusUnprocessableEntity,
			Detail: violation.Error(),
		})
	case errors.As(err, &correlation):
		httpx.JSON(w, http.StatusUnprocessableEntity, httpx.ProblemDetail{
			Type:   string(correlation.Kind),
			Title:  "Correlation Failure",
			Status: http.StatusUnprocessableEntity,
			Detail: correlation.Error(),
		})
	case errors.As(err, &blocking):
		httpx.JSON(w, http.StatusConflict, httpx.ProblemDetail{
			Type:   string(blocking.Kind),
			Title:  "Deletion Blocked",
			Status: http.StatusConflict,
			Detail: blocking.Error(),
		})
	case errors.Is(err, ErrHeaderNotFound), errors.Is(err, ErrLineNotFound), errors.Is(err, ErrLineSerialNotFound),
		errors.Is(err, ErrImportLineNotFound), errors.Is(err, ErrRouteNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicateSerial), errors.Is(err, ErrDuplicateDocNumber),
		errors.Is(err, ErrHeaderCompleted), errors.Is(err, ErrApprovalState):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrInvalidQuantity):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("document request failed", "path", r.URL.Path, "error", err)
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
