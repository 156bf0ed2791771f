package documents

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, svc *Service) *httptest.Server {
	t.Helper()
	handler := NewHandler(svc.logger, svc)
	r := chi.NewRouter()
	r.Route("/api", handler.MountRoutes)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestHandlerGenerateOrderAndFetch(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, Parameter{})
	srv := newTestServer(t, svc)

	resp := postJSON(t, srv.URL+"/api/warehouse-inbound/orders", map[string]any{
		"branch_code": "BR-01",
		"lines": []map[string]any{
			{"stock_code": "STK-1", "serials": []map[string]any{{"qty": 5}}},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created createdResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.NotZero(t, created.ID)

	get, err := http.Get(srv.URL + "/api/warehouse-inbound/orders/" + jsonNumber(created.ID))
	require.NoError(t, err)
	defer get.Body.Close()
	require.Equal(t, http.StatusOK, get.StatusCode)

	var doc documentResponse
	require.NoError(t, json.NewDecoder(get.Body).Decode(&doc))
	require.Equal(t, "BR-01", doc.Header.BranchCode)
	require.Len(t, doc.Lines, 1)
}

func TestHandlerUnknownFamilyIs404(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, Parameter{})
	srv := newTestServer(t, svc)

	resp := postJSON(t, srv.URL+"/api/cold-storage/orders", map[string]any{"branch_code": "BR-01"})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandlerValidationFailureIs400(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, Parameter{})
	srv := newTestServer(t, svc)

	// Missing lines entirely.
	resp := postJSON(t, srv.URL+"/api/warehouse-inbound/orders", map[string]any{"branch_code": "BR-01"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandlerQuantityViolationIs422(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, Parameter{})
	srv := newTestServer(t, svc)
	ctx := context.Background()

	headerID := seedOrder(t, svc, FamilyWarehouseInbound, []OrderLineInput{
		{StockCode: "STK-1", Serials: []OrderSerialInput{{Quantity: 5}}},
	})
	_, err := svc.AddBarcode(ctx, ScanInput{Family: FamilyWarehouseInbound, HeaderID: headerID, StockCode: "STK-1", Quantity: 3})
	require.NoError(t, err)

	resp := postJSON(t, srv.URL+"/api/warehouse-inbound/orders/"+jsonNumber(headerID)+"/complete", nil)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var problem struct {
		Type   string `json:"type"`
		Status int    `json:"status"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&problem))
	require.Equal(t, string(ViolationExactMismatch), problem.Type)
}

func TestHandlerDeletionBlockedIs409(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, Parameter{})
	srv := newTestServer(t, svc)

	headerID := seedOrder(t, svc, FamilyWarehouseInbound, []OrderLineInput{
		{StockCode: "STK-1", Serials: []OrderSerialInput{{Quantity: 5}}},
	})
	doc, err := svc.GetDocument(context.Background(), FamilyWarehouseInbound, headerID)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/warehouse-inbound/line/"+jsonNumber(doc.Lines[0].ID), nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHandlerDeleteCascadeResponse(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, Parameter{})
	srv := newTestServer(t, svc)

	headerID := seedOrder(t, svc, FamilyWarehouseInbound, []OrderLineInput{
		{StockCode: "STK-1", Serials: []OrderSerialInput{{Quantity: 5}}},
	})
	doc, err := svc.GetDocument(context.Background(), FamilyWarehouseInbound, headerID)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/warehouse-inbound/line-serial/"+jsonNumber(doc.Lines[0].Serials[0].ID), nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var deletion deletionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&deletion))
	require.Len(t, deletion.Deleted, 3)
}

func jsonNumber(id int64) string {
	raw, _ := json.Marshal(id)
	return string(raw)
}
