package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"cylindercore/internal/archive"
	"cylindercore/internal/cache"
	"cylindercore/internal/core"
	"cylindercore/pkg/domain"
)

var manufactured = time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)

type harness struct {
	t       *testing.T
	handler http.Handler
	svc     *core.Service
	reg     *prometheus.Registry
	cache   *cache.MemoryCache
}

type response struct {
	Success    bool            `json:"success"`
	Data       json.RawMessage `json:"data"`
	Violations []violation     `json:"violations"`
	Error      *struct {
		Code      string          `json:"code"`
		Message   string          `json:"message"`
		Details   json.RawMessage `json:"details"`
		Retryable bool            `json:"retryable"`
	} `json:"error"`

	status int
	header http.Header
}

func newHarness(t *testing.T, mutate func(*Config), opts ...core.ServiceOption) *harness {
	t.Helper()
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine(), opts...)
	reg := prometheus.NewRegistry()
	mem := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mem.Close() })
	cfg := Config{Service: svc, Cache: mem, Registry: reg}
	if mutate != nil {
		mutate(&cfg)
	}
	h, err := New(cfg)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	hs := &harness{t: t, handler: h, svc: svc, reg: reg, cache: mem}
	hs.seed()
	return hs
}

func (h *harness) seed() {
	h.t.Helper()
	ctx := context.Background()
	admin := core.Actor{ID: "admin"}
	check := func(_ any, _ domain.Result, err error) {
		h.t.Helper()
		if err != nil {
			h.t.Fatalf("seed: %v", err)
		}
	}
	check(h.svc.CreateWarehouse(ctx, admin, domain.Warehouse{Base: domain.Base{ID: "w1"}, Code: "W1", Name: "Main", BranchID: "north"}))
	check(h.svc.CreateCustomer(ctx, admin, domain.Customer{Base: domain.Base{ID: "acme"}, Code: "ACM", Name: "Acme Welding", BranchID: "north"}))
	check(h.svc.CreateGasType(ctx, admin, domain.GasType{Base: domain.Base{ID: "o2"}, Code: "O2", Name: "Oxygen"}))
	check(h.svc.CreateProperty(ctx, admin, domain.CylinderProperty{Base: domain.Base{ID: "steel40"}, Name: "Steel 40L", Material: "steel", CapacityLiters: 40}))
}

func (h *harness) do(method, path, actor string, body any, headers ...string) response {
	h.t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			h.t.Fatalf("encode body: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set(HeaderActorID, actor)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	out := response{status: rec.Code, header: rec.Header()}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			h.t.Fatalf("decode %s %s: %v (%s)", method, path, err, rec.Body.String())
		}
	}
	out.status = rec.Code
	return out
}

func (r response) into(t *testing.T, dst any) {
	t.Helper()
	if err := json.Unmarshal(r.Data, dst); err != nil {
		t.Fatalf("decode data %s: %v", r.Data, err)
	}
}

func (h *harness) register(barcode string, status domain.CylinderStatus, gas string) domain.Cylinder {
	h.t.Helper()
	res := h.do(http.MethodPost, "/api/v1/cylinders", "clerk", map[string]any{
		"barcode": barcode, "serial_number": "SN-" + barcode, "cylinder_property_id": "steel40",
		"status": status, "warehouse_id": "w1", "gas_type_id": gas, "manufacture_date": manufactured,
	})
	if res.status != http.StatusCreated {
		h.t.Fatalf("register %s: %d %+v", barcode, res.status, res.Error)
	}
	var c domain.Cylinder
	res.into(h.t, &c)
	return c
}

func TestNewRequiresService(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected missing service to fail")
	}
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t, nil)
	if res := h.do(http.MethodGet, "/healthz", "", nil); res.status != http.StatusOK || !res.Success {
		t.Fatalf("unexpected health %+v", res)
	}
	h.do(http.MethodGet, "/api/v1/warehouses", "", nil)

	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	if rec.Code != http.StatusOK || !strings.Contains(body, `cylindercore_http_requests_total{method="GET",route="/api/v1/warehouses`) {
		t.Fatalf("metrics missing request series:\n%s", body)
	}
	if res := h.do(http.MethodGet, "/nowhere", "", nil); res.status != http.StatusNotFound || res.Error.Code != "NOT_FOUND" {
		t.Fatalf("unexpected not found %+v", res)
	}
}

func TestRequestIDPropagates(t *testing.T) {
	h := newHarness(t, nil)
	res := h.do(http.MethodGet, "/healthz", "", nil, HeaderRequestID, "req-42")
	if got := res.header.Get(HeaderRequestID); got != "req-42" {
		t.Fatalf("expected inbound request id, got %q", got)
	}
	res = h.do(http.MethodGet, "/healthz", "", nil)
	if res.header.Get(HeaderRequestID) == "" {
		t.Fatalf("expected generated request id")
	}
}

func TestCylinderLifecycleOverHTTP(t *testing.T) {
	h := newHarness(t, nil)
	c := h.register("100000001", domain.StatusAtWarehouseFilled, "o2")
	if c.Version != 1 || c.Status != domain.StatusAtWarehouseFilled {
		t.Fatalf("unexpected cylinder %+v", c)
	}

	var exists map[string]bool
	h.do(http.MethodGet, "/api/v1/cylinders/barcodes/100000001/exists", "", nil).into(t, &exists)
	if !exists["exists"] {
		t.Fatalf("expected barcode to exist")
	}
	var found domain.Cylinder
	h.do(http.MethodGet, "/api/v1/cylinders/lookup?identifier=SN-100000001", "", nil).into(t, &found)
	if found.ID != c.ID {
		t.Fatalf("lookup returned %+v", found)
	}

	res := h.do(http.MethodPost, "/api/v1/cylinders/"+c.ID+"/transitions", "clerk", map[string]any{
		"target_status": domain.StatusAtWarehouseEmpty, "expected_version": 1, "notes": "vented",
	})
	if res.status != http.StatusOK {
		t.Fatalf("transition: %d %+v", res.status, res.Error)
	}
	var moved domain.Cylinder
	res.into(t, &moved)
	if moved.Status != domain.StatusAtWarehouseEmpty || moved.Version != 2 || moved.GasTypeID != nil {
		t.Fatalf("unexpected transitioned cylinder %+v", moved)
	}

	var listed []domain.Cylinder
	h.do(http.MethodGet, "/api/v1/cylinders?status=AtWarehouseEmpty&warehouse_id=w1", "", nil).into(t, &listed)
	if len(listed) != 1 || listed[0].ID != c.ID {
		t.Fatalf("unexpected listing %+v", listed)
	}

	var moves []domain.MovementRecord
	h.do(http.MethodGet, "/api/v1/cylinders/"+c.ID+"/movements", "", nil).into(t, &moves)
	if len(moves) != 2 || moves[0].Type != domain.MovementIntake {
		t.Fatalf("unexpected ledger %+v", moves)
	}
	var page []domain.MovementRecord
	h.do(http.MethodGet, "/api/v1/cylinders/"+c.ID+"/movements?offset=1&limit=5", "", nil).into(t, &page)
	if len(page) != 1 || page[0].ID != moves[1].ID {
		t.Fatalf("unexpected page %+v", page)
	}
	if res := h.do(http.MethodGet, "/api/v1/cylinders/"+c.ID+"/movements?limit=x", "", nil); res.status != http.StatusBadRequest {
		t.Fatalf("expected bad limit to fail, got %d", res.status)
	}

	var replay replayResponse
	h.do(http.MethodGet, "/api/v1/cylinders/"+c.ID+"/replay", "", nil).into(t, &replay)
	if !replay.Consistent || replay.ReplayedStatus != domain.StatusAtWarehouseEmpty {
		t.Fatalf("unexpected replay %+v", replay)
	}
}

func TestReferenceDataRoutes(t *testing.T) {
	h := newHarness(t, nil)
	res := h.do(http.MethodPost, "/api/v1/suppliers", "clerk", map[string]any{"id": "sup1", "code": "SUP", "name": "Gas Supply Co"})
	if res.status != http.StatusCreated {
		t.Fatalf("create supplier: %d %+v", res.status, res.Error)
	}
	var suppliers []domain.Supplier
	h.do(http.MethodGet, "/api/v1/suppliers", "", nil).into(t, &suppliers)
	if len(suppliers) != 1 || suppliers[0].ID != "sup1" {
		t.Fatalf("unexpected suppliers %+v", suppliers)
	}
	var drivers []domain.Driver
	h.do(http.MethodGet, "/api/v1/drivers", "", nil).into(t, &drivers)
	if drivers == nil || len(drivers) != 0 {
		t.Fatalf("empty listings must decode to an empty array, got %#v", drivers)
	}
	var customer domain.Customer
	h.do(http.MethodGet, "/api/v1/customers/acme", "", nil).into(t, &customer)
	if customer.Name != "Acme Welding" {
		t.Fatalf("unexpected customer %+v", customer)
	}
	var gases []domain.GasType
	h.do(http.MethodGet, "/api/v1/properties/steel40/compatible-gas-types", "", nil).into(t, &gases)
	if len(gases) != 1 || gases[0].ID != "o2" {
		t.Fatalf("unexpected compatible gases %+v", gases)
	}
}

func TestErrorMapping(t *testing.T) {
	h := newHarness(t, nil, core.WithAuthorizer(core.RoleAuthorizer{"create_driver": {"manager"}}))
	c := h.register("100000011", domain.StatusAtWarehouseEmpty, "")
	transition := "/api/v1/cylinders/" + c.ID + "/transitions"

	cases := []struct {
		name      string
		method    string
		path      string
		actor     string
		body      any
		status    int
		code      string
		retryable bool
	}{
		{"missing actor", http.MethodPost, transition, "", map[string]any{"target_status": "Damaged"}, http.StatusBadRequest, "VALIDATION_ERROR", false},
		{"unknown field", http.MethodPost, transition, "clerk", map[string]any{"target": "Damaged"}, http.StatusBadRequest, "BAD_REQUEST", false},
		{"empty body", http.MethodPost, transition, "clerk", nil, http.StatusBadRequest, "BAD_REQUEST", false},
		{"bad barcode", http.MethodPost, "/api/v1/cylinders", "clerk", map[string]any{"barcode": "12"}, http.StatusBadRequest, "VALIDATION_ERROR", false},
		{"forbidden", http.MethodPost, "/api/v1/drivers", "clerk", map[string]any{"id": "d1", "name": "Dana"}, http.StatusForbidden, "FORBIDDEN", false},
		{"not found", http.MethodGet, "/api/v1/cylinders/nope", "", nil, http.StatusNotFound, "NOT_FOUND", false},
		{"invalid transition", http.MethodPost, transition, "clerk", map[string]any{"target_status": "AtCustomerLoan", "customer_id": "acme"}, http.StatusConflict, "INVALID_TRANSITION", false},
		{"stale version", http.MethodPost, transition, "clerk", map[string]any{"target_status": "Damaged", "expected_version": 7}, http.StatusConflict, "CONCURRENCY_CONFLICT", true},
		{"bad filter", http.MethodGet, "/api/v1/cylinders?status=Lost", "", nil, http.StatusBadRequest, "VALIDATION_ERROR", false},
		{"lookup without identifier", http.MethodGet, "/api/v1/cylinders/lookup", "", nil, http.StatusBadRequest, "BAD_REQUEST", false},
		{"archive not configured", http.MethodPost, "/api/v1/audit-sessions/s1/archive", "clerk", nil, http.StatusServiceUnavailable, "ARCHIVE_UNAVAILABLE", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := h.do(tc.method, tc.path, tc.actor, tc.body)
			if res.status != tc.status || res.Success || res.Error == nil {
				t.Fatalf("expected %d, got %d %+v", tc.status, res.status, res.Error)
			}
			if res.Error.Code != tc.code || res.Error.Retryable != tc.retryable {
				t.Fatalf("unexpected error %+v", res.Error)
			}
		})
	}
	if res := h.do(http.MethodPost, "/api/v1/drivers", "boss", map[string]any{"id": "d1", "name": "Dana"}, HeaderActorRoles, "clerk, manager"); res.status != http.StatusCreated {
		t.Fatalf("manager role must be granted: %d %+v", res.status, res.Error)
	}
}

func TestRateLimitPerActor(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.RateLimit = 0.001
		c.RateBurst = 1
	})
	body := map[string]any{"id": "g1", "code": "G1", "name": "Gas"}
	if res := h.do(http.MethodPost, "/api/v1/gas-types", "alice", body); res.status != http.StatusCreated {
		t.Fatalf("first request: %d %+v", res.status, res.Error)
	}
	res := h.do(http.MethodPost, "/api/v1/gas-types", "alice", body)
	if res.status != http.StatusTooManyRequests || res.Error.Code != "RATE_LIMITED" || res.header.Get("Retry-After") == "" {
		t.Fatalf("expected rate limit, got %d %+v", res.status, res.Error)
	}
	if res := h.do(http.MethodPost, "/api/v1/gas-types", "bob", map[string]any{"id": "g2", "code": "G2", "name": "Gas 2"}); res.status != http.StatusCreated {
		t.Fatalf("other actors keep their own bucket: %d", res.status)
	}
	if res := h.do(http.MethodGet, "/api/v1/gas-types", "alice", nil); res.status != http.StatusOK {
		t.Fatalf("reads are not limited: %d", res.status)
	}
}

func TestAuditReportsOverHTTP(t *testing.T) {
	reports := archive.NewReportArchive(archive.NewMemory())
	h := newHarness(t, func(c *Config) { c.Reports = reports }, core.WithArchive(reports))
	held := h.register("100000021", domain.StatusAtWarehouseFilled, "o2")
	h.register("100000022", domain.StatusAtWarehouseFilled, "o2")

	res := h.do(http.MethodPost, "/api/v1/loans/additions", "clerk", map[string]any{"customer_id": "acme", "cylinder_ids": []string{held.ID}})
	if res.status != http.StatusCreated {
		t.Fatalf("loan: %d %+v", res.status, res.Error)
	}
	var holdings []domain.Cylinder
	h.do(http.MethodGet, "/api/v1/customers/acme/holdings", "", nil).into(t, &holdings)
	if len(holdings) != 1 || holdings[0].Status != domain.StatusAtCustomerLoan {
		t.Fatalf("unexpected holdings %+v", holdings)
	}

	var session domain.AuditSession
	h.do(http.MethodPost, "/api/v1/audit-sessions", "auditor", map[string]any{"customer_id": "acme"}).into(t, &session)
	if len(session.Expected) != 1 || session.AuditorID != "auditor" {
		t.Fatalf("unexpected session %+v", session)
	}
	base := "/api/v1/audit-sessions/" + session.ID
	if res := h.do(http.MethodPost, base+"/start", "auditor", nil); res.status != http.StatusOK {
		t.Fatalf("start: %d %+v", res.status, res.Error)
	}
	var item domain.AuditResultItem
	h.do(http.MethodPost, base+"/scans", "auditor", map[string]any{"identifier": "100000022"}).into(t, &item)
	if item.Classification != domain.ClassUnexpected {
		t.Fatalf("unowned cylinder must be unexpected: %+v", item)
	}
	var summary domain.AuditSummary
	h.do(http.MethodPost, base+"/complete", "auditor", nil).into(t, &summary)
	if summary.Missing != 1 || summary.Match != 0 || summary.Unexpected != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	var archived reportResponse
	h.do(http.MethodPost, base+"/archive", "auditor", nil).into(t, &archived)
	if archived.Key != archive.ReportKey("acme", session.ID) {
		t.Fatalf("unexpected report key %q", archived.Key)
	}
	var infos []archive.Info
	h.do(http.MethodGet, "/api/v1/audit-reports?customer_id=acme", "", nil).into(t, &infos)
	if len(infos) != 1 || infos[0].Key != archived.Key {
		t.Fatalf("unexpected report listing %+v", infos)
	}
	var report domain.AuditReport
	h.do(http.MethodGet, "/api/v1/audit-reports/acme/"+session.ID, "", nil).into(t, &report)
	if report.Session.ID != session.ID || report.Summary != summary {
		t.Fatalf("unexpected report %+v", report)
	}
	if res := h.do(http.MethodGet, "/api/v1/audit-reports/acme/"+session.ID+"?url=1", "", nil); res.status != http.StatusNotImplemented {
		t.Fatalf("memory archive cannot sign: %d", res.status)
	}
	if res := h.do(http.MethodGet, "/api/v1/audit-reports/acme/missing", "", nil); res.status != http.StatusNotFound {
		t.Fatalf("expected missing report to 404, got %d", res.status)
	}
}
