package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	glog "github.com/labstack/gommon/log"

	"github.com/tunescope/enricher/internal/budget"
	"github.com/tunescope/enricher/internal/enrich"
	"github.com/tunescope/enricher/internal/ratelimit"
	"github.com/tunescope/enricher/internal/search"
)

type serviceStub struct {
	lastContact  enrich.Contact
	lastOpts     *enrich.Options
	batchSize    int
	usage        budget.Usage
	cacheSize    int
	cacheCleared bool
}

func (s *serviceStub) EnrichContact(_ context.Context, c enrich.Contact, opts *enrich.Options) enrich.EnrichedContact {
	s.lastContact = c
	s.lastOpts = opts
	return enrich.EnrichedContact{
		Contact:    c,
		Platform:   "BBC",
		Confidence: enrich.ConfidenceHigh,
		Source:     enrich.SourceClaude,
	}
}

func (s *serviceStub) EnrichBatch(_ context.Context, contacts []enrich.Contact, opts *enrich.Options) []enrich.EnrichedContact {
	s.batchSize = len(contacts)
	s.lastOpts = opts
	out := make([]enrich.EnrichedContact, 0, len(contacts))
	for _, c := range contacts {
		out = append(out, enrich.EnrichedContact{Contact: c, Platform: "X", Source: enrich.SourceFallback})
	}
	return out
}

func (s *serviceStub) CostUsage() budget.Usage { return s.usage }

func (s *serviceStub) GetCacheStats(context.Context) enrich.CacheStats {
	return enrich.CacheStats{Size: s.cacheSize}
}

func (s *serviceStub) ClearCache(context.Context) { s.cacheCleared = true }

type quotaStub struct{ usage search.QuotaUsage }

func (q *quotaStub) GetUsage() search.QuotaUsage { return q.usage }

func newTestContext(method, path, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestPostEnrich(t *testing.T) {
	stub := &serviceStub{}
	h := &EnrichHandler{Service: stub}

	body := `{"contact":{"name":"Jane","email":"jane@bbc.co.uk"},"context":{"genre":"indie"},"no_cache":true}`
	ctx, rec := newTestContext(http.MethodPost, "/api/enrich", body)

	if err := h.postEnrich(ctx); err != nil {
		t.Fatalf("postEnrich returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if stub.lastContact.Email != "jane@bbc.co.uk" {
		t.Fatalf("contact not passed through: %+v", stub.lastContact)
	}
	if !stub.lastOpts.NoCache || stub.lastOpts.Context == nil || stub.lastOpts.Context.Genre != "indie" {
		t.Fatalf("options not passed through: %+v", stub.lastOpts)
	}
	var resp enrich.EnrichedContact
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Platform != "BBC" || resp.Source != enrich.SourceClaude {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestPostEnrichValidation(t *testing.T) {
	h := &EnrichHandler{Service: &serviceStub{}}
	cases := []struct {
		name string
		body string
	}{
		{"missing name", `{"contact":{"email":"jane@bbc.co.uk"}}`},
		{"missing email", `{"contact":{"name":"Jane"}}`},
		{"malformed email", `{"contact":{"name":"Jane","email":"not-an-email"}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx, _ := newTestContext(http.MethodPost, "/api/enrich", tc.body)
			err := h.postEnrich(ctx)
			httpErr, ok := err.(*echo.HTTPError)
			if !ok || httpErr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400 http error, got %#v", err)
			}
		})
	}
}

func TestPostBatch(t *testing.T) {
	stub := &serviceStub{}
	h := &EnrichHandler{Service: stub}

	body := `{"contacts":[{"name":"A","email":"a@x.com"},{"name":"B","email":"b@y.com"}]}`
	ctx, rec := newTestContext(http.MethodPost, "/api/enrich/batch", body)

	if err := h.postBatch(ctx); err != nil {
		t.Fatalf("postBatch returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if stub.batchSize != 2 {
		t.Fatalf("expected 2 contacts, got %d", stub.batchSize)
	}
	var resp batchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Requested != 2 || resp.Returned != 2 || len(resp.Results) != 2 {
		t.Fatalf("unexpected batch response %+v", resp)
	}
}

func TestPostBatchRejectsEmptyAndOversized(t *testing.T) {
	h := &EnrichHandler{Service: &serviceStub{}}

	ctx, _ := newTestContext(http.MethodPost, "/api/enrich/batch", `{"contacts":[]}`)
	if err, ok := h.postBatch(ctx).(*echo.HTTPError); !ok || err.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty batch")
	}

	var sb strings.Builder
	sb.WriteString(`{"contacts":[`)
	for i := 0; i <= maxBatchContacts; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(`{"name":"A","email":"a@x.com"}`)
	}
	sb.WriteString(`]}`)
	ctx, _ = newTestContext(http.MethodPost, "/api/enrich/batch", sb.String())
	if err, ok := h.postBatch(ctx).(*echo.HTTPError); !ok || err.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized batch")
	}
}

func TestGetUsage(t *testing.T) {
	stub := &serviceStub{usage: budget.Usage{TotalCost: 1.5, DailyCost: 0.5, DailyLimit: 5}, cacheSize: 3}
	h := &EnrichHandler{Service: stub, Quota: &quotaStub{usage: search.QuotaUsage{Used: 10, Limit: 100, Remaining: 90}}}

	ctx, rec := newTestContext(http.MethodGet, "/api/usage", "")
	if err := h.getUsage(ctx); err != nil {
		t.Fatalf("getUsage returned error: %v", err)
	}
	var resp usageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Costs.TotalCost != 1.5 || resp.Cache.Size != 3 {
		t.Fatalf("unexpected usage %+v", resp)
	}
	if resp.Search == nil || resp.Search.Remaining != 90 {
		t.Fatalf("expected search quota in usage, got %+v", resp.Search)
	}
}

func TestPostCacheClear(t *testing.T) {
	stub := &serviceStub{}
	h := &EnrichHandler{Service: stub}

	ctx, rec := newTestContext(http.MethodPost, "/api/cache/clear", "")
	if err := h.postCacheClear(ctx); err != nil {
		t.Fatalf("postCacheClear returned error: %v", err)
	}
	if rec.Code != http.StatusOK || !stub.cacheCleared {
		t.Fatalf("cache clear not applied, code %d", rec.Code)
	}
}

func TestAPIRateLimitMiddleware(t *testing.T) {
	h := &EnrichHandler{Service: &serviceStub{}}
	e := newEcho(h, ratelimit.New(2, time.Minute))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/usage", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/usage", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 past the limit, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] == "" {
		t.Fatal("rate-limit response should carry the unified error shape")
	}
}

func TestLogLevelMapping(t *testing.T) {
	cases := []struct {
		in   string
		want glog.Lvl
	}{
		{"debug", glog.DEBUG},
		{"info", glog.INFO},
		{"warn", glog.WARN},
		{"warning", glog.WARN},
		{"error", glog.ERROR},
		{"off", glog.OFF},
		{"", glog.INFO},
		{"verbose", glog.INFO},
	}
	for _, tc := range cases {
		if got := logLevel(tc.in); got != tc.want {
			t.Fatalf("logLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestHealthz(t *testing.T) {
	e := newEcho(&EnrichHandler{Service: &serviceStub{}}, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("unexpected health response %d %q", rec.Code, rec.Body.String())
	}
}
