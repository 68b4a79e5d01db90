package server

import (
	"context"
	"fmt"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/labstack/echo/v4"

	"github.com/tunescope/enricher/internal/budget"
	"github.com/tunescope/enricher/internal/enrich"
	"github.com/tunescope/enricher/internal/search"
)

const maxBatchContacts = 200

type enrichService interface {
	EnrichContact(ctx context.Context, contact enrich.Contact, opts *enrich.Options) enrich.EnrichedContact
	EnrichBatch(ctx context.Context, contacts []enrich.Contact, opts *enrich.Options) []enrich.EnrichedContact
	CostUsage() budget.Usage
	GetCacheStats(ctx context.Context) enrich.CacheStats
	ClearCache(ctx context.Context)
}

type quotaSource interface {
	GetUsage() search.QuotaUsage
}

// EnrichHandler serves the enrichment API. Quota may be nil when search
// is not configured.
type EnrichHandler struct {
	Service enrichService
	Quota   quotaSource
}

func (h *EnrichHandler) Register(g *echo.Group) {
	g.POST("/enrich", h.postEnrich)
	g.POST("/enrich/batch", h.postBatch)
	g.GET("/usage", h.getUsage)
	g.POST("/cache/clear", h.postCacheClear)
}

type contactPayload struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Company string `json:"company,omitempty"`
	Role    string `json:"role,omitempty"`
}

func (p contactPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Name, validation.Required),
		validation.Field(&p.Email, validation.Required, is.EmailFormat),
	)
}

func (p contactPayload) toContact() enrich.Contact {
	return enrich.Contact{Name: p.Name, Email: p.Email, Company: p.Company, Role: p.Role}
}

type enrichRequest struct {
	Contact contactPayload            `json:"contact"`
	Context *enrich.EnrichmentContext `json:"context,omitempty"`
	NoCache bool                      `json:"no_cache,omitempty"`
}

type batchRequest struct {
	Contacts []contactPayload          `json:"contacts"`
	Context  *enrich.EnrichmentContext `json:"context,omitempty"`
	NoCache  bool                      `json:"no_cache,omitempty"`
}

type batchResponse struct {
	Requested int                      `json:"requested"`
	Returned  int                      `json:"returned"`
	Results   []enrich.EnrichedContact `json:"results"`
}

type usageResponse struct {
	Costs  budget.Usage       `json:"costs"`
	Search *search.QuotaUsage `json:"search,omitempty"`
	Cache  enrich.CacheStats  `json:"cache"`
}

func (h *EnrichHandler) postEnrich(c echo.Context) error {
	var req enrichRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := req.Contact.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	opts := &enrich.Options{NoCache: req.NoCache, Context: req.Context}
	result := h.Service.EnrichContact(c.Request().Context(), req.Contact.toContact(), opts)
	return c.JSON(http.StatusOK, result)
}

func (h *EnrichHandler) postBatch(c echo.Context) error {
	var req batchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.Contacts) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "contacts must not be empty")
	}
	if len(req.Contacts) > maxBatchContacts {
		return echo.NewHTTPError(http.StatusBadRequest, "too many contacts in one batch")
	}
	contacts := make([]enrich.Contact, 0, len(req.Contacts))
	for i, p := range req.Contacts {
		if err := p.Validate(); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("contact %d: %v", i, err))
		}
		contacts = append(contacts, p.toContact())
	}

	opts := &enrich.Options{NoCache: req.NoCache, Context: req.Context}
	results := h.Service.EnrichBatch(c.Request().Context(), contacts, opts)
	return c.JSON(http.StatusOK, batchResponse{
		Requested: len(contacts),
		Returned:  len(results),
		Results:   results,
	})
}

func (h *EnrichHandler) getUsage(c echo.Context) error {
	resp := usageResponse{
		Costs: h.Service.CostUsage(),
		Cache: h.Service.GetCacheStats(c.Request().Context()),
	}
	if h.Quota != nil {
		u := h.Quota.GetUsage()
		resp.Search = &u
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *EnrichHandler) postCacheClear(c echo.Context) error {
	h.Service.ClearCache(c.Request().Context())
	return c.JSON(http.StatusOK, map[string]string{"status": "cleared"})
}
