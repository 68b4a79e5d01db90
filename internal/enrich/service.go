package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tunescope/enricher/config"
	"github.com/tunescope/enricher/internal/budget"
	"github.com/tunescope/enricher/internal/cache"
	"github.com/tunescope/enricher/internal/llm"
	"github.com/tunescope/enricher/internal/ratelimit"
	"github.com/tunescope/enricher/internal/search"
	"github.com/tunescope/enricher/internal/telemetry"
)

const (
	enrichmentRateKey = "enrichment"
	batchChunkSize    = 10
	batchChunkPause   = time.Second
)

// Searcher is the web search surface the orchestrator depends on.
type Searcher interface {
	IsAvailable() bool
	SearchContact(ctx context.Context, name, email, extra string) *search.Response
}

// Service orchestrates contact enrichment. All collaborators are injected
// so quota, budget and cache behavior stay testable and so the locking
// story lives at the construction site.
type Service struct {
	llm      llm.Client
	searcher Searcher
	cache    cache.Store
	costs    *budget.CostTracker
	limiter  *ratelimit.Limiter
	metrics  *telemetry.Metrics
	logger   *log.Logger

	primaryModel   config.LLMModel
	cheapModel     config.LLMModel
	enforcePerCall bool
	chunkSize      int
	chunkPause     time.Duration
	now            func() time.Time
}

// NewService wires an orchestrator. metrics may be nil.
func NewService(cfg *config.Config, client llm.Client, searcher Searcher, store cache.Store,
	costs *budget.CostTracker, limiter *ratelimit.Limiter, metrics *telemetry.Metrics) *Service {
	return &Service{
		llm:            client,
		searcher:       searcher,
		cache:          store,
		costs:          costs,
		limiter:        limiter,
		metrics:        metrics,
		logger:         log.New(log.Writer(), "[ENRICH] ", log.LstdFlags),
		primaryModel:   cfg.LLM.PrimaryModel,
		cheapModel:     cfg.LLM.CheapModel,
		enforcePerCall: cfg.Budget.EnforcePerCall,
		chunkSize:      batchChunkSize,
		chunkPause:     batchChunkPause,
		now:            time.Now,
	}
}

// EnrichContact runs one contact through the enrichment decision tree.
// It never fails: every error path terminates in a valid, lower-confidence
// fallback record.
func (s *Service) EnrichContact(ctx context.Context, contact Contact, opts *Options) EnrichedContact {
	if opts == nil {
		opts = &Options{}
	}

	// Cache hit is the only path that bypasses rate limiting and cost
	// tracking entirely.
	if !opts.NoCache {
		if cached, ok := s.cacheGet(ctx, contact.Email); ok {
			s.metrics.RecordCacheLookup(true)
			cached.Source = SourceCache
			return cached
		}
		s.metrics.RecordCacheLookup(false)
	}

	// Rate-limit backpressure degrades to fallback instead of blocking or
	// erroring; the caller always gets something usable.
	if !s.limiter.IsAllowed(enrichmentRateKey) {
		s.logger.Printf("rate limit reached, serving fallback for %s", contact.Email)
		s.metrics.RecordRateLimited()
		result := GenerateFallbackEnrichment(contact.Email, contact.Name)
		s.metrics.RecordEnrichment(string(result.Source), 0)
		return result
	}

	result := s.enrichViaModel(ctx, contact, opts)

	if !opts.NoCache {
		s.cacheSet(ctx, contact.Email, result)
	}
	s.metrics.RecordEnrichment(string(result.Source), result.Cost)
	return result
}

// enrichViaModel covers model selection through the search-augmented
// retry. Any panic inside is absorbed into a fallback record.
func (s *Service) enrichViaModel(ctx context.Context, contact Contact, opts *Options) (result EnrichedContact) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("unexpected failure enriching %s: %v", contact.Email, r)
			result = GenerateFallbackEnrichment(contact.Email, contact.Name)
		}
	}()

	if !s.llm.Configured() {
		return GenerateFallbackEnrichment(contact.Email, contact.Name)
	}

	// Model selection is re-evaluated on every call, never sticky.
	model := s.primaryModel
	if s.costs.ShouldUseCheaperModel() {
		model = s.cheapModel
	}

	prompt := BuildContactEnrichmentPrompt(contact.Name, contact.Email, opts.Context)

	if s.enforcePerCall {
		if estimate := s.llm.EstimateCost(model, prompt); !s.costs.IsWithinRequestLimit(estimate) {
			s.logger.Printf("estimated cost $%.4f over per-request cap, serving fallback for %s", estimate, contact.Email)
			return GenerateFallbackEnrichment(contact.Email, contact.Name)
		}
	}

	comp, err := s.llm.Complete(ctx, model, prompt)
	if err != nil {
		s.logger.Printf("completion failed for %s: %v", contact.Email, err)
		return GenerateFallbackEnrichment(contact.Email, contact.Name)
	}

	payload, err := parseEnrichment(comp.Text)
	if err != nil {
		s.logger.Printf("unusable model output for %s: %v", contact.Email, err)
		return GenerateFallbackEnrichment(contact.Email, contact.Name)
	}

	s.costs.AddCost(comp.Cost)
	result = payload.toEnriched(contact, SourceClaude, comp.Cost, s.now())

	// One best-effort retry grounded on web search, cheap model only.
	// Strictly additive: any failure leaves the original record intact.
	if Confidence(payload.Confidence) == ConfidenceLow && s.searcher != nil && s.searcher.IsAvailable() {
		if retried, ok := s.retryWithSearch(ctx, contact, opts, comp.Cost); ok {
			result = retried
		}
	}

	return result
}

func (s *Service) retryWithSearch(ctx context.Context, contact Contact, opts *Options, priorCost float64) (result EnrichedContact, ok bool) {
	// A retry failure of any kind, panics included, must leave the
	// caller's original record in place.
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("search-augmented retry failed for %s: %v", contact.Email, r)
			result, ok = EnrichedContact{}, false
		}
	}()

	extra := ""
	if opts.Context != nil {
		extra = string(opts.Context.CampaignType)
		if opts.Context.Genre != "" {
			extra = opts.Context.Genre + " " + extra
		}
	}

	resp := s.searcher.SearchContact(ctx, contact.Name, contact.Email, extra)
	if resp == nil || len(resp.Results) == 0 {
		return EnrichedContact{}, false
	}
	s.metrics.RecordSearch()

	retryCtx := EnrichmentContext{WebSearchResults: search.FormatForEnrichment(resp)}
	if opts.Context != nil {
		retryCtx.Genre = opts.Context.Genre
		retryCtx.Region = opts.Context.Region
		retryCtx.CampaignType = opts.Context.CampaignType
	}

	prompt := BuildContactEnrichmentPrompt(contact.Name, contact.Email, &retryCtx)
	comp, err := s.llm.Complete(ctx, s.cheapModel, prompt)
	if err != nil {
		s.logger.Printf("search-augmented retry failed for %s: %v", contact.Email, err)
		return EnrichedContact{}, false
	}
	payload, err := parseEnrichment(comp.Text)
	if err != nil {
		s.logger.Printf("search-augmented retry unparseable for %s: %v", contact.Email, err)
		return EnrichedContact{}, false
	}

	s.costs.AddCost(comp.Cost)
	return payload.toEnriched(contact, SourceClaudeWithSearch, priorCost+comp.Cost, s.now()), true
}

// EnrichBatch processes contacts in fixed-size chunks of independent
// concurrent pipelines, pausing between chunks as crude backpressure.
// One contact's failure never aborts the batch. Results come back aligned
// to input order with failed contacts omitted.
func (s *Service) EnrichBatch(ctx context.Context, contacts []Contact, opts *Options) []EnrichedContact {
	if opts == nil {
		opts = &Options{}
	}
	batchID := uuid.NewString()[:8]
	s.metrics.RecordBatchContacts(len(contacts))

	var mu sync.Mutex
	prog := Progress{Total: len(contacts)}
	results := make([]*EnrichedContact, len(contacts))

	report := func() {
		if opts.OnProgress == nil {
			return
		}
		mu.Lock()
		snap := prog
		mu.Unlock()
		opts.OnProgress(snap)
	}

	// Resolve already-cached contacts up front.
	var pending []int
	for i, c := range contacts {
		if !opts.NoCache {
			if cached, ok := s.cacheGet(ctx, c.Email); ok {
				s.metrics.RecordCacheLookup(true)
				cached.Source = SourceCache
				results[i] = &cached
				mu.Lock()
				prog.Completed++
				mu.Unlock()
				continue
			}
		}
		pending = append(pending, i)
	}
	if len(pending) < len(contacts) {
		s.logger.Printf("batch %s: %d of %d contacts served from cache", batchID, len(contacts)-len(pending), len(contacts))
	}
	report()

	perContact := &Options{NoCache: opts.NoCache, Context: opts.Context}

	for start := 0; start < len(pending); start += s.chunkSize {
		end := start + s.chunkSize
		if end > len(pending) {
			end = len(pending)
		}
		chunk := pending[start:end]

		mu.Lock()
		prog.InProgress = len(chunk)
		mu.Unlock()
		report()

		var wg sync.WaitGroup
		for _, idx := range chunk {
			wg.Add(1)
			go func(i int, c Contact) {
				defer wg.Done()
				recorded := false
				defer func() {
					if r := recover(); r != nil {
						s.logger.Printf("batch %s: contact %s failed: %v", batchID, c.Email, r)
						mu.Lock()
						if results[i] != nil {
							results[i] = nil
							prog.Completed--
						}
						prog.Failed++
						if !recorded {
							prog.InProgress--
						}
						mu.Unlock()
					}
				}()

				res := s.EnrichContact(ctx, c, perContact)

				mu.Lock()
				results[i] = &res
				prog.Completed++
				prog.InProgress--
				recorded = true
				snap := prog
				mu.Unlock()
				if opts.OnProgress != nil {
					opts.OnProgress(snap)
				}
			}(idx, contacts[idx])
		}
		wg.Wait()

		mu.Lock()
		prog.InProgress = 0
		mu.Unlock()
		report()

		if end < len(pending) {
			time.Sleep(s.chunkPause)
		}
	}

	out := make([]EnrichedContact, 0, len(contacts))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	s.logger.Printf("batch %s: done, %d completed, %d failed", batchID, prog.Completed, prog.Failed)
	return out
}

// ValidateAPIKey fires a minimal real completion call purely to confirm
// the configured credentials work.
func (s *Service) ValidateAPIKey(ctx context.Context) bool {
	if !s.llm.Configured() {
		return false
	}
	_, err := s.llm.Complete(ctx, s.cheapModel, "Reply with the single word: ok")
	if err != nil {
		s.logger.Printf("API key validation failed: %v", err)
		return false
	}
	return true
}

// GetCacheStats reports the enrichment cache size.
func (s *Service) GetCacheStats(ctx context.Context) CacheStats {
	return CacheStats{Size: s.cache.Size(ctx)}
}

// ClearCache empties the enrichment cache.
func (s *Service) ClearCache(ctx context.Context) {
	s.cache.Clear(ctx)
}

// CostUsage exposes the spend ledger for the usage endpoint.
func (s *Service) CostUsage() budget.Usage {
	return s.costs.GetUsage()
}

func (s *Service) cacheGet(ctx context.Context, email string) (EnrichedContact, bool) {
	data, ok := s.cache.Get(ctx, email)
	if !ok {
		return EnrichedContact{}, false
	}
	var out EnrichedContact
	if err := json.Unmarshal(data, &out); err != nil {
		s.logger.Printf("warn: corrupt cache entry for %s: %v", email, err)
		s.cache.Delete(ctx, email)
		return EnrichedContact{}, false
	}
	return out, true
}

func (s *Service) cacheSet(ctx context.Context, email string, record EnrichedContact) {
	data, err := json.Marshal(record)
	if err != nil {
		s.logger.Printf("warn: marshal cache entry for %s: %v", email, err)
		return
	}
	s.cache.Set(ctx, email, data, 0)
}

// parseEnrichment extracts and validates the model's JSON answer. Missing
// required fields are equivalent to a parse failure.
func parseEnrichment(text string) (enrichmentPayload, error) {
	raw, err := llm.ExtractJSONObject(text)
	if err != nil {
		return enrichmentPayload{}, err
	}
	var payload enrichmentPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return enrichmentPayload{}, fmt.Errorf("unmarshal enrichment: %w", err)
	}
	if err := payload.Validate(); err != nil {
		return enrichmentPayload{}, fmt.Errorf("invalid enrichment shape: %w", err)
	}
	return payload, nil
}
