// Package enrich implements the contact enrichment pipeline: a
// cost-aware, cache-aware, rate-limited orchestration over a completion
// API with a conditional web-search fallback.
package enrich

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Contact is the unit of work. Email doubles as the case-insensitive
// identity key.
type Contact struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Company string `json:"company,omitempty"`
	Role    string `json:"role,omitempty"`
}

// CampaignType narrows enrichment toward one outreach channel.
type CampaignType string

const (
	CampaignRadio    CampaignType = "radio"
	CampaignPress    CampaignType = "press"
	CampaignPlaylist CampaignType = "playlist"
	CampaignAll      CampaignType = "all"
)

// EnrichmentContext carries optional targeting hints for a request.
// WebSearchResults is only populated internally during the
// search-augmented retry.
type EnrichmentContext struct {
	Genre            string       `json:"genre,omitempty"`
	Region           string       `json:"region,omitempty"`
	CampaignType     CampaignType `json:"campaign_type,omitempty"`
	WebSearchResults string       `json:"-"`
}

// Confidence is the model's self-reported certainty. Low confidence
// triggers the search-augmented retry.
type Confidence string

const (
	ConfidenceHigh   Confidence = "High"
	ConfidenceMedium Confidence = "Medium"
	ConfidenceLow    Confidence = "Low"
)

// Source tags which pipeline branch produced a record.
type Source string

const (
	SourceClaude           Source = "claude"
	SourceCache            Source = "cache"
	SourceFallback         Source = "fallback"
	SourceClaudeWithSearch Source = "claude-with-search"
)

// EnrichedContact is the pipeline output.
type EnrichedContact struct {
	Contact

	Platform             string     `json:"platform"`
	Format               string     `json:"format,omitempty"`
	Coverage             string     `json:"coverage,omitempty"`
	Genres               []string   `json:"genres,omitempty"`
	ContactMethod        string     `json:"contact_method,omitempty"`
	BestTiming           string     `json:"best_timing,omitempty"`
	SubmissionGuidelines string     `json:"submission_guidelines,omitempty"`
	PitchTips            []string   `json:"pitch_tips,omitempty"`
	Confidence           Confidence `json:"confidence"`
	Reasoning            string     `json:"reasoning,omitempty"`
	EnrichedAt           time.Time  `json:"enriched_at"`
	Source               Source     `json:"source"`
	Cost                 float64    `json:"cost,omitempty"`
}

// Options tunes a single enrichment call.
type Options struct {
	// NoCache skips both the cache lookup and the cache write.
	NoCache bool
	// Context carries optional targeting hints.
	Context *EnrichmentContext
	// OnProgress, when set on a batch call, is invoked after every batch
	// state transition with a snapshot of the counters.
	OnProgress ProgressFunc
}

// Progress is a batch progress snapshot.
type Progress struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	InProgress int `json:"in_progress"`
}

// ProgressFunc receives batch progress snapshots.
type ProgressFunc func(Progress)

// CacheStats describes the enrichment cache.
type CacheStats struct {
	Size int `json:"size"`
}

// enrichmentPayload is the shape the model is instructed to return. Any
// missing required field is treated the same as a parse failure.
type enrichmentPayload struct {
	Platform             string   `json:"platform"`
	Role                 string   `json:"role"`
	Format               string   `json:"format"`
	Coverage             string   `json:"coverage"`
	Genres               []string `json:"genres"`
	ContactMethod        string   `json:"contactMethod"`
	BestTiming           string   `json:"bestTiming"`
	SubmissionGuidelines string   `json:"submissionGuidelines"`
	PitchTips            []string `json:"pitchTips"`
	Confidence           string   `json:"confidence"`
	Reasoning            string   `json:"reasoning"`
}

// Validate enforces the required fields of a model response.
func (p enrichmentPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Platform, validation.Required),
		validation.Field(&p.Confidence, validation.Required,
			validation.In(string(ConfidenceHigh), string(ConfidenceMedium), string(ConfidenceLow))),
	)
}

// toEnriched merges a validated payload with the input contact.
func (p enrichmentPayload) toEnriched(contact Contact, source Source, cost float64, at time.Time) EnrichedContact {
	role := p.Role
	if role == "" {
		role = contact.Role
	}
	out := EnrichedContact{
		Contact:              contact,
		Platform:             p.Platform,
		Format:               p.Format,
		Coverage:             p.Coverage,
		Genres:               p.Genres,
		ContactMethod:        p.ContactMethod,
		BestTiming:           p.BestTiming,
		SubmissionGuidelines: p.SubmissionGuidelines,
		PitchTips:            p.PitchTips,
		Confidence:           Confidence(p.Confidence),
		Reasoning:            p.Reasoning,
		EnrichedAt:           at,
		Source:               source,
		Cost:                 cost,
	}
	out.Contact.Role = role
	return out
}
