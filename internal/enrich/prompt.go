package enrich

import (
	"fmt"
	"strings"
	"time"
)

// BuildContactEnrichmentPrompt constructs the completion instruction for
// one contact. It is pure: same inputs, same prompt. When ectx carries
// web search results they are injected as grounding material for the
// retry path.
func BuildContactEnrichmentPrompt(name, email string, ectx *EnrichmentContext) string {
	var b strings.Builder

	b.WriteString("You are a music industry research assistant. Enrich the following contact with everything a promotion team needs to pitch them.\n\n")
	fmt.Fprintf(&b, "CONTACT:\nName: %s\nEmail: %s\n", name, email)

	if ectx != nil {
		var hints []string
		if ectx.Genre != "" {
			hints = append(hints, fmt.Sprintf("Genre focus: %s", ectx.Genre))
		}
		if ectx.Region != "" {
			hints = append(hints, fmt.Sprintf("Region: %s", ectx.Region))
		}
		if ectx.CampaignType != "" {
			hints = append(hints, fmt.Sprintf("Campaign type: %s", ectx.CampaignType))
		}
		if len(hints) > 0 {
			b.WriteString("\nCAMPAIGN CONTEXT:\n")
			b.WriteString(strings.Join(hints, "\n"))
			b.WriteString("\n")
		}
		if ectx.WebSearchResults != "" {
			b.WriteString("\nWEB SEARCH RESULTS (use these to ground your answer):\n")
			b.WriteString(ectx.WebSearchResults)
			b.WriteString("\n")
		}
	}

	b.WriteString(`
RESPONSE FORMAT:
Respond ONLY with a single valid JSON object in exactly this shape:
{
  "platform": "outlet or company name",
  "role": "the contact's role",
  "format": "radio|blog|playlist|magazine|podcast|label|other",
  "coverage": "what they cover",
  "genres": ["array", "of", "genres"],
  "contactMethod": "how to reach them",
  "bestTiming": "when to pitch",
  "submissionGuidelines": "how they want submissions",
  "pitchTips": ["array", "of", "tips"],
  "confidence": "High|Medium|Low",
  "reasoning": "one sentence on why you believe this"
}
Do not include any other text or explanation.
`)

	return b.String()
}

// fallbackRecord is a canned enrichment for a known industry domain.
type fallbackRecord struct {
	platform             string
	format               string
	coverage             string
	genres               []string
	contactMethod        string
	bestTiming           string
	submissionGuidelines string
	pitchTips            []string
	confidence           Confidence
}

// knownDomains maps email domains to canned enrichment records. This is
// the correctness backstop when the completion API is unreachable or
// misbehaves.
var knownDomains = map[string]fallbackRecord{
	"bbc.co.uk": {
		platform:             "BBC",
		format:               "radio",
		coverage:             "UK national radio and music programming",
		genres:               []string{"all"},
		contactMethod:        "BBC Introducing uploader or direct email",
		bestTiming:           "Tuesday to Thursday mornings",
		submissionGuidelines: "Submit via BBC Introducing; include streaming links, no attachments",
		pitchTips:            []string{"Reference the specific show", "Keep the pitch under 150 words"},
		confidence:           ConfidenceMedium,
	},
	"spotify.com": {
		platform:             "Spotify",
		format:               "playlist",
		coverage:             "Editorial playlists across all genres",
		genres:               []string{"all"},
		contactMethod:        "Spotify for Artists playlist pitching",
		bestTiming:           "At least 7 days before release",
		submissionGuidelines: "Pitch unreleased tracks through Spotify for Artists only",
		pitchTips:            []string{"Fill in every metadata field", "Pitch one track per release"},
		confidence:           ConfidenceMedium,
	},
	"pitchfork.com": {
		platform:             "Pitchfork",
		format:               "magazine",
		coverage:             "Album reviews and music criticism",
		genres:               []string{"indie", "experimental", "pop"},
		contactMethod:        "Email to the tips address or a named editor",
		bestTiming:           "6 to 8 weeks before release",
		submissionGuidelines: "Send a private streaming link with a short bio",
		pitchTips:            []string{"Lead with the story, not the genre"},
		confidence:           ConfidenceMedium,
	},
	"nme.com": {
		platform:             "NME",
		format:               "magazine",
		coverage:             "UK music news, reviews and features",
		genres:               []string{"rock", "indie", "pop"},
		contactMethod:        "Email to the news desk",
		bestTiming:           "4 to 6 weeks before release",
		submissionGuidelines: "Press release plus streaming link",
		pitchTips:            []string{"Include recent press coverage if any"},
		confidence:           ConfidenceMedium,
	},
	"kexp.org": {
		platform:             "KEXP",
		format:               "radio",
		coverage:             "Seattle independent radio with international reach",
		genres:               []string{"indie", "alternative", "world"},
		contactMethod:        "Music submissions email",
		bestTiming:           "3 to 4 weeks before release",
		submissionGuidelines: "Digital submissions preferred; include one-sheet",
		pitchTips:            []string{"Mention comparable artists KEXP already plays"},
		confidence:           ConfidenceMedium,
	},
}

// GenerateFallbackEnrichment produces a deterministic, model-free
// enrichment keyed off the email domain, defaulting to a generic
// low-confidence industry-contact record when no domain matches.
func GenerateFallbackEnrichment(email, name string) EnrichedContact {
	domain := email
	if at := strings.LastIndex(email, "@"); at >= 0 && at < len(email)-1 {
		domain = email[at+1:]
	}
	domain = strings.ToLower(domain)

	rec, ok := knownDomains[domain]
	if !ok {
		// Tolerate subdomains like news.bbc.co.uk.
		for known, knownRec := range knownDomains {
			if strings.HasSuffix(domain, "."+known) {
				rec, ok = knownRec, true
				break
			}
		}
	}

	contact := Contact{Name: name, Email: email}
	if !ok {
		return EnrichedContact{
			Contact:              contact,
			Platform:             domain,
			Format:               "other",
			Coverage:             "Unknown",
			Genres:               []string{"all"},
			ContactMethod:        "Email",
			BestTiming:           "Weekday mornings",
			SubmissionGuidelines: "Short personal email with a streaming link",
			PitchTips:            []string{"Research the contact before pitching", "Keep the first email brief"},
			Confidence:           ConfidenceLow,
			Reasoning:            "No enrichment service available; generic industry-contact profile derived from the email domain",
			EnrichedAt:           time.Now(),
			Source:               SourceFallback,
		}
	}

	return EnrichedContact{
		Contact:              contact,
		Platform:             rec.platform,
		Format:               rec.format,
		Coverage:             rec.coverage,
		Genres:               rec.genres,
		ContactMethod:        rec.contactMethod,
		BestTiming:           rec.bestTiming,
		SubmissionGuidelines: rec.submissionGuidelines,
		PitchTips:            rec.pitchTips,
		Confidence:           rec.confidence,
		Reasoning:            fmt.Sprintf("Recognized industry domain %s; profile served from the built-in directory", domain),
		EnrichedAt:           time.Now(),
		Source:               SourceFallback,
	}
}
