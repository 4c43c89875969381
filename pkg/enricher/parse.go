package enricher

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/tabsense/tabsense/models"
	"github.com/tabsense/tabsense/pkg/extractor"
)

// degradedSummaryLen is how much of the raw model output becomes the
// summary when no JSON can be recovered from it.
const degradedSummaryLen = 200

// braceSpan greedily matches the first '{' through the last '}', the
// usual shape of a JSON object wrapped in model chatter.
var braceSpan = regexp.MustCompile(`(?s)\{.*\}`)

type wireEntity struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type enrichmentWire struct {
	Summary  string       `json:"summary"`
	Entities []wireEntity `json:"entities"`
}

// parseStrategy attempts to recover a structured result from raw model
// output. Strategies are tried in order; the first success wins.
type parseStrategy func(string) (enrichmentWire, bool)

var parseStrategies = []parseStrategy{parseStrict, parseBraceSpan}

// ParseContent recovers summary and entities from the model's textual
// output. Model output is never assumed well formed: strict JSON parse
// first, then a brace-span pattern match, then the raw text degraded
// into a summary.
func ParseContent(content string) Enrichment {
	for _, strategy := range parseStrategies {
		if wire, ok := strategy(content); ok {
			return Enrichment{
				Summary:  wire.Summary,
				Entities: sanitizeEntities(wire.Entities),
				Source:   "llm",
			}
		}
	}

	return Enrichment{
		Summary:  extractor.Truncate(content, degradedSummaryLen),
		Entities: []models.Entity{},
		Source:   "llm-degraded",
	}
}

func parseStrict(content string) (enrichmentWire, bool) {
	var wire enrichmentWire
	if err := json.Unmarshal([]byte(content), &wire); err != nil {
		return enrichmentWire{}, false
	}
	return wire, true
}

func parseBraceSpan(content string) (enrichmentWire, bool) {
	span := braceSpan.FindString(content)
	if span == "" {
		return enrichmentWire{}, false
	}
	return parseStrict(span)
}

func sanitizeEntities(raw []wireEntity) []models.Entity {
	entities := []models.Entity{}
	for _, ent := range raw {
		name := strings.TrimSpace(ent.Name)
		if name == "" {
			continue
		}
		entities = append(entities, models.Entity{
			Name: name,
			Type: models.NormalizeEntityType(ent.Type),
		})
	}
	return entities
}
