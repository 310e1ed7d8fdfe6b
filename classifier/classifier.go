// Package classifier scores a query against the documents and conditions
// knowledge domains by keyword membership. It never calls a model.
package classifier

import (
	"math"
	"strings"

	"github.com/fabfab/contract-agent/contract"
)

const (
	// MaxMatches caps the per-domain match count before scoring.
	MaxMatches = 5

	baseScore    = 0.3
	perMatch     = 0.14
	noMatchScore = 0.2
	genericScore = 0.5
)

// Score maps a capped match count to a relevance in [0,1].
func Score(matches int) float64 {
	if matches <= 0 {
		return noMatchScore
	}
	if matches > MaxMatches {
		matches = MaxMatches
	}
	return round(math.Min(1, baseScore+float64(matches)*perMatch))
}

// Classify is a pure function of query. A query that matches neither keyword
// table is treated as generic and routed to both agents.
func Classify(query string) contract.QueryClassification {
	return ClassifyWith(query, DocumentsKeywords, ConditionsKeywords)
}

// ClassifyWith classifies against caller supplied keyword tables.
func ClassifyWith(query string, documentsKeywords, conditionsKeywords []string) contract.QueryClassification {
	text := strings.ToLower(query)

	docHits := matches(text, documentsKeywords)
	condHits := matches(text, conditionsKeywords)

	topics := make([]string, 0, len(docHits)+len(condHits))
	topics = append(topics, docHits...)
	topics = append(topics, condHits...)

	if len(docHits) == 0 && len(condHits) == 0 {
		return contract.QueryClassification{
			RequiresDocumentsAgent:  true,
			RequiresConditionsAgent: true,
			DocumentRelevance:       genericScore,
			ConditionsRelevance:     genericScore,
			DetectedTopics:          topics,
		}
	}

	return contract.QueryClassification{
		RequiresDocumentsAgent:  len(docHits) > 0,
		RequiresConditionsAgent: len(condHits) > 0,
		DocumentRelevance:       Score(len(docHits)),
		ConditionsRelevance:     Score(len(condHits)),
		DetectedTopics:          topics,
	}
}

func matches(text string, keywords []string) []string {
	var hits []string
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if strings.Contains(text, kw) {
			hits = append(hits, kw)
		}
	}
	return hits
}

// round trims float noise so 0.3+3*0.14 compares equal to 0.72.
func round(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
