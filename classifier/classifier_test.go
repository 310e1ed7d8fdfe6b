package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScore(t *testing.T) {
	assert.Equal(t, 0.2, Score(0))
	assert.Equal(t, 0.44, Score(1))
	assert.Equal(t, 0.72, Score(3))
	assert.Equal(t, 1.0, Score(5))
	assert.Equal(t, Score(5), Score(12), "matches are capped")
}

func TestClassifyIsIdempotent(t *testing.T) {
	queries := []string{
		"What are the payment terms?",
		"Which clause covers termination for convenience?",
		"hello",
		"",
	}
	for _, q := range queries {
		assert.Equal(t, Classify(q), Classify(q), "query %q", q)
	}
}

func TestClassifyGenericQueryRoutesToBoth(t *testing.T) {
	c := Classify("Tell me about this project")
	assert.True(t, c.RequiresDocumentsAgent)
	assert.True(t, c.RequiresConditionsAgent)
	assert.Equal(t, 0.5, c.DocumentRelevance)
	assert.Equal(t, 0.5, c.ConditionsRelevance)
	assert.Empty(t, c.DetectedTopics)
}

func TestClassifyPaymentTerms(t *testing.T) {
	c := Classify("What are the payment terms?")
	assert.True(t, c.RequiresDocumentsAgent)
	assert.False(t, c.RequiresConditionsAgent)
	assert.Equal(t, 0.44, c.DocumentRelevance)
	assert.Equal(t, 0.2, c.ConditionsRelevance)
	assert.Equal(t, []string{"payment"}, c.DetectedTopics)
}

func TestClassifyConditionsQuery(t *testing.T) {
	c := Classify("What notice must the Contractor give to claim an Extension of Time for delay?")
	assert.False(t, c.RequiresDocumentsAgent)
	assert.True(t, c.RequiresConditionsAgent)
	assert.Greater(t, c.ConditionsRelevance, c.DocumentRelevance)
	assert.Subset(t, c.DetectedTopics, []string{"notice", "claim", "delay", "extension of time"})
}

func TestClassifyTopicsListDocumentsFirst(t *testing.T) {
	c := ClassifyWith("Termination affects the contract price", []string{"contract price"}, []string{"termination"})
	assert.Equal(t, []string{"contract price", "termination"}, c.DetectedTopics)
	assert.True(t, c.RequiresDocumentsAgent)
	assert.True(t, c.RequiresConditionsAgent)
}
