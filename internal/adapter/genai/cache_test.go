package genai

import (
	"testing"

	"github.com/couchcryptid/water-compliance-api/internal/domain"
	"github.com/stretchr/testify/assert"
)

func text(s string) domain.ExplanationText {
	return domain.ExplanationText{ExplanationText: s}
}

func key(violationID, status string) explanationKey {
	return keyFor(domain.ViolationContext{SubmissionYearQuarter: "2024Q1", ViolationID: violationID, Status: status})
}

func TestExplanationCache_LookupStore(t *testing.T) {
	c := newExplanationCache(3)

	c.store(key("V-1", domain.StatusUnaddressed), text("A"))
	c.store(key("V-2", domain.StatusUnaddressed), text("B"))

	got, ok := c.lookup(key("V-1", domain.StatusUnaddressed))
	assert.True(t, ok)
	assert.Equal(t, "A", got.ExplanationText)

	_, ok = c.lookup(key("V-9", domain.StatusUnaddressed))
	assert.False(t, ok)
	assert.Equal(t, 2, c.size())
}

func TestExplanationCache_StatusIsPartOfKey(t *testing.T) {
	c := newExplanationCache(3)

	c.store(key("V-1", domain.StatusUnaddressed), text("open"))

	_, ok := c.lookup(key("V-1", domain.StatusResolved))
	assert.False(t, ok)
}

func TestExplanationCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := newExplanationCache(2)

	c.store(key("V-1", ""), text("A"))
	c.store(key("V-2", ""), text("B"))
	c.lookup(key("V-1", ""))
	c.store(key("V-3", ""), text("C"))

	_, ok := c.lookup(key("V-1", ""))
	assert.True(t, ok, "V-1 was read recently, should not be evicted")

	_, ok = c.lookup(key("V-2", ""))
	assert.False(t, ok, "V-2 should have been evicted")

	got, ok := c.lookup(key("V-3", ""))
	assert.True(t, ok)
	assert.Equal(t, "C", got.ExplanationText)
	assert.Equal(t, 2, c.size())
}

func TestExplanationCache_StoreReplacesText(t *testing.T) {
	c := newExplanationCache(2)

	c.store(key("V-1", ""), text("A1"))
	c.store(key("V-1", ""), text("A2"))

	got, ok := c.lookup(key("V-1", ""))
	assert.True(t, ok)
	assert.Equal(t, "A2", got.ExplanationText)
	assert.Equal(t, 1, c.size())
}

func TestExplanationCache_ZeroCapacityDisables(t *testing.T) {
	c := newExplanationCache(0)

	c.store(key("V-1", ""), text("A"))

	_, ok := c.lookup(key("V-1", ""))
	assert.False(t, ok)
	assert.Zero(t, c.size())
}
