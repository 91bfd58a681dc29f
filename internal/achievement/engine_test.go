package achievement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geostrike/internal/config"
)

func newTestEngine() *Engine {
	return NewEngine(map[string][]config.Milestone{
		"kills": {
			// Deliberately unsorted; the engine sorts ascending on build.
			{Value: 10, Reward: 50},
			{Value: 1, Reward: 10},
			{Value: 5, Reward: 25},
		},
		"accuracy": {
			{Value: 50, Reward: 5},
			{Value: 90, Reward: 20},
		},
	})
}

func TestEvaluateReturnsAllReachedMilestones(t *testing.T) {
	e := newTestEngine()

	tests := []struct {
		name    string
		counter string
		value   int
		want    []int
	}{
		{"below first milestone", "kills", 0, nil},
		{"exactly first milestone", "kills", 1, []int{1}},
		{"between milestones", "kills", 7, []int{1, 5}},
		{"all milestones", "kills", 10, []int{1, 5, 10}},
		{"far past all milestones", "kills", 1000, []int{1, 5, 10}},
		{"unknown counter", "survivalTime", 100, nil},
		{"other counter untouched", "accuracy", 60, []int{50}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Evaluate(tt.counter, tt.value)
			require.Len(t, got, len(tt.want))
			for i, v := range tt.want {
				assert.Equal(t, v, got[i].Value)
			}
		})
	}
}

func TestEvaluateSortedAscending(t *testing.T) {
	got := newTestEngine().Evaluate("kills", 100)
	require.Len(t, got, 3)
	assert.Equal(t, []Milestone{
		{Value: 1, Reward: 10},
		{Value: 5, Reward: 25},
		{Value: 10, Reward: 50},
	}, got)
}

func TestCounters(t *testing.T) {
	counters := newTestEngine().Counters()
	assert.ElementsMatch(t, []string{"kills", "accuracy"}, counters)
}

func TestEmptyEngine(t *testing.T) {
	e := NewEngine(nil)
	assert.Nil(t, e.Evaluate("kills", 100))
	assert.Empty(t, e.Counters())
}
