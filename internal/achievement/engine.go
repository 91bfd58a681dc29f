// Package achievement evaluates counter values against configured milestone
// thresholds.
package achievement

import (
	"sort"

	"github.com/geostrike/internal/config"
)

// Milestone is a threshold a counter value has reached, with its configured
// token reward (zero when none is configured).
type Milestone struct {
	Value  int
	Reward int64
}

// Engine is a stateless evaluator over the configured milestone tables. It
// never deduplicates across calls on its own: the existence check against the
// durable store is the caller's responsibility, per candidate, before
// crediting.
type Engine struct {
	milestones map[string][]Milestone
}

// NewEngine builds an engine from the configured tables, sorting each
// counter's thresholds ascending.
func NewEngine(cfg map[string][]config.Milestone) *Engine {
	tables := make(map[string][]Milestone, len(cfg))
	for counter, entries := range cfg {
		ms := make([]Milestone, 0, len(entries))
		for _, e := range entries {
			ms = append(ms, Milestone{Value: e.Value, Reward: e.Reward})
		}
		sort.Slice(ms, func(i, j int) bool { return ms[i].Value < ms[j].Value })
		tables[counter] = ms
	}
	return &Engine{milestones: tables}
}

// Evaluate returns every configured milestone for counterType with a
// threshold <= value, in ascending order. Unknown counter types yield nil.
func (e *Engine) Evaluate(counterType string, value int) []Milestone {
	table, ok := e.milestones[counterType]
	if !ok {
		return nil
	}

	var qualified []Milestone
	for _, m := range table {
		if m.Value > value {
			break
		}
		qualified = append(qualified, m)
	}
	return qualified
}

// Counters returns the counter types the engine knows about.
func (e *Engine) Counters() []string {
	out := make([]string, 0, len(e.milestones))
	for counter := range e.milestones {
		out = append(out, counter)
	}
	sort.Strings(out)
	return out
}
