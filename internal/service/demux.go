package service

import (
	"github.com/clipdigest/bots/internal/model"
)

const errResultMissing = "result missing from batch output"

// Demultiplex reconstructs one outcome per submitted work unit, in the
// original submission order, from whatever the batch endpoint returned.
// The endpoint may return results out of order, without correlation ids,
// with errored entries, or with fewer entries than requests; none of that
// leaks past this function.
//
// Binding rules, applied per returned result:
//   - a correlation id matching a still-unbound unit binds the result there;
//   - anything else (missing id, unknown id, id already bound) binds to the
//     first unbound unit, preserving arrival order as a best effort;
//   - results left over after every unit is bound are dropped.
//
// Units with no result after all binding get a synthesized failure outcome,
// so the returned slice always has exactly len(units) entries.
func Demultiplex(units []model.WorkUnit, results []model.BatchResult) []model.UnitOutcome {
	outcomes := make([]model.UnitOutcome, len(units))
	bound := make([]bool, len(units))

	indexByKey := make(map[string]int, len(units))
	for i, u := range units {
		if u.Key != "" {
			indexByKey[u.Key] = i
		}
	}

	firstUnbound := func() int {
		for i, b := range bound {
			if !b {
				return i
			}
		}
		return -1
	}

	for _, res := range results {
		idx := -1
		if i, ok := indexByKey[res.CustomID]; ok && res.CustomID != "" && !bound[i] {
			idx = i
		} else {
			idx = firstUnbound()
		}
		if idx < 0 {
			continue
		}
		bound[idx] = true
		outcomes[idx] = model.UnitOutcome{
			Index: idx,
			Unit:  units[idx],
			Body:  res.Body,
			Err:   res.Err,
		}
	}

	for i := range units {
		if !bound[i] {
			outcomes[i] = model.UnitOutcome{
				Index: i,
				Unit:  units[i],
				Err:   errResultMissing,
			}
		}
	}

	return outcomes
}
