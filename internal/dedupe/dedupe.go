package dedupe

import (
	"github.com/hyperifyio/serpgate/internal/model"
)

// DefaultThreshold is the content similarity above which two results are
// considered the same page.
const DefaultThreshold = 0.85

// Deduplicator collapses results that share a normalized URL or whose
// content similarity exceeds Threshold.
type Deduplicator struct {
	Threshold float64
}

type entry struct {
	res model.OrganicResult
	url string
	vec termVector
}

func newEntry(r model.OrganicResult) entry {
	r.URL = NormalizeURL(r.URL)
	return entry{res: r, url: r.URL, vec: vectorize(contentOf(r))}
}

func contentOf(r model.OrganicResult) string {
	if r.CleanedContent != "" {
		return r.CleanedContent
	}
	return r.Snippet
}

func (d *Deduplicator) threshold() float64 {
	if d == nil || d.Threshold <= 0 || d.Threshold > 1 {
		return DefaultThreshold
	}
	return d.Threshold
}

func (d *Deduplicator) same(a, b entry) bool {
	if a.url == b.url {
		return true
	}
	if a.vec.n < minTokens || b.vec.n < minTokens {
		return false
	}
	return cosine(a.vec, b.vec) > d.threshold()
}

// Dedupe returns results in first-occurrence order with duplicates merged.
// A merged slot holds whichever duplicate has the longer cleaned content,
// with that entry's metadata. Passes repeat until nothing merges, so the
// output contains no duplicate pair and Dedupe(Dedupe(x)) == Dedupe(x).
func (d *Deduplicator) Dedupe(in []model.OrganicResult) []model.OrganicResult {
	entries := make([]entry, 0, len(in))
	for _, r := range in {
		entries = append(entries, newEntry(r))
	}
	for {
		next, merged := d.pass(entries)
		entries = next
		if !merged {
			break
		}
	}
	out := make([]model.OrganicResult, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.res)
	}
	return out
}

func (d *Deduplicator) pass(entries []entry) ([]entry, bool) {
	kept := make([]entry, 0, len(entries))
	merged := false
	for _, e := range entries {
		idx := -1
		for i := range kept {
			if d.same(kept[i], e) {
				idx = i
				break
			}
		}
		if idx < 0 {
			kept = append(kept, e)
			continue
		}
		merged = true
		if len(e.res.CleanedContent) > len(kept[idx].res.CleanedContent) {
			kept[idx] = e
		}
	}
	return kept, merged
}
