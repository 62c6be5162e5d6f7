package selecter

import (
	"sort"
	"strings"

	"github.com/hyperifyio/serpgate/internal/credibility"
	"github.com/hyperifyio/serpgate/internal/model"
)

// Options configures selection constraints.
type Options struct {
	// MaxTotal caps the number of results. Zero means no cap.
	MaxTotal int
	// PerDomain caps results per registrable domain. Zero means no cap.
	PerDomain int
	// RankByTier moves better credibility tiers ahead of worse ones while
	// keeping provider order within a tier.
	RankByTier bool
	// MinContentChars drops results whose cleaned content (or snippet, when
	// there is no content) is shorter than this. Zero disables the filter.
	MinContentChars int
}

// Select applies ranking, filtering and caps to scored results. The input is
// not modified.
func Select(results []model.OrganicResult, opt Options) []model.OrganicResult {
	sorted := make([]model.OrganicResult, len(results))
	copy(sorted, results)
	if opt.RankByTier {
		sort.SliceStable(sorted, func(i, j int) bool {
			return tierOf(sorted[i]) < tierOf(sorted[j])
		})
	}

	domainCounts := map[string]int{}
	out := make([]model.OrganicResult, 0, len(sorted))
	for _, r := range sorted {
		if opt.MinContentChars > 0 && len(strings.TrimSpace(contentOf(r))) < opt.MinContentChars {
			continue
		}
		if opt.PerDomain > 0 {
			d := credibility.RegistrableDomain(credibility.Host(r.URL))
			if domainCounts[d] >= opt.PerDomain {
				continue
			}
			domainCounts[d]++
		}
		out = append(out, r)
		if opt.MaxTotal > 0 && len(out) >= opt.MaxTotal {
			break
		}
	}
	return out
}

func tierOf(r model.OrganicResult) int {
	if r.CredibilityTier < credibility.TierAuthoritative || r.CredibilityTier > credibility.TierUnknown {
		return credibility.TierUnknown
	}
	return r.CredibilityTier
}

func contentOf(r model.OrganicResult) string {
	if r.CleanedContent != "" {
		return r.CleanedContent
	}
	return r.Snippet
}
