package credibility

import (
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Tier ranks how much a source can be trusted. Lower is better.
const (
	TierAuthoritative = 1
	TierEstablished   = 2
	TierCommunity     = 3
	TierUnknown       = 4
)

// DefaultTable is the built-in reputation table, keyed by host or
// registrable domain.
var DefaultTable = map[string]int{
	"wikipedia.org":         1,
	"who.int":               1,
	"w3.org":                1,
	"ietf.org":              1,
	"rfc-editor.org":        1,
	"whatwg.org":            1,
	"developer.mozilla.org": 1,
	"nature.com":            1,
	"science.org":           1,
	"nih.gov":               1,
	"arxiv.org":             1,
	"go.dev":                1,
	"golang.org":            1,
	"python.org":            1,
	"europa.eu":             1,

	"reuters.com":         2,
	"apnews.com":          2,
	"bbc.co.uk":           2,
	"bbc.com":             2,
	"nytimes.com":         2,
	"theguardian.com":     2,
	"economist.com":       2,
	"britannica.com":      2,
	"learn.microsoft.com": 2,
	"docs.aws.amazon.com": 2,
	"cloud.google.com":    2,
	"github.com":          2,

	"stackoverflow.com":    3,
	"stackexchange.com":    3,
	"reddit.com":           3,
	"medium.com":           3,
	"dev.to":               3,
	"quora.com":            3,
	"substack.com":         3,
	"news.ycombinator.com": 3,
}

// authoritativeSuffixes are public suffix labels whose registrants are
// vetted institutions.
var authoritativeSuffixes = []string{"gov", "edu", "mil", "int"}

// Scorer maps a domain to a credibility tier. It is a pure lookup and safe
// for concurrent use once constructed.
type Scorer struct {
	table map[string]int
}

// NewScorer builds a scorer from DefaultTable overlaid with extra. Entries in
// extra outside 1..4 are ignored.
func NewScorer(extra map[string]int) *Scorer {
	t := make(map[string]int, len(DefaultTable)+len(extra))
	for k, v := range DefaultTable {
		t[k] = v
	}
	for k, v := range extra {
		if v < TierAuthoritative || v > TierUnknown {
			continue
		}
		t[normalizeHost(k)] = v
	}
	return &Scorer{table: t}
}

// Score returns the tier of domain. Unknown domains are TierUnknown.
func (s *Scorer) Score(domain string) int {
	host := normalizeHost(domain)
	if host == "" {
		return TierUnknown
	}
	// exact host, then each parent up to the registrable domain
	for h := host; h != ""; h = parent(h) {
		if tier, ok := s.table[h]; ok {
			return tier
		}
	}
	suffix, _ := publicsuffix.PublicSuffix(host)
	for _, a := range authoritativeSuffixes {
		if suffix == a || strings.HasPrefix(suffix, a+".") || strings.HasSuffix(suffix, "."+a) {
			return TierAuthoritative
		}
	}
	return TierUnknown
}

// ScoreURL scores the host of rawURL.
func (s *Scorer) ScoreURL(rawURL string) int {
	return s.Score(Host(rawURL))
}

// Host returns the lower-cased host of rawURL without port.
func Host(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// RegistrableDomain returns the eTLD+1 of host, or host when it has none.
func RegistrableDomain(host string) string {
	host = normalizeHost(host)
	d, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return d
}

func normalizeHost(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.TrimSuffix(h, ".")
	if strings.Contains(h, "://") {
		h = Host(h)
	}
	if i := strings.LastIndexByte(h, ':'); i >= 0 && !strings.Contains(h[i:], "]") {
		h = h[:i]
	}
	return strings.TrimPrefix(h, "www.")
}

func parent(h string) string {
	i := strings.IndexByte(h, '.')
	if i < 0 {
		return ""
	}
	rest := h[i+1:]
	// stop before bare public suffixes such as "co.uk"
	if ps, _ := publicsuffix.PublicSuffix(rest); ps == rest {
		return ""
	}
	return rest
}
