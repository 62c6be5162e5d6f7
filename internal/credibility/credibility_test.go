package credibility

import "testing"

func TestScore_Table(t *testing.T) {
	s := NewScorer(nil)
	cases := map[string]int{
		"en.wikipedia.org":                1,
		"WWW.Reuters.com":                 2,
		"stackoverflow.com":               3,
		"news.ycombinator.com":            3,
		"ycombinator.com":                 4,
		"example.com":                     4,
		"":                                4,
		"www.cdc.gov":                     1,
		"ox.ac.uk":                        4,
		"mit.edu":                         1,
		"bbc.co.uk":                       2,
		"random.co.uk":                    4,
		"https://go.dev/doc/effective_go": 1,
	}
	for in, want := range cases {
		if got := s.Score(in); got != want {
			t.Fatalf("Score(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestScore_ExtraOverridesAndIgnoresInvalid(t *testing.T) {
	s := NewScorer(map[string]int{"example.com": 2, "medium.com": 1, "bad.com": 9})
	if s.Score("blog.example.com") != 2 {
		t.Fatalf("expected subdomain to inherit extra entry")
	}
	if s.Score("medium.com") != 1 {
		t.Fatalf("expected override")
	}
	if s.Score("bad.com") != 4 {
		t.Fatalf("expected invalid tier ignored")
	}
}

func TestScoreURLAndRegistrableDomain(t *testing.T) {
	s := NewScorer(nil)
	if s.ScoreURL("https://docs.python.org:443/3/") != 1 {
		t.Fatalf("expected python docs tier 1")
	}
	if got := RegistrableDomain("a.b.example.co.uk"); got != "example.co.uk" {
		t.Fatalf("unexpected registrable domain %q", got)
	}
}
