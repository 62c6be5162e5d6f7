package dedupe

import (
	"reflect"
	"strings"
	"testing"

	"github.com/hyperifyio/serpgate/internal/model"
)

func TestNormalizeURL_TrimsTracking(t *testing.T) {
	cases := map[string]string{
		"https://EXAMPLE.com/page?utm_source=x&utm_medium=y": "https://example.com/page",
		"https://example.com:443/page/#section":              "https://example.com/page",
		"http://example.com":                                 "http://example.com/",
		"https://example.com/a?b=2&a=1&gclid=zz":             "https://example.com/a?a=1&b=2",
		"not a url":                                          "not a url",
	}
	for in, want := range cases {
		if got := NormalizeURL(in); got != want {
			t.Fatalf("NormalizeURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDedupe_SameURLKeepsLongerContent(t *testing.T) {
	in := []model.OrganicResult{
		{URL: "https://a.com/x", Title: "short", CleanedContent: "short text"},
		{URL: "https://b.com/", Title: "other", CleanedContent: "unrelated"},
		{URL: "https://A.com/x?utm_source=feed", Title: "long", CleanedContent: "a much longer body of text"},
	}
	out := (&Deduplicator{}).Dedupe(in)
	if len(out) != 2 {
		t.Fatalf("expected 2 results, got %d", len(out))
	}
	if out[0].Title != "long" || out[0].URL != "https://a.com/x" {
		t.Fatalf("expected longer entry in first slot, got %+v", out[0])
	}
	if out[1].Title != "other" {
		t.Fatalf("expected order preserved, got %+v", out[1])
	}
}

func TestDedupe_SimilarContent(t *testing.T) {
	body := "the quick brown fox jumps over the lazy dog near the river bank today"
	in := []model.OrganicResult{
		{URL: "https://a.com/1", CleanedContent: body},
		{URL: "https://b.com/2", CleanedContent: "completely different words about databases and indexes here"},
		{URL: "https://c.com/3", CleanedContent: body + " again"},
	}
	out := (&Deduplicator{Threshold: 0.85}).Dedupe(in)
	if len(out) != 2 {
		t.Fatalf("expected near-duplicate merged, got %d", len(out))
	}
	if out[0].URL != "https://c.com/3" {
		t.Fatalf("expected longer near-duplicate to win first slot, got %q", out[0].URL)
	}
}

func TestDedupe_ShortTextsNeverMatchByContent(t *testing.T) {
	in := []model.OrganicResult{
		{URL: "https://a.com/1", CleanedContent: "Go"},
		{URL: "https://b.com/2", CleanedContent: "Go"},
	}
	if out := (&Deduplicator{}).Dedupe(in); len(out) != 2 {
		t.Fatalf("expected both kept, got %d", len(out))
	}
}

func TestDedupe_Idempotent(t *testing.T) {
	base := strings.Repeat("alpha beta gamma delta ", 4)
	in := []model.OrganicResult{
		{URL: "https://a.com/1", CleanedContent: base},
		{URL: "https://b.com/2", CleanedContent: base + "epsilon"},
		{URL: "https://a.com/1#frag", CleanedContent: "x"},
		{URL: "https://c.com/3", CleanedContent: "nothing in common with the others at all really"},
		{URL: "https://d.com/4", CleanedContent: base + "epsilon zeta eta theta"},
	}
	d := &Deduplicator{}
	once := d.Dedupe(in)
	twice := d.Dedupe(once)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("dedupe not idempotent:\n%+v\n%+v", once, twice)
	}
	if len(d.Dedupe(nil)) != 0 {
		t.Fatalf("expected empty output")
	}
}

func TestCosine(t *testing.T) {
	if c := Cosine("a b c", "a b c"); c < 0.999 {
		t.Fatalf("identical texts should be ~1, got %f", c)
	}
	if c := Cosine("a b c", "x y z"); c != 0 {
		t.Fatalf("disjoint texts should be 0, got %f", c)
	}
	if Cosine("", "a") != 0 {
		t.Fatalf("empty text should be 0")
	}
}
