package extract

import (
	"regexp"
)

// noisePatterns are boilerplate phrases that survive DOM stripping, mostly in
// provider-extracted text where no DOM is available.
var noisePatterns = compileAll(
	// sign-in walls
	`Create your free account or sign in`,
	`New to LinkedIn\? Join now`,
	`Sign in to view more content`,
	`agree to LinkedIn’s User Agreement`,
	// cookie and navigation
	`See our Cookie Policy`,
	`Manage your preferences`,
	`Skip to main content`,
	`Skip to top`,
	`Download chart`,
	// calls to action
	`Share on (?:Twitter|Facebook|LinkedIn|X)`,
	`Open the app`,
	`Click here to subscribe`,
	`Subscribe to our newsletter`,
	// legal
	`All rights reserved\.?`,
	`Terms of Service`,
	`Privacy Policy`,
	`Copyright ©\s*\d{4}`,
	// gating and ads
	`Advertisement`,
	`Sponsored Content`,
	`Read more`,
	`Continue reading`,
	`Subscriber only`,
	// app prompts
	`Follow [^.\n]{1,60}? on WhatsApp`,
	`Download the [^.\n]{1,40}? app`,
	`Join [^.\n]{1,40}? channel`,
	// markdown leftovers
	`!\[[^\]]*Logo[^\]]*\]\([^)]*\)`,
	`!\[[^\]]*representational[^\]]*\]\([^)]*\)`,
	`## Related Stories`,
	`\*\*\[[^\]]*\]\([^)]*\)\*\*`,
)

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(`(?i)`+p))
	}
	return out
}

// CleanText removes boilerplate phrases and collapses whitespace to single
// spaces.
func CleanText(s string) string {
	if s == "" {
		return ""
	}
	for _, re := range noisePatterns {
		s = re.ReplaceAllString(s, " ")
	}
	return collapseSpaces(s)
}

// CleanBlock is CleanText for multi-line content: paragraph breaks are kept.
func CleanBlock(s string) string {
	if s == "" {
		return ""
	}
	for _, re := range noisePatterns {
		s = re.ReplaceAllString(s, " ")
	}
	return normalizeWhitespace(s)
}
