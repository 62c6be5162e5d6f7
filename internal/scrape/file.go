package scrape

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"

	"github.com/hyperifyio/serpgate/internal/model"
)

// FileProvider serves search results from a local JSON file for offline use.
// The file is an array of objects: {"title": "...", "url": "...",
// "snippet": "...", "content": "..."}.
type FileProvider struct {
	Path string
}

type fileEntry struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Content string `json:"content,omitempty"`
}

func (f *FileProvider) Name() string { return "file" }

func (f *FileProvider) Supports(mode model.Mode) bool { return mode == model.ModeSearch }

// Fetch returns the entries whose title or snippet contains any query term,
// capped at the request limit.
func (f *FileProvider) Fetch(_ context.Context, req model.SearchRequest) (model.RawFetchResult, error) {
	if strings.TrimSpace(f.Path) == "" {
		return model.RawFetchResult{}, errors.New("file provider path is empty")
	}
	b, err := os.ReadFile(f.Path)
	if err != nil {
		return model.RawFetchResult{}, err
	}
	var raw []fileEntry
	if err := json.Unmarshal(b, &raw); err != nil {
		return model.RawFetchResult{}, err
	}
	terms := strings.Fields(strings.ToLower(req.Query))
	out := make([]fileEntry, 0, len(raw))
	for _, r := range raw {
		if r.URL == "" || r.Title == "" {
			continue
		}
		if matchesAny(strings.ToLower(r.Title+" "+r.Snippet+" "+r.Content), terms) {
			out = append(out, r)
			if req.Limit > 0 && len(out) >= req.Limit {
				break
			}
		}
	}
	payload, err := json.Marshal(out)
	if err != nil {
		return model.RawFetchResult{}, err
	}
	return model.RawFetchResult{Provider: f.Name(), Source: model.SourceResults, SourceURL: f.Path, Payload: payload, Status: 200}, nil
}

func matchesAny(text string, terms []string) bool {
	if len(terms) == 0 {
		return true
	}
	for _, t := range terms {
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}
