package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"golang.org/x/text/language"

	"github.com/hyperifyio/serpgate/internal/model"
)

// KeyPrefix namespaces result entries in shared stores.
const KeyPrefix = "serpgate:v1:"

// fingerprintFields fixes the field order of the digest input so the key does
// not depend on how the request was encoded by the client.
type fingerprintFields struct {
	Query        string `json:"q"`
	Mode         string `json:"m"`
	Region       string `json:"r"`
	Language     string `json:"l"`
	Limit        int    `json:"n"`
	OutputFormat string `json:"f"`
}

// Fingerprint derives the cache key of a request. Requests that normalize to
// the same values share a key.
func Fingerprint(req model.SearchRequest) string {
	req = req.Normalize()
	q := strings.Join(strings.Fields(req.Query), " ")
	if req.Mode == model.ModeSearch {
		q = strings.ToLower(q)
	}
	b, _ := json.Marshal(fingerprintFields{
		Query:        q,
		Mode:         string(req.Mode),
		Region:       req.Region,
		Language:     canonicalLanguage(req.Language),
		Limit:        req.Limit,
		OutputFormat: string(req.OutputFormat),
	})
	h := sha256.Sum256(b)
	return KeyPrefix + hex.EncodeToString(h[:])
}

func canonicalLanguage(s string) string {
	tag, err := language.Parse(s)
	if err != nil {
		return strings.ToLower(s)
	}
	return tag.String()
}
