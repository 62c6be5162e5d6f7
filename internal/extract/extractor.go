package extract

// Extractor turns raw page HTML into a Document. Parser uses it for the
// html.page source type so the readability strategy can be swapped.
type Extractor interface {
	Extract(input []byte) Document
}

// HeuristicExtractor uses FromHTML.
type HeuristicExtractor struct{}

func (HeuristicExtractor) Extract(input []byte) Document {
	return FromHTML(input)
}
