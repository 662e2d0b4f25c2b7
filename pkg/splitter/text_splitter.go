package splitter

import (
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"
)

// TextSplitter wraps the langchaingo text splitter
type TextSplitter struct {
	splitter  textsplitter.TextSplitter
	chunkSize int
}

// NewRecursiveCharacterTextSplitter creates a new recursive character text splitter
func NewRecursiveCharacterTextSplitter(chunkSize, chunkOverlap int) *TextSplitter {
	ts := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
	)

	return &TextSplitter{splitter: ts, chunkSize: chunkSize}
}

// SplitText splits text into chunks
func (ts *TextSplitter) SplitText(text string) ([]string, error) {
	return ts.splitter.SplitText(text)
}

// Truncate keeps the leading chunks of text whose combined length stays within
// maxChars runes, so the cut falls on a paragraph or sentence boundary where possible.
func (ts *TextSplitter) Truncate(text string, maxChars int) (string, error) {
	if maxChars <= 0 || utf8.RuneCountInString(text) <= maxChars {
		return text, nil
	}

	chunks, err := ts.SplitText(text)
	if err != nil {
		return "", err
	}

	var kept []string
	total := 0
	for _, chunk := range chunks {
		n := utf8.RuneCountInString(chunk)
		if len(kept) > 0 {
			n += 2
		}
		if total+n > maxChars {
			break
		}
		kept = append(kept, chunk)
		total += n
	}
	if len(kept) == 0 {
		return string([]rune(text)[:maxChars]), nil
	}
	return strings.Join(kept, "\n\n"), nil
}
