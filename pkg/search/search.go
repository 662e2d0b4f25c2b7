// Package search holds the web search providers used by the research pipeline.
package search

import (
	"fmt"

	"github.com/mikeboe/deep-search/pkg/research"
)

// New returns the provider registered under name.
func New(name, serperKey string) (research.SearchProvider, error) {
	switch name {
	case "", "serper":
		return NewSerper(serperKey), nil
	case "arxiv":
		return NewArxiv(), nil
	default:
		return nil, fmt.Errorf("unknown search provider %q", name)
	}
}
