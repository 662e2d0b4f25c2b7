// Package evals runs the bundled question sets through the research engine
// and grades the answers against expert references.
package evals

import (
	"fmt"
	"sort"

	"github.com/mikeboe/deep-search/pkg/research"
)

// Case is one eval question with its expert answer.
type Case struct {
	ID       string
	Input    []research.Message
	Expected string
}

// Query returns the latest user turn of the case input.
func (c Case) Query() string {
	return research.LatestUserMessage(c.Input)
}

var datasets = map[string][]Case{
	"dev": {
		{
			ID: "4",
			Input: []research.Message{
				{Role: "user", Content: "From which party is the current president of Indonesia?"},
			},
			Expected: "The current president of Indonesia is from the Gerindra Party",
		},
	},
	"ci": {
		{
			ID: "5",
			Input: []research.Message{
				{Role: "user", Content: "How many ministers are in the current Indonesian government? How it differs from the previous government?"},
			},
			Expected: "The number of ministers of the current president of Indonesia is 48, It has 14 more ministers than the previous government",
		},
	},
}

// Dataset returns a copy of the named case list.
func Dataset(name string) ([]Case, error) {
	cases, ok := datasets[name]
	if !ok {
		return nil, fmt.Errorf("unknown dataset %q (available: %v)", name, DatasetNames())
	}
	out := make([]Case, len(cases))
	copy(out, cases)
	return out, nil
}

func DatasetNames() []string {
	names := make([]string, 0, len(datasets))
	for name := range datasets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
