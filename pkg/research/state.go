package research

import (
	"fmt"
	"strings"
)

// State is the record of one research session. It is a value: every transition
// goes through Apply, which returns a new State and leaves the receiver untouched.
type State struct {
	query        string
	history      []Message
	location     *Location
	stepCount    int
	rounds       []SearchRound
	lastFeedback string
	hasFeedback  bool
}

// NewState starts a session for query.
func NewState(query string, history []Message, location *Location) State {
	s := State{
		query:   query,
		history: append([]Message(nil), history...),
	}
	if location != nil && !location.IsZero() {
		loc := *location
		s.location = &loc
	}
	return s
}

// Event is a transition of State.
type Event interface {
	apply(State) State
}

// SearchesReported appends one completed retrieval round.
type SearchesReported struct {
	Round SearchRound
}

func (e SearchesReported) apply(s State) State {
	round := SearchRound{Searches: make([]QueryResults, len(e.Round.Searches))}
	for i, qr := range e.Round.Searches {
		round.Searches[i] = QueryResults{
			Query:   qr.Query,
			Results: append([]ResultRecord(nil), qr.Results...),
		}
	}
	rounds := make([]SearchRound, len(s.rounds), len(s.rounds)+1)
	copy(rounds, s.rounds)
	s.rounds = append(rounds, round)
	return s
}

// DecisionRecorded stores the decision's feedback, replacing any earlier
// feedback, and completes the round.
type DecisionRecorded struct {
	Action Action
}

func (e DecisionRecorded) apply(s State) State {
	s.lastFeedback = e.Action.Feedback
	s.hasFeedback = true
	s.stepCount++
	return s
}

// Apply returns the state after ev.
func (s State) Apply(ev Event) State {
	return ev.apply(s)
}

func (s State) Query() string { return s.query }

func (s State) StepCount() int { return s.stepCount }

func (s State) History() []Message {
	return append([]Message(nil), s.history...)
}

func (s State) Location() (Location, bool) {
	if s.location == nil {
		return Location{}, false
	}
	return *s.location, true
}

func (s State) Rounds() []SearchRound {
	return append([]SearchRound(nil), s.rounds...)
}

// LastFeedback returns the most recent decision feedback, if any.
func (s State) LastFeedback() (string, bool) {
	return s.lastFeedback, s.hasFeedback
}

// SearchHistory renders every round's results for inclusion in prompts.
// It returns "" when nothing has been searched yet.
func (s State) SearchHistory() string {
	var sections []string
	for _, round := range s.rounds {
		for _, search := range round.Searches {
			parts := []string{fmt.Sprintf("## Query: %q", search.Query)}
			for _, r := range search.Results {
				parts = append(parts, strings.Join([]string{
					fmt.Sprintf("### %s - %s", r.Date, r.Title),
					r.URL,
					r.Snippet,
					"<summary>",
					r.Summary,
					"</summary>",
				}, "\n\n"))
			}
			sections = append(sections, strings.Join(parts, "\n\n"))
		}
	}
	return strings.Join(sections, "\n\n")
}

// MessageHistory renders the conversation as <role>text</role> lines.
func (s State) MessageHistory() string {
	return renderMessages(s.history)
}

func renderMessages(history []Message) string {
	var lines []string
	for _, m := range history {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		role := m.Role
		if role == "assistant" {
			role = "ai"
		}
		lines = append(lines, fmt.Sprintf("<%s>%s</%s>", role, m.Content, role))
	}
	if len(lines) == 0 {
		return "No previous conversation history."
	}
	return strings.Join(lines, "\n")
}

// LocationContext renders the caller's location for prompts.
func (s State) LocationContext() string {
	if s.location == nil {
		return "User location: Unknown"
	}
	var parts []string
	if s.location.City != "" {
		parts = append(parts, s.location.City)
	}
	if s.location.Country != "" {
		parts = append(parts, s.location.Country)
	}
	if s.location.Latitude != "" && s.location.Longitude != "" {
		parts = append(parts, fmt.Sprintf("(%s, %s)", s.location.Latitude, s.location.Longitude))
	}
	if len(parts) == 0 {
		return "User location: Unknown"
	}
	return "User location: " + strings.Join(parts, ", ")
}

// FeedbackContext renders the last feedback for the planner.
func (s State) FeedbackContext() string {
	if !s.hasFeedback || strings.TrimSpace(s.lastFeedback) == "" {
		return "No previous feedback available."
	}
	return s.lastFeedback
}

// LatestUserMessage returns the content of the last user turn in history.
func LatestUserMessage(history []Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == "user" && strings.TrimSpace(history[i].Content) != "" {
			return history[i].Content
		}
	}
	return ""
}
