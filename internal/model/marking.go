package model

import "sort"

// SuggestionAction is the user's decision on a sentence comment.
type SuggestionAction string

const (
	ActionNone     SuggestionAction = ""
	ActionResolved SuggestionAction = "resolved"
	ActionRejected SuggestionAction = "rejected"
)

// Valid reports whether a is one of the two decisions the backend accepts.
func (a SuggestionAction) Valid() bool {
	return a == ActionResolved || a == ActionRejected
}

// Marking records a decision and an optional note, pending submit.
type Marking struct {
	Action SuggestionAction
	Note   string
}

// Markings maps comment id to marking.
type Markings map[string]Marking

// Clone returns an independent copy.
func (m Markings) Clone() Markings {
	out := make(Markings, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Missing returns the required ids that have no action, in input order.
func (m Markings) Missing(required []string) []string {
	var missing []string
	for _, id := range required {
		if m[id].Action == ActionNone {
			missing = append(missing, id)
		}
	}
	return missing
}

// Resolved returns the ids marked resolved, sorted.
func (m Markings) Resolved() []string {
	return m.withAction(ActionResolved)
}

// Rejected returns the ids marked rejected, sorted.
func (m Markings) Rejected() []string {
	return m.withAction(ActionRejected)
}

func (m Markings) withAction(a SuggestionAction) []string {
	var ids []string
	for id, mk := range m {
		if mk.Action == a {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
