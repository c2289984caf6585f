// Package model defines the core data types shared across afterword.
package model

import (
	"strings"
	"time"
)

// Severity ranks a sentence comment.
type Severity int

const (
	SeverityUnknown Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// ParseSeverity maps the backend's free-form severity label.
func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "minor":
		return SeverityLow
	case "medium", "moderate":
		return SeverityMedium
	case "high", "major", "critical":
		return SeverityHigh
	default:
		return SeverityUnknown
	}
}

// Phase is the state of a work session. Exactly one phase holds at a time.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseLocked
	PhaseSaving
	PhaseSubmitting
	PhaseReverting
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhaseLocked:
		return "locked"
	case PhaseSaving:
		return "saving"
	case PhaseSubmitting:
		return "submitting"
	case PhaseReverting:
		return "reverting"
	default:
		return "unknown"
	}
}

// Busy reports whether a network operation is running.
func (p Phase) Busy() bool {
	return p == PhaseLoading || p == PhaseSaving || p == PhaseSubmitting || p == PhaseReverting
}

// Version change types reported by the backend.
const (
	ChangeSubmission = "submission"
	ChangeDraftEdit  = "draft_edit"
	ChangeRevert     = "revert"
	ChangeAutoSave   = "auto_save"
)

// User is the signed-in account.
type User struct {
	ID       string `json:"id,omitempty"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

// WorkSummary is one entry of the work list.
type WorkSummary struct {
	ID        string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
	WordCount int
}

// Work is the server-side document.
type Work struct {
	ID             string
	Title          string
	Content        string
	CurrentVersion int
	EssayPrompt    string
	WordCount      int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// VersionSummary is an immutable snapshot as listed in the history.
type VersionSummary struct {
	Number         int
	ContentPreview string
	Submitted      bool
	ChangeType     string
	CreatedAt      time.Time
}

// VersionList is one page of version history.
type VersionList struct {
	CurrentVersion int
	Versions       []VersionSummary
	NextCursor     string
	HiddenCount    int
}

// SentenceComment is an AI-generated critique of one text span.
type SentenceComment struct {
	ID                  string
	OriginalText        string
	IssueType           string
	Severity            Severity
	Title               string
	Description         string
	Suggestion          string
	ImprovementFeedback string
}

// Analysis is the feedback attached to a submitted version.
type Analysis struct {
	ID                string
	FAOComment        string
	ReflectionComment string
	SentenceComments  []SentenceComment
}

// CommentIDs returns the ids of all sentence comments, skipping empty ones.
func (a *Analysis) CommentIDs() []string {
	if a == nil {
		return nil
	}
	ids := make([]string, 0, len(a.SentenceComments))
	for _, c := range a.SentenceComments {
		if c.ID != "" {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

// VersionDetail is the full content of one version.
type VersionDetail struct {
	Number         int
	Content        string
	Submitted      bool
	UserReflection string
	ChangeType     string
	CreatedAt      time.Time
	Analysis       *Analysis
}

// LatestSubmitted returns the submitted version with the highest number.
func LatestSubmitted(versions []VersionSummary) (VersionSummary, bool) {
	var latest VersionSummary
	found := false
	for _, v := range versions {
		if !v.Submitted {
			continue
		}
		if !found || v.Number > latest.Number {
			latest = v
			found = true
		}
	}
	return latest, found
}
