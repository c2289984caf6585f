package client

import (
	"strings"
	"time"

	"github.com/afterword/afterword/internal/model"
)

// Wire shapes of the backend contract. Field names are snake_case on the
// wire and never leak past this file.

type wireWorkListItem struct {
	WorkID    string `json:"work_id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
	WordCount int    `json:"word_count"`
}

type wireWorkList struct {
	Items []wireWorkListItem `json:"items"`
}

type wireWork struct {
	WorkID         string  `json:"work_id"`
	Title          string  `json:"title"`
	Content        string  `json:"content"`
	CurrentVersion int     `json:"current_version"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
	WordCount      int     `json:"word_count"`
	EssayPrompt    *string `json:"essay_prompt"`
}

type wireUpdateRequest struct {
	Content     string  `json:"content"`
	DeviceID    string  `json:"device_id"`
	AutoSave    bool    `json:"auto_save"`
	EssayPrompt *string `json:"essay_prompt,omitempty"`
}

type wireUpdateResponse struct {
	OK      bool `json:"ok"`
	Version *int `json:"version"`
}

type wireSuggestionAction struct {
	Action   string `json:"action"`
	UserNote string `json:"user_note,omitempty"`
}

type wireSubmitRequest struct {
	Content           string                          `json:"content"`
	DeviceID          string                          `json:"device_id"`
	FAOReflection     *string                         `json:"fao_reflection"`
	SuggestionActions map[string]wireSuggestionAction `json:"suggestion_actions,omitempty"`
}

type wireSubmitResponse struct {
	OK         bool   `json:"ok"`
	Version    int    `json:"version"`
	AnalysisID string `json:"analysis_id"`
}

type wireVersionItem struct {
	VersionNumber  int    `json:"version_number"`
	ContentPreview string `json:"content_preview"`
	IsSubmitted    bool   `json:"is_submitted"`
	ChangeType     string `json:"change_type"`
	CreatedAt      string `json:"created_at"`
}

type wireVersionList struct {
	CurrentVersion int               `json:"current_version"`
	Versions       []wireVersionItem `json:"versions"`
	NextCursor     string            `json:"next_cursor,omitempty"`
	HiddenCount    int               `json:"hidden_count,omitempty"`
}

type wireSentenceComment struct {
	ID                  string `json:"id"`
	OriginalText        string `json:"original_text"`
	IssueType           string `json:"issue_type"`
	Severity            string `json:"severity"`
	Title               string `json:"title"`
	Description         string `json:"description"`
	Suggestion          string `json:"suggestion"`
	ImprovementFeedback string `json:"improvement_feedback,omitempty"`
}

type wireAnalysis struct {
	AnalysisID        string                `json:"analysis_id"`
	FAOComment        string                `json:"fao_comment"`
	SentenceComments  []wireSentenceComment `json:"sentence_comments"`
	ReflectionComment string                `json:"reflection_comment,omitempty"`
}

type wireVersionDetail struct {
	VersionNumber  int           `json:"version_number"`
	Content        string        `json:"content"`
	IsSubmitted    bool          `json:"is_submitted"`
	UserReflection string        `json:"user_reflection,omitempty"`
	ChangeType     string        `json:"change_type"`
	CreatedAt      string        `json:"created_at"`
	Analysis       *wireAnalysis `json:"analysis,omitempty"`
}

type wireRevertRequest struct {
	TargetVersion int    `json:"target_version"`
	DeviceID      string `json:"device_id"`
}

type wireRevertResponse struct {
	OK         bool `json:"ok"`
	NewVersion int  `json:"new_version"`
}

type wireRenameRequest struct {
	Title string `json:"title"`
}

type wireOK struct {
	OK bool `json:"ok"`
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999",
	"2006-01-02T15:04:05",
}

// parseTime accepts RFC 3339 and the naive ISO timestamps the backend
// emits for rows without a zone. Unparseable values yield the zero time.
func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func fromWireWorkList(items []wireWorkListItem) []model.WorkSummary {
	out := make([]model.WorkSummary, 0, len(items))
	for _, it := range items {
		out = append(out, model.WorkSummary{
			ID:        it.WorkID,
			Title:     it.Title,
			CreatedAt: parseTime(it.CreatedAt),
			UpdatedAt: parseTime(it.UpdatedAt),
			WordCount: it.WordCount,
		})
	}
	return out
}

func fromWireWork(w wireWork) *model.Work {
	work := &model.Work{
		ID:             w.WorkID,
		Title:          w.Title,
		Content:        w.Content,
		CurrentVersion: w.CurrentVersion,
		WordCount:      w.WordCount,
		CreatedAt:      parseTime(w.CreatedAt),
		UpdatedAt:      parseTime(w.UpdatedAt),
	}
	if w.EssayPrompt != nil {
		work.EssayPrompt = *w.EssayPrompt
	}
	return work
}

func fromWireVersionList(w wireVersionList) *model.VersionList {
	list := &model.VersionList{
		CurrentVersion: w.CurrentVersion,
		Versions:       make([]model.VersionSummary, 0, len(w.Versions)),
		NextCursor:     w.NextCursor,
		HiddenCount:    w.HiddenCount,
	}
	for _, v := range w.Versions {
		list.Versions = append(list.Versions, model.VersionSummary{
			Number:         v.VersionNumber,
			ContentPreview: v.ContentPreview,
			Submitted:      v.IsSubmitted,
			ChangeType:     v.ChangeType,
			CreatedAt:      parseTime(v.CreatedAt),
		})
	}
	return list
}

func fromWireVersionDetail(w wireVersionDetail) *model.VersionDetail {
	d := &model.VersionDetail{
		Number:         w.VersionNumber,
		Content:        w.Content,
		Submitted:      w.IsSubmitted,
		UserReflection: w.UserReflection,
		ChangeType:     w.ChangeType,
		CreatedAt:      parseTime(w.CreatedAt),
	}
	if w.Analysis != nil {
		a := &model.Analysis{
			ID:                w.Analysis.AnalysisID,
			FAOComment:        w.Analysis.FAOComment,
			ReflectionComment: w.Analysis.ReflectionComment,
			SentenceComments:  make([]model.SentenceComment, 0, len(w.Analysis.SentenceComments)),
		}
		for _, c := range w.Analysis.SentenceComments {
			a.SentenceComments = append(a.SentenceComments, model.SentenceComment{
				ID:                  c.ID,
				OriginalText:        c.OriginalText,
				IssueType:           c.IssueType,
				Severity:            model.ParseSeverity(c.Severity),
				Title:               c.Title,
				Description:         c.Description,
				Suggestion:          c.Suggestion,
				ImprovementFeedback: c.ImprovementFeedback,
			})
		}
		d.Analysis = a
	}
	return d
}

// toWireSuggestionActions drops markings without a decision and trims notes.
func toWireSuggestionActions(m model.Markings) map[string]wireSuggestionAction {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]wireSuggestionAction, len(m))
	for id, mk := range m {
		if !mk.Action.Valid() {
			continue
		}
		out[id] = wireSuggestionAction{
			Action:   string(mk.Action),
			UserNote: strings.TrimSpace(mk.Note),
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func optionalTrimmed(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
