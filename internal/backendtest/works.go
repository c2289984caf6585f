package backendtest

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/afterword/afterword/internal/feedback"
)

const previewLength = 80

type workJSON struct {
	WorkID         string  `json:"work_id"`
	Title          string  `json:"title"`
	Content        string  `json:"content"`
	CurrentVersion int     `json:"current_version"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
	WordCount      int     `json:"word_count"`
	EssayPrompt    *string `json:"essay_prompt"`
}

type workListItemJSON struct {
	WorkID    string `json:"work_id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
	WordCount int    `json:"word_count"`
}

type versionItemJSON struct {
	VersionNumber  int    `json:"version_number"`
	ContentPreview string `json:"content_preview"`
	IsSubmitted    bool   `json:"is_submitted"`
	ChangeType     string `json:"change_type"`
	CreatedAt      string `json:"created_at"`
}

type versionListJSON struct {
	CurrentVersion int               `json:"current_version"`
	Versions       []versionItemJSON `json:"versions"`
	NextCursor     string            `json:"next_cursor,omitempty"`
	HiddenCount    int               `json:"hidden_count,omitempty"`
}

type analysisJSON struct {
	AnalysisID       string            `json:"analysis_id"`
	FAOComment       string            `json:"fao_comment"`
	SentenceComments []SentenceComment `json:"sentence_comments"`
}

type versionDetailJSON struct {
	VersionNumber  int           `json:"version_number"`
	Content        string        `json:"content"`
	IsSubmitted    bool          `json:"is_submitted"`
	UserReflection string        `json:"user_reflection,omitempty"`
	ChangeType     string        `json:"change_type"`
	CreatedAt      string        `json:"created_at"`
	Analysis       *analysisJSON `json:"analysis,omitempty"`
}

// CreateWork adds a work owned by email with the given content as version 1
// (a draft) and returns its id.
func (b *Backend) CreateWork(email, title, content string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	w := b.newWorkLocked(email)
	w.Title = title
	w.Content = content
	b.addVersionLocked(w, content, "draft_edit", false)
	return w.ID
}

// SubmitVersion records a submitted version with the default analysis, as
// if the owner had submitted content, and returns its number.
func (b *Backend) SubmitVersion(workID, content string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	w := b.works[workID]
	v := b.addVersionLocked(w, content, "submission", true)
	w.Content = content
	b.analyzeLocked(v)
	return v.Number
}

func (b *Backend) newWorkLocked(owner string) *work {
	now := b.Now()
	w := &work{
		ID:         uuid.NewString(),
		Owner:      owner,
		Title:      "Untitled",
		CreatedAt:  now,
		UpdatedAt:  now,
		NextNumber: 1,
	}
	b.works[w.ID] = w
	return w
}

func (b *Backend) addVersionLocked(w *work, content, changeType string, submitted bool) *version {
	v := &version{
		Number:     w.NextNumber,
		Content:    content,
		Submitted:  submitted,
		ChangeType: changeType,
		Parent:     latestSubmitted(w),
		CreatedAt:  b.Now(),
	}
	w.NextNumber++
	w.Versions = append(w.Versions, v)
	w.UpdatedAt = v.CreatedAt
	return v
}

func (b *Backend) analyzeLocked(v *version) {
	fao, comments := b.Analyzer(v.Number, v.Content)
	v.Analysis = &analysis{ID: uuid.NewString(), FAOComment: fao, Comments: comments}
}

func latestSubmitted(w *work) int {
	n := 0
	for _, v := range w.Versions {
		if v.Submitted && v.Number > n {
			n = v.Number
		}
	}
	return n
}

func currentVersion(w *work) int {
	if len(w.Versions) == 0 {
		return 0
	}
	return w.Versions[len(w.Versions)-1].Number
}

func findVersion(w *work, n int) *version {
	for _, v := range w.Versions {
		if v.Number == n {
			return v
		}
	}
	return nil
}

// workFor loads the caller's work or answers 404.
func (b *Backend) workFor(w http.ResponseWriter, r *http.Request, u *user) *work {
	wk, ok := b.works[r.PathValue("id")]
	if !ok || wk.Owner != u.Email {
		writeError(w, http.StatusNotFound, "not_found", "work not found")
		return nil
	}
	return wk
}

func (b *Backend) workJSON(w *work) workJSON {
	return workJSON{
		WorkID:         w.ID,
		Title:          w.Title,
		Content:        w.Content,
		CurrentVersion: currentVersion(w),
		CreatedAt:      timestamp(w.CreatedAt),
		UpdatedAt:      timestamp(w.UpdatedAt),
		WordCount:      feedback.CountWords(w.Content),
		EssayPrompt:    w.EssayPrompt,
	}
}

func (b *Backend) handleCreate(w http.ResponseWriter, r *http.Request, u *user) {
	b.mu.Lock()
	wk := b.newWorkLocked(u.Email)
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"work_id": wk.ID})
}

func (b *Backend) handleList(w http.ResponseWriter, r *http.Request, u *user) {
	b.mu.Lock()
	items := []workListItemJSON{}
	for _, wk := range b.works {
		if wk.Owner != u.Email {
			continue
		}
		items = append(items, workListItemJSON{
			WorkID:    wk.ID,
			Title:     wk.Title,
			CreatedAt: timestamp(wk.CreatedAt),
			UpdatedAt: timestamp(wk.UpdatedAt),
			WordCount: feedback.CountWords(wk.Content),
		})
	}
	b.mu.Unlock()

	sort.Slice(items, func(i, j int) bool {
		if items[i].UpdatedAt != items[j].UpdatedAt {
			return items[i].UpdatedAt > items[j].UpdatedAt
		}
		return items[i].WorkID < items[j].WorkID
	})
	b.writeCached(w, r, map[string]any{"items": items})
}

func (b *Backend) handleTotalWordCount(w http.ResponseWriter, r *http.Request, u *user) {
	b.mu.Lock()
	total := 0
	for _, wk := range b.works {
		if wk.Owner == u.Email {
			total += feedback.CountWords(wk.Content)
		}
	}
	b.mu.Unlock()
	b.writeCached(w, r, map[string]int{"total_word_count": total})
}

func (b *Backend) handleTotalProjectCount(w http.ResponseWriter, r *http.Request, u *user) {
	b.mu.Lock()
	total := 0
	for _, wk := range b.works {
		if wk.Owner == u.Email {
			total++
		}
	}
	b.mu.Unlock()
	b.writeCached(w, r, map[string]int{"total_project_count": total})
}

func (b *Backend) handleGet(w http.ResponseWriter, r *http.Request, u *user) {
	b.mu.Lock()
	wk := b.workFor(w, r, u)
	if wk == nil {
		b.mu.Unlock()
		return
	}
	resp := b.workJSON(wk)
	b.mu.Unlock()
	b.writeCached(w, r, resp)
}

func (b *Backend) handleDelete(w http.ResponseWriter, r *http.Request, u *user) {
	b.mu.Lock()
	defer b.mu.Unlock()
	wk := b.workFor(w, r, u)
	if wk == nil {
		return
	}
	delete(b.works, wk.ID)
	delete(b.locks, wk.ID)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (b *Backend) handleUpdate(w http.ResponseWriter, r *http.Request, u *user) {
	var req struct {
		Content     string  `json:"content"`
		DeviceID    string  `json:"device_id"`
		AutoSave    bool    `json:"auto_save"`
		EssayPrompt *string `json:"essay_prompt"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", "invalid request: "+err.Error())
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	wk := b.workFor(w, r, u)
	if wk == nil {
		return
	}
	if !b.acquireLocked(wk.ID, req.DeviceID) {
		writeError(w, http.StatusLocked, "locked", "work locked")
		return
	}

	wk.Content = req.Content
	wk.UpdatedAt = b.Now()
	if req.EssayPrompt != nil {
		prompt := *req.EssayPrompt
		wk.EssayPrompt = &prompt
	}

	resp := map[string]any{"ok": true}
	if req.AutoSave {
		wk.AutoSaves++
	} else {
		v := b.addVersionLocked(wk, req.Content, "draft_edit", false)
		resp["version"] = v.Number
	}
	writeJSON(w, http.StatusOK, resp)
}

func (b *Backend) handleSubmit(w http.ResponseWriter, r *http.Request, u *user) {
	var req struct {
		Content           string  `json:"content"`
		DeviceID          string  `json:"device_id"`
		FAOReflection     *string `json:"fao_reflection"`
		SuggestionActions map[string]struct {
			Action   string `json:"action"`
			UserNote string `json:"user_note"`
		} `json:"suggestion_actions"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", "invalid request: "+err.Error())
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	wk := b.workFor(w, r, u)
	if wk == nil {
		return
	}
	if !b.acquireLocked(wk.ID, req.DeviceID) {
		writeError(w, http.StatusLocked, "locked", "work locked")
		return
	}

	parent := latestSubmitted(wk)
	if prev := findVersion(wk, parent); prev != nil && prev.Analysis != nil {
		missing := 0
		for _, c := range prev.Analysis.Comments {
			a := req.SuggestionActions[c.ID].Action
			if a != "resolved" && a != "rejected" {
				missing++
			}
		}
		if missing > 0 {
			writeError(w, http.StatusUnprocessableEntity, "suggestions_not_processed",
				fmt.Sprintf("Unprocessed suggestions: %d out of %d", missing, len(prev.Analysis.Comments)))
			return
		}
	}

	v := b.addVersionLocked(wk, req.Content, "submission", true)
	if req.FAOReflection != nil {
		v.Reflection = strings.TrimSpace(*req.FAOReflection)
	}
	b.analyzeLocked(v)
	wk.Content = req.Content

	// drafts made since the previous submission are folded into this one
	kept := wk.Versions[:0]
	for _, old := range wk.Versions {
		if !old.Submitted && old.ChangeType == "draft_edit" && old.Parent == parent && parent > 0 {
			continue
		}
		kept = append(kept, old)
	}
	wk.Versions = kept

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":          true,
		"version":     v.Number,
		"analysis_id": v.Analysis.ID,
	})
}

func (b *Backend) handleRevert(w http.ResponseWriter, r *http.Request, u *user) {
	var req struct {
		TargetVersion int    `json:"target_version"`
		DeviceID      string `json:"device_id"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", "invalid request: "+err.Error())
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	wk := b.workFor(w, r, u)
	if wk == nil {
		return
	}
	if !b.acquireLocked(wk.ID, req.DeviceID) {
		writeError(w, http.StatusLocked, "locked", "work locked")
		return
	}
	target := findVersion(wk, req.TargetVersion)
	if target == nil {
		writeError(w, http.StatusNotFound, "not_found", "version not found")
		return
	}

	v := b.addVersionLocked(wk, target.Content, "revert", false)
	wk.Content = target.Content
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "new_version": v.Number})
}

func (b *Backend) handleRename(w http.ResponseWriter, r *http.Request, u *user) {
	var req struct {
		Title string `json:"title"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", "invalid request: "+err.Error())
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", "title cannot be empty")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	wk := b.workFor(w, r, u)
	if wk == nil {
		return
	}
	wk.Title = title
	wk.UpdatedAt = b.Now()
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (b *Backend) handleVersions(w http.ResponseWriter, r *http.Request, u *user) {
	q := r.URL.Query()
	typ := q.Get("type")
	if typ == "" {
		typ = "all"
	}
	if typ != "all" && typ != "submitted" && typ != "draft" {
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", "unknown version type "+typ)
		return
	}
	parent, _ := strconv.Atoi(q.Get("parent"))
	offset := 0
	if c := q.Get("cursor"); c != "" {
		n, err := strconv.Atoi(c)
		if err != nil || n < 0 {
			writeError(w, http.StatusUnprocessableEntity, "validation_failed", "invalid cursor")
			return
		}
		offset = n
	}

	b.mu.Lock()
	wk := b.workFor(w, r, u)
	if wk == nil {
		b.mu.Unlock()
		return
	}

	var matched []*version
	for i := len(wk.Versions) - 1; i >= 0; i-- {
		v := wk.Versions[i]
		switch {
		case typ == "submitted" && !v.Submitted:
			continue
		case typ == "draft" && v.Submitted:
			continue
		case typ == "draft" && parent > 0 && v.Parent != parent:
			continue
		}
		matched = append(matched, v)
	}

	resp := versionListJSON{CurrentVersion: currentVersion(wk), Versions: []versionItemJSON{}}
	if offset == 0 {
		resp.HiddenCount = wk.AutoSaves
	}
	end := min(len(matched), offset+b.PageSize)
	for _, v := range matched[min(offset, len(matched)):end] {
		resp.Versions = append(resp.Versions, versionItemJSON{
			VersionNumber:  v.Number,
			ContentPreview: preview(v.Content),
			IsSubmitted:    v.Submitted,
			ChangeType:     v.ChangeType,
			CreatedAt:      timestamp(v.CreatedAt),
		})
	}
	if end < len(matched) {
		resp.NextCursor = strconv.Itoa(end)
	}
	b.mu.Unlock()

	b.writeCached(w, r, resp)
}

func (b *Backend) handleVersion(w http.ResponseWriter, r *http.Request, u *user) {
	n, err := strconv.Atoi(r.PathValue("n"))
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "version not found")
		return
	}

	b.mu.Lock()
	wk := b.workFor(w, r, u)
	if wk == nil {
		b.mu.Unlock()
		return
	}
	v := findVersion(wk, n)
	if v == nil {
		b.mu.Unlock()
		writeError(w, http.StatusNotFound, "not_found", "version not found")
		return
	}
	resp := versionDetailJSON{
		VersionNumber:  v.Number,
		Content:        v.Content,
		IsSubmitted:    v.Submitted,
		UserReflection: v.Reflection,
		ChangeType:     v.ChangeType,
		CreatedAt:      timestamp(v.CreatedAt),
	}
	if v.Analysis != nil {
		resp.Analysis = &analysisJSON{
			AnalysisID:       v.Analysis.ID,
			FAOComment:       v.Analysis.FAOComment,
			SentenceComments: v.Analysis.Comments,
		}
	}
	b.mu.Unlock()

	b.writeCached(w, r, resp)
}

func preview(content string) string {
	runes := []rune(strings.TrimSpace(content))
	if len(runes) <= previewLength {
		return string(runes)
	}
	return string(runes[:previewLength]) + "…"
}
