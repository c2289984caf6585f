package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/afterword/afterword/internal/diff"
	"github.com/afterword/afterword/internal/feedback"
	"github.com/afterword/afterword/internal/model"
	"github.com/afterword/afterword/internal/session"
)

// --- Health ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- State ---

type stateJSON struct {
	WorkID          string              `json:"work_id"`
	Phase           string              `json:"phase"`
	Locked          bool                `json:"locked"`
	LockRetryIn     int                 `json:"lock_retry_in,omitempty"`
	Work            *workJSON           `json:"work,omitempty"`
	Content         string              `json:"content"`
	Dirty           bool                `json:"dirty"`
	EssayPrompt     string              `json:"essay_prompt"`
	ReflectionDraft string              `json:"reflection_draft"`
	Versions        []versionJSON       `json:"versions"`
	CanLoadMore     bool                `json:"can_load_more"`
	HiddenCount     int                 `json:"hidden_count"`
	Selected        *versionDetailJSON  `json:"selected,omitempty"`
	Baseline        *versionDetailJSON  `json:"baseline,omitempty"`
	Comments        []commentJSON       `json:"comments"`
	Unprocessed     int                 `json:"unprocessed"`
	Summary         string              `json:"summary"`
	Findings        []findingJSON       `json:"findings"`
	Error           *errorJSON          `json:"error,omitempty"`
	Info            string              `json:"info,omitempty"`
	Recovered       *recoveredDraftJSON `json:"recovered_draft,omitempty"`
}

type workJSON struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	CurrentVersion int       `json:"current_version"`
	WordCount      int       `json:"word_count"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type versionJSON struct {
	Number     int       `json:"number"`
	Preview    string    `json:"preview"`
	Submitted  bool      `json:"submitted"`
	ChangeType string    `json:"change_type"`
	CreatedAt  time.Time `json:"created_at"`
}

type versionDetailJSON struct {
	Number            int       `json:"number"`
	Content           string    `json:"content"`
	Submitted         bool      `json:"submitted"`
	ChangeType        string    `json:"change_type"`
	UserReflection    string    `json:"user_reflection,omitempty"`
	FAOComment        string    `json:"fao_comment,omitempty"`
	ReflectionComment string    `json:"reflection_comment,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

type commentJSON struct {
	ID           string `json:"id"`
	OriginalText string `json:"original_text"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Suggestion   string `json:"suggestion,omitempty"`
	IssueType    string `json:"issue_type,omitempty"`
	Severity     string `json:"severity"`
	Line         int    `json:"line,omitempty"`
	Action       string `json:"action,omitempty"`
	Note         string `json:"note,omitempty"`
}

type findingJSON struct {
	Pass      string `json:"pass"`
	CommentID string `json:"comment_id"`
	Line      int    `json:"line,omitempty"`
	Message   string `json:"message"`
	Severity  string `json:"severity"`
}

type errorJSON struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Missing int    `json:"missing,omitempty"`
	Total   int    `json:"total,omitempty"`
}

type recoveredDraftJSON struct {
	Content string `json:"content"`
}

func toStateJSON(st session.State) stateJSON {
	out := stateJSON{
		WorkID:          st.WorkID,
		Phase:           st.Phase.String(),
		Locked:          st.Locked,
		LockRetryIn:     st.LockRetryIn,
		Content:         st.Content,
		Dirty:           st.Dirty,
		EssayPrompt:     st.EssayPrompt,
		ReflectionDraft: st.ReflectionDraft,
		CanLoadMore:     st.CanLoadMore,
		HiddenCount:     st.HiddenCount,
		Selected:        toVersionDetailJSON(st.Selected),
		Baseline:        toVersionDetailJSON(st.Baseline),
		Unprocessed:     st.Unprocessed,
		Info:            st.Info,
		Versions:        []versionJSON{},
		Comments:        []commentJSON{},
		Findings:        []findingJSON{},
	}
	if st.Work != nil {
		out.Work = &workJSON{
			ID:             st.Work.ID,
			Title:          st.Work.Title,
			CurrentVersion: st.Work.CurrentVersion,
			WordCount:      st.Work.WordCount,
			UpdatedAt:      st.Work.UpdatedAt,
		}
	}
	for _, v := range st.Versions {
		out.Versions = append(out.Versions, versionJSON{
			Number:     v.Number,
			Preview:    v.ContentPreview,
			Submitted:  v.Submitted,
			ChangeType: v.ChangeType,
			CreatedAt:  v.CreatedAt,
		})
	}
	if st.Err != nil {
		out.Error = toErrorJSON(st.Err)
	}
	if st.HasRecovered {
		out.Recovered = &recoveredDraftJSON{Content: st.RecoveredDraft}
	}

	var analysis *model.Analysis
	if st.Baseline != nil {
		analysis = st.Baseline.Analysis
	}
	if analysis != nil {
		spans := feedback.Locate(st.Content, analysis.SentenceComments)
		for i, c := range analysis.SentenceComments {
			m := st.Markings[c.ID]
			out.Comments = append(out.Comments, commentJSON{
				ID:           c.ID,
				OriginalText: c.OriginalText,
				Title:        c.Title,
				Description:  c.Description,
				Suggestion:   c.Suggestion,
				IssueType:    c.IssueType,
				Severity:     c.Severity.String(),
				Line:         spans[i].Line,
				Action:       string(m.Action),
				Note:         m.Note,
			})
		}
	}

	results := feedback.Run(feedback.Input{
		Content:  st.Content,
		Analysis: analysis,
		Markings: st.Markings,
	}, nil)
	out.Summary = results.Summary()
	for _, f := range results.Findings {
		out.Findings = append(out.Findings, findingJSON{
			Pass:      f.Pass,
			CommentID: f.CommentID,
			Line:      f.Line,
			Message:   f.Message,
			Severity:  f.Severity.String(),
		})
	}
	return out
}

func toVersionDetailJSON(d *model.VersionDetail) *versionDetailJSON {
	if d == nil {
		return nil
	}
	v := &versionDetailJSON{
		Number:         d.Number,
		Content:        d.Content,
		Submitted:      d.Submitted,
		ChangeType:     d.ChangeType,
		UserReflection: d.UserReflection,
		CreatedAt:      d.CreatedAt,
	}
	if d.Analysis != nil {
		v.FAOComment = d.Analysis.FAOComment
		v.ReflectionComment = d.Analysis.ReflectionComment
	}
	return v
}

func toErrorJSON(e *session.Error) *errorJSON {
	return &errorJSON{Kind: string(e.Kind), Message: e.Message, Missing: e.Missing, Total: e.Total}
}

// statusFor maps a session failure to an HTTP status.
func statusFor(err error) (int, *errorJSON) {
	switch {
	case errors.Is(err, session.ErrReadOnly):
		return http.StatusLocked, &errorJSON{Kind: string(session.KindLocked), Message: err.Error()}
	case errors.Is(err, session.ErrClosed), errors.Is(err, ErrManagerClosed):
		return http.StatusGone, &errorJSON{Kind: "closed", Message: err.Error()}
	}
	e := session.MapError(err)
	status := http.StatusBadGateway
	switch e.Kind {
	case session.KindLocked:
		status = http.StatusLocked
	case session.KindValidationFailed, session.KindSuggestionsNotProcessed:
		status = http.StatusUnprocessableEntity
	case session.KindNotFound:
		status = http.StatusNotFound
	case session.KindUnauthorized:
		status = http.StatusUnauthorized
	case session.KindRateLimitExceeded:
		status = http.StatusTooManyRequests
	}
	return status, toErrorJSON(e)
}

type sessionErrorResponse struct {
	Error *errorJSON `json:"error"`
	State *stateJSON `json:"state,omitempty"`
}

func writeSessionError(w http.ResponseWriter, sess *session.Session, err error) {
	status, e := statusFor(err)
	resp := sessionErrorResponse{Error: e}
	if sess != nil {
		st := toStateJSON(sess.State())
		resp.State = &st
	}
	writeJSON(w, status, resp)
}

func writeState(w http.ResponseWriter, sess *session.Session) {
	writeJSON(w, http.StatusOK, toStateJSON(sess.State()))
}

// open resolves the {id} path value to a loaded session, writing the
// error response itself when it cannot.
func (s *Server) open(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "work id is required")
		return nil, false
	}
	sess, err := s.manager.Open(r.Context(), id)
	if err != nil {
		writeSessionError(w, nil, err)
		return nil, false
	}
	return sess, true
}

// --- Sessions ---

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"sessions": s.manager.IDs()})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.open(w, r)
	if !ok {
		return
	}
	writeState(w, sess)
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	if !s.manager.Close(r.PathValue("id")) {
		writeError(w, http.StatusNotFound, "no open session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.open(w, r)
	if !ok {
		return
	}
	if err := sess.LoadAll(r.Context()); err != nil {
		writeSessionError(w, sess, err)
		return
	}
	writeState(w, sess)
}

// --- Editing ---

type contentRequest struct {
	Content      *string `json:"content,omitempty"`
	EssayPrompt  *string `json:"essay_prompt,omitempty"`
	Reflection   *string `json:"reflection,omitempty"`
	RestoreDraft bool    `json:"restore_draft,omitempty"`
}

func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	var req contentRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	sess, ok := s.open(w, r)
	if !ok {
		return
	}
	if err := applyContent(sess, req); err != nil {
		writeSessionError(w, sess, err)
		return
	}
	writeState(w, sess)
}

func applyContent(sess *session.Session, req contentRequest) error {
	if req.RestoreDraft {
		if _, err := sess.RestoreDraft(); err != nil {
			return err
		}
	}
	if req.Content != nil {
		if err := sess.SetContent(*req.Content); err != nil {
			return err
		}
	}
	if req.EssayPrompt != nil {
		if err := sess.SetEssayPrompt(*req.EssayPrompt); err != nil {
			return err
		}
	}
	if req.Reflection != nil {
		if err := sess.SetReflectionDraft(*req.Reflection); err != nil {
			return err
		}
	}
	return nil
}

type saveRequest struct {
	AutoSave bool `json:"auto_save"`
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	sess, ok := s.open(w, r)
	if !ok {
		return
	}
	if err := sess.Save(r.Context(), req.AutoSave); err != nil {
		writeSessionError(w, sess, err)
		return
	}
	writeState(w, sess)
}

type submitRequest struct {
	Reflection *string `json:"reflection,omitempty"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	sess, ok := s.open(w, r)
	if !ok {
		return
	}
	reflection := sess.State().ReflectionDraft
	if req.Reflection != nil {
		reflection = *req.Reflection
	}
	if _, err := sess.Submit(r.Context(), reflection); err != nil {
		writeSessionError(w, sess, err)
		return
	}
	writeState(w, sess)
}

type revertRequest struct {
	Target int `json:"target"`
}

func (s *Server) handleRevert(w http.ResponseWriter, r *http.Request) {
	var req revertRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if req.Target <= 0 {
		writeError(w, http.StatusBadRequest, "target version is required")
		return
	}
	sess, ok := s.open(w, r)
	if !ok {
		return
	}
	if _, err := sess.Revert(r.Context(), req.Target); err != nil {
		writeSessionError(w, sess, err)
		return
	}
	writeState(w, sess)
}

type markingRequest struct {
	CommentID string  `json:"comment_id"`
	Action    string  `json:"action"`
	Note      *string `json:"note,omitempty"`
}

func (s *Server) handleMarking(w http.ResponseWriter, r *http.Request) {
	var req markingRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if req.CommentID == "" {
		writeError(w, http.StatusBadRequest, "comment_id is required")
		return
	}
	sess, ok := s.open(w, r)
	if !ok {
		return
	}
	if err := applyMarking(sess, req); err != nil {
		writeSessionError(w, sess, err)
		return
	}
	writeState(w, sess)
}

func applyMarking(sess *session.Session, req markingRequest) error {
	action := model.SuggestionAction(req.Action)
	switch {
	case action == model.ActionNone && req.Note == nil:
		if err := sess.ClearMarking(req.CommentID); err != nil {
			return err
		}
	case action != model.ActionNone:
		if err := sess.MarkSuggestion(req.CommentID, action); err != nil {
			return err
		}
	}
	if req.Note != nil {
		return sess.SetSuggestionNote(req.CommentID, *req.Note)
	}
	return nil
}

// --- History ---

func (s *Server) handleOpenVersion(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(r.PathValue("n"))
	if err != nil || n <= 0 {
		writeError(w, http.StatusBadRequest, "invalid version number")
		return
	}
	sess, ok := s.open(w, r)
	if !ok {
		return
	}
	if _, err := sess.OpenVersion(r.Context(), n); err != nil {
		writeSessionError(w, sess, err)
		return
	}
	writeState(w, sess)
}

func (s *Server) handleLoadMore(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.open(w, r)
	if !ok {
		return
	}
	if err := sess.LoadMoreVersions(r.Context()); err != nil {
		writeSessionError(w, sess, err)
		return
	}
	writeState(w, sess)
}

// --- Diff ---

type diffResponse struct {
	Name    string     `json:"name"`
	From    int        `json:"from"`
	Raw     string     `json:"raw"`
	Added   int        `json:"added"`
	Deleted int        `json:"deleted"`
	Hunks   []hunkJSON `json:"hunks"`
}

type hunkJSON struct {
	OldPosition int64      `json:"old_position"`
	OldLines    int64      `json:"old_lines"`
	NewPosition int64      `json:"new_position"`
	NewLines    int64      `json:"new_lines"`
	Lines       []lineJSON `json:"lines"`
}

type lineJSON struct {
	Op   string `json:"op"`
	Text string `json:"text"`
}

// handleDiff compares the editor content with the selected version, or
// with the baseline when nothing is selected.
func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.open(w, r)
	if !ok {
		return
	}
	st := sess.State()
	from := st.Selected
	if r.URL.Query().Get("against") == "baseline" || from == nil {
		from = st.Baseline
	}

	var (
		fromNum  int
		fromText string
	)
	oldName := "empty"
	if from != nil {
		fromNum = from.Number
		fromText = from.Content
		oldName = "v" + strconv.Itoa(from.Number)
	}

	ds, err := diff.Versions(oldName, "draft", fromText, st.Content, diff.DefaultContext)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := diffResponse{From: fromNum, Raw: ds.Raw, Hunks: []hunkJSON{}}
	_, resp.Added, resp.Deleted = ds.Stats()
	for _, f := range ds.Files {
		resp.Name = f.Name()
		for _, frag := range f.Fragments {
			h := hunkJSON{
				OldPosition: frag.OldPosition,
				OldLines:    frag.OldLines,
				NewPosition: frag.NewPosition,
				NewLines:    frag.NewLines,
			}
			for _, line := range frag.Lines {
				h.Lines = append(h.Lines, lineJSON{Op: line.Op.String(), Text: line.Line})
			}
			resp.Hunks = append(resp.Hunks, h)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
