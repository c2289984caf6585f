// Package session implements the editing session for one work: the single
// owner of its content, versions, baseline analysis and suggestion markings.
// It debounces auto-saves, coalesces them so only one is in flight, polls
// while another device holds the edit lock and gates submits on every
// suggestion having a decision.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/afterword/afterword/internal/client"
	"github.com/afterword/afterword/internal/draftcache"
	"github.com/afterword/afterword/internal/model"
)

// WorkAPI is the part of the backend client a session needs.
type WorkAPI interface {
	GetWork(ctx context.Context, workID string) (*model.Work, error)
	ListVersions(ctx context.Context, workID string, q client.VersionQuery) (*model.VersionList, error)
	GetVersion(ctx context.Context, workID string, number int) (*model.VersionDetail, error)
	UpdateWork(ctx context.Context, workID string, in client.UpdateInput) (client.UpdateResult, error)
	SubmitAndFetchAnalysis(ctx context.Context, workID string, in client.SubmitInput) (client.SubmitResult, *model.VersionDetail, error)
	Revert(ctx context.Context, workID string, target int, deviceID string) (int, error)
	RenameWork(ctx context.Context, workID, title string) error
}

// DraftStore keeps unsaved content locally. *draftcache.Cache implements it.
type DraftStore interface {
	Get(ctx context.Context, workID string) (draftcache.Draft, bool, error)
	Set(ctx context.Context, workID, content string) error
	Clear(ctx context.Context, workID string) error
}

const (
	DefaultAutoSaveDelay     = 3 * time.Second
	DefaultLockRetryInterval = 5 * time.Second
	DefaultLockRetryTick     = time.Second
)

// Options configures a Session. Zero durations take the defaults.
type Options struct {
	DeviceID          string
	AutoSaveDelay     time.Duration
	LockRetryInterval time.Duration
	LockRetryTick     time.Duration
	Drafts            DraftStore
	Logger            *slog.Logger
	// OnChange receives a snapshot after every state change. Calls are
	// serialized and stop once Close returns. It must not call Close.
	OnChange func(State)
}

// State is a snapshot of the session.
type State struct {
	WorkID          string
	Phase           model.Phase
	Locked          bool
	LockRetryIn     int
	Work            *model.Work
	Content         string
	Dirty           bool
	EssayPrompt     string
	ReflectionDraft string
	Versions        []model.VersionSummary
	NextCursor      string
	CanLoadMore     bool
	HiddenCount     int
	Selected        *model.VersionDetail
	Baseline        *model.VersionDetail
	Markings        model.Markings
	Unprocessed     int
	Err             *Error
	Info            string
	RecoveredDraft  string
	HasRecovered    bool
}

// Session is the controller for one work. Network operations are
// serialized; local edits never block on the network.
type Session struct {
	api    WorkAPI
	workID string
	opts   Options
	log    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// opMu serializes network operations.
	opMu     sync.Mutex
	notifyMu sync.Mutex

	mu              sync.Mutex
	closed          bool
	loaded          bool
	op              model.Phase
	locked          bool
	lockRetryIn     int
	lockStop        chan struct{}
	work            *model.Work
	content         string
	lastSynced      string
	essayPrompt     string
	reflectionDraft string
	versions        []model.VersionSummary
	nextCursor      string
	hiddenCount     int
	selected        *model.VersionDetail
	baseline        *model.VersionDetail
	markings        model.Markings
	err             *Error
	info            string
	recovered       string
	hasRecovered    bool

	saveTimer    *time.Timer
	saveInFlight bool
	saveIdle     chan struct{} // closed when the in-flight auto-save ends
	pending      string
	hasPending   bool
}

// New creates a session for workID. Nothing is fetched until LoadAll.
func New(api WorkAPI, workID string, opts Options) *Session {
	if opts.AutoSaveDelay <= 0 {
		opts.AutoSaveDelay = DefaultAutoSaveDelay
	}
	if opts.LockRetryInterval <= 0 {
		opts.LockRetryInterval = DefaultLockRetryInterval
	}
	if opts.LockRetryTick <= 0 {
		opts.LockRetryTick = DefaultLockRetryTick
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		api:      api,
		workID:   workID,
		opts:     opts,
		log:      opts.Logger.With("work", workID),
		ctx:      ctx,
		cancel:   cancel,
		markings: model.Markings{},
	}
}

// WorkID returns the id of the work this session edits.
func (s *Session) WorkID() string { return s.workID }

// Close stops all timers and cancels in-flight requests. No OnChange
// call starts after Close returns.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.stopSaveTimerLocked()
	if s.lockStop != nil {
		close(s.lockStop)
		s.lockStop = nil
	}
	s.mu.Unlock()
	s.cancel()

	// Wait out a callback that is already running.
	s.notifyMu.Lock()
	s.notifyMu.Unlock()
}

// State returns a snapshot.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() State {
	st := State{
		WorkID:          s.workID,
		Phase:           s.phaseLocked(),
		Locked:          s.locked,
		LockRetryIn:     s.lockRetryIn,
		Content:         s.content,
		Dirty:           s.content != s.lastSynced,
		EssayPrompt:     s.essayPrompt,
		ReflectionDraft: s.reflectionDraft,
		Versions:        append([]model.VersionSummary(nil), s.versions...),
		NextCursor:      s.nextCursor,
		CanLoadMore:     s.nextCursor != "",
		HiddenCount:     s.hiddenCount,
		Selected:        s.selected,
		Baseline:        s.baseline,
		Markings:        s.markings.Clone(),
		Unprocessed:     len(s.markings.Missing(requiredIDs(s.baseline))),
		Err:             s.err,
		Info:            s.info,
		RecoveredDraft:  s.recovered,
		HasRecovered:    s.hasRecovered,
	}
	if s.work != nil {
		w := *s.work
		st.Work = &w
	}
	return st
}

func (s *Session) phaseLocked() model.Phase {
	if s.op != model.PhaseIdle {
		return s.op
	}
	if s.locked {
		return model.PhaseLocked
	}
	return model.PhaseIdle
}

func (s *Session) notify() {
	if s.opts.OnChange == nil {
		return
	}
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	st := s.snapshotLocked()
	s.mu.Unlock()
	s.opts.OnChange(st)
}

// bind ties a caller context to the session lifetime.
func (s *Session) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// beginLocked enters phase p for a foreground operation.
func (s *Session) beginLocked(p model.Phase) {
	s.op = p
	s.err = nil
	s.info = ""
}

// failLocked records err and enters read-only mode when it is a lock error.
func (s *Session) failLocked(err error) *Error {
	e := MapError(err)
	s.err = e
	if e.Kind == KindLocked {
		s.setLockedLocked()
	}
	s.log.Warn("operation failed", "kind", e.Kind, "error", err)
	return e
}

// guardLocked refuses work on a closed session and, when write is set,
// while the lock is held elsewhere.
func (s *Session) guardLocked(write bool) error {
	if s.closed {
		return ErrClosed
	}
	if write && s.locked {
		return ErrReadOnly
	}
	return nil
}

// requiredIDs lists the baseline comments that need a decision.
func requiredIDs(baseline *model.VersionDetail) []string {
	if baseline == nil {
		return nil
	}
	return baseline.Analysis.CommentIDs()
}

func baselineNumber(d *model.VersionDetail) int {
	if d == nil {
		return 0
	}
	return d.Number
}

// LoadAll fetches the work and its version list concurrently, then the
// latest submitted version as the baseline. On failure the previous state
// is kept.
func (s *Session) LoadAll(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.loadAll(ctx)
}

func (s *Session) loadAll(ctx context.Context) error {
	ctx, cancel := s.bind(ctx)
	defer cancel()

	s.mu.Lock()
	if err := s.guardLocked(false); err != nil {
		s.mu.Unlock()
		return err
	}
	outer := s.op
	if outer == model.PhaseIdle {
		s.beginLocked(model.PhaseLoading)
	}
	s.mu.Unlock()
	s.notify()

	var (
		work *model.Work
		list *model.VersionList
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		w, err := s.api.GetWork(gctx, s.workID)
		work = w
		return err
	})
	g.Go(func() error {
		l, err := s.api.ListVersions(gctx, s.workID, client.VersionQuery{Type: client.VersionsAll})
		list = l
		return err
	})
	err := g.Wait()

	var baseline *model.VersionDetail
	if err == nil {
		if latest, ok := model.LatestSubmitted(list.Versions); ok {
			baseline, err = s.api.GetVersion(ctx, s.workID, latest.Number)
		}
	}

	s.mu.Lock()
	s.op = outer
	if err != nil {
		e := s.failLocked(err)
		s.mu.Unlock()
		s.notify()
		return e
	}

	if baselineNumber(baseline) != baselineNumber(s.baseline) {
		s.markings = model.Markings{}
	}
	rearm := false
	if s.loaded && s.content != s.lastSynced {
		// Unsaved local edits survive a reload and are saved again.
		rearm = s.content != work.Content
	} else {
		s.content = work.Content
	}
	s.work = work
	s.lastSynced = work.Content
	s.essayPrompt = work.EssayPrompt
	s.versions = append([]model.VersionSummary(nil), list.Versions...)
	s.nextCursor = list.NextCursor
	s.hiddenCount = list.HiddenCount
	if s.selected == nil {
		s.selected = baseline
	}
	s.baseline = baseline
	s.err = nil
	s.hasPending = false
	s.loaded = true
	s.clearLockLocked()
	if rearm {
		s.armSaveTimerLocked()
	}
	s.mu.Unlock()

	s.recoverDraft(ctx, work.Content)
	s.log.Debug("loaded", "version", work.CurrentVersion, "versions", len(list.Versions), "baseline", baselineNumber(baseline))
	s.notify()
	return nil
}

func (s *Session) recoverDraft(ctx context.Context, server string) {
	if s.opts.Drafts == nil {
		return
	}
	d, ok, err := s.opts.Drafts.Get(ctx, s.workID)
	if err != nil {
		s.log.Warn("reading local draft", "error", err)
		return
	}
	if !ok {
		return
	}
	if d.Content == server {
		if err := s.opts.Drafts.Clear(ctx, s.workID); err != nil {
			s.log.Warn("clearing local draft", "error", err)
		}
		return
	}
	s.mu.Lock()
	s.recovered = d.Content
	s.hasRecovered = true
	s.mu.Unlock()
	s.log.Info("found unsaved local draft", "saved_at", d.Timestamp)
}

// RestoreDraft replaces the content with the recovered local draft. It
// reports false when there is nothing to restore.
func (s *Session) RestoreDraft() (bool, error) {
	s.mu.Lock()
	if err := s.guardLocked(true); err != nil {
		s.mu.Unlock()
		return false, err
	}
	if !s.hasRecovered {
		s.mu.Unlock()
		return false, nil
	}
	s.content = s.recovered
	s.recovered, s.hasRecovered = "", false
	s.info = "Restored unsaved local draft"
	s.armSaveTimerLocked()
	s.mu.Unlock()
	s.notify()
	return true, nil
}

// DiscardDraft drops the recovered local draft.
func (s *Session) DiscardDraft(ctx context.Context) error {
	s.mu.Lock()
	s.recovered, s.hasRecovered = "", false
	s.mu.Unlock()
	s.notify()
	if s.opts.Drafts == nil {
		return nil
	}
	return s.opts.Drafts.Clear(ctx, s.workID)
}

// SetContent replaces the local content and re-arms the auto-save timer.
func (s *Session) SetContent(text string) error {
	s.mu.Lock()
	if err := s.guardLocked(true); err != nil {
		s.mu.Unlock()
		return err
	}
	s.content = text
	s.armSaveTimerLocked()
	s.mu.Unlock()
	s.notify()
	return nil
}

// SetEssayPrompt edits the prompt locally; an explicit Save sends it.
func (s *Session) SetEssayPrompt(text string) error {
	s.mu.Lock()
	if err := s.guardLocked(true); err != nil {
		s.mu.Unlock()
		return err
	}
	s.essayPrompt = text
	s.mu.Unlock()
	s.notify()
	return nil
}

// SetReflectionDraft edits the reflection sent with the next submit.
func (s *Session) SetReflectionDraft(text string) error {
	s.mu.Lock()
	if err := s.guardLocked(false); err != nil {
		s.mu.Unlock()
		return err
	}
	s.reflectionDraft = text
	s.mu.Unlock()
	s.notify()
	return nil
}

// Save persists the content. autoSave=false creates a visible version,
// sends the essay prompt and reloads the session.
func (s *Session) Save(ctx context.Context, autoSave bool) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	ctx, cancel := s.bind(ctx)
	defer cancel()

	s.mu.Lock()
	if err := s.guardLocked(true); err != nil {
		s.mu.Unlock()
		return err
	}
	s.beginLocked(model.PhaseSaving)
	content := s.content
	in := client.UpdateInput{Content: content, DeviceID: s.opts.DeviceID, AutoSave: autoSave}
	if !autoSave {
		prompt := s.essayPrompt
		in.EssayPrompt = &prompt
	}
	s.mu.Unlock()
	s.notify()

	res, err := s.api.UpdateWork(ctx, s.workID, in)
	if err != nil {
		s.mu.Lock()
		s.op = model.PhaseIdle
		e := s.failLocked(err)
		s.mu.Unlock()
		s.notify()
		return e
	}

	s.mu.Lock()
	s.lastSynced = content
	s.mu.Unlock()

	var loadErr error
	if !autoSave {
		loadErr = s.loadAll(ctx)
	}

	s.mu.Lock()
	s.op = model.PhaseIdle
	if loadErr == nil {
		s.clearLockLocked()
		if res.Created {
			s.info = fmt.Sprintf("Saved with new version %d", res.Version)
		} else {
			s.info = "Auto-saved successfully"
		}
	}
	synced := s.content == s.lastSynced
	s.mu.Unlock()

	if synced {
		s.clearDraft(ctx)
	}
	s.notify()
	return loadErr
}

// AutoSave silently persists the current content. Only one auto-save is
// in flight at a time: a call made meanwhile parks the latest content in
// a pending slot and returns; the in-flight call saves it afterwards if it
// still differs from what was last synced.
func (s *Session) AutoSave(ctx context.Context) error {
	s.mu.Lock()
	if err := s.guardLocked(true); err != nil {
		s.mu.Unlock()
		return err
	}
	content := s.content
	if s.saveInFlight {
		s.pending, s.hasPending = content, true
		s.mu.Unlock()
		return nil
	}
	if content == s.lastSynced {
		s.mu.Unlock()
		return nil
	}
	s.saveInFlight = true
	s.saveIdle = make(chan struct{})
	s.hasPending = false
	s.mu.Unlock()

	for {
		err := s.autoSaveOnce(ctx, content)

		s.mu.Lock()
		next, again := s.pending, s.hasPending
		s.hasPending = false
		if !again || next == s.lastSynced || s.closed || s.locked {
			s.saveInFlight = false
			close(s.saveIdle)
			s.mu.Unlock()
			return err
		}
		content = next
		s.mu.Unlock()
	}
}

// Flush cancels the debounce timer and auto-saves until the content is
// synced, waiting for an auto-save already in flight. It returns the first
// save error.
func (s *Session) Flush(ctx context.Context) error {
	s.mu.Lock()
	s.stopSaveTimerLocked()
	s.mu.Unlock()

	for {
		s.mu.Lock()
		if err := s.guardLocked(true); err != nil {
			s.mu.Unlock()
			return err
		}
		if s.content == s.lastSynced {
			s.mu.Unlock()
			return nil
		}
		idle := s.saveIdle
		busy := s.saveInFlight
		s.mu.Unlock()

		if busy {
			select {
			case <-idle:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := s.AutoSave(ctx); err != nil {
			return err
		}
	}
}

func (s *Session) autoSaveOnce(ctx context.Context, content string) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	ctx, cancel := s.bind(ctx)
	defer cancel()

	s.mu.Lock()
	if s.closed || s.locked {
		s.mu.Unlock()
		return nil
	}
	// Stale: a newer edit re-armed the timer, or an operation replaced
	// the content while this save waited.
	if content != s.content || content == s.lastSynced {
		s.mu.Unlock()
		return nil
	}
	s.beginLocked(model.PhaseSaving)
	s.mu.Unlock()
	s.notify()

	_, err := s.api.UpdateWork(ctx, s.workID, client.UpdateInput{
		Content:  content,
		DeviceID: s.opts.DeviceID,
		AutoSave: true,
	})

	s.mu.Lock()
	s.op = model.PhaseIdle
	var result error
	if err != nil {
		result = s.failLocked(err)
	} else {
		s.lastSynced = content
		s.clearLockLocked()
		s.info = "Auto-saved successfully"
	}
	synced := s.content == s.lastSynced
	s.mu.Unlock()

	if err == nil && synced {
		s.clearDraft(ctx)
	}
	s.notify()
	return result
}

func (s *Session) clearDraft(ctx context.Context) {
	if s.opts.Drafts == nil {
		return
	}
	if err := s.opts.Drafts.Clear(ctx, s.workID); err != nil {
		s.log.Warn("clearing local draft", "error", err)
	}
}

// MarkSuggestion records a decision for a sentence comment.
func (s *Session) MarkSuggestion(commentID string, action model.SuggestionAction) error {
	if !action.Valid() {
		return fmt.Errorf("invalid suggestion action %q", action)
	}
	s.mu.Lock()
	if err := s.guardLocked(false); err != nil {
		s.mu.Unlock()
		return err
	}
	m := s.markings[commentID]
	m.Action = action
	s.markings[commentID] = m
	s.mu.Unlock()
	s.notify()
	return nil
}

// SetSuggestionNote attaches a note. A comment without a decision is
// marked resolved.
func (s *Session) SetSuggestionNote(commentID, note string) error {
	s.mu.Lock()
	if err := s.guardLocked(false); err != nil {
		s.mu.Unlock()
		return err
	}
	m := s.markings[commentID]
	if m.Action == model.ActionNone {
		m.Action = model.ActionResolved
	}
	m.Note = note
	s.markings[commentID] = m
	s.mu.Unlock()
	s.notify()
	return nil
}

// ClearMarking forgets the decision and note for a comment.
func (s *Session) ClearMarking(commentID string) error {
	s.mu.Lock()
	if err := s.guardLocked(false); err != nil {
		s.mu.Unlock()
		return err
	}
	delete(s.markings, commentID)
	s.mu.Unlock()
	s.notify()
	return nil
}

// Submit sends the content for analysis, with reflection or else the
// reflection draft. It is refused without a network call while any
// baseline comment lacks a decision. On success the new
// version becomes the baseline and markings are cleared.
func (s *Session) Submit(ctx context.Context, reflection string) (*model.VersionDetail, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	ctx, cancel := s.bind(ctx)
	defer cancel()

	s.mu.Lock()
	if err := s.guardLocked(true); err != nil {
		s.mu.Unlock()
		return nil, err
	}

	required := requiredIDs(s.baseline)
	if missing := s.markings.Missing(required); len(missing) > 0 {
		e := unprocessedError(len(missing), len(required))
		s.err = e
		s.info = ""
		s.mu.Unlock()
		s.notify()
		return nil, e
	}

	s.stopSaveTimerLocked()
	s.beginLocked(model.PhaseSubmitting)
	if reflection == "" {
		reflection = s.reflectionDraft
	}
	in := client.SubmitInput{
		Content:       s.content,
		DeviceID:      s.opts.DeviceID,
		FAOReflection: reflection,
		Actions:       s.markings.Clone(),
	}
	s.mu.Unlock()
	s.notify()

	res, detail, err := s.api.SubmitAndFetchAnalysis(ctx, s.workID, in)
	if err != nil {
		s.mu.Lock()
		s.op = model.PhaseIdle
		e := s.failLocked(err)
		s.rearmIfDirtyLocked()
		s.mu.Unlock()
		s.notify()
		return nil, e
	}

	s.mu.Lock()
	s.lastSynced = in.Content
	s.mu.Unlock()

	loadErr := s.loadAll(ctx)

	s.mu.Lock()
	s.op = model.PhaseIdle
	s.selected = detail
	s.baseline = detail
	s.markings = model.Markings{}
	s.reflectionDraft = ""
	if loadErr == nil {
		s.clearLockLocked()
		s.info = fmt.Sprintf("Submitted version %d and loaded analysis", res.Version)
	}
	s.mu.Unlock()
	s.log.Info("submitted", "version", res.Version, "analysis", res.AnalysisID)
	s.notify()
	return detail, loadErr
}

// OpenVersion loads one version for inspection. The baseline is unchanged.
func (s *Session) OpenVersion(ctx context.Context, number int) (*model.VersionDetail, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	ctx, cancel := s.bind(ctx)
	defer cancel()

	s.mu.Lock()
	if err := s.guardLocked(false); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.err, s.info = nil, ""
	s.mu.Unlock()

	detail, err := s.api.GetVersion(ctx, s.workID, number)

	s.mu.Lock()
	if err != nil {
		e := s.failLocked(err)
		s.mu.Unlock()
		s.notify()
		return nil, e
	}
	s.clearLockLocked()
	s.selected = detail
	s.info = fmt.Sprintf("Loaded version %d", number)
	s.mu.Unlock()
	s.notify()
	return detail, nil
}

// Revert creates a new draft from target's content and selects it.
func (s *Session) Revert(ctx context.Context, target int) (*model.VersionDetail, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	ctx, cancel := s.bind(ctx)
	defer cancel()

	s.mu.Lock()
	if err := s.guardLocked(true); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.stopSaveTimerLocked()
	s.beginLocked(model.PhaseReverting)
	s.mu.Unlock()
	s.notify()

	fail := func(err error) (*model.VersionDetail, error) {
		s.mu.Lock()
		s.op = model.PhaseIdle
		e := s.failLocked(err)
		s.rearmIfDirtyLocked()
		s.mu.Unlock()
		s.notify()
		return nil, e
	}

	newVersion, err := s.api.Revert(ctx, s.workID, target, s.opts.DeviceID)
	if err != nil {
		return fail(err)
	}
	detail, err := s.api.GetVersion(ctx, s.workID, newVersion)
	if err != nil {
		return fail(err)
	}

	// The reverted content replaces unsaved edits.
	s.mu.Lock()
	s.lastSynced = s.content
	s.mu.Unlock()

	loadErr := s.loadAll(ctx)

	s.mu.Lock()
	s.op = model.PhaseIdle
	s.selected = detail
	if loadErr == nil {
		s.clearLockLocked()
		s.info = fmt.Sprintf("Reverted successfully. New draft version %d", newVersion)
	}
	s.mu.Unlock()
	s.notify()
	return detail, loadErr
}

// LoadMoreVersions fetches the next page of history and appends it.
func (s *Session) LoadMoreVersions(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	ctx, cancel := s.bind(ctx)
	defer cancel()

	s.mu.Lock()
	if err := s.guardLocked(false); err != nil {
		s.mu.Unlock()
		return err
	}
	cursor := s.nextCursor
	s.mu.Unlock()
	if cursor == "" {
		return nil
	}

	list, err := s.api.ListVersions(ctx, s.workID, client.VersionQuery{Type: client.VersionsAll, Cursor: cursor})

	s.mu.Lock()
	if err != nil {
		e := s.failLocked(err)
		s.mu.Unlock()
		s.notify()
		return e
	}
	seen := make(map[int]bool, len(s.versions))
	for _, v := range s.versions {
		seen[v.Number] = true
	}
	for _, v := range list.Versions {
		if !seen[v.Number] {
			s.versions = append(s.versions, v)
			seen[v.Number] = true
		}
	}
	s.nextCursor = list.NextCursor
	s.hiddenCount = list.HiddenCount
	s.clearLockLocked()
	s.mu.Unlock()
	s.notify()
	return nil
}

// Rename sets the work title. An empty title is rejected locally.
func (s *Session) Rename(ctx context.Context, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		e := &Error{Kind: KindValidationFailed, Message: "Title cannot be empty."}
		s.mu.Lock()
		s.err = e
		s.mu.Unlock()
		s.notify()
		return e
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()
	ctx, cancel := s.bind(ctx)
	defer cancel()

	s.mu.Lock()
	if err := s.guardLocked(true); err != nil {
		s.mu.Unlock()
		return err
	}
	s.err, s.info = nil, ""
	s.mu.Unlock()

	err := s.api.RenameWork(ctx, s.workID, title)

	s.mu.Lock()
	if err != nil {
		e := s.failLocked(err)
		s.mu.Unlock()
		s.notify()
		return e
	}
	if s.work != nil {
		s.work.Title = title
	}
	s.clearLockLocked()
	s.info = "Renamed to " + title
	s.mu.Unlock()
	s.notify()
	return nil
}
