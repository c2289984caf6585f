package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afterword/afterword/internal/client"
	"github.com/afterword/afterword/internal/draftcache"
	"github.com/afterword/afterword/internal/kv"
	"github.com/afterword/afterword/internal/model"
)

// fakeAPI is an in-memory WorkAPI for one work.
type fakeAPI struct {
	mu       sync.Mutex
	work     model.Work
	versions []model.VersionSummary
	details  map[int]*model.VersionDetail
	pages    map[string]*model.VersionList

	updates      []client.UpdateInput
	submits      []client.SubmitInput
	renames      []string
	getWorkCalls int

	// updateGate, when set, blocks every UpdateWork until a value is sent.
	updateGate    chan struct{}
	updateStarted chan string
	updateErrs     []error
	getWorkErrs    []error
	submitErrs     []error
	getVersionErrs []error
}

// popErr takes the next queued error, if any. Callers hold f.mu.
func popErr(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

func lockedErr() error {
	return &client.APIError{Status: http.StatusLocked, Code: client.CodeLocked, Message: "locked"}
}

// newW1 builds work w1: current version 3, submitted baseline 2 with two
// sentence comments.
func newW1() *fakeAPI {
	f := &fakeAPI{
		work: model.Work{ID: "w1", Title: "Essay", Content: "Draft three.", CurrentVersion: 3},
		versions: []model.VersionSummary{
			{Number: 1, Submitted: true, ChangeType: model.ChangeSubmission},
			{Number: 2, Submitted: true, ChangeType: model.ChangeSubmission},
			{Number: 3, Submitted: false, ChangeType: model.ChangeDraftEdit},
		},
		details: map[int]*model.VersionDetail{},
		pages:   map[string]*model.VersionList{},
	}
	f.details[1] = &model.VersionDetail{Number: 1, Content: "First.", Submitted: true}
	f.details[2] = &model.VersionDetail{
		Number: 2, Content: "Second try.", Submitted: true,
		Analysis: &model.Analysis{ID: "a2", SentenceComments: []model.SentenceComment{
			{ID: "c1", OriginalText: "Second"},
			{ID: "c2", OriginalText: "try"},
		}},
	}
	f.details[3] = &model.VersionDetail{Number: 3, Content: "Draft three."}
	return f
}

func (f *fakeAPI) GetWork(ctx context.Context, workID string) (*model.Work, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getWorkCalls++
	if len(f.getWorkErrs) > 0 {
		err := f.getWorkErrs[0]
		f.getWorkErrs = f.getWorkErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	w := f.work
	return &w, nil
}

func (f *fakeAPI) ListVersions(ctx context.Context, workID string, q client.VersionQuery) (*model.VersionList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if page, ok := f.pages[q.Cursor]; ok {
		cp := *page
		return &cp, nil
	}
	return &model.VersionList{
		CurrentVersion: f.work.CurrentVersion,
		Versions:       append([]model.VersionSummary(nil), f.versions...),
	}, nil
}

func (f *fakeAPI) GetVersion(ctx context.Context, workID string, number int) (*model.VersionDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := popErr(&f.getVersionErrs); err != nil {
		return nil, err
	}
	d, ok := f.details[number]
	if !ok {
		return nil, &client.APIError{Status: http.StatusNotFound, Code: client.CodeNotFound}
	}
	cp := *d
	return &cp, nil
}

func (f *fakeAPI) UpdateWork(ctx context.Context, workID string, in client.UpdateInput) (client.UpdateResult, error) {
	f.mu.Lock()
	gate, started := f.updateGate, f.updateStarted
	f.mu.Unlock()
	if started != nil {
		started <- in.Content
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return client.UpdateResult{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, in)
	if len(f.updateErrs) > 0 {
		err := f.updateErrs[0]
		f.updateErrs = f.updateErrs[1:]
		if err != nil {
			return client.UpdateResult{}, err
		}
	}
	f.work.Content = in.Content
	if in.EssayPrompt != nil {
		f.work.EssayPrompt = *in.EssayPrompt
	}
	if in.AutoSave {
		return client.UpdateResult{}, nil
	}
	n := f.addVersionLocked(in.Content, false, model.ChangeDraftEdit, nil)
	return client.UpdateResult{Created: true, Version: n}, nil
}

func (f *fakeAPI) addVersionLocked(content string, submitted bool, change string, a *model.Analysis) int {
	n := f.work.CurrentVersion + 1
	f.work.CurrentVersion = n
	f.work.Content = content
	f.versions = append(f.versions, model.VersionSummary{Number: n, Submitted: submitted, ChangeType: change})
	f.details[n] = &model.VersionDetail{Number: n, Content: content, Submitted: submitted, ChangeType: change, Analysis: a}
	return n
}

func (f *fakeAPI) SubmitAndFetchAnalysis(ctx context.Context, workID string, in client.SubmitInput) (client.SubmitResult, *model.VersionDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits = append(f.submits, in)
	if err := popErr(&f.submitErrs); err != nil {
		return client.SubmitResult{}, nil, err
	}
	a := &model.Analysis{ID: "fresh", SentenceComments: []model.SentenceComment{{ID: "c3", OriginalText: "new"}}}
	n := f.addVersionLocked(in.Content, true, model.ChangeSubmission, a)
	cp := *f.details[n]
	return client.SubmitResult{Version: n, AnalysisID: a.ID}, &cp, nil
}

func (f *fakeAPI) Revert(ctx context.Context, workID string, target int, deviceID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	src, ok := f.details[target]
	if !ok {
		return 0, &client.APIError{Status: http.StatusNotFound, Code: client.CodeNotFound}
	}
	return f.addVersionLocked(src.Content, false, model.ChangeRevert, nil), nil
}

func (f *fakeAPI) RenameWork(ctx context.Context, workID, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.renames = append(f.renames, title)
	f.work.Title = title
	return nil
}

func (f *fakeAPI) counts() (updates, submits, getWork int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.updates), len(f.submits), f.getWorkCalls
}

func newTestSession(t *testing.T, api WorkAPI, opts Options) *Session {
	t.Helper()
	if opts.AutoSaveDelay == 0 {
		opts.AutoSaveDelay = time.Hour
	}
	opts.DeviceID = "dev-test"
	s := New(api, "w1", opts)
	t.Cleanup(s.Close)
	return s
}

func TestLoadAllSetsBaseline(t *testing.T) {
	api := newW1()
	s := newTestSession(t, api, Options{})

	require.NoError(t, s.LoadAll(context.Background()))

	st := s.State()
	assert.Equal(t, model.PhaseIdle, st.Phase)
	assert.Equal(t, "Draft three.", st.Content)
	assert.False(t, st.Dirty)
	require.NotNil(t, st.Baseline)
	assert.Equal(t, 2, st.Baseline.Number)
	require.NotNil(t, st.Selected)
	assert.Equal(t, 2, st.Selected.Number)
	assert.Len(t, st.Versions, 3)
	assert.Equal(t, 2, st.Unprocessed)
}

func TestLoadAllFailureKeepsState(t *testing.T) {
	api := newW1()
	s := newTestSession(t, api, Options{})
	require.NoError(t, s.LoadAll(context.Background()))

	api.mu.Lock()
	api.getWorkErrs = []error{&client.APIError{Status: http.StatusNotFound}}
	api.mu.Unlock()

	err := s.LoadAll(context.Background())
	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, KindNotFound, se.Kind)

	st := s.State()
	require.NotNil(t, st.Work)
	assert.Equal(t, "Draft three.", st.Content)
	assert.Equal(t, "Work not found.", st.Err.Message)
	assert.False(t, st.Locked)
}

func TestAutoSaveIsIdempotent(t *testing.T) {
	api := newW1()
	s := newTestSession(t, api, Options{})
	ctx := context.Background()
	require.NoError(t, s.LoadAll(ctx))

	require.NoError(t, s.SetContent("edited"))
	require.NoError(t, s.AutoSave(ctx))
	require.NoError(t, s.AutoSave(ctx))

	updates, _, _ := api.counts()
	assert.Equal(t, 1, updates)
	assert.False(t, s.State().Dirty)
	assert.Equal(t, "Auto-saved successfully", s.State().Info)
}

func TestAutoSaveCoalescesToLatestContent(t *testing.T) {
	api := newW1()
	gate := make(chan struct{})
	started := make(chan string, 4)
	api.updateGate, api.updateStarted = gate, started

	s := newTestSession(t, api, Options{})
	ctx := context.Background()
	require.NoError(t, s.LoadAll(ctx))

	require.NoError(t, s.SetContent("A"))
	done := make(chan error, 1)
	go func() { done <- s.AutoSave(ctx) }()
	assert.Equal(t, "A", <-started)

	require.NoError(t, s.SetContent("B"))
	require.NoError(t, s.AutoSave(ctx))
	require.NoError(t, s.SetContent("C"))
	require.NoError(t, s.AutoSave(ctx))

	gate <- struct{}{}
	assert.Equal(t, "C", <-started)
	gate <- struct{}{}
	require.NoError(t, <-done)

	api.mu.Lock()
	defer api.mu.Unlock()
	require.Len(t, api.updates, 2)
	assert.Equal(t, "A", api.updates[0].Content)
	assert.Equal(t, "C", api.updates[1].Content)
	assert.True(t, api.updates[1].AutoSave)
}

func TestDebouncedAutoSave(t *testing.T) {
	api := newW1()
	drafts := draftcache.New(kv.NewMemoryStore())
	s := newTestSession(t, api, Options{AutoSaveDelay: 20 * time.Millisecond, Drafts: drafts})
	ctx := context.Background()
	require.NoError(t, s.LoadAll(ctx))

	require.NoError(t, s.SetContent("one"))
	require.NoError(t, s.SetContent("two"))

	// The draft is cleared once the server has the content.
	require.Eventually(t, func() bool {
		_, cached, err := drafts.Get(ctx, "w1")
		return err == nil && !cached && !s.State().Dirty
	}, time.Second, 5*time.Millisecond)

	api.mu.Lock()
	defer api.mu.Unlock()
	require.Len(t, api.updates, 1)
	assert.Equal(t, "two", api.updates[0].Content)
}

func TestExplicitSaveCreatesVersion(t *testing.T) {
	api := newW1()
	s := newTestSession(t, api, Options{})
	ctx := context.Background()
	require.NoError(t, s.LoadAll(ctx))

	require.NoError(t, s.SetEssayPrompt("Discuss a turning point."))
	require.NoError(t, s.SetContent("Checkpoint."))
	require.NoError(t, s.Save(ctx, false))

	st := s.State()
	assert.Equal(t, "Saved with new version 4", st.Info)
	assert.Len(t, st.Versions, 4)
	assert.Equal(t, "Checkpoint.", st.Content)

	api.mu.Lock()
	defer api.mu.Unlock()
	require.NotNil(t, api.updates[0].EssayPrompt)
	assert.Equal(t, "Discuss a turning point.", *api.updates[0].EssayPrompt)
}

func TestSubmitGateAndBaselineReset(t *testing.T) {
	api := newW1()
	s := newTestSession(t, api, Options{})
	ctx := context.Background()
	require.NoError(t, s.LoadAll(ctx))

	require.NoError(t, s.MarkSuggestion("c1", model.ActionResolved))
	_, err := s.Submit(ctx, "")
	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, KindSuggestionsNotProcessed, se.Kind)
	assert.Contains(t, se.Message, "1 unprocessed sentence comments (total: 2)")
	assert.Equal(t, 1, se.Missing)
	assert.Equal(t, 2, se.Total)

	_, submits, _ := api.counts()
	assert.Equal(t, 0, submits, "gate must not reach the network")

	require.NoError(t, s.MarkSuggestion("c2", model.ActionRejected))
	require.NoError(t, s.SetReflectionDraft("I cut filler words."))
	detail, err := s.Submit(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 4, detail.Number)
	require.NotNil(t, detail.Analysis)
	assert.Equal(t, "fresh", detail.Analysis.ID)

	st := s.State()
	assert.Empty(t, st.Markings)
	require.NotNil(t, st.Baseline)
	assert.Equal(t, 4, st.Baseline.Number)
	assert.Equal(t, 4, st.Selected.Number)
	assert.Equal(t, "Submitted version 4 and loaded analysis", st.Info)
	assert.Equal(t, "", st.ReflectionDraft)

	api.mu.Lock()
	defer api.mu.Unlock()
	require.Len(t, api.submits, 1)
	assert.Equal(t, "I cut filler words.", api.submits[0].FAOReflection)
	assert.Equal(t, model.ActionRejected, api.submits[0].Actions["c2"].Action)
}

func TestRefusedSubmitKeepsPendingAutoSave(t *testing.T) {
	api := newW1()
	s := newTestSession(t, api, Options{AutoSaveDelay: 30 * time.Millisecond})
	ctx := context.Background()
	require.NoError(t, s.LoadAll(ctx))

	require.NoError(t, s.SetContent("typed just before submit"))
	_, err := s.Submit(ctx, "")
	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, KindSuggestionsNotProcessed, se.Kind)

	require.Eventually(t, func() bool {
		return !s.State().Dirty
	}, time.Second, 5*time.Millisecond)

	api.mu.Lock()
	defer api.mu.Unlock()
	require.Len(t, api.updates, 1)
	assert.Equal(t, "typed just before submit", api.updates[0].Content)
	assert.True(t, api.updates[0].AutoSave)
}

func TestFailedSubmitRearmsAutoSave(t *testing.T) {
	api := newW1()
	api.submitErrs = []error{&client.APIError{Status: http.StatusBadGateway, Code: client.CodeLLMFailed}}
	s := newTestSession(t, api, Options{AutoSaveDelay: 30 * time.Millisecond})
	ctx := context.Background()
	require.NoError(t, s.LoadAll(ctx))
	require.NoError(t, s.MarkSuggestion("c1", model.ActionResolved))
	require.NoError(t, s.MarkSuggestion("c2", model.ActionResolved))

	require.NoError(t, s.SetContent("edited then submitted"))
	_, err := s.Submit(ctx, "")
	require.Error(t, err)

	require.Eventually(t, func() bool {
		return !s.State().Dirty
	}, time.Second, 5*time.Millisecond)
	updates, submits, _ := api.counts()
	assert.Equal(t, 1, updates)
	assert.Equal(t, 1, submits)
}

func TestSubmitWithoutBaselineIsNotGated(t *testing.T) {
	api := newW1()
	api.versions = api.versions[2:]
	s := newTestSession(t, api, Options{})
	ctx := context.Background()
	require.NoError(t, s.LoadAll(ctx))
	assert.Nil(t, s.State().Baseline)

	_, err := s.Submit(ctx, "")
	require.NoError(t, err)
}

func TestNoteDefaultsToResolved(t *testing.T) {
	s := newTestSession(t, newW1(), Options{})

	require.NoError(t, s.SetSuggestionNote("x", "rewrote the clause"))
	assert.Equal(t, model.Marking{Action: model.ActionResolved, Note: "rewrote the clause"}, s.State().Markings["x"])

	require.NoError(t, s.MarkSuggestion("y", model.ActionRejected))
	require.NoError(t, s.SetSuggestionNote("y", "keeping it"))
	assert.Equal(t, model.ActionRejected, s.State().Markings["y"].Action)

	require.NoError(t, s.ClearMarking("y"))
	_, ok := s.State().Markings["y"]
	assert.False(t, ok)

	assert.Error(t, s.MarkSuggestion("z", model.SuggestionAction("maybe")))
}

func TestMarkingsClearedWhenBaselineChanges(t *testing.T) {
	api := newW1()
	s := newTestSession(t, api, Options{})
	ctx := context.Background()
	require.NoError(t, s.LoadAll(ctx))
	require.NoError(t, s.MarkSuggestion("c1", model.ActionResolved))

	require.NoError(t, s.LoadAll(ctx))
	assert.Len(t, s.State().Markings, 1, "same baseline keeps markings")

	api.mu.Lock()
	api.addVersionLocked("elsewhere", true, model.ChangeSubmission, &model.Analysis{})
	api.mu.Unlock()

	require.NoError(t, s.LoadAll(ctx))
	assert.Empty(t, s.State().Markings)
}

func TestLockRecovery(t *testing.T) {
	api := newW1()
	api.updateErrs = []error{lockedErr()}
	s := newTestSession(t, api, Options{
		LockRetryInterval: 60 * time.Millisecond,
		LockRetryTick:     20 * time.Millisecond,
	})
	ctx := context.Background()
	require.NoError(t, s.LoadAll(ctx))

	require.NoError(t, s.SetContent("typed before lock"))
	err := s.Save(ctx, true)
	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, KindLocked, se.Kind)

	st := s.State()
	assert.True(t, st.Locked)
	assert.Equal(t, model.PhaseLocked, st.Phase)
	assert.Positive(t, st.LockRetryIn)
	assert.LessOrEqual(t, st.LockRetryIn, 3)
	assert.ErrorIs(t, s.SetContent("more"), ErrReadOnly)

	require.Eventually(t, func() bool {
		return !s.State().Locked
	}, time.Second, 5*time.Millisecond)

	_, _, loads := api.counts()
	assert.Equal(t, 2, loads)

	time.Sleep(150 * time.Millisecond)
	_, _, loads = api.counts()
	assert.Equal(t, 2, loads, "no further polls once unlocked")

	st = s.State()
	assert.Equal(t, 0, st.LockRetryIn)
	assert.Equal(t, "typed before lock", st.Content, "unsaved edits survive the reload")
	assert.True(t, st.Dirty)
}

func TestLockPollingContinuesWhileLocked(t *testing.T) {
	api := newW1()
	api.getWorkErrs = []error{lockedErr(), lockedErr(), lockedErr()}
	s := newTestSession(t, api, Options{
		LockRetryInterval: 20 * time.Millisecond,
		LockRetryTick:     10 * time.Millisecond,
	})

	err := s.LoadAll(context.Background())
	require.Error(t, err)
	assert.True(t, s.State().Locked)

	require.Eventually(t, func() bool {
		return !s.State().Locked
	}, 2*time.Second, 5*time.Millisecond)

	_, _, loads := api.counts()
	assert.Equal(t, 4, loads)
	assert.Equal(t, "Draft three.", s.State().Content)
}

func TestSuccessfulReadsClearLock(t *testing.T) {
	api := newW1()
	api.updateErrs = []error{lockedErr()}
	api.getVersionErrs = []error{lockedErr()}
	s := newTestSession(t, api, Options{LockRetryInterval: time.Hour, LockRetryTick: time.Minute})
	ctx := context.Background()
	require.NoError(t, s.LoadAll(ctx))

	require.NoError(t, s.SetContent("x"))
	require.Error(t, s.Save(ctx, true))
	require.True(t, s.State().Locked)

	_, err := s.OpenVersion(ctx, 1)
	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, KindLocked, se.Kind)
	assert.True(t, s.State().Locked)

	_, err = s.OpenVersion(ctx, 1)
	require.NoError(t, err)
	st := s.State()
	assert.False(t, st.Locked)
	assert.Equal(t, 0, st.LockRetryIn)
}

func TestLoadMoreVersionsClearsLock(t *testing.T) {
	api := newW1()
	api.pages[""] = &model.VersionList{CurrentVersion: 3, Versions: api.versions[1:], NextCursor: "page2"}
	api.pages["page2"] = &model.VersionList{CurrentVersion: 3, Versions: api.versions[:1]}
	api.updateErrs = []error{lockedErr()}
	s := newTestSession(t, api, Options{LockRetryInterval: time.Hour, LockRetryTick: time.Minute})
	ctx := context.Background()
	require.NoError(t, s.LoadAll(ctx))

	require.NoError(t, s.SetContent("x"))
	require.Error(t, s.Save(ctx, true))
	require.True(t, s.State().Locked)

	require.NoError(t, s.LoadMoreVersions(ctx))
	assert.False(t, s.State().Locked)
}

func TestFlushWaitsForInFlightAutoSave(t *testing.T) {
	api := newW1()
	gate := make(chan struct{})
	started := make(chan string, 4)
	api.updateGate, api.updateStarted = gate, started

	s := newTestSession(t, api, Options{})
	ctx := context.Background()
	require.NoError(t, s.LoadAll(ctx))

	require.NoError(t, s.SetContent("A"))
	go func() { _ = s.AutoSave(ctx) }()
	assert.Equal(t, "A", <-started)

	require.NoError(t, s.SetContent("B"))
	flushed := make(chan error, 1)
	go func() { flushed <- s.Flush(ctx) }()

	gate <- struct{}{}
	assert.Equal(t, "B", <-started)
	gate <- struct{}{}
	require.NoError(t, <-flushed)

	assert.False(t, s.State().Dirty)
	api.mu.Lock()
	defer api.mu.Unlock()
	require.Len(t, api.updates, 2)
	assert.Equal(t, "B", api.updates[1].Content)
}

func TestOpenVersionKeepsBaseline(t *testing.T) {
	s := newTestSession(t, newW1(), Options{})
	ctx := context.Background()
	require.NoError(t, s.LoadAll(ctx))

	d, err := s.OpenVersion(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "First.", d.Content)

	st := s.State()
	assert.Equal(t, 1, st.Selected.Number)
	assert.Equal(t, 2, st.Baseline.Number)
	assert.Equal(t, "Loaded version 1", st.Info)

	_, err = s.OpenVersion(ctx, 99)
	require.Error(t, err)
	assert.Equal(t, KindNotFound, s.State().Err.Kind)
}

func TestRevert(t *testing.T) {
	s := newTestSession(t, newW1(), Options{})
	ctx := context.Background()
	require.NoError(t, s.LoadAll(ctx))
	require.NoError(t, s.SetContent("unsaved edit"))

	d, err := s.Revert(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 4, d.Number)

	st := s.State()
	assert.Equal(t, "First.", st.Content)
	assert.False(t, st.Dirty)
	assert.Equal(t, 4, st.Selected.Number)
	assert.Equal(t, "Reverted successfully. New draft version 4", st.Info)
}

func TestLoadMoreVersionsAppends(t *testing.T) {
	api := newW1()
	api.pages[""] = &model.VersionList{
		CurrentVersion: 3,
		Versions:       api.versions[1:],
		NextCursor:     "page2",
		HiddenCount:    1,
	}
	api.pages["page2"] = &model.VersionList{
		CurrentVersion: 3,
		Versions:       api.versions[:2],
	}
	s := newTestSession(t, api, Options{})
	ctx := context.Background()
	require.NoError(t, s.LoadAll(ctx))

	st := s.State()
	assert.True(t, st.CanLoadMore)
	assert.Equal(t, 1, st.HiddenCount)
	assert.Len(t, st.Versions, 2)

	require.NoError(t, s.LoadMoreVersions(ctx))
	st = s.State()
	assert.False(t, st.CanLoadMore)
	require.Len(t, st.Versions, 3)
	assert.Equal(t, []int{2, 3, 1}, []int{st.Versions[0].Number, st.Versions[1].Number, st.Versions[2].Number})

	require.NoError(t, s.LoadMoreVersions(ctx))
	assert.Len(t, s.State().Versions, 3)
}

func TestRename(t *testing.T) {
	api := newW1()
	s := newTestSession(t, api, Options{})
	ctx := context.Background()
	require.NoError(t, s.LoadAll(ctx))

	err := s.Rename(ctx, "   ")
	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, KindValidationFailed, se.Kind)
	assert.Empty(t, api.renames)

	require.NoError(t, s.Rename(ctx, " Final Essay "))
	assert.Equal(t, "Final Essay", s.State().Work.Title)
	assert.Equal(t, []string{"Final Essay"}, api.renames)
}

func TestRecoveredDraft(t *testing.T) {
	ctx := context.Background()
	drafts := draftcache.New(kv.NewMemoryStore())
	require.NoError(t, drafts.Set(ctx, "w1", "typed offline"))

	s := newTestSession(t, newW1(), Options{Drafts: drafts})
	require.NoError(t, s.LoadAll(ctx))

	st := s.State()
	assert.True(t, st.HasRecovered)
	assert.Equal(t, "typed offline", st.RecoveredDraft)
	assert.Equal(t, "Draft three.", st.Content)

	ok, err := s.RestoreDraft()
	require.NoError(t, err)
	assert.True(t, ok)
	st = s.State()
	assert.Equal(t, "typed offline", st.Content)
	assert.True(t, st.Dirty)
	assert.False(t, st.HasRecovered)
}

func TestCloseStopsCallbacks(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	s := newTestSession(t, newW1(), Options{OnChange: func(State) {
		mu.Lock()
		calls++
		mu.Unlock()
	}})
	require.NoError(t, s.LoadAll(context.Background()))

	mu.Lock()
	before := calls
	mu.Unlock()
	assert.Greater(t, before, 0)

	s.Close()
	assert.ErrorIs(t, s.SetContent("late"), ErrClosed)
	assert.ErrorIs(t, s.LoadAll(context.Background()), ErrClosed)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, before, calls)
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind Kind
		msg  string
	}{
		{"401", &client.APIError{Status: 401}, KindUnauthorized, msgUnauthorized},
		{"404 code", &client.APIError{Status: 400, Code: "not_found"}, KindNotFound, msgNotFound},
		{"423", &client.APIError{Status: 423}, KindLocked, msgLocked},
		{"409 locked", &client.APIError{Status: 409, Code: "locked", Message: "held"}, KindLocked, msgLocked},
		{"validation", &client.APIError{Status: 422, Code: "validation_failed", Message: "content too long"}, KindValidationFailed, "content too long"},
		{"llm", &client.APIError{Status: 502, Code: "llm_failed"}, KindLLMFailed, msgLLMFailed},
		{"unprocessed", &client.APIError{Status: 400, Code: "suggestions_not_processed", Message: "Unprocessed suggestions: 3 out of 5"}, KindSuggestionsNotProcessed,
			"You still have 3 unprocessed sentence comments (total: 5). Mark each as resolved or rejected before submit."},
		{"unprocessed raw", &client.APIError{Status: 400, Code: "suggestions_not_processed"}, KindSuggestionsNotProcessed, msgUnprocessed},
		{"429", &client.APIError{Status: 429}, KindRateLimitExceeded, msgRateLimit},
		{"other code", &client.APIError{Status: 400, Code: "title_taken", Message: "taken"}, Kind("title_taken"), "taken"},
		{"bare 500", &client.APIError{Status: 500}, KindUnknown, msgRequest},
		{"transport", errors.New("dial tcp: refused"), KindUnknown, "dial tcp: refused"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := MapError(tt.err)
			assert.Equal(t, tt.kind, e.Kind)
			assert.Equal(t, tt.msg, e.Message)
		})
	}
	assert.Nil(t, MapError(nil))
}
