package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/afterword/afterword/internal/model"
)

// Version list filters.
const (
	VersionsAll       = "all"
	VersionsSubmitted = "submitted"
	VersionsDraft     = "draft"
)

// UpdateInput is the body of a content save.
type UpdateInput struct {
	Content  string
	DeviceID string
	// AutoSave saves without creating a visible version.
	AutoSave bool
	// EssayPrompt is sent only when non-nil.
	EssayPrompt *string
}

// UpdateResult reports whether the save created a version.
type UpdateResult struct {
	Created bool
	Version int
}

// SubmitInput is the body of a submit.
type SubmitInput struct {
	Content       string
	DeviceID      string
	FAOReflection string
	Actions       model.Markings
}

// SubmitResult identifies the version created by a submit.
type SubmitResult struct {
	Version    int
	AnalysisID string
}

// VersionQuery filters the version list. Parent applies only to drafts.
type VersionQuery struct {
	Type   string
	Parent int
	Cursor string
}

func (q VersionQuery) encode() string {
	params := url.Values{}
	typ := q.Type
	if typ == "" {
		typ = VersionsAll
	}
	params.Set("type", typ)
	if typ == VersionsDraft && q.Parent > 0 {
		params.Set("parent", strconv.Itoa(q.Parent))
	}
	if q.Cursor != "" {
		params.Set("cursor", q.Cursor)
	}
	return params.Encode()
}

// CreateWork creates an empty work and returns its id.
func (c *Client) CreateWork(ctx context.Context) (string, error) {
	var resp struct {
		WorkID string `json:"work_id"`
	}
	if err := c.requestJSON(ctx, http.MethodPost, pathWorkCreate, nil, &resp); err != nil {
		return "", err
	}
	if c.cache != nil {
		c.cache.Clear()
	}
	return resp.WorkID, nil
}

// ListWorks returns the user's works.
func (c *Client) ListWorks(ctx context.Context) ([]model.WorkSummary, error) {
	var resp wireWorkList
	if err := c.requestJSON(ctx, http.MethodGet, pathWorkList, nil, &resp); err != nil {
		return nil, err
	}
	return fromWireWorkList(resp.Items), nil
}

// GetWork fetches the current document.
func (c *Client) GetWork(ctx context.Context, workID string) (*model.Work, error) {
	var resp wireWork
	if err := c.requestJSON(ctx, http.MethodGet, workPath(workID), nil, &resp); err != nil {
		return nil, err
	}
	return fromWireWork(resp), nil
}

// UpdateWork saves content. Auto-saves return no version.
func (c *Client) UpdateWork(ctx context.Context, workID string, in UpdateInput) (UpdateResult, error) {
	body := wireUpdateRequest{
		Content:     in.Content,
		DeviceID:    in.DeviceID,
		AutoSave:    in.AutoSave,
		EssayPrompt: in.EssayPrompt,
	}
	var resp wireUpdateResponse
	if err := c.requestJSON(ctx, http.MethodPost, workPath(workID)+"/update", body, &resp); err != nil {
		return UpdateResult{}, err
	}
	c.invalidate(workID)
	if resp.Version == nil {
		return UpdateResult{}, nil
	}
	return UpdateResult{Created: true, Version: *resp.Version}, nil
}

// SubmitWork submits content with suggestion decisions for analysis.
func (c *Client) SubmitWork(ctx context.Context, workID string, in SubmitInput) (SubmitResult, error) {
	body := wireSubmitRequest{
		Content:           in.Content,
		DeviceID:          in.DeviceID,
		FAOReflection:     optionalTrimmed(in.FAOReflection),
		SuggestionActions: toWireSuggestionActions(in.Actions),
	}
	var resp wireSubmitResponse
	if err := c.requestJSON(ctx, http.MethodPost, workPath(workID)+"/submit", body, &resp); err != nil {
		return SubmitResult{}, err
	}
	c.invalidate(workID)
	return SubmitResult{Version: resp.Version, AnalysisID: resp.AnalysisID}, nil
}

// SubmitAndFetchAnalysis submits and then fetches the new version's detail.
func (c *Client) SubmitAndFetchAnalysis(ctx context.Context, workID string, in SubmitInput) (SubmitResult, *model.VersionDetail, error) {
	res, err := c.SubmitWork(ctx, workID, in)
	if err != nil {
		return SubmitResult{}, nil, err
	}
	detail, err := c.GetVersion(ctx, workID, res.Version)
	if err != nil {
		return res, nil, fmt.Errorf("fetching submitted version %d: %w", res.Version, err)
	}
	return res, detail, nil
}

// ListVersions returns one page of version history.
func (c *Client) ListVersions(ctx context.Context, workID string, q VersionQuery) (*model.VersionList, error) {
	var resp wireVersionList
	path := workPath(workID) + "/versions?" + q.encode()
	if err := c.requestJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return fromWireVersionList(resp), nil
}

// GetVersion fetches one version with its analysis, if any.
func (c *Client) GetVersion(ctx context.Context, workID string, number int) (*model.VersionDetail, error) {
	var resp wireVersionDetail
	path := workPath(workID) + "/versions/" + strconv.Itoa(number)
	if err := c.requestJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return fromWireVersionDetail(resp), nil
}

// Revert copies target's content into a new version and returns its number.
func (c *Client) Revert(ctx context.Context, workID string, target int, deviceID string) (int, error) {
	body := wireRevertRequest{TargetVersion: target, DeviceID: deviceID}
	var resp wireRevertResponse
	if err := c.requestJSON(ctx, http.MethodPost, workPath(workID)+"/revert", body, &resp); err != nil {
		return 0, err
	}
	c.invalidate(workID)
	return resp.NewVersion, nil
}

// DeleteWork removes a work.
func (c *Client) DeleteWork(ctx context.Context, workID string) error {
	if err := c.requestJSON(ctx, http.MethodDelete, workPath(workID), nil, &wireOK{}); err != nil {
		return err
	}
	c.invalidate(workID)
	return nil
}

// RenameWork sets the title.
func (c *Client) RenameWork(ctx context.Context, workID, title string) error {
	body := wireRenameRequest{Title: title}
	if err := c.requestJSON(ctx, http.MethodPost, workPath(workID)+"/rename", body, &wireOK{}); err != nil {
		return err
	}
	c.invalidate(workID)
	return nil
}

// TotalWordCount sums word counts across the user's works.
func (c *Client) TotalWordCount(ctx context.Context) (int, error) {
	var resp struct {
		Total int `json:"total_word_count"`
	}
	if err := c.requestJSON(ctx, http.MethodGet, pathTotalWordCount, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Total, nil
}

// TotalProjectCount counts the user's works.
func (c *Client) TotalProjectCount(ctx context.Context) (int, error) {
	var resp struct {
		Total int `json:"total_project_count"`
	}
	if err := c.requestJSON(ctx, http.MethodGet, pathTotalProjectCount, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Total, nil
}
