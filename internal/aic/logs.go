package aic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	apperrors "github.com/mwestcott/aic-mcp/internal/errors"
)

// LogPage is one page of tenant log entries plus the cookie that
// resumes tailing where this page ended.
type LogPage struct {
	Entries    []json.RawMessage `json:"entries"`
	NextCookie string            `json:"nextCookie,omitempty"`
}

// LogSources lists the tenant's available log sources.
func (c *Client) LogSources(ctx context.Context) ([]string, error) {
	req, err := c.request(ctx, ScopeAnalytics)
	if err != nil {
		return nil, err
	}

	resp, err := req.Get("/monitoring/logs/sources")
	if err != nil {
		return nil, fmt.Errorf("listing log sources: %w: %v", apperrors.ErrAPIRequest, err)
	}

	if err := checkResponse(resp, "listing log sources"); err != nil {
		return nil, err
	}

	var sources []string

	gjson.GetBytes(resp.Body(), "result").ForEach(func(_, s gjson.Result) bool {
		sources = append(sources, s.String())
		return true
	})

	return sources, nil
}

// TailLogs fetches a page of log entries from source. An empty cookie
// starts from the most recent window; a cookie from a previous page
// resumes after it.
func (c *Client) TailLogs(ctx context.Context, source, cookie string) (LogPage, error) {
	req, err := c.request(ctx, ScopeAnalytics)
	if err != nil {
		return LogPage{}, err
	}

	req.SetQueryParam("source", source)

	if cookie != "" {
		req.SetQueryParam("_pagedResultsCookie", cookie)
	}

	resp, err := req.Get("/monitoring/logs")
	if err != nil {
		return LogPage{}, fmt.Errorf("tailing logs for %s: %w: %v", source, apperrors.ErrAPIRequest, err)
	}

	if err := checkResponse(resp, fmt.Sprintf("tailing logs for %s", source)); err != nil {
		return LogPage{}, err
	}

	page := LogPage{
		NextCookie: gjson.GetBytes(resp.Body(), "pagedResultsCookie").String(),
	}

	gjson.GetBytes(resp.Body(), "result").ForEach(func(_, e gjson.Result) bool {
		page.Entries = append(page.Entries, json.RawMessage(e.Raw))
		return true
	})

	return page, nil
}
