package aic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	apperrors "github.com/mwestcott/aic-mcp/internal/errors"
)

// JourneySummary is the reshaped list entry for an authentication
// journey; the full tree definition stays server-side until exported.
type JourneySummary struct {
	ID          string `json:"id"`
	Description string `json:"description,omitempty"`
	Enabled     bool   `json:"enabled"`
	NodeCount   int    `json:"nodeCount"`
}

// ImportResult reports what a journey import did.
type ImportResult struct {
	ID      string `json:"id"`
	Created bool   `json:"created"`
	Diff    string `json:"diff,omitempty"`
}

func (c *Client) journeysPath() string {
	return fmt.Sprintf("/am/json/realms/root/realms/%s/realm-config/authentication/authenticationtrees/trees", c.realm)
}

// ListJourneys returns summaries of every authentication journey in
// the realm.
func (c *Client) ListJourneys(ctx context.Context) ([]JourneySummary, error) {
	req, err := c.request(ctx, ScopeAM)
	if err != nil {
		return nil, err
	}

	resp, err := req.SetQueryParam("_queryFilter", "true").Get(c.journeysPath())
	if err != nil {
		return nil, fmt.Errorf("listing journeys: %w: %v", apperrors.ErrAPIRequest, err)
	}

	if err := checkResponse(resp, "listing journeys"); err != nil {
		return nil, err
	}

	var summaries []JourneySummary

	gjson.GetBytes(resp.Body(), "result").ForEach(func(_, j gjson.Result) bool {
		summaries = append(summaries, JourneySummary{
			ID:          j.Get("_id").String(),
			Description: j.Get("description").String(),
			Enabled:     j.Get("enabled").Bool(),
			NodeCount:   len(j.Get("nodes").Map()),
		})

		return true
	})

	return summaries, nil
}

// ExportJourney returns the full tree definition for one journey.
func (c *Client) ExportJourney(ctx context.Context, id string) (json.RawMessage, error) {
	req, err := c.request(ctx, ScopeAM)
	if err != nil {
		return nil, err
	}

	resp, err := req.Get(c.journeysPath() + "/" + id)
	if err != nil {
		return nil, fmt.Errorf("exporting journey %s: %w: %v", id, apperrors.ErrAPIRequest, err)
	}

	if err := checkResponse(resp, fmt.Sprintf("exporting journey %s", id)); err != nil {
		return nil, err
	}

	return json.RawMessage(resp.Body()), nil
}

// ImportJourney creates or replaces a journey from an exported
// definition. When replacing, the result carries a diff of what
// changed.
func (c *Client) ImportJourney(ctx context.Context, id string, definition json.RawMessage) (ImportResult, error) {
	if !json.Valid(definition) {
		return ImportResult{}, fmt.Errorf("journey definition is not valid JSON")
	}

	existing, err := c.ExportJourney(ctx, id)

	created := errors.Is(err, apperrors.ErrNotFound)
	if err != nil && !created {
		return ImportResult{}, err
	}

	req, err := c.request(ctx, ScopeAM)
	if err != nil {
		return ImportResult{}, err
	}

	resp, err := req.
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept-API-Version", "protocol=2.1,resource=1.0").
		SetBody([]byte(definition)).
		Put(c.journeysPath() + "/" + id)
	if err != nil {
		return ImportResult{}, fmt.Errorf("importing journey %s: %w: %v", id, apperrors.ErrAPIRequest, err)
	}

	if err := checkResponse(resp, fmt.Sprintf("importing journey %s", id)); err != nil {
		return ImportResult{}, err
	}

	res := ImportResult{ID: id, Created: created}
	if !created {
		res.Diff = jsonDiff(existing, definition)
	}

	return res, nil
}

// DeleteJourney removes a journey.
func (c *Client) DeleteJourney(ctx context.Context, id string) error {
	req, err := c.request(ctx, ScopeAM)
	if err != nil {
		return err
	}

	resp, err := req.Delete(c.journeysPath() + "/" + id)
	if err != nil {
		return fmt.Errorf("deleting journey %s: %w: %v", id, apperrors.ErrAPIRequest, err)
	}

	return checkResponse(resp, fmt.Sprintf("deleting journey %s", id))
}
