package aic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	apperrors "github.com/mwestcott/aic-mcp/internal/errors"
)

const themerealmPath = "/openidm/config/ui/themerealm"

// ThemeSummary is the reshaped list entry for a hosted-pages theme.
type ThemeSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsDefault bool   `json:"isDefault"`
}

// loadThemerealm fetches the whole themerealm config object. Themes
// live as an array under the realm key; updates replace the entire
// config.
func (c *Client) loadThemerealm(ctx context.Context) ([]byte, error) {
	req, err := c.request(ctx, ScopeIDM)
	if err != nil {
		return nil, err
	}

	resp, err := req.Get(themerealmPath)
	if err != nil {
		return nil, fmt.Errorf("loading themes: %w: %v", apperrors.ErrAPIRequest, err)
	}

	if err := checkResponse(resp, "loading themes"); err != nil {
		return nil, err
	}

	return resp.Body(), nil
}

// ListThemes returns summaries of the realm's themes.
func (c *Client) ListThemes(ctx context.Context) ([]ThemeSummary, error) {
	body, err := c.loadThemerealm(ctx)
	if err != nil {
		return nil, err
	}

	var summaries []ThemeSummary

	gjson.GetBytes(body, "realm."+c.realm).ForEach(func(_, t gjson.Result) bool {
		summaries = append(summaries, ThemeSummary{
			ID:        t.Get("_id").String(),
			Name:      t.Get("name").String(),
			IsDefault: t.Get("isDefault").Bool(),
		})

		return true
	})

	return summaries, nil
}

// GetTheme returns the full definition of one theme by name.
func (c *Client) GetTheme(ctx context.Context, name string) (json.RawMessage, error) {
	body, err := c.loadThemerealm(ctx)
	if err != nil {
		return nil, err
	}

	_, theme, err := c.findTheme(body, name)
	if err != nil {
		return nil, err
	}

	return json.RawMessage(theme.Raw), nil
}

// UpdateTheme replaces one theme inside the themerealm config and
// writes the whole config back. Returns a diff of the theme change.
func (c *Client) UpdateTheme(ctx context.Context, name string, theme json.RawMessage) (string, error) {
	if !json.Valid(theme) {
		return "", fmt.Errorf("theme definition is not valid JSON")
	}

	body, err := c.loadThemerealm(ctx)
	if err != nil {
		return "", err
	}

	idx, old, err := c.findTheme(body, name)
	if err != nil {
		return "", err
	}

	updated, err := sjson.SetRawBytes(body, fmt.Sprintf("realm.%s.%d", c.realm, idx), theme)
	if err != nil {
		return "", fmt.Errorf("splicing theme %s: %w", name, err)
	}

	req, err := c.request(ctx, ScopeIDM)
	if err != nil {
		return "", err
	}

	resp, err := req.
		SetHeader("Content-Type", "application/json").
		SetBody(updated).
		Put(themerealmPath)
	if err != nil {
		return "", fmt.Errorf("updating theme %s: %w: %v", name, apperrors.ErrAPIRequest, err)
	}

	if err := checkResponse(resp, fmt.Sprintf("updating theme %s", name)); err != nil {
		return "", err
	}

	return jsonDiff([]byte(old.Raw), theme), nil
}

// findTheme locates a theme by name in a themerealm payload.
func (c *Client) findTheme(body []byte, name string) (int, gjson.Result, error) {
	themes := gjson.GetBytes(body, "realm."+c.realm).Array()

	for i, t := range themes {
		if t.Get("name").String() == name {
			return i, t, nil
		}
	}

	return 0, gjson.Result{}, fmt.Errorf("theme %q: %w", name, apperrors.ErrNotFound)
}
