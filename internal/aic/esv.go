package aic

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	apperrors "github.com/mwestcott/aic-mcp/internal/errors"
)

// SecretSummary describes an ESV secret. Values are write-only on the
// tenant and never come back through the API.
type SecretSummary struct {
	ID            string `json:"_id"`
	Description   string `json:"description,omitempty"`
	Loaded        bool   `json:"loaded"`
	ActiveVersion string `json:"activeVersion,omitempty"`
}

// VariableSummary describes an ESV variable.
type VariableSummary struct {
	ID             string `json:"_id"`
	Description    string `json:"description,omitempty"`
	ExpressionType string `json:"expressionType,omitempty"`
	Loaded         bool   `json:"loaded"`
}

// ListSecrets returns the tenant's ESV secrets without values.
func (c *Client) ListSecrets(ctx context.Context) ([]SecretSummary, error) {
	req, err := c.request(ctx, ScopeESV)
	if err != nil {
		return nil, err
	}

	resp, err := req.Get("/environment/secrets")
	if err != nil {
		return nil, fmt.Errorf("listing secrets: %w: %v", apperrors.ErrAPIRequest, err)
	}

	if err := checkResponse(resp, "listing secrets"); err != nil {
		return nil, err
	}

	var page struct {
		Result []SecretSummary `json:"result"`
	}

	if err := json.Unmarshal(resp.Body(), &page); err != nil {
		return nil, fmt.Errorf("decoding secrets response: %w", err)
	}

	return page.Result, nil
}

// CreateSecret creates an ESV secret. The value is base64-encoded on
// the wire per the environment API; changes require an environment
// restart to take effect.
func (c *Client) CreateSecret(ctx context.Context, id, value, description string) error {
	req, err := c.request(ctx, ScopeESV)
	if err != nil {
		return err
	}

	body := map[string]any{
		"valueBase64":       base64.StdEncoding.EncodeToString([]byte(value)),
		"description":       description,
		"encoding":          "generic",
		"useInPlaceholders": true,
	}

	resp, err := req.
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Put("/environment/secrets/" + id)
	if err != nil {
		return fmt.Errorf("creating secret %s: %w: %v", id, apperrors.ErrAPIRequest, err)
	}

	return checkResponse(resp, fmt.Sprintf("creating secret %s", id))
}

// DeleteSecret removes an ESV secret.
func (c *Client) DeleteSecret(ctx context.Context, id string) error {
	req, err := c.request(ctx, ScopeESV)
	if err != nil {
		return err
	}

	resp, err := req.Delete("/environment/secrets/" + id)
	if err != nil {
		return fmt.Errorf("deleting secret %s: %w: %v", id, apperrors.ErrAPIRequest, err)
	}

	return checkResponse(resp, fmt.Sprintf("deleting secret %s", id))
}

// ListVariables returns the tenant's ESV variables.
func (c *Client) ListVariables(ctx context.Context) ([]VariableSummary, error) {
	req, err := c.request(ctx, ScopeESV)
	if err != nil {
		return nil, err
	}

	resp, err := req.Get("/environment/variables")
	if err != nil {
		return nil, fmt.Errorf("listing variables: %w: %v", apperrors.ErrAPIRequest, err)
	}

	if err := checkResponse(resp, "listing variables"); err != nil {
		return nil, err
	}

	var page struct {
		Result []VariableSummary `json:"result"`
	}

	if err := json.Unmarshal(resp.Body(), &page); err != nil {
		return nil, fmt.Errorf("decoding variables response: %w", err)
	}

	return page.Result, nil
}

// SetVariable creates or updates an ESV variable.
func (c *Client) SetVariable(ctx context.Context, id, value, description string) error {
	req, err := c.request(ctx, ScopeESV)
	if err != nil {
		return err
	}

	body := map[string]any{
		"valueBase64":    base64.StdEncoding.EncodeToString([]byte(value)),
		"description":    description,
		"expressionType": "string",
	}

	resp, err := req.
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Put("/environment/variables/" + id)
	if err != nil {
		return fmt.Errorf("setting variable %s: %w: %v", id, apperrors.ErrAPIRequest, err)
	}

	return checkResponse(resp, fmt.Sprintf("setting variable %s", id))
}
