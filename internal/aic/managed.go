package aic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	apperrors "github.com/mwestcott/aic-mcp/internal/errors"
)

// Managed object types are realm-prefixed on AIC tenants
// (alpha_user, alpha_role, alpha_group).
const (
	TypeUser  = "user"
	TypeRole  = "role"
	TypeGroup = "group"
)

// PatchOp is one IDM patch operation.
type PatchOp struct {
	Operation string `json:"operation"`
	Field     string `json:"field"`
	Value     any    `json:"value,omitempty"`
}

// QueryResult is a page of managed objects.
type QueryResult struct {
	Results     []json.RawMessage `json:"results"`
	ResultCount int               `json:"resultCount"`
}

func (c *Client) managedPath(objType string) string {
	return fmt.Sprintf("/openidm/managed/%s_%s", c.realm, objType)
}

// SearchFilter builds an IDM _queryFilter that matches term against
// any of the given fields. The term is NFC-normalized first so visually
// identical names stored with different Unicode compositions still
// match; embedded quotes are escaped.
func SearchFilter(fields []string, term string) string {
	term = norm.NFC.String(term)
	term = strings.ReplaceAll(term, `"`, `\"`)

	clauses := make([]string, len(fields))
	for i, f := range fields {
		clauses[i] = fmt.Sprintf(`%s sw "%s"`, f, term)
	}

	return strings.Join(clauses, " or ")
}

// QueryManaged runs a _queryFilter query against a managed object
// type. An empty filter matches everything. fields limits the returned
// attributes.
func (c *Client) QueryManaged(ctx context.Context, objType, filter string, fields []string, pageSize int) (QueryResult, error) {
	req, err := c.request(ctx, ScopeIDM)
	if err != nil {
		return QueryResult{}, err
	}

	if filter == "" {
		filter = "true"
	}

	if pageSize <= 0 {
		pageSize = 50
	}

	req.SetQueryParam("_queryFilter", filter)
	req.SetQueryParam("_pageSize", fmt.Sprint(pageSize))

	if len(fields) > 0 {
		req.SetQueryParam("_fields", strings.Join(fields, ","))
	}

	resp, err := req.Get(c.managedPath(objType))
	if err != nil {
		return QueryResult{}, fmt.Errorf("querying %s: %w: %v", objType, apperrors.ErrAPIRequest, err)
	}

	if err := checkResponse(resp, fmt.Sprintf("querying %s", objType)); err != nil {
		return QueryResult{}, err
	}

	var page struct {
		Result      []json.RawMessage `json:"result"`
		ResultCount int               `json:"resultCount"`
	}

	if err := json.Unmarshal(resp.Body(), &page); err != nil {
		return QueryResult{}, fmt.Errorf("decoding %s query response: %w", objType, err)
	}

	return QueryResult{Results: page.Result, ResultCount: page.ResultCount}, nil
}

// GetManaged fetches one managed object by ID.
func (c *Client) GetManaged(ctx context.Context, objType, id string) (json.RawMessage, error) {
	req, err := c.request(ctx, ScopeIDM)
	if err != nil {
		return nil, err
	}

	resp, err := req.Get(c.managedPath(objType) + "/" + id)
	if err != nil {
		return nil, fmt.Errorf("fetching %s %s: %w: %v", objType, id, apperrors.ErrAPIRequest, err)
	}

	if err := checkResponse(resp, fmt.Sprintf("fetching %s %s", objType, id)); err != nil {
		return nil, err
	}

	return json.RawMessage(resp.Body()), nil
}

// CreateManaged creates a managed object with server-assigned ID.
func (c *Client) CreateManaged(ctx context.Context, objType string, attrs json.RawMessage) (json.RawMessage, error) {
	if !json.Valid(attrs) {
		return nil, fmt.Errorf("object attributes are not valid JSON")
	}

	req, err := c.request(ctx, ScopeIDM)
	if err != nil {
		return nil, err
	}

	resp, err := req.
		SetHeader("Content-Type", "application/json").
		SetQueryParam("_action", "create").
		SetBody([]byte(attrs)).
		Post(c.managedPath(objType))
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w: %v", objType, apperrors.ErrAPIRequest, err)
	}

	if err := checkResponse(resp, fmt.Sprintf("creating %s", objType)); err != nil {
		return nil, err
	}

	return json.RawMessage(resp.Body()), nil
}

// UpdateManaged applies patch operations to a managed object and
// returns its new state.
func (c *Client) UpdateManaged(ctx context.Context, objType, id string, ops []PatchOp) (json.RawMessage, error) {
	if len(ops) == 0 {
		return nil, fmt.Errorf("no patch operations given")
	}

	req, err := c.request(ctx, ScopeIDM)
	if err != nil {
		return nil, err
	}

	resp, err := req.
		SetHeader("Content-Type", "application/json").
		SetBody(ops).
		Patch(c.managedPath(objType) + "/" + id)
	if err != nil {
		return nil, fmt.Errorf("updating %s %s: %w: %v", objType, id, apperrors.ErrAPIRequest, err)
	}

	if err := checkResponse(resp, fmt.Sprintf("updating %s %s", objType, id)); err != nil {
		return nil, err
	}

	return json.RawMessage(resp.Body()), nil
}

// DeleteManaged removes a managed object.
func (c *Client) DeleteManaged(ctx context.Context, objType, id string) error {
	req, err := c.request(ctx, ScopeIDM)
	if err != nil {
		return err
	}

	resp, err := req.Delete(c.managedPath(objType) + "/" + id)
	if err != nil {
		return fmt.Errorf("deleting %s %s: %w: %v", objType, id, apperrors.ErrAPIRequest, err)
	}

	return checkResponse(resp, fmt.Sprintf("deleting %s %s", objType, id))
}
