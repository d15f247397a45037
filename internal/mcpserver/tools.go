// Package mcpserver registers the MCP tools that expose tenant
// operations. It adapts the aic client to the MCP SDK's tool handler
// interface; every handler obtains its own scoped token through the
// auth service.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mwestcott/aic-mcp/internal/aic"
	"github.com/mwestcott/aic-mcp/internal/auth"
	"github.com/mwestcott/aic-mcp/internal/state"
)

// Deps holds everything the tool handlers need.
type Deps struct {
	Client     *aic.Client
	Auth       *auth.Service
	State      *state.State
	TenantHost string
}

// RegisterTools adds all tenant tools to the given MCP server.
func RegisterTools(server *mcp.Server, deps *Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "journey_list",
		Description: "List the realm's authentication journeys with id, description, enabled flag, and node count.",
	}, journeyListHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "journey_export",
		Description: "Export the full definition of one authentication journey as JSON, suitable for re-import.",
	}, journeyExportHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "journey_import",
		Description: "Create or replace an authentication journey from an exported definition. When replacing, the result includes a diff of what changed.",
	}, journeyImportHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "journey_delete",
		Description: "Delete an authentication journey by id.",
	}, journeyDeleteHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "user_query",
		Description: "Query managed users. Provide a search term (matched against userName, givenName, sn, mail) or a raw IDM _queryFilter expression.",
	}, queryHandler(deps, aic.TypeUser, []string{"userName", "givenName", "sn", "mail"}),
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "user_get",
		Description: "Fetch one managed user by id.",
	}, getHandler(deps, aic.TypeUser))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "user_create",
		Description: "Create a managed user. Attributes is a JSON object; userName, givenName, sn, and mail are required by the default schema.",
	}, userCreateHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "user_update",
		Description: "Apply IDM patch operations (add/replace/remove) to a managed user and return the updated object.",
	}, userUpdateHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "user_delete",
		Description: "Delete a managed user by id.",
	}, userDeleteHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "role_query",
		Description: "Query managed roles by search term (matched against name, description) or raw _queryFilter.",
	}, queryHandler(deps, aic.TypeRole, []string{"name", "description"}))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "role_get",
		Description: "Fetch one managed role by id.",
	}, getHandler(deps, aic.TypeRole))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "group_query",
		Description: "Query managed groups by search term (matched against name, description) or raw _queryFilter.",
	}, queryHandler(deps, aic.TypeGroup, []string{"name", "description"}))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "group_get",
		Description: "Fetch one managed group by id.",
	}, getHandler(deps, aic.TypeGroup))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "theme_list",
		Description: "List the realm's hosted-pages themes with name and default flag.",
	}, themeListHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "theme_get",
		Description: "Fetch the full definition of one theme by name.",
	}, themeGetHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "theme_update",
		Description: "Replace one theme's definition. The result includes a diff against the previous definition.",
	}, themeUpdateHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "esv_secret_list",
		Description: "List environment secrets (ESVs). Secret values are write-only and never returned.",
	}, secretListHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "esv_secret_create",
		Description: "Create an environment secret. Takes effect after the next environment restart.",
	}, secretCreateHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "esv_secret_delete",
		Description: "Delete an environment secret by id.",
	}, secretDeleteHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "esv_variable_list",
		Description: "List environment variables (ESVs).",
	}, variableListHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "esv_variable_set",
		Description: "Create or update an environment variable. Takes effect after the next environment restart.",
	}, variableSetHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "log_sources",
		Description: "List the tenant's available log sources.",
	}, logSourcesHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "logs_tail",
		Description: "Tail a log source. The pagination cursor persists locally, so repeated calls continue where the last one stopped; set reset to start from the most recent window.",
	}, logsTailHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "session_status",
		Description: "Report authentication state: tenant, mode, whether this session has authenticated, and cached token expiry. Never returns token material.",
	}, sessionStatusHandler(deps))
}

// --- Input types ---
// The MCP SDK infers JSON schema from these struct types via jsonschema tags.

// NoInput is for tools without parameters.
type NoInput struct{}

// IDInput identifies one object.
type IDInput struct {
	ID string `json:"id" jsonschema:"required,object id"`
}

// JourneyImportInput holds parameters for journey_import.
type JourneyImportInput struct {
	ID         string `json:"id" jsonschema:"required,journey id"`
	Definition string `json:"definition" jsonschema:"required,exported journey definition as a JSON string"`
}

// QueryInput holds parameters for the managed-object query tools.
type QueryInput struct {
	Term     string   `json:"term,omitempty" jsonschema:"search term matched against the default fields"`
	Filter   string   `json:"filter,omitempty" jsonschema:"raw IDM _queryFilter expression, overrides term"`
	Fields   []string `json:"fields,omitempty" jsonschema:"attributes to return, defaults to all"`
	PageSize int      `json:"page_size,omitempty" jsonschema:"maximum results, defaults to 50"`
}

// UserCreateInput holds parameters for user_create.
type UserCreateInput struct {
	Attributes string `json:"attributes" jsonschema:"required,user attributes as a JSON object string"`
}

// UserUpdateInput holds parameters for user_update.
type UserUpdateInput struct {
	ID  string       `json:"id" jsonschema:"required,user id"`
	Ops []aic.PatchOp `json:"ops" jsonschema:"required,IDM patch operations"`
}

// NameInput identifies a theme by name.
type NameInput struct {
	Name string `json:"name" jsonschema:"required,theme name"`
}

// ThemeUpdateInput holds parameters for theme_update.
type ThemeUpdateInput struct {
	Name       string `json:"name" jsonschema:"required,theme name"`
	Definition string `json:"definition" jsonschema:"required,full theme definition as a JSON string"`
}

// SecretCreateInput holds parameters for esv_secret_create.
type SecretCreateInput struct {
	ID          string `json:"id" jsonschema:"required,secret id (esv- prefix)"`
	Value       string `json:"value" jsonschema:"required,secret value"`
	Description string `json:"description,omitempty" jsonschema:"human-readable description"`
}

// VariableSetInput holds parameters for esv_variable_set.
type VariableSetInput struct {
	ID          string `json:"id" jsonschema:"required,variable id (esv- prefix)"`
	Value       string `json:"value" jsonschema:"required,variable value"`
	Description string `json:"description,omitempty" jsonschema:"human-readable description"`
}

// LogsTailInput holds parameters for logs_tail.
type LogsTailInput struct {
	Source string `json:"source" jsonschema:"required,log source from log_sources"`
	Reset  bool   `json:"reset,omitempty" jsonschema:"discard the saved cursor and start from the most recent window"`
}

// --- Output types ---

// ObjectResult wraps a raw tenant object.
type ObjectResult struct {
	Object json.RawMessage `json:"object"`
}

// DeleteResult confirms a deletion.
type DeleteResult struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

// WriteResult confirms an ESV write.
type WriteResult struct {
	ID      string `json:"id"`
	Written bool   `json:"written"`
	Note    string `json:"note,omitempty"`
}

// JourneyListResult wraps the journey summaries.
type JourneyListResult struct {
	Journeys []aic.JourneySummary `json:"journeys"`
	Total    int                  `json:"total"`
}

// ThemeListResult wraps the theme summaries.
type ThemeListResult struct {
	Themes []aic.ThemeSummary `json:"themes"`
	Total  int                `json:"total"`
}

// SecretListResult wraps the secret summaries.
type SecretListResult struct {
	Secrets []aic.SecretSummary `json:"secrets"`
	Total   int                 `json:"total"`
}

// VariableListResult wraps the variable summaries.
type VariableListResult struct {
	Variables []aic.VariableSummary `json:"variables"`
	Total     int                   `json:"total"`
}

// LogSourcesResult wraps the available log sources.
type LogSourcesResult struct {
	Sources []string `json:"sources"`
	Total   int      `json:"total"`
}

// LogsTailResult is one page of log entries plus cursor bookkeeping.
type LogsTailResult struct {
	Source  string            `json:"source"`
	Entries []json.RawMessage `json:"entries"`
	Resumed bool              `json:"resumed"`
	More    bool              `json:"more"`
}

// --- Handlers ---

func journeyListHandler(deps *Deps) mcp.ToolHandlerFor[NoInput, *JourneyListResult] {
	return func(ctx context.Context, req *mcp.CallToolRequest, _ NoInput) (*mcp.CallToolResult, *JourneyListResult, error) {
		journeys, err := deps.Client.ListJourneys(withSession(ctx, req.Session))
		if err != nil {
			return nil, nil, err
		}
		result := &JourneyListResult{Journeys: journeys, Total: len(journeys)}
		return textResult(result), result, nil
	}
}

func journeyExportHandler(deps *Deps) mcp.ToolHandlerFor[IDInput, *ObjectResult] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input IDInput) (*mcp.CallToolResult, *ObjectResult, error) {
		journey, err := deps.Client.ExportJourney(withSession(ctx, req.Session), input.ID)
		if err != nil {
			return nil, nil, err
		}
		result := &ObjectResult{Object: journey}
		return textResult(result), result, nil
	}
}

func journeyImportHandler(deps *Deps) mcp.ToolHandlerFor[JourneyImportInput, *aic.ImportResult] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input JourneyImportInput) (*mcp.CallToolResult, *aic.ImportResult, error) {
		result, err := deps.Client.ImportJourney(withSession(ctx, req.Session), input.ID, json.RawMessage(input.Definition))
		if err != nil {
			return nil, nil, err
		}
		return textResult(&result), &result, nil
	}
}

func journeyDeleteHandler(deps *Deps) mcp.ToolHandlerFor[IDInput, *DeleteResult] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input IDInput) (*mcp.CallToolResult, *DeleteResult, error) {
		if err := deps.Client.DeleteJourney(withSession(ctx, req.Session), input.ID); err != nil {
			return nil, nil, err
		}
		result := &DeleteResult{ID: input.ID, Deleted: true}
		return textResult(result), result, nil
	}
}

func queryHandler(deps *Deps, objType string, searchFields []string) mcp.ToolHandlerFor[QueryInput, *aic.QueryResult] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input QueryInput) (*mcp.CallToolResult, *aic.QueryResult, error) {
		filter := input.Filter
		if filter == "" && input.Term != "" {
			filter = aic.SearchFilter(searchFields, input.Term)
		}

		result, err := deps.Client.QueryManaged(withSession(ctx, req.Session), objType, filter, input.Fields, input.PageSize)
		if err != nil {
			return nil, nil, err
		}
		return textResult(&result), &result, nil
	}
}

func getHandler(deps *Deps, objType string) mcp.ToolHandlerFor[IDInput, *ObjectResult] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input IDInput) (*mcp.CallToolResult, *ObjectResult, error) {
		obj, err := deps.Client.GetManaged(withSession(ctx, req.Session), objType, input.ID)
		if err != nil {
			return nil, nil, err
		}
		result := &ObjectResult{Object: obj}
		return textResult(result), result, nil
	}
}

func userCreateHandler(deps *Deps) mcp.ToolHandlerFor[UserCreateInput, *ObjectResult] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input UserCreateInput) (*mcp.CallToolResult, *ObjectResult, error) {
		obj, err := deps.Client.CreateManaged(withSession(ctx, req.Session), aic.TypeUser, json.RawMessage(input.Attributes))
		if err != nil {
			return nil, nil, err
		}
		result := &ObjectResult{Object: obj}
		return textResult(result), result, nil
	}
}

func userUpdateHandler(deps *Deps) mcp.ToolHandlerFor[UserUpdateInput, *ObjectResult] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input UserUpdateInput) (*mcp.CallToolResult, *ObjectResult, error) {
		obj, err := deps.Client.UpdateManaged(withSession(ctx, req.Session), aic.TypeUser, input.ID, input.Ops)
		if err != nil {
			return nil, nil, err
		}
		result := &ObjectResult{Object: obj}
		return textResult(result), result, nil
	}
}

func userDeleteHandler(deps *Deps) mcp.ToolHandlerFor[IDInput, *DeleteResult] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input IDInput) (*mcp.CallToolResult, *DeleteResult, error) {
		if err := deps.Client.DeleteManaged(withSession(ctx, req.Session), aic.TypeUser, input.ID); err != nil {
			return nil, nil, err
		}
		result := &DeleteResult{ID: input.ID, Deleted: true}
		return textResult(result), result, nil
	}
}

func themeListHandler(deps *Deps) mcp.ToolHandlerFor[NoInput, *ThemeListResult] {
	return func(ctx context.Context, req *mcp.CallToolRequest, _ NoInput) (*mcp.CallToolResult, *ThemeListResult, error) {
		themes, err := deps.Client.ListThemes(withSession(ctx, req.Session))
		if err != nil {
			return nil, nil, err
		}
		result := &ThemeListResult{Themes: themes, Total: len(themes)}
		return textResult(result), result, nil
	}
}

func themeGetHandler(deps *Deps) mcp.ToolHandlerFor[NameInput, *ObjectResult] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input NameInput) (*mcp.CallToolResult, *ObjectResult, error) {
		theme, err := deps.Client.GetTheme(withSession(ctx, req.Session), input.Name)
		if err != nil {
			return nil, nil, err
		}
		result := &ObjectResult{Object: theme}
		return textResult(result), result, nil
	}
}

// ThemeUpdateResult reports a theme update with its diff.
type ThemeUpdateResult struct {
	Name string `json:"name"`
	Diff string `json:"diff"`
}

func themeUpdateHandler(deps *Deps) mcp.ToolHandlerFor[ThemeUpdateInput, *ThemeUpdateResult] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ThemeUpdateInput) (*mcp.CallToolResult, *ThemeUpdateResult, error) {
		diff, err := deps.Client.UpdateTheme(withSession(ctx, req.Session), input.Name, json.RawMessage(input.Definition))
		if err != nil {
			return nil, nil, err
		}
		result := &ThemeUpdateResult{Name: input.Name, Diff: diff}
		return textResult(result), result, nil
	}
}

func secretListHandler(deps *Deps) mcp.ToolHandlerFor[NoInput, *SecretListResult] {
	return func(ctx context.Context, req *mcp.CallToolRequest, _ NoInput) (*mcp.CallToolResult, *SecretListResult, error) {
		secrets, err := deps.Client.ListSecrets(withSession(ctx, req.Session))
		if err != nil {
			return nil, nil, err
		}
		result := &SecretListResult{Secrets: secrets, Total: len(secrets)}
		return textResult(result), result, nil
	}
}

const restartNote = "changes take effect after the next environment restart"

func secretCreateHandler(deps *Deps) mcp.ToolHandlerFor[SecretCreateInput, *WriteResult] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SecretCreateInput) (*mcp.CallToolResult, *WriteResult, error) {
		err := deps.Client.CreateSecret(withSession(ctx, req.Session), input.ID, input.Value, input.Description)
		if err != nil {
			return nil, nil, err
		}
		result := &WriteResult{ID: input.ID, Written: true, Note: restartNote}
		return textResult(result), result, nil
	}
}

func secretDeleteHandler(deps *Deps) mcp.ToolHandlerFor[IDInput, *DeleteResult] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input IDInput) (*mcp.CallToolResult, *DeleteResult, error) {
		if err := deps.Client.DeleteSecret(withSession(ctx, req.Session), input.ID); err != nil {
			return nil, nil, err
		}
		result := &DeleteResult{ID: input.ID, Deleted: true}
		return textResult(result), result, nil
	}
}

func variableListHandler(deps *Deps) mcp.ToolHandlerFor[NoInput, *VariableListResult] {
	return func(ctx context.Context, req *mcp.CallToolRequest, _ NoInput) (*mcp.CallToolResult, *VariableListResult, error) {
		variables, err := deps.Client.ListVariables(withSession(ctx, req.Session))
		if err != nil {
			return nil, nil, err
		}
		result := &VariableListResult{Variables: variables, Total: len(variables)}
		return textResult(result), result, nil
	}
}

func variableSetHandler(deps *Deps) mcp.ToolHandlerFor[VariableSetInput, *WriteResult] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input VariableSetInput) (*mcp.CallToolResult, *WriteResult, error) {
		err := deps.Client.SetVariable(withSession(ctx, req.Session), input.ID, input.Value, input.Description)
		if err != nil {
			return nil, nil, err
		}
		result := &WriteResult{ID: input.ID, Written: true, Note: restartNote}
		return textResult(result), result, nil
	}
}

func logSourcesHandler(deps *Deps) mcp.ToolHandlerFor[NoInput, *LogSourcesResult] {
	return func(ctx context.Context, req *mcp.CallToolRequest, _ NoInput) (*mcp.CallToolResult, *LogSourcesResult, error) {
		sources, err := deps.Client.LogSources(withSession(ctx, req.Session))
		if err != nil {
			return nil, nil, err
		}
		result := &LogSourcesResult{Sources: sources, Total: len(sources)}
		return textResult(result), result, nil
	}
}

func logsTailHandler(deps *Deps) mcp.ToolHandlerFor[LogsTailInput, *LogsTailResult] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input LogsTailInput) (*mcp.CallToolResult, *LogsTailResult, error) {
		cookie := ""

		if !input.Reset {
			cur, err := deps.State.LogCursor(deps.TenantHost, input.Source)
			if err != nil {
				return nil, nil, err
			}

			cookie = cur.Cookie
		}

		page, err := deps.Client.TailLogs(withSession(ctx, req.Session), input.Source, cookie)
		if err != nil {
			return nil, nil, err
		}

		if err := deps.State.SaveLogCursor(deps.TenantHost, input.Source, page.NextCookie); err != nil {
			return nil, nil, fmt.Errorf("saving log cursor: %w", err)
		}

		result := &LogsTailResult{
			Source:  input.Source,
			Entries: page.Entries,
			Resumed: cookie != "",
			More:    page.NextCookie != "",
		}
		return textResult(result), result, nil
	}
}

func sessionStatusHandler(deps *Deps) mcp.ToolHandlerFor[NoInput, *auth.Status] {
	return func(_ context.Context, _ *mcp.CallToolRequest, _ NoInput) (*mcp.CallToolResult, *auth.Status, error) {
		status := deps.Auth.Status()
		return textResult(&status), &status, nil
	}
}

// textResult builds a CallToolResult with JSON text content from any
// value. This provides the unstructured content alongside the
// structured output the SDK populates automatically.
func textResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("error marshaling result: %v", err)}},
			IsError: true,
		}
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}
