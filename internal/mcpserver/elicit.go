package mcpserver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mwestcott/aic-mcp/internal/auth"
)

// Elicitor surfaces device-flow verification prompts to the MCP client
// that triggered the acquisition, using the protocol's elicitation
// request. It implements auth.Elicitor.
type Elicitor struct {
	logger *slog.Logger
}

// NewElicitor builds the MCP-backed elicitation channel.
func NewElicitor(logger *slog.Logger) *Elicitor {
	return &Elicitor{logger: logger}
}

// RequestUserAction asks the client to confirm once the operator has
// completed verification in a browser. Any answer other than an
// explicit accept counts as a cancel.
func (e *Elicitor) RequestUserAction(ctx context.Context, message, verificationURI string) (auth.ElicitAction, error) {
	session := sessionFrom(ctx)
	if session == nil {
		return "", fmt.Errorf("no client session available for verification prompt")
	}

	res, err := session.Elicit(ctx, &mcp.ElicitParams{
		Message: fmt.Sprintf("%s\n\nVerification URL: %s", message, verificationURI),
		RequestedSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"confirm": {
					Type:        "boolean",
					Description: "set true once verification is completed in the browser",
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("sending elicitation request: %w", err)
	}

	if res.Action == "accept" {
		return auth.ElicitAccept, nil
	}

	e.logger.Info("verification prompt declined", slog.String("action", res.Action))

	return auth.ElicitCancel, nil
}

// NotifyComplete tells the client the verification finished. Failures
// are the caller's to log; the flow result does not depend on this.
func (e *Elicitor) NotifyComplete(ctx context.Context, id string) error {
	session := sessionFrom(ctx)
	if session == nil {
		return fmt.Errorf("no client session available")
	}

	return session.Log(ctx, &mcp.LoggingMessageParams{
		Level: "info",
		Data:  fmt.Sprintf("device verification %s completed", id),
	})
}
