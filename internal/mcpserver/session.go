package mcpserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type sessionKey struct{}

// withSession stashes the calling client session in the context so the
// elicitation channel can reach the client that triggered the token
// acquisition.
func withSession(ctx context.Context, s *mcp.ServerSession) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

func sessionFrom(ctx context.Context) *mcp.ServerSession {
	s, _ := ctx.Value(sessionKey{}).(*mcp.ServerSession)
	return s
}
