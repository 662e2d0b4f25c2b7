package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/mikeboe/deep-search/pkg/research"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// DeepSearchArgs are the arguments of the deep_search tool.
type DeepSearchArgs struct {
	Query   string `json:"query" jsonschema:"The question to research."`
	City    string `json:"city,omitempty" jsonschema:"Optional city of the user, used to localize results."`
	Country string `json:"country,omitempty" jsonschema:"Optional country of the user."`
}

// NewMCPServer exposes the research service as the deep_search MCP tool.
func NewMCPServer(s *Service) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "deep-search-mcp", Version: "1.0.0"}, nil)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "deep_search",
		Description: "Research a question on the web over several search rounds and return a cited answer.",
	}, deepSearchTool(s))
	return server
}

// mcpHandler serves the streamable HTTP transport, sessions included.
func mcpHandler(server *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil)
}

func deepSearchTool(s *Service) mcp.ToolHandlerFor[DeepSearchArgs, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, args DeepSearchArgs) (*mcp.CallToolResult, any, error) {
		if strings.TrimSpace(args.Query) == "" {
			return toolError("query is required"), nil, nil
		}
		req := research.Request{Query: args.Query}
		if loc := (research.Location{City: args.City, Country: args.Country}); !loc.IsZero() {
			req.Location = &loc
		}

		result, err := s.Search(ctx, uuid.New(), req, nil)
		if err != nil {
			return toolError(err.Error()), nil, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: formatResult(result)}},
		}, nil, nil
	}
}

func toolError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
	}
}

func formatResult(r *Result) string {
	var b strings.Builder
	b.WriteString(r.Answer)
	if len(r.Sources) > 0 {
		b.WriteString("\n\nSources:\n")
		for _, src := range r.Sources {
			fmt.Fprintf(&b, "- [%s](%s)\n", src.Title, src.URL)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
