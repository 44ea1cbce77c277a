package tools

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
)

// withResponseFormat adds the shared rendering argument carried by every
// read tool.
func withResponseFormat() mcp.ToolOption {
	return mcp.WithString("response_format",
		mcp.Description("Response rendering: json (default) or markdown"),
		mcp.Enum("json", "markdown"),
	)
}

// renderResult returns v as indented JSON, or as the supplied Markdown when
// the caller asked for it.
func renderResult(req mcp.CallToolRequest, v any, markdown func() string) (*mcp.CallToolResult, error) {
	if req.GetString("response_format", "json") == "markdown" {
		return mcp.NewToolResultText(markdown()), nil
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultErrorFromErr("failed to encode response", err), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
