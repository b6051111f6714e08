// Package mcp exposes the account dashboard as MCP tools over stdio.
package mcp

import (
	"context"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/usernameweb/acctdash/internal/duration"
	"github.com/usernameweb/acctdash/internal/export"
	"github.com/usernameweb/acctdash/internal/query"
)

// Tool name constants.
const (
	ToolListAccounts   = "list_accounts"
	ToolGetAccount     = "get_account"
	ToolSuggestValues  = "suggest_values"
	ToolUpdateAccount  = "update_account"
	ToolBulkUpdate     = "bulk_update"
	ToolBulkDelete     = "bulk_delete"
	ToolExportAccounts = "export_accounts"
)

// Options configures the tool server.
type Options struct {
	Classifier  *duration.Classifier
	Profile     export.Profile
	Destination export.Destination // where export_accounts writes files
}

// Common argument helpers for recurring tool option definitions.

func withFilters() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("search",
			mcp.Description("Case-insensitive substring matched against username, email, group and tag"),
		),
		mcp.WithString("group",
			mcp.Description("Exact group name"),
		),
		mcp.WithString("tag",
			mcp.Description("Exact tag name"),
		),
		mcp.WithString("duration",
			mcp.Description("Account age bucket in days"),
			mcp.Enum("0", "1", "2-7", "8-30", "31-365", "365+"),
		),
	}
}

func withIDs(desc string) mcp.ToolOption {
	return mcp.WithArray("ids",
		mcp.Required(),
		mcp.Description(desc),
		mcp.Items(map[string]any{"type": "integer"}),
	)
}

func withField() mcp.ToolOption {
	return mcp.WithString("field",
		mcp.Required(),
		mcp.Description("Field to change"),
		mcp.Enum("group", "tag"),
	)
}

// Serve creates an MCP server with account tools for owner and serves over
// stdio. It blocks until stdin is closed or the context is cancelled.
func Serve(ctx context.Context, backend query.Backend, owner string, opts Options) error {
	stdio := server.NewStdioServer(newServer(backend, owner, opts))
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

func newServer(backend query.Backend, owner string, opts Options) *server.MCPServer {
	s := server.NewMCPServer(
		"acctdash",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	h := newHandlers(backend, owner, opts)

	s.AddTool(listAccountsTool(), h.listAccounts)
	s.AddTool(getAccountTool(), h.getAccount)
	s.AddTool(suggestValuesTool(), h.suggestValues)
	s.AddTool(updateAccountTool(), h.updateAccount)
	s.AddTool(bulkUpdateTool(), h.bulkUpdate)
	s.AddTool(bulkDeleteTool(), h.bulkDelete)
	s.AddTool(exportAccountsTool(), h.exportAccounts)
	return s
}

func listAccountsTool() mcp.Tool {
	opts := []mcp.ToolOption{
		mcp.WithDescription("List accounts one grid page at a time, newest first. Returns rows with their age and the pagination summary."),
		mcp.WithReadOnlyHintAnnotation(true),
	}
	opts = append(opts, withFilters()...)
	opts = append(opts,
		mcp.WithNumber("page", mcp.Description("1-based page number (default 1)")),
		mcp.WithNumber("page_size", mcp.Description("Rows per page: 10, 15, 25, 50 or 100 (default 15)")),
	)
	return mcp.NewTool(ToolListAccounts, opts...)
}

func getAccountTool() mcp.Tool {
	return mcp.NewTool(ToolGetAccount,
		mcp.WithDescription("Get one account including its user agent, cookies and note."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithNumber("id",
			mcp.Required(),
			mcp.Description("Account ID"),
		),
	)
}

func suggestValuesTool() mcp.Tool {
	return mcp.NewTool(ToolSuggestValues,
		mcp.WithDescription("List the distinct group or tag values in use, optionally narrowed by a substring."),
		mcp.WithReadOnlyHintAnnotation(true),
		withField(),
		mcp.WithString("q", mcp.Description("Case-insensitive substring")),
	)
}

func updateAccountTool() mcp.Tool {
	return mcp.NewTool(ToolUpdateAccount,
		mcp.WithDescription("Edit one account. Only the given fields change; the owner email cannot be edited."),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Account ID")),
		mcp.WithString("username", mcp.Description("New username")),
		mcp.WithString("user_agent", mcp.Description("New user agent")),
		mcp.WithString("group", mcp.Description("New group")),
		mcp.WithString("tag", mcp.Description("New tag")),
		mcp.WithString("note", mcp.Description("New note")),
	)
}

func bulkUpdateTool() mcp.Tool {
	return mcp.NewTool(ToolBulkUpdate,
		mcp.WithDescription("Set group or tag on many accounts in one atomic call. Returns the IDs actually changed."),
		mcp.WithDestructiveHintAnnotation(false),
		withIDs("Account IDs to change"),
		withField(),
		mcp.WithString("value", mcp.Required(), mcp.Description("New non-empty value")),
	)
}

func bulkDeleteTool() mcp.Tool {
	return mcp.NewTool(ToolBulkDelete,
		mcp.WithDescription("Permanently delete many accounts in one atomic call. Requires confirm=true."),
		mcp.WithDestructiveHintAnnotation(true),
		withIDs("Account IDs to delete"),
		mcp.WithBoolean("confirm",
			mcp.Required(),
			mcp.Description("Must be true; deletion cannot be undone"),
		),
	)
}

func exportAccountsTool() mcp.Tool {
	opts := []mcp.ToolOption{
		mcp.WithDescription("Export accounts to an XLSX browser-profile import file or a CSV summary. Exports the listed ids, or every row matching the filters when all=true."),
		mcp.WithString("format",
			mcp.Description("File format (default xlsx)"),
			mcp.Enum("xlsx", "csv"),
		),
		mcp.WithArray("ids",
			mcp.Description("Account IDs to export"),
			mcp.Items(map[string]any{"type": "integer"}),
		),
		mcp.WithBoolean("all", mcp.Description("Export every row matching the filters")),
	}
	opts = append(opts, withFilters()...)
	return mcp.NewTool(ToolExportAccounts, opts...)
}
