// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes AutoDS snapshots to LLM clients via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/autods/internal/apperr"
	"github.com/starford/autods/internal/frame"
	"github.com/starford/autods/internal/session"
	"github.com/starford/autods/internal/transform"
	"github.com/starford/autods/internal/workbench"
)

const contractURI = "autods://snapshot-contract"

// Server wraps the MCP server with AutoDS tools.
type Server struct {
	mcp  *server.MCPServer
	svc  *workbench.Service
	sess *session.Session
}

// New creates a new MCP server with all AutoDS tools registered.
// Transformations run in a session owned by the server.
func New(svc *workbench.Service) *Server {
	s := &Server{svc: svc, sess: svc.Sessions().Create()}

	s.mcp = server.NewMCPServer(
		"AutoDS",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_snapshots",
		mcp.WithDescription("List saved snapshot ids, newest first. Optionally only those of one dataset."),
		mcp.WithString("base", mcp.Description("Optional dataset name to filter by")),
	), s.listSnapshots)

	s.mcp.AddTool(mcp.NewTool("latest_version",
		mcp.WithDescription("Return metadata of the newest snapshot of a dataset."),
		mcp.WithString("base", mcp.Required(), mcp.Description("Dataset name (e.g. sales)")),
	), s.latestVersion)

	s.mcp.AddTool(mcp.NewTool("describe_snapshot",
		mcp.WithDescription("Shape, columns, sample rows and numeric statistics of a snapshot, as Markdown."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Snapshot id")),
		mcp.WithNumber("rows", mcp.Description("Sample rows to include (default 5)")),
	), s.describeSnapshot)

	s.mcp.AddTool(mcp.NewTool("query_snapshot",
		mcp.WithDescription("Run one read-only SQL statement against a snapshot exposed as table \"snapshot\". "+
			"Read the contract via get_snapshot_contract first."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Snapshot id")),
		mcp.WithString("sql", mcp.Required(), mcp.Description("SELECT/WITH/SUMMARIZE/DESCRIBE statement")),
	), s.querySnapshot)

	s.mcp.AddTool(mcp.NewTool("search_snapshots",
		mcp.WithDescription("Search snapshots by id, note or column name."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search string")),
	), s.searchSnapshots)

	s.mcp.AddTool(mcp.NewTool("transform_snapshot",
		mcp.WithDescription("Apply one transformation to a snapshot and save the result as a new version."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Snapshot id to start from")),
		mcp.WithString("op", mcp.Required(), mcp.Description("Operation: "+strings.Join(transform.Names(), ", "))),
		mcp.WithString("params", mcp.Description("Operation parameters as a JSON object")),
	), s.transformSnapshot)

	s.mcp.AddTool(mcp.NewTool("get_snapshot_contract",
		mcp.WithDescription("Returns the snapshot naming, query and transformation contract."),
	), s.getContract)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Snapshot Contract",
			mcp.WithResourceDescription("How snapshots are named, queried and transformed."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func toolError(err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError("not found: " + err.Error())
	}
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}

func (s *Server) listSnapshots(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids, err := s.svc.List()
	if err != nil {
		return toolError(err), nil
	}
	if base := req.GetString("base", ""); base != "" {
		filtered := ids[:0]
		for _, id := range ids {
			if strings.HasPrefix(id, base+"_v") {
				filtered = append(filtered, id)
			}
		}
		ids = filtered
	}
	if len(ids) == 0 {
		return mcp.NewToolResultText("no snapshots found"), nil
	}
	return mcp.NewToolResultText(strings.Join(ids, "\n")), nil
}

func (s *Server) latestVersion(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	base, err := req.RequireString("base")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	meta, err := s.svc.Latest(ctx, base)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(meta), nil
}

func (s *Server) describeSnapshot(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rows := req.GetInt("rows", 5)
	f, err := s.svc.Frame(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(frame.Markdown(id, f, rows)), nil
}

func (s *Server) querySnapshot(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	query, err := req.RequireString("sql")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.Query(ctx, id, query)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(res), nil
}

func (s *Server) searchSnapshots(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(query, 20)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(results), nil
}

func (s *Server) transformSnapshot(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	op, err := req.RequireString("op")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	params := transform.Params{}
	if raw := req.GetString("params", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &params); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("params: %v", err)), nil
		}
	}

	if _, err := s.svc.Load(ctx, s.sess, id); err != nil {
		return toolError(err), nil
	}
	snap, err := s.svc.Apply(ctx, s.sess, op, params)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(snap.SnapshotMeta), nil
}

func (s *Server) getContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(StorageContract), nil
}

func (s *Server) readContractResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     StorageContract,
		},
	}, nil
}
