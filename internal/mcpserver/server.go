// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Retronotes tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/retronotes/internal/apperr"
	"github.com/starford/retronotes/internal/models"
	"github.com/starford/retronotes/internal/noteservice"
)

// ExportFormatURI names the resource that documents exported files.
const ExportFormatURI = "retronotes://export-format"

// Server wraps the MCP server with Retronotes tools.
type Server struct {
	mcp *server.MCPServer
	svc *noteservice.Service
}

// New creates a new MCP server with all Retronotes tools registered.
func New(svc *noteservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Retronotes",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List every note in the workbook, in row order, as JSON."),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read a single note by its numeric ID."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note ID, e.g. \"3\"")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("save_note",
		mcp.WithDescription("Create a note, or overwrite the note with the given ID. "+
			"Omit id to create. A blank title is stored as \"Untitled\"."),
		mcp.WithString("id", mcp.Description("ID of the note to overwrite (optional)")),
		mcp.WithString("title", mcp.Description("Note title")),
		mcp.WithString("content", mcp.Description("Note body")),
	), s.saveNote)

	s.mcp.AddTool(mcp.NewTool("delete_note",
		mcp.WithDescription("Delete a note by ID. Unknown IDs are ignored."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note ID")),
	), s.deleteNote)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Case-insensitive search over titles and contents. "+
			"Full-text builds return word-prefix hits by relevance and fall back to "+
			"substring matching when there are none; other builds match substrings "+
			"in note order. An empty query returns every note."),
		mcp.WithString("query", mcp.Description("Search text")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("export_note",
		mcp.WithDescription("Encrypt a note with a password. Returns the suggested file name "+
			"and the ASCII payload; see the "+ExportFormatURI+" resource for the layout."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note ID")),
		mcp.WithString("password", mcp.Required(), mcp.Description("Non-empty export password")),
	), s.exportNote)

	s.mcp.AddResource(
		mcp.NewResource(ExportFormatURI, "Export File Format",
			mcp.WithResourceDescription("Layout and key derivation of encrypted note exports."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readExportFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// toolError turns a service error into a tool-level error result.
func toolError(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError("note not found")
	case errors.Is(err, apperr.ErrInvalidID):
		return mcp.NewToolResultError("invalid note id")
	case errors.Is(err, apperr.ErrEmptyPassword):
		return mcp.NewToolResultError("password must not be empty")
	case errors.Is(err, apperr.ErrTooLong):
		return mcp.NewToolResultError("note is too long")
	}
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	notes, err := s.svc.List(ctx)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(notes), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := models.ParseNoteID(raw)
	if err != nil {
		return toolError(err), nil
	}
	note, err := s.svc.Get(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(note), nil
}

func (s *Server) saveNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var id models.NoteID
	if raw := req.GetString("id", ""); raw != "" {
		parsed, err := models.ParseNoteID(raw)
		if err != nil {
			return toolError(err), nil
		}
		id = parsed
	}
	note, created, err := s.svc.Save(ctx, id, req.GetString("title", ""), req.GetString("content", ""))
	if err != nil {
		return toolError(err), nil
	}
	verb := "updated"
	if created {
		verb = "created"
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s note %s", verb, note.ID)), nil
}

func (s *Server) deleteNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := models.ParseNoteID(raw)
	if err != nil {
		return toolError(err), nil
	}
	if err := s.svc.Delete(ctx, id); err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted note %s", id)), nil
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	results, err := s.svc.Search(ctx, req.GetString("query", ""))
	if err != nil {
		return toolError(err), nil
	}
	if results == nil {
		results = []models.Note{}
	}
	return jsonResult(results), nil
}

// exportedNote is the export_note result body.
type exportedNote struct {
	Filename string `json:"filename"`
	Payload  string `json:"payload"`
}

func (s *Server) exportNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := models.ParseNoteID(raw)
	if err != nil {
		return toolError(err), nil
	}
	// An empty string passes RequireString; the service rejects it.
	password, err := req.RequireString("password")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	file, err := s.svc.Export(ctx, id, password)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(exportedNote{Filename: file.Filename, Payload: string(file.Payload)}), nil
}

func (s *Server) readExportFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      ExportFormatURI,
			MIMEType: "text/markdown",
			Text:     ExportFormatContract,
		},
	}, nil
}
