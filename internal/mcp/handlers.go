package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"slices"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/config"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/errors"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/ops"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/segment"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	db        *sql.DB
	cfg       *config.Config
	extractor ops.TopicExtractor
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(db *sql.DB, cfg *config.Config, extractor ops.TopicExtractor) *Handlers {
	return &Handlers{db: db, cfg: cfg, extractor: extractor}
}

// ExtractRequest represents the arguments for topics_extract.
type ExtractRequest struct {
	Conversation string `json:"conversation"`
	Title        string `json:"title,omitempty"`
}

// SegmentRequest represents the arguments for transcript_segment.
type SegmentRequest struct {
	Conversation string `json:"conversation"`
}

// SegmentResult is the transcript_segment response.
type SegmentResult struct {
	Messages []segment.Message   `json:"messages"`
	Counts   map[segment.Role]int `json:"counts"`
}

// FetchRequest represents the arguments for conversation_fetch.
type FetchRequest struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id,omitempty"`
}

// ListRequest represents the arguments for conversation_list.
type ListRequest struct {
	OwnerID string `json:"owner_id"`
	Limit   int    `json:"limit,omitempty"`
	Offset  int    `json:"offset,omitempty"`
}

// ExportRequest represents the arguments for conversation_export.
type ExportRequest struct {
	OwnerID string `json:"owner_id"`
	Path    string `json:"path"`
}

// ImportRequest represents the arguments for conversation_import.
type ImportRequest struct {
	OwnerID string `json:"owner_id"`
	Path    string `json:"path"`
}

// HandleExtract handles the topics_extract tool call.
func (h *Handlers) HandleExtract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExtractRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Analyze(ctx, h.extractor, ops.AnalyzeInput{
		Conversation: input.Conversation,
		Title:        input.Title,
		MinChars:     h.cfg.MinTranscriptChars,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleSegment handles the transcript_segment tool call.
func (h *Handlers) HandleSegment(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SegmentRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.Conversation == "" {
		return errorResult(errors.NewInvalidRequest("conversation is required")), nil
	}

	messages := segment.Messages(input.Conversation)
	if messages == nil {
		messages = []segment.Message{}
	}

	return successResult(SegmentResult{
		Messages: messages,
		Counts:   segment.Counts(slices.Values(messages)),
	})
}

// HandleFetch handles the conversation_fetch tool call.
func (h *Handlers) HandleFetch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FetchRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.GetConversation(ctx, h.db, ops.GetConversationInput{
		ID:      input.ID,
		OwnerID: input.OwnerID,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleList handles the conversation_list tool call.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ListConversations(ctx, h.db, ops.ListInput{
		OwnerID: input.OwnerID,
		Limit:   input.Limit,
		Offset:  input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleExport handles the conversation_export tool call.
func (h *Handlers) HandleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Export(ctx, h.db, ops.ExportInput{
		OwnerID: input.OwnerID,
		Path:    input.Path,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleImport handles the conversation_import tool call.
func (h *Handlers) HandleImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ImportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Import(ctx, h.db, ops.ImportInput{
		OwnerID: input.OwnerID,
		Path:    input.Path,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Internal error details are never exposed.
func errorResult(err error) *mcp.CallToolResult {
	payload := map[string]any{
		"error": map[string]any{
			"code":    errors.ErrInternal,
			"message": "an internal error occurred",
			"status":  500,
		},
	}

	if tfErr, ok := err.(*errors.TopicFlowError); ok && tfErr.Code != errors.ErrInternal {
		errorObj := map[string]any{
			"code":    tfErr.Code,
			"message": tfErr.Message,
			"status":  tfErr.Status,
		}
		if tfErr.Details != nil {
			errorObj["details"] = tfErr.Details
		}
		payload = map[string]any{"error": errorObj}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
