package mcp

import "github.com/mark3labs/mcp-go/mcp"

var extractToolDef = mcp.NewTool("topics_extract",
	mcp.WithDescription("Split an AI conversation transcript into titled topics with character positions. "+
		"Uses the configured language model and falls back to a heuristic split when it is unavailable."),
	mcp.WithString("conversation",
		mcp.Required(),
		mcp.Description("Transcript text, typically lines prefixed with \"User:\" and \"AI:\""),
	),
	mcp.WithString("title",
		mcp.Description("Optional title; defaults to a title derived from the transcript"),
	),
	mcp.WithReadOnlyHintAnnotation(true),
)

var segmentToolDef = mcp.NewTool("transcript_segment",
	mcp.WithDescription("Split a transcript into user, assistant and plain messages with their character offsets."),
	mcp.WithString("conversation",
		mcp.Required(),
		mcp.Description("Transcript text"),
	),
	mcp.WithReadOnlyHintAnnotation(true),
)

var fetchToolDef = mcp.NewTool("conversation_fetch",
	mcp.WithDescription("Fetch a saved conversation with its transcript and topics."),
	mcp.WithString("id",
		mcp.Required(),
		mcp.Description("Conversation ID"),
	),
	mcp.WithString("owner_id",
		mcp.Description("When set, only a conversation owned by this user is returned"),
	),
	mcp.WithReadOnlyHintAnnotation(true),
)

var listToolDef = mcp.NewTool("conversation_list",
	mcp.WithDescription("List a user's saved conversations, newest first, without transcripts."),
	mcp.WithString("owner_id",
		mcp.Required(),
		mcp.Description("User ID"),
	),
	mcp.WithNumber("limit",
		mcp.Description("Page size (default 20, max 100)"),
	),
	mcp.WithNumber("offset",
		mcp.Description("Number of items to skip"),
	),
	mcp.WithReadOnlyHintAnnotation(true),
)

var exportToolDef = mcp.NewTool("conversation_export",
	mcp.WithDescription("Export a user's conversations and topics to a zstd-compressed JSONL archive."),
	mcp.WithString("owner_id",
		mcp.Required(),
		mcp.Description("User ID"),
	),
	mcp.WithString("path",
		mcp.Required(),
		mcp.Description("Destination file; must end in .jsonl.zst"),
	),
)

var importToolDef = mcp.NewTool("conversation_import",
	mcp.WithDescription("Import conversations from an export archive into a user's account. Every item gets a new ID."),
	mcp.WithString("owner_id",
		mcp.Required(),
		mcp.Description("User ID that will own the imported conversations"),
	),
	mcp.WithString("path",
		mcp.Required(),
		mcp.Description("Archive file written by conversation_export"),
	),
)
