package ops

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/errors"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/extract"
)

func readArchiveLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	zr, err := zstd.NewReader(f)
	require.NoError(t, err)
	defer zr.Close()

	var lines []string
	scanner := bufio.NewScanner(zr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.NoError(t, scanner.Err())
	return lines
}

func writeArchive(t *testing.T, path string, lines ...string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw, err := zstd.NewWriter(f)
	require.NoError(t, err)
	for _, l := range lines {
		_, err := zw.Write([]byte(l + "\n"))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func TestExport_WritesHeaderAndRecords(t *testing.T) {
	database := setupDB(t)
	ctx := context.Background()

	c, err := CreateConversation(ctx, database, "owner-1", "First", businessTranscript)
	require.NoError(t, err)
	_, err = CreateTopics(ctx, database, c.ID, sampleResult().Topics)
	require.NoError(t, err)
	_, err = CreateConversation(ctx, database, "owner-2", "Not mine", "content")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "backup"+ExportExt)
	out, err := Export(ctx, database, ExportInput{OwnerID: "owner-1", Path: path})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Count)
	assert.Equal(t, path, out.Path)

	lines := readArchiveLines(t, path)
	require.Len(t, lines, 2)

	var header ExportHeader
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &header))
	assert.True(t, header.TopicFlowExport)
	assert.Equal(t, ExportSchemaVersion, header.SchemaVersion)

	var record ExportRecord
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &record))
	assert.Equal(t, c.ID, record.Conversation.ID)
	require.Len(t, record.Topics, 2)
	assert.Equal(t, "Later section", record.Topics[0].Title)
}

func TestExport_DefaultPath(t *testing.T) {
	database := setupDB(t)
	dir := t.TempDir()

	out, err := Export(context.Background(), database, ExportInput{OwnerID: "owner/1", Dir: dir})
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(out.Path))
	assert.Contains(t, filepath.Base(out.Path), "owner-1-")
	assert.Equal(t, 0, out.Count)

	_, err = os.Stat(out.Path)
	assert.NoError(t, err)
}

func TestExport_InvalidInput(t *testing.T) {
	database := setupDB(t)
	ctx := context.Background()

	_, err := Export(ctx, database, ExportInput{Path: "/tmp/x" + ExportExt})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))

	_, err = Export(ctx, database, ExportInput{OwnerID: "o"})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))

	_, err = Export(ctx, database, ExportInput{OwnerID: "o", Path: filepath.Join(t.TempDir(), "x.json")})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestExportImport_RoundTrip(t *testing.T) {
	src := setupDB(t)
	ctx := context.Background()

	c, err := CreateConversation(ctx, src, "owner-1", "Keep me", businessTranscript)
	require.NoError(t, err)
	_, err = CreateTopics(ctx, src, c.ID, sampleResult().Topics)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "rt"+ExportExt)
	_, err = Export(ctx, src, ExportInput{OwnerID: "owner-1", Path: path})
	require.NoError(t, err)

	dst := setupDB(t)
	out, err := Import(ctx, dst, ImportInput{OwnerID: "new-owner", Path: path})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Imported)
	assert.Equal(t, 0, out.Skipped)

	list, err := ListConversations(ctx, dst, ListInput{OwnerID: "new-owner"})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.NotEqual(t, c.ID, list.Items[0].ID, "imports get fresh IDs")
	assert.Equal(t, c.CreatedAt, list.Items[0].CreatedAt)

	got, err := GetConversation(ctx, dst, GetConversationInput{ID: list.Items[0].ID})
	require.NoError(t, err)
	assert.Equal(t, businessTranscript, got.Conversation.Content)
	require.Len(t, got.Topics, 2)
	assert.Equal(t, "Later section", got.Topics[0].Title)
	assert.Equal(t, "Opening", got.Topics[1].Title)
}

func TestImport_SkipsBadLines(t *testing.T) {
	database := setupDB(t)
	path := filepath.Join(t.TempDir(), "bad"+ExportExt)
	writeArchive(t, path,
		`{"_topicflow_export":true,"schema_version":"1.0","exported_at":1}`,
		`not json`,
		`{"conversation":{"title":"empty"},"topics":[]}`,
		`{"conversation":{"title":"ok","content":"User: hi","created_at":5,"updated_at":5},"topics":[]}`,
	)

	out, err := Import(context.Background(), database, ImportInput{OwnerID: "o", Path: path})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Imported)
	assert.Equal(t, 2, out.Skipped)
	require.Len(t, out.Errors, 2)
	assert.Equal(t, 2, out.Errors[0].Line)
	assert.Equal(t, "PARSE_ERROR", out.Errors[0].Code)
	assert.Equal(t, "INVALID_RECORD", out.Errors[1].Code)
}

func TestImport_RejectsInvalidTopics(t *testing.T) {
	database := setupDB(t)
	path := filepath.Join(t.TempDir(), "topics"+ExportExt)
	long := strings.Repeat("t", 51)
	writeArchive(t, path,
		`{"_topicflow_export":true,"schema_version":"1.0","exported_at":1}`,
		`{"conversation":{"title":"span","content":"User: hi"},"topics":[{"title":"A","summary":"B","position_start":0,"position_end":500}]}`,
		`{"conversation":{"title":"reversed","content":"User: hi"},"topics":[{"title":"A","summary":"B","position_start":5,"position_end":2}]}`,
		`{"conversation":{"title":"blank","content":"User: hi"},"topics":[{"title":"  ","summary":"B","position_start":0,"position_end":2}]}`,
		`{"conversation":{"title":"long","content":"User: hi"},"topics":[{"title":"`+long+`","summary":"B","position_start":0,"position_end":2}]}`,
		`{"conversation":{"title":"ok","content":"User: hi"},"topics":[{"title":"A","summary":"B","position_start":0,"position_end":8}]}`,
	)

	out, err := Import(context.Background(), database, ImportInput{OwnerID: "o", Path: path})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Imported)
	assert.Equal(t, 4, out.Skipped)
	for i, e := range out.Errors {
		assert.Equal(t, i+2, e.Line)
		assert.Equal(t, "INVALID_RECORD", e.Code)
	}

	list, err := ListConversations(context.Background(), database, ListInput{OwnerID: "o"})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "ok", list.Items[0].Title)
}

func TestImport_RejectsTooManyTopics(t *testing.T) {
	database := setupDB(t)
	path := filepath.Join(t.TempDir(), "many"+ExportExt)
	topics := make([]string, extract.MaxTopics+1)
	for i := range topics {
		topics[i] = `{"title":"A","summary":"B","position_start":0,"position_end":1}`
	}
	writeArchive(t, path,
		`{"_topicflow_export":true,"schema_version":"1.0","exported_at":1}`,
		`{"conversation":{"content":"User: hi"},"topics":[`+strings.Join(topics, ",")+`]}`,
	)

	out, err := Import(context.Background(), database, ImportInput{OwnerID: "o", Path: path})
	require.NoError(t, err)
	assert.Equal(t, 0, out.Imported)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, "INVALID_RECORD", out.Errors[0].Code)
}

func TestImport_TopicFailureLeavesNoConversation(t *testing.T) {
	database := setupDB(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reject"+ExportExt)
	writeArchive(t, path,
		`{"_topicflow_export":true,"schema_version":"1.0","exported_at":1}`,
		`{"conversation":{"title":"half","content":"User: hi"},"topics":[{"title":"A","summary":"B","position_start":0,"position_end":8}]}`,
	)

	_, err := database.Exec(`CREATE TRIGGER reject_topics BEFORE INSERT ON topics
		BEGIN SELECT RAISE(ABORT, 'topics rejected'); END`)
	require.NoError(t, err)

	out, err := Import(ctx, database, ImportInput{OwnerID: "o", Path: path})
	require.NoError(t, err)
	assert.Equal(t, 0, out.Imported)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, 2, out.Errors[0].Line)
	assert.Equal(t, "INSERT_ERROR", out.Errors[0].Code)

	list, err := ListConversations(ctx, database, ListInput{OwnerID: "o"})
	require.NoError(t, err)
	assert.Empty(t, list.Items)
}

func TestImport_RequiresHeader(t *testing.T) {
	database := setupDB(t)
	dir := t.TempDir()

	noHeader := filepath.Join(dir, "nohdr"+ExportExt)
	writeArchive(t, noHeader, `{"conversation":{"content":"x"},"topics":[]}`)
	_, err := Import(context.Background(), database, ImportInput{OwnerID: "o", Path: noHeader})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))

	empty := filepath.Join(dir, "empty"+ExportExt)
	writeArchive(t, empty)
	_, err = Import(context.Background(), database, ImportInput{OwnerID: "o", Path: empty})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestImport_MissingFile(t *testing.T) {
	_, err := Import(context.Background(), setupDB(t), ImportInput{
		OwnerID: "o", Path: filepath.Join(t.TempDir(), "missing"+ExportExt),
	})
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}
