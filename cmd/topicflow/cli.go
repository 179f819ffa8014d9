package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/config"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/db"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/errors"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/extract"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/mcp"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/ops"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/segment"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/session"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/web"
)

// maxStdinBytes bounds transcripts read from stdin.
const maxStdinBytes = 10 << 20

// appState is resolved once per invocation by the app's Before hook.
// The database is opened only by commands that need it.
type appState struct {
	getenv func(string) string

	baseDir string
	cfg     *config.Config
	db      *sql.DB

	// extractor overrides the configured model client when set.
	extractor ops.TopicExtractor
}

func (s *appState) openDB() (*sql.DB, error) {
	if s.db != nil {
		return s.db, nil
	}
	database, err := db.Init(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	db.ConfigurePool(database, s.cfg)
	s.db = database
	return database, nil
}

func (s *appState) close() {
	if s.db != nil {
		s.db.Close()
		s.db = nil
	}
}

func (s *appState) topicExtractor() ops.TopicExtractor {
	if s.extractor != nil {
		return s.extractor
	}
	e := extract.NewFromConfig(s.cfg.Extraction)
	if !e.HasCredentials() {
		log.Printf("%s is not set; topics will come from the heuristic splitter", config.EnvDeepSeekAPIKey)
	}
	s.extractor = e
	return e
}

// newCLIApp creates the CLI application with all commands.
func newCLIApp(st *appState) *cli.App {
	app := &cli.App{
		Name:    "topicflow",
		Usage:   "Split AI conversation transcripts into navigable topics",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "base-dir",
				EnvVars: []string{"TOPICFLOW_HOME"},
				Usage:   "Data and config directory (default: ~/.topicflow)",
			},
		},
		Before: func(c *cli.Context) error {
			baseDir := c.String("base-dir")
			if baseDir == "" {
				home, err := os.UserHomeDir()
				if err != nil {
					return cli.Exit(fmt.Sprintf("could not determine home directory: %v", err), 1)
				}
				baseDir = filepath.Join(home, ".topicflow")
			}
			cfg, err := config.Load(baseDir)
			if err != nil {
				return cli.Exit(fmt.Sprintf("failed to load config: %v", err), 1)
			}
			cfg.ApplyEnv(st.getenv)

			st.baseDir = baseDir
			st.cfg = cfg
			return nil
		},
		After: func(*cli.Context) error {
			st.close()
			return nil
		},
		Commands: []*cli.Command{
			serveCmd(st),
			mcpCmd(st),
			analyzeCmd(st),
			segmentCmd(),
			listCmd(st),
			exportCmd(st),
			importCmd(st),
			sessionsCmd(st),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// serveCmd creates the serve command.
func serveCmd(st *appState) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the web application",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Aliases: []string{"b"}, Usage: "Interface to listen on (default from config)"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Port to listen on (default from config)"},
		},
		Action: func(c *cli.Context) error {
			database, err := st.openDB()
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			bind := st.cfg.Bind
			if c.IsSet("bind") {
				bind = c.String("bind")
			}
			port := st.cfg.Port
			if c.IsSet("port") {
				port = c.Int("port")
			}

			srv := web.NewServer(database, st.cfg, web.Options{
				Version:   Version,
				Extractor: st.topicExtractor(),
				Sessions:  session.NewSQLStore(database),
			}, bind, port)
			if err := web.Run(srv); err != nil {
				return cli.Exit(err.Error(), 1)
			}
			return nil
		},
	}
}

// mcpCmd creates the mcp command.
func mcpCmd(st *appState) *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the MCP tools over stdio",
		Action: func(c *cli.Context) error {
			if unknown := mcp.ValidateDisabledTools(st.cfg.DisabledTools); len(unknown) > 0 {
				log.Printf("ignoring unknown disabled_tools: %s (known: %s)",
					strings.Join(unknown, ", "), strings.Join(mcp.AllToolNames(), ", "))
			}

			database, err := st.openDB()
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			if err := mcp.Run(database, st.cfg, st.topicExtractor(), Version); err != nil {
				return cli.Exit(err.Error(), 1)
			}
			return nil
		},
	}
}

// analyzeCmd creates the analyze command.
func analyzeCmd(st *appState) *cli.Command {
	return &cli.Command{
		Name:  "analyze",
		Usage: "Extract topics from a transcript (reads the transcript from stdin)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "Conversation title"},
		},
		Action: func(c *cli.Context) error {
			transcript, err := readInput(c.App.Reader, maxStdinBytes)
			if err != nil {
				return outputError(err)
			}

			output, err := ops.Analyze(c.Context, st.topicExtractor(), ops.AnalyzeInput{
				Conversation: transcript,
				Title:        c.String("title"),
				MinChars:     st.cfg.MinTranscriptChars,
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(c.App.Writer, output)
		},
	}
}

// segmentOutput is the segment command's result.
type segmentOutput struct {
	Messages []segment.Message `json:"messages"`
}

// segmentCmd creates the segment command.
func segmentCmd() *cli.Command {
	return &cli.Command{
		Name:  "segment",
		Usage: "Split a transcript into role-tagged messages (reads from stdin)",
		Action: func(c *cli.Context) error {
			transcript, err := readInput(c.App.Reader, maxStdinBytes)
			if err != nil {
				return outputError(err)
			}

			messages := segment.Messages(transcript)
			if messages == nil {
				messages = []segment.Message{}
			}
			return outputJSON(c.App.Writer, segmentOutput{Messages: messages})
		},
	}
}

// listCmd creates the list command.
func listCmd(st *appState) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List a user's saved conversations",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "owner", Aliases: []string{"u"}, Required: true, Usage: "User ID"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 20, Usage: "Maximum items to return"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Items to skip"},
		},
		Action: func(c *cli.Context) error {
			database, err := st.openDB()
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			output, err := ops.ListConversations(c.Context, database, ops.ListInput{
				OwnerID: c.String("owner"),
				Limit:   c.Int("limit"),
				Offset:  c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(c.App.Writer, output)
		},
	}
}

// exportCmd creates the export command.
func exportCmd(st *appState) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export a user's conversations to a .jsonl.zst archive",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "owner", Aliases: []string{"u"}, Required: true, Usage: "User ID"},
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Export file path (default: <base-dir>/exports/<owner>-<timestamp>.jsonl.zst)"},
		},
		Action: func(c *cli.Context) error {
			database, err := st.openDB()
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			output, err := ops.Export(c.Context, database, ops.ExportInput{
				OwnerID: c.String("owner"),
				Path:    c.String("path"),
				Dir:     filepath.Join(st.baseDir, "exports"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(c.App.Writer, output)
		},
	}
}

// importCmd creates the import command.
func importCmd(st *appState) *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Import conversations from an export archive",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "owner", Aliases: []string{"u"}, Required: true, Usage: "User ID that will own the imported conversations"},
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Required: true, Usage: "Import file path"},
		},
		Action: func(c *cli.Context) error {
			database, err := st.openDB()
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			output, err := ops.Import(c.Context, database, ops.ImportInput{
				OwnerID: c.String("owner"),
				Path:    c.String("path"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(c.App.Writer, output)
		},
	}
}

// purgeOutput is the sessions purge result.
type purgeOutput struct {
	Purged int64 `json:"purged"`
}

// sessionsCmd creates the sessions command group.
func sessionsCmd(st *appState) *cli.Command {
	return &cli.Command{
		Name:  "sessions",
		Usage: "Manage sign-in sessions",
		Subcommands: []*cli.Command{
			{
				Name:  "purge",
				Usage: "Delete expired sessions",
				Action: func(c *cli.Context) error {
					database, err := st.openDB()
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}

					n, err := session.NewSQLStore(database).Purge(c.Context)
					if err != nil {
						return outputError(err)
					}

					return outputJSON(c.App.Writer, purgeOutput{Purged: n})
				},
			},
		},
	}
}

// Helper functions

// outputJSON writes v to w as indented JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if tfErr, ok := err.(*errors.TopicFlowError); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", tfErr.Code, tfErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// readInput reads all of r, up to limit bytes. The transcript is returned
// untrimmed so that offsets match what was piped in.
func readInput(r io.Reader, limit int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return "", errors.NewInternal(err)
	}
	if int64(len(data)) > limit {
		return "", errors.NewInvalidRequest(fmt.Sprintf("input exceeds %d bytes", limit))
	}
	return string(data), nil
}
