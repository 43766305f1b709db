// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/poiesic/kbingest"
	"github.com/poiesic/kbingest/config"
	slogmulti "github.com/samber/slog-multi"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// app carries state shared by the commands of one invocation.
type app struct {
	out      io.Writer
	cfg      *config.Config
	dbOpts   []kbingest.DatabaseOption
	closeLog func() error
}

func newApp(out io.Writer, dbOpts ...kbingest.DatabaseOption) *cli.App {
	a := &app{out: out, dbOpts: dbOpts}

	addrFlag := func() cli.Flag {
		return &cli.StringFlag{
			Name:    "addr",
			Aliases: []string{"a"},
			Usage:   "Talk to a running server at this URL instead of opening the store",
		}
	}
	jsonFlag := func() cli.Flag {
		return &cli.BoolFlag{
			Name:  "json",
			Usage: "Print JSON instead of a table",
		}
	}

	return &cli.App{
		Name:      "kbingest",
		Usage:     "Ingest documents into a searchable knowledge base",
		Writer:    out,
		ErrWriter: os.Stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Also write JSON logs to this file",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML config file",
				EnvVars: []string{"KBINGEST_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Aliases: []string{"d"},
				Usage:   "Path to the BadgerDB data directory (overrides the config file)",
			},
		},
		Before: a.before,
		After:  a.after,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the ingestion workers and the HTTP API",
				Action: a.serveCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "listen",
						Usage: "Address to listen on (overrides the config file)",
					},
				},
			},
			{
				Name:      "ingest",
				Usage:     "Submit files and follow them until they finish",
				ArgsUsage: "PATH...",
				Action:    a.ingestCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "description",
						Usage: "Label stored with every submitted source",
					},
					&cli.BoolFlag{
						Name:  "no-wait",
						Usage: "Return once the files are queued (only with --addr)",
					},
					addrFlag(),
				},
			},
			{
				Name:      "refresh",
				Usage:     "Re-ingest one source, or every finished source with --all",
				ArgsUsage: "[ID]",
				Action:    a.refreshCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "all",
						Usage: "Refresh every source that is not currently active",
					},
					&cli.BoolFlag{
						Name:  "no-wait",
						Usage: "Return once the sources are queued (only with --addr)",
					},
					addrFlag(),
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a source and its chunks",
				ArgsUsage: "ID",
				Action:    a.deleteCommand,
				Flags:     []cli.Flag{addrFlag()},
			},
			{
				Name:   "list",
				Usage:  "List knowledge sources",
				Action: a.listCommand,
				Flags:  []cli.Flag{addrFlag(), jsonFlag()},
			},
			{
				Name:   "stats",
				Usage:  "Show document and chunk counts",
				Action: a.statsCommand,
				Flags:  []cli.Flag{addrFlag(), jsonFlag()},
			},
			{
				Name:      "search",
				Usage:     "Find chunks similar to a query",
				ArgsUsage: "QUERY",
				Action:    a.searchCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "top-k",
						Aliases: []string{"k"},
						Usage:   "Maximum number of results",
						Value:   5,
					},
					&cli.Uint64SliceFlag{
						Name:  "source",
						Usage: "Only search chunks of these source IDs",
					},
					addrFlag(),
					jsonFlag(),
				},
			},
			{
				Name:   "watch",
				Usage:  "Follow ingestion progress on a running server",
				Action: a.watchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "addr",
						Aliases: []string{"a"},
						Usage:   "Server URL",
						Value:   "http://localhost:8080",
						EnvVars: []string{"KBINGEST_SERVER_URL"},
					},
					&cli.DurationFlag{
						Name:  "interval",
						Usage: "Delay between polls while sources are active",
						Value: time.Second,
					},
					&cli.DurationFlag{
						Name:  "idle-interval",
						Usage: "Delay between polls while nothing is active",
						Value: 5 * time.Second,
					},
					&cli.BoolFlag{
						Name:  "until-idle",
						Usage: "Exit once no source is active",
					},
				},
			},
			{
				Name:   "config",
				Usage:  "Print the effective configuration",
				Action: a.configCommand,
			},
		},
	}
}

func (a *app) before(c *cli.Context) error {
	if err := a.setupLogger(c); err != nil {
		return err
	}

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if dir := c.String("data-dir"); dir != "" {
		cfg.DataDir = dir
	}
	a.cfg = cfg
	return nil
}

func (a *app) after(c *cli.Context) error {
	if a.closeLog != nil {
		return a.closeLog()
	}
	return nil
}

func (a *app) setupLogger(c *cli.Context) error {
	level, err := parseLevel(c.String("log-level"))
	if err != nil {
		return err
	}

	stderrHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})

	logFile := c.String("log-file")
	if logFile == "" {
		slog.SetDefault(slog.New(stderrHandler))
		return nil
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(slogmulti.Fanout(stderrHandler, fileHandler)))
	a.closeLog = file.Close
	return nil
}

func parseLevel(value string) (slog.Level, error) {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(value)

	switch levelStr {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}
}
