package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/poiesic/kbingest/api"
	"github.com/poiesic/kbingest/core"
	"github.com/poiesic/kbingest/poller"
	"github.com/urfave/cli/v2"
)

// open returns a remote backend when --addr is set and opens the local
// store otherwise.
func (a *app) open(c *cli.Context) (backend, error) {
	if addr := c.String("addr"); addr != "" {
		return &remoteBackend{client: api.NewClient(addr)}, nil
	}
	return openLocal(c.Context, a.cfg, a.dbOpts...)
}

func (a *app) ingestCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("at least one PATH is required")
	}
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := a.open(c)
	if err != nil {
		return err
	}
	defer b.Close()

	var ids []core.ID
	rejected := 0
	for _, path := range c.Args().Slice() {
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		src, err := b.Submit(ctx, abs, c.String("description"))
		if err != nil {
			fmt.Fprintf(c.App.ErrWriter, "%s: %v\n", path, err)
			rejected++
			continue
		}
		fmt.Fprintf(a.out, "queued %s as source %d\n", src.Filename, src.Id)
		ids = append(ids, src.Id)
	}

	failed, err := a.followIfNeeded(ctx, c, b, ids)
	if err != nil {
		return err
	}
	if n := rejected + failed; n > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d files failed", n, c.NArg()), 1)
	}
	return nil
}

func (a *app) refreshCommand(c *cli.Context) error {
	all := c.Bool("all")
	if all == (c.NArg() > 0) {
		return fmt.Errorf("give either a source ID or --all")
	}
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var id core.ID
	if !all {
		var err error
		if id, err = parseID(c.Args().First()); err != nil {
			return err
		}
	}

	b, err := a.open(c)
	if err != nil {
		return err
	}
	defer b.Close()

	var ids []core.ID
	if all {
		queued, skipped, err := b.RefreshAll(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "queued %d sources, skipped %d active\n", len(queued), len(skipped))
		ids = queued
	} else {
		src, err := b.Refresh(ctx, id)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "queued %s (source %d) for refresh\n", src.Filename, src.Id)
		ids = []core.ID{src.Id}
	}

	failed, err := a.followIfNeeded(ctx, c, b, ids)
	if err != nil {
		return err
	}
	if failed > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d sources failed", failed, len(ids)), 1)
	}
	return nil
}

// followIfNeeded polls until ids are terminal and returns how many failed.
// Jobs of a local store only run while this process lives, so it always
// waits for them.
func (a *app) followIfNeeded(ctx context.Context, c *cli.Context, b backend, ids []core.ID) (int, error) {
	if len(ids) == 0 || (b.Remote() && c.Bool("no-wait")) {
		return 0, nil
	}

	p := poller.New(b)
	if l, ok := b.(*localBackend); ok {
		l.notify = p.Trigger
	}

	printer := newProgressPrinter(a.out, ids...)
	final, err := p.RunUntilIdle(ctx, printer.print)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return 0, cli.Exit("interrupted; unfinished sources are marked interrupted on the next start", 130)
		}
		return 0, err
	}

	failed := 0
	for _, item := range final.Items {
		if printer.tracks(item.Source.Id) && item.Source.Status == core.StatusFailed {
			failed++
		}
	}
	return failed, nil
}

func (a *app) deleteCommand(c *cli.Context) error {
	id, err := parseID(c.Args().First())
	if err != nil {
		return err
	}

	b, err := a.open(c)
	if err != nil {
		return err
	}
	defer b.Close()

	if err := b.Delete(c.Context, id); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "deleted source %d\n", id)
	return nil
}

func (a *app) listCommand(c *cli.Context) error {
	b, err := a.open(c)
	if err != nil {
		return err
	}
	defer b.Close()

	snap, err := poller.New(b).Poll(c.Context)
	if err != nil {
		return err
	}
	if c.Bool("json") {
		return writeJSON(a.out, sourceViews(snap.Items))
	}
	return writeSourceTable(a.out, snap.Items)
}

func (a *app) statsCommand(c *cli.Context) error {
	b, err := a.open(c)
	if err != nil {
		return err
	}
	defer b.Close()

	stats, err := b.Stats(c.Context)
	if err != nil {
		return err
	}
	if c.Bool("json") {
		return writeJSON(a.out, stats)
	}
	fmt.Fprintf(a.out, "documents: %d\nchunks:    %d\n", stats.DocumentCount, stats.ChunkCount)
	return nil
}

func (a *app) searchCommand(c *cli.Context) error {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return fmt.Errorf("QUERY is required")
	}
	var sources []core.ID
	for _, id := range c.Uint64Slice("source") {
		sources = append(sources, core.ID(id))
	}

	b, err := a.open(c)
	if err != nil {
		return err
	}
	defer b.Close()

	results, err := b.Search(c.Context, query, c.Int("top-k"), sources)
	if err != nil {
		return err
	}
	if c.Bool("json") {
		return writeJSON(a.out, api.SearchResponse{Results: results})
	}
	writeResults(a.out, results)
	return nil
}

func (a *app) watchCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := poller.New(api.NewClient(c.String("addr")),
		poller.WithInterval(c.Duration("interval")),
		poller.WithIdleInterval(c.Duration("idle-interval")),
	)
	printer := newProgressPrinter(a.out)

	if c.Bool("until-idle") {
		_, err := p.RunUntilIdle(ctx, printer.print)
		return ignoreCanceled(err)
	}
	return ignoreCanceled(p.Run(ctx, printer.print))
}

func (a *app) configCommand(c *cli.Context) error {
	out, err := a.cfg.YAML()
	if err != nil {
		return err
	}
	_, err = a.out.Write(out)
	return err
}

func parseID(arg string) (core.ID, error) {
	if arg == "" {
		return 0, fmt.Errorf("source ID is required")
	}
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid source ID %q", arg)
	}
	return core.ID(id), nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
