package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/poiesic/kbingest/api"
	"github.com/poiesic/kbingest/core"
	"github.com/poiesic/kbingest/poller"
)

// progressPrinter prints one line per source whenever its state changes.
type progressPrinter struct {
	out  io.Writer
	only map[core.ID]bool
	last map[core.ID]string
}

// newProgressPrinter follows ids, or every source when none are given.
func newProgressPrinter(out io.Writer, ids ...core.ID) *progressPrinter {
	p := &progressPrinter{out: out, last: make(map[core.ID]string)}
	if len(ids) > 0 {
		p.only = make(map[core.ID]bool, len(ids))
		for _, id := range ids {
			p.only[id] = true
		}
	}
	return p
}

func (p *progressPrinter) tracks(id core.ID) bool {
	return p.only == nil || p.only[id]
}

func (p *progressPrinter) print(snap *poller.Snapshot) {
	for _, item := range snap.Items {
		if !p.tracks(item.Source.Id) {
			continue
		}
		line := progressLine(item)
		if p.last[item.Source.Id] == line {
			continue
		}
		p.last[item.Source.Id] = line
		fmt.Fprintln(p.out, line)
	}
}

func progressLine(item poller.Item) string {
	src := item.Source
	prefix := fmt.Sprintf("[%d] %s:", src.Id, src.Filename)
	switch src.Status {
	case core.StatusRunning:
		line := fmt.Sprintf("%s %s %d%%", prefix, src.CurrentStep, src.Progress)
		if item.ETA != "" {
			line += " (" + item.ETA + ")"
		}
		return line
	case core.StatusCompleted:
		return fmt.Sprintf("%s completed, %d chunks", prefix, src.ChunkCount)
	case core.StatusFailed:
		return fmt.Sprintf("%s failed: %s", prefix, src.ErrorMessage)
	default:
		return fmt.Sprintf("%s %s", prefix, src.Status)
	}
}

func writeSourceTable(out io.Writer, items []poller.Item) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tFILE\tSTATUS\tPROGRESS\tCHUNKS\tFEATURES\tDETAIL")
	for _, item := range items {
		src := item.Source
		detail := src.Description
		switch src.Status {
		case core.StatusRunning:
			detail = strings.TrimSpace(src.CurrentStep + " " + item.ETA)
		case core.StatusFailed:
			detail = src.ErrorMessage
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d%%\t%d\t%s\t%s\n",
			src.Id,
			src.Filename,
			src.Status,
			src.Progress,
			src.ChunkCount,
			strings.Join(src.VisibleFeatures(), ","),
			detail,
		)
	}
	return w.Flush()
}

func writeResults(out io.Writer, results []*core.SearchResult) {
	if len(results) == 0 {
		fmt.Fprintln(out, "no matches")
		return
	}
	for i, r := range results {
		location := fmt.Sprintf("%s#%d", filepath.Base(r.Chunk.Source), r.Chunk.Index)
		if r.Chunk.Page > 0 {
			location += fmt.Sprintf(" p.%d", r.Chunk.Page)
		}
		fmt.Fprintf(out, "%d. [%.3f] %s (source %d)\n", i+1, r.Score, location, r.Chunk.SourceId)
		fmt.Fprintf(out, "   %s\n", snippet(r.Chunk.Text, 200))
	}
}

// snippet flattens whitespace and cuts text to at most n runes.
func snippet(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}

func sourceViews(items []poller.Item) []*api.SourceView {
	views := make([]*api.SourceView, len(items))
	for i, item := range items {
		views[i] = &api.SourceView{
			KnowledgeSource: item.Source,
			Features:        item.Source.VisibleFeatures(),
			ETA:             item.ETA,
		}
	}
	return views
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
