package cmd

import (
	"fmt"
	"strings"

	"github.com/corey/thoughts/internal/adapters/socket"
)

// ANSI color codes for terminal output.
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorCyan   = "\033[36m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorGray   = "\033[90m"
)

// formatStatus renders a daemon status report.
//
//	⚡ idle │ 3 users │ 12 phrases │ 40 occurrences │ up 2m0s
//	  42     7 phrases  31 total
func formatStatus(st *socket.StatusResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s⚡ %s%s │ %d users │ %d phrases │ %d occurrences │ up %s\n",
		colorBold, st.State, colorReset, len(st.Authors), st.Phrases, st.Occurrences, st.Uptime)
	for _, a := range st.Authors {
		fmt.Fprintf(&sb, "  %s%-20s%s %4d phrases  %5d total\n", colorCyan, a.Author, colorReset, a.Phrases, a.Total)
	}
	fmt.Fprintf(&sb, "%s  corpus:   %s\n", colorGray, st.Corpus)
	fmt.Fprintf(&sb, "  inbox:    %s\n", st.Inbox)
	fmt.Fprintf(&sb, "  charts:   %s%s\n", st.PublishDir, colorReset)
	if st.HTTPPort > 0 {
		fmt.Fprintf(&sb, "  dashboard: http://localhost:%d\n", st.HTTPPort)
	}
	if st.LastScan != nil {
		fmt.Fprintf(&sb, "  last scan: %s\n", formatRescan(st.LastScan))
	}
	return sb.String()
}

// formatRescan renders a one-line scan summary plus any skipped partitions.
func formatRescan(r *socket.RescanResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "user %s │ %d thoughts in %d messages │ %d channels │ %s",
		r.Author, r.Matched, r.Messages, r.Partitions, r.Elapsed)
	for _, f := range r.FailedPartitions {
		fmt.Fprintf(&sb, "\n    %s⚠ skipped %s: %s%s", colorYellow, f.Partition, f.Error, colorReset)
	}
	return sb.String()
}

// formatIngest renders what an ingest did.
func formatIngest(r *socket.IngestResult) string {
	switch {
	case r.Ignored:
		return "ignored (bot message)"
	case len(r.Phrases) == 0:
		return "no thoughts found"
	case r.Suppressed:
		return fmt.Sprintf("%sscan in progress, %d thought(s) dropped%s", colorYellow, len(r.Phrases), colorReset)
	}
	var sb strings.Builder
	for i, p := range r.Phrases {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "%s+%s %s", colorGreen, colorReset, p)
	}
	return sb.String()
}
