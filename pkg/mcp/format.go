package mcp

import (
	"fmt"
	"strings"

	"github.com/askdesk/askdesk/pkg/logging"
	"github.com/askdesk/askdesk/pkg/models"
	"github.com/askdesk/askdesk/pkg/resolver"
)

// formatAnswer formats a resolved answer with where it came from.
func formatAnswer(a resolver.Answer) string {
	var b strings.Builder
	b.WriteString(a.Text)
	b.WriteString("\n\n")
	switch a.Source {
	case resolver.SourceAI:
		fmt.Fprintf(&b, "Source: %s (attempts: %d)", a.Model, a.Attempts)
	case resolver.SourceMemory:
		b.WriteString("Source: memory cache")
	default:
		fmt.Fprintf(&b, "Source: fallback (attempts: %d)", a.Attempts)
	}
	return b.String()
}

// formatSummary formats query summaries as a text table.
func formatSummary(rows []models.UsageSummary) string {
	if len(rows) == 0 {
		return "No query data found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-10s %-25s %8s %9s %10s %12s\n",
		"Source", "Model", "Queries", "Attempts", "Tokens", "Avg Latency")
	b.WriteString(strings.Repeat("-", 79) + "\n")
	for _, r := range rows {
		model := r.Model
		if model == "" {
			model = "-"
		}
		fmt.Fprintf(&b, "%-10s %-25s %8d %9d %10d %10.0fms\n",
			r.Source, model, r.RequestCount, r.TotalAttempts, r.TotalTokens, r.AvgLatencyMs)
	}
	return b.String()
}

// formatRecords formats individual query records as a text table.
func formatRecords(recs []models.QueryRecord) string {
	if len(recs) == 0 {
		return "No queries found for this client."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-10s %-25s %9s %10s\n",
		"Time", "Source", "Model", "Attempts", "Latency")
	b.WriteString(strings.Repeat("-", 78) + "\n")
	for _, r := range recs {
		fmt.Fprintf(&b, "%-20s %-10s %-25s %9d %8dms\n",
			r.CreatedAt.Format("2006-01-02 15:04:05"), r.Source, r.Model, r.Attempts, r.LatencyMs)
	}
	return b.String()
}

// formatCacheStats formats answer cache stats as text.
func formatCacheStats(stats models.CacheStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Answer Cache\n"+
		"  Entries: %d\n"+
		"  Size:    %.2f MB\n",
		stats.Entries, stats.SizeMB)
	writeQuestions(&b, "Most popular", stats.Popular)
	writeQuestions(&b, "Most recent", stats.Recent)
	return b.String()
}

func writeQuestions(b *strings.Builder, title string, qs []models.QuestionStat) {
	if len(qs) == 0 {
		return
	}
	fmt.Fprintf(b, "%s:\n", title)
	for _, q := range qs {
		fmt.Fprintf(b, "  %4d  %s\n", q.AccessCount, logging.Truncate(q.Question, 70))
	}
}
