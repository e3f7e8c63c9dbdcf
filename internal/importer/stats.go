// Package importer backfills historical sales from the CRM into the
// tracking tables. Imports are idempotent: rerunning a window is safe
// because every write goes through the same upserts the webhook uses.
package importer

import (
	"fmt"
	"io"
	"sort"

	"trafficops_backend/internal/tracking"
)

// Stats accumulates the outcome of one import run. Per-record errors are
// collected here instead of aborting the batch.
type Stats struct {
	Fetched  int
	Inserted int
	Updated  int
	Skipped  int
	Excluded int
	Errors   []string

	ByTargetologist map[string]int
	ByFunnel        map[string]int
	Prepaid         int
	FullPayment     int
	ByDate          map[string]int
}

// NewStats creates an empty accumulator.
func NewStats() *Stats {
	return &Stats{
		ByTargetologist: make(map[string]int),
		ByFunnel:        make(map[string]int),
		ByDate:          make(map[string]int),
	}
}

// CountOutcome tallies one upsert result.
func (s *Stats) CountOutcome(outcome tracking.Outcome) {
	switch outcome {
	case tracking.OutcomeInserted:
		s.Inserted++
	case tracking.OutcomeUpdated:
		s.Updated++
	case tracking.OutcomeSkipped:
		s.Skipped++
	}
}

// CountError records a per-record failure.
func (s *Stats) CountError(dealID int64, err error) {
	s.Errors = append(s.Errors, fmt.Sprintf("deal %d: %v", dealID, err))
}

// recentDates returns up to n most recent date keys, newest first.
func (s *Stats) recentDates(n int) []string {
	dates := make([]string, 0, len(s.ByDate))
	for d := range s.ByDate {
		dates = append(dates, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	if len(dates) > n {
		dates = dates[:n]
	}
	return dates
}

// WriteSummary prints the run report to w.
func (s *Stats) WriteSummary(w io.Writer) {
	fmt.Fprintln(w, "=== Import summary ===")
	fmt.Fprintf(w, "Fetched:  %d\n", s.Fetched)
	fmt.Fprintf(w, "Inserted: %d\n", s.Inserted)
	fmt.Fprintf(w, "Updated:  %d\n", s.Updated)
	fmt.Fprintf(w, "Skipped:  %d\n", s.Skipped)
	if s.Excluded > 0 {
		fmt.Fprintf(w, "Excluded: %d\n", s.Excluded)
	}
	fmt.Fprintf(w, "Errors:   %d\n", len(s.Errors))

	if len(s.ByTargetologist) > 0 {
		fmt.Fprintln(w, "\nBy targetologist:")
		for _, name := range sortedKeys(s.ByTargetologist) {
			fmt.Fprintf(w, "  %-12s %d\n", name, s.ByTargetologist[name])
		}
	}

	if len(s.ByFunnel) > 0 {
		fmt.Fprintln(w, "\nBy funnel:")
		for _, name := range sortedKeys(s.ByFunnel) {
			fmt.Fprintf(w, "  %-12s %d\n", name, s.ByFunnel[name])
		}
	}

	if s.Prepaid > 0 || s.FullPayment > 0 {
		fmt.Fprintln(w, "\nBy payment:")
		fmt.Fprintf(w, "  prepaid      %d\n", s.Prepaid)
		fmt.Fprintf(w, "  full         %d\n", s.FullPayment)
	}

	if len(s.ByDate) > 0 {
		fmt.Fprintln(w, "\nBy date (most recent 10):")
		for _, d := range s.recentDates(10) {
			fmt.Fprintf(w, "  %s   %d\n", d, s.ByDate[d])
		}
	}

	if len(s.Errors) > 0 {
		fmt.Fprintln(w, "\nErrors:")
		for _, e := range s.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
