package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/timmy/parlsync/internal/domain"
	"github.com/timmy/parlsync/internal/service"
)

// OutputFormatter renders command results as text tables or JSON.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

func (f *OutputFormatter) json(v interface{}) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (f *OutputFormatter) table(header string, rows [][]interface{}) error {
	tw := tabwriter.NewWriter(f.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, header)
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, c := range row {
			cells[i] = fmt.Sprint(c)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

// Report prints a sync report.
func (f *OutputFormatter) Report(r *service.SyncReport) error {
	if f.Format == "json" {
		return f.json(r)
	}
	rows := make([][]interface{}, 0, len(r.Runs))
	for _, run := range r.Runs {
		rows = append(rows, []interface{}{run.SyncType, run.FileName, run.Status,
			run.Processed, run.Inserted, run.Updated, run.Failed})
	}
	if err := f.table("KIND\tFILE\tSTATUS\tPROCESSED\tINSERTED\tUPDATED\tFAILED", rows); err != nil {
		return err
	}
	fmt.Fprintf(f.Writer, "\n%s sync: %d processed, %d inserted, %d updated, %d failed in %s\n",
		r.SyncType, r.Totals.Processed, r.Totals.Inserted, r.Totals.Updated, r.Totals.Failed,
		r.CompletedAt.Sub(r.StartedAt).Round(time.Millisecond))
	for _, e := range r.Errors {
		fmt.Fprintf(f.Writer, "error: %s\n", e)
	}
	return nil
}

// Runs prints ledger rows.
func (f *OutputFormatter) Runs(runs []domain.SyncRun) error {
	if f.Format == "json" {
		return f.json(runs)
	}
	rows := make([][]interface{}, 0, len(runs))
	for _, run := range runs {
		errMsg := ""
		if run.ErrorMessage != nil {
			errMsg = *run.ErrorMessage
		}
		rows = append(rows, []interface{}{run.StartedAt.Format("2006-01-02 15:04:05"), run.SyncType,
			run.Status, run.Processed, run.Inserted, run.Updated, run.Failed, errMsg})
	}
	return f.table("STARTED\tKIND\tSTATUS\tPROCESSED\tINSERTED\tUPDATED\tFAILED\tERROR", rows)
}

// Inspection prints an archive inspection.
func (f *OutputFormatter) Inspection(ins *service.Inspection) error {
	if f.Format == "json" {
		return f.json(ins)
	}
	names := make([]string, 0, len(ins.Files))
	for name := range ins.Files {
		names = append(names, name)
	}
	sort.Strings(names)
	rows := make([][]interface{}, 0, len(names))
	for _, name := range names {
		rows = append(rows, []interface{}{name, ins.Files[name]})
	}
	fmt.Fprintf(f.Writer, "Archive %s\n\n", ins.Archive)
	if err := f.table("FILE\tCHARS", rows); err != nil {
		return err
	}
	if len(ins.MissingSchemas) > 0 {
		fmt.Fprintf(f.Writer, "\nNo schema: %s\n", strings.Join(ins.MissingSchemas, ", "))
	}
	return nil
}

// Schemas prints table schemas, sorted by name.
func (f *OutputFormatter) Schemas(schemas map[string][]string) error {
	if f.Format == "json" {
		return f.json(schemas)
	}
	names := make([]string, 0, len(schemas))
	for name := range schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	rows := make([][]interface{}, 0, len(names))
	for _, name := range names {
		rows = append(rows, []interface{}{name, len(schemas[name]), strings.Join(schemas[name], ", ")})
	}
	return f.table("TABLE\tFIELDS\tCOLUMNS", rows)
}

// Freshness prints the data freshness summary.
func (f *OutputFormatter) Freshness(fr *service.Freshness) error {
	if f.Format == "json" {
		return f.json(fr)
	}
	latest := "never"
	if fr.LatestVoteDate != nil {
		latest = fr.LatestVoteDate.Format("2006-01-02")
	}
	fmt.Fprintf(f.Writer, "Latest vote:      %s\n", latest)
	fmt.Fprintf(f.Writer, "Voting sessions:  %d\n", fr.TotalVotingSessions)
	fmt.Fprintf(f.Writer, "Active MPs:       %d\n", fr.ActiveMPs)
	if len(fr.StaleDataTypes) > 0 {
		fmt.Fprintf(f.Writer, "Stale:            %s\n", strings.Join(fr.StaleDataTypes, ", "))
	}
	fmt.Fprintln(f.Writer)

	rows := make([][]interface{}, 0, len(fr.RecentSyncs))
	for _, a := range fr.RecentSyncs {
		last := "-"
		if a.LastCompleted != nil {
			last = a.LastCompleted.Format("2006-01-02 15:04:05")
		}
		rows = append(rows, []interface{}{a.SyncType, last, a.FailedCount})
	}
	return f.table("KIND\tLAST SYNC\tFAILED", rows)
}

// Health prints a health check result.
func (f *OutputFormatter) Health(h *service.Health) error {
	if f.Format == "json" {
		return f.json(h)
	}
	fmt.Fprintf(f.Writer, "Status: %s\n", h.Status)
	for _, issue := range h.Issues {
		fmt.Fprintf(f.Writer, "  - %s\n", issue)
	}
	return nil
}

// Lines prints plain values, one per line.
func (f *OutputFormatter) Lines(values []string) error {
	if f.Format == "json" {
		return f.json(values)
	}
	for _, v := range values {
		fmt.Fprintln(f.Writer, v)
	}
	return nil
}
