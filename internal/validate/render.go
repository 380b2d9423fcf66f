package validate

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
)

// RenderJSON writes the report as indented JSON.
func (r *ValidationReport) RenderJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(r)
}

// RenderText writes a human-readable report: one summary block, then a
// line per file that failed or warned. Clean files are counted, not listed.
func (r *ValidationReport) RenderText(w io.Writer) error {
	fmt.Fprintf(w, "Migration validation report (%s)\n", r.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(w, "Batches: %d  Files: %d  OK: %d  Failed: %d  Warnings: %d  Success rate: %.1f%%\n\n",
		len(r.Batches), r.TotalFiles, r.SuccessfulFiles, r.FailedFiles, r.WarningFiles, r.SuccessRate)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, b := range r.Batches {
		fmt.Fprintf(tw, "batch %s\t%s\t%d/%d ok\n", b.BatchID, b.Status, b.Successful, b.Total)

		for _, f := range b.Files {
			if f.Status == StatusSuccess {
				continue
			}

			for _, msg := range f.Errors {
				fmt.Fprintf(tw, "  %s\tFAIL\t%s\n", f.FileID, msg)
			}

			for _, msg := range f.Warnings {
				fmt.Fprintf(tw, "  %s\twarn\t%s\n", f.FileID, msg)
			}
		}
	}

	return tw.Flush()
}
