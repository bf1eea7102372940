package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"casebook/internal/lifecycle"
	"casebook/internal/reviews"
	"casebook/internal/store"
)

func readPayload(path string) (store.FormPayload, error) {
	var payload store.FormPayload
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return payload, fmt.Errorf("read payload: %w", err)
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return payload, fmt.Errorf("parse payload %s: %w", path, err)
	}
	return payload, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printSummaries(w io.Writer, items []store.Summary) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FOLDER\tSTATUS\tTITLE\tUPDATED")
	for _, item := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", item.FolderName, item.Status, item.Title, item.UpdatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func printDrafts(w io.Writer, drafts []store.Draft) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tTITLE\tUPDATED")
	for _, d := range drafts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.ID, d.Status, d.Title, d.UpdatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func printComments(w io.Writer, thread []reviews.Comment) {
	if len(thread) == 0 {
		fmt.Fprintln(w, "No comments.")
		return
	}
	for _, c := range thread {
		fmt.Fprintf(w, "[%s] %s: %s\n", c.Timestamp.Format(time.RFC3339), c.Author, c.Comment)
	}
}

func printOutcome(w io.Writer, out lifecycle.Outcome) {
	cs := out.CaseStudy
	fmt.Fprintf(w, "%s %s as %s (%s)\n", cs.Status, cs.OriginalTitle, cs.FolderName, cs.ID)
	for _, failure := range out.SideEffectFailures {
		fmt.Fprintf(w, "warning: %v\n", failure)
	}
}
