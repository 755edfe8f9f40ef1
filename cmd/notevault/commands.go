package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/MarcoPoloResearchLab/notevault/internal/clock"
	"github.com/MarcoPoloResearchLab/notevault/internal/notes"
	"github.com/MarcoPoloResearchLab/notevault/internal/presentation"
)

func runExport(ctx context.Context, app *application, out io.Writer) error {
	path, err := app.repository.PrepareToExportNotes(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, path)
	return nil
}

func runImport(ctx context.Context, app *application, path string, out io.Writer) error {
	if err := app.repository.ImportNotes(ctx, path); err != nil {
		return err
	}
	fmt.Fprintf(out, "imported %s\n", path)
	return nil
}

func runAdd(ctx context.Context, app *application, message string, pinned bool, deleteAfter time.Duration, out io.Writer) error {
	note := notes.Note{Message: &message, IsPinned: pinned}
	if deleteAfter > 0 {
		deletedAt := clock.NowMillis(app.clock) + deleteAfter.Milliseconds()
		note.DeletedAt = &deletedAt
	}
	if err := app.repository.AddNote(ctx, note); err != nil {
		return err
	}
	fmt.Fprintln(out, "note added")
	return nil
}

func runList(ctx context.Context, app *application, query string, out io.Writer) error {
	list, err := app.firstNotes(ctx)
	if err != nil {
		return err
	}
	visible := presentation.VisibleNotes(list, query)

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tPINNED\tCREATED\tDELETES\tMESSAGE")
	for _, note := range visible {
		fmt.Fprintf(writer, "%s\t%t\t%s\t%s\t%s\n",
			formatID(note.ID),
			note.IsPinned,
			formatMillis(note.CreatedAt),
			formatMillis(note.DeletedAt),
			firstLine(note.Text()))
	}
	return writer.Flush()
}

func formatID(id *int64) string {
	if id == nil {
		return "-"
	}
	return strconv.FormatInt(*id, 10)
}

func formatMillis(value *int64) string {
	if value == nil {
		return "-"
	}
	return time.UnixMilli(*value).UTC().Format(time.RFC3339)
}

func firstLine(text string) string {
	if index := strings.IndexByte(text, '\n'); index >= 0 {
		return text[:index] + " …"
	}
	return text
}
