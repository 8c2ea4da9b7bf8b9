package main

import (
	"code-lab/domain/session"
	"code-lab/infrastructure/storage"
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

const previewLength = 60

func newSessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List the sessions with their files and members",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, func(store *storage.WorkspaceStore) error {
				return printSessions(cmd.Context(), cmd.OutOrStdout(), store, colours(cmd))
			})
		},
	}
}

func newFilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "files <session>",
		Short: "List the files of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(store *storage.WorkspaceStore) error {
				return printFiles(cmd.Context(), cmd.OutOrStdout(), store, session.ID(args[0]), colours(cmd))
			})
		},
	}
}

func colours(cmd *cobra.Command) bool {
	enabled, _ := cmd.Flags().GetBool("colours")
	return enabled
}

func withStore(cmd *cobra.Command, fn func(store *storage.WorkspaceStore) error) error {
	path, _ := cmd.Flags().GetString("db")
	db, err := badger.Open(badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLoggingLevel(badger.ERROR))
	if err != nil {
		return fmt.Errorf("error while opening Badger: %w", err)
	}
	defer db.Close()
	return fn(storage.NewWorkspaceStore(db, logs.GetLoggerFromLevel(slog.LevelError)))
}

func printSessions(ctx context.Context, w io.Writer, store *storage.WorkspaceStore, coloured bool) error {
	ids, err := store.Sessions()
	if err != nil {
		return err
	}
	header(w, fmt.Sprintf("%d session(s)", len(ids)), coloured)

	table := newTable(w, "Session", "Files", "Members")
	for _, id := range ids {
		files, err := store.GetFiles(ctx, id)
		if err != nil {
			return err
		}
		members, err := store.Members(ctx, id)
		if err != nil {
			return err
		}
		table.Append([]string{string(id), strconv.Itoa(len(files)), strings.Join(members, ", ")})
	}
	table.Render()
	return nil
}

func printFiles(ctx context.Context, w io.Writer, store *storage.WorkspaceStore, id session.ID, coloured bool) error {
	files, err := store.GetFiles(ctx, id)
	if err != nil {
		return err
	}
	header(w, fmt.Sprintf("%s: %d file(s)", id, len(files)), coloured)

	table := newTable(w, "Filename", "Size", "Preview")
	names := lo.Keys(files)
	slices.Sort(names)
	for _, name := range names {
		content := files[name]
		table.Append([]string{name, strconv.Itoa(len(content)), preview(content)})
	}
	table.Render()
	return nil
}

func preview(content string) string {
	line, _, _ := strings.Cut(content, "\n")
	runes := []rune(line)
	if len(runes) > previewLength {
		return string(runes[:previewLength]) + "..."
	}
	return line
}

func header(w io.Writer, text string, coloured bool) {
	text = fmt.Sprintf("  ====== %s ======", text)
	if coloured {
		text = color.New(color.BgBlack, color.FgGreen).Render(text)
	}
	fmt.Fprintln(w, text)
}

func newTable(w io.Writer, headers ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(headers)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}
