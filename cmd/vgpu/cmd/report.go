package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sarchlab/vgpu/datarecording"
	"github.com/sarchlab/vgpu/session"
	"github.com/sarchlab/vgpu/tracing"
)

var reportCmd = &cobra.Command{
	Use:   "report <run.sqlite3>",
	Short: "Summarize a recorded run.",
	Long: "Summarize the run information, the command latencies, the " +
		"responses and the presented frames of a SQLite recording.",
	Args: cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		if _, err := os.Stat(args[0]); err != nil {
			return err
		}

		reader := datarecording.NewReader(args[0])
		defer reader.Close()

		return writeReport(context.Background(), reader, os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
}

type latency struct {
	count uint64
	total uint64
	max   uint64
}

func writeReport(
	ctx context.Context,
	reader datarecording.DataReader,
	out io.Writer,
) error {
	reader.MapTable(datarecording.ExecTable, datarecording.ExecInfo{})
	reader.MapTable(tracing.TaskTable, tracing.TaskEntry{})
	reader.MapTable(session.ResponseTable, session.ResponseEntry{})
	reader.MapTable(session.FrameTable, session.FrameEntry{})

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	steps := []func(context.Context, datarecording.DataReader, io.Writer) error{
		reportExecInfo, reportLatencies, reportResponses, reportFrames,
	}

	for _, step := range steps {
		if err := step(ctx, reader, w); err != nil {
			return err
		}

		fmt.Fprintln(w)
	}

	return w.Flush()
}

func reportExecInfo(
	ctx context.Context,
	reader datarecording.DataReader,
	w io.Writer,
) error {
	rows, _, err := reader.Query(ctx, datarecording.ExecTable,
		datarecording.QueryParams{OrderBy: "rowid"})
	if err != nil {
		return err
	}

	fmt.Fprintln(w, "PROPERTY\tVALUE")

	for _, row := range rows {
		info := row.(*datarecording.ExecInfo)
		fmt.Fprintf(w, "%s\t%s\n", info.Property, info.Value)
	}

	return nil
}

func reportLatencies(
	ctx context.Context,
	reader datarecording.DataReader,
	w io.Writer,
) error {
	rows, _, err := reader.Query(ctx, tracing.TaskTable,
		datarecording.QueryParams{Where: "Kind = ?", Args: []any{"cmd"}})
	if err != nil {
		return err
	}

	byCmd := make(map[string]*latency)

	for _, row := range rows {
		task := row.(*tracing.TaskEntry)

		l, ok := byCmd[task.What]
		if !ok {
			l = &latency{}
			byCmd[task.What] = l
		}

		d := task.EndTime - task.StartTime
		l.count++
		l.total += d
		l.max = max(l.max, d)
	}

	fmt.Fprintln(w, "COMMAND\tCOUNT\tMEAN NS\tMAX NS")

	for _, name := range sortedKeys(byCmd) {
		l := byCmd[name]
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\n",
			name, l.count, l.total/l.count, l.max)
	}

	return nil
}

func reportResponses(
	ctx context.Context,
	reader datarecording.DataReader,
	w io.Writer,
) error {
	rows, _, err := reader.Query(ctx, session.ResponseTable,
		datarecording.QueryParams{})
	if err != nil {
		return err
	}

	counts := make(map[string]int)
	fenced := 0

	for _, row := range rows {
		rsp := row.(*session.ResponseEntry)
		counts[rsp.Response]++

		if rsp.Fenced {
			fenced++
		}
	}

	fmt.Fprintln(w, "RESPONSE\tCOUNT")

	for _, name := range sortedKeys(counts) {
		fmt.Fprintf(w, "%s\t%d\n", name, counts[name])
	}

	fmt.Fprintf(w, "(fenced)\t%d\n", fenced)

	return nil
}

func reportFrames(
	ctx context.Context,
	reader datarecording.DataReader,
	w io.Writer,
) error {
	rows, _, err := reader.Query(ctx, session.FrameTable,
		datarecording.QueryParams{})
	if err != nil {
		return err
	}

	counts := make(map[string]int)

	for _, row := range rows {
		f := row.(*session.FrameEntry)

		key := f.Status
		if f.Tier != "" {
			key += "\t" + f.Tier
		} else {
			key += "\t-"
		}

		counts[key]++
	}

	fmt.Fprintln(w, "FRAME\tTIER\tCOUNT")

	for _, key := range sortedKeys(counts) {
		fmt.Fprintf(w, "%s\t%d\n", key, counts[key])
	}

	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
