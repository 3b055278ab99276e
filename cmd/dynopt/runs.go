package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/san-kum/dynopt/internal/dataset"
	"github.com/san-kum/dynopt/internal/loop"
	"github.com/san-kum/dynopt/internal/storage"
	"github.com/san-kum/dynopt/internal/viz"
)

const maxPlots = 8

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tEXERCISE\tPRESET\tTIME\tROWS\tSEED")

	for _, run := range runs {
		p := run.Preset
		if p == "" {
			p = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\n",
			run.ID,
			run.Exercise,
			p,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Rows,
			run.Seed,
		)
	}

	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}

	series, err := st.LoadSeries(runID)
	if err != nil {
		return err
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("exercise: %s\n", meta.Exercise)
	fmt.Printf("samples: %d\n\n", series.Len())

	// The first column is the time axis.
	cols := series.Header[1:]
	if len(cols) > maxPlots {
		cols = cols[:maxPlots]
	}
	for i, name := range cols {
		graph := viz.RenderSeries(name, series.Columns[i+1])
		if graph == "" {
			continue
		}
		fmt.Println(graph)
		fmt.Println()
	}
	if more := len(series.Header) - 1 - len(cols); more > 0 {
		fmt.Printf("(%d more columns, see export-csv)\n", more)
	}
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

func exportCSV(cmd *cobra.Command, args []string) (err error) {
	st := storage.New(dataDir)
	if _, err := st.Load(args[0]); err != nil {
		return err
	}
	f, err := os.Open(st.SeriesPath(args[0]))
	if err != nil {
		return err
	}
	defer multierr.AppendInvoke(&err, multierr.Close(f))
	_, err = io.Copy(os.Stdout, f)
	return err
}

func exportJSON(cmd *cobra.Command, args []string) error {
	return storage.New(dataDir).ExportJSON(args[0], os.Stdout)
}

// historyFrame lays the loop records out as columns, the estimated
// parameters after the signals.
func historyFrame(h *loop.History) (*dataset.Frame, error) {
	header := []string{"time", "u", "y", "y_meas", "y_est", "sp", "hi", "lo"}
	var params []string
	if len(h.Records) > 0 {
		for k := range h.Records[0].Params {
			params = append(params, k)
		}
		sort.Strings(params)
	}
	header = append(header, params...)

	cols := make([][]float64, len(header))
	for i, name := range header {
		cols[i] = h.Column(name)
	}
	return dataset.NewFrame(header, cols...)
}
