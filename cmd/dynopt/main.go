package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/san-kum/dynopt/internal/config"
	"github.com/san-kum/dynopt/internal/exercise"
	"github.com/san-kum/dynopt/internal/export"
	"github.com/san-kum/dynopt/internal/logging"
	"github.com/san-kum/dynopt/internal/optim"
	"github.com/san-kum/dynopt/internal/storage"
	"github.com/san-kum/dynopt/internal/viz"
)

var (
	dataDir  string
	logLevel string
	// Config file
	configFile string
	// Preset name
	preset string

	seed       int64
	cycles     int
	noise      float64
	offline    bool
	controller string
	plotDir    string
	noPlots    bool
	noSave     bool
	chart      bool
	saveConfig string

	// Live view cycle interval
	interval time.Duration

	tuneValues string
	tuneMetric string
	tuneLimit  int
)

// shutdownSignals cancel the command context.
var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// main registers the commands and flags and executes the root command,
// exiting with status 1 when the command fails.
func main() {
	rootCmd := &cobra.Command{
		Use:           "dynopt",
		Short:         "dynamic estimation and control lab",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", config.DefaultDataDir, "data directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", config.DefaultLogLevel, "log level (debug, info, warn, error)")

	exercisesCmd := &cobra.Command{
		Use:   "exercises",
		Short: "list exercises",
		RunE:  listExercises,
	}

	runCmd := &cobra.Command{
		Use:   "run [exercise]",
		Short: "run an exercise, store its results and write its figures",
		Args:  cobra.ExactArgs(1),
		RunE:  runExercise,
	}
	addConfigFlags(runCmd)
	runCmd.Flags().StringVar(&plotDir, "plots", config.DefaultPlotDir, "figure directory")
	runCmd.Flags().BoolVar(&noPlots, "no-plots", false, "skip PNG figures")
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the run")
	runCmd.Flags().BoolVar(&chart, "chart", false, "print terminal charts of the figures")
	runCmd.Flags().StringVar(&saveConfig, "save-config", "", "write the resolved config to this yaml file")

	liveCmd := &cobra.Command{
		Use:   "live [exercise]",
		Short: "step a closed-loop exercise in the terminal",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLive,
	}
	addConfigFlags(liveCmd)
	liveCmd.Flags().DurationVar(&interval, "interval", 100*time.Millisecond, "time between cycles")
	liveCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the run")

	tuneCmd := &cobra.Command{
		Use:   "tune [exercise]",
		Short: "grid search the estimator move limits of a closed-loop exercise",
		Args:  cobra.ExactArgs(1),
		RunE:  tuneExercise,
	}
	addConfigFlags(tuneCmd)
	tuneCmd.Flags().StringVar(&tuneValues, "values", "0.05,0.1,0.5,1", "comma separated DMAX values tried for every estimated parameter")
	tuneCmd.Flags().StringVar(&tuneMetric, "metric", "estimation_error", "metric to minimize")
	tuneCmd.Flags().IntVar(&tuneLimit, "parallel", 0, "concurrent trials (0 uses GOMAXPROCS)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot run results",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export run metadata",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export run data to CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run data to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets [exercise]",
		Short: "list available presets for an exercise",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			presets := config.ListPresets(args[0])
			if len(presets) == 0 {
				fmt.Printf("no presets for exercise: %s\n", args[0])
				return nil
			}
			fmt.Printf("presets for %s:\n", args[0])
			for _, p := range presets {
				fmt.Printf("  %s\n", p)
			}
			return nil
		},
	}

	rootCmd.AddCommand(exercisesCmd, runCmd, liveCmd, tuneCmd, listCmd, plotCmd, exportCmd, exportCSVCmd, exportJSONCmd, presetsCmd)

	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals...)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	cmd.Flags().Int64Var(&seed, "seed", config.DefaultSeed, "random seed")
	cmd.Flags().IntVar(&cycles, "cycles", 0, "closed-loop cycles")
	cmd.Flags().Float64Var(&noise, "noise", 0, "measurement noise amplitude")
	cmd.Flags().BoolVar(&offline, "offline", false, "use synthetic data instead of downloading")
	cmd.Flags().StringVar(&controller, "controller", "", "loop controller (none, mpc, pid)")
}

// resolveConfig starts from the exercise defaults, then the preset, then the
// config file. Flags override the result only when set explicitly.
func resolveConfig(cmd *cobra.Command, name string) (*config.Config, error) {
	cfg := config.Default(name)
	if preset != "" {
		cfg = config.GetPreset(name, preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(name))
		}
	}
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}
	cfg.Exercise = name

	flags := cmd.Flags()
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	if flags.Changed("cycles") {
		cfg.Loop.Cycles = cycles
	}
	if flags.Changed("noise") {
		cfg.Loop.Noise = noise
	}
	if flags.Changed("offline") {
		cfg.Data.Offline = offline
	}
	if flags.Changed("controller") {
		cfg.Controller.Kind = controller
	}
	if flags.Changed("data") {
		cfg.Output.DataDir = dataDir
	}
	if flags.Changed("log-level") {
		cfg.Output.LogLevel = logLevel
	}
	if flags.Changed("plots") {
		cfg.Output.PlotDir = plotDir
	}
	if noPlots {
		cfg.Output.Plots = false
	}
	return cfg, nil
}

func newEnv(cfg *config.Config) (exercise.Env, error) {
	log, err := logging.New(cfg.Output.LogLevel)
	if err != nil {
		return exercise.Env{}, err
	}
	return exercise.Env{Config: cfg, Log: log}, nil
}

func listExercises(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tLIVE\tPRESETS\tDESCRIPTION")
	for _, e := range exercise.NewRegistry().List() {
		_, live := e.(exercise.LoopExercise)
		fmt.Fprintf(w, "%s\t%v\t%s\t%s\n", e.Name(), live, strings.Join(config.ListPresets(e.Name()), ","), e.Describe())
	}
	return w.Flush()
}

func runExercise(cmd *cobra.Command, args []string) error {
	name := args[0]
	cfg, err := resolveConfig(cmd, name)
	if err != nil {
		return err
	}
	if saveConfig != "" {
		if err := config.Save(saveConfig, cfg); err != nil {
			return err
		}
	}
	env, err := newEnv(cfg)
	if err != nil {
		return err
	}
	defer env.Log.Sync()

	fmt.Printf("running %s...\n", name)
	start := time.Now()
	rep, err := exercise.NewRegistry().Run(cmd.Context(), name, env)
	if err != nil {
		return err
	}
	fmt.Printf("completed in %v\n", time.Since(start))

	if chart {
		if err := viz.RenderReport(os.Stdout, rep); err != nil {
			return err
		}
	} else {
		printScalars(rep)
	}

	runID := ""
	if !noSave {
		runID, err = saveReport(cfg, rep, env.Log)
		if err != nil {
			return err
		}
		fmt.Printf("run id: %s\n", runID)
	}

	if cfg.Output.Plots {
		dir := cfg.Output.PlotDir
		if runID != "" {
			dir = filepath.Join(dir, runID)
		}
		paths, err := export.SaveAll(dir, rep.Figures)
		for _, p := range paths {
			fmt.Printf("figure: %s\n", p)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func printScalars(rep *exercise.Report) {
	if len(rep.Scalars) == 0 {
		return
	}
	fmt.Println("\nresults:")
	for _, name := range rep.ScalarNames() {
		fmt.Printf("  %s: %.6g\n", name, rep.Scalars[name])
	}
}

func saveReport(cfg *config.Config, rep *exercise.Report, log *zap.SugaredLogger) (string, error) {
	st := storage.New(cfg.Output.DataDir)
	if err := st.Init(); err != nil {
		return "", err
	}
	meta := storage.RunMetadata{
		Exercise: rep.Exercise,
		Preset:   preset,
		Seed:     cfg.Seed,
		Scalars:  rep.Scalars,
	}
	if cfg.Output.Plots {
		for _, f := range rep.Figures {
			meta.Figures = append(meta.Figures, f.FileName())
		}
	}
	id, err := st.Save(meta, rep.Series)
	if err != nil {
		return "", err
	}
	log.Debugw("stored run", "id", id, "dir", cfg.Output.DataDir)
	return id, nil
}

func loopExercise(name string) (exercise.LoopExercise, error) {
	e, err := exercise.NewRegistry().Get(name)
	if err != nil {
		return nil, err
	}
	le, ok := e.(exercise.LoopExercise)
	if !ok {
		return nil, fmt.Errorf("%s has no closed loop", name)
	}
	return le, nil
}

func runLive(cmd *cobra.Command, args []string) error {
	var name string
	if len(args) > 0 {
		name = args[0]
	} else {
		var live []exercise.Exercise
		for _, e := range exercise.NewRegistry().List() {
			if _, ok := e.(exercise.LoopExercise); ok {
				live = append(live, e)
			}
		}
		picked, err := viz.Pick(live)
		if err != nil || picked == "" {
			return err
		}
		name = picked
	}

	le, err := loopExercise(name)
	if err != nil {
		return err
	}
	cfg, err := resolveConfig(cmd, name)
	if err != nil {
		return err
	}
	// The live view owns the terminal; only errors get through.
	if !cmd.Flags().Changed("log-level") {
		cfg.Output.LogLevel = "error"
	}
	env, err := newEnv(cfg)
	if err != nil {
		return err
	}
	l, err := le.NewLoop(env)
	if err != nil {
		return err
	}

	h, err := viz.RunLoop(cmd.Context(), name, l, interval)
	if err != nil {
		return err
	}
	if noSave || len(h.Records) == 0 {
		return nil
	}

	series, err := historyFrame(h)
	if err != nil {
		return err
	}
	rep := &exercise.Report{Exercise: name, Series: series, Scalars: h.Metrics}
	cfg.Output.Plots = false
	runID, err := saveReport(cfg, rep, env.Log)
	if err != nil {
		return err
	}
	fmt.Printf("run id: %s (%d cycles)\n", runID, len(h.Records))
	return nil
}

func tuneExercise(cmd *cobra.Command, args []string) error {
	name := args[0]
	if _, err := loopExercise(name); err != nil {
		return err
	}
	base, err := resolveConfig(cmd, name)
	if err != nil {
		return err
	}

	values, err := parseFloats(tuneValues)
	if err != nil {
		return err
	}
	var names []string
	var ranges [][]float64
	for _, p := range base.Estimator.Params {
		if p.Estimate {
			names = append(names, p.Name)
			ranges = append(ranges, values)
		}
	}
	if len(names) == 0 {
		return fmt.Errorf("%s estimates no parameters", name)
	}

	grid, err := optim.NewGridSearch(names, ranges)
	if err != nil {
		return err
	}
	if tuneLimit > 0 {
		grid.SetLimit(tuneLimit)
	}

	log, err := logging.New(base.Output.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()
	log.Infow("tuning", "exercise", name, "trials", grid.Size(), "metric", tuneMetric)

	registry := exercise.NewRegistry()
	res, err := grid.Search(cmd.Context(), func(ctx context.Context, dmax map[string]float64) (float64, error) {
		cfg, err := resolveConfig(cmd, name)
		if err != nil {
			return 0, err
		}
		for i := range cfg.Estimator.Params {
			if v, ok := dmax[cfg.Estimator.Params[i].Name]; ok {
				cfg.Estimator.Params[i].DMax = v
			}
		}
		cfg.Output.Plots = false
		rep, err := registry.Run(ctx, name, exercise.Env{Config: cfg})
		if err != nil {
			return 0, err
		}
		v, ok := rep.Scalars[tuneMetric]
		if !ok {
			return 0, fmt.Errorf("%s reports no %s", name, tuneMetric)
		}
		return v, nil
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	header := strings.ToUpper(strings.Join(names, "\t")) + "\t" + strings.ToUpper(tuneMetric)
	fmt.Fprintln(w, header)
	for _, t := range res.Ranked() {
		var row []string
		for _, n := range names {
			row = append(row, strconv.FormatFloat(t.Params[n], 'g', -1, 64))
		}
		fmt.Fprintf(w, "%s\t%.6g\n", strings.Join(row, "\t"), t.Score)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\nbest: %v (%s %.6g)\n", res.Best, tuneMetric, res.Score)
	return nil
}

func parseFloats(s string) ([]float64, error) {
	var out []float64
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q: %w", f, err)
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no values given")
	}
	return out, nil
}
