package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"dicomvolume/pkg/comparison"
	"dicomvolume/pkg/metrics"
	"dicomvolume/pkg/results"
	"dicomvolume/pkg/slicestore"
	"dicomvolume/pkg/visualization"
)

var compareCmd = &cobra.Command{
	Use:   "compare <root-a> <root-b>",
	Short: "Compare the label masks of the cases found under two roots",
	Long: `Each root holds images/<case> and labels/<case> series. For every case on
both sides the label masks are compared: Dice coefficient, overlap voxel
counts and label volumes are recorded in the results database and, when
configured, overlay previews and a metrics textfile are written.`,
	Args: cobra.ExactArgs(2),
	RunE: runCompare,
}

func init() {
	compareCmd.Flags().Bool("align", false, "Align the second source onto the first; overrides the config file")
	compareCmd.Flags().Bool("contours", false, "Preview region boundaries instead of filled regions; overrides the config file")
	compareCmd.Flags().String("preview-dir", "", "Write overlay previews to this directory; overrides the config file")
	compareCmd.Flags().String("results-db", "", "SQLite results database; overrides the config file")
	compareCmd.Flags().Bool("keep-going", false, "Record failed cases and continue; overrides the config file")
	rootCmd.AddCommand(compareCmd)
}

func runCompare(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("align") {
		cfg.Alignment.Align, _ = flags.GetBool("align")
	}
	if flags.Changed("contours") {
		cfg.Classification.Contours, _ = flags.GetBool("contours")
	}
	if flags.Changed("preview-dir") {
		cfg.Output.PreviewDir, _ = flags.GetString("preview-dir")
	}
	if flags.Changed("results-db") {
		cfg.Output.ResultsDB, _ = flags.GetString("results-db")
	}
	if flags.Changed("keep-going") {
		cfg.Processing.KeepGoing, _ = flags.GetBool("keep-going")
	}

	params, err := cfg.AssemblyParams()
	if err != nil {
		return err
	}
	opts := comparison.Options{
		Assembly:         params,
		Align:            cfg.Alignment.Align,
		AlignMode:        cfg.AlignMode(),
		Classification:   cfg.ClassificationMode(),
		ContourThickness: cfg.Classification.ContourThickness,
		ShiftedDir:       cfg.Output.ShiftedDir,
		KeepGoing:        cfg.Processing.KeepGoing,
	}

	var store results.Store = results.NewMemory()
	if cfg.Output.ResultsDB != "" {
		db, err := results.OpenSQLite(cfg.Output.ResultsDB)
		if err != nil {
			return err
		}
		store = db
	}
	defer store.Close()

	collector := metrics.New()
	runner := comparison.NewRunner(opts, slicestore.NewDir(logger), store, logger).WithMetrics(collector)
	if cfg.Output.PreviewDir != "" {
		overlay := visualization.NewOverlay(cfg.Classification.SideBySide)
		overlay.Transparency = cfg.Classification.Transparency
		runner.WithPreview(visualization.NewPreviewer(cfg.Output.PreviewDir, overlay, logger))
	}

	ctx := context.Background()
	sum, runErr := runner.Run(ctx, args[0], args[1])
	if err := collector.WriteTextfile(cfg.Output.MetricsFile); err != nil {
		logger.Warn("failed to write metrics", "error", err)
	}
	if runErr != nil {
		return runErr
	}

	all, err := store.List(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CASE\tDICE\tVOLUME A (cm3)\tVOLUME B (cm3)\tSTATUS")
	for _, r := range all {
		status := "ok"
		if r.Failed() {
			status = r.Error
		}
		fmt.Fprintf(w, "%s\t%.4f\t%.3f\t%.3f\t%s\n", r.Case, r.Dice, r.VolumeA, r.VolumeB, status)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d compared, %d failed, %d unpaired\n", sum.Compared, sum.Failed, sum.Unpaired)
	return nil
}
