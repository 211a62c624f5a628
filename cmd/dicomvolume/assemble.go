package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"dicomvolume/pkg/measure"
	"dicomvolume/pkg/reconstruction"
	"dicomvolume/pkg/slicestore"
	"dicomvolume/pkg/visualization"
)

var assembleCmd = &cobra.Command{
	Use:   "assemble <series-dir>",
	Short: "Assemble one slice series into a volume",
	Long: `Loads every DICOM slice below the directory, validates and repairs the
series, and reports the resulting volume. The corrected series can be written
back as DICOM and previewed along every axis.`,
	Args: cobra.ExactArgs(1),
	RunE: runAssemble,
}

func init() {
	assembleCmd.Flags().String("name", "", "Case name (default: directory name)")
	assembleCmd.Flags().Bool("label", false, "The series is a label mask")
	assembleCmd.Flags().String("output", "", "Write the corrected series to this directory")
	assembleCmd.Flags().String("slices-dir", "", "Extract and save planes along all axes to this directory")
	rootCmd.AddCommand(assembleCmd)
}

func runAssemble(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	params, err := cfg.AssemblyParams()
	if err != nil {
		return err
	}
	params.InputDir = args[0]
	params.Name, _ = cmd.Flags().GetString("name")
	if params.Name == "" {
		params.Name = filepath.Base(filepath.Clean(args[0]))
	}
	params.IsLabel, _ = cmd.Flags().GetBool("label")

	ctx := context.Background()
	store := slicestore.NewDir(logger)
	rec := reconstruction.NewReconstructor(&params, store, logger)

	start := time.Now()
	vol, err := rec.Process(ctx)
	if err != nil {
		return fmt.Errorf("assembly failed: %w", err)
	}
	report := rec.Report()

	fmt.Printf("Assembled %s in %.2f seconds\n", params.Name, time.Since(start).Seconds())
	fmt.Printf("- slices: %d loaded, %d in volume\n", report.SlicesLoaded, report.SlicesOut)
	fmt.Printf("- shape: %v\n", vol.Shape())
	fmt.Printf("- spacing: %v mm\n", vol.Spacing)
	if len(report.Corrections) > 0 {
		fmt.Printf("- corrections: %v\n", report.Corrections)
	}
	if p := report.Plan; p != nil {
		fmt.Printf("- position grid: %d points, step %g, %d missing, %d off grid\n", len(p.Grid), p.Step, len(p.Missing), len(p.Extra))
	}
	if params.IsLabel {
		cm3, err := measure.LabelVolume(vol, 1)
		if err != nil {
			return err
		}
		fmt.Printf("- label volume: %.3f cm3\n", cm3)
	}

	if out, _ := cmd.Flags().GetString("output"); out != "" {
		if err := store.Save(ctx, out, vol.Slices); err != nil {
			return err
		}
		fmt.Printf("Corrected series saved to: %s\n", out)
	}

	if dir, _ := cmd.Flags().GetString("slices-dir"); dir != "" {
		viewer, err := visualization.NewViewer(vol)
		if err != nil {
			return err
		}
		for _, axis := range []string{"x", "y", "z"} {
			axisDir := filepath.Join(dir, axis)
			if err := viewer.SaveSliceSequence(axis, axisDir); err != nil {
				logger.Warn("failed to save slices", "axis", axis, "error", err)
				continue
			}
			fmt.Printf("Saved %s-axis slices to: %s\n", axis, axisDir)
		}
	}
	return nil
}
