package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"dicomvolume/pkg/align"
	"dicomvolume/pkg/comparison"
	"dicomvolume/pkg/results"
	"dicomvolume/pkg/slicestore"
	"dicomvolume/pkg/validation"
)

var alignCmd = &cobra.Command{
	Use:   "align <reference-root> <moving-root> <output-dir>",
	Short: "Align the cases of one source onto another",
	Long: `For every case found under both roots (images/<case> and labels/<case>),
resamples the moving pair to the reference spacing, shifts it onto the
reference landmark and writes it to <output-dir>/images_shifted/<case> and
<output-dir>/labels_shifted/<case>.`,
	Args: cobra.ExactArgs(3),
	RunE: runAlign,
}

func init() {
	alignCmd.Flags().Bool("by-position", false, "Align patient positions instead of label centers of mass")
	rootCmd.AddCommand(alignCmd)
}

func runAlign(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	params, err := cfg.AssemblyParams()
	if err != nil {
		return err
	}
	mode := cfg.AlignMode()
	if byPos, _ := cmd.Flags().GetBool("by-position"); byPos {
		mode = align.ByPosition
	}

	ctx := context.Background()
	store := slicestore.NewDir(logger)
	runner := comparison.NewRunner(comparison.Options{Assembly: params}, store, results.NewMemory(), logger)
	policy := validation.NewPolicy(params.Allow, logger)
	aligner := align.New(mode, policy, logger)

	paired, onlyA, onlyB, err := runner.Cases(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	if unpaired := append(onlyA, onlyB...); len(unpaired) > 0 {
		if err := policy.Handle(validation.Violationf(validation.Unpaired, unpaired, "cases without a match")); err != nil {
			return err
		}
	}

	for _, name := range paired {
		ref, _, err := runner.AssemblePair(ctx, args[0], name)
		if err != nil {
			return fmt.Errorf("%s reference: %w", name, err)
		}
		moving, _, err := runner.AssemblePair(ctx, args[1], name)
		if err != nil {
			return fmt.Errorf("%s moving: %w", name, err)
		}
		res, err := aligner.Align(ref, moving)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		imgDir := filepath.Join(args[2], comparison.ImagesShiftedDir, name)
		lblDir := filepath.Join(args[2], comparison.LabelsShiftedDir, name)
		if err := store.Save(ctx, imgDir, res.Pair.Image.Slices); err != nil {
			return err
		}
		if err := store.Save(ctx, lblDir, res.Pair.Label.Slices); err != nil {
			return err
		}
		fmt.Printf("%s: %s (zoom %v)\n", name, res.Window, res.Factors)
	}
	return nil
}
