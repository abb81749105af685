package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ironsheep/fitset/internal/convert"
	"github.com/ironsheep/fitset/internal/crop"
	"github.com/ironsheep/fitset/internal/curate"
	"github.com/ironsheep/fitset/internal/imaging"
	"github.com/ironsheep/fitset/internal/partition"
)

func printJSON(cmd *cobra.Command, val any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(val)
}

func convertCmd() *cobra.Command {
	var input, output string

	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert VOC annotations into YOLO label files",
		Long: `Convert every .xml annotation in --input into <output>/<stem>.txt with one
normalized "<class> <xc> <yc> <w> <h>" line per region. Existing .txt label
files in --input are copied through unchanged.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := &convert.Converter{
				OutputDir: output,
				Logger:    logger,
				Progress:  progressWriter(),
			}
			stats, err := c.ConvertDir(input)
			if err != nil {
				return err
			}
			return printJSON(cmd, stats)
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "directory of VOC .xml files")
	cmd.Flags().StringVar(&output, "output", "", "directory for label files")
	requireFlags(cmd, "input", "output")
	return cmd
}

func splitCmd() *cobra.Command {
	var images, labels, output string

	cmd := &cobra.Command{
		Use:   "split",
		Short: "Split a detector dataset into train and val",
		Long: `Pair images with label files by stem, group the pairs by the most frequent
class in each label file and split every group by --ratio. The pairs are
copied to <output>/images/{train,val} and <output>/labels/{train,val} and
<output>/dataset.yaml is written.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := partition.SplitDetector(partition.DetectorSplit{
				ImageDir:  images,
				LabelDir:  labels,
				OutputDir: output,
				Ratio:     floatFlag(cmd, "ratio", cfg.Split.Ratio),
				Rand:      partition.NewRand(int64Flag(cmd, "seed", cfg.Split.Seed)),
				Logger:    logger,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, report)
		},
	}

	cmd.Flags().StringVar(&images, "images", "", "directory of images")
	cmd.Flags().StringVar(&labels, "labels", "", "directory of YOLO label files")
	cmd.Flags().StringVar(&output, "output", "", "dataset root")
	cmd.Flags().Float64("ratio", 0.9, "training fraction (default from split.ratio)")
	cmd.Flags().Int64("seed", 0, "random seed, 0 for time-based (default from split.seed)")
	requireFlags(cmd, "images", "labels", "output")
	return cmd
}

func cropCmd() *cobra.Command {
	var input, output string

	cmd := &cobra.Command{
		Use:   "crop",
		Short: "Crop annotated regions into a classification dataset",
		Long: `Group the regions of every VOC file in --input by category, split each
category by --ratio, pad each box by --padding and save the crops as
<output>/<train|val>/<category>/<image>_<category>.jpg.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := &crop.Cropper{
				Padding:    floatFlag(cmd, "padding", cfg.Padding),
				OutputRoot: output,
				Workers:    intFlag(cmd, "workers", cfg.Crop.Workers),
				Quality:    intFlag(cmd, "quality", cfg.Crop.Quality),
				Logger:     logger,
				Progress:   progressWriter(),
			}
			ratio := floatFlag(cmd, "ratio", cfg.Split.Ratio)
			rng := partition.NewRand(int64Flag(cmd, "seed", cfg.Split.Seed))

			report, err := c.RunDir(cmd.Context(), input, ratio, rng)
			if err != nil {
				return err
			}
			return printJSON(cmd, report)
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "directory of VOC .xml files with their images")
	cmd.Flags().StringVar(&output, "output", "", "classification dataset root")
	cmd.Flags().Float64("ratio", 0.9, "training fraction (default from split.ratio)")
	cmd.Flags().Int64("seed", 0, "random seed, 0 for time-based (default from split.seed)")
	cmd.Flags().Float64("padding", crop.DefaultPadding, "box padding fraction (default from padding)")
	cmd.Flags().Int("workers", 0, "concurrent crops (default from crop.workers)")
	cmd.Flags().Int("quality", imaging.DefaultJPEGQuality, "JPEG quality (default from crop.quality)")
	requireFlags(cmd, "input", "output")
	return cmd
}

func verifyCmd() *cobra.Command {
	var remove bool

	cmd := &cobra.Command{
		Use:   "verify <dir>",
		Short: "Find images that cannot be decoded",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := imaging.Verify(cmd.Context(), args[0], remove, logger)
			if err != nil {
				return err
			}
			if err := printJSON(cmd, report); err != nil {
				return err
			}
			if len(report.Corrupted) > len(report.Removed) {
				return fmt.Errorf("%d corrupted images", len(report.Corrupted)-len(report.Removed))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&remove, "remove", false, "delete corrupted images")
	return cmd
}

func curateCmd() *cobra.Command {
	var logPath, predictions, images, labels, output string

	cmd := &cobra.Command{
		Use:   "curate",
		Short: "Keep images with many detections",
		Long: `Count detections per image from a detector's predict log (--log) or a
directory of prediction label files (--predictions), and copy every image with
more than --min-detections detections, together with its label file, into
<output>/images and <output>/labels.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				entries []curate.Entry
				err     error
			)
			switch {
			case logPath != "":
				entries, err = curate.ParseLogFile(logPath, logger)
			case predictions != "":
				entries, err = curate.CountPredictions(predictions)
			default:
				err = fmt.Errorf("one of --log or --predictions is required")
			}
			if err != nil {
				return err
			}

			c := &curate.Curator{
				ImageDir:       images,
				LabelDir:       labels,
				OutputImageDir: filepath.Join(output, "images"),
				OutputLabelDir: filepath.Join(output, "labels"),
				MinDetections:  intFlag(cmd, "min-detections", cfg.Curate.MinDetections),
				Logger:         logger,
			}
			report, err := c.Run(cmd.Context(), entries)
			if err != nil {
				return err
			}
			return printJSON(cmd, report)
		},
	}

	cmd.Flags().StringVar(&logPath, "log", "", "detector predict log")
	cmd.Flags().StringVar(&predictions, "predictions", "", "directory of prediction label files")
	cmd.Flags().StringVar(&images, "images", "", "directory of candidate images")
	cmd.Flags().StringVar(&labels, "labels", "", "directory of their label files")
	cmd.Flags().StringVar(&output, "output", "", "output root")
	cmd.Flags().Int("min-detections", curate.DefaultMinDetections, "keep images with more detections than this (default from curate.min_detections)")
	cmd.MarkFlagsMutuallyExclusive("log", "predictions")
	requireFlags(cmd, "images", "labels", "output")
	return cmd
}
