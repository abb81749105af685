package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/ironsheep/fitset/internal/detection"
	"github.com/ironsheep/fitset/internal/evaluate"
	"github.com/ironsheep/fitset/internal/store"
)

func evaluateCmd() *cobra.Command {
	var (
		images, detector, csvPath, dbPath string
		thresholds                        []float64
		minConfidence                     float32
		onnxSize                          int
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score a detector's fit/unfit decisions per threshold",
		Long: `Run --detector over every image in --images. Images named ab_* are unfit,
no_* are fit; other names are skipped. An image is predicted fit at threshold
t when it has detections and the fraction of "normal" detections is at least t.

--detector is a directory of prediction label files, an inference URL, or an
.onnx model (builds with -tags gocv).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if !cmd.Flags().Changed("thresholds") {
				thresholds = cfg.Evaluate.Thresholds
			}

			opts := detection.DefaultONNXOptions()
			if onnxSize > 0 {
				opts.InputSize = onnxSize
			}
			det, err := detection.Open(detector, opts)
			if err != nil {
				return err
			}
			defer det.Close()

			if ld, ok := unwrapLabelDir(det); ok {
				ld.MinConfidence = minConfidence
			}

			ev := &evaluate.Evaluator{Detector: det, Logger: logger, Progress: progressWriter()}
			res, records, err := ev.Run(ctx, images, thresholds)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, evaluate.RenderTable(res))
			if best, ok := res.Best(); ok {
				fmt.Fprintf(out, "best threshold %s: TPR %.4f, TNR %.4f\n",
					strconv.FormatFloat(best.Threshold, 'f', -1, 64), best.TPR, best.TNR)
			}

			if csvPath != "" {
				if err := writeCSVFile(csvPath, res); err != nil {
					return err
				}
				logger.Info("wrote report", "path", csvPath)
			}

			if dbPath == "" {
				dbPath = cfg.Evaluate.DB
			}
			if dbPath != "" {
				st, err := store.Open(ctx, dbPath, logger)
				if err != nil {
					return err
				}
				defer st.Close()
				run, err := st.SaveRun(ctx, images, detector, res, records)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "saved run %s\n", run.ID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&images, "images", "", "directory of ab_*/no_* test images")
	cmd.Flags().StringVar(&detector, "detector", "", "predictions directory, inference URL or .onnx model")
	cmd.Flags().Float64SliceVar(&thresholds, "thresholds", nil, "normal-fraction thresholds (default from evaluate.thresholds)")
	cmd.Flags().StringVar(&csvPath, "csv", "", "write Threshold,TPR,TNR rows to this file")
	cmd.Flags().StringVar(&dbPath, "db", "", "store the run in this SQLite database (default from evaluate.db)")
	cmd.Flags().Float32Var(&minConfidence, "min-confidence", 0, "ignore predictions below this confidence (predictions directory only)")
	cmd.Flags().IntVar(&onnxSize, "onnx-size", 0, "ONNX network input size")
	requireFlags(cmd, "images", "detector")
	return cmd
}

func unwrapLabelDir(d detection.Detector) (*detection.LabelDir, bool) {
	type unwrapper interface{ Unwrap() detection.Detector }
	if u, ok := d.(unwrapper); ok {
		d = u.Unwrap()
	}
	ld, ok := d.(*detection.LabelDir)
	return ld, ok
}

func writeCSVFile(path string, res evaluate.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := evaluate.WriteCSV(f, res); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func runsCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "runs [id]",
		Short: "List stored evaluation runs or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if dbPath == "" {
				dbPath = cfg.Evaluate.DB
			}
			if dbPath == "" {
				return fmt.Errorf("no database: pass --db or set evaluate.db")
			}

			st, err := store.Open(ctx, dbPath, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				res, err := st.LoadResult(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(out, evaluate.RenderTable(res))
				return nil
			}

			runs, err := st.ListRuns(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, renderRuns(runs))
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database (default from evaluate.db)")
	return cmd
}

func renderRuns(runs []store.Run) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers("ID", "Created", "Images", "Detector", "Image dir").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")).Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})

	for _, r := range runs {
		t.Row(r.ID, r.CreatedAt.Local().Format("2006-01-02 15:04"), strconv.Itoa(r.Images), r.Detector, r.ImageDir)
	}
	return t.String()
}
