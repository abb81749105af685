package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ironsheep/fitset/internal/annotation"
	"github.com/ironsheep/fitset/internal/dataset"
	"github.com/ironsheep/fitset/internal/imaging"
)

func previewCmd() *cobra.Command {
	var (
		imagePath, output string
		thickness         int
		colors            map[string]string
	)

	cmd := &cobra.Command{
		Use:   "preview <annotation.xml>",
		Short: "Draw an annotation's boxes onto its image",
		Long: `Draw every region of a VOC file onto its image in its category colour and
save the result as PNG. The image defaults to the file next to the annotation
with the same stem.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := annotation.ParseFile(args[0], logger)
			if err != nil {
				return err
			}

			if imagePath == "" {
				p, ok := dataset.FindImage(filepath.Dir(args[0]), dataset.Stem(args[0]))
				if !ok {
					return fmt.Errorf("no image next to %s; pass --image", args[0])
				}
				imagePath = p
			}
			if output == "" {
				output = dataset.Stem(imagePath) + "_preview.png"
			}

			palette := imaging.Palette()
			if err := imaging.ParsePaletteOverride(palette, colors); err != nil {
				return err
			}

			img, err := imaging.NewImageCache().Load(imagePath)
			if err != nil {
				return err
			}
			anns := doc.Annotations(logger)
			if err := imaging.SavePreview(imaging.DrawAnnotations(img, anns, palette, thickness), output); err != nil {
				return err
			}

			logger.Info("wrote preview", "path", output, "regions", len(anns))
			fmt.Fprintln(cmd.OutOrStdout(), output)
			return nil
		},
	}

	cmd.Flags().StringVar(&imagePath, "image", "", "source image (default: sibling of the annotation)")
	cmd.Flags().StringVar(&output, "output", "", "output PNG (default: <stem>_preview.png)")
	cmd.Flags().IntVar(&thickness, "thickness", 2, "box outline thickness in pixels")
	cmd.Flags().StringToStringVar(&colors, "color", nil, "category colour override, e.g. normal=#00ff00")
	return cmd
}
