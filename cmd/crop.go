package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/andresmejia3/lotannot/internal/crop"
	"github.com/andresmejia3/lotannot/internal/lots"
	"github.com/andresmejia3/lotannot/internal/types"
	"github.com/andresmejia3/lotannot/internal/utils"
	"github.com/spf13/cobra"
)

var (
	cropRaw      string
	cropOut      string
	cropUpsample float64
	cropWidth    int
	cropHeight   int
	cropQuality  int
)

var cropCmd = &cobra.Command{
	Use:   "crop <lots.json>",
	Short: "Cut one model tile per crop-eligible lot out of every raw frame",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runCrop(cmd.Context(), args[0], cropOptions(cmd))
	},
}

func init() {
	cropCmd.Flags().StringVarP(&cropRaw, "raw", "r", "raw", "Directory of raw frames")
	cropCmd.Flags().StringVarP(&cropOut, "out", "o", "crops", "Output directory (one subdirectory per lot)")
	cropCmd.Flags().Float64VarP(&cropUpsample, "upsample", "u", 1.5, "Crop window size relative to the lot's longer side")
	cropCmd.Flags().IntVar(&cropWidth, "width", 224, "Model input width")
	cropCmd.Flags().IntVar(&cropHeight, "height", 224, "Model input height")
	cropCmd.Flags().IntVarP(&cropQuality, "quality", "q", 100, "JPEG quality of tiles (1-100)")
	rootCmd.AddCommand(cropCmd)
}

// cropOptions starts from the config and applies explicitly set flags.
func cropOptions(cmd *cobra.Command) crop.Options {
	opts := crop.Options{
		UpsampleRate: cfg.Crop.UpsampleRate,
		ModelWidth:   cfg.Crop.ModelWidth,
		ModelHeight:  cfg.Crop.ModelHeight,
		Quality:      cfg.Crop.Quality,
	}
	if cmd.Flags().Changed("upsample") {
		opts.UpsampleRate = cropUpsample
	}
	if cmd.Flags().Changed("width") {
		opts.ModelWidth = cropWidth
	}
	if cmd.Flags().Changed("height") {
		opts.ModelHeight = cropHeight
	}
	if cmd.Flags().Changed("quality") {
		opts.Quality = cropQuality
	}
	return opts
}

func runCrop(ctx context.Context, lotsPath string, opts crop.Options) error {
	doc, err := lots.ReadFile(lotsPath)
	if err != nil {
		utils.ShowError("Failed to read lots file", err, nil)
		return err
	}

	frames, err := crop.ListFrames(cropRaw)
	if err != nil {
		utils.ShowError("Failed to list raw frames", err, nil)
		return err
	}

	regions := crop.Regions(doc.Lots)
	job, err := crop.NewJob(regions, frames, cropOut, opts)
	if err != nil {
		utils.ShowError("Invalid crop job", err, nil)
		return err
	}

	fmt.Fprintf(os.Stderr, "✂️  Cropping %d lots across %d frames\n", len(regions), job.Frames())

	final := runJob(ctx, "crop", "✂️  Cropping", func(ctx context.Context, progress types.ProgressFunc) (types.Outcome, error) {
		return job.Run(ctx, progress)
	})
	if err := jobError(final, "Crop pipeline failed"); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "🏁 Crop Complete. Wrote %d tiles to %s\n", len(regions)*job.Frames(), cropOut)
	return nil
}
