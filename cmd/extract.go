package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/andresmejia3/lotannot/internal/extract"
	"github.com/andresmejia3/lotannot/internal/lots"
	"github.com/andresmejia3/lotannot/internal/types"
	"github.com/andresmejia3/lotannot/internal/utils"
	"github.com/spf13/cobra"
)

var (
	extractOut      string
	extractLots     string
	extractInterval int
	extractQuality  int
)

var extractCmd = &cobra.Command{
	Use:   "extract <video>",
	Short: "Decode one frame every interval seconds into <out>/raw",
	Long: "Decodes the video through ffmpeg into <out>/raw/00000.jpg, 00001.jpg, ... and, when a lots\n" +
		"file is given, writes the scene.json and conditions.json skeletons into <out>.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		opts := extract.Options{Interval: cfg.Extract.Interval, Quality: cfg.Extract.Quality}
		if cmd.Flags().Changed("interval") {
			opts.Interval = extractInterval
		}
		if cmd.Flags().Changed("quality") {
			opts.Quality = extractQuality
		}
		return runExtract(cmd.Context(), args[0], opts)
	},
}

func init() {
	extractCmd.Flags().StringVarP(&extractOut, "out", "o", ".", "Output directory (frames go to <out>/raw)")
	extractCmd.Flags().StringVarP(&extractLots, "lots", "l", "", "Lots file used to build the scene skeleton")
	extractCmd.Flags().IntVarP(&extractInterval, "interval", "n", 60, "Seconds between extracted frames")
	extractCmd.Flags().IntVarP(&extractQuality, "quality", "q", 95, "JPEG quality of extracted frames (1-100)")
	rootCmd.AddCommand(extractCmd)
}

func runExtract(ctx context.Context, video string, opts extract.Options) error {
	if err := validateExtractFlags(video, opts); err != nil {
		return err
	}

	// Load the lots before decoding so a bad file fails fast.
	var ls []lots.Lot
	if extractLots != "" {
		doc, err := lots.ReadFile(extractLots)
		if err != nil {
			utils.ShowError("Failed to read lots file", err, nil)
			return err
		}
		ls = doc.Lots
	}

	rawDir := filepath.Join(extractOut, extract.RawDir)
	fmt.Fprintf(os.Stderr, "📼 Extracting one frame every %ds from %s\n", opts.Interval, filepath.Base(video))

	var frames int
	final := runJob(ctx, "extract", "🎞️  Extracting", func(ctx context.Context, progress types.ProgressFunc) (types.Outcome, error) {
		n, outcome, err := extract.Run(ctx, video, rawDir, opts, progress)
		frames = n
		return outcome, err
	})
	if err := jobError(final, "Frame extraction failed"); err != nil {
		return err
	}

	if extractLots != "" {
		if err := extract.WriteSkeletons(extractOut, video, extract.SceneLots(ls), opts.Interval); err != nil {
			utils.ShowError("Failed to write scene skeletons", err, nil)
			return err
		}
		fmt.Fprintf(os.Stderr, "📝 Wrote %s and %s\n", extract.SceneFile, extract.ConditionsFile)
	}

	fmt.Fprintf(os.Stderr, "🏁 Extraction Complete. Wrote %d frames to %s\n", frames, rawDir)
	return nil
}

// validateExtractFlags ensures all CLI arguments are valid before starting heavy processes.
func validateExtractFlags(video string, opts extract.Options) error {
	info, err := os.Stat(video)
	if err != nil {
		if os.IsNotExist(err) {
			utils.ShowError("Input file does not exist", err, nil)
			return err
		}
		utils.ShowError("Unable to access input file", err, nil)
		return err
	}
	if info.IsDir() {
		err := fmt.Errorf("%s is a directory, expected a video file", video)
		utils.ShowError("Invalid input path", err, nil)
		return err
	}
	if err := opts.Validate(); err != nil {
		utils.ShowError("Invalid extraction options", err, nil)
		return err
	}
	return nil
}
