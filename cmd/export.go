package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/andresmejia3/lotannot/internal/extract"
	"github.com/andresmejia3/lotannot/internal/store"
	"github.com/andresmejia3/lotannot/internal/timeline"
	"github.com/andresmejia3/lotannot/internal/utils"
	"github.com/spf13/cobra"
)

var (
	exportConditions string
	exportVideo      string
)

var exportCmd = &cobra.Command{
	Use:   "export <scene.json>",
	Short: "Index a scene's labels and conditions in PostgreSQL",
	Long: "Replaces every row of the scene's video in the annotation index. The conditions file\n" +
		"defaults to conditions.json next to the scene when present.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runExport(cmd.Context(), args[0])
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportConditions, "conditions", "c", "", "Conditions file (default: conditions.json beside the scene)")
	exportCmd.Flags().StringVar(&exportVideo, "video", "", "Video path used for the id (default: the scene's video_path)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(ctx context.Context, scenePath string) error {
	scene, err := timeline.ReadScene(scenePath)
	if err != nil {
		utils.ShowError("Failed to read scene file", err, nil)
		return err
	}

	condPath := exportConditions
	if condPath == "" {
		if p := filepath.Join(filepath.Dir(scenePath), extract.ConditionsFile); fileExists(p) {
			condPath = p
		}
	}
	var cond *timeline.Conditions
	if condPath != "" {
		if cond, err = timeline.ReadConditions(condPath); err != nil {
			utils.ShowError("Failed to read conditions file", err, nil)
			return err
		}
	}

	video := exportVideo
	if video == "" {
		video = scene.VideoPath
	}
	if video == "" {
		video, _ = filepath.Abs(scenePath)
	}
	videoID := store.VideoID(video)

	db, err := openStore(ctx)
	if err != nil {
		utils.ShowError("Database unavailable", err, nil)
		return err
	}
	// Use Background here because the main context might be cancelled already (due to Ctrl+C)
	// and we still need to send the "Close" command to the DB.
	defer db.Close(context.Background())

	fmt.Fprintf(os.Stderr, "📼 Exporting Video ID: %s\n", shortID(videoID))
	counts, err := db.ReplaceScene(ctx, videoID, video, scene, cond)
	if err != nil {
		utils.ShowError("Export failed", err, nil)
		return err
	}

	stats, err := db.LabelCounts(ctx, videoID)
	if err != nil {
		utils.ShowError("Failed to read back label counts", err, nil)
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "LOT\tFREE\tBUSY\tOCCLUDED")
	fmt.Fprintln(w, "---\t----\t----\t--------")
	for _, s := range stats {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", s.LotID, s.Free, s.Busy, s.Occluded)
	}
	w.Flush()

	fmt.Fprintf(os.Stderr, "🏁 Export Complete. %d labels, %d difficult frames, %d conditions.\n",
		counts.Labels, counts.Difficult, counts.Conditions)
	return nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
