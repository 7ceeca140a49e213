package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/andresmejia3/lotannot/internal/crop"
	"github.com/andresmejia3/lotannot/internal/extract"
	"github.com/andresmejia3/lotannot/internal/lots"
	"github.com/andresmejia3/lotannot/internal/utils"
	"github.com/spf13/cobra"
)

var (
	resetDB    bool
	resetCrops bool
	resetRaw   bool
	resetDir   string
	resetLots  string
	resetYes   bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset working state (crop tiles, raw frames, database)",
	Long: "Clears generated data. By default, it clears crop tiles and raw frames under --dir.\n" +
		"Use flags to clear specific components; --db drops the annotation index.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		// If no flags are set, default to clearing the generated files
		if !resetDB && !resetCrops && !resetRaw {
			resetCrops = true
			resetRaw = true
		}

		reader := bufio.NewReader(cmd.InOrStdin())
		ask := func(prompt string) bool { return resetYes || confirm(reader, prompt) }

		if resetCrops {
			dirs, err := cropDirs(resetDir, resetLots)
			if err != nil {
				utils.ShowError("Failed to read lots file", err, nil)
				return err
			}
			if len(dirs) > 0 && ask(fmt.Sprintf("⚠️  Are you sure you want to delete %d crop directories?", len(dirs))) {
				fmt.Println("🗑️  Clearing Crop Tiles...")
				for _, d := range dirs {
					removeDir(d)
				}
			}
		}

		if resetRaw {
			raw := filepath.Join(resetDir, extract.RawDir)
			if ask(fmt.Sprintf("⚠️  Are you sure you want to delete all raw frames in %s?", raw)) {
				fmt.Println("🗑️  Clearing Raw Frames...")
				removeDir(raw)
			}
		}

		if resetDB {
			if ask("⚠️  Are you sure you want to DROP all database tables?") {
				fmt.Println("🗑️  Clearing Database...")
				db, err := openStore(cmd.Context())
				if err != nil {
					utils.ShowError("Database unavailable", err, nil)
					return err
				}
				defer db.Close(cmd.Context())
				if err := db.Reset(cmd.Context()); err != nil {
					utils.ShowError("Failed to reset database", err, nil)
					return err
				}
			}
		}

		fmt.Println("✨ Reset Complete.")
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetDB, "db", false, "Drop the PostgreSQL annotation index")
	resetCmd.Flags().BoolVar(&resetCrops, "crops", false, "Clear per-lot crop directories")
	resetCmd.Flags().BoolVar(&resetRaw, "raw", false, "Clear extracted raw frames")
	resetCmd.Flags().StringVarP(&resetDir, "dir", "d", ".", "Working directory holding raw/ and the crop output")
	resetCmd.Flags().StringVarP(&resetLots, "lots", "l", "", "Lots file naming the crop directories (default: every lot directory under <dir>/crops)")
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(resetCmd)
}

// cropDirs lists the per-lot tile directories to clear. With a lots file only
// that file's lots are touched; otherwise every directory under <dir>/crops.
func cropDirs(dir, lotsPath string) ([]string, error) {
	base := filepath.Join(dir, "crops")
	if lotsPath != "" {
		doc, err := lots.ReadFile(lotsPath)
		if err != nil {
			return nil, err
		}
		var out []string
		for _, r := range crop.Regions(doc.Lots) {
			out = append(out, filepath.Join(base, r.ID))
		}
		return out, nil
	}
	entries, err := os.ReadDir(base)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, filepath.Join(base, e.Name()))
		}
	}
	return out, nil
}

func confirm(r *bufio.Reader, prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}

func removeDir(path string) {
	if err := os.RemoveAll(path); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Failed to remove %s: %v\n", path, err)
	}
}
