package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/andresmejia3/lotannot/internal/geometry"
	"github.com/andresmejia3/lotannot/internal/lots"
	"github.com/andresmejia3/lotannot/internal/utils"
	"github.com/spf13/cobra"
)

var (
	lotsOutDir    string
	editScript    string
	editOnUnsaved string
)

var lotsCmd = &cobra.Command{
	Use:   "lots",
	Short: "Inspect and edit lots files",
}

var lotsListCmd = &cobra.Command{
	Use:   "list <lots.json>",
	Short: "List the lots of a lots file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		doc, err := lots.ReadFile(args[0])
		if err != nil {
			utils.ShowError("Failed to read lots file", err, nil)
			return err
		}
		if len(doc.Lots) == 0 {
			fmt.Println("No lots found in file.")
			return nil
		}
		if doc.ImagePath != "" {
			fmt.Printf("🖼️  Reference frame: %s\n", doc.ImagePath)
		}
		printLots(os.Stdout, doc.Lots)
		return nil
	},
}

var lotsCropCmd = &cobra.Command{
	Use:   "crop <lots.json> <lot-id> on|off",
	Short: "Include or exclude a lot from cropping",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		path, id, state := args[0], args[1], args[2]
		if state != "on" && state != "off" {
			return fmt.Errorf("crop state must be on or off, got %q", state)
		}

		s := lots.New()
		if err := s.Load(path, nil); err != nil {
			utils.ShowError("Failed to load lots file", err, nil)
			return err
		}
		li, ok := s.Index(id)
		if !ok {
			return fmt.Errorf("no lot %q in %s", id, path)
		}
		if err := s.SetCropFlag(li, state == "on"); err != nil {
			return err
		}
		if err := s.Save(); err != nil {
			utils.ShowError("Failed to save lots file", err, nil)
			return err
		}
		fmt.Printf("✅ Lot %s crop %s\n", id, state)
		return nil
	},
}

var lotsImportCmd = &cobra.Command{
	Use:   "import-preset <preset.json>",
	Short: "Convert a camera preset export into one lots file per camera",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		written, err := lots.ImportPreset(args[0], lotsOutDir)
		if err != nil {
			utils.ShowError("Failed to import preset", err, nil)
			return err
		}
		for _, p := range written {
			fmt.Printf("✅ Wrote %s\n", p)
		}
		return nil
	},
}

var lotsEditCmd = &cobra.Command{
	Use:   "edit <lots.json>",
	Short: "Drive the lot editor from an event script",
	Long: "Replays pointer and key events against the lots file (see 'tool', 'drag', 'id', 'save', ...).\n" +
		"The script is read from --script, or from stdin when --script is not set. The file is\n" +
		"created on save if it does not exist.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runEdit(cmd, args[0])
	},
}

func init() {
	lotsImportCmd.Flags().StringVarP(&lotsOutDir, "out", "o", ".", "Directory for the generated lots files")
	lotsEditCmd.Flags().StringVarP(&editScript, "script", "s", "", "Event script (default: stdin)")
	lotsEditCmd.Flags().StringVar(&editOnUnsaved, "on-unsaved", "abort", "Unsaved changes before load/reset: ask, save, discard or abort")

	lotsCmd.AddCommand(lotsListCmd, lotsCropCmd, lotsImportCmd, lotsEditCmd)
	rootCmd.AddCommand(lotsCmd)
}

func runEdit(cmd *cobra.Command, path string) error {
	var script io.Reader = cmd.InOrStdin()
	var prompts *bufio.Reader
	if editScript != "" {
		f, err := os.Open(editScript)
		if err != nil {
			utils.ShowError("Failed to open event script", err, nil)
			return err
		}
		defer f.Close()
		script = f
		prompts = bufio.NewReader(cmd.InOrStdin())
	} else if editOnUnsaved == "ask" {
		return errors.New("--on-unsaved=ask needs --script so stdin is free for prompts")
	}

	s := lots.New()
	if _, err := os.Stat(path); err == nil {
		if err := s.Load(path, nil); err != nil {
			utils.ShowError("Failed to load lots file", err, nil)
			return err
		}
	} else if errors.Is(err, os.ErrNotExist) {
		s.SetPath(path)
	} else {
		return err
	}

	resolve, err := resolverFor(editOnUnsaved, prompts, s.Path)
	if err != nil {
		return err
	}
	e := newEditor(s, cmd.OutOrStdout(), resolve)
	defer e.close()
	if prompts != nil {
		e.ask = func(rect geometry.Rect) (string, bool) {
			fmt.Fprintf(cmd.OutOrStdout(), "New lot at (%.0f,%.0f)-(%.0f,%.0f), id (blank to cancel): ",
				rect.Min.X, rect.Min.Y, rect.Max.X, rect.Max.Y)
			res, _ := prompts.ReadString('\n')
			res = strings.TrimSpace(res)
			return res, res != ""
		}
	}

	if err := e.run(script); err != nil {
		utils.ShowError("Event script failed", err, nil)
		return err
	}
	if s.Dirty() {
		fmt.Fprintf(os.Stderr, "⚠️  %d lots have unsaved changes (end the script with 'save')\n", s.Len())
	}
	return nil
}

func printLots(out io.Writer, ls []lots.Lot) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tCROP\tLABEL\tBOUNDS")
	fmt.Fprintln(w, "--\t----\t-----\t------")

	for _, l := range ls {
		b := l.Quad.Bounds()
		label := l.Label
		if label == "" {
			label = "-"
		}
		fmt.Fprintf(w, "%s\t%t\t%s\t(%.0f,%.0f)-(%.0f,%.0f)\n", l.ID, l.Crop, label, b.Min.X, b.Min.Y, b.Max.X, b.Max.Y)
	}
	w.Flush()
}
