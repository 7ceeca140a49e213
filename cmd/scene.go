package cmd

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/andresmejia3/lotannot/internal/timeline"
	"github.com/andresmejia3/lotannot/internal/types"
	"github.com/andresmejia3/lotannot/internal/utils"
	"github.com/spf13/cobra"
)

var (
	sceneFlags     []string
	sceneRemove    bool
	sceneShowLot   string
	sceneShowFrame string
)

var sceneCmd = &cobra.Command{
	Use:   "scene",
	Short: "Label lot occupancy in a scene file",
}

var sceneLabelCmd = &cobra.Command{
	Use:   "label <scene.json> <lot-id> <frame> free|busy",
	Short: "Record a label change for a lot at a frame",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		label := args[3]
		if label != timeline.LabelFree && label != timeline.LabelBusy {
			return fmt.Errorf("label must be %s or %s, got %q", timeline.LabelFree, timeline.LabelBusy, label)
		}
		for _, f := range sceneFlags {
			if !slices.Contains(timeline.KnownFlags, f) {
				return fmt.Errorf("unknown flag %q (known: %s)", f, strings.Join(timeline.KnownFlags, ", "))
			}
		}
		return editScene(args[0], func(s *timeline.Scene) error {
			frame, err := frameArg(args[2])
			if err != nil {
				return err
			}
			if err := s.Occupancy.Insert(args[1], frame, label, sceneFlags...); err != nil {
				return err
			}
			fmt.Printf("✅ %s is %s from frame %s\n", args[1], label, frame)
			return nil
		})
	},
}

var sceneFlagCmd = &cobra.Command{
	Use:   "flag <scene.json> <lot-id> <frame> <flag>",
	Short: "Attach a flag to the label in effect at a frame",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		flag := args[3]
		if !slices.Contains(timeline.KnownFlags, flag) {
			return fmt.Errorf("unknown flag %q (known: %s)", flag, strings.Join(timeline.KnownFlags, ", "))
		}
		return editScene(args[0], func(s *timeline.Scene) error {
			frame, err := frameArg(args[2])
			if err != nil {
				return err
			}
			return s.Occupancy.AttachFlag(args[1], frame, flag)
		})
	},
}

var sceneUnlabelCmd = &cobra.Command{
	Use:   "unlabel <scene.json> <lot-id> <frame>",
	Short: "Remove the label change recorded at exactly a frame",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return editScene(args[0], func(s *timeline.Scene) error {
			frame, err := frameArg(args[2])
			if err != nil {
				return err
			}
			return s.Occupancy.Remove(args[1], frame)
		})
	},
}

var sceneDifficultCmd = &cobra.Command{
	Use:   "difficult <scene.json> <lot-id> <frame>",
	Short: "Mark a frame as difficult for a lot, keeping the label in effect",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return editScene(args[0], func(s *timeline.Scene) error {
			lot := args[1]
			frame, err := frameArg(args[2])
			if err != nil {
				return err
			}
			if sceneRemove {
				return s.Difficult.Remove(lot, frame)
			}
			label, ok := s.Occupancy.Label(lot, frame)
			if !ok {
				return fmt.Errorf("%w: %s has no label at or before %s", timeline.ErrNoEntry, lot, frame)
			}
			return s.Difficult.Insert(lot, frame, label)
		})
	},
}

var sceneOffsetCmd = &cobra.Command{
	Use:   "offset <scene.json> <n>",
	Short: "Shift every non-zero frame of every lot by n frames",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("offset %q is not an integer", args[1])
		}
		return editScene(args[0], func(s *timeline.Scene) error {
			if err := s.Occupancy.OffsetFrames(n); err != nil {
				return err
			}
			return s.Difficult.OffsetFrames(n)
		})
	},
}

var sceneShowCmd = &cobra.Command{
	Use:   "show <scene.json>",
	Short: "Summarise a scene, or list one lot's labels with --lot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		s, err := timeline.ReadScene(args[0])
		if err != nil {
			utils.ShowError("Failed to read scene file", err, nil)
			return err
		}
		frame := ""
		if sceneShowFrame != "" {
			if frame, err = frameArg(sceneShowFrame); err != nil {
				return err
			}
		}
		if sceneShowLot != "" {
			return showLot(s, sceneShowLot)
		}
		showScene(s, frame)
		return nil
	},
}

func init() {
	sceneLabelCmd.Flags().StringSliceVarP(&sceneFlags, "flag", "f", nil, "Flags for the new entry (occluded, person, ambiguous)")
	sceneDifficultCmd.Flags().BoolVar(&sceneRemove, "remove", false, "Unmark the frame instead")
	sceneShowCmd.Flags().StringVarP(&sceneShowLot, "lot", "l", "", "List the entries of one lot")
	sceneShowCmd.Flags().StringVar(&sceneShowFrame, "frame", "", "Show the label in effect at this frame")

	sceneCmd.AddCommand(sceneLabelCmd, sceneFlagCmd, sceneUnlabelCmd, sceneDifficultCmd, sceneOffsetCmd, sceneShowCmd)
	rootCmd.AddCommand(sceneCmd)
}

// editScene loads path, applies fn and saves only if fn succeeded.
func editScene(path string, fn func(*timeline.Scene) error) error {
	s, err := timeline.ReadScene(path)
	if err != nil {
		utils.ShowError("Failed to read scene file", err, nil)
		return err
	}
	if err := fn(s); err != nil {
		return err
	}
	if !s.Dirty() {
		return nil
	}
	if err := timeline.WriteScene(path, s); err != nil {
		utils.ShowError("Failed to save scene file", err, nil)
		return err
	}
	return nil
}

// frameArg accepts a frame key ("00042") or a plain index ("42").
func frameArg(v string) (string, error) {
	if types.IsFrameKey(v) {
		return v, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil || i < 0 || i > types.MaxFrameIndex {
		return "", fmt.Errorf("%w: %q", timeline.ErrInvalidFrame, v)
	}
	return types.FrameKey(i), nil
}

func showScene(s *timeline.Scene, frame string) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	if frame == "" {
		fmt.Fprintln(w, "LOT\tENTRIES\tOCCLUDED\tDIFFICULT")
		fmt.Fprintln(w, "---\t-------\t--------\t---------")
	} else {
		fmt.Fprintln(w, "LOT\tENTRIES\tOCCLUDED\tDIFFICULT\tAT "+frame+"\tFLAGS\tNEXT CHANGE")
		fmt.Fprintln(w, "---\t-------\t--------\t---------\t--------\t-----\t-----------")
	}
	for _, id := range s.LotIDs() {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d", id,
			s.Occupancy.Len(id), s.Occupancy.CountFlag(id, timeline.FlagOccluded), s.Difficult.Len(id))
		if frame != "" {
			next := "-"
			if e, ok := s.Occupancy.NearestFollowing(id, frame); ok {
				next = e.Frame
			}
			fmt.Fprintf(w, "\t%s\t%s\t%s", s.Occupancy.LastLabel(id, frame), flagList(s.Occupancy.FlagsAt(id, frame)), next)
		}
		fmt.Fprintln(w)
	}
	w.Flush()
}

func showLot(s *timeline.Scene, lot string) error {
	if !s.Occupancy.HasBucket(lot) {
		return fmt.Errorf("%w: %q", timeline.ErrUnknownBucket, lot)
	}
	entries := s.Occupancy.Entries(lot)
	if len(entries) == 0 {
		fmt.Printf("No labels recorded for %s.\n", lot)
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "FRAME\tLABEL\tFLAGS\tDIFFICULT")
	fmt.Fprintln(w, "-----\t-----\t-----\t---------")
	for _, e := range entries {
		_, difficult := s.Difficult.At(lot, e.Frame)
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", e.Frame, e.Label, flagList(e.Flags), difficult)
	}
	w.Flush()
	return nil
}

func flagList(flags []string) string {
	if len(flags) == 0 {
		return "-"
	}
	return strings.Join(flags, ",")
}
