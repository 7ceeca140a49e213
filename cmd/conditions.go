package cmd

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/lotannot/internal/timeline"
	"github.com/andresmejia3/lotannot/internal/utils"
	"github.com/spf13/cobra"
)

var (
	condInitial string
	condDay     string
	condNight   string
)

var conditionsCmd = &cobra.Command{
	Use:   "conditions",
	Short: "Label weather and time-of-day conditions",
}

var conditionsLabelCmd = &cobra.Command{
	Use:   "label <conditions.json> <axis> <frame> <value>",
	Short: "Record a condition value (e.g. weather rain) from a frame on",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		frame, err := frameArg(args[2])
		if err != nil {
			return err
		}
		return editConditions(args[0], func(c *timeline.Conditions) error {
			return c.SetLabel(args[1], frame, args[3])
		})
	},
}

var conditionsTimesCmd = &cobra.Command{
	Use:   "times <conditions.json>",
	Short: "Set the clock of the first frame and the day/night boundaries (hh:mm:ss)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return editConditions(args[0], func(c *timeline.Conditions) error {
			initial, day, night := c.InitialTime, c.DayStartTime, c.NightStartTime
			if cmd.Flags().Changed("initial") {
				initial = condInitial
			}
			if cmd.Flags().Changed("day") {
				day = condDay
			}
			if cmd.Flags().Changed("night") {
				night = condNight
			}
			return c.SetTimes(initial, day, night)
		})
	},
}

var conditionsShowCmd = &cobra.Command{
	Use:   "show <conditions.json>",
	Short: "List recorded conditions with the clock time of each frame",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		c, err := timeline.ReadConditions(args[0])
		if err != nil {
			utils.ShowError("Failed to read conditions file", err, nil)
			return err
		}
		rows := c.Rows()
		if len(rows) == 0 {
			fmt.Println("No conditions recorded.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "FRAME\tCLOCK\tPHASE\tWEATHER\tTIME")
		fmt.Fprintln(w, "-----\t-----\t-----\t-------\t----")
		for _, r := range rows {
			clock, phase := "-", "-"
			if v, err := c.ClockAt(r.Frame); err == nil {
				clock = v
			} else if !errors.Is(err, timeline.ErrClockUnset) {
				return err
			}
			if p, err := c.PhaseAt(r.Frame); err == nil {
				phase = string(p)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.Frame, clock, phase,
				orDash(r.Labels[timeline.AxisWeather]), orDash(r.Labels[timeline.AxisTime]))
		}
		w.Flush()
		return nil
	},
}

func init() {
	conditionsTimesCmd.Flags().StringVar(&condInitial, "initial", "", "Clock time of frame 00000")
	conditionsTimesCmd.Flags().StringVar(&condDay, "day", "", "Day start time")
	conditionsTimesCmd.Flags().StringVar(&condNight, "night", "", "Night start time")

	conditionsCmd.AddCommand(conditionsLabelCmd, conditionsTimesCmd, conditionsShowCmd)
	rootCmd.AddCommand(conditionsCmd)
}

// editConditions loads path, applies fn and saves only if fn succeeded.
func editConditions(path string, fn func(*timeline.Conditions) error) error {
	c, err := timeline.ReadConditions(path)
	if err != nil {
		utils.ShowError("Failed to read conditions file", err, nil)
		return err
	}
	if err := fn(c); err != nil {
		return err
	}
	if err := timeline.WriteConditions(path, c); err != nil {
		utils.ShowError("Failed to save conditions file", err, nil)
		return err
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
