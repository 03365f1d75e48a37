package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"hlclock/internal/hlc"
)

const demoAdvances = 20

func (c *command) initDemoCmd() {
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Walk a clock through local events and two merges",
		RunE: func(cmd *cobra.Command, args []string) error {
			wall := c.wall
			if start, _ := cmd.Flags().GetUint64(optionNameWall); start > 0 {
				wall = hlc.NewManualClock(start)
			}
			return runDemo(cmd.OutOrStdout(), wall)
		},
	}
	cmd.Flags().Uint64(optionNameWall, 0, "frozen wall clock in ms since the epoch, system clock if 0")

	c.root.AddCommand(cmd)
}

func runDemo(out io.Writer, wall hlc.WallClock) error {
	ordered, err := demoOrdering(out, wall)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "ordered:", ordered)

	start := wall.Now()
	fmt.Fprintln(out, "wall:", start)
	clk, err := hlc.New(start)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "[0] %s\n", clk)

	for i := 1; i <= demoAdvances; i++ {
		if clk, err = clk.Advance(wall.Now()); err != nil {
			return fmt.Errorf("advance %d: %w", i, err)
		}
		fmt.Fprintf(out, "[%d] %s\n", i, clk)
	}

	fmt.Fprintln(out, "--------------------------------")
	ahead := hlc.MustPack(wall.Now()+200, 100)
	fmt.Fprintln(out, "remote:", ahead)
	if clk, err = clk.Update(ahead, wall.Now()); err != nil {
		return fmt.Errorf("merge %s: %w", ahead, err)
	}
	fmt.Fprintln(out, "updated:", clk)

	behind := hlc.MustPack(start, 10000)
	fmt.Fprintln(out, "remote:", behind)
	if clk, err = clk.Update(behind, wall.Now()); err != nil {
		return fmt.Errorf("merge %s: %w", behind, err)
	}
	fmt.Fprintln(out, "updated:", clk)
	fmt.Fprintf(out, "elapsed: %dms\n", wall.Now()-start)
	return nil
}

// demoOrdering checks that (w,0) < (w,1) < (w+1,0) and shows how resyncing
// a clock that is ahead of the wall clock leaves it unchanged.
func demoOrdering(out io.Writer, wall hlc.WallClock) (bool, error) {
	w := wall.Now()
	early := hlc.MustPack(w, 0)
	middle := hlc.MustPack(w, 1)
	late := hlc.MustPack(w+1, 0)
	fmt.Fprintln(out, early)
	fmt.Fprintln(out, middle)
	fmt.Fprintln(out, late)

	current, err := hlc.FromTimestamp(late).Current(wall.Now())
	if err != nil {
		return false, err
	}
	now := current.Timestamp()
	fmt.Fprintln(out, "physical delta:", int64(now.Physical())-int64(late.Physical()))
	fmt.Fprintln(out, "logical:", now.Logical())
	fmt.Fprintln(out, "--------------------------------")

	return early.Less(middle) && middle.Less(late), nil
}
