package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"hlclock/internal/hlc"
)

func (c *command) initDecodeCmd() {
	c.root.AddCommand(&cobra.Command{
		Use:   "decode <timestamp>",
		Short: "Print the parts of a packed or physical.logical timestamp",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ts, err := parseTimestamp(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "timestamp: %s\n", ts)
			fmt.Fprintf(out, "packed:    %d\n", uint64(ts))
			fmt.Fprintf(out, "physical:  %d\n", ts.Physical())
			fmt.Fprintf(out, "logical:   %d\n", ts.Logical())
			fmt.Fprintf(out, "time:      %s\n", ts.Time().UTC().Format(time.RFC3339Nano))
			return nil
		},
	})
}

func parseTimestamp(s string) (hlc.Timestamp, error) {
	if strings.Contains(s, ".") {
		return hlc.ParseTimestamp(s)
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return hlc.Unpack(v)
}
