package cmd

import (
	"github.com/spf13/cobra"

	"hlclock/internal/hlc"
)

const (
	optionNameNodeID             = "node-id"
	optionNameListenAddr         = "listen-addr"
	optionNameHTTPAddr           = "http-addr"
	optionNamePeers              = "peers"
	optionNameDataDir            = "data-dir"
	optionNameSyncInterval       = "sync-interval"
	optionNameCheckpointInterval = "checkpoint-interval"
	optionNameMaxOffset          = "max-offset"
	optionNameVerbosity          = "verbosity"
	optionNameWall               = "wall"
)

func init() {
	cobra.EnableCommandSorting = false
}

type command struct {
	root *cobra.Command
	wall hlc.WallClock
}

type option func(*command)

func newCommand(opts ...option) (c *command, err error) {
	c = &command{
		root: &cobra.Command{
			Use:           "hlcd",
			Short:         "Hybrid logical clock node",
			SilenceErrors: true,
			SilenceUsage:  true,
		},
	}

	for _, o := range opts {
		o(c)
	}
	if c.wall == nil {
		c.wall = hlc.SystemClock{}
	}

	c.initServeCmd()
	c.initDemoCmd()
	c.initDecodeCmd()

	return c, nil
}

func (c *command) Execute() (err error) {
	return c.root.Execute()
}

// Execute parses command line arguments and runs appropriate functions.
func Execute() (err error) {
	c, err := newCommand()
	if err != nil {
		return err
	}
	return c.Execute()
}
