package cmd

import (
	"io"

	"hlclock/internal/hlc"
)

type (
	Command = command
	Option  = option
)

var NewCommand = newCommand

func WithArgs(a ...string) func(c *Command) {
	return func(c *Command) {
		c.root.SetArgs(a)
	}
}

func WithOutput(w io.Writer) func(c *Command) {
	return func(c *Command) {
		c.root.SetOut(w)
		c.root.SetErr(w)
	}
}

func WithWallClock(w hlc.WallClock) func(c *Command) {
	return func(c *Command) {
		c.wall = w
	}
}
