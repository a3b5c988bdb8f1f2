package fs

import (
	"errors"

	"github.com/urfave/cli/v2"
)

var (
	ErrNotEnoughArgs = errors.New("not enough args")
	ErrInvalidArg    = errors.New("invalid argument")
)

var command []func() *cli.Command

// register adds a command constructor. Every Export builds fresh commands so
// several apps can carry them.
func register(xcmd func() *cli.Command) {
	command = append(command, xcmd)
}

func Export() []*cli.Command {
	cmds := make([]*cli.Command, 0, len(command))
	for _, f := range command {
		cmds = append(cmds, f())
	}
	return cmds
}

func need(ctx *cli.Context, n int) error {
	if ctx.NArg() < n {
		return ErrNotEnoughArgs
	}
	return nil
}
