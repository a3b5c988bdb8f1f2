package fs

import (
	"dfs/toolkit/cli/cmd"

	"github.com/urfave/cli/v2"
)

func init() {
	register(func() *cli.Command {
		return &cli.Command{
			Name:      "mkdir",
			Usage:     "create a directory",
			ArgsUsage: "<dir>",
			Action: func(ctx *cli.Context) error {
				if err := need(ctx, 1); err != nil {
					return err
				}
				cc, err := cmd.Context(ctx)
				if err != nil {
					return err
				}
				return cc.Client.CreateDirectory(ctx.Context, cc.Resolve(ctx.Args().Get(0)))
			},
		}
	})

	register(func() *cli.Command {
		return &cli.Command{
			Name:      "rmdir",
			Usage:     "delete a directory and every file under it",
			ArgsUsage: "<dir>",
			Action: func(ctx *cli.Context) error {
				if err := need(ctx, 1); err != nil {
					return err
				}
				cc, err := cmd.Context(ctx)
				if err != nil {
					return err
				}
				dir := cc.Resolve(ctx.Args().Get(0))
				n, err := cc.Client.DeleteDirectory(ctx.Context, dir)
				if err != nil {
					return err
				}
				cc.Okf("%v: %d files removed\n", dir, n)
				return nil
			},
		}
	})
}
