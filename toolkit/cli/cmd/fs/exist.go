package fs

import (
	"dfs/toolkit/cli/cmd"

	"github.com/urfave/cli/v2"
)

func init() {
	// dfsctl exists ${path}...
	register(func() *cli.Command {
		return &cli.Command{
			Name:      "exists",
			Usage:     "report whether files exist",
			ArgsUsage: "<path>...",
			Action: func(ctx *cli.Context) error {
				if err := need(ctx, 1); err != nil {
					return err
				}
				cc, err := cmd.Context(ctx)
				if err != nil {
					return err
				}
				for _, p := range ctx.Args().Slice() {
					path := cc.Resolve(p)
					if cc.Client.FileExists(ctx.Context, path) {
						cc.Okf("%v: true\n", path)
					} else {
						cc.Errorf("%v: false\n", path)
					}
				}
				return nil
			},
		}
	})
}
