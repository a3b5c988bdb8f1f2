package fs

import (
	"dfs/toolkit/cli/cmd"

	"github.com/urfave/cli/v2"
)

func init() {
	register(func() *cli.Command {
		return &cli.Command{
			Name:      "rm",
			Usage:     "delete files",
			ArgsUsage: "<path>...",
			Action: func(ctx *cli.Context) error {
				if err := need(ctx, 1); err != nil {
					return err
				}
				cc, err := cmd.Context(ctx)
				if err != nil {
					return err
				}
				var terr error
				for _, p := range ctx.Args().Slice() {
					path := cc.Resolve(p)
					if err := cc.Client.DeleteFile(ctx.Context, path); err != nil {
						cc.Errorf("rm %v: %v\n", path, err)
						terr = cmd.AppendError(terr, err)
					}
				}
				return terr
			},
		}
	})

	register(func() *cli.Command {
		return &cli.Command{
			Name:      "cp",
			Usage:     "copy a file",
			ArgsUsage: "<src> <dst>",
			Action: func(ctx *cli.Context) error {
				if err := need(ctx, 2); err != nil {
					return err
				}
				cc, err := cmd.Context(ctx)
				if err != nil {
					return err
				}
				src, dst := cc.Resolve(ctx.Args().Get(0)), cc.Resolve(ctx.Args().Get(1))
				if _, err := cc.Client.CopyFile(ctx.Context, src, dst); err != nil {
					return err
				}
				cc.Okf("%v -> %v\n", src, dst)
				return nil
			},
		}
	})

	register(func() *cli.Command {
		return &cli.Command{
			Name:      "mv",
			Usage:     "move a file",
			ArgsUsage: "<src> <dst>",
			Action: func(ctx *cli.Context) error {
				if err := need(ctx, 2); err != nil {
					return err
				}
				cc, err := cmd.Context(ctx)
				if err != nil {
					return err
				}
				src, dst := cc.Resolve(ctx.Args().Get(0)), cc.Resolve(ctx.Args().Get(1))
				if err := cc.Client.MoveFile(ctx.Context, src, dst); err != nil {
					return err
				}
				cc.Okf("%v -> %v\n", src, dst)
				return nil
			},
		}
	})

	// dfsctl touch ${file} 创建空文件
	register(func() *cli.Command {
		return &cli.Command{
			Name:      "touch",
			Usage:     "create empty files",
			ArgsUsage: "<path>...",
			Action: func(ctx *cli.Context) error {
				if err := need(ctx, 1); err != nil {
					return err
				}
				cc, err := cmd.Context(ctx)
				if err != nil {
					return err
				}
				var terr error
				for _, p := range ctx.Args().Slice() {
					if _, err := cc.Client.WriteData(ctx.Context, cc.Resolve(p), nil); err != nil {
						terr = cmd.AppendError(terr, err)
					}
				}
				return terr
			},
		}
	})
}
