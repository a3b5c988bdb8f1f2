package fs

import (
	"dfs/config"
	"dfs/internal/client"
	"dfs/internal/types"
	"dfs/toolkit/cli/cmd"
	"io"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"
)

func init() {
	// dfsctl put ${local} [${remote}]
	// dfsctl put - ${remote} 从标准输入读取
	register(func() *cli.Command {
		return &cli.Command{
			Name:      "put",
			Usage:     "upload a local file",
			ArgsUsage: "<local|-> [remote]",
			Action: func(ctx *cli.Context) error {
				if err := need(ctx, 1); err != nil {
					return err
				}
				cc, err := cmd.Context(ctx)
				if err != nil {
					return err
				}
				local := ctx.Args().Get(0)
				remote := ctx.Args().Get(1)
				if remote == "" {
					if local == "-" {
						return ErrNotEnoughArgs
					}
					remote = filepath.Base(local)
				}
				path := cc.Resolve(remote)
				if local == "-" {
					n, err := write(cc, ctx, path, cc.StdIn, client.O_CREATE)
					if err != nil {
						return err
					}
					cc.Okf("%v: %v written\n", path, config.HumanSize(n))
					return nil
				}
				rep, err := cc.Client.UploadFile(ctx.Context, local, path)
				if err != nil {
					return err
				}
				cc.Okf("%v: %v in %d chunks\n", path, config.HumanSize(rep.Size), rep.NumChunks)
				if rep.UnderReplicated > 0 {
					cc.Errorf("warning: %d chunks under-replicated\n", rep.UnderReplicated)
				}
				return nil
			},
		}
	})

	// dfsctl get ${remote} [${local}]
	register(func() *cli.Command {
		return &cli.Command{
			Name:      "get",
			Usage:     "download a file, to stdout when no local path is given",
			ArgsUsage: "<remote> [local]",
			Action: func(ctx *cli.Context) error {
				if err := need(ctx, 1); err != nil {
					return err
				}
				cc, err := cmd.Context(ctx)
				if err != nil {
					return err
				}
				path := cc.Resolve(ctx.Args().Get(0))
				local := ctx.Args().Get(1)
				if local == "" || local == "-" {
					_, err := read(cc, ctx, path, cc.StdOut)
					return err
				}
				if err := cc.Client.DownloadFile(ctx.Context, path, local); err != nil {
					return err
				}
				cc.Okf("%v -> %v\n", path, local)
				return nil
			},
		}
	})

	register(func() *cli.Command {
		return &cli.Command{
			Name:      "cat",
			Usage:     "print files",
			ArgsUsage: "<remote>...",
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
					if _, err := read(cc, ctx, cc.Resolve(p), cc.StdOut); err != nil {
						terr = cmd.AppendError(terr, err)
					}
				}
				return terr
			},
		}
	})

	// dfsctl append ${remote} [${local}|-]
	register(func() *cli.Command {
		return &cli.Command{
			Name:      "append",
			Usage:     "append a local file or stdin to a remote file",
			ArgsUsage: "<remote> [local|-]",
			Action: func(ctx *cli.Context) error {
				if err := need(ctx, 1); err != nil {
					return err
				}
				cc, err := cmd.Context(ctx)
				if err != nil {
					return err
				}
				path := cc.Resolve(ctx.Args().Get(0))
				r := cc.StdIn
				if local := ctx.Args().Get(1); local != "" && local != "-" {
					f, err := os.Open(local)
					if err != nil {
						return err
					}
					defer f.Close()
					r = f
				}
				n, err := write(cc, ctx, path, r, client.O_APPEND)
				if err != nil {
					return err
				}
				cc.Okf("%v: %v appended\n", path, config.HumanSize(n))
				return nil
			},
		}
	})
}

// 向dfs写
func write(cc *cmd.CliContext, ctx *cli.Context, path types.Path, r io.Reader, mode client.FileMode) (int64, error) {
	file, err := cc.Client.OpenFile(ctx.Context, path, mode)
	if err != nil {
		return -1, err
	}
	// nothing is committed unless the whole input was read
	n, err := io.Copy(file, r)
	if err != nil {
		return n, err
	}
	return n, file.Close()
}

// 从dfs读
func read(cc *cmd.CliContext, ctx *cli.Context, path types.Path, w io.Writer) (int64, error) {
	file, err := cc.Client.OpenFile(ctx.Context, path, client.O_RDONLY)
	if err != nil {
		return -1, err
	}
	defer file.Close()
	return io.Copy(w, file)
}
