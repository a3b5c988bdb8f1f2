package fs

import (
	"dfs/config"
	"dfs/internal/common"
	"dfs/internal/types"
	"dfs/toolkit/cli/cmd"
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"
)

func init() {
	// dfsctl ls [-l] [${dir}]
	register(func() *cli.Command {
		return &cli.Command{
			Name:      "ls",
			Usage:     "list files under a directory",
			ArgsUsage: "[dir]",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "long", Aliases: []string{"l"}, Usage: "show size, chunks and times"},
			},
			Action: func(ctx *cli.Context) error {
				cc, err := cmd.Context(ctx)
				if err != nil {
					return err
				}
				dir := cc.Resolve(ctx.Args().Get(0))
				if ctx.Bool("long") {
					return lsLong(cc, ctx, dir)
				}
				paths, err := listDir(cc, ctx, dir)
				if err != nil {
					return err
				}
				for _, p := range paths {
					cc.Printf("%v\n", p)
				}
				return nil
			},
		}
	})
}

// listDir lists the files below dir on segment boundaries, so /a does not
// list /ab.
func listDir(cc *cmd.CliContext, ctx *cli.Context, dir types.Path) ([]types.Path, error) {
	paths, err := cc.Client.ListDirectory(ctx.Context, dir)
	if err != nil {
		return nil, err
	}
	ans := paths[:0]
	for _, p := range paths {
		if common.UnderDir(p, dir) {
			ans = append(ans, p)
		}
	}
	return ans, nil
}

func lsLong(cc *cmd.CliContext, ctx *cli.Context, dir types.Path) error {
	paths, err := listDir(cc, ctx, dir)
	if err != nil {
		return err
	}
	rows := make([]types.FileMetadata, 0, len(paths))
	for _, p := range paths {
		md, err := cc.Client.GetFileInfo(ctx.Context, p)
		if err != nil {
			// deleted between list and stat
			continue
		}
		rows = append(rows, md)
	}
	renderFiles(cc.StdOut, dir, rows)
	return nil
}

func renderFiles(w io.Writer, dir types.Path, files []types.FileMetadata) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Name", "Size", "Chunks", "Replicas", "Modified"})
	table.SetBorder(false)
	var total int64
	for _, md := range files {
		name := strings.TrimPrefix(strings.TrimPrefix(string(md.Path), string(dir)), "/")
		table.Append([]string{
			name,
			config.HumanSize(md.TotalSize),
			fmt.Sprint(md.NumChunks),
			fmt.Sprint(md.ReplicationFactor),
			md.ModifiedAt.Format("2006-01-02 15:04:05"),
		})
		total += md.TotalSize
	}
	table.SetFooter([]string{fmt.Sprintf("%d files", len(files)), config.HumanSize(total), "", "", ""})
	table.Render()
}
