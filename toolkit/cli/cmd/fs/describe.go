package fs

import (
	"dfs/config"
	"dfs/internal/types"
	"dfs/toolkit/cli/cmd"
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"
)

func init() {
	// dfsctl stat ${file}
	register(func() *cli.Command {
		return &cli.Command{
			Name:      "stat",
			Usage:     "describe a file and where its chunks live",
			ArgsUsage: "<path>",
			Action: func(ctx *cli.Context) error {
				if err := need(ctx, 1); err != nil {
					return err
				}
				cc, err := cmd.Context(ctx)
				if err != nil {
					return err
				}
				md, err := cc.Client.GetFileInfo(ctx.Context, cc.Resolve(ctx.Args().Get(0)))
				if err != nil {
					return err
				}
				describe(cc.StdOut, md)
				return nil
			},
		}
	})
}

func describe(w io.Writer, md types.FileMetadata) {
	fmt.Fprintf(w, "Path:        %v\n", md.Path)
	fmt.Fprintf(w, "FileID:      %v\n", md.FileID)
	fmt.Fprintf(w, "Size:        %v (%d bytes)\n", config.HumanSize(md.TotalSize), md.TotalSize)
	fmt.Fprintf(w, "ChunkSize:   %v\n", config.HumanSize(md.ChunkSize))
	fmt.Fprintf(w, "Replication: %d\n", md.ReplicationFactor)
	fmt.Fprintf(w, "Created:     %v\n", md.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Modified:    %v\n", md.ModifiedAt.Format("2006-01-02 15:04:05"))
	if n := md.UnderReplicated(); n > 0 {
		fmt.Fprintf(w, "Warning:     %d chunks under-replicated\n", n)
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Index", "Chunk", "Size", "Checksum", "Replicas"})
	for _, ck := range md.Chunks {
		table.Append([]string{
			fmt.Sprint(ck.ChunkIndex),
			ck.ChunkID,
			fmt.Sprint(ck.Size),
			ck.Checksum,
			strings.Join(ck.ReplicaNodes, ","),
		})
	}
	table.Render()
}
