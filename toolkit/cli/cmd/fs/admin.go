package fs

import (
	"dfs/config"
	"dfs/internal/types"
	"dfs/toolkit/cli/cmd"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"
)

func init() {
	register(func() *cli.Command {
		return &cli.Command{
			Name:  "nodes",
			Usage: "list storage nodes",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "active", Aliases: []string{"a"}, Usage: "only live nodes"},
			},
			Action: func(ctx *cli.Context) error {
				cc, err := cmd.Context(ctx)
				if err != nil {
					return err
				}
				nodes, err := cc.Client.Nodes(ctx.Context, ctx.Bool("active"))
				if err != nil {
					return err
				}
				renderNodes(cc.StdOut, nodes)
				return nil
			},
		}
	})

	register(func() *cli.Command {
		return &cli.Command{
			Name:  "stats",
			Usage: "show cluster totals",
			Action: func(ctx *cli.Context) error {
				cc, err := cmd.Context(ctx)
				if err != nil {
					return err
				}
				st, err := cc.Client.Stats(ctx.Context)
				if err != nil {
					return err
				}
				table := tablewriter.NewWriter(cc.StdOut)
				table.SetHeader([]string{"Files", "Bytes", "Nodes", "Active"})
				table.Append([]string{
					fmt.Sprint(st.TotalFiles),
					config.HumanSize(st.TotalSize),
					fmt.Sprint(st.TotalNodes),
					fmt.Sprint(st.ActiveNodes),
				})
				table.Render()
				return nil
			},
		}
	})

	register(func() *cli.Command {
		return &cli.Command{
			Name:  "gc",
			Usage: "delete chunks no file references",
			Action: func(ctx *cli.Context) error {
				cc, err := cmd.Context(ctx)
				if err != nil {
					return err
				}
				n, err := cc.Client.CollectGarbage(ctx.Context)
				if err != nil {
					return err
				}
				cc.Okf("%d chunks reclaimed\n", n)
				return nil
			},
		}
	})
}

func renderNodes(w io.Writer, nodes []types.StorageNodeInfo) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Node", "Endpoint", "Capacity", "Used", "Available", "State", "Last heartbeat"})
	for _, n := range nodes {
		state := color.GreenString("alive")
		if !n.IsAlive {
			state = color.RedString("dead")
		}
		table.Append([]string{
			n.NodeID,
			string(n.Endpoint()),
			config.HumanSize(n.Capacity),
			config.HumanSize(n.UsedSpace),
			config.HumanSize(n.AvailableSpace),
			state,
			n.LastHeartbeat.Format(time.TimeOnly),
		})
	}
	table.Render()
}
