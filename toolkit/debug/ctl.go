package main

import (
	"dfs/config"
	"dfs/internal/types"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "dfsdebug",
		Usage: "probe the cluster described by config.xml",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "check", Usage: "m show coordinator state; s show storage node state"},
			&cli.StringFlag{Name: "c", Usage: "directory holding config.xml"},
		},
		Action: func(ctx *cli.Context) error {
			if dir := ctx.String("c"); dir != "" {
				config.SetPath(dir)
			}
			cc := config.GetClusterConfig()
			switch ctx.String("check") {
			case "m":
				st, err := ProbeCoordinator(ctx.Context, cc.Cluster.Coordinator.Addr())
				if err != nil {
					return err
				}
				PrintCoordinator(os.Stdout, cc.Cluster.Coordinator.Addr(), st)
			case "s":
				PrintNodes(os.Stdout, ProbeNodes(ctx.Context, cc.Cluster.Storage.Nodes))
			default:
				return cli.ShowAppHelp(ctx)
			}
			return nil
		},
	}
	if err := app.Run(os.Args); err != nil {
		color.Red("%v", err)
		os.Exit(1)
	}
}

func PrintCoordinator(w io.Writer, addr types.Addr, st *CoordinatorState) {
	fmt.Fprintf(w, "coordinator %v: %d files, %v, %d/%d nodes alive\n",
		addr, st.Stats.TotalFiles, config.HumanSize(st.Stats.TotalSize), st.Stats.ActiveNodes, st.Stats.TotalNodes)
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Node", "Endpoint", "Used", "Available", "Alive"})
	for _, n := range st.Nodes {
		table.Append([]string{
			n.NodeID,
			string(n.Endpoint()),
			config.HumanSize(n.UsedSpace),
			config.HumanSize(n.AvailableSpace),
			fmt.Sprint(n.IsAlive),
		})
	}
	table.Render()
}

func PrintNodes(w io.Writer, states []NodeState) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Node", "Endpoint", "Chunks", "Used", "Capacity", "Latency", "Error"})
	for _, s := range states {
		row := []string{s.Node.ID(), string(s.Node.Addr()), "-", "-", "-", "-", ""}
		if s.Err != nil {
			row[6] = s.Err.Error()
		} else {
			row[1] = fmt.Sprintf("%v (%v)", s.Node.Addr(), s.Stat.NodeID)
			row[2] = fmt.Sprint(s.Stat.Chunks)
			row[3] = config.HumanSize(s.Stat.Used)
			row[4] = config.HumanSize(s.Stat.Capacity)
			row[5] = s.Taken.String()
		}
		table.Append(row)
	}
	table.Render()
}
