package main

import (
	"dfs"
	"dfs/config"
	"dfs/internal/common"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
)

func waitSignal() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	common.LInfo("receive exit signal")
}

func main() {
	app := &cli.App{
		Name:  "dfs",
		Usage: "run a coordinator or a storage node",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "r",
				Usage:    "role: m <coordinator> or s <storage node>",
				Required: true,
			},
			&cli.Int64Flag{
				Name:  "u",
				Usage: "storage node uuid, DFS_UUID when unset",
			},
			&cli.StringFlag{
				Name:  "c",
				Usage: "directory holding config.xml",
			},
		},
		Action: func(ctx *cli.Context) error {
			if dir := ctx.String("c"); dir != "" {
				config.SetPath(dir)
			}
			common.LInfo("server start with role %v", ctx.String("r"))
			switch ctx.String("r") {
			case "m":
				m := dfs.MustNewMaster()
				waitSignal()
				m.Stop()
			case "s":
				n := dfs.MustNewStorageNode(ctx.Int64("u"))
				waitSignal()
				n.Stop()
			default:
				return cli.Exit("unknown role "+ctx.String("r"), 2)
			}
			return nil
		},
	}
	if err := app.Run(os.Args); err != nil {
		common.LFail("%v", err)
		os.Exit(1)
	}
}
