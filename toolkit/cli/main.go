package main

import (
	"bufio"
	"dfs/internal/common"
	"dfs/toolkit/cli/cmd"
	"dfs/toolkit/cli/cmd/fs"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
)

var ErrQuit = errors.New("quit")

func InitApp() *cli.App {
	app := cli.App{
		Name:  "dfsctl",
		Usage: "control tool for the distributed file system",
		Flags: []cli.Flag{
			cmd.MasterFlag,
			&cli.StringFlag{
				Name:  "log",
				Usage: "log level: trace, info, warn, fail",
				Value: "warn",
			},
		},
		Before: func(ctx *cli.Context) error {
			common.SetLogLevel(common.ParseLogLevel(ctx.String("log")))
			return nil
		},
		Commands: append(fs.Export(), &cli.Command{
			Name:  "shell",
			Usage: "interactive shell",
			Action: func(ctx *cli.Context) error {
				cc, err := cmd.Context(ctx)
				if err != nil {
					return err
				}
				fmt.Println("Welcome To Golang Distributed File System!")
				fmt.Printf("Init environment [master:%v] [cwd:%v]\n", cc.Master, cc.Pwd)
				loop(ctx.String(cmd.MasterFlag.Name))
				return nil
			},
		}),
	}
	return &app
}

// InitShellApp is the command set inside the shell. The master comes from
// the outer invocation.
func InitShellApp() *cli.App {
	app := cli.App{
		Name:  "dfs",
		Flags: []cli.Flag{cmd.MasterFlag},
		Commands: append(fs.Export(),
			&cli.Command{
				Name:  "cd",
				Usage: "change the working directory",
				Action: func(ctx *cli.Context) error {
					cc, err := cmd.Context(ctx)
					if err != nil {
						return err
					}
					cc.Pwd = cc.Resolve(ctx.Args().First())
					return nil
				},
			},
			&cli.Command{
				Name: "pwd",
				Action: func(ctx *cli.Context) error {
					cc, err := cmd.Context(ctx)
					if err != nil {
						return err
					}
					cc.Printf("%v\n", cc.Pwd)
					return nil
				},
			},
			&cli.Command{
				Name:    "exit",
				Aliases: []string{"quit"},
				Action: func(ctx *cli.Context) error {
					return ErrQuit
				},
			},
		),
	}
	return &app
}

func enterCommand(r *bufio.Reader, master string, pwd string) ([]string, error) {
	// dfs://[@/]> ls -l
	fmt.Printf("%s[@%s]%s ", color.BlueString("dfs://"), color.RedString(pwd), color.GreenString(">"))

	line, err := r.ReadString('\n')
	line = strings.TrimRight(line, "\r\n")
	if err != nil && line == "" {
		return nil, err
	}
	strs := []string{"dfs", "--master", master}
	strs = append(strs, strings.Fields(line)...)
	return strs, nil
}

func loop(master string) {
	defer func() {
		if err := recover(); err != nil {
			log.Println(err)
		}
	}()
	app := InitShellApp()
	r := bufio.NewReader(os.Stdin)
	pwd := "/"
	for {
		tokens, err := enterCommand(r, master, pwd)
		if err != nil {
			break
		}
		if len(tokens) == 3 {
			continue
		}
		err = app.Run(tokens)
		if err != nil {
			if errors.Is(err, ErrQuit) {
				break
			}
			color.Red("%v", err)
		}
		// the shell shares one session, so cd sticks between lines
		if cc := cmd.Current(); cc != nil {
			pwd = string(cc.Pwd)
		}
	}
}

func main() {
	err := InitApp().Run(os.Args)
	cmd.Close()
	if err != nil {
		color.Red("%v", err)
		os.Exit(1)
	}
}
