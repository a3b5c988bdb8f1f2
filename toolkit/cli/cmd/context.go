package cmd

import (
	"dfs/internal/client"
	"dfs/internal/common"
	"dfs/internal/types"
	"fmt"
	"io"
	"os"
	"path"
	"sync"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
)

// CliContext is the session shared by every command of one dfsctl run, or
// of a whole interactive shell.
type CliContext struct {
	Master types.Addr
	Client *client.Client
	Pwd    types.Path
	StdOut io.Writer
	StdIn  io.Reader
}

var (
	mu      sync.Mutex
	current *CliContext
)

var MasterFlag = &cli.StringFlag{
	Name:    "master",
	Usage:   "coordinator address",
	Aliases: []string{"m"},
	EnvVars: []string{"DFS_MASTER"},
	Value:   "127.0.0.1:3000",
}

// Use installs an already connected client as the session for addr.
func Use(addr types.Addr, c *client.Client) *CliContext {
	mu.Lock()
	defer mu.Unlock()
	current = &CliContext{Master: addr, Client: c, Pwd: "/"}
	return current
}

// Context returns the session for the master named on the command line,
// connecting on first use.
func Context(ctx *cli.Context) (*CliContext, error) {
	addr := types.Addr(ctx.String(MasterFlag.Name))
	mu.Lock()
	defer mu.Unlock()
	if current == nil || current.Master != addr {
		c := client.NewClient(addr)
		if err := c.Connect(ctx.Context); err != nil {
			return nil, err
		}
		pwd := types.Path("/")
		if current != nil {
			current.Client.Disconnect()
			pwd = current.Pwd
		}
		current = &CliContext{Master: addr, Client: c, Pwd: pwd}
	}
	current.StdOut = ctx.App.Writer
	if current.StdOut == nil {
		current.StdOut = os.Stdout
	}
	current.StdIn = ctx.App.Reader
	if current.StdIn == nil {
		current.StdIn = os.Stdin
	}
	return current, nil
}

// Current is the open session, or nil.
func Current() *CliContext {
	mu.Lock()
	defer mu.Unlock()
	return current
}

// Close disconnects the session, if any.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if current != nil {
		current.Client.Disconnect()
		current = nil
	}
}

// Resolve turns p into an absolute path under the working directory.
func (ctx *CliContext) Resolve(p string) types.Path {
	if p == "" {
		return ctx.Pwd
	}
	if p[0] != '/' {
		p = path.Join(string(ctx.Pwd), p)
	}
	return common.NormalizePath(types.Path(p))
}

func (ctx *CliContext) Printf(format string, args ...interface{}) {
	fmt.Fprintf(ctx.StdOut, format, args...)
}

func (ctx *CliContext) Okf(format string, args ...interface{}) {
	color.New(color.FgGreen).Fprintf(ctx.StdOut, format, args...)
}

func (ctx *CliContext) Errorf(format string, args ...interface{}) {
	color.New(color.FgRed).Fprintf(ctx.StdOut, format, args...)
}

func AppendError(err error, err2 error) error {
	if err == nil {
		return err2
	}
	return fmt.Errorf("%w; %w", err, err2)
}
