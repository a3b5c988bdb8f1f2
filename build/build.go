package main

import (
	"dfs/config"
	"dfs/internal/common"
	"io"
	"log"
	"os"
	"path/filepath"
	"text/template"
)

// run.sh starts the coordinator and every storage node of the cluster file.
const runScript = `#!/bin/sh
# generated from config.xml {{.Version}}
set -e
BIN=${BIN:-./dfs}
CONF=${CONF:-.}

$BIN -r m -c "$CONF" &
echo "coordinator {{.Cluster.Coordinator.Address}}:{{.Cluster.Coordinator.Port}} pid $!"
sleep 1
{{range .Cluster.Storage.Nodes}}
mkdir -p {{if .DataDir}}{{.DataDir}}{{else}}node{{.Uuid}}{{end}}
DFS_UUID={{.Uuid}} $BIN -r s -c "$CONF" &
echo "storage node {{.Uuid}} {{.Address}}:{{.Port}} pid $!"
{{end}}
wait
`

var tmpl = template.Must(template.New("run.sh").Parse(runScript))

func GenRunScript(w io.Writer, cfg *config.Configuration) error {
	return tmpl.Execute(w, cfg)
}

func main() {
	out := "../run.sh"
	if len(os.Args) > 1 {
		out = os.Args[1]
	}
	config.SetPath("..")
	cfg := config.GetClusterConfig()

	if common.IsExist(out) {
		os.Remove(out)
	}
	f, err := os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	if err := GenRunScript(f, cfg); err != nil {
		log.Fatal(err)
	}
	log.Println("wrote", filepath.Clean(out))
}
