package common

import (
	"dfs/internal/types"
	"encoding/hex"
	"os"
	"strings"

	uuid "github.com/satori/go.uuid"
)

// NormalizePath ensures a single leading slash and strips a trailing one
// unless the path is the root. No other segments are rewritten.
func NormalizePath(p types.Path) types.Path {
	s := string(p)
	if len(s) == 0 || s[0] != '/' {
		s = "/" + s
	}
	if len(s) > 1 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return types.Path(s)
}

func IsAbsolute(p types.Path) bool {
	return len(p) > 0 && p[0] == '/'
}

func ParentDir(p types.Path) types.Path {
	idx := strings.LastIndex(string(p), "/")
	if idx <= 0 {
		return "/"
	}
	return p[:idx]
}

func GetFileNameWithExt(p types.Path) string {
	idx := strings.LastIndex(string(p), "/")
	return string(p)[idx+1:]
}

// HasPrefix is the raw string prefix match used by listing.
func HasPrefix(p, prefix types.Path) bool {
	return strings.HasPrefix(string(p), string(prefix))
}

// UnderDir reports whether p is dir itself or lies below it on a segment boundary.
func UnderDir(p, dir types.Path) bool {
	if dir == "/" {
		return true
	}
	if p == dir {
		return true
	}
	return strings.HasPrefix(string(p), string(dir)+"/")
}

func newId(prefix string) string {
	u := uuid.NewV4()
	return prefix + hex.EncodeToString(u.Bytes())
}

func NewFileId() string {
	return newId("file_")
}

func NewChunkId() string {
	return newId("chunk_")
}

func IsExist(f string) bool {
	_, err := os.Stat(f)
	return err == nil || os.IsExist(err)
}

func SplitEndPoint(endpoint string) (string, string) {
	idx := strings.LastIndex(endpoint, ":")
	if idx < 0 {
		return endpoint, ""
	}
	return endpoint[:idx], endpoint[idx+1:]
}

// MustOpenLogFile redirects the shared logger into file, creating it when missing.
// An empty name keeps logging on stderr.
func MustOpenLogFile(file string) {
	if file == "" {
		return
	}
	f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		panic(err)
	}
	SetLogger(f)
}
