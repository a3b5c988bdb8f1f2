package client

import (
	"bytes"
	"context"
	"dfs/internal/types"
	"errors"
	"io"
	"sync"
)

type FileMode uint8

const (
	O_RDONLY FileMode = iota
	O_CREATE
	O_APPEND
)

var errFileMode = errors.New("operation not allowed by file mode")

// File is an io.Reader or io.Writer over one remote file. Files opened for
// writing buffer everything and commit on Close.
type File struct {
	sync.Mutex
	c    *Client
	ctx  context.Context
	p    types.Path
	mode FileMode

	r      *bytes.Reader
	w      bytes.Buffer
	closed bool
}

// OpenFile opens path. O_RDONLY reads the whole file up front, O_CREATE
// and O_APPEND commit through WriteData and AppendData on Close.
func (c *Client) OpenFile(ctx context.Context, path types.Path, mode FileMode) (*File, error) {
	f := &File{c: c, ctx: ctx, p: path, mode: mode}
	switch mode {
	case O_RDONLY:
		data, err := c.ReadData(ctx, path)
		if err != nil {
			return nil, err
		}
		f.r = bytes.NewReader(data)
	case O_APPEND:
		if !c.FileExists(ctx, path) {
			return nil, types.ErrNotFound
		}
	case O_CREATE:
	default:
		return nil, types.ErrInvalidArgument
	}
	return f, nil
}

func (f *File) Read(p []byte) (int, error) {
	f.Lock()
	defer f.Unlock()
	if f.r == nil {
		return 0, errFileMode
	}
	return f.r.Read(p)
}

func (f *File) Write(p []byte) (int, error) {
	f.Lock()
	defer f.Unlock()
	if f.mode == O_RDONLY || f.closed {
		return 0, errFileMode
	}
	return f.w.Write(p)
}

func (f *File) Seek(offset int64, whence int) (int64, error) {
	f.Lock()
	defer f.Unlock()
	if f.r == nil {
		return 0, errFileMode
	}
	return f.r.Seek(offset, whence)
}

func (f *File) Close() error {
	f.Lock()
	defer f.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	var err error
	switch f.mode {
	case O_CREATE:
		_, err = f.c.WriteData(f.ctx, f.p, f.w.Bytes())
	case O_APPEND:
		_, err = f.c.AppendData(f.ctx, f.p, f.w.Bytes())
	}
	return err
}

var (
	_ io.ReadSeekCloser = (*File)(nil)
	_ io.WriteCloser    = (*File)(nil)
)
