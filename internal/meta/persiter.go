package meta

import (
	"bytes"
	"dfs/internal/common"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var ErrSnapCorrupt = errors.New("snapshot checksum mismatch")

type Version struct {
	Version      int64
	LastModified time.Time
	Md5          string
}

// Persister keeps the latest namespace snapshot in a single file as a gob
// encoded Version header followed by the snapshot bytes.
type Persister struct {
	mu          sync.Mutex
	file        string
	snapVersion Version
}

func NewPersister(file string) *Persister {
	return &Persister{file: file}
}

func getMd5(data []byte) string {
	var s common.IoStringSumer = common.NewMd5Sumer(nil)
	s.Write(data)
	return s.GetSum()
}

// ReadSnapshot returns nil without error when no snapshot was written yet.
func (ps *Persister) ReadSnapshot() ([]byte, error) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	raw, err := os.ReadFile(ps.file)
	if errors.Is(err, os.ErrNotExist) || len(raw) <= 1 {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var (
		ver  Version
		snap []byte
	)
	d := gob.NewDecoder(bytes.NewReader(raw))
	if err := d.Decode(&ver); err != nil {
		return nil, fmt.Errorf("read snapshot header: %w", err)
	}
	if err := d.Decode(&snap); err != nil {
		return nil, fmt.Errorf("read snapshot body: %w", err)
	}
	if getMd5(snap) != ver.Md5 {
		return nil, ErrSnapCorrupt
	}
	ps.snapVersion = ver
	return snap, nil
}

// SaveSnapshot writes snapshot through a temp file and renames it into place.
func (ps *Persister) SaveSnapshot(snapshot []byte) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ver := Version{
		Version:      ps.snapVersion.Version + 1,
		LastModified: time.Now(),
		Md5:          getMd5(snapshot),
	}
	buf := new(bytes.Buffer)
	e := gob.NewEncoder(buf)
	if err := e.Encode(ver); err != nil {
		return err
	}
	if err := e.Encode(snapshot); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(ps.file), ".snap-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), ps.file); err != nil {
		return err
	}
	ps.snapVersion = ver
	return nil
}

func (ps *Persister) GetSnapshotVersion() Version {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.snapVersion
}
