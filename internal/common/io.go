package common

import (
	"crypto/md5"
	"encoding/hex"
	"hash"
	"io"
)

type StringSumer interface {
	GetSum() string
}

type IoStringSumer interface {
	io.Writer
	StringSumer
}

// Md5Sumer passes writes through to w while hashing them.
type Md5Sumer struct {
	h hash.Hash
	w io.Writer
}

func NewMd5Sumer(w io.Writer) *Md5Sumer {
	if w == nil {
		w = io.Discard
	}
	return &Md5Sumer{
		w: w,
		h: md5.New(),
	}
}

// GetSum is the hex md5 of everything written so far.
func (m5 *Md5Sumer) GetSum() string {
	return hex.EncodeToString(m5.h.Sum(nil))
}

func (m5 *Md5Sumer) Write(p []byte) (n int, err error) {
	n, err = m5.w.Write(p)
	m5.h.Write(p[:n])
	return n, err
}
