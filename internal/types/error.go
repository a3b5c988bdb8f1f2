package types

import (
	"encoding/gob"
	"errors"
)

const (
	// 系统错误码
	ErrInternalCode   = 500
	ErrTimeoutCode    = 501
	ErrDialHupCode    = 505
	ErrNotConnCode    = 506
	ErrNoSpaceCode    = 507
	ErrChecksumCode   = 508
	ErrConflictCode   = 509
	ErrInvalidArgCode = 408

	// 逻辑错误
	ErrNotFoundCode         = 404
	ErrAlreadyExistsCode    = 409
	ErrChunkUnavailableCode = 410
	ErrPartialReplicaCode   = 206

	// 客户端
	ErrOutOfReplicasCode = 301
	ErrRetryOverSeedCode = 302
)

// sys error
var (
	ErrTimeOut       = errors.New("i/o timeout")
	ErrDialHup       = errors.New("not found endpoint")
	ErrConflict      = errors.New("concurrent modification")
	ErrNoSpace       = errors.New("not enough space on node")
	ErrRetryOverSeed = errors.New("too many retry")
	ErrNotConnected  = errors.New("client not connected")
)

// logic error
var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrChunkUnavailable   = errors.New("chunk unavailable")
	ErrPartialReplication = errors.New("partial replication")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrChecksumMismatch   = errors.New("checksum mismatch")
)

// client
var (
	ErrOutOfReplicas = errors.New("less than one replica")
)

var codes = []struct {
	err  error
	code int
}{
	{ErrNotFound, ErrNotFoundCode},
	{ErrAlreadyExists, ErrAlreadyExistsCode},
	{ErrChunkUnavailable, ErrChunkUnavailableCode},
	{ErrPartialReplication, ErrPartialReplicaCode},
	{ErrInvalidArgument, ErrInvalidArgCode},
	{ErrChecksumMismatch, ErrChecksumCode},
	{ErrTimeOut, ErrTimeoutCode},
	{ErrDialHup, ErrDialHupCode},
	{ErrConflict, ErrConflictCode},
	{ErrNoSpace, ErrNoSpaceCode},
	{ErrNotConnected, ErrNotConnCode},
	{ErrOutOfReplicas, ErrOutOfReplicasCode},
	{ErrRetryOverSeed, ErrRetryOverSeedCode},
}

func init() {
	gob.Register(Error{})
}

// CodeOf maps err onto the wire code of the first sentinel it wraps.
func CodeOf(err error) int {
	if err == nil {
		return 0
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return ErrInternalCode
}

// Sentinel returns the sentinel error registered for code, or nil.
func Sentinel(code int) error {
	for _, c := range codes {
		if c.code == code {
			return c.err
		}
	}
	return nil
}

// Error carries an error message across gob. Unwrap restores the sentinel
// when the code is known so errors.Is keeps working on the far side.
type Error struct {
	Code int
	Err  string
}

func NewError(err error) Error {
	return Error{
		Code: CodeOf(err),
		Err:  err.Error(),
	}
}

func (e Error) Error() string {
	return e.Err
}

func (e Error) Unwrap() error {
	return Sentinel(e.Code)
}
