package meta

import (
	"bytes"
	"context"
	"dfs/internal/common"
	"dfs/internal/types"
	"encoding/gob"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

const maxTxRetry = 8

// Redis keeps each entry under "<prefix>file:<path>" and the set of live
// paths under "<prefix>paths". Conditional writes use WATCH/MULTI.
type Redis struct {
	rdb    *redis.Client
	prefix string
}

func NewRedis(addr, prefix string) *Redis {
	if prefix == "" {
		prefix = "dfs:"
	}
	return &Redis{
		rdb:    redis.NewClient(&redis.Options{Addr: addr}),
		prefix: prefix,
	}
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *Redis) fileKey(p types.Path) string {
	return r.prefix + "file:" + string(p)
}

func (r *Redis) pathsKey() string {
	return r.prefix + "paths"
}

func encode(md types.FileMetadata) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := gob.NewEncoder(buf).Encode(md); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(b []byte) (types.FileMetadata, error) {
	var md types.FileMetadata
	err := gob.NewDecoder(bytes.NewReader(b)).Decode(&md)
	return md, err
}

// watch runs fn under WATCH on key, retrying when another client raced us.
func (r *Redis) watch(ctx context.Context, key string, fn func(*redis.Tx) error) error {
	for i := 0; i < maxTxRetry; i++ {
		err := r.rdb.Watch(ctx, fn, key)
		if errors.Is(err, redis.TxFailedErr) {
			common.LTrace("redis tx on %v raced, retry %v", key, i)
			continue
		}
		return err
	}
	return fmt.Errorf("%w: %v", types.ErrConflict, key)
}

func (r *Redis) getTx(ctx context.Context, tx *redis.Tx, p types.Path) (types.FileMetadata, error) {
	b, err := tx.Get(ctx, r.fileKey(p)).Bytes()
	if errors.Is(err, redis.Nil) {
		return types.FileMetadata{}, fmt.Errorf("%w: %v", types.ErrNotFound, p)
	}
	if err != nil {
		return types.FileMetadata{}, err
	}
	return decode(b)
}

func (r *Redis) write(ctx context.Context, tx *redis.Tx, md types.FileMetadata) error {
	b, err := encode(md)
	if err != nil {
		return err
	}
	_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.fileKey(md.Path), b, 0)
		pipe.SAdd(ctx, r.pathsKey(), string(md.Path))
		return nil
	})
	return err
}

func (r *Redis) Create(ctx context.Context, md types.FileMetadata) error {
	key := r.fileKey(md.Path)
	return r.watch(ctx, key, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: %v", types.ErrAlreadyExists, md.Path)
		}
		return r.write(ctx, tx, md)
	})
}

func (r *Redis) Put(ctx context.Context, md types.FileMetadata) error {
	b, err := encode(md)
	if err != nil {
		return err
	}
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.fileKey(md.Path), b, 0)
		pipe.SAdd(ctx, r.pathsKey(), string(md.Path))
		return nil
	})
	return err
}

func (r *Redis) Swap(ctx context.Context, fileID string, md types.FileMetadata) error {
	return r.watch(ctx, r.fileKey(md.Path), func(tx *redis.Tx) error {
		cur, err := r.getTx(ctx, tx, md.Path)
		if err != nil {
			return err
		}
		if cur.FileID != fileID {
			return fmt.Errorf("%w: %v changed from %v to %v", types.ErrConflict, md.Path, fileID, cur.FileID)
		}
		return r.write(ctx, tx, md)
	})
}

func (r *Redis) Get(ctx context.Context, path types.Path) (types.FileMetadata, error) {
	b, err := r.rdb.Get(ctx, r.fileKey(path)).Bytes()
	if errors.Is(err, redis.Nil) {
		return types.FileMetadata{}, fmt.Errorf("%w: %v", types.ErrNotFound, path)
	}
	if err != nil {
		return types.FileMetadata{}, err
	}
	return decode(b)
}

func (r *Redis) Delete(ctx context.Context, path types.Path) (types.FileMetadata, error) {
	var md types.FileMetadata
	key := r.fileKey(path)
	err := r.watch(ctx, key, func(tx *redis.Tx) error {
		cur, err := r.getTx(ctx, tx, path)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.SRem(ctx, r.pathsKey(), string(path))
			return nil
		})
		if err == nil {
			md = cur
		}
		return err
	})
	return md, err
}

func (r *Redis) List(ctx context.Context, prefix types.Path) ([]types.Path, error) {
	members, err := r.rdb.SMembers(ctx, r.pathsKey()).Result()
	if err != nil {
		return nil, err
	}
	paths := []types.Path{}
	for _, m := range members {
		if common.HasPrefix(types.Path(m), prefix) {
			paths = append(paths, types.Path(m))
		}
	}
	sort.Slice(paths, func(i, j int) bool { return paths[i] < paths[j] })
	return paths, nil
}

func (r *Redis) All(ctx context.Context) ([]types.FileMetadata, error) {
	paths, err := r.List(ctx, "")
	if err != nil || len(paths) == 0 {
		return []types.FileMetadata{}, err
	}
	keys := make([]string, len(paths))
	for i, p := range paths {
		keys[i] = r.fileKey(p)
	}
	vals, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	all := make([]types.FileMetadata, 0, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			// removed between SMEMBERS and MGET
			continue
		}
		md, err := decode([]byte(s))
		if err != nil {
			return nil, fmt.Errorf("decode %v: %w", paths[i], err)
		}
		all = append(all, md)
	}
	return all, nil
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
