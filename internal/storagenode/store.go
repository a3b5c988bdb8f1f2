package storagenode

import (
	"dfs/internal/chunk"
	"dfs/internal/chunkrpc"
	"dfs/internal/common"
	"dfs/internal/types"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dgraph-io/badger"
)

var chunkPrefix = []byte("chunk/")

func chunkKey(id string) []byte {
	return append(append([]byte(nil), chunkPrefix...), id...)
}

// badgerLogger routes badger's internal logging into the shared logger.
type badgerLogger struct{}

func (badgerLogger) Errorf(f string, v ...interface{})   { common.LFail("badger: "+f, v...) }
func (badgerLogger) Warningf(f string, v ...interface{}) { common.LWarn("badger: "+f, v...) }
func (badgerLogger) Infof(f string, v ...interface{})    { common.LTrace("badger: "+f, v...) }
func (badgerLogger) Debugf(f string, v ...interface{})   { common.LTrace("badger: "+f, v...) }

// Store keeps chunk records in a badger database. Capacity bounds the sum of
// payload sizes; zero means unbounded.
type Store struct {
	mu       sync.Mutex
	db       *badger.DB
	capacity int64
	used     int64
	count    int64
}

func OpenStore(dir string, capacity int64) (*Store, error) {
	opts := badger.DefaultOptions(dir).
		WithLogger(badgerLogger{}).
		WithValueLogFileSize(2 * common.MaxChunkSize)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open chunk db %v: %w", dir, err)
	}
	s := &Store{db: db, capacity: capacity}
	if err := s.load(); err != nil {
		db.Close()
		return nil, err
	}
	common.LInfo("chunk db %v loaded, %v chunks, %v bytes", dir, s.count, s.used)
	return s, nil
}

// load recomputes usage from the records on disk.
func (s *Store) load() error {
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(chunkPrefix); it.ValidForPrefix(chunkPrefix); it.Next() {
			raw, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var rec chunkrpc.ChunkRecord
			if err := rec.UnmarshalWire(raw); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			s.used += int64(len(rec.Data))
			s.count++
		}
		return nil
	})
}

func (s *Store) get(txn *badger.Txn, id string) (chunkrpc.ChunkRecord, error) {
	var rec chunkrpc.ChunkRecord
	item, err := txn.Get(chunkKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return rec, fmt.Errorf("%w: chunk %v", types.ErrNotFound, id)
	}
	if err != nil {
		return rec, err
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return rec, err
	}
	return rec, rec.UnmarshalWire(raw)
}

// StoreChunk verifies data against checksum and writes it, replacing any
// previous copy of id.
func (s *Store) StoreChunk(id string, data []byte, checksum string) error {
	if id == "" {
		return fmt.Errorf("%w: empty chunk id", types.ErrInvalidArgument)
	}
	if err := chunk.Verify(data, checksum); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		delta   int64
		existed bool
	)
	err := s.db.Update(func(txn *badger.Txn) error {
		old, err := s.get(txn, id)
		existed = err == nil
		if !existed && !errors.Is(err, types.ErrNotFound) {
			return err
		}
		delta = int64(len(data)) - int64(len(old.Data))
		if s.capacity > 0 && s.used+delta > s.capacity {
			return fmt.Errorf("%w: %v bytes used of %v, chunk %v needs %v", types.ErrNoSpace, s.used, s.capacity, id, delta)
		}
		rec := chunkrpc.ChunkRecord{Checksum: checksum, Data: data}
		return txn.Set(chunkKey(id), rec.MarshalWire())
	})
	if err != nil {
		return err
	}
	s.used += delta
	if !existed {
		s.count++
	}
	return nil
}

func (s *Store) RetrieveChunk(id string) (data []byte, checksum string, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		rec, err := s.get(txn, id)
		data, checksum = rec.Data, rec.Checksum
		return err
	})
	return
}

// DeleteChunk reports whether id was held.
func (s *Store) DeleteChunk(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var size int64
	existed := false
	err := s.db.Update(func(txn *badger.Txn) error {
		old, err := s.get(txn, id)
		if errors.Is(err, types.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		existed, size = true, int64(len(old.Data))
		return txn.Delete(chunkKey(id))
	})
	if err != nil {
		return false, err
	}
	if existed {
		s.used -= size
		s.count--
	}
	return existed, nil
}

func (s *Store) HasChunk(id string) bool {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(chunkKey(id))
		return err
	})
	return err == nil
}

func (s *Store) ListChunks() ([]string, error) {
	ids := []string{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(chunkPrefix); it.ValidForPrefix(chunkPrefix); it.Next() {
			ids = append(ids, string(it.Item().Key()[len(chunkPrefix):]))
		}
		return nil
	})
	sort.Strings(ids)
	return ids, err
}

func (s *Store) UsedSpace() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used
}

func (s *Store) AvailableSpace() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capacity <= 0 {
		return -1
	}
	if s.used >= s.capacity {
		return 0
	}
	return s.capacity - s.used
}

func (s *Store) ChunkCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

func (s *Store) Capacity() int64 {
	return s.capacity
}

func (s *Store) Close() error {
	return s.db.Close()
}
