package state

import (
	"errors"
	"fmt"
	"reflect"
	"sort"

	"github.com/ethereum/go-ethereum/rlp"

	"stele/storage"
)

// ErrTxClosed is returned when a staged transaction is used after Commit or Discard.
var ErrTxClosed = errors.New("state: transaction already closed")

// KV is the record-level access shared by the Manager and staged transactions.
// Values are RLP encoded.
type KV interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

// Manager provides RLP-encoded record access on top of a storage.Database.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// Database exposes the underlying key-value store.
func (m *Manager) Database() storage.Database { return m.db }

var kvPrefix = []byte("kv/")

func kvKey(key []byte) []byte {
	buf := make([]byte, len(kvPrefix)+len(key))
	copy(buf, kvPrefix)
	copy(buf[len(kvPrefix):], key)
	return buf
}

// KVPut stores the RLP encoding of value under key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.db.Put(kvKey(key), encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.db.Get(kvKey(key))
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return decodeInto(data, out)
}

// KVDelete removes the record stored under key.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	return m.db.Delete(kvKey(key))
}

func decodeInto(data []byte, out interface{}) (bool, error) {
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if val := reflect.ValueOf(out); val.Kind() != reflect.Ptr || val.IsNil() {
		return false, fmt.Errorf("kv: destination must be a non-nil pointer")
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// Begin opens a staged transaction. Reads observe the transaction's own
// writes; nothing reaches the database until Commit.
func (m *Manager) Begin() *Tx {
	return &Tx{m: m, pending: make(map[string]*pendingWrite)}
}

type pendingWrite struct {
	value   []byte
	deleted bool
}

// Tx buffers writes in memory and flushes them as a single batch.
type Tx struct {
	m       *Manager
	pending map[string]*pendingWrite
	closed  bool
}

func (tx *Tx) KVGet(key []byte, out interface{}) (bool, error) {
	if tx.closed {
		return false, ErrTxClosed
	}
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	if staged, ok := tx.pending[string(key)]; ok {
		if staged.deleted {
			return false, nil
		}
		return decodeInto(staged.value, out)
	}
	return tx.m.KVGet(key, out)
}

func (tx *Tx) KVPut(key []byte, value interface{}) error {
	if tx.closed {
		return ErrTxClosed
	}
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	tx.pending[string(key)] = &pendingWrite{value: encoded}
	return nil
}

func (tx *Tx) KVDelete(key []byte) error {
	if tx.closed {
		return ErrTxClosed
	}
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	tx.pending[string(key)] = &pendingWrite{deleted: true}
	return nil
}

// Pending reports the number of staged keys.
func (tx *Tx) Pending() int { return len(tx.pending) }

// Commit writes every staged record in one batch. Keys are applied in
// lexicographic order so the batch content is deterministic.
func (tx *Tx) Commit() error {
	if tx.closed {
		return ErrTxClosed
	}
	tx.closed = true
	if len(tx.pending) == 0 {
		return nil
	}
	keys := make([]string, 0, len(tx.pending))
	for k := range tx.pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	batch := tx.m.db.NewBatch()
	for _, k := range keys {
		staged := tx.pending[k]
		if staged.deleted {
			batch.Delete(kvKey([]byte(k)))
			continue
		}
		batch.Put(kvKey([]byte(k)), staged.value)
	}
	tx.pending = nil
	return batch.Write()
}

// Discard drops every staged write.
func (tx *Tx) Discard() {
	tx.closed = true
	tx.pending = nil
}
