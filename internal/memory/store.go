// Package memory holds the sentinel's persisted state: the handled-transaction
// ledger, the mention cursor, the last observed price and the audit log of posts.
//
// The document is a single JSON file. Every mutation goes through Store.Update,
// which rewrites the whole file through a temp file and a rename.
package memory

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ErrCorrupt is returned when the memory document exists but cannot be decoded.
var ErrCorrupt = errors.New("memory document is corrupt")

// Store is a mutex-guarded handle on the memory document.
type Store struct {
	mu   sync.Mutex
	path string
	rec  Record
}

// Open loads the document at path, or starts from zeroed defaults if it does not exist.
func Open(path string) (*Store, error) {
	s := &Store{path: path}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		log.Infof("🧠 No memory at %s, starting fresh", path)
		return s, nil
	case err != nil:
		return nil, errors.Wrapf(err, "could not read memory %s", path)
	}

	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.rec); err != nil {
		return nil, errors.Wrapf(ErrCorrupt, "%s: %v", path, err)
	}

	log.Infof("🧠 Memory loaded: %d handled tx, %d alerts, mention cursor %d",
		len(s.rec.HandledTx), len(s.rec.Alerts), s.rec.Mentions.LastID)
	return s, nil
}

// Snapshot returns a copy of the current record.
func (s *Store) Snapshot() Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec.clone()
}

// Update applies fn to a copy of the record and persists it. The in-memory
// record only changes if fn succeeds and the write is durable.
func (s *Store) Update(fn func(*Record) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.rec.clone()
	if err := fn(&next); err != nil {
		return err
	}
	if err := s.write(next); err != nil {
		return err
	}
	s.rec = next
	return nil
}

func (s *Store) write(rec Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return errors.Wrap(err, "could not encode memory")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "could not create memory dir %s", dir)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "could not create temp memory file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "could not write memory")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "could not sync memory")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "could not close memory")
	}
	return errors.Wrap(os.Rename(tmpName, s.path), "could not replace memory")
}
