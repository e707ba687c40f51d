// Package recordstore persists DiffRecords on local disk so they survive
// restarts.
package recordstore

import (
	"encoding/json"
	"path/filepath"

	"github.com/syndtr/goleveldb/leveldb"
	"go.skia.org/rebaseline/gm/go/diff"
	"go.skia.org/rebaseline/go/fileutil"
	"go.skia.org/rebaseline/go/skerr"
)

// DirName is the directory under the storage root holding the database.
const DirName = "diffrecords"

// Store is a LevelDB backed map from difference locator to DiffRecord.
type Store struct {
	db *leveldb.DB
}

// Open opens, creating if needed, the Store under storageRoot.
func Open(storageRoot string) (*Store, error) {
	dir, err := fileutil.EnsureDirExists(filepath.Join(storageRoot, DirName))
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, skerr.Wrapf(err, "opening diff record db at %s", dir)
	}
	return &Store{db: db}, nil
}

// Get returns the record stored under diffLocator, or nil if there is none.
func (s *Store) Get(diffLocator string) (*diff.DiffRecord, error) {
	b, err := s.db.Get([]byte(diffLocator), nil)
	if err == leveldb.ErrNotFound {
		return nil, nil
	} else if err != nil {
		return nil, skerr.Wrapf(err, "reading record %s", diffLocator)
	}
	ret := &diff.DiffRecord{}
	if err := json.Unmarshal(b, ret); err != nil {
		return nil, skerr.Wrapf(err, "decoding record %s", diffLocator)
	}
	return ret, nil
}

// Put stores rec under diffLocator.
func (s *Store) Put(diffLocator string, rec *diff.DiffRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return skerr.Wrapf(err, "encoding record %s", diffLocator)
	}
	return skerr.Wrapf(s.db.Put([]byte(diffLocator), b, nil), "writing record %s", diffLocator)
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
