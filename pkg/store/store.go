// Package store keeps fitted preprocessors in a bbolt database. Every Put
// under a name creates a new version.
package store

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/hed1ad/flowprep/pkg/preprocess"
)

// ErrNotFound is returned for unknown names and versions.
var ErrNotFound = errors.New("model not found")

var (
	modelsBucket  = []byte("models")
	entryKey      = []byte("entry")
	descriptorKey = []byte("descriptor")
)

// Entry describes one stored version.
type Entry struct {
	Name      string    `json:"name"`
	Version   uint64    `json:"version"`
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Fitted    bool      `json:"fitted"`
	Rows      int       `json:"rows"`
	Columns   int       `json:"columns"`
}

// Store is a versioned registry of descriptors.
type Store struct {
	db *bolt.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open store %s", path)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(modelsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create models bucket")
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func versionKey(v uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, v)
	return key
}

// Put stores d as the next version of name.
func (s *Store) Put(name string, d preprocess.Descriptor) (Entry, error) {
	if name == "" {
		return Entry{}, errors.New("model name is empty")
	}
	if err := d.Validate(); err != nil {
		return Entry{}, err
	}

	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	var buf bytes.Buffer
	if err := preprocess.WriteDescriptor(&buf, d); err != nil {
		return Entry{}, err
	}

	entry := Entry{
		Name:      name,
		ID:        d.ID,
		CreatedAt: time.Now().UTC(),
		Fitted:    d.Model != nil,
	}
	if d.Model != nil {
		entry.Rows = d.Model.Rows
		entry.Columns = len(d.Model.Columns)
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		models, err := tx.Bucket(modelsBucket).CreateBucketIfNotExists([]byte(name))
		if err != nil {
			return err
		}
		seq, err := models.NextSequence()
		if err != nil {
			return err
		}
		entry.Version = seq

		meta, err := json.Marshal(entry)
		if err != nil {
			return err
		}

		version, err := models.CreateBucket(versionKey(seq))
		if err != nil {
			return err
		}
		if err := version.Put(entryKey, meta); err != nil {
			return err
		}
		return version.Put(descriptorKey, buf.Bytes())
	})
	if err != nil {
		return Entry{}, errors.Wrapf(err, "store model %s", name)
	}

	return entry, nil
}

// Get returns a specific version of name.
func (s *Store) Get(name string, version uint64) (preprocess.Descriptor, Entry, error) {
	var (
		entry Entry
		raw   []byte
	)

	err := s.db.View(func(tx *bolt.Tx) error {
		models := tx.Bucket(modelsBucket).Bucket([]byte(name))
		if models == nil {
			return errors.Wrapf(ErrNotFound, "%s", name)
		}
		b := models.Bucket(versionKey(version))
		if b == nil {
			return errors.Wrapf(ErrNotFound, "%s version %d", name, version)
		}

		if err := json.Unmarshal(b.Get(entryKey), &entry); err != nil {
			return errors.Wrap(err, "decode entry")
		}
		raw = append([]byte(nil), b.Get(descriptorKey)...)
		return nil
	})
	if err != nil {
		return preprocess.Descriptor{}, Entry{}, err
	}

	d, err := preprocess.ReadDescriptor(bytes.NewReader(raw))
	if err != nil {
		return preprocess.Descriptor{}, Entry{}, errors.Wrapf(err, "%s version %d", name, version)
	}
	return d, entry, nil
}

// Latest returns the newest version of name.
func (s *Store) Latest(name string) (preprocess.Descriptor, Entry, error) {
	var version uint64

	err := s.db.View(func(tx *bolt.Tx) error {
		models := tx.Bucket(modelsBucket).Bucket([]byte(name))
		if models == nil {
			return errors.Wrapf(ErrNotFound, "%s", name)
		}
		k, _ := models.Cursor().Last()
		if k == nil {
			return errors.Wrapf(ErrNotFound, "%s has no versions", name)
		}
		version = binary.BigEndian.Uint64(k)
		return nil
	})
	if err != nil {
		return preprocess.Descriptor{}, Entry{}, err
	}

	return s.Get(name, version)
}

// List returns every stored version ordered by name and version.
func (s *Store) List() ([]Entry, error) {
	var entries []Entry

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(modelsBucket).ForEach(func(name, _ []byte) error {
			models := tx.Bucket(modelsBucket).Bucket(name)
			if models == nil {
				return nil
			}
			return models.ForEach(func(k, _ []byte) error {
				b := models.Bucket(k)
				if b == nil {
					return nil
				}
				var e Entry
				if err := json.Unmarshal(b.Get(entryKey), &e); err != nil {
					return errors.Wrapf(err, "decode entry %s", name)
				}
				entries = append(entries, e)
				return nil
			})
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Name != entries[j].Name {
			return entries[i].Name < entries[j].Name
		}
		return entries[i].Version < entries[j].Version
	})
	return entries, nil
}

// Delete removes one version of name. The name disappears with its last version.
func (s *Store) Delete(name string, version uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(modelsBucket)
		models := root.Bucket([]byte(name))
		if models == nil || models.Bucket(versionKey(version)) == nil {
			return errors.Wrapf(ErrNotFound, "%s version %d", name, version)
		}
		if err := models.DeleteBucket(versionKey(version)); err != nil {
			return err
		}
		if k, _ := models.Cursor().First(); k == nil {
			return root.DeleteBucket([]byte(name))
		}
		return nil
	})
}
