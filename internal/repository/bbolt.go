package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

const (
	runsBucket     = "runs"
	metadataBucket = "metadata"
	schemaVersion  = 1
)

var (
	// ErrRecordNotFound is returned when a record cannot be found
	ErrRecordNotFound = errors.New("record not found")
	ErrEmptyID        = errors.New("record ID cannot be empty")
)

// BboltRepository implements Repository on a bbolt file.
type BboltRepository struct {
	db *bbolt.DB
}

var _ Repository = (*BboltRepository)(nil)

// NewBboltRepository creates a new bbolt repository
func NewBboltRepository(dbPath string) (*BboltRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	options := &bbolt.Options{
		Timeout: 1 * time.Second,
	}

	db, err := bbolt.Open(dbPath, 0o600, options)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	repo := &BboltRepository{
		db: db,
	}

	if err := repo.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return repo, nil
}

func (r *BboltRepository) initialize() error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(runsBucket)); err != nil {
			return fmt.Errorf("failed to create runs bucket: %w", err)
		}

		meta, err := tx.CreateBucketIfNotExists([]byte(metadataBucket))
		if err != nil {
			return fmt.Errorf("failed to create metadata bucket: %w", err)
		}

		if err := meta.Put([]byte("schema_version"), []byte(fmt.Sprintf("%d", schemaVersion))); err != nil {
			return fmt.Errorf("failed to store schema version: %w", err)
		}

		return nil
	})
}

// Save persists a record, replacing any record with the same ID.
func (r *BboltRepository) Save(record *Record) error {
	if record == nil {
		return errors.New("cannot save nil record")
	}

	if record.ID == uuid.Nil {
		return ErrEmptyID
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	return r.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := runs(tx)
		if err != nil {
			return err
		}

		return bucket.Put([]byte(record.ID.String()), data)
	})
}

// Find retrieves a record by ID
func (r *BboltRepository) Find(id uuid.UUID) (*Record, error) {
	if id == uuid.Nil {
		return nil, ErrEmptyID
	}

	var data []byte

	err := r.db.View(func(tx *bbolt.Tx) error {
		bucket, err := runs(tx)
		if err != nil {
			return err
		}

		v := bucket.Get([]byte(id.String()))
		if v == nil {
			return ErrRecordNotFound
		}

		data = append([]byte(nil), v...)

		return nil
	})
	if err != nil {
		return nil, err
	}

	record := &Record{}
	if err := json.Unmarshal(data, record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}

	return record, nil
}

// FindAll returns every record, most recently finished first.
func (r *BboltRepository) FindAll() ([]*Record, error) {
	var records []*Record

	err := r.db.View(func(tx *bbolt.Tx) error {
		bucket, err := runs(tx)
		if err != nil {
			return err
		}

		return bucket.ForEach(func(_, v []byte) error {
			record := &Record{}
			if err := json.Unmarshal(v, record); err != nil {
				return fmt.Errorf("failed to unmarshal record: %w", err)
			}

			records = append(records, record)

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].FinishedAt.After(records[j].FinishedAt)
	})

	return records, nil
}

// Delete removes a record
func (r *BboltRepository) Delete(id uuid.UUID) error {
	if id == uuid.Nil {
		return ErrEmptyID
	}

	return r.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := runs(tx)
		if err != nil {
			return err
		}

		if bucket.Get([]byte(id.String())) == nil {
			return ErrRecordNotFound
		}

		return bucket.Delete([]byte(id.String()))
	})
}

// Prune keeps the newest keep records and deletes the rest. It returns the
// number of deleted records.
func (r *BboltRepository) Prune(keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}

	records, err := r.FindAll()
	if err != nil {
		return 0, err
	}

	if len(records) <= keep {
		return 0, nil
	}

	stale := records[keep:]

	err = r.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := runs(tx)
		if err != nil {
			return err
		}

		for _, rec := range stale {
			if err := bucket.Delete([]byte(rec.ID.String())); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return len(stale), nil
}

// Close closes the database
func (r *BboltRepository) Close() error {
	return r.db.Close()
}

func runs(tx *bbolt.Tx) (*bbolt.Bucket, error) {
	bucket := tx.Bucket([]byte(runsBucket))
	if bucket == nil {
		return nil, fmt.Errorf("bucket not found: %s", runsBucket)
	}

	return bucket, nil
}
