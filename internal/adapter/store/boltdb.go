package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

// CurrentSchemaVersion is the archive's storage format version.
// Increment this when making breaking changes to the stored artifact layout.
const CurrentSchemaVersion = 1

var (
	bucketArtifacts  = []byte("artifacts")
	bucketMeta       = []byte("meta")
	keySchemaVersion = []byte("schema_version")
)

var ErrArtifactNotFound = errors.New("artifact not found")

type ArtifactKind string

const (
	KindUML    ArtifactKind = "uml"
	KindReport ArtifactKind = "report"
)

// Artifact is the output of a project scan kept for later viewing.
type Artifact struct {
	ID        string       `json:"id"`
	Kind      ArtifactKind `json:"kind"`
	Root      string       `json:"root"`
	Model     string       `json:"model,omitempty"`
	Files     int          `json:"files"`
	CreatedAt time.Time    `json:"created_at"`
	Content   string       `json:"content"`
}

// BoltStore archives scan artifacts. It never holds analysis state.
type BoltStore struct {
	db *bbolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketArtifacts, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return checkSchema(tx)
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// checkSchema stamps a fresh archive and clears one written by an older
// layout.
func checkSchema(tx *bbolt.Tx) error {
	meta := tx.Bucket(bucketMeta)
	version := 0
	if data := meta.Get(keySchemaVersion); data != nil {
		if err := json.Unmarshal(data, &version); err != nil {
			version = 0
		}
	}
	if version == CurrentSchemaVersion {
		return nil
	}
	if version != 0 {
		if err := tx.DeleteBucket(bucketArtifacts); err != nil {
			return err
		}
		if _, err := tx.CreateBucket(bucketArtifacts); err != nil {
			return err
		}
	}
	data, err := json.Marshal(CurrentSchemaVersion)
	if err != nil {
		return err
	}
	return meta.Put(keySchemaVersion, data)
}

// Put stores a, assigning an ID and creation time when missing, and returns
// the stored artifact.
func (s *BoltStore) Put(a Artifact) (Artifact, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(a)
	if err != nil {
		return Artifact{}, err
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketArtifacts).Put([]byte(a.ID), data)
	})
	if err != nil {
		return Artifact{}, fmt.Errorf("failed to store artifact: %w", err)
	}
	return a, nil
}

func (s *BoltStore) Get(id string) (Artifact, error) {
	var a Artifact
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketArtifacts).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrArtifactNotFound, id)
		}
		return json.Unmarshal(data, &a)
	})
	return a, err
}

// List returns artifacts newest first, optionally filtered by kind.
func (s *BoltStore) List(kind ArtifactKind) ([]Artifact, error) {
	var artifacts []Artifact
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketArtifacts).ForEach(func(k, v []byte) error {
			var a Artifact
			if err := json.Unmarshal(v, &a); err != nil {
				return fmt.Errorf("artifact %s: %w", k, err)
			}
			if kind == "" || a.Kind == kind {
				artifacts = append(artifacts, a)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(artifacts, func(i, j int) bool {
		return artifacts[i].CreatedAt.After(artifacts[j].CreatedAt)
	})
	return artifacts, nil
}

func (s *BoltStore) Delete(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketArtifacts).Delete([]byte(id))
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
