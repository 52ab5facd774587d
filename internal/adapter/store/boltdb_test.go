package store

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"
)

func openTestStore(t *testing.T, path string) *BoltStore {
	t.Helper()
	s, err := NewBoltStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBoltStore_PutGet(t *testing.T) {
	s := openTestStore(t, filepath.Join(t.TempDir(), "artifacts.db"))

	stored, err := s.Put(Artifact{Kind: KindUML, Root: "/src", Content: "@startuml\n@enduml"})
	require.NoError(t, err)
	assert.NotEmpty(t, stored.ID)
	assert.False(t, stored.CreatedAt.IsZero())

	got, err := s.Get(stored.ID)
	require.NoError(t, err)
	assert.Equal(t, stored.Content, got.Content)
	assert.Equal(t, KindUML, got.Kind)

	_, err = s.Get("missing")
	assert.ErrorIs(t, err, ErrArtifactNotFound)
}

func TestBoltStore_ListNewestFirst(t *testing.T) {
	s := openTestStore(t, filepath.Join(t.TempDir(), "artifacts.db"))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := s.Put(Artifact{ID: "old", Kind: KindReport, CreatedAt: base})
	require.NoError(t, err)
	_, err = s.Put(Artifact{ID: "new", Kind: KindReport, CreatedAt: base.Add(time.Hour)})
	require.NoError(t, err)
	_, err = s.Put(Artifact{ID: "diagram", Kind: KindUML, CreatedAt: base.Add(2 * time.Hour)})
	require.NoError(t, err)

	all, err := s.List("")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "diagram", all[0].ID)

	reports, err := s.List(KindReport)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, "new", reports[0].ID)
	assert.Equal(t, "old", reports[1].ID)

	require.NoError(t, s.Delete("old"))
	reports, err = s.List(KindReport)
	require.NoError(t, err)
	assert.Len(t, reports, 1)
}

func TestBoltStore_OutdatedSchemaIsCleared(t *testing.T) {
	path := filepath.Join(t.TempDir(), "artifacts.db")

	s, err := NewBoltStore(path)
	require.NoError(t, err)
	_, err = s.Put(Artifact{ID: "a", Kind: KindUML})
	require.NoError(t, err)
	err = s.db.Update(func(tx *bbolt.Tx) error {
		data, _ := json.Marshal(CurrentSchemaVersion + 1)
		return tx.Bucket(bucketMeta).Put(keySchemaVersion, data)
	})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened := openTestStore(t, path)
	all, err := reopened.List("")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestBoltStore_ReopenKeepsArtifacts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "artifacts.db")

	s, err := NewBoltStore(path)
	require.NoError(t, err)
	_, err = s.Put(Artifact{ID: "keep", Kind: KindReport, Content: "# report"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened := openTestStore(t, path)
	got, err := reopened.Get("keep")
	require.NoError(t, err)
	assert.Equal(t, "# report", got.Content)
}
