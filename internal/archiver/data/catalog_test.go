package data

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/lk2023060901/auto-archiver/internal/archiver/biz"
	"github.com/lk2023060901/auto-archiver/internal/archiver/codec"
	"github.com/lk2023060901/auto-archiver/internal/archiver/models"
	"github.com/lk2023060901/auto-archiver/internal/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCatalog(t *testing.T) *CatalogStorage {
	t.Helper()
	blobs, err := NewLocalBlobStore(t.TempDir())
	require.NoError(t, err)
	return NewCatalogStorage(newTestDB(t), blobs, CatalogOptions{DefaultQuota: "1 MB"}, logger.NewNop())
}

func TestCatalogCreateReadDelete(t *testing.T) {
	s := newTestCatalog(t)
	ctx := context.Background()

	n, err := s.Create(ctx, "alice", "/docs/2026/plan.txt", []byte("plan"))
	require.NoError(t, err)
	assert.Equal(t, "docs/2026/plan.txt", n.Path)
	assert.Equal(t, "plan.txt", n.Name)
	assert.Equal(t, int64(4), n.Size)
	assert.False(t, n.IsDir())

	dir, err := s.ResolveByPath(ctx, "alice", "docs/2026")
	require.NoError(t, err)
	assert.True(t, dir.IsDir())

	parent, err := s.ResolveParent(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, dir.ID, parent.ID)

	data, err := s.Read(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("plan"), data)

	owner, err := s.ResolveOwner(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, biz.UserID("alice"), owner)

	_, err = s.Create(ctx, "alice", "docs/2026/plan.txt", []byte("again"))
	assert.ErrorIs(t, err, biz.ErrAlreadyExists)
	_, err = s.Create(ctx, "alice", "docs/2026/plan.txt/inner", []byte("x"))
	assert.ErrorIs(t, err, biz.ErrAlreadyExists, "parent is a file")

	assert.Error(t, s.Delete(ctx, dir.ID), "directory not empty")
	require.NoError(t, s.Delete(ctx, n.ID))
	_, err = s.ResolveByID(ctx, n.ID)
	assert.ErrorIs(t, err, biz.ErrNotFound)
	_, err = s.ResolveOwner(ctx, n.ID)
	assert.ErrorIs(t, err, biz.ErrNotFound, "owner cache evicted on delete")
	assert.ErrorIs(t, s.Delete(ctx, n.ID), biz.ErrNotFound)
	require.NoError(t, s.Delete(ctx, dir.ID))
}

func TestCatalogRootAndEmptyFiles(t *testing.T) {
	s := newTestCatalog(t)
	ctx := context.Background()

	n, err := s.Create(ctx, "alice", "empty.txt", nil)
	require.NoError(t, err)
	root, err := s.ResolveParent(ctx, n.ID)
	require.NoError(t, err)
	assert.True(t, root.IsDir())
	assert.Equal(t, "", root.Path)

	data, err := s.Read(ctx, n.ID)
	require.NoError(t, err)
	assert.Empty(t, data)

	_, err = s.ResolveByPath(ctx, "bob", "empty.txt")
	assert.ErrorIs(t, err, biz.ErrNotFound)
}

func TestCatalogFolderSizeAndQuota(t *testing.T) {
	s := newTestCatalog(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "alice", "a.bin", make([]byte, 100))
	require.NoError(t, err)
	_, err = s.Create(ctx, "alice", "Archive/a.bin.zip", make([]byte, 40))
	require.NoError(t, err)
	_, err = s.Create(ctx, "alice", "Archive_old/b.bin", make([]byte, 7))
	require.NoError(t, err)
	_, err = s.Create(ctx, "bob", "c.bin", make([]byte, 1000))
	require.NoError(t, err)

	total, err := s.FolderSize(ctx, "alice", "")
	require.NoError(t, err)
	assert.Equal(t, int64(147), total)

	archived, err := s.FolderSize(ctx, "alice", "Archive")
	require.NoError(t, err)
	assert.Equal(t, int64(40), archived)

	quota, err := s.QuotaString(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "1 MB", quota)

	require.NoError(t, s.SaveAccount(ctx, &models.Account{UserID: "alice", Email: "alice@example.com", Quota: "none"}))
	quota, err = s.QuotaString(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "none", quota)

	require.NoError(t, s.SaveAccount(ctx, &models.Account{UserID: "carol", Quota: "5 GB"}))
	accounts, err := s.Accounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []biz.UserID{"alice", "bob", "carol"}, accounts)

	usage, err := biz.UsageOf(ctx, s, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), usage.Used)
	assert.Equal(t, int64(1<<20), usage.Quota)
}

func TestLocalBlobStore(t *testing.T) {
	store, err := NewLocalBlobStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	key, err := store.Put(ctx, []byte("blob"))
	require.NoError(t, err)
	data, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("blob"), data)

	require.NoError(t, store.Delete(ctx, key))
	require.NoError(t, store.Delete(ctx, key), "deleting twice is fine")
	_, err = store.Get(ctx, key)
	assert.ErrorIs(t, err, biz.ErrNotFound)

	_, err = store.Get(ctx, "../etc/passwd")
	assert.Error(t, err)
}

// 端到端：目录存储 + zip 编解码上的归档与恢复
func TestArchiveAndRestoreOverCatalog(t *testing.T) {
	db := newTestDB(t)
	blobs, err := NewLocalBlobStore(t.TempDir())
	require.NoError(t, err)
	storage := NewCatalogStorage(db, blobs, CatalogOptions{DefaultQuota: "10 MB"}, logger.NewNop())
	access := NewAccessRepo(db)
	zip := codec.NewZip()
	log := logger.NewNop()
	now := time.Now().UTC().Truncate(time.Second)
	clock := func() time.Time { return now }

	ctx := context.Background()
	content := bytes.Repeat([]byte("quarterly numbers "), 500)
	n, err := storage.Create(ctx, "alice", "finance/q1.csv", content)
	require.NoError(t, err)
	require.NoError(t, access.Touch(ctx, n.ID, "alice", now.Add(-45*24*time.Hour)))

	archiver := biz.NewArchiveUseCase(storage, zip, access, biz.DefaultPolicy(), clock, log)
	res, err := archiver.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Archived)

	_, err = storage.ResolveByPath(ctx, "alice", "finance/q1.csv")
	assert.ErrorIs(t, err, biz.ErrNotFound)
	holder, err := storage.ResolveByPath(ctx, "alice", "finance/q1.csv.ncarchive")
	require.NoError(t, err)
	artifact, err := storage.ResolveByPath(ctx, "alice", "Archive/q1.csv.zip")
	require.NoError(t, err)
	assert.Less(t, artifact.Size, int64(len(content)))

	restorer := biz.NewRestoreUseCase(storage, zip, access, biz.DefaultPolicy(), clock, log)
	restorer.SetTempDir(t.TempDir())
	restored, err := restorer.Restore(ctx, "alice", holder.ID)
	require.NoError(t, err)

	data, err := storage.Read(ctx, restored.FileID)
	require.NoError(t, err)
	assert.Equal(t, content, data)
	_, err = storage.ResolveByPath(ctx, "alice", "Archive/q1.csv.zip")
	assert.ErrorIs(t, err, biz.ErrNotFound)

	rec, err := access.Get(ctx, restored.FileID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, now, rec.LastAccessed)
}
