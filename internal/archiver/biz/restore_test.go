package biz

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// archived creates a file, archives it and returns the placeholder node.
func (h *harness) archived(t *testing.T, owner UserID, p string, data []byte) *Node {
	t.Helper()
	n := h.idleFile(t, owner, p, data, 40*day)
	res, err := h.archiver.ArchiveOne(context.Background(), n.ID, ArchiveOptions{})
	require.NoError(t, err)
	require.Equal(t, OutcomeArchived, res.Outcome)

	holder, err := h.storage.ResolveByPath(context.Background(), owner, p+h.policy.PlaceholderExt)
	require.NoError(t, err)
	return holder
}

func TestRestoreRoundTrip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	content := bytes.Repeat([]byte("round trip "), 50)
	holder := h.archived(t, "alice", "docs/trip.txt", content)

	res, err := h.restore.Restore(ctx, "alice", holder.ID)
	require.NoError(t, err)
	assert.Equal(t, "docs/trip.txt", res.Path)
	assert.Equal(t, int64(len(content)), res.Size)
	assert.True(t, res.ArtifactRemoved)

	assert.Equal(t, content, h.storage.content("alice", "docs/trip.txt"))
	assert.False(t, h.storage.exists("alice", "docs/trip.txt.ncarchive"))
	assert.False(t, h.storage.exists("alice", "Archive/trip.txt.zip"))

	rec, err := h.access.Get(ctx, res.FileID)
	require.NoError(t, err)
	require.NotNil(t, rec, "restored file is tracked again")
	assert.Equal(t, testNow, rec.LastAccessed)
}

func TestRestoreQuotaAdmission(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T, quota string) (*harness, *Node) {
		h := newHarness(t)
		holder := h.archived(t, "alice", "data.bin", bytes.Repeat([]byte("d"), 1000))
		h.storage.quotas["alice"] = quota
		return h, holder
	}
	usedAfterArchive := func(h *harness) int64 {
		used, _ := h.storage.FolderSize(ctx, "alice", "")
		return used
	}

	t.Run("rejects with details", func(t *testing.T) {
		h, holder := setup(t, "")
		h.storage.quotas["alice"] = itoa(usedAfterArchive(h) + 500)

		_, err := h.restore.Restore(ctx, "alice", holder.ID)
		require.ErrorIs(t, err, ErrStorageQuotaExceeded)

		var qe *QuotaExceededError
		require.True(t, errors.As(err, &qe))
		assert.Equal(t, int64(1000), qe.Required)
		assert.Equal(t, int64(500), qe.Available)
		assert.Equal(t, usedAfterArchive(h), qe.Used)
		assert.Equal(t, qe.Used+500, qe.Quota)
		assert.True(t, h.storage.exists("alice", "data.bin.ncarchive"), "nothing changed")
	})

	t.Run("exact fit succeeds", func(t *testing.T) {
		h, holder := setup(t, "")
		h.storage.quotas["alice"] = itoa(usedAfterArchive(h) + 1000)
		_, err := h.restore.Restore(ctx, "alice", holder.ID)
		assert.NoError(t, err)
	})

	t.Run("within one percent buffer succeeds", func(t *testing.T) {
		h, holder := setup(t, "")
		h.storage.quotas["alice"] = itoa(usedAfterArchive(h) + 991)
		_, err := h.restore.Restore(ctx, "alice", holder.ID)
		assert.NoError(t, err)
	})

	t.Run("beyond buffer fails", func(t *testing.T) {
		h, holder := setup(t, "")
		h.storage.quotas["alice"] = itoa(usedAfterArchive(h) + 989)
		_, err := h.restore.Restore(ctx, "alice", holder.ID)
		assert.ErrorIs(t, err, ErrStorageQuotaExceeded)
	})
}

func TestRestoreFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("placeholder missing", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.restore.Restore(ctx, "alice", 12345)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("not a placeholder", func(t *testing.T) {
		h := newHarness(t)
		n := h.storage.addFile(t, "alice", "plain.txt", []byte("plain"))
		_, err := h.restore.Restore(ctx, "alice", n.ID)
		assert.ErrorIs(t, err, ErrInvalidPlaceholder)
	})

	t.Run("malformed placeholder", func(t *testing.T) {
		h := newHarness(t)
		n := h.storage.addFile(t, "alice", "broken.txt.ncarchive", []byte(`{"owner":"alice"}`))
		_, err := h.restore.Restore(ctx, "alice", n.ID)
		assert.ErrorIs(t, err, ErrInvalidPlaceholder)
	})

	t.Run("someone else's placeholder", func(t *testing.T) {
		h := newHarness(t)
		holder := h.archived(t, "alice", "mine.txt", []byte("mine mine mine"))
		_, err := h.restore.Restore(ctx, "mallory", holder.ID)
		assert.ErrorIs(t, err, ErrNotOwner)
	})

	t.Run("artifact gone", func(t *testing.T) {
		h := newHarness(t)
		holder := h.archived(t, "alice", "gone.txt", []byte("gone gone gone"))
		artifact, err := h.storage.ResolveByPath(ctx, "alice", "Archive/gone.txt.zip")
		require.NoError(t, err)
		require.NoError(t, h.storage.Delete(ctx, artifact.ID))

		_, err = h.restore.Restore(ctx, "alice", holder.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("extraction mismatch", func(t *testing.T) {
		h := newHarness(t)
		holder := h.archived(t, "alice", "x.txt", []byte("some bytes here"))
		h.codec.renameTo = "y.txt"

		_, err := h.restore.Restore(ctx, "alice", holder.ID)
		assert.ErrorIs(t, err, ErrExtractionMismatch)
		assert.False(t, h.storage.exists("alice", "x.txt"))
		assert.True(t, h.storage.exists("alice", "x.txt.ncarchive"))
	})

	t.Run("declared size overflows", func(t *testing.T) {
		h := newHarness(t)
		holder := h.archived(t, "alice", "wrap.txt", []byte("wrapping bytes"))
		h.codec.sizeErr = errors.New("codec: declared size exceeds int64")

		_, err := h.restore.Restore(ctx, "alice", holder.ID)
		assert.ErrorIs(t, err, ErrExtractionMismatch)
		assert.Zero(t, h.codec.extracted)
		assert.False(t, h.storage.exists("alice", "wrap.txt"))
		assert.True(t, h.storage.exists("alice", "wrap.txt.ncarchive"))
		assert.True(t, h.storage.exists("alice", "Archive/wrap.txt.zip"))
	})

	t.Run("original path taken", func(t *testing.T) {
		h := newHarness(t)
		holder := h.archived(t, "alice", "dup.txt", []byte("first version"))
		h.storage.addFile(t, "alice", "dup.txt", []byte("second version"))

		_, err := h.restore.Restore(ctx, "alice", holder.ID)
		assert.ErrorIs(t, err, ErrAlreadyExists)
	})

	t.Run("artifact delete failure keeps restore", func(t *testing.T) {
		h := newHarness(t)
		holder := h.archived(t, "alice", "keep.txt", []byte("keep these bytes"))
		artifact, err := h.storage.ResolveByPath(ctx, "alice", "Archive/keep.txt.zip")
		require.NoError(t, err)
		h.storage.failDelete[artifact.ID] = errors.New("busy")

		res, err := h.restore.Restore(ctx, "alice", holder.ID)
		require.NoError(t, err)
		assert.False(t, res.ArtifactRemoved)
		assert.Equal(t, []byte("keep these bytes"), h.storage.content("alice", "keep.txt"))
	})
}

func TestRestoreBySystemCaller(t *testing.T) {
	h := newHarness(t)
	holder := h.archived(t, "alice", "ops.txt", []byte("operator restore"))
	_, err := h.restore.Restore(context.Background(), "", holder.ID)
	assert.NoError(t, err)
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
