package biz

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lk2023060901/auto-archiver/internal/pkg/logger"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time          { return c.t }
func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }
func (c *testClock) clock() Clock            { return func() time.Time { return c.t } }

// ==================== storage ====================

type fakeStorage struct {
	mu     sync.Mutex
	nextID FileID
	nodes  map[FileID]*Node
	blobs  map[FileID][]byte
	quotas map[UserID]string

	failRead   map[FileID]error
	failCreate func(owner UserID, path string) error
	failDelete map[FileID]error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		nextID:     100,
		nodes:      make(map[FileID]*Node),
		blobs:      make(map[FileID][]byte),
		quotas:     make(map[UserID]string),
		failRead:   make(map[FileID]error),
		failDelete: make(map[FileID]error),
	}
}

func (s *fakeStorage) addFile(t *testing.T, owner UserID, p string, data []byte) *Node {
	t.Helper()
	n, err := s.Create(context.Background(), owner, p, data)
	if err != nil {
		t.Fatalf("add file %s: %v", p, err)
	}
	return n
}

func (s *fakeStorage) addDir(owner UserID, p string) *Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mkdirLocked(owner, p)
}

func (s *fakeStorage) mkdirLocked(owner UserID, p string) *Node {
	if p == "" {
		return &Node{Kind: NodeDirectory, Owner: owner}
	}
	if n := s.findLocked(owner, p); n != nil {
		return n
	}
	s.mkdirLocked(owner, (&Node{Path: p}).Dir())
	s.nextID++
	n := &Node{Kind: NodeDirectory, ID: s.nextID, Owner: owner, Path: p, Name: filepath.Base(p), ModifiedAt: testNow}
	s.nodes[n.ID] = n
	return n
}

func (s *fakeStorage) findLocked(owner UserID, p string) *Node {
	for _, n := range s.nodes {
		if n.Owner == owner && n.Path == p {
			return n
		}
	}
	return nil
}

func (s *fakeStorage) exists(owner UserID, p string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findLocked(owner, p) != nil
}

func (s *fakeStorage) content(owner UserID, p string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := s.findLocked(owner, p); n != nil {
		return s.blobs[n.ID]
	}
	return nil
}

func (s *fakeStorage) ResolveByID(_ context.Context, id FileID) (*Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (s *fakeStorage) ResolveByPath(_ context.Context, owner UserID, p string) (*Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.findLocked(owner, p)
	if n == nil {
		return nil, ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (s *fakeStorage) ResolveOwner(ctx context.Context, id FileID) (UserID, error) {
	n, err := s.ResolveByID(ctx, id)
	if err != nil {
		return "", err
	}
	return n.Owner, nil
}

func (s *fakeStorage) ResolveParent(ctx context.Context, id FileID) (*Node, error) {
	n, err := s.ResolveByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mkdirLocked(n.Owner, n.Dir()), nil
}

func (s *fakeStorage) Read(_ context.Context, id FileID) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failRead[id]; err != nil {
		return nil, err
	}
	data, ok := s.blobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (s *fakeStorage) Create(_ context.Context, owner UserID, p string, data []byte) (*Node, error) {
	if s.failCreate != nil {
		if err := s.failCreate(owner, p); err != nil {
			return nil, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findLocked(owner, p) != nil {
		return nil, ErrAlreadyExists
	}
	s.mkdirLocked(owner, (&Node{Path: p}).Dir())
	s.nextID++
	n := &Node{Kind: NodeFile, ID: s.nextID, Owner: owner, Path: p, Name: filepath.Base(p), Size: int64(len(data)), ModifiedAt: testNow}
	s.nodes[n.ID] = n
	s.blobs[n.ID] = append([]byte(nil), data...)
	return n, nil
}

func (s *fakeStorage) Delete(_ context.Context, id FileID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failDelete[id]; err != nil {
		return err
	}
	if _, ok := s.nodes[id]; !ok {
		return ErrNotFound
	}
	delete(s.nodes, id)
	delete(s.blobs, id)
	return nil
}

func (s *fakeStorage) FolderSize(_ context.Context, owner UserID, prefix string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, n := range s.nodes {
		if n.Owner == owner && !n.IsDir() && (prefix == "" || strings.HasPrefix(n.Path, prefix+"/")) {
			total += n.Size
		}
	}
	return total, nil
}

func (s *fakeStorage) QuotaString(_ context.Context, owner UserID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quotas[owner], nil
}

func (s *fakeStorage) Accounts(context.Context) ([]UserID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []UserID
	for u := range s.quotas {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// ==================== codec ====================

const fakeTokenLen = 10

type fakeEntry struct {
	name string
	data []byte
}

// fakeCodec produces artifacts of a chosen size so quota arithmetic is exact.
type fakeCodec struct {
	mu      sync.Mutex
	seq     int
	entries map[string]fakeEntry
	shrink  func(n int) int
	// renameTo makes Extract write a different entry name.
	renameTo string
	// sizeErr makes UncompressedSize reject the declared size.
	sizeErr error
	// extracted counts Extract calls.
	extracted int
}

func newFakeCodec() *fakeCodec {
	return &fakeCodec{
		entries: make(map[string]fakeEntry),
		shrink:  func(n int) int { return n / 2 },
	}
}

func (c *fakeCodec) Compress(name string, data []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	token := fmt.Sprintf("FAKE%06d", c.seq)
	size := c.shrink(len(data))
	if size < fakeTokenLen {
		size = fakeTokenLen
	}
	out := make([]byte, size)
	copy(out, token)
	c.entries[token] = fakeEntry{name: name, data: append([]byte(nil), data...)}
	return out, nil
}

func (c *fakeCodec) entry(artifact []byte) (fakeEntry, error) {
	if len(artifact) < fakeTokenLen {
		return fakeEntry{}, fmt.Errorf("not an artifact")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[string(artifact[:fakeTokenLen])]
	if !ok {
		return fakeEntry{}, fmt.Errorf("unknown artifact")
	}
	return e, nil
}

func (c *fakeCodec) UncompressedSize(artifact []byte) (int64, error) {
	if c.sizeErr != nil {
		return 0, c.sizeErr
	}
	e, err := c.entry(artifact)
	if err != nil {
		return 0, err
	}
	return int64(len(e.data)), nil
}

func (c *fakeCodec) Extract(artifact []byte, dir string) error {
	c.mu.Lock()
	c.extracted++
	c.mu.Unlock()
	e, err := c.entry(artifact)
	if err != nil {
		return err
	}
	name := e.name
	if c.renameTo != "" {
		name = c.renameTo
	}
	return os.WriteFile(filepath.Join(dir, name), e.data, 0o600)
}

// ==================== access repo ====================

type fakeAccessRepo struct {
	mu      sync.Mutex
	records map[FileID]*AccessRecord
	listErr error
}

func newFakeAccessRepo() *fakeAccessRepo {
	return &fakeAccessRepo{records: make(map[FileID]*AccessRecord)}
}

func (r *fakeAccessRepo) put(fileID FileID, owner UserID, at time.Time, pinned bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[fileID] = &AccessRecord{FileID: fileID, OwnerID: owner, LastAccessed: at.Truncate(time.Second), IsPinned: pinned}
}

func (r *fakeAccessRepo) has(fileID FileID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.records[fileID]
	return ok
}

func (r *fakeAccessRepo) Touch(_ context.Context, fileID FileID, owner UserID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[fileID]; ok {
		rec.LastAccessed = at.Truncate(time.Second)
		rec.OwnerID = owner
		return nil
	}
	r.records[fileID] = &AccessRecord{FileID: fileID, OwnerID: owner, LastAccessed: at.Truncate(time.Second)}
	return nil
}

func (r *fakeAccessRepo) SetPinned(_ context.Context, fileID FileID, owner UserID, pinned bool, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[fileID]; ok {
		rec.IsPinned = pinned
		return nil
	}
	r.records[fileID] = &AccessRecord{FileID: fileID, OwnerID: owner, LastAccessed: at.Truncate(time.Second), IsPinned: pinned}
	return nil
}

func (r *fakeAccessRepo) Get(_ context.Context, fileID FileID) (*AccessRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[fileID]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (r *fakeAccessRepo) Remove(_ context.Context, fileID FileID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, fileID)
	return nil
}

func (r *fakeAccessRepo) ListIdleUnpinned(_ context.Context, q IdleQuery) ([]*AccessRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}

	excluded := make(map[FileID]bool, len(q.Exclude))
	for _, id := range q.Exclude {
		excluded[id] = true
	}

	var out []*AccessRecord
	for _, rec := range r.records {
		la := rec.LastAccessed
		switch {
		case rec.IsPinned, excluded[rec.FileID]:
			continue
		case q.Owner != "" && rec.OwnerID != q.Owner:
			continue
		case q.InclusiveBefore && la.After(q.Before):
			continue
		case !q.InclusiveBefore && !la.Before(q.Before):
			continue
		case !q.After.IsZero() && !la.After(q.After):
			continue
		}
		if c := q.Cursor; c != nil {
			if la.Before(c.LastAccessed) || (la.Equal(c.LastAccessed) && rec.FileID <= c.FileID) {
				continue
			}
		}
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastAccessed.Equal(out[j].LastAccessed) {
			return out[i].LastAccessed.Before(out[j].LastAccessed)
		}
		return out[i].FileID < out[j].FileID
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// ==================== decision repo ====================

type fakeDecisionRepo struct {
	mu      sync.Mutex
	nextID  int64
	records []*DecisionRecord
}

func (r *fakeDecisionRepo) all() []DecisionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]DecisionRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, *rec)
	}
	return out
}

func (r *fakeDecisionRepo) HasNotifiedSince(_ context.Context, fileID FileID, userID UserID, d Decision, since time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.FileID == fileID && rec.UserID == userID && (d == "" || rec.Decision == d) && rec.NotifiedAt.After(since) {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeDecisionRepo) Create(_ context.Context, rec *DecisionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	rec.ID = r.nextID
	cp := *rec
	r.records = append(r.records, &cp)
	return nil
}

func (r *fakeDecisionRepo) Transition(_ context.Context, fileID FileID, userID UserID, pendingKind, d Decision, filePath string, at time.Time) (*DecisionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.records) - 1; i >= 0; i-- {
		rec := r.records[i]
		if rec.FileID == fileID && rec.UserID == userID && rec.Decision == pendingKind && !rec.IsDecided() {
			rec.Decision = d
			rec.DecidedAt = at
			cp := *rec
			return &cp, nil
		}
	}
	r.nextID++
	rec := &DecisionRecord{ID: r.nextID, FileID: fileID, UserID: userID, FilePath: filePath, Decision: d, DecidedAt: at}
	r.records = append(r.records, rec)
	cp := *rec
	return &cp, nil
}

func (r *fakeDecisionRepo) LatestDecided(_ context.Context, fileID FileID, userID UserID, d Decision) (*DecisionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *DecisionRecord
	for _, rec := range r.records {
		if rec.FileID == fileID && rec.UserID == userID && rec.Decision == d && rec.IsDecided() {
			if latest == nil || rec.DecidedAt.After(latest.DecidedAt) {
				latest = rec
			}
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (r *fakeDecisionRepo) Statistics(_ context.Context, userID UserID) (*DecisionStatistics, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &DecisionStatistics{Counts: make(map[Decision]int64)}
	for _, rec := range r.records {
		if rec.UserID == userID && !rec.Decision.IsPending() {
			stats.Counts[rec.Decision]++
			stats.Total++
		}
	}
	return stats, nil
}

// ==================== notifier / tx / trigger ====================

type fakeNotifier struct {
	mu        sync.Mutex
	sent      []*Notification
	dismissed []NotificationKey
	err       error
}

func (n *fakeNotifier) Notify(_ context.Context, note *Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, note)
	return nil
}

func (n *fakeNotifier) Dismiss(_ context.Context, key NotificationKey) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dismissed = append(n.dismissed, key)
	return nil
}

func (n *fakeNotifier) count(subject string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, s := range n.sent {
		if s.Key.Subject == subject {
			c++
		}
	}
	return c
}

type fakeTx struct{ calls int }

func (t *fakeTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	return fn(ctx)
}

type fakeTrigger struct{ users []UserID }

func (t *fakeTrigger) TriggerEviction(_ context.Context, user UserID) bool {
	t.users = append(t.users, user)
	return true
}

// ==================== harness ====================

type harness struct {
	clock     *testClock
	storage   *fakeStorage
	codec     *fakeCodec
	access    *fakeAccessRepo
	decisions *fakeDecisionRepo
	notifier  *fakeNotifier
	tx        *fakeTx
	policy    Policy

	archiver *ArchiveUseCase
	eviction *EvictionUseCase
	restore  *RestoreUseCase
	notices  *NotificationUseCase
	tracker  *AccessUseCase
}

func newHarness(t *testing.T, tweak ...func(*Policy)) *harness {
	t.Helper()
	policy := DefaultPolicy()
	for _, fn := range tweak {
		fn(&policy)
	}

	h := &harness{
		clock:     &testClock{t: testNow},
		storage:   newFakeStorage(),
		codec:     newFakeCodec(),
		access:    newFakeAccessRepo(),
		decisions: &fakeDecisionRepo{},
		notifier:  &fakeNotifier{},
		tx:        &fakeTx{},
		policy:    policy,
	}
	log := logger.NewNop()
	clock := h.clock.clock()

	h.archiver = NewArchiveUseCase(h.storage, h.codec, h.access, policy, clock, log)
	h.notices = NewNotificationUseCase(h.access, h.decisions, h.storage, h.notifier, h.tx, policy, clock, log)
	h.eviction = NewEvictionUseCase(h.archiver, h.storage, h.access, h.decisions, h.notices, clock, log)
	h.restore = NewRestoreUseCase(h.storage, h.codec, h.access, policy, clock, log)
	h.restore.SetTempDir(t.TempDir())
	h.tracker = NewAccessUseCase(h.access, h.storage, policy, clock, log)
	return h
}

// idleFile creates a file and a ledger record last accessed idle ago.
func (h *harness) idleFile(t *testing.T, owner UserID, p string, data []byte, idle time.Duration) *Node {
	t.Helper()
	n := h.storage.addFile(t, owner, p, data)
	h.access.put(n.ID, owner, h.clock.now().Add(-idle), false)
	return n
}
