package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/auto-archiver/internal/archiver/biz"
	"github.com/lk2023060901/auto-archiver/internal/archiver/codec"
	"github.com/lk2023060901/auto-archiver/internal/archiver/data"
	"github.com/lk2023060901/auto-archiver/internal/archiver/metrics"
	"github.com/lk2023060901/auto-archiver/internal/archiver/models"
	"github.com/lk2023060901/auto-archiver/internal/auth"
	"github.com/lk2023060901/auto-archiver/internal/auth/middleware"
	"github.com/lk2023060901/auto-archiver/internal/pkg/database"
	"github.com/lk2023060901/auto-archiver/internal/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 5, 20, 9, 0, 0, 0, time.UTC)

type fakeEvictor struct {
	calls []biz.UserID
	err   error
}

func (f *fakeEvictor) ArchiveNow(_ context.Context, user biz.UserID) (*biz.EvictionReport, error) {
	f.calls = append(f.calls, user)
	if f.err != nil {
		return nil, f.err
	}
	return &biz.EvictionReport{User: user, StopReason: biz.StopBelowThreshold}, nil
}

type testEnv struct {
	router   *gin.Engine
	jwt      *auth.JWTManager
	storage  *data.CatalogStorage
	access   *data.AccessRepo
	archiver *biz.ArchiveUseCase
	notices  *biz.NotificationUseCase
	evictor  *fakeEvictor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.NewNop()
	db, err := database.New(database.SQLiteConfig(":memory:"), log)
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(context.Background(), db))
	t.Cleanup(func() { _ = db.Close() })

	blobs, err := data.NewLocalBlobStore(t.TempDir())
	require.NoError(t, err)
	storage := data.NewCatalogStorage(db, blobs, data.CatalogOptions{DefaultQuota: "10 MB"}, log)
	access := data.NewAccessRepo(db)
	decisions := data.NewDecisionRepo(db)
	inbox := data.NewInboxNotifier(db)
	zip := codec.NewZip()
	policy := biz.DefaultPolicy()
	clock := func() time.Time { return testNow }

	restore := biz.NewRestoreUseCase(storage, zip, access, policy, clock, log)
	restore.SetTempDir(t.TempDir())
	notices := biz.NewNotificationUseCase(access, decisions, storage, inbox, data.NewTransactor(db), policy, clock, log)
	evictor := &fakeEvictor{}

	svc := NewArchiverService(
		biz.NewAccessUseCase(access, storage, policy, clock, log),
		restore,
		notices,
		storage,
		evictor,
		inbox,
		metrics.New(),
		log,
	)

	jwt := auth.NewJWTManager("test-secret", time.Hour)
	r := gin.New()
	api := r.Group("/api/v1", middleware.JWTAuth(jwt, log))
	svc.RegisterRoutes(api)

	return &testEnv{
		router:   r,
		jwt:      jwt,
		storage:  storage,
		access:   access,
		archiver: biz.NewArchiveUseCase(storage, zip, access, policy, clock, log),
		notices:  notices,
		evictor:  evictor,
	}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e *testEnv) do(t *testing.T, user, method, path string, body io.Reader, contentType string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if user != "" {
		token, err := e.jwt.GenerateAccessToken(user, user+"@example.com")
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var env envelope
	if w.Header().Get("Content-Type") != "application/octet-stream" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

func (e *testEnv) doJSON(t *testing.T, user, method, path string, payload interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return e.do(t, user, method, path, bytes.NewReader(raw), "application/json")
}

func (e *testEnv) upload(t *testing.T, user, path string, content []byte) int64 {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("path", path))
	fw, err := mw.CreateFormFile("file", "upload.bin")
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	w, env := e.do(t, user, http.MethodPost, "/api/v1/files", &buf, mw.FormDataContentType())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var file FileResponse
	require.NoError(t, json.Unmarshal(env.Data, &file))
	return file.ID
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestRequiresAuth(t *testing.T) {
	e := newTestEnv(t)
	w, env := e.do(t, "", http.MethodPost, "/api/v1/access/1", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, 1003, env.Code)
}

func TestUploadDownloadTracksAccess(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	id := e.upload(t, "alice", "docs/readme.md", []byte("hello"))
	rec, err := e.access.Get(ctx, biz.FileID(id))
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, testNow, rec.LastAccessed)

	require.NoError(t, e.access.Touch(ctx, biz.FileID(id), "alice", testNow.Add(-48*time.Hour)))
	w, _ := e.do(t, "alice", http.MethodGet, "/api/v1/files/"+strconv.FormatInt(id, 10), nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello", w.Body.String())

	rec, err = e.access.Get(ctx, biz.FileID(id))
	require.NoError(t, err)
	assert.Equal(t, testNow, rec.LastAccessed)

	// 其他用户无权读取
	w, env := e.do(t, "bob", http.MethodGet, "/api/v1/files/"+strconv.FormatInt(id, 10), nil, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, 5008, env.Code)

	// 路径重复
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("path", "docs/readme.md"))
	fw, err := mw.CreateFormFile("file", "x")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("again"))
	require.NoError(t, mw.Close())
	w, env = e.do(t, "alice", http.MethodPost, "/api/v1/files", &buf, mw.FormDataContentType())
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 5006, env.Code)
}

func TestUploadPlaceholderNotTracked(t *testing.T) {
	e := newTestEnv(t)
	id := e.upload(t, "alice", "notes.txt.ncarchive", []byte("{}"))

	rec, err := e.access.Get(context.Background(), biz.FileID(id))
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestTouchAccess(t *testing.T) {
	e := newTestEnv(t)
	id := e.upload(t, "alice", "a.txt", []byte("a"))
	path := fmt.Sprintf("/api/v1/access/%d", id)

	w, _ := e.do(t, "alice", http.MethodPost, path, nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, env := e.do(t, "bob", http.MethodPost, path, nil, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, 5008, env.Code)

	w, env = e.do(t, "alice", http.MethodPost, "/api/v1/access/999", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 5001, env.Code)

	w, env = e.do(t, "alice", http.MethodPost, "/api/v1/access/abc", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 1001, env.Code)
}

func TestPinBatchAndStatus(t *testing.T) {
	e := newTestEnv(t)
	id := e.upload(t, "alice", "keep.txt", []byte("keep"))

	w, env := e.doJSON(t, "alice", http.MethodPost, "/api/v1/pin", gin.H{"file_ids": []int64{id, 999}})
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[biz.PinResult](t, env.Data)
	assert.Equal(t, []biz.FileID{biz.FileID(id)}, res.Succeeded)
	assert.Equal(t, []biz.FileID{999}, res.Failed)

	w, env = e.do(t, "alice", http.MethodGet, fmt.Sprintf("/api/v1/pin/%d", id), nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[PinStatusResponse](t, env.Data).IsPinned)

	w, _ = e.doJSON(t, "alice", http.MethodPost, "/api/v1/unpin", gin.H{"file_ids": []int64{id}})
	require.Equal(t, http.StatusOK, w.Code)
	_, env = e.do(t, "alice", http.MethodGet, fmt.Sprintf("/api/v1/pin/%d", id), nil, "")
	assert.False(t, decode[PinStatusResponse](t, env.Data).IsPinned)

	w, env = e.doJSON(t, "alice", http.MethodPost, "/api/v1/pin", gin.H{"file_ids": []int64{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 1001, env.Code)
}

func (e *testEnv) archive(t *testing.T, user, path string, content []byte) biz.FileID {
	t.Helper()
	ctx := context.Background()
	id := e.upload(t, user, path, content)
	require.NoError(t, e.access.Touch(ctx, biz.FileID(id), biz.UserID(user), testNow.Add(-45*24*time.Hour)))

	res, err := e.archiver.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.Archived)

	holder, err := e.storage.ResolveByPath(ctx, biz.UserID(user), path+".ncarchive")
	require.NoError(t, err)
	return holder.ID
}

func TestRestore(t *testing.T) {
	e := newTestEnv(t)
	content := bytes.Repeat([]byte("restore me "), 200)
	holder := e.archive(t, "alice", "reports/2025.txt", content)
	path := fmt.Sprintf("/api/v1/restore/%d", holder)

	w, env := e.do(t, "bob", http.MethodPost, path, nil, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, 5008, env.Code)

	w, env = e.do(t, "alice", http.MethodPost, path, nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[biz.RestoreResult](t, env.Data)
	assert.Equal(t, "reports/2025.txt", res.Path)
	assert.Equal(t, int64(len(content)), res.Size)
	assert.True(t, res.ArtifactRemoved)

	got, err := e.storage.Read(context.Background(), res.FileID)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	// 占位文件已删除
	w, env = e.do(t, "alice", http.MethodPost, path, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 5001, env.Code)
}

func TestRestoreQuotaExceeded(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	content := bytes.Repeat([]byte("large payload "), 400)
	holder := e.archive(t, "alice", "big.txt", content)

	used, err := e.storage.FolderSize(ctx, "alice", "")
	require.NoError(t, err)
	require.NoError(t, e.storage.SaveAccount(ctx, &models.Account{
		UserID: "alice",
		Quota:  strconv.FormatInt(used+10, 10),
	}))

	w, env := e.do(t, "alice", http.MethodPost, fmt.Sprintf("/api/v1/restore/%d", holder), nil, "")
	assert.Equal(t, http.StatusInsufficientStorage, w.Code)
	assert.Equal(t, 5004, env.Code)

	qe := decode[biz.QuotaExceededError](t, env.Data)
	assert.Equal(t, int64(len(content)), qe.Required)
	assert.Equal(t, int64(10), qe.Available)
	assert.Equal(t, used+10, qe.Quota)
	assert.Equal(t, used, qe.Used)
}

func TestDecisions(t *testing.T) {
	e := newTestEnv(t)
	id := e.upload(t, "alice", "old.txt", []byte("old"))

	w, env := e.doJSON(t, "alice", http.MethodPost, "/api/v1/decisions", gin.H{"file_id": id, "decision": "extend_7days"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "extend_7days", decode[DecisionResponse](t, env.Data).Decision)

	rec, err := e.access.Get(context.Background(), biz.FileID(id))
	require.NoError(t, err)
	assert.Equal(t, testNow.Add(-16*24*time.Hour), rec.LastAccessed)

	w, env = e.doJSON(t, "alice", http.MethodPost, "/api/v1/decisions", gin.H{"file_id": 0, "decision": "skip_archive"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, biz.StorageWarningPath, decode[DecisionResponse](t, env.Data).FilePath)

	w, env = e.doJSON(t, "alice", http.MethodPost, "/api/v1/decisions", gin.H{"file_id": 0, "decision": "extend"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 5007, env.Code)

	w, env = e.doJSON(t, "bob", http.MethodPost, "/api/v1/decisions", gin.H{"file_id": id, "decision": "extend"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, 5008, env.Code)

	w, env = e.doJSON(t, "alice", http.MethodPost, "/api/v1/decisions", gin.H{"decision": "ignore"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 1001, env.Code)

	w, env = e.do(t, "alice", http.MethodGet, "/api/v1/decisions/statistics", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[biz.DecisionStatistics](t, env.Data)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.Counts[biz.DecisionExtend7Days])
	assert.Equal(t, int64(1), stats.Counts[biz.DecisionSkipArchive])
}

func TestArchiveNow(t *testing.T) {
	e := newTestEnv(t)
	w, env := e.do(t, "alice", http.MethodPost, "/api/v1/archive-now", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[ArchiveNowResponse](t, env.Data).Accepted)
	assert.Equal(t, []biz.UserID{"alice"}, e.evictor.calls)

	e.evictor.err = biz.ErrTaskBusy
	w, env = e.do(t, "alice", http.MethodPost, "/api/v1/archive-now", nil, "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 5009, env.Code)
}

func TestListNotifications(t *testing.T) {
	e := newTestEnv(t)
	sent, err := e.notices.WarnStorage(context.Background(), "alice", biz.NewUsage(850<<20, 1000<<20, false))
	require.NoError(t, err)
	require.True(t, sent)

	w, env := e.do(t, "alice", http.MethodGet, "/api/v1/notifications", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[ListNotificationsResponse](t, env.Data)
	require.Equal(t, 1, list.Total)
	assert.Equal(t, biz.SubjectStorageWarning, list.Items[0].Subject)
	assert.Contains(t, list.Items[0].Title, "85.0%")
	assert.EqualValues(t, 850<<20, list.Items[0].Params["used"])

	_, env = e.do(t, "bob", http.MethodGet, "/api/v1/notifications", nil, "")
	assert.Equal(t, 0, decode[ListNotificationsResponse](t, env.Data).Total)
}

func TestToAppErrorHidesInternalDetails(t *testing.T) {
	err := toAppError(fmt.Errorf("disk: %w", biz.ErrIOFailure))
	assert.Equal(t, 5005, err.Code)
	assert.Empty(t, err.Details)

	err = toAppError(fmt.Errorf("boom"))
	assert.Equal(t, 1000, err.Code)
}
