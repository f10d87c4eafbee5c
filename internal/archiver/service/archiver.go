// Package service exposes the archiver use cases over HTTP.
package service

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/auto-archiver/internal/archiver/biz"
	"github.com/lk2023060901/auto-archiver/internal/archiver/metrics"
	"github.com/lk2023060901/auto-archiver/internal/archiver/models"
	"github.com/lk2023060901/auto-archiver/internal/auth/middleware"
	apperrors "github.com/lk2023060901/auto-archiver/internal/pkg/errors"
	"github.com/lk2023060901/auto-archiver/internal/pkg/logger"
	"github.com/lk2023060901/auto-archiver/internal/pkg/response"
	"go.uber.org/zap"
)

// 上传文件大小上限
const maxUploadSize = 512 << 20

// ArchiveNowRunner 同步驱逐单个账户
type ArchiveNowRunner interface {
	ArchiveNow(ctx context.Context, user biz.UserID) (*biz.EvictionReport, error)
}

// InboxLister 站内通知列表
type InboxLister interface {
	List(ctx context.Context, user biz.UserID, limit int) ([]*models.Notification, error)
}

// ArchiverService 归档 HTTP 接口
type ArchiverService struct {
	access  *biz.AccessUseCase
	restore *biz.RestoreUseCase
	notices *biz.NotificationUseCase
	storage biz.Storage
	evictor ArchiveNowRunner
	inbox   InboxLister
	metrics *metrics.Collector
	logger  *logger.Logger
}

func NewArchiverService(
	access *biz.AccessUseCase,
	restore *biz.RestoreUseCase,
	notices *biz.NotificationUseCase,
	storage biz.Storage,
	evictor ArchiveNowRunner,
	inbox InboxLister,
	m *metrics.Collector,
	log *logger.Logger,
) *ArchiverService {
	return &ArchiverService{
		access:  access,
		restore: restore,
		notices: notices,
		storage: storage,
		evictor: evictor,
		inbox:   inbox,
		metrics: m,
		logger:  log.Named("archiver-api"),
	}
}

// RegisterRoutes 注册路由，r 需已挂载 JWT 认证
func (s *ArchiverService) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/access/:fileId", s.TouchAccess)

	files := r.Group("/files")
	{
		files.POST("", s.UploadFile)
		files.GET("/:fileId", s.DownloadFile)
	}

	r.POST("/pin", s.Pin)
	r.POST("/unpin", s.Unpin)
	r.GET("/pin/:fileId", s.GetPinStatus)

	r.POST("/restore/:placeholderId", s.Restore)
	r.POST("/archive-now", s.ArchiveNow)

	decisions := r.Group("/decisions")
	{
		decisions.POST("", s.RecordDecision)
		decisions.GET("/statistics", s.DecisionStatistics)
	}

	r.GET("/notifications", s.ListNotifications)
}

// TouchAccess 记录一次文件访问
func (s *ArchiverService) TouchAccess(c *gin.Context) {
	user, fileID, ok := s.callerAndID(c, "fileId")
	if !ok {
		return
	}
	if err := s.access.Touch(c.Request.Context(), user, fileID); err != nil {
		s.fail(c, "touch access", err)
		return
	}
	response.Success(c, gin.H{"file_id": fileID})
}

// UploadFile 上传文件，multipart 字段 path 与 file
func (s *ArchiverService) UploadFile(c *gin.Context) {
	user, ok := s.caller(c)
	if !ok {
		return
	}

	path := c.PostForm("path")
	fh, err := c.FormFile("file")
	if err != nil || path == "" {
		response.ErrorWithCode(c, apperrors.ErrInvalidParams, "path and file are required")
		return
	}
	if fh.Size > maxUploadSize {
		response.ErrorWithCode(c, apperrors.ErrInvalidParams, "file too large")
		return
	}

	f, err := fh.Open()
	if err != nil {
		response.ErrorWithCode(c, apperrors.ErrBadRequest, "cannot read upload")
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxUploadSize+1))
	if err != nil {
		response.ErrorWithCode(c, apperrors.ErrBadRequest, "cannot read upload")
		return
	}

	ctx := c.Request.Context()
	node, err := s.storage.Create(ctx, user, path, data)
	if err != nil {
		s.fail(c, "create file", err)
		return
	}

	if err := s.access.OnFileCreated(ctx, biz.FileEvent{FileID: node.ID, Path: node.Path}); err != nil {
		s.logger.WithContext(ctx).Warn("track created file failed", zap.Int64("file_id", int64(node.ID)), zap.Error(err))
	}
	response.Created(c, toFileResponse(node))
}

// DownloadFile 下载文件内容
func (s *ArchiverService) DownloadFile(c *gin.Context) {
	user, fileID, ok := s.callerAndID(c, "fileId")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	node, err := s.storage.ResolveByID(ctx, fileID)
	if err != nil {
		s.fail(c, "resolve file", err)
		return
	}
	if node.Owner != user {
		s.fail(c, "resolve file", biz.ErrNotOwner)
		return
	}
	if node.IsDir() {
		response.ErrorWithCode(c, apperrors.ErrBadRequest, "not a file")
		return
	}

	data, err := s.storage.Read(ctx, fileID)
	if err != nil {
		s.fail(c, "read file", err)
		return
	}

	ev := biz.FileEvent{FileID: node.ID, Path: node.Path, Method: c.Request.Method, URI: c.Request.RequestURI}
	if err := s.access.OnFileRead(ctx, ev); err != nil {
		s.logger.WithContext(ctx).Warn("track file read failed", zap.Int64("file_id", int64(node.ID)), zap.Error(err))
	}

	c.Header("Content-Disposition", "attachment; filename="+strconv.Quote(node.Name))
	c.Data(http.StatusOK, "application/octet-stream", data)
}

func (s *ArchiverService) Pin(c *gin.Context) {
	s.setPinned(c, true)
}

func (s *ArchiverService) Unpin(c *gin.Context) {
	s.setPinned(c, false)
}

func (s *ArchiverService) setPinned(c *gin.Context, pinned bool) {
	user, ok := s.caller(c)
	if !ok {
		return
	}
	var req PinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithCode(c, apperrors.ErrInvalidParams, err.Error())
		return
	}

	ids := toFileIDs(req.FileIDs)
	var res *biz.PinResult
	if pinned {
		res = s.access.Pin(c.Request.Context(), user, ids)
	} else {
		res = s.access.Unpin(c.Request.Context(), user, ids)
	}
	response.Success(c, res)
}

// GetPinStatus 查询置顶状态
func (s *ArchiverService) GetPinStatus(c *gin.Context) {
	user, fileID, ok := s.callerAndID(c, "fileId")
	if !ok {
		return
	}
	pinned, err := s.access.GetPinStatus(c.Request.Context(), user, fileID)
	if err != nil {
		s.fail(c, "get pin status", err)
		return
	}
	response.Success(c, &PinStatusResponse{FileID: int64(fileID), IsPinned: pinned})
}

// Restore 从占位文件恢复原文件
func (s *ArchiverService) Restore(c *gin.Context) {
	user, id, ok := s.callerAndID(c, "placeholderId")
	if !ok {
		return
	}

	res, err := s.restore.Restore(c.Request.Context(), user, id)
	if s.metrics != nil {
		s.metrics.ObserveRestore(restoreResult(err))
	}
	if err != nil {
		s.fail(c, "restore", err)
		return
	}
	response.Success(c, res)
}

// ArchiveNow 立即驱逐当前账户直到低于配额阈值
func (s *ArchiverService) ArchiveNow(c *gin.Context) {
	user, ok := s.caller(c)
	if !ok {
		return
	}
	report, err := s.evictor.ArchiveNow(c.Request.Context(), user)
	if err != nil {
		s.fail(c, "archive now", err)
		return
	}
	response.Success(c, &ArchiveNowResponse{Accepted: true, Report: report})
}

// RecordDecision 记录用户对通知的决策
func (s *ArchiverService) RecordDecision(c *gin.Context) {
	user, ok := s.caller(c)
	if !ok {
		return
	}
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithCode(c, apperrors.ErrInvalidParams, err.Error())
		return
	}

	rec, err := s.notices.RecordDecision(c.Request.Context(), user, biz.FileID(*req.FileID), biz.Decision(req.Decision))
	if err != nil {
		s.fail(c, "record decision", err)
		return
	}
	response.Success(c, toDecisionResponse(rec))
}

func (s *ArchiverService) DecisionStatistics(c *gin.Context) {
	user, ok := s.caller(c)
	if !ok {
		return
	}
	stats, err := s.notices.Statistics(c.Request.Context(), user)
	if err != nil {
		s.fail(c, "decision statistics", err)
		return
	}
	response.Success(c, stats)
}

// ListNotifications 站内通知，默认最近 50 条
func (s *ArchiverService) ListNotifications(c *gin.Context) {
	user, ok := s.caller(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	list, err := s.inbox.List(c.Request.Context(), user, limit)
	if err != nil {
		s.fail(c, "list notifications", err)
		return
	}
	items := make([]*NotificationResponse, len(list))
	for i, n := range list {
		items[i] = toNotificationResponse(n)
	}
	response.Success(c, &ListNotificationsResponse{Items: items, Total: len(items)})
}

func (s *ArchiverService) caller(c *gin.Context) (biz.UserID, bool) {
	id, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "missing user")
		return "", false
	}
	return biz.UserID(id), true
}

func (s *ArchiverService) callerAndID(c *gin.Context, param string) (biz.UserID, biz.FileID, bool) {
	user, ok := s.caller(c)
	if !ok {
		return "", 0, false
	}
	id, err := strconv.ParseInt(c.Param(param), 10, 64)
	if err != nil || id <= 0 {
		response.ErrorWithCode(c, apperrors.ErrInvalidParams, "invalid "+param)
		return "", 0, false
	}
	return user, biz.FileID(id), true
}

func (s *ArchiverService) fail(c *gin.Context, op string, err error) {
	appErr := toAppError(err)
	log := s.logger.WithContext(c.Request.Context())
	if appErr.HTTPStatus() >= http.StatusInternalServerError {
		log.Error(op+" failed", zap.Error(err))
	} else {
		log.Info(op+" rejected", zap.Int("code", appErr.Code), zap.Error(err))
	}
	response.HandleError(c, appErr)
}

// restoreResult 恢复结果标签：ok、error 或错误码名称
func restoreResult(err error) string {
	if err == nil {
		return metrics.ResultOK
	}
	code := toAppError(err).Code
	if code == apperrors.ErrInternalServer {
		return metrics.ResultError
	}
	return apperrors.GetMessage(code)
}
