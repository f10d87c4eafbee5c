package service

import (
	"time"

	"github.com/lk2023060901/auto-archiver/internal/archiver/biz"
	"github.com/lk2023060901/auto-archiver/internal/archiver/models"
	"github.com/tidwall/gjson"
)

// PinRequest 批量置顶请求
type PinRequest struct {
	FileIDs []int64 `json:"file_ids" binding:"required,min=1,max=1000"`
}

// DecisionRequest 用户决策请求，file_id 为 0 表示账户级决策
type DecisionRequest struct {
	FileID   *int64 `json:"file_id" binding:"required,min=0"`
	Decision string `json:"decision" binding:"required"`
}

type PinStatusResponse struct {
	FileID   int64 `json:"file_id"`
	IsPinned bool  `json:"is_pinned"`
}

type FileResponse struct {
	ID         int64     `json:"id"`
	Path       string    `json:"path"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

type DecisionResponse struct {
	ID         int64      `json:"id"`
	FileID     int64      `json:"file_id"`
	FilePath   string     `json:"file_path"`
	Decision   string     `json:"decision"`
	NotifiedAt time.Time  `json:"notified_at"`
	DecidedAt  *time.Time `json:"decided_at,omitempty"`
}

type NotificationResponse struct {
	ID         int64                  `json:"id"`
	ObjectType string                 `json:"object_type"`
	ObjectID   string                 `json:"object_id"`
	Subject    string                 `json:"subject"`
	Title      string                 `json:"title"`
	Body       string                 `json:"body"`
	Params     map[string]interface{} `json:"params,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

type ListNotificationsResponse struct {
	Items []*NotificationResponse `json:"items"`
	Total int                     `json:"total"`
}

type ArchiveNowResponse struct {
	Accepted bool                `json:"accepted"`
	Report   *biz.EvictionReport `json:"report,omitempty"`
}

func toFileResponse(n *biz.Node) *FileResponse {
	return &FileResponse{
		ID:         int64(n.ID),
		Path:       n.Path,
		Name:       n.Name,
		Size:       n.Size,
		ModifiedAt: n.ModifiedAt,
	}
}

func toDecisionResponse(r *biz.DecisionRecord) *DecisionResponse {
	resp := &DecisionResponse{
		ID:         r.ID,
		FileID:     int64(r.FileID),
		FilePath:   r.FilePath,
		Decision:   string(r.Decision),
		NotifiedAt: r.NotifiedAt,
	}
	if r.IsDecided() {
		at := r.DecidedAt
		resp.DecidedAt = &at
	}
	return resp
}

func toNotificationResponse(n *models.Notification) *NotificationResponse {
	resp := &NotificationResponse{
		ID:         n.ID,
		ObjectType: n.ObjectType,
		ObjectID:   n.ObjectID,
		Subject:    n.Subject,
		Title:      n.Title,
		Body:       n.Body,
		CreatedAt:  time.Unix(n.CreatedAt, 0).UTC(),
	}
	if n.Params != "" && gjson.Valid(n.Params) {
		if m, ok := gjson.Parse(n.Params).Value().(map[string]interface{}); ok {
			resp.Params = m
		}
	}
	return resp
}

func toFileIDs(ids []int64) []biz.FileID {
	out := make([]biz.FileID, len(ids))
	for i, id := range ids {
		out[i] = biz.FileID(id)
	}
	return out
}
