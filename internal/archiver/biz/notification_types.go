package biz

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// AppName 通知所属应用
const AppName = "auto_archiver"

const (
	ObjectTypeFile    = "file"
	ObjectTypeStorage = "storage"

	SubjectFileWillArchive = "file_will_archive"
	SubjectStorageWarning  = "storage_warning"
)

// NotificationKey identifies one notification across channels.
type NotificationKey struct {
	App        string
	User       UserID
	ObjectType string
	ObjectID   string
	Subject    string
}

func (k NotificationKey) String() string {
	return fmt.Sprintf("%s/%s/%s/%s/%s", k.App, k.User, k.ObjectType, k.ObjectID, k.Subject)
}

// Notification 通知内容
type Notification struct {
	Key       NotificationKey
	Params    map[string]interface{}
	CreatedAt time.Time
}

// Notifier 通知协作方
type Notifier interface {
	Notify(ctx context.Context, n *Notification) error
	Dismiss(ctx context.Context, key NotificationKey) error
}

// FileNoticeKey 文件即将归档通知的键
func FileNoticeKey(user UserID, fileID FileID) NotificationKey {
	return NotificationKey{
		App:        AppName,
		User:       user,
		ObjectType: ObjectTypeFile,
		ObjectID:   fileID.String(),
		Subject:    SubjectFileWillArchive,
	}
}

// StorageNoticeKey 存储空间警告通知的键
func StorageNoticeKey(user UserID) NotificationKey {
	return NotificationKey{
		App:        AppName,
		User:       user,
		ObjectType: ObjectTypeStorage,
		ObjectID:   string(user),
		Subject:    SubjectStorageWarning,
	}
}

// RenderMessage renders a notification as a title and body.
func RenderMessage(n *Notification) (title, body string) {
	switch n.Key.Subject {
	case SubjectFileWillArchive:
		file := fmt.Sprint(n.Params["file"])
		days := toInt64(n.Params["days"])
		unit := "days"
		if days == 1 {
			unit = "day"
		}
		title = fmt.Sprintf("%s will be archived in %d %s", file, days, unit)
		body = fmt.Sprintf("%q has not been opened for a while and will be moved to the archive in %d %s. "+
			"Open it, pin it, or extend its retention to keep it in place.", file, days, unit)
	case SubjectStorageWarning:
		used := toInt64(n.Params["used"])
		quota := toInt64(n.Params["quota"])
		title = fmt.Sprintf("Storage is %.1f%% full", toFloat(n.Params["usage_percent"]))
		body = fmt.Sprintf("You are using %s of %s. The least recently used files will be archived "+
			"automatically unless you free up space or skip archiving.",
			humanize.IBytes(uint64(used)), humanize.IBytes(uint64(quota)))
	default:
		title = n.Key.Subject
		body = fmt.Sprint(n.Params)
	}
	return title, body
}

func toInt64(v interface{}) int64 {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int64:
		return x
	case FileID:
		return int64(x)
	case float64:
		return int64(x)
	default:
		return 0
	}
}

func toFloat(v interface{}) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int:
		return float64(x)
	case int64:
		return float64(x)
	default:
		return 0
	}
}
