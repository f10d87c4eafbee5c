package data

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lk2023060901/auto-archiver/internal/archiver/biz"
	"github.com/lk2023060901/auto-archiver/internal/archiver/models"
	"github.com/lk2023060901/auto-archiver/internal/email/types"
	"github.com/lk2023060901/auto-archiver/internal/pkg/database"
	"github.com/lk2023060901/auto-archiver/internal/pkg/logger"
	"go.uber.org/zap"
)

// InboxNotifier 站内通知，写入 archiver_notifications 表
type InboxNotifier struct {
	db *database.DB
}

func NewInboxNotifier(db *database.DB) *InboxNotifier {
	return &InboxNotifier{db: db}
}

func (n *InboxNotifier) Notify(ctx context.Context, note *biz.Notification) error {
	params, err := json.Marshal(note.Params)
	if err != nil {
		return fmt.Errorf("failed to encode params: %w", err)
	}
	title, body := biz.RenderMessage(note)
	created := note.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	po := &models.Notification{
		App:        note.Key.App,
		UserID:     string(note.Key.User),
		ObjectType: note.Key.ObjectType,
		ObjectID:   note.Key.ObjectID,
		Subject:    note.Key.Subject,
		Title:      title,
		Body:       body,
		Params:     string(params),
		CreatedAt:  created.Unix(),
	}
	if err := n.db.GetDBFromContext(ctx).Create(po).Error; err != nil {
		return fmt.Errorf("failed to store notification: %w", err)
	}
	return nil
}

// Dismiss 删除同一键下的全部通知
func (n *InboxNotifier) Dismiss(ctx context.Context, key biz.NotificationKey) error {
	err := n.db.GetDBFromContext(ctx).
		Where("app = ? AND user_id = ? AND object_type = ? AND object_id = ? AND subject = ?",
			key.App, string(key.User), key.ObjectType, key.ObjectID, key.Subject).
		Delete(&models.Notification{}).Error
	if err != nil {
		return fmt.Errorf("failed to dismiss notification: %w", err)
	}
	return nil
}

// List 按时间倒序列出用户的通知
func (n *InboxNotifier) List(ctx context.Context, user biz.UserID, limit int) ([]*models.Notification, error) {
	var out []*models.Notification
	err := n.db.GetDBFromContext(ctx).
		Where("user_id = ?", string(user)).
		Order("created_at DESC, id DESC").
		Scopes(database.Limit(limit)).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return out, nil
}

// Mailer 邮件发送方
type Mailer interface {
	SendEmail(ctx context.Context, email *types.Email) (*types.EmailStatus, error)
}

// AccountLookup resolves account details for mail delivery.
type AccountLookup interface {
	Account(ctx context.Context, user biz.UserID) (*models.Account, error)
}

// MailNotifier 邮件通知；没有邮箱的账户直接跳过
type MailNotifier struct {
	mailer   Mailer
	accounts AccountLookup
	logger   *logger.Logger
}

func NewMailNotifier(mailer Mailer, accounts AccountLookup, log *logger.Logger) *MailNotifier {
	return &MailNotifier{mailer: mailer, accounts: accounts, logger: log.Named("mail-notifier")}
}

func (n *MailNotifier) Notify(ctx context.Context, note *biz.Notification) error {
	acc, err := n.accounts.Account(ctx, note.Key.User)
	if err != nil {
		return err
	}
	if acc == nil || acc.Email == "" {
		n.logger.WithContext(ctx).Debug("no email address, skip", zap.String("user", string(note.Key.User)))
		return nil
	}

	title, body := biz.RenderMessage(note)
	status, err := n.mailer.SendEmail(ctx, &types.Email{
		To:      []string{acc.Email},
		Subject: title,
		Body:    body,
		Headers: map[string]string{"X-Archiver-Key": note.Key.String()},
	})
	if err != nil {
		return err
	}
	n.logger.WithContext(ctx).Info("notification mailed",
		zap.String("user", string(note.Key.User)),
		zap.String("subject", note.Key.Subject),
		zap.String("message_id", status.MessageID),
	)
	return nil
}

// Dismiss is a no-op: mail cannot be recalled.
func (n *MailNotifier) Dismiss(context.Context, biz.NotificationKey) error {
	return nil
}

// LogNotifier 仅记录日志，用于未配置通知渠道的部署
type LogNotifier struct {
	logger *logger.Logger
}

func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{logger: log.Named("notifier")}
}

func (n *LogNotifier) Notify(ctx context.Context, note *biz.Notification) error {
	title, _ := biz.RenderMessage(note)
	n.logger.WithContext(ctx).Info("notification",
		zap.String("key", note.Key.String()),
		zap.String("title", title),
	)
	return nil
}

func (n *LogNotifier) Dismiss(ctx context.Context, key biz.NotificationKey) error {
	n.logger.WithContext(ctx).Debug("notification dismissed", zap.String("key", key.String()))
	return nil
}

// ChainNotifier 依次调用多个渠道
//
// 只有 primary 的错误会返回给调用方，其余渠道失败仅记录日志。
type ChainNotifier struct {
	primary biz.Notifier
	extra   []biz.Notifier
	logger  *logger.Logger
}

func NewChainNotifier(log *logger.Logger, primary biz.Notifier, extra ...biz.Notifier) *ChainNotifier {
	return &ChainNotifier{primary: primary, extra: extra, logger: log.Named("notifier")}
}

func (c *ChainNotifier) Notify(ctx context.Context, note *biz.Notification) error {
	if err := c.primary.Notify(ctx, note); err != nil {
		return err
	}
	for _, n := range c.extra {
		if err := n.Notify(ctx, note); err != nil {
			c.logger.WithContext(ctx).Warn("secondary notifier failed", zap.String("key", note.Key.String()), zap.Error(err))
		}
	}
	return nil
}

func (c *ChainNotifier) Dismiss(ctx context.Context, key biz.NotificationKey) error {
	if err := c.primary.Dismiss(ctx, key); err != nil {
		return err
	}
	for _, n := range c.extra {
		if err := n.Dismiss(ctx, key); err != nil {
			c.logger.WithContext(ctx).Warn("secondary dismiss failed", zap.String("key", key.String()), zap.Error(err))
		}
	}
	return nil
}
