package models

// Notification 站内通知
type Notification struct {
	ID         int64  `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	App        string `gorm:"column:app;size:64;not null" json:"app"`
	UserID     string `gorm:"column:user_id;size:64;not null;index:idx_notification_key,priority:1" json:"user_id"`
	ObjectType string `gorm:"column:object_type;size:32;not null;index:idx_notification_key,priority:2" json:"object_type"`
	ObjectID   string `gorm:"column:object_id;size:64;not null;index:idx_notification_key,priority:3" json:"object_id"`
	Subject    string `gorm:"column:subject;size:64;not null" json:"subject"`
	Title      string `gorm:"column:title;size:512;not null;default:''" json:"title"`
	Body       string `gorm:"column:body;type:text" json:"body"`
	Params     string `gorm:"column:params;type:text" json:"params"`
	CreatedAt  int64  `gorm:"column:created_at;not null" json:"created_at"`
}

func (Notification) TableName() string {
	return "archiver_notifications"
}
