package models

// FileAccess 文件访问记录，时间均为 unix 秒
type FileAccess struct {
	FileID       int64  `gorm:"column:file_id;primaryKey;autoIncrement:false" json:"file_id"`
	OwnerID      string `gorm:"column:owner_id;size:64;not null;default:'';index:idx_access_owner" json:"owner_id"`
	LastAccessed int64  `gorm:"column:last_accessed;not null" json:"last_accessed"`
	IsPinned     bool   `gorm:"column:is_pinned;not null;default:false" json:"is_pinned"`
}

// TableName 指定表名
func (FileAccess) TableName() string {
	return "archiver_file_access"
}

// Decision 用户决策记录
type Decision struct {
	ID         int64  `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	FileID     int64  `gorm:"column:file_id;not null;index:idx_decision_file_user,priority:1" json:"file_id"`
	UserID     string `gorm:"column:user_id;size:64;not null;index:idx_decision_file_user,priority:2;index:idx_decision_user" json:"user_id"`
	FilePath   string `gorm:"column:file_path;size:4000;not null;default:''" json:"file_path"`
	Decision   string `gorm:"column:decision;size:32;not null" json:"decision"`
	NotifiedAt int64  `gorm:"column:notified_at;not null;default:0" json:"notified_at"`
	DecidedAt  *int64 `gorm:"column:decided_at" json:"decided_at,omitempty"`
}

func (Decision) TableName() string {
	return "archiver_decisions"
}
