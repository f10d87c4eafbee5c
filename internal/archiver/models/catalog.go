package models

// FileNode 文件目录树节点
type FileNode struct {
	ID         int64  `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	OwnerID    string `gorm:"column:owner_id;size:64;not null;uniqueIndex:idx_node_owner_path,priority:1" json:"owner_id"`
	Path       string `gorm:"column:path;size:4000;not null;uniqueIndex:idx_node_owner_path,priority:2" json:"path"`
	Name       string `gorm:"column:name;size:255;not null" json:"name"`
	Kind       int    `gorm:"column:kind;not null;default:0" json:"kind"`
	Size       int64  `gorm:"column:size;not null;default:0" json:"size"`
	BlobKey    string `gorm:"column:blob_key;size:255;not null;default:''" json:"blob_key"`
	ModifiedAt int64  `gorm:"column:modified_at;not null" json:"modified_at"`
}

func (FileNode) TableName() string {
	return "file_nodes"
}

// Node kinds
const (
	KindFile      = 0
	KindDirectory = 1
)

// Account 账户与配额
type Account struct {
	UserID      string `gorm:"column:user_id;primaryKey;size:64" json:"user_id"`
	DisplayName string `gorm:"column:display_name;size:255;not null;default:''" json:"display_name"`
	Email       string `gorm:"column:email;size:255;not null;default:''" json:"email"`
	// Quota 原始配额字符串，如 "10 GB"、"none"；空值使用默认配额
	Quota     string `gorm:"column:quota;size:64;not null;default:''" json:"quota"`
	CreatedAt int64  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (Account) TableName() string {
	return "accounts"
}
