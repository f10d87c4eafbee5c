package biz

import (
	"path"
	"strconv"
	"strings"
	"time"
)

// FileID 文件存储中的文件标识
type FileID int64

// AccountFileID 账户级决策使用的保留 fileId
const AccountFileID FileID = 0

func (id FileID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// UserID 账户标识
type UserID string

// NodeKind 节点类型
type NodeKind int

const (
	NodeFile NodeKind = iota
	NodeDirectory
)

func (k NodeKind) String() string {
	if k == NodeDirectory {
		return "directory"
	}
	return "file"
}

// Node 存储层解析出的节点，Kind 为 NodeFile 或 NodeDirectory
type Node struct {
	Kind       NodeKind
	ID         FileID
	Owner      UserID
	Path       string // 相对账户根目录的路径，根目录为 ""
	Name       string
	Size       int64
	ModifiedAt time.Time
}

func (n *Node) IsDir() bool {
	return n.Kind == NodeDirectory
}

// Dir 返回节点所在目录的路径
func (n *Node) Dir() string {
	dir := path.Dir(n.Path)
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}

// JoinPath joins owner-relative path segments, dropping empties.
func JoinPath(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "/")
}

// AccessRecord 访问记录，每个被跟踪的文件一条
type AccessRecord struct {
	FileID       FileID
	OwnerID      UserID
	LastAccessed time.Time
	IsPinned     bool
}

// Decision 通知决策
type Decision string

const (
	DecisionPending               Decision = "pending"
	DecisionExtend                Decision = "extend"
	DecisionExtend7Days           Decision = "extend_7days"
	DecisionIgnore                Decision = "ignore"
	DecisionArchiveNow            Decision = "archive_now"
	DecisionSkipArchive           Decision = "skip_archive"
	DecisionStorageWarningPending Decision = "storage_warning_pending"
)

// StorageWarningPath is the file_path marker of account-level decision rows.
const StorageWarningPath = "storage_warning"

// IsPending reports whether d still waits for the user.
func (d Decision) IsPending() bool {
	return d == DecisionPending || d == DecisionStorageWarningPending
}

// DecisionRecord 通知与用户决策记录
type DecisionRecord struct {
	ID         int64
	FileID     FileID
	UserID     UserID
	FilePath   string
	Decision   Decision
	NotifiedAt time.Time
	DecidedAt  time.Time // 零值表示尚未决策
}

func (r *DecisionRecord) IsDecided() bool {
	return !r.DecidedAt.IsZero()
}

// DecisionStatistics 用户决策统计
type DecisionStatistics struct {
	Counts map[Decision]int64 `json:"counts"`
	Total  int64              `json:"total"`
}

// Cursor is a keyset position in (last_accessed, file_id) order.
type Cursor struct {
	LastAccessed time.Time
	FileID       FileID
}

// IdleQuery 空闲文件查询条件，结果按 last_accessed 升序
type IdleQuery struct {
	Owner UserID // 为空表示所有账户

	// last_accessed < Before, or <= when InclusiveBefore is set
	Before          time.Time
	InclusiveBefore bool
	// last_accessed > After; zero means unbounded
	After time.Time

	Exclude []FileID
	Cursor  *Cursor
	Limit   int
}

// NextCursor returns the cursor after the last record of a page.
func NextCursor(page []*AccessRecord) *Cursor {
	if len(page) == 0 {
		return nil
	}
	last := page[len(page)-1]
	return &Cursor{LastAccessed: last.LastAccessed, FileID: last.FileID}
}
