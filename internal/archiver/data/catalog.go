package data

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/lk2023060901/auto-archiver/internal/archiver/biz"
	"github.com/lk2023060901/auto-archiver/internal/archiver/models"
	"github.com/lk2023060901/auto-archiver/internal/pkg/database"
	"github.com/lk2023060901/auto-archiver/internal/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CatalogOptions 目录存储选项
type CatalogOptions struct {
	DefaultQuota  string        // 账户未设置配额时使用
	OwnerCacheLen int           // 文件归属缓存条数
	OwnerCacheTTL time.Duration // 文件归属缓存有效期
}

// CatalogStorage 基于 file_nodes 表和 BlobStore 的文件存储
type CatalogStorage struct {
	db           *database.DB
	blobs        BlobStore
	defaultQuota string
	owners       *expirable.LRU[biz.FileID, biz.UserID]
	logger       *logger.Logger
}

var _ biz.Storage = (*CatalogStorage)(nil)

func NewCatalogStorage(db *database.DB, blobs BlobStore, opts CatalogOptions, log *logger.Logger) *CatalogStorage {
	if opts.OwnerCacheLen <= 0 {
		opts.OwnerCacheLen = 4096
	}
	if opts.OwnerCacheTTL <= 0 {
		opts.OwnerCacheTTL = 10 * time.Minute
	}
	return &CatalogStorage{
		db:           db,
		blobs:        blobs,
		defaultQuota: opts.DefaultQuota,
		owners:       expirable.NewLRU[biz.FileID, biz.UserID](opts.OwnerCacheLen, nil, opts.OwnerCacheTTL),
		logger:       log.Named("catalog"),
	}
}

func (s *CatalogStorage) ResolveByID(ctx context.Context, id biz.FileID) (*biz.Node, error) {
	var po models.FileNode
	if err := s.db.GetDBFromContext(ctx).Where("id = ?", int64(id)).First(&po).Error; err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, biz.ErrNotFound
		}
		return nil, err
	}
	return toNode(&po), nil
}

func (s *CatalogStorage) ResolveByPath(ctx context.Context, owner biz.UserID, p string) (*biz.Node, error) {
	p = biz.JoinPath(p)
	if p == "" {
		return rootNode(owner), nil
	}
	var po models.FileNode
	err := s.db.GetDBFromContext(ctx).Where("owner_id = ? AND path = ?", string(owner), p).First(&po).Error
	if err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, biz.ErrNotFound
		}
		return nil, err
	}
	return toNode(&po), nil
}

// ResolveOwner 查询文件归属，结果带过期缓存
func (s *CatalogStorage) ResolveOwner(ctx context.Context, id biz.FileID) (biz.UserID, error) {
	if owner, ok := s.owners.Get(id); ok {
		return owner, nil
	}
	node, err := s.ResolveByID(ctx, id)
	if err != nil {
		return "", err
	}
	s.owners.Add(id, node.Owner)
	return node.Owner, nil
}

func (s *CatalogStorage) ResolveParent(ctx context.Context, id biz.FileID) (*biz.Node, error) {
	node, err := s.ResolveByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.ResolveByPath(ctx, node.Owner, node.Dir())
}

func (s *CatalogStorage) Read(ctx context.Context, id biz.FileID) ([]byte, error) {
	var po models.FileNode
	if err := s.db.GetDBFromContext(ctx).Where("id = ?", int64(id)).First(&po).Error; err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, biz.ErrNotFound
		}
		return nil, err
	}
	if po.Kind == models.KindDirectory {
		return nil, fmt.Errorf("node %d is a directory", po.ID)
	}
	if po.BlobKey == "" {
		return []byte{}, nil
	}
	return s.blobs.Get(ctx, po.BlobKey)
}

// Create 创建文件，缺失的上级目录会一并创建
func (s *CatalogStorage) Create(ctx context.Context, owner biz.UserID, p string, data []byte) (*biz.Node, error) {
	p = biz.JoinPath(p)
	if p == "" {
		return nil, fmt.Errorf("empty path")
	}
	if _, err := s.ResolveByPath(ctx, owner, p); err == nil {
		return nil, biz.ErrAlreadyExists
	} else if !errors.Is(err, biz.ErrNotFound) {
		return nil, err
	}

	key := ""
	if len(data) > 0 {
		var err error
		if key, err = s.blobs.Put(ctx, data); err != nil {
			return nil, fmt.Errorf("failed to store content: %w", err)
		}
	}

	node := &biz.Node{Kind: biz.NodeFile, Owner: owner, Path: p}
	po := &models.FileNode{
		OwnerID:    string(owner),
		Path:       p,
		Name:       baseName(p),
		Kind:       models.KindFile,
		Size:       int64(len(data)),
		BlobKey:    key,
		ModifiedAt: time.Now().Unix(),
	}
	err := s.db.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		if err := s.mkdirs(tx, owner, node.Dir()); err != nil {
			return err
		}
		return tx.Create(po).Error
	})
	if err != nil {
		if key != "" {
			if derr := s.blobs.Delete(ctx, key); derr != nil {
				s.logger.WithContext(ctx).Warn("drop orphan blob failed", zap.String("key", key), zap.Error(derr))
			}
		}
		if database.IsDuplicateKeyError(err) {
			return nil, biz.ErrAlreadyExists
		}
		return nil, err
	}
	return toNode(po), nil
}

// mkdirs 逐级创建目录节点；路径上存在同名文件时报错
func (s *CatalogStorage) mkdirs(tx *gorm.DB, owner biz.UserID, dir string) error {
	if dir == "" {
		return nil
	}
	parts := strings.Split(dir, "/")
	for i := range parts {
		p := strings.Join(parts[:i+1], "/")
		var existing models.FileNode
		err := tx.Where("owner_id = ? AND path = ?", string(owner), p).First(&existing).Error
		if err == nil {
			if existing.Kind != models.KindDirectory {
				return fmt.Errorf("%w: %s is a file", biz.ErrAlreadyExists, p)
			}
			continue
		}
		if !database.IsRecordNotFoundError(err) {
			return err
		}
		err = tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.FileNode{
			OwnerID:    string(owner),
			Path:       p,
			Name:       parts[i],
			Kind:       models.KindDirectory,
			ModifiedAt: time.Now().Unix(),
		}).Error
		if err != nil {
			return err
		}
	}
	return nil
}

// Delete 删除文件或空目录
func (s *CatalogStorage) Delete(ctx context.Context, id biz.FileID) error {
	var po models.FileNode
	db := s.db.GetDBFromContext(ctx)
	if err := db.Where("id = ?", int64(id)).First(&po).Error; err != nil {
		if database.IsRecordNotFoundError(err) {
			return biz.ErrNotFound
		}
		return err
	}

	if po.Kind == models.KindDirectory {
		var children int64
		if err := db.Model(&models.FileNode{}).
			Where("owner_id = ? AND path LIKE ? ESCAPE '\\'", po.OwnerID, likePrefix(po.Path)).
			Count(&children).Error; err != nil {
			return err
		}
		if children > 0 {
			return fmt.Errorf("directory %s is not empty", po.Path)
		}
	}

	if err := db.Delete(&models.FileNode{}, po.ID).Error; err != nil {
		return err
	}
	s.owners.Remove(id)

	if po.BlobKey != "" {
		if err := s.blobs.Delete(ctx, po.BlobKey); err != nil {
			s.logger.WithContext(ctx).Warn("delete blob failed", zap.String("key", po.BlobKey), zap.Error(err))
		}
	}
	return nil
}

// FolderSize 统计 prefix 下所有文件的字节数，prefix 为空表示整个账户
func (s *CatalogStorage) FolderSize(ctx context.Context, owner biz.UserID, prefix string) (int64, error) {
	prefix = biz.JoinPath(prefix)
	var total int64
	err := s.db.GetDBFromContext(ctx).Model(&models.FileNode{}).
		Select("COALESCE(SUM(size), 0)").
		Where("owner_id = ? AND kind = ?", string(owner), models.KindFile).
		Scopes(database.WhereIf(prefix != "", "path LIKE ? ESCAPE '\\'", likePrefix(prefix))).
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (s *CatalogStorage) QuotaString(ctx context.Context, owner biz.UserID) (string, error) {
	acc, err := s.Account(ctx, owner)
	if err != nil {
		return "", err
	}
	if acc == nil || acc.Quota == "" {
		return s.defaultQuota, nil
	}
	return acc.Quota, nil
}

// Accounts 返回有账户记录或拥有文件的所有用户
func (s *CatalogStorage) Accounts(ctx context.Context) ([]biz.UserID, error) {
	db := s.db.GetDBFromContext(ctx)

	var registered, owners []string
	if err := db.Model(&models.Account{}).Pluck("user_id", &registered).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.FileNode{}).Distinct("owner_id").Pluck("owner_id", &owners).Error; err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(registered)+len(owners))
	var out []biz.UserID
	for _, u := range append(registered, owners...) {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, biz.UserID(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Account 返回账户记录，不存在时返回 nil, nil
func (s *CatalogStorage) Account(ctx context.Context, user biz.UserID) (*models.Account, error) {
	var acc models.Account
	err := s.db.GetDBFromContext(ctx).Where("user_id = ?", string(user)).First(&acc).Error
	if err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, nil
		}
		return nil, err
	}
	return &acc, nil
}

// SaveAccount 创建或更新账户
func (s *CatalogStorage) SaveAccount(ctx context.Context, acc *models.Account) error {
	return s.db.GetDBFromContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "email", "quota"}),
	}).Create(acc).Error
}

func rootNode(owner biz.UserID) *biz.Node {
	return &biz.Node{Kind: biz.NodeDirectory, Owner: owner}
}

func toNode(po *models.FileNode) *biz.Node {
	kind := biz.NodeFile
	if po.Kind == models.KindDirectory {
		kind = biz.NodeDirectory
	}
	return &biz.Node{
		Kind:       kind,
		ID:         biz.FileID(po.ID),
		Owner:      biz.UserID(po.OwnerID),
		Path:       po.Path,
		Name:       po.Name,
		Size:       po.Size,
		ModifiedAt: time.Unix(po.ModifiedAt, 0).UTC(),
	}
}

func baseName(p string) string {
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}

// likePrefix 生成匹配 prefix 下所有路径的 LIKE 模式
func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "/%"
}
