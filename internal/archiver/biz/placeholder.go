package biz

import (
	"encoding/json"
	"path"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Placeholder 归档后留在原位置的占位文件内容
type Placeholder struct {
	OriginalName   string
	ArchivedAt     time.Time
	ArchivedFileID FileID
	ArchivedPath   string
	OriginalPath   string
	Owner          UserID
}

type placeholderJSON struct {
	OriginalName   string `json:"original_name"`
	ArchivedAt     int64  `json:"archived_at"`
	ArchivedFileID int64  `json:"archived_file_id"`
	ArchivedPath   string `json:"archived_path"`
	OriginalPath   string `json:"original_path"`
	Owner          string `json:"owner"`
}

// EncodePlaceholder 序列化占位文件
func EncodePlaceholder(p *Placeholder) ([]byte, error) {
	return json.MarshalIndent(placeholderJSON{
		OriginalName:   p.OriginalName,
		ArchivedAt:     p.ArchivedAt.Unix(),
		ArchivedFileID: int64(p.ArchivedFileID),
		ArchivedPath:   p.ArchivedPath,
		OriginalPath:   p.OriginalPath,
		Owner:          string(p.Owner),
	}, "", "    ")
}

// DecodePlaceholder 解析占位文件，缺少字段或格式错误时返回 ErrInvalidPlaceholder
func DecodePlaceholder(raw []byte) (*Placeholder, error) {
	if !gjson.ValidBytes(raw) {
		return nil, ErrInvalidPlaceholder
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return nil, ErrInvalidPlaceholder
	}

	fields := gjson.GetManyBytes(raw, "original_name", "archived_at", "archived_file_id", "archived_path", "original_path", "owner")
	name, at, artifactID, artifactPath, originalPath, owner := fields[0], fields[1], fields[2], fields[3], fields[4], fields[5]

	if name.Type != gjson.String || originalPath.Type != gjson.String || owner.Type != gjson.String {
		return nil, ErrInvalidPlaceholder
	}
	if name.Str == "" || originalPath.Str == "" || owner.Str == "" {
		return nil, ErrInvalidPlaceholder
	}
	if strings.ContainsAny(name.Str, `/\`) || name.Str == "." || name.Str == ".." {
		return nil, ErrInvalidPlaceholder
	}
	if path.Base(originalPath.Str) != name.Str {
		return nil, ErrInvalidPlaceholder
	}
	if artifactID.Int() <= 0 && artifactPath.Str == "" {
		return nil, ErrInvalidPlaceholder
	}

	p := &Placeholder{
		OriginalName:   name.Str,
		ArchivedFileID: FileID(artifactID.Int()),
		ArchivedPath:   artifactPath.Str,
		OriginalPath:   strings.Trim(originalPath.Str, "/"),
		Owner:          UserID(owner.Str),
	}
	if at.Exists() {
		p.ArchivedAt = time.Unix(at.Int(), 0).UTC()
	}
	return p, nil
}
