// Package codec packs a single file into a zip artifact and back.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
)

var (
	ErrEmptyArtifact = errors.New("codec: artifact has no entries")
	ErrUnsafeEntry   = errors.New("codec: entry escapes target directory")
	ErrSizeOverflow  = errors.New("codec: declared size exceeds int64")
)

// Zip 基于 klauspost/compress 的 zip 编解码器
type Zip struct {
	level    int
	modified func() time.Time
}

// Option 编解码器选项
type Option func(*Zip)

// WithLevel sets the deflate level (flate.BestSpeed .. flate.BestCompression).
func WithLevel(level int) Option {
	return func(z *Zip) {
		z.level = level
	}
}

// WithClock overrides the entry modification time source.
func WithClock(now func() time.Time) Option {
	return func(z *Zip) {
		z.modified = now
	}
}

func NewZip(opts ...Option) *Zip {
	z := &Zip{level: flate.DefaultCompression, modified: time.Now}
	for _, opt := range opts {
		opt(z)
	}
	return z
}

// Compress 压缩为只包含一个条目 name 的 zip
func (z *Zip) Compress(name string, data []byte) ([]byte, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("codec: invalid entry name %q", name)
	}

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	w.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, z.level)
	})

	fw, err := w.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: z.modified(),
	})
	if err != nil {
		return nil, fmt.Errorf("codec: create entry: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return nil, fmt.Errorf("codec: write entry: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("codec: finish archive: %w", err)
	}
	return buf.Bytes(), nil
}

// UncompressedSize 从中央目录读取所有条目的解压后大小之和
func (z *Zip) UncompressedSize(artifact []byte) (int64, error) {
	r, err := open(artifact)
	if err != nil {
		return 0, err
	}
	// 中央目录的大小由制品声明，求和前逐项检查，避免回绕成负数
	var total uint64
	for _, f := range r.File {
		if f.UncompressedSize64 > math.MaxInt64-total {
			return 0, fmt.Errorf("%w: %s", ErrSizeOverflow, f.Name)
		}
		total += f.UncompressedSize64
	}
	return int64(total), nil
}

// Extract 解压到 dir，拒绝越出 dir 的条目
func (z *Zip) Extract(artifact []byte, dir string) error {
	r, err := open(artifact)
	if err != nil {
		return err
	}

	root, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	for _, f := range r.File {
		target := filepath.Join(root, filepath.FromSlash(f.Name))
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return fmt.Errorf("%w: %s", ErrUnsafeEntry, f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o700); err != nil {
				return err
			}
			continue
		}
		if err := extractFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func open(artifact []byte) (*zip.Reader, error) {
	r, err := zip.NewReader(bytes.NewReader(artifact), int64(len(artifact)))
	if err != nil {
		return nil, fmt.Errorf("codec: read central directory: %w", err)
	}
	if len(r.File) == 0 {
		return nil, ErrEmptyArtifact
	}
	return r, nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o700); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("codec: open entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	// 限制写入量，防止中央目录声明的大小与实际内容不符
	n, err := io.Copy(out, io.LimitReader(rc, int64(f.UncompressedSize64)+1))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("codec: extract entry %s: %w", f.Name, err)
	}
	if n != int64(f.UncompressedSize64) {
		return fmt.Errorf("codec: entry %s size mismatch", f.Name)
	}
	return nil
}
