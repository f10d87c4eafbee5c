package minio

import (
	"bytes"
	"context"
	"io"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

// ObjectInfo represents object metadata
type ObjectInfo struct {
	Key  string
	Size int64
	ETag string
}

// PutObject uploads data under objectName in bucketName
func (c *Client) PutObject(ctx context.Context, bucketName, objectName string, data []byte, contentType string) (ObjectInfo, error) {
	if err := c.checkClosed(); err != nil {
		return ObjectInfo{}, err
	}
	if err := ValidateObjectName(objectName); err != nil {
		return ObjectInfo{}, WrapError("PutObject", err, bucketName, objectName)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	info, err := c.client.PutObject(ctx, bucketName, objectName, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return ObjectInfo{}, WrapError("PutObject", err, bucketName, objectName)
	}

	c.logger.Debug("object uploaded",
		zap.String("bucket", bucketName),
		zap.String("object", objectName),
		zap.Int64("size", info.Size),
	)

	return ObjectInfo{Key: info.Key, Size: info.Size, ETag: info.ETag}, nil
}

// GetObject downloads the whole object into memory
func (c *Client) GetObject(ctx context.Context, bucketName, objectName string) ([]byte, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	obj, err := c.client.GetObject(ctx, bucketName, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, WrapError("GetObject", err, bucketName, objectName)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, WrapError("GetObject", err, bucketName, objectName)
	}
	return data, nil
}

// StatObject returns object metadata
func (c *Client) StatObject(ctx context.Context, bucketName, objectName string) (ObjectInfo, error) {
	if err := c.checkClosed(); err != nil {
		return ObjectInfo{}, err
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	info, err := c.client.StatObject(ctx, bucketName, objectName, minio.StatObjectOptions{})
	if err != nil {
		return ObjectInfo{}, WrapError("StatObject", err, bucketName, objectName)
	}
	return ObjectInfo{Key: info.Key, Size: info.Size, ETag: info.ETag}, nil
}

// RemoveObject deletes an object; deleting a missing key is not an error
func (c *Client) RemoveObject(ctx context.Context, bucketName, objectName string) error {
	if err := c.checkClosed(); err != nil {
		return err
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := c.client.RemoveObject(ctx, bucketName, objectName, minio.RemoveObjectOptions{}); err != nil {
		return WrapError("RemoveObject", err, bucketName, objectName)
	}
	return nil
}
