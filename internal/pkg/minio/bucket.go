package minio

import (
	"context"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

// EnsureBucket creates the bucket when it does not exist yet
func (c *Client) EnsureBucket(ctx context.Context, bucketName string) error {
	if err := c.checkClosed(); err != nil {
		return err
	}
	if err := ValidateBucketName(bucketName); err != nil {
		return WrapError("EnsureBucket", err, bucketName, "")
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	exists, err := c.client.BucketExists(ctx, bucketName)
	if err != nil {
		return WrapError("BucketExists", err, bucketName, "")
	}
	if exists {
		return nil
	}

	err = c.client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{Region: c.config.Region})
	if err != nil && !IsBucketAlreadyExists(err) {
		return WrapError("MakeBucket", err, bucketName, "")
	}

	c.logger.Info("bucket created", zap.String("bucket", bucketName))
	return nil
}
