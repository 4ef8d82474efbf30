// Package s3 stores violation evidence snapshots in MinIO and hands back
// opaque object references.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrNoFrame means there was no retained frame for the camera, so nothing
// could be captured.
var ErrNoFrame = errors.New("no frame available for capture")

type Client struct {
	client *minio.Client
	bucket string
}

func NewMinioClient(endpoint, accessKey, secretKey, bucket string) (*Client, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &Client{client: client, bucket: bucket}, nil
}

// EnsureBucket creates the evidence bucket if it does not exist yet.
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.client.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := c.client.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}

// Capture uploads the frame taken at-or-near the confirming timestamp and
// returns its object path. The caller bounds ctx with the capture timeout.
func (c *Client) Capture(ctx context.Context, cameraID string, ts time.Time, frame []byte) (string, error) {
	if len(frame) == 0 {
		return "", ErrNoFrame
	}

	objectPath := fmt.Sprintf("%s/%d.jpg", cameraID, ts.UnixMilli())

	_, err := c.client.PutObject(
		ctx,
		c.bucket,
		objectPath,
		bytes.NewReader(frame),
		int64(len(frame)),
		minio.PutObjectOptions{
			ContentType: "image/jpeg",
		},
	)
	if err != nil {
		return "", fmt.Errorf("failed to save snapshot to S3: %w", err)
	}

	return c.bucket + "/" + objectPath, nil
}
