package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Store is a production Store backed by an S3-compatible bucket. ETags
// map directly onto S3 object ETags; conditional writes use the native
// If-Match/If-None-Match PutObject parameters rather than a read-modify-write
// dance.
type S3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store wraps an already-configured S3 client.
func NewS3Store(client *s3.Client, bucket string) *S3Store {
	return &S3Store{client: client, bucket: bucket}
}

// Get implements Store.
func (s *S3Store) Get(ctx context.Context, key string) (*Object, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("objectstore: s3 get %s: %w", key, err)
	}
	defer out.Body.Close()
	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, err
	}
	return &Object{Body: body, ETag: cleanETag(aws.ToString(out.ETag))}, nil
}

// Put implements Store using S3's native conditional PutObject parameters.
func (s *S3Store) Put(ctx context.Context, key string, body []byte, opts PutOptions) (*Object, error) {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	}
	if opts.IfNoneMatch {
		input.IfNoneMatch = aws.String("*")
	}
	if opts.IfMatchETag != "" {
		input.IfMatch = aws.String(quoteETag(opts.IfMatchETag))
	}

	out, err := s.client.PutObject(ctx, input)
	if err != nil {
		if isPreconditionFailed(err) {
			return nil, ErrPreconditionFailed
		}
		return nil, fmt.Errorf("objectstore: s3 put %s: %w", key, err)
	}
	return &Object{Body: body, ETag: cleanETag(aws.ToString(out.ETag))}, nil
}

// Delete implements Store.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("objectstore: s3 delete %s: %w", key, err)
	}
	return nil
}

// List implements Store via ListObjectsV2, paginated with continuation tokens.
func (s *S3Store) List(ctx context.Context, prefix string, limit int, cursor string) (*ListResult, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}
	if limit > 0 {
		input.MaxKeys = aws.Int32(int32(limit))
	}
	if cursor != "" {
		input.ContinuationToken = aws.String(cursor)
	}

	out, err := s.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("objectstore: s3 list %s: %w", prefix, err)
	}
	keys := make([]string, 0, len(out.Contents))
	for _, obj := range out.Contents {
		keys = append(keys, aws.ToString(obj.Key))
	}
	next := ""
	if out.NextContinuationToken != nil {
		next = aws.ToString(out.NextContinuationToken)
	}
	return &ListResult{Keys: keys, NextCursor: next}, nil
}

func cleanETag(raw string) string {
	return strings.Trim(raw, "\"")
}

func quoteETag(raw string) string {
	if strings.HasPrefix(raw, "\"") {
		return raw
	}
	return "\"" + raw + "\""
}

func isPreconditionFailed(err error) bool {
	var apiErr interface {
		ErrorCode() string
	}
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "PreconditionFailed", "ConditionalRequestConflict":
			return true
		}
	}
	return strings.Contains(err.Error(), "PreconditionFailed") ||
		strings.Contains(err.Error(), "ConditionalRequestConflict")
}
