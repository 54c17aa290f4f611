package aws

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/mahirjain10/image-resizer/internal/logger"
)

var ErrObjectNotFound = errors.New("object not found")

// Creating Dependency
type S3Service struct {
	client   S3API
	timeout  time.Duration
	maxBytes int64
}

// Using Constructor Pattern to initalize our s3Service.
// A zero timeout leaves deadlines to the caller's context; a zero maxBytes disables the body cap.
func NewS3Service(client S3API, timeout time.Duration, maxBytes int64) *S3Service {
	return &S3Service{client: client, timeout: timeout, maxBytes: maxBytes}
}

func (service *S3Service) withTimeout(parentCtx context.Context) (context.Context, context.CancelFunc) {
	if service.timeout <= 0 {
		return context.WithCancel(parentCtx)
	}
	return context.WithTimeout(parentCtx, service.timeout)
}

func (service *S3Service) PutObject(parentCtx context.Context, bucket string, key string, body []byte, contentType string) error {
	ctx, cancel := service.withTimeout(parentCtx)
	defer cancel()

	// Input Options
	input := &s3.PutObjectInput{
		Bucket:            aws.String(bucket),
		Key:               aws.String(key),
		Body:              bytes.NewReader(body),
		ContentLength:     aws.Int64(int64(len(body))),
		ChecksumAlgorithm: types.ChecksumAlgorithmSha256,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := service.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("couldn't upload object to s3://%s/%s: %w", bucket, key, err)
	}

	l := logger.Ctx(parentCtx)
	l.Debug().Str(logger.FieldBucket, bucket).Str(logger.FieldKey, key).Int("bytes", len(body)).Msg("upload success")
	return nil
}

func isNoSuchKey(err error) bool {
	var nsk *types.NoSuchKey
	return errors.As(err, &nsk)
}
