package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/mahirjain10/image-resizer/internal/logger"
	"github.com/mahirjain10/image-resizer/internal/utils"
)

// GetObject downloads the object into memory.
// A missing object yields an error wrapping ErrObjectNotFound.
func (service *S3Service) GetObject(parentCtx context.Context, bucket string, key string) ([]byte, error) {
	// The child context is cancelled once the body is read, or with the parent
	ctx, cancel := service.withTimeout(parentCtx)
	defer cancel()

	resp, err := service.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, fmt.Errorf("%w: s3://%s/%s: %w", ErrObjectNotFound, bucket, key, err)
		}
		return nil, fmt.Errorf("couldn't download object with key: %s, AWS error: %w", key, err)
	}
	defer resp.Body.Close()

	buffer, err := utils.ReadImageBuffer(resp.Body, service.maxBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to read object data s3://%s/%s: %w", bucket, key, err)
	}

	l := logger.Ctx(parentCtx)
	l.Debug().Str(logger.FieldBucket, bucket).Str(logger.FieldKey, key).Int("bytes", len(buffer)).Msg("download success")
	return buffer, nil
}
