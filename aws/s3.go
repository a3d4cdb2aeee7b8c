// Package aws defines functions used to interact with the AWS API
package aws

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// S3 can delete at most 1000 objects in one request
const deleteBatchSize = 1000

const urlCacheSize = 4096

type S3Client struct {
	C      *s3.Client
	Bucket *string

	presign *s3.PresignClient
	ttl     time.Duration
	// Signed download URLs, kept for half of their lifetime
	urls *expirable.LRU[string, string]
}

func NewS3() (*S3Client, error) {
	cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			viper.GetString("aws.access_key"),
			viper.GetString("aws.secret_access_key"),
			"",
		)),
	)
	if err != nil {
		return nil, err
	}

	return NewFromConfig(cfg, viper.GetString("aws.bucket"), viper.GetDuration("storage.presign_ttl"), func(o *s3.Options) {
		o.Region = viper.GetString("aws.region")

		if endpoint := viper.GetString("aws.endpoint"); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
}

// NewFromConfig builds a client for bucket and makes sure the bucket exists
func NewFromConfig(cfg aws.Config, bucket string, ttl time.Duration, optFns ...func(*s3.Options)) (*S3Client, error) {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	client := s3.NewFromConfig(cfg, optFns...)

	_, err := client.HeadBucket(context.TODO(), &s3.HeadBucketInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		var apiErr smithy.APIError

		if errors.As(err, &apiErr) {
			if apiErr.ErrorCode() == "NotFound" {
				return nil, fmt.Errorf("bucket '%s' does not exist", bucket)
			}
		}

		return nil, fmt.Errorf("failed to check if bucket exists, %w", err)
	}

	return &S3Client{
		C:       client,
		Bucket:  aws.String(bucket),
		presign: s3.NewPresignClient(client),
		ttl:     ttl,
		urls:    expirable.NewLRU[string, string](urlCacheSize, nil, ttl/2),
	}, nil
}

// IssueUploadURL returns a presigned PUT URL the client uploads the object to
func (s *S3Client) IssueUploadURL(ctx context.Context, key, contentType string) (string, error) {
	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      s.Bucket,
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(s.ttl))
	if err != nil {
		return "", fmt.Errorf("failed to presign upload, %w", err)
	}

	return req.URL, nil
}

// IssueDownloadURL returns a presigned GET URL. inline controls whether
// browsers render the object or save it as filename.
func (s *S3Client) IssueDownloadURL(ctx context.Context, key, filename string, inline bool) (string, error) {
	disposition := ContentDisposition(filename, inline)
	cacheKey := key + "\x00" + disposition

	if url, ok := s.urls.Get(cacheKey); ok {
		return url, nil
	}

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket:                     s.Bucket,
		Key:                        aws.String(key),
		ResponseContentDisposition: aws.String(disposition),
	}, s3.WithPresignExpires(s.ttl))
	if err != nil {
		return "", fmt.Errorf("failed to presign download, %w", err)
	}

	s.urls.Add(cacheKey, req.URL)
	return req.URL, nil
}

// ObjectExists checks whether the client finished uploading key
func (s *S3Client) ObjectExists(ctx context.Context, key string) (bool, error) {
	_, err := s.C.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: s.Bucket,
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}

		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound" {
			return false, nil
		}

		return false, fmt.Errorf("failed to check if object exists, %w", err)
	}

	return true, nil
}

func (s *S3Client) DeleteObject(ctx context.Context, key string) error {
	s.forget(key)

	_, err := s.C.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: s.Bucket,
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object, %w", err)
	}

	return nil
}

// DeleteObjects deletes keys in batches. It keeps going when a batch or a key
// fails and returns the first error.
func (s *S3Client) DeleteObjects(ctx context.Context, keys []string) error {
	var firstErr error

	for start := 0; start < len(keys); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(keys))

		objects := make([]types.ObjectIdentifier, 0, end-start)
		for _, key := range keys[start:end] {
			s.forget(key)
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(key)})
		}

		resp, err := s.C.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: s.Bucket,
			Delete: &types.Delete{
				Objects: objects,
			},
		})
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to delete objects, %w", err)
			}
			continue
		}

		for _, v := range resp.Deleted {
			zap.L().Debug("Deleted item", zap.String("item", aws.ToString(v.Key)))
		}

		if err := batchError(resp.Errors); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// batchError turns the per-key failures of a DeleteObjects response into one
// error. S3 answers 200 even when some keys couldn't be deleted.
func batchError(failed []types.Error) error {
	if len(failed) == 0 {
		return nil
	}

	keys := make([]string, 0, len(failed))
	for _, e := range failed {
		key := aws.ToString(e.Key)

		zap.L().Warn("Failed to delete item",
			zap.String("item", key),
			zap.String("code", aws.ToString(e.Code)),
			zap.String("message", aws.ToString(e.Message)),
		)

		keys = append(keys, fmt.Sprintf("%s (%s)", key, aws.ToString(e.Code)))
	}

	return fmt.Errorf("failed to delete %d objects, %s", len(failed), strings.Join(keys, ", "))
}

func (s *S3Client) forget(key string) {
	prefix := key + "\x00"
	for _, k := range s.urls.Keys() {
		if strings.HasPrefix(k, prefix) {
			s.urls.Remove(k)
		}
	}
}

// ContentDisposition builds the header value S3 returns with a download
func ContentDisposition(filename string, inline bool) string {
	kind := "attachment"
	if inline {
		kind = "inline"
	}

	name := strings.NewReplacer(`"`, "", "\r", "", "\n", "").Replace(filename)
	return fmt.Sprintf(`%s; filename="%s"`, kind, name)
}
