package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// S3ObjectStore stores blobs in an Amazon S3 (or S3 compatible) bucket
type S3ObjectStore struct {
	client *s3.S3
	bucket string
	region string
	prefix string
}

// NewS3ObjectStore creates a new S3ObjectStore instance
func NewS3ObjectStore(config *S3Config) (*S3ObjectStore, error) {
	if config == nil {
		return nil, NewValidationError("S3 storage configuration is required", nil)
	}

	if err := config.Validate(); err != nil {
		return nil, NewValidationError("invalid S3 storage configuration", err)
	}

	awsConfig := &aws.Config{
		Region: aws.String(config.Region),
		Credentials: credentials.NewStaticCredentials(
			config.AccessKey,
			config.SecretKey,
			"", // token
		),
	}
	if config.Endpoint != "" {
		awsConfig.Endpoint = aws.String(config.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, NewStorageError("failed to create AWS session", err)
	}

	return &S3ObjectStore{
		client: s3.New(sess),
		bucket: config.Bucket,
		region: config.Region,
		prefix: normalizePrefix(config.Prefix),
	}, nil
}

// EnsureContainer creates the bucket if it does not exist
func (s *S3ObjectStore) EnsureContainer(ctx context.Context) error {
	_, err := s.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err == nil {
		return nil
	}
	if !isS3NotFound(err) {
		return classifyS3Error(fmt.Sprintf("failed to access bucket %s", s.bucket), err)
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(s.bucket)}
	if s.region != "" && s.region != "us-east-1" {
		input.CreateBucketConfiguration = &s3.CreateBucketConfiguration{
			LocationConstraint: aws.String(s.region),
		}
	}
	if _, err := s.client.CreateBucketWithContext(ctx, input); err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == s3.ErrCodeBucketAlreadyOwnedByYou {
			return nil
		}
		return classifyS3Error(fmt.Sprintf("failed to create bucket %s", s.bucket), err)
	}
	return nil
}

// Upload writes data under name, overwriting any existing object
func (s *S3ObjectStore) Upload(ctx context.Context, name string, data []byte) error {
	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.prefix + name),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return classifyS3Error(fmt.Sprintf("failed to upload %s to S3", name), err)
	}
	return nil
}

// Download reads the object stored under name
func (s *S3ObjectStore) Download(ctx context.Context, name string) ([]byte, error) {
	result, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + name),
	})
	if err != nil {
		return nil, classifyS3Error(fmt.Sprintf("failed to download %s from S3", name), err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, NewNetworkError(fmt.Sprintf("failed to read %s", name), err)
	}
	return data, nil
}

// List returns every object under the configured prefix
func (s *S3ObjectStore) List(ctx context.Context) ([]ObjectInfo, error) {
	var objects []ObjectInfo

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	}

	err := s.client.ListObjectsV2PagesWithContext(ctx, input,
		func(page *s3.ListObjectsV2Output, lastPage bool) bool {
			for _, obj := range page.Contents {
				name := strings.TrimPrefix(aws.StringValue(obj.Key), s.prefix)
				if name == "" || strings.Contains(name, "/") {
					continue
				}
				objects = append(objects, ObjectInfo{
					Name:    name,
					Size:    aws.Int64Value(obj.Size),
					ModTime: aws.TimeValue(obj.LastModified),
				})
			}
			return true
		})
	if err != nil {
		return nil, classifyS3Error("failed to list objects from S3", err)
	}

	return objects, nil
}

// Delete removes the object stored under name
func (s *S3ObjectStore) Delete(ctx context.Context, name string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + name),
	})
	if err != nil {
		return classifyS3Error(fmt.Sprintf("failed to delete %s from S3", name), err)
	}
	return nil
}

// GetBucket returns the bucket name
func (s *S3ObjectStore) GetBucket() string {
	return s.bucket
}

func isS3NotFound(err error) bool {
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) && reqErr.StatusCode() == http.StatusNotFound {
		return true
	}
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchBucket, s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}

func classifyS3Error(message string, err error) error {
	if isS3NotFound(err) {
		return NewNotFoundError(message, err)
	}
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) {
		switch reqErr.StatusCode() {
		case http.StatusForbidden, http.StatusUnauthorized:
			return NewPermissionError(message, err)
		}
	}
	return NewStorageError(message, err)
}

// normalizePrefix makes a non-empty key prefix end in a single slash
func normalizePrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}
