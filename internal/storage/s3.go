// Package storage provides bucket operations against S3-compatible object
// stores (Scaleway Object Storage, Exoscale SOS).
package storage

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/proprion/proprion/internal/config"
	"github.com/proprion/proprion/internal/logging"
)

// BucketStore is the object-storage surface the provisioner needs: bucket
// existence, and bucket-policy read/write for the static-key provider.
type BucketStore interface {
	// EnsureBucket creates the bucket when it does not exist yet.
	EnsureBucket(ctx context.Context, bucket string) error
	// GetBucketPolicy returns the current policy document and whether one
	// exists. A bucket without a policy is not an error.
	GetBucketPolicy(ctx context.Context, bucket string) ([]byte, bool, error)
	// PutBucketPolicy replaces the bucket policy with the given document.
	PutBucketPolicy(ctx context.Context, bucket string, doc []byte) error
}

// S3Store implements BucketStore with an aws-sdk-go-v2 client pointed at
// the provider's S3-compatible endpoint.
type S3Store struct {
	client *s3.Client
	logger *logging.Logger
}

// NewS3Store builds a store for one provider entry, using the provider's
// admin credentials and its region/zone endpoint. Path-style addressing is
// used so bucket names never have to be DNS-resolvable under the provider
// domain.
func NewS3Store(ctx context.Context, p config.Provider, httpc *nethttp.Client, logger *logging.Logger) (*S3Store, error) {
	accessKey, secretKey := p.ObjectStorageCredentials()
	if accessKey == "" || secretKey == "" {
		return nil, fmt.Errorf("provider has no object storage credentials")
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(p.Location()),
		awsconfig.WithHTTPClient(httpc),
		awsconfig.WithCredentialsProvider(
			awscreds.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	endpoint := p.ObjectStorageEndpoint()
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	return &S3Store{client: client, logger: logger}, nil
}

// EnsureBucket probes the bucket with a single-key listing and creates it
// when the probe reports it missing. Listing instead of HeadBucket keeps
// the probe compatible with stores that return bare 404s without the
// NoSuchBucket code on HEAD.
func (s *S3Store) EnsureBucket(ctx context.Context, bucket string) error {
	_, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(bucket),
		MaxKeys: aws.Int32(1),
	})
	if err == nil {
		s.logger.Debug().Str("bucket", bucket).Msg("bucket exists")
		return nil
	}
	if !isNoSuchBucket(err) {
		return fmt.Errorf("failed to probe bucket %s: %w", bucket, err)
	}

	s.logger.Info().Str("bucket", bucket).Msg("creating bucket")
	if _, err := s.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(bucket),
	}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
	}
	return nil
}

// GetBucketPolicy fetches the bucket policy. Absence of a policy is
// reported via the boolean, not an error.
func (s *S3Store) GetBucketPolicy(ctx context.Context, bucket string) ([]byte, bool, error) {
	out, err := s.client.GetBucketPolicy(ctx, &s3.GetBucketPolicyInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		if isNoSuchBucketPolicy(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get bucket policy for %s: %w", bucket, err)
	}
	if out.Policy == nil {
		return nil, false, nil
	}
	return []byte(*out.Policy), true, nil
}

// PutBucketPolicy replaces the bucket policy with doc.
func (s *S3Store) PutBucketPolicy(ctx context.Context, bucket string, doc []byte) error {
	if _, err := s.client.PutBucketPolicy(ctx, &s3.PutBucketPolicyInput{
		Bucket: aws.String(bucket),
		Policy: aws.String(string(doc)),
	}); err != nil {
		return fmt.Errorf("failed to put bucket policy for %s: %w", bucket, err)
	}
	return nil
}

func isNoSuchBucket(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "NoSuchBucket"
	}
	return false
}

func isNoSuchBucketPolicy(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "NoSuchBucketPolicy"
	}
	return false
}
