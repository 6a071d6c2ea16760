package contentstore

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// cidMetadataKey is the user metadata key S3-compatible IPFS gateways
// (e.g. Filebase) use to report the CID of a stored object.
const cidMetadataKey = "cid"

type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Options configures an S3Pinner.
type S3Options struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
}

// S3Pinner stores files in a bucket of an S3-compatible pinning gateway and
// reads the CID back from the object's metadata.
type S3Pinner struct {
	client s3API
	bucket string
}

// NewS3Pinner builds an S3 client from static credentials.
func NewS3Pinner(ctx context.Context, opts S3Options) (*S3Pinner, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(opts.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.AccessKey,
			opts.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = true
	})
	return &S3Pinner{client: client, bucket: opts.Bucket}, nil
}

// objectKey keeps uploads of the same filename apart.
func objectKey(name string) string {
	d := time.Now().UTC()
	return fmt.Sprintf("notes/%d/%02d/%s-%s", d.Year(), d.Month(), uuid.NewString(), path.Base(name))
}

// Pin uploads data and returns the CID the gateway assigned to it.
func (p *S3Pinner) Pin(ctx context.Context, name string, data []byte) (string, error) {
	key := objectKey(name)

	_, err := p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(pdfMIME),
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}

	head, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("head object %s: %w", key, err)
	}

	c := head.Metadata[cidMetadataKey]
	if c == "" {
		return "", fmt.Errorf("object %s has no %q metadata", key, cidMetadataKey)
	}
	return c, nil
}
