package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"esaj-crawler/internal/model"
	"esaj-crawler/internal/oab"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ObjectAPI is the part of the s3 client ObjectStore uses.
type ObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

type S3Options struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

// NewS3Client creates an s3 client, a custom endpoint switches to path style
// addressing so minio and other s3 compatible servers work.
func NewS3Client(ctx context.Context, opts S3Options) (*s3.Client, error) {
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(opts.Region),
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// ObjectStore keeps documents under <prefix>/<case digits>/<docType>_<docId>.pdf in a bucket.
type ObjectStore struct {
	client ObjectAPI
	bucket string
	prefix string
}

func NewObjectStore(client ObjectAPI, bucket, prefix string) ObjectStore {
	return ObjectStore{client: client, bucket: bucket, prefix: prefix}
}

func (o ObjectStore) Location() string {
	return fmt.Sprintf("s3://%s/%s", o.bucket, o.prefix)
}

func (o ObjectStore) Key(caseNumber, docType, docId string) string {
	return path.Join(o.prefix, oab.SanitizeNumeric(caseNumber), fmt.Sprintf("%s_%s.pdf", docType, docId))
}

func (o ObjectStore) HasDocument(ctx context.Context, caseNumber, docType, docId string) (bool, error) {
	_, err := o.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(o.Key(caseNumber, docType, docId)),
	})
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: head object: %w", model.ErrPersistence, err)
	}
	return true, nil
}

func (o ObjectStore) PersistDocument(ctx context.Context, doc model.DocumentRecord) error {
	key := o.Key(doc.CaseNumber, doc.DocType, doc.DocID)
	exists, err := o.HasDocument(ctx, doc.CaseNumber, doc.DocType, doc.DocID)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", model.ErrAlreadyStored, key)
	}

	_, err = o.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(o.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(doc.Content),
		ContentLength: aws.Int64(int64(len(doc.Content))),
		ContentType:   aws.String("application/pdf"),
		Metadata: map[string]string{
			"doc-uuid":      doc.DocUUID,
			"oab":           doc.RegistrationID,
			"source-url":    doc.SourceURL,
			"downloaded-at": doc.DownloadedAt.UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return fmt.Errorf("%w: put object %s: %w", model.ErrPersistence, key, err)
	}
	return nil
}
