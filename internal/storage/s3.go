package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/local/convertdesk/internal/config"
)

// S3Sink uploads results under Prefix/<id>/<name>.
type S3Sink struct {
	client     *s3.Client
	uploader   *manager.Uploader
	bucket     string
	prefix     string
	passphrase string
}

// NewS3Sink loads the default AWS chain; region and static keys from cfg
// override it when set.
func NewS3Sink(ctx context.Context, cfg config.StorageConfig) (*S3Sink, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3 bucket not configured")
	}
	var opts []func(*awscfg.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, awscfg.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		opts = append(opts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")))
	}
	awsCfg, err := awscfg.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	cli := s3.NewFromConfig(awsCfg)
	return &S3Sink{
		client:     cli,
		uploader:   manager.NewUploader(cli),
		bucket:     cfg.S3Bucket,
		prefix:     cfg.S3Prefix,
		passphrase: cfg.Passphrase,
	}, nil
}

// Key returns the object key a result is stored under.
func (s *S3Sink) Key(id, name string) string {
	return path.Join(s.prefix, id, name)
}

func (s *S3Sink) Save(ctx context.Context, id string, obj Object) (string, error) {
	data, name, err := seal(obj, s.passphrase)
	if err != nil {
		return "", err
	}
	key := s.Key(id, name)
	meta := map[string]string{"name": safeName(obj.Name)}
	if s.passphrase != "" {
		meta["encrypted"] = "true"
		meta["encryption-format"] = FormatGCM
	}
	in := &s3.PutObjectInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		Body:     bytes.NewReader(data),
		Metadata: meta,
	}
	if obj.ContentType != "" && s.passphrase == "" {
		in.ContentType = aws.String(obj.ContentType)
	}
	out, err := s.uploader.Upload(ctx, in)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("result upload failed")
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}
	log.Info().Str("op_id", id).Str("key", key).Str("location", out.Location).Bool("encrypted", s.passphrase != "").Msg("uploaded result to S3")
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

// Ping checks that the bucket is reachable with the configured credentials.
func (s *S3Sink) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	return err
}
