package vault

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"cpd-go/internal/cpd"
	"cpd-go/internal/config"
)

// S3Vault is an S3-backed implementation of the Vault interface.
// Object layout under the configured prefix:
//
//	<prefix>/content/<checksum>
//	<prefix>/metadata/<hostID>.<name>
//	<prefix>/metadata/<hostID>.<name>.version
type S3Vault struct {
	name     string
	bucket   string
	prefix   string
	client   *s3.Client
	uploader *manager.Uploader
}

// NewS3Vault creates an S3 vault from configuration. Credentials come
// from the config when set, otherwise from the default AWS chain
// (environment, shared config, instance role).
func NewS3Vault(cfg config.VaultConfig) (*S3Vault, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3 vault requires s3_bucket to be set")
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg)
	return &S3Vault{
		name:     cfg.Name,
		bucket:   cfg.S3Bucket,
		prefix:   strings.TrimSuffix(cfg.S3Prefix, "/"),
		client:   client,
		uploader: manager.NewUploader(client),
	}, nil
}

// key joins the configured prefix with the given object path.
func (v *S3Vault) key(parts ...string) string {
	p := strings.Join(parts, "/")
	if v.prefix == "" {
		return p
	}
	return v.prefix + "/" + p
}

// PutContent stores content identified by its checksum.
// S3 puts are idempotent by key, so repeated stores are safe.
func (v *S3Vault) PutContent(checksum string, r io.Reader, size int64) error {
	_, err := v.uploader.Upload(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(v.key("content", checksum)),
		Body:   r,
	})
	if err != nil {
		return fmt.Errorf("uploading content %s: %w", checksum, err)
	}
	return nil
}

// GetContent retrieves content by checksum and writes it to w.
func (v *S3Vault) GetContent(checksum string, w io.Writer) error {
	return v.getObject(v.key("content", checksum), w, fmt.Sprintf("content not found: %s", checksum))
}

// PutMetadata stores a named metadata item for a specific host along
// with a version marker object.
func (v *S3Vault) PutMetadata(hostID string, name string, r io.Reader, size int64, version int64) error {
	metaKey := v.key("metadata", hostID+"."+name)
	_, err := v.uploader.Upload(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(metaKey),
		Body:   r,
	})
	if err != nil {
		return fmt.Errorf("uploading metadata %q for host %s: %w", name, hostID, err)
	}

	versionData := strconv.FormatInt(version, 10)
	_, err = v.client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(metaKey + ".version"),
		Body:   bytes.NewReader([]byte(versionData)),
	})
	if err != nil {
		return fmt.Errorf("uploading metadata version: %w", err)
	}
	return nil
}

// GetMetadata retrieves a named metadata item for a specific host and writes it to w.
func (v *S3Vault) GetMetadata(hostID string, name string, w io.Writer) error {
	return v.getObject(
		v.key("metadata", hostID+"."+name), w,
		fmt.Sprintf("metadata %q not found for host: %s", name, hostID),
	)
}

// GetMetadataVersion returns the metadata version for a named item on a host.
// Returns 0 if no version object exists.
func (v *S3Vault) GetMetadataVersion(hostID string, name string) (int64, error) {
	var buf bytes.Buffer
	out, err := v.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(v.key("metadata", hostID+"."+name+".version")),
	})
	if err != nil {
		if isNotFound(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading version object: %w", err)
	}
	defer out.Body.Close()

	if _, err := io.Copy(&buf, out.Body); err != nil {
		return 0, fmt.Errorf("reading version object: %w", err)
	}

	version, err := strconv.ParseInt(strings.TrimSpace(buf.String()), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing version: %w", err)
	}
	return version, nil
}

// ValidateSetup verifies that the bucket is accessible.
func (v *S3Vault) ValidateSetup() error {
	_, err := v.client.HeadBucket(context.Background(), &s3.HeadBucketInput{
		Bucket: aws.String(v.bucket),
	})
	if err != nil {
		return fmt.Errorf("bucket not accessible: %s: %w", v.bucket, err)
	}
	return nil
}

// getObject fetches an object and streams its body to w.
func (v *S3Vault) getObject(key string, w io.Writer, notFoundMsg string) error {
	out, err := v.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%s", notFoundMsg)
		}
		return fmt.Errorf("fetching object %s: %w", key, err)
	}
	defer out.Body.Close()

	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("reading object %s: %w", key, err)
	}
	return nil
}

// isNotFound reports whether err is an S3 missing-object error.
func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}

// Compile-time check that S3Vault implements cpd.Vault interface
var _ cpd.Vault = (*S3Vault)(nil)
