package s3

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Config describes an S3 compatible endpoint.
type Config struct {
	Endpoint       string `yaml:"endpoint" env:"S3_ENDPOINT"`
	Bucket         string `yaml:"bucket" env:"S3_BUCKET"`
	AccessKey      string `yaml:"access_key" env:"S3_ACCESS_KEY"`
	SecretKey      string `yaml:"secret_key" env:"S3_SECRET_KEY"`
	Region         string `yaml:"region" env:"S3_REGION,default=us-east-1"`
	DisableTLS     bool   `yaml:"disable_tls" env:"S3_DISABLE_TLS"`
	ForcePathStyle bool   `yaml:"force_path_style" env:"S3_FORCE_PATH_STYLE,default=true"`
	// Prefix is the key prefix for mirrored games.
	Prefix string `yaml:"prefix" env:"S3_PREFIX,default=games"`
}

// Enabled reports whether an endpoint was configured.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != ""
}

// Client is a thin wrapper around the AWS SDK v2 S3 client bound to one bucket.
type Client struct {
	api    *s3.Client
	bucket string
}

// NewClient initialises a Client from cfg. Endpoint, bucket and static
// credentials are required.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("S3_ENDPOINT is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("S3_BUCKET is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, errors.New("S3_ACCESS_KEY and S3_SECRET_KEY are required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
		awsconfig.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
	)
	if err != nil {
		return nil, err
	}

	baseEndpoint := normalizeEndpoint(endpoint, cfg.DisableTLS)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.ForcePathStyle
		o.BaseEndpoint = aws.String(baseEndpoint)
	})

	return &Client{api: client, bucket: cfg.Bucket}, nil
}

// Bucket returns the bucket the client writes to.
func (c *Client) Bucket() string {
	if c == nil {
		return ""
	}
	return c.bucket
}

// PutObject uploads data to key with checksum metadata.
func (c *Client) PutObject(ctx context.Context, key string, r io.Reader, size int64, sha256Hex, contentType string) error {
	if c == nil {
		return errors.New("nil client")
	}
	checksum, err := encodeSHA256(sha256Hex)
	if err != nil {
		return err
	}

	input := &s3.PutObjectInput{
		Bucket:            &c.bucket,
		Key:               &key,
		Body:              r,
		ContentLength:     &size,
		ChecksumAlgorithm: s3types.ChecksumAlgorithmSha256,
		ChecksumSHA256:    &checksum,
		Metadata: map[string]string{
			"sha256": sha256Hex,
		},
	}
	if contentType != "" {
		input.ContentType = &contentType
	}
	_, err = c.api.PutObject(ctx, input)
	return err
}

// PutBytes uploads an in-memory object, computing its digest.
func (c *Client) PutBytes(ctx context.Context, key string, data []byte, contentType string) error {
	sum := sha256.Sum256(data)
	return c.PutObject(ctx, key, bytes.NewReader(data), int64(len(data)), hex.EncodeToString(sum[:]), contentType)
}

// DeletePrefix removes every object whose key starts with prefix and
// returns the number of deleted keys.
func (c *Client) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	if c == nil {
		return 0, errors.New("nil client")
	}
	if prefix == "" {
		return 0, errors.New("refusing to delete an empty prefix")
	}

	deleted := 0
	paginator := s3.NewListObjectsV2Paginator(c.api, &s3.ListObjectsV2Input{
		Bucket: &c.bucket,
		Prefix: &prefix,
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return deleted, fmt.Errorf("list %s: %w", prefix, err)
		}
		if len(page.Contents) == 0 {
			continue
		}
		ids := make([]s3types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			ids = append(ids, s3types.ObjectIdentifier{Key: obj.Key})
		}
		out, err := c.api.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: &c.bucket,
			Delete: &s3types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return deleted, fmt.Errorf("delete %s: %w", prefix, err)
		}
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			return deleted, fmt.Errorf("delete %s: %s: %s", aws.ToString(first.Key), aws.ToString(first.Code), aws.ToString(first.Message))
		}
		deleted += len(ids)
	}
	return deleted, nil
}

// Mirror copies uploaded game artifacts into object storage under
// games/<id>/.
type Mirror struct {
	client *Client
	prefix string
}

// NewMirror returns a Mirror writing below prefix ("games" when empty).
func NewMirror(client *Client, prefix string) *Mirror {
	if prefix == "" {
		prefix = "games"
	}
	return &Mirror{client: client, prefix: strings.Trim(prefix, "/")}
}

// ArtifactPrefix is the key prefix holding every object for id.
func (m *Mirror) ArtifactPrefix(id string) string {
	return path.Join(m.prefix, id) + "/"
}

// PutArtifact stores the raw upload archive and cover image when present.
func (m *Mirror) PutArtifact(ctx context.Context, id string, archive, image []byte) error {
	if archive != nil {
		if err := m.client.PutBytes(ctx, m.ArtifactPrefix(id)+"upload.zip", archive, "application/zip"); err != nil {
			return fmt.Errorf("mirror archive: %w", err)
		}
	}
	if image != nil {
		if err := m.client.PutBytes(ctx, m.ArtifactPrefix(id)+"img.png", image, "image/png"); err != nil {
			return fmt.Errorf("mirror image: %w", err)
		}
	}
	return nil
}

// DeleteArtifact removes every mirrored object for id.
func (m *Mirror) DeleteArtifact(ctx context.Context, id string) error {
	_, err := m.client.DeletePrefix(ctx, m.ArtifactPrefix(id))
	return err
}

func normalizeEndpoint(endpoint string, disableTLS bool) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	scheme := "https"
	if disableTLS {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s", scheme, endpoint)
}

func encodeSHA256(hexDigest string) (string, error) {
	if hexDigest == "" {
		return "", errors.New("sha256 digest required")
	}
	raw, err := hex.DecodeString(hexDigest)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
