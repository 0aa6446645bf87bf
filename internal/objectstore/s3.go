package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"minix/internal/config"
	"minix/internal/drive"
)

// s3DeleteBatch is the DeleteObjects per-request key limit.
const s3DeleteBatch = 1000

// S3Store stores blobs in an S3 bucket (or any S3-compatible service).
// Keys are the object path below an optional prefix.
type S3Store struct {
	name       string
	bucket     string
	prefix     string
	region     string
	public     bool
	publicBase string

	client   *s3.Client
	uploader *manager.Uploader
	presign  *s3.PresignClient
}

var _ drive.ObjectStore = (*S3Store)(nil)

// NewS3Store creates an S3 store. Static credentials are used when both key
// fields are set; otherwise the default AWS credential chain applies.
func NewS3Store(ctx context.Context, cfg config.ObjectStoreConfig) (*S3Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKeyID != "" && cfg.S3SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		o.UsePathStyle = cfg.S3UsePathStyle
	})

	return &S3Store{
		name:       cfg.Name,
		bucket:     cfg.S3Bucket,
		prefix:     strings.Trim(cfg.S3Prefix, "/"),
		region:     awsCfg.Region,
		public:     cfg.Public,
		publicBase: strings.TrimSuffix(cfg.BaseURL, "/"),
		client:     client,
		uploader:   manager.NewUploader(client),
		presign:    s3.NewPresignClient(client),
	}, nil
}

func (s *S3Store) key(path string) string {
	if s.prefix == "" {
		return path
	}
	return s.prefix + "/" + path
}

// Put uploads the blob, switching to multipart for large bodies.
func (s *S3Store) Put(ctx context.Context, path string, r io.Reader, size int64, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(path)),
		Body:        r,
		ContentType: aws.String(contentType),
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}
	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("uploading %s: %w", path, err)
	}
	return nil
}

func (s *S3Store) Download(ctx context.Context, path string, w io.Writer) error {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return fmt.Errorf("%w: %s", ErrObjectNotFound, path)
		}
		return fmt.Errorf("downloading %s: %w", path, err)
	}
	defer out.Body.Close()

	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	return nil
}

// Remove deletes the blobs with DeleteObjects. A failed request marks every
// key of its batch as failed; per-key errors are reported individually.
func (s *S3Store) Remove(ctx context.Context, paths []string) map[string]error {
	failed := make(map[string]error)
	byKey := make(map[string]string, len(paths))

	for start := 0; start < len(paths); start += s3DeleteBatch {
		batch := paths[start:min(start+s3DeleteBatch, len(paths))]
		objects := make([]types.ObjectIdentifier, 0, len(batch))
		for _, p := range batch {
			k := s.key(p)
			byKey[k] = p
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(k)})
		}

		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			for _, p := range batch {
				failed[p] = fmt.Errorf("deleting objects: %w", err)
			}
			continue
		}
		for _, e := range out.Errors {
			p, ok := byKey[aws.ToString(e.Key)]
			if !ok {
				continue
			}
			if aws.ToString(e.Code) == "NoSuchKey" {
				continue
			}
			failed[p] = fmt.Errorf("deleting %s: %s: %s", p, aws.ToString(e.Code), aws.ToString(e.Message))
		}
	}
	return failed
}

func (s *S3Store) SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presigning %s: %w", path, err)
	}
	return req.URL, nil
}

// PublicURL uses base_url when configured, else the virtual-hosted bucket URL.
func (s *S3Store) PublicURL(path string) string {
	if s.publicBase != "" {
		return s.publicBase + "/" + escapePath(s.key(path))
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, escapePath(s.key(path)))
}

func (s *S3Store) IsPublic() bool { return s.public }

// ValidateSetup checks that the bucket exists and is reachable.
func (s *S3Store) ValidateSetup(ctx context.Context) error {
	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return fmt.Errorf("bucket %s not accessible: %w", s.bucket, err)
	}
	return nil
}
