// Package s3 stores job artifacts in an S3-compatible object store
// (AWS S3, DigitalOcean Spaces, MinIO) under {id}/frames/, {id}/final/ and
// {id}/metadata.json.
package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sanderdlm/betascrubber/internal/domain"
	"github.com/sanderdlm/betascrubber/internal/metrics"
	"github.com/sanderdlm/betascrubber/internal/storage"
)

const (
	backendName = "s3"

	// uploadConcurrency bounds parallel object writes per operation.
	uploadConcurrency = 8
)

// ObjectAPI is the subset of *s3.Client the store uses.
type ObjectAPI interface {
	PutObject(ctx context.Context, in *awss3.PutObjectInput, opts ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *awss3.GetObjectInput, opts ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
	CopyObject(ctx context.Context, in *awss3.CopyObjectInput, opts ...func(*awss3.Options)) (*awss3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, in *awss3.DeleteObjectInput, opts ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *awss3.ListObjectsV2Input, opts ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error)
}

var _ storage.Store = (*Store)(nil)

// Options configures the S3 store.
type Options struct {
	Bucket    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	// PublicURL is the base URL objects are readable from. Defaults to
	// {Endpoint}/{Bucket}.
	PublicURL string
	// WorkDir is the local directory for downloads and sampled frames.
	WorkDir string
}

// Store is the S3-compatible artifact store.
type Store struct {
	client    ObjectAPI
	bucket    string
	publicURL string
	workDir   string
	logger    *zap.Logger
}

// NewClient builds an S3 client for opts using static credentials when given.
func NewClient(ctx context.Context, opts Options) (*awss3.Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load config: %w", err)
	}

	return awss3.NewFromConfig(cfg, func(o *awss3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// NewStore creates a store over client.
func NewStore(client ObjectAPI, opts Options, logger *zap.Logger) (*Store, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3: bucket is required")
	}
	if err := os.MkdirAll(opts.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("s3: create work dir: %w", err)
	}

	publicURL := opts.PublicURL
	if publicURL == "" {
		publicURL = strings.TrimRight(opts.Endpoint, "/") + "/" + opts.Bucket
	}

	return &Store{
		client:    client,
		bucket:    opts.Bucket,
		publicURL: strings.TrimRight(publicURL, "/"),
		workDir:   opts.WorkDir,
		logger:    logger,
	}, nil
}

func (s *Store) Name() string { return backendName }

func (s *Store) SourceVideoPath(id, title string) string {
	return filepath.Join(s.workDir, storage.JobDirName(id, title)+".mp4")
}

// Provision creates the local sampling directory. Object prefixes need no
// creation.
func (s *Store) Provision(ctx context.Context, id, title string) (storage.Locations, error) {
	workDir := filepath.Join(s.workDir, storage.JobDirName(id, title)+storage.FramesSuffix)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return storage.Locations{}, fmt.Errorf("s3: provision work dir: %w", err)
	}
	return storage.Locations{
		WorkDir: workDir,
		Frames:  bucketPrefix(id, domain.BucketFrames),
		Final:   bucketPrefix(id, domain.BucketFinal),
	}, nil
}

func (s *Store) FrameCandidatesExist(ctx context.Context, id string) bool {
	return s.hasImage(ctx, bucketPrefix(id, domain.BucketFrames))
}

func (s *Store) FinalFramesExist(ctx context.Context, id string) bool {
	return s.hasImage(ctx, bucketPrefix(id, domain.BucketFinal))
}

// IngestCandidates uploads every image of localDir to {id}/frames/ and
// deletes each local file once its upload succeeded.
func (s *Store) IngestCandidates(ctx context.Context, id, localDir string) (int, error) {
	entries, err := os.ReadDir(localDir)
	if err != nil {
		return 0, fmt.Errorf("s3: read %s: %w", localDir, err)
	}

	var uploaded atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uploadConcurrency)

	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || !storage.IsImage(name) {
			continue
		}
		g.Go(func() error {
			local := filepath.Join(localDir, name)
			data, err := os.ReadFile(local)
			if err != nil {
				s.logger.Warn("Failed to read frame", zap.String("path", local), zap.Error(err))
				return nil
			}
			if err := s.put(gctx, bucketPrefix(id, domain.BucketFrames)+name, data, storage.ContentType(name)); err != nil {
				s.failure("upload", err, zap.String("job_id", id), zap.String("frame", name))
				return nil
			}
			_ = os.Remove(local)
			uploaded.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	// Leave the directory if some uploads failed so they can be inspected.
	if rest, err := os.ReadDir(localDir); err == nil && len(rest) == 0 {
		_ = os.Remove(localDir)
	}

	return int(uploaded.Load()), nil
}

func (s *Store) PromoteToFinal(ctx context.Context, id string, filenames []string) (int, error) {
	var promoted atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uploadConcurrency)

	for _, name := range filenames {
		if !storage.ValidFrameName(name) {
			continue
		}
		g.Go(func() error {
			src := bucketPrefix(id, domain.BucketFrames) + name
			_, err := s.client.CopyObject(gctx, &awss3.CopyObjectInput{
				Bucket:     aws.String(s.bucket),
				CopySource: aws.String(url.PathEscape(s.bucket) + "/" + escapeKey(src)),
				Key:        aws.String(bucketPrefix(id, domain.BucketFinal) + name),
				ACL:        types.ObjectCannedACLPublicRead,
			})
			if err != nil {
				s.failure("promote", err, zap.String("job_id", id), zap.String("frame", name))
				return nil
			}
			promoted.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	return int(promoted.Load()), nil
}

func (s *Store) PurgeCandidates(ctx context.Context, id string, filenames []string) (int, error) {
	purged := 0
	for _, name := range filenames {
		if !storage.ValidFrameName(name) {
			continue
		}
		_, err := s.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(bucketPrefix(id, domain.BucketFrames) + name),
		})
		if err != nil {
			s.failure("purge", err, zap.String("job_id", id), zap.String("frame", name))
			continue
		}
		purged++
	}
	return purged, nil
}

func (s *Store) ListFrames(ctx context.Context, id string, bucket domain.Bucket) []domain.Frame {
	objects, err := s.list(ctx, bucketPrefix(id, bucket))
	if err != nil {
		s.failure("list", err, zap.String("job_id", id), zap.String("bucket", string(bucket)))
		return nil
	}

	var frames []domain.Frame
	for _, obj := range objects {
		name := path.Base(aws.ToString(obj.Key))
		if !storage.IsImage(name) {
			continue
		}
		frames = append(frames, domain.Frame{Filename: name, URL: s.objectURL(aws.ToString(obj.Key))})
	}
	sort.Slice(frames, func(i, j int) bool { return frames[i].Filename < frames[j].Filename })
	return frames
}

// RecentlyFinalized scans the bucket once, grouping final images by job id.
// A job's modification time is that of its newest final image.
func (s *Store) RecentlyFinalized(ctx context.Context, limit int) []domain.RecentJob {
	if limit <= 0 {
		return nil
	}

	objects, err := s.list(ctx, "")
	if err != nil {
		s.failure("recent", err)
		return nil
	}

	byID := make(map[string]*domain.RecentJob)
	for _, obj := range objects {
		key := aws.ToString(obj.Key)
		parts := strings.Split(key, "/")
		if len(parts) != 3 || parts[1] != string(domain.BucketFinal) || !storage.IsImage(parts[2]) {
			continue
		}
		id, name := parts[0], parts[2]
		modified := aws.ToTime(obj.LastModified)

		entry, ok := byID[id]
		if !ok {
			byID[id] = &domain.RecentJob{ID: id, Thumbnail: name, URL: s.objectURL(key), UpdatedAt: modified}
			continue
		}
		if name < entry.Thumbnail {
			entry.Thumbnail = name
			entry.URL = s.objectURL(key)
		}
		if modified.After(entry.UpdatedAt) {
			entry.UpdatedAt = modified
		}
	}

	recent := make([]domain.RecentJob, 0, len(byID))
	for _, entry := range byID {
		recent = append(recent, *entry)
	}
	sort.SliceStable(recent, func(i, j int) bool {
		if !recent[i].UpdatedAt.Equal(recent[j].UpdatedAt) {
			return recent[i].UpdatedAt.After(recent[j].UpdatedAt)
		}
		return recent[i].ID < recent[j].ID
	})
	if len(recent) > limit {
		recent = recent[:limit]
	}

	for i := range recent {
		recent[i].Title = s.Title(ctx, recent[i].ID)
	}
	return recent
}

// SaveMetadata writes {id}/metadata.json.
func (s *Store) SaveMetadata(ctx context.Context, id string, meta domain.Metadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("s3: marshal metadata: %w", err)
	}
	if err := s.put(ctx, id+"/"+storage.MetadataFile, data, "application/json"); err != nil {
		s.failure("metadata", err, zap.String("job_id", id))
		return fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
	}
	return nil
}

// Title reads the title from {id}/metadata.json.
func (s *Store) Title(ctx context.Context, id string) string {
	out, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(id + "/" + storage.MetadataFile),
	})
	if err != nil {
		return ""
	}
	defer out.Body.Close()

	var meta domain.Metadata
	if err := json.NewDecoder(out.Body).Decode(&meta); err != nil {
		return ""
	}
	return meta.Title
}

func (s *Store) hasImage(ctx context.Context, prefix string) bool {
	paginator := awss3.NewListObjectsV2Paginator(s.client, &awss3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			s.failure("exists", err, zap.String("prefix", prefix))
			return false
		}
		for _, obj := range page.Contents {
			if storage.IsImage(aws.ToString(obj.Key)) {
				return true
			}
		}
	}
	return false
}

func (s *Store) list(ctx context.Context, prefix string) ([]types.Object, error) {
	input := &awss3.ListObjectsV2Input{Bucket: aws.String(s.bucket)}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	var objects []types.Object
	paginator := awss3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		objects = append(objects, page.Contents...)
	}
	return objects, nil
}

func (s *Store) put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
		ACL:           types.ObjectCannedACLPublicRead,
	})
	return err
}

func (s *Store) failure(op string, err error, fields ...zap.Field) {
	metrics.StorageErrors.WithLabelValues(backendName, op).Inc()
	s.logger.Warn("S3 operation failed", append(fields, zap.String("op", op), zap.Error(err))...)
}

func (s *Store) objectURL(key string) string {
	return s.publicURL + "/" + escapeKey(key)
}

func bucketPrefix(id string, bucket domain.Bucket) string {
	return id + "/" + string(bucket) + "/"
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
