package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sanderdlm/betascrubber/internal/domain"
	"github.com/sanderdlm/betascrubber/internal/identity"
	"github.com/sanderdlm/betascrubber/internal/storage"
	"github.com/sanderdlm/betascrubber/internal/storage/storagetest"
)

type fakeObject struct {
	data     []byte
	modified time.Time
}

// fakeS3 is an in-memory ObjectAPI. Each write advances its clock by one
// second so modification order is deterministic.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]*fakeObject
	clock   time.Time

	// FailList makes every ListObjectsV2 call fail.
	FailList bool
	// FailPut makes PutObject fail for keys containing the substring.
	FailPut string
}

var _ ObjectAPI = (*fakeS3)(nil)

func newFakeS3() *fakeS3 {
	return &fakeS3{
		objects: make(map[string]*fakeObject),
		clock:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (f *fakeS3) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func (f *fakeS3) PutObject(ctx context.Context, in *awss3.PutObjectInput, _ ...func(*awss3.Options)) (*awss3.PutObjectOutput, error) {
	key := aws.ToString(in.Key)
	if f.FailPut != "" && strings.Contains(key, f.FailPut) {
		return nil, errors.New("put failed")
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = &fakeObject{data: data, modified: f.tick()}
	return &awss3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *awss3.GetObjectInput, _ ...func(*awss3.Options)) (*awss3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &awss3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(obj.data))}, nil
}

func (f *fakeS3) CopyObject(ctx context.Context, in *awss3.CopyObjectInput, _ ...func(*awss3.Options)) (*awss3.CopyObjectOutput, error) {
	source, err := url.PathUnescape(aws.ToString(in.CopySource))
	if err != nil {
		return nil, err
	}
	_, srcKey, _ := strings.Cut(source, "/")

	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[srcKey]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	f.objects[aws.ToString(in.Key)] = &fakeObject{data: obj.data, modified: f.tick()}
	return &awss3.CopyObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *awss3.DeleteObjectInput, _ ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &awss3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *awss3.ListObjectsV2Input, _ ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error) {
	if f.FailList {
		return nil, errors.New("connection reset by peer")
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	prefix := aws.ToString(in.Prefix)
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := &awss3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, k := range keys {
		modified := f.objects[k].modified
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k), LastModified: &modified})
	}
	return out, nil
}

func (f *fakeS3) setModified(prefix string, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, obj := range f.objects {
		if strings.HasPrefix(k, prefix) {
			obj.modified = at
		}
	}
}

func (f *fakeS3) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok
}

type testStore struct {
	*Store
	fake *fakeS3
}

func newTestStore(t *testing.T) *testStore {
	t.Helper()
	fake := newFakeS3()
	s, err := NewStore(fake, Options{
		Bucket:    "frames",
		Endpoint:  "https://ams3.digitaloceanspaces.com",
		PublicURL: "https://frames.ams3.cdn.digitaloceanspaces.com",
		WorkDir:   t.TempDir(),
	}, zap.NewNop())
	require.NoError(t, err)
	return &testStore{Store: s, fake: fake}
}

func TestContract(t *testing.T) {
	storagetest.Run(t, storagetest.Harness{
		New: func(t *testing.T) storage.Store { return newTestStore(t) },
		SetFinalizedAt: func(t *testing.T, s storage.Store, id string, at time.Time) {
			s.(*testStore).fake.setModified(bucketPrefix(id, domain.BucketFinal), at)
		},
	})
}

func TestNewStore_RequiresBucket(t *testing.T) {
	_, err := NewStore(newFakeS3(), Options{WorkDir: t.TempDir()}, zap.NewNop())
	assert.Error(t, err)
}

func TestIngest_UploadsAndRemovesLocal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := identity.Encode("https://example.com/v")

	loc, err := s.Provision(ctx, id, "T")
	require.NoError(t, err)
	assert.Equal(t, id+"/frames/", loc.Frames)
	assert.Equal(t, id+"/final/", loc.Final)

	storagetest.WriteFrames(t, loc.WorkDir, 1, 2)

	n, err := s.IngestCandidates(ctx, id, loc.WorkDir)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, s.fake.has(id+"/frames/frame_0001.jpg"))
	assert.NoDirExists(t, loc.WorkDir)
}

func TestIngest_PartialFailure(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := identity.Encode("https://example.com/v")

	loc, err := s.Provision(ctx, id, "T")
	require.NoError(t, err)
	storagetest.WriteFrames(t, loc.WorkDir, 1, 2, 3)
	s.fake.FailPut = "frame_0002"

	n, err := s.IngestCandidates(ctx, id, loc.WorkDir)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// The failed frame stays on disk.
	assert.FileExists(t, filepath.Join(loc.WorkDir, "frame_0002.jpg"))
}

func TestListingFailuresAreEmptyResults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := identity.Encode("https://example.com/v")

	loc, err := s.Provision(ctx, id, "T")
	require.NoError(t, err)
	storagetest.WriteFrames(t, loc.WorkDir, 1)
	_, err = s.IngestCandidates(ctx, id, loc.WorkDir)
	require.NoError(t, err)

	s.fake.FailList = true

	assert.False(t, s.FrameCandidatesExist(ctx, id))
	assert.False(t, s.FinalFramesExist(ctx, id))
	assert.Nil(t, s.ListFrames(ctx, id, domain.BucketFrames))
	assert.Nil(t, s.RecentlyFinalized(ctx, 5))
}

func TestFrameURLs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := identity.Encode("https://example.com/v")

	loc, err := s.Provision(ctx, id, "T")
	require.NoError(t, err)
	storagetest.WriteFrames(t, loc.WorkDir, 1)
	_, err = s.IngestCandidates(ctx, id, loc.WorkDir)
	require.NoError(t, err)

	frames := s.ListFrames(ctx, id, domain.BucketFrames)
	require.Len(t, frames, 1)
	assert.Equal(t, "https://frames.ams3.cdn.digitaloceanspaces.com/"+id+"/frames/frame_0001.jpg", frames[0].URL)
}

func TestDefaultPublicURL(t *testing.T) {
	s, err := NewStore(newFakeS3(), Options{
		Bucket:   "frames",
		Endpoint: "https://ams3.digitaloceanspaces.com/",
		WorkDir:  t.TempDir(),
	}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "https://ams3.digitaloceanspaces.com/frames/a/final/b.jpg", s.objectURL("a/final/b.jpg"))
}
