package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the subset of *s3.Client the stores use.
type S3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// NewS3Client creates an S3 client using the default AWS configuration chain.
func NewS3Client(ctx context.Context) (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

// S3Store lists and reads objects of S3 buckets. Identifiers are
// s3://bucket/key URIs and roots are s3://bucket/prefix URIs.
type S3Store struct {
	client S3API
}

// NewS3Store creates a store backed by client.
func NewS3Store(client S3API) *S3Store {
	return &S3Store{client: client}
}

// List pages through ListObjectsV2 under the root's prefix, one page at a
// time as the lister is drained.
func (s *S3Store) List(ctx context.Context, root string) (Lister, error) {
	bucket, prefix, err := ParseS3URI(root)
	if err != nil {
		return nil, fmt.Errorf("parse root: %w", err)
	}
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	return &s3Lister{pages: p, bucket: bucket}, nil
}

type s3Lister struct {
	pages  *s3.ListObjectsV2Paginator
	bucket string
	keys   []string
}

func (l *s3Lister) Next(ctx context.Context) (string, error) {
	for len(l.keys) == 0 {
		if !l.pages.HasMorePages() {
			return "", io.EOF
		}
		page, err := l.pages.NextPage(ctx)
		if err != nil {
			return "", fmt.Errorf("list s3://%s: %w", l.bucket, err)
		}
		for _, obj := range page.Contents {
			if key := aws.ToString(obj.Key); key != "" && !strings.HasSuffix(key, "/") {
				l.keys = append(l.keys, key)
			}
		}
	}
	key := l.keys[0]
	l.keys = l.keys[1:]
	return "s3://" + l.bucket + "/" + key, nil
}

func (l *s3Lister) Close() error {
	l.keys = nil
	return nil
}

// Open streams an object.
func (s *S3Store) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	bucket, key, err := ParseS3URI(id)
	if err != nil {
		return nil, fmt.Errorf("parse id: %w", err)
	}
	return s.getObject(ctx, bucket, key)
}

func (s *S3Store) getObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("get object s3://%s/%s: %w", bucket, key, ErrNotFound)
		}
		return nil, fmt.Errorf("get object s3://%s/%s: %w", bucket, key, err)
	}
	return resp.Body, nil
}

// S3InventoryStore lists a bucket through its S3 Inventory export instead of
// ListObjectsV2, which is far cheaper for large buckets. Each List fetches
// the manifest afresh and streams the inventory files it names.
type S3InventoryStore struct {
	objects     *S3Store
	manifestURI string
}

// NewS3InventoryStore creates a store reading the manifest at manifestURI.
func NewS3InventoryStore(client S3API, manifestURI string) *S3InventoryStore {
	return &S3InventoryStore{objects: NewS3Store(client), manifestURI: manifestURI}
}

// List returns s3://<source bucket>/<key> identifiers starting with root.
func (s *S3InventoryStore) List(ctx context.Context, root string) (Lister, error) {
	bucket, key, err := ParseS3URI(s.manifestURI)
	if err != nil {
		return nil, fmt.Errorf("parse manifest URI: %w", err)
	}
	body, err := s.objects.getObject(ctx, bucket, key)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest: %w", err)
	}
	manifest, err := ParseManifest(body)
	body.Close()
	if err != nil {
		return nil, err
	}

	dest, err := manifest.DestinationBucketName()
	if err != nil {
		return nil, fmt.Errorf("parse destination bucket %q: %w", manifest.DestinationBucket, err)
	}
	keyCol := 0
	if !manifest.IsParquet() {
		if keyCol, err = manifest.KeyColumnIndex(); err != nil {
			return nil, err
		}
	}

	return &filterLister{
		inner: &manifestLister{
			store:    s.objects,
			manifest: manifest,
			dest:     dest,
			keyCol:   keyCol,
			prefix:   "s3://" + manifest.SourceBucket + "/",
		},
		root: root,
	}, nil
}

// Open reads the object from the source bucket.
func (s *S3InventoryStore) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	return s.objects.Open(ctx, id)
}

// manifestLister streams the manifest's inventory files one after another.
type manifestLister struct {
	store    *S3Store
	manifest *Manifest
	dest     string
	keyCol   int
	prefix   string

	next    int
	current keyReader
}

func (l *manifestLister) Next(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if l.current == nil {
			if l.next >= len(l.manifest.Files) {
				return "", io.EOF
			}
			file := l.manifest.Files[l.next]
			l.next++
			kr, err := l.openFile(ctx, file.Key)
			if err != nil {
				return "", err
			}
			l.current = kr
		}

		key, err := l.current.Next()
		if errors.Is(err, io.EOF) {
			l.current.Close()
			l.current = nil
			continue
		}
		if err != nil {
			return "", err
		}
		return l.prefix + key, nil
	}
}

func (l *manifestLister) openFile(ctx context.Context, key string) (keyReader, error) {
	body, err := l.store.getObject(ctx, l.dest, key)
	if err != nil {
		return nil, fmt.Errorf("fetch inventory file: %w", err)
	}
	if l.manifest.IsParquet() {
		return openParquetStream(body, DefaultParquetKeyField)
	}
	r, closers, err := decompress(body, key)
	if err != nil {
		body.Close()
		return nil, err
	}
	return newCSVKeyReader(r, l.keyCol, closers), nil
}

func (l *manifestLister) Close() error {
	if l.current == nil {
		return nil
	}
	err := l.current.Close()
	l.current = nil
	return err
}
