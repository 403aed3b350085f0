// Package s3doc implements the document store contract over an S3 bucket.
// Object ETags serve as version tags; S3 conditional writes (If-Match,
// If-None-Match) provide the same optimistic-concurrency semantics as the
// HTTP backend, including 412 on a stale tag.
package s3doc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/nsarvesh2011/gaino/internal/store"
	"github.com/rs/zerolog"
)

// api is the slice of the S3 client this package uses.
type api interface {
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Client stores documents as objects under prefix in one bucket.
type Client struct {
	s3     api
	bucket string
	prefix string
	log    zerolog.Logger
}

// NewClient creates an S3-backed document store. prefix scopes all keys to an
// app-private area of the bucket (e.g. "gaino/").
func NewClient(client *s3.Client, bucket, prefix string, log zerolog.Logger) *Client {
	return newClient(client, bucket, prefix, log)
}

func newClient(client api, bucket, prefix string, log zerolog.Logger) *Client {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Client{
		s3:     client,
		bucket: bucket,
		prefix: prefix,
		log:    log.With().Str("client", "s3doc").Logger(),
	}
}

func (c *Client) key(name string) string {
	return c.prefix + name
}

// List returns the object matching nameEquals, when one exists. The object
// key doubles as the document id.
func (c *Client) List(ctx context.Context, nameEquals string) ([]store.FileInfo, error) {
	key := c.key(nameEquals)
	out, err := c.s3.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(key),
	})
	if err != nil {
		return nil, mapError("list", err)
	}

	var infos []store.FileInfo
	for _, obj := range out.Contents {
		if aws.ToString(obj.Key) == key {
			infos = append(infos, store.FileInfo{ID: key, Name: nameEquals})
		}
	}
	return infos, nil
}

// GetMetadata reads object metadata; the ETag is the version tag.
func (c *Client) GetMetadata(ctx context.Context, id string) (store.Metadata, error) {
	out, err := c.s3.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(id),
	})
	if err != nil {
		return store.Metadata{}, mapError("head", err)
	}
	return store.Metadata{
		ID:         id,
		Name:       strings.TrimPrefix(id, c.prefix),
		VersionTag: aws.ToString(out.ETag),
	}, nil
}

// Download returns the raw object bytes.
func (c *Client) Download(ctx context.Context, id string) ([]byte, error) {
	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(id),
	})
	if err != nil {
		return nil, mapError("get", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object body: %w", err)
	}
	return data, nil
}

// Create writes a new object, conditional on the key not existing yet.
func (c *Client) Create(ctx context.Context, name string, media []byte) (store.FileInfo, error) {
	key := c.key(name)
	_, err := c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(media),
		ContentType: aws.String("application/json"),
		IfNoneMatch: aws.String("*"),
	})
	if err != nil {
		return store.FileInfo{}, mapError("put", err)
	}
	c.log.Debug().Str("key", key).Msg("Created document")
	return store.FileInfo{ID: key, Name: name}, nil
}

// Update overwrites the object, conditional on ifMatch when one is held.
func (c *Client) Update(ctx context.Context, id, ifMatch, name string, media []byte) (store.FileInfo, error) {
	in := &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(id),
		Body:        bytes.NewReader(media),
		ContentType: aws.String("application/json"),
	}
	if ifMatch != "" {
		in.IfMatch = aws.String(ifMatch)
	}
	if _, err := c.s3.PutObject(ctx, in); err != nil {
		return store.FileInfo{}, mapError("put", err)
	}
	return store.FileInfo{ID: id, Name: name}, nil
}

// mapError converts SDK response errors into StatusError so the engine's 412
// detection works identically across backends. S3 reports a conflicting
// concurrent write as 409 on some paths; that is still a precondition
// failure from the engine's point of view, so it is normalized to 412.
func mapError(op string, err error) error {
	var re *awshttp.ResponseError
	if errors.As(err, &re) {
		code := re.HTTPStatusCode()
		if code == 409 {
			code = 412
		}
		return &store.StatusError{Op: op, Code: code, Body: re.Error()}
	}
	return fmt.Errorf("s3 %s failed: %w", op, err)
}

var _ store.DocumentStore = (*Client)(nil)
