package s3doc

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/nsarvesh2011/gaino/internal/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 records the last inputs and returns canned outputs.
type fakeS3 struct {
	listOut *s3.ListObjectsV2Output
	headOut *s3.HeadObjectOutput
	getBody string
	putErr  error

	lastPut  *s3.PutObjectInput
	lastHead *s3.HeadObjectInput
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	return f.listOut, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.lastHead = in
	return f.headOut, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(f.getBody))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.lastPut = in
	if f.putErr != nil {
		return nil, f.putErr
	}
	return &s3.PutObjectOutput{ETag: aws.String(`"put-etag"`)}, nil
}

func statusError(code int) error {
	return &awshttp.ResponseError{
		ResponseError: &smithyhttp.ResponseError{
			Response: &smithyhttp.Response{Response: &http.Response{StatusCode: code}},
			Err:      errors.New("rejected"),
		},
	}
}

// TestListMatchesExactKey tests that only the exact key counts as a match.
func TestListMatchesExactKey(t *testing.T) {
	fake := &fakeS3{listOut: &s3.ListObjectsV2Output{Contents: []types.Object{
		{Key: aws.String("gaino/portfolio.json")},
		{Key: aws.String("gaino/portfolio.json.bak")},
	}}}
	client := newClient(fake, "bucket", "gaino", zerolog.Nop())

	files, err := client.List(context.Background(), "portfolio.json")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "gaino/portfolio.json", files[0].ID)
	assert.Equal(t, "portfolio.json", files[0].Name)
}

// TestGetMetadataETag tests ETag-to-version-tag mapping.
func TestGetMetadataETag(t *testing.T) {
	fake := &fakeS3{headOut: &s3.HeadObjectOutput{ETag: aws.String(`"v1"`)}}
	client := newClient(fake, "bucket", "gaino", zerolog.Nop())

	meta, err := client.GetMetadata(context.Background(), "gaino/portfolio.json")
	require.NoError(t, err)
	assert.Equal(t, `"v1"`, meta.VersionTag)
	assert.Equal(t, "portfolio.json", meta.Name)
	assert.Equal(t, "gaino/portfolio.json", aws.ToString(fake.lastHead.Key))
}

// TestDownload tests body read-through.
func TestDownload(t *testing.T) {
	fake := &fakeS3{getBody: `{"version":1}`}
	client := newClient(fake, "bucket", "", zerolog.Nop())

	data, err := client.Download(context.Background(), "portfolio.json")
	require.NoError(t, err)
	assert.Equal(t, `{"version":1}`, string(data))
}

// TestCreateSendsIfNoneMatch tests the create-only precondition.
func TestCreateSendsIfNoneMatch(t *testing.T) {
	fake := &fakeS3{}
	client := newClient(fake, "bucket", "gaino", zerolog.Nop())

	info, err := client.Create(context.Background(), "portfolio.json", []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "gaino/portfolio.json", info.ID)
	require.NotNil(t, fake.lastPut)
	assert.Equal(t, "*", aws.ToString(fake.lastPut.IfNoneMatch))
}

// TestUpdatePreconditions tests If-Match presence and absence.
func TestUpdatePreconditions(t *testing.T) {
	fake := &fakeS3{}
	client := newClient(fake, "bucket", "", zerolog.Nop())

	_, err := client.Update(context.Background(), "portfolio.json", `"v1"`, "portfolio.json", []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, `"v1"`, aws.ToString(fake.lastPut.IfMatch))

	_, err = client.Update(context.Background(), "portfolio.json", "", "portfolio.json", []byte(`{}`))
	require.NoError(t, err)
	assert.Nil(t, fake.lastPut.IfMatch)
}

// TestErrorMapping tests SDK response errors normalize to StatusError, with
// 409 treated as a precondition failure.
func TestErrorMapping(t *testing.T) {
	for _, code := range []int{412, 409} {
		fake := &fakeS3{putErr: statusError(code)}
		client := newClient(fake, "bucket", "", zerolog.Nop())

		_, err := client.Update(context.Background(), "portfolio.json", `"stale"`, "portfolio.json", []byte(`{}`))
		require.Error(t, err)
		assert.True(t, store.IsPreconditionFailed(err), "status %d", code)
	}

	fake := &fakeS3{putErr: statusError(404)}
	client := newClient(fake, "bucket", "", zerolog.Nop())
	_, err := client.Update(context.Background(), "portfolio.json", "", "portfolio.json", []byte(`{}`))
	assert.True(t, store.IsNotFound(err))
}
