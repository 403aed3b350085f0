// Package drive implements the document store contract over a Drive-v3-style
// HTTP file API: app-private space, multipart uploads, ETag preconditions.
package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/nsarvesh2011/gaino/internal/auth"
	"github.com/nsarvesh2011/gaino/internal/store"
	"github.com/rs/zerolog"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://www.googleapis.com"

const (
	listPath   = "/drive/v3/files"
	uploadPath = "/upload/drive/v3/files"
	space      = "appDataFolder"
	mimeJSON   = "application/json"
)

// Client is a thin typed wrapper over the remote file API. It carries no
// business logic; callers interpret the StatusError codes it returns.
type Client struct {
	baseURL string
	client  *http.Client
	tokens  auth.TokenProvider
	log     zerolog.Logger
}

// NewClient creates a drive store client. baseURL may be empty, in which case
// the production API root is used.
func NewClient(baseURL string, tokens auth.TokenProvider, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		tokens:  tokens,
		log:     log.With().Str("client", "drive").Logger(),
	}
}

type fileResource struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type fileList struct {
	Files []fileResource `json:"files"`
}

// List returns the app-private documents whose name equals nameEquals.
func (c *Client) List(ctx context.Context, nameEquals string) ([]store.FileInfo, error) {
	q := url.Values{}
	q.Set("spaces", space)
	q.Set("q", fmt.Sprintf("name = '%s'", nameEquals))
	q.Set("fields", "files(id,name,modifiedTime)")

	body, _, err := c.do(ctx, http.MethodGet, listPath+"?"+q.Encode(), "", "", nil)
	if err != nil {
		return nil, err
	}

	var list fileList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("failed to parse file list: %w", err)
	}

	infos := make([]store.FileInfo, 0, len(list.Files))
	for _, f := range list.Files {
		infos = append(infos, store.FileInfo{ID: f.ID, Name: f.Name})
	}
	return infos, nil
}

// GetMetadata reads the document's metadata. The version tag is taken from
// the response ETag header; header lookup is canonicalized, so any casing the
// store emits is matched. An absent tag is not an error.
func (c *Client) GetMetadata(ctx context.Context, id string) (store.Metadata, error) {
	path := listPath + "/" + url.PathEscape(id) + "?fields=" + url.QueryEscape("id,name,modifiedTime")
	body, header, err := c.do(ctx, http.MethodGet, path, "", "", nil)
	if err != nil {
		return store.Metadata{}, err
	}

	var f fileResource
	if err := json.Unmarshal(body, &f); err != nil {
		return store.Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}

	tag := header.Get("ETag")
	c.log.Debug().Str("id", id).Str("etag", tag).Msg("Fetched metadata")
	return store.Metadata{ID: f.ID, Name: f.Name, VersionTag: tag}, nil
}

// Download returns the raw document bytes.
func (c *Client) Download(ctx context.Context, id string) ([]byte, error) {
	path := listPath + "/" + url.PathEscape(id) + "?alt=media"
	body, _, err := c.do(ctx, http.MethodGet, path, "", "", nil)
	if err != nil {
		return nil, err
	}
	return body, nil
}

// Create stores a new document in the app-private space via a multipart
// upload and returns its store-assigned identity.
func (c *Client) Create(ctx context.Context, name string, media []byte) (store.FileInfo, error) {
	meta := fmt.Sprintf(`{"name":%q,"parents":[%q],"mimeType":%q}`, name, space, mimeJSON)
	contentType, payload, err := multipartRelated(meta, media)
	if err != nil {
		return store.FileInfo{}, err
	}

	body, _, err := c.do(ctx, http.MethodPost, uploadPath+"?uploadType=multipart", "", contentType, payload)
	if err != nil {
		return store.FileInfo{}, err
	}

	var f fileResource
	if err := json.Unmarshal(body, &f); err != nil {
		return store.FileInfo{}, fmt.Errorf("failed to parse create response: %w", err)
	}
	c.log.Debug().Str("id", f.ID).Str("name", name).Msg("Created document")
	return store.FileInfo{ID: f.ID, Name: name}, nil
}

// Update overwrites the document via a multipart upload. A non-empty ifMatch
// is sent as an If-Match precondition; the store answers 412 when the tag no
// longer matches the current revision.
func (c *Client) Update(ctx context.Context, id, ifMatch, name string, media []byte) (store.FileInfo, error) {
	meta := fmt.Sprintf(`{"name":%q,"mimeType":%q}`, name, mimeJSON)
	contentType, payload, err := multipartRelated(meta, media)
	if err != nil {
		return store.FileInfo{}, err
	}

	path := uploadPath + "/" + url.PathEscape(id) + "?uploadType=multipart"
	body, _, err := c.do(ctx, http.MethodPatch, path, ifMatch, contentType, payload)
	if err != nil {
		return store.FileInfo{}, err
	}

	var f fileResource
	if err := json.Unmarshal(body, &f); err != nil {
		return store.FileInfo{}, fmt.Errorf("failed to parse update response: %w", err)
	}
	if f.ID == "" {
		f.ID = id
	}
	return store.FileInfo{ID: f.ID, Name: name}, nil
}

// do issues one request with the bearer credential attached and maps non-2xx
// responses to StatusError.
func (c *Client) do(ctx context.Context, method, path, ifMatch, contentType string, payload []byte) ([]byte, http.Header, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build request: %w", err)
	}
	if token, ok := c.tokens.AccessToken(ctx); ok && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if ifMatch != "" {
		req.Header.Set("If-Match", ifMatch)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Debug().
			Str("method", method).
			Str("path", path).
			Int("status", resp.StatusCode).
			Msg("Request rejected")
		return nil, nil, &store.StatusError{Op: method + " " + path, Code: resp.StatusCode, Body: string(data)}
	}
	return data, resp.Header, nil
}

// multipartRelated builds the two-part upload body: a JSON metadata part
// followed by the media part.
func multipartRelated(metadata string, media []byte) (contentType string, payload []byte, err error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	metaHeader := textproto.MIMEHeader{}
	metaHeader.Set("Content-Type", mimeJSON+"; charset=UTF-8")
	part, err := w.CreatePart(metaHeader)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create metadata part: %w", err)
	}
	if _, err := part.Write([]byte(metadata)); err != nil {
		return "", nil, fmt.Errorf("failed to write metadata part: %w", err)
	}

	mediaHeader := textproto.MIMEHeader{}
	mediaHeader.Set("Content-Type", mimeJSON)
	part, err = w.CreatePart(mediaHeader)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create media part: %w", err)
	}
	if _, err := part.Write(media); err != nil {
		return "", nil, fmt.Errorf("failed to write media part: %w", err)
	}

	if err := w.Close(); err != nil {
		return "", nil, fmt.Errorf("failed to finalize multipart body: %w", err)
	}
	return "multipart/related; boundary=" + w.Boundary(), buf.Bytes(), nil
}

var _ store.DocumentStore = (*Client)(nil)
