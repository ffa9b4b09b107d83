package drive

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gdrive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const metadataFields = "id, name, mimeType, size, md5Checksum"

// OAuthConfig carries the application credentials shared by every
// per-account client.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// GoogleClient implements Client against the Drive v3 API for one account.
type GoogleClient struct {
	svc      *gdrive.Service
	pageSize int64
}

// NewGoogleClient builds a per-account client from a decrypted refresh
// token. The token source refreshes access tokens transparently.
func NewGoogleClient(ctx context.Context, cfg OAuthConfig, refreshToken string, pageSize int64) (*GoogleClient, error) {
	if refreshToken == "" {
		return nil, NewError(KindValidation, "auth", fmt.Errorf("empty refresh token"))
	}
	if pageSize <= 0 {
		pageSize = 1000
	}

	oauth := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint:     google.Endpoint,
		Scopes:       []string{gdrive.DriveScope},
	}

	source := oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})

	svc, err := gdrive.NewService(ctx, option.WithTokenSource(source))
	if err != nil {
		return nil, fmt.Errorf("failed to build drive service: %w", err)
	}

	return &GoogleClient{svc: svc, pageSize: pageSize}, nil
}

func toMetadata(f *gdrive.File) Metadata {
	return Metadata{
		ID:          f.Id,
		Name:        f.Name,
		MimeType:    f.MimeType,
		Size:        f.Size,
		MD5Checksum: f.Md5Checksum,
	}
}

func (c *GoogleClient) GetMetadata(ctx context.Context, fileID string) (*Metadata, error) {
	f, err := c.svc.Files.Get(fileID).
		Fields(metadataFields).
		Context(ctx).Do()
	if err != nil {
		return nil, classify("get", err)
	}
	meta := toMetadata(f)
	return &meta, nil
}

func (c *GoogleClient) ListChildren(ctx context.Context, folderID, pageToken string) (*ChildPage, error) {
	call := c.svc.Files.List().
		Q(fmt.Sprintf("'%s' in parents and trashed=false", escapeQuery(folderID))).
		Fields("nextPageToken, files(id, name, mimeType, size, md5Checksum)").
		PageSize(c.pageSize).
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	res, err := call.Do()
	if err != nil {
		return nil, classify("list", err)
	}

	page := &ChildPage{NextPageToken: res.NextPageToken}
	for _, f := range res.Files {
		page.Files = append(page.Files, toMetadata(f))
	}
	return page, nil
}

func (c *GoogleClient) Copy(ctx context.Context, fileID, name, destParentID string) (string, error) {
	f, err := c.svc.Files.Copy(fileID, &gdrive.File{
		Name:    name,
		Parents: []string{destParentID},
		AppProperties: map[string]string{
			provenanceKey: ProvenanceMarker,
		},
	}).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", classify("copy", err)
	}
	return f.Id, nil
}

func (c *GoogleClient) CreateFolder(ctx context.Context, name, destParentID string) (string, error) {
	f, err := c.svc.Files.Create(&gdrive.File{
		Name:     name,
		MimeType: FolderMimeType,
		Parents:  []string{destParentID},
		AppProperties: map[string]string{
			provenanceKey: ProvenanceMarker,
		},
	}).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", classify("mkdir", err)
	}
	return f.Id, nil
}

func (c *GoogleClient) Delete(ctx context.Context, fileID string) error {
	if err := c.svc.Files.Delete(fileID).Context(ctx).Do(); err != nil {
		return classify("delete", err)
	}
	return nil
}

func (c *GoogleClient) GetChecksum(ctx context.Context, fileID string) (string, error) {
	f, err := c.svc.Files.Get(fileID).
		Fields("md5Checksum").
		Context(ctx).Do()
	if err != nil {
		return "", classify("checksum", err)
	}
	return f.Md5Checksum, nil
}

// FindOwned queries the destination for a same-named sibling carrying the
// provenance marker. Used by the exactly-once path to recognize a copy
// that landed before a crash wiped the local record.
func (c *GoogleClient) FindOwned(ctx context.Context, name, destParentID string) (*Metadata, error) {
	query := fmt.Sprintf("name='%s' and '%s' in parents and trashed=false",
		escapeQuery(name), escapeQuery(destParentID))

	res, err := c.svc.Files.List().
		Q(query).
		Fields("files(id, name, mimeType, size, md5Checksum, appProperties)").
		PageSize(10).
		Context(ctx).Do()
	if err != nil {
		return nil, classify("find", err)
	}

	for _, f := range res.Files {
		if f.AppProperties[provenanceKey] == ProvenanceMarker {
			meta := toMetadata(f)
			return &meta, nil
		}
	}
	return nil, nil
}

// escapeQuery escapes backslashes and single quotes so user-controlled
// names cannot break out of the Drive query syntax.
func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
