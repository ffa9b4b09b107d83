// Package drive abstracts the remote storage provider behind a small
// capability interface. The transfer pipeline depends on this interface
// only; the Google implementation lives alongside it.
package drive

import (
	"context"
)

// FolderMimeType identifies folder nodes in the provider's namespace.
const FolderMimeType = "application/vnd.google-apps.folder"

// Provenance marker attached to every object this system creates at a
// destination. Idempotency checks recognize prior writes through it.
const (
	provenanceKey    = "app_id"
	ProvenanceMarker = "gdrivebridge_v2"
)

// Metadata describes one remote file or folder.
type Metadata struct {
	ID          string
	Name        string
	MimeType    string
	Size        int64
	MD5Checksum string
}

// IsFolder reports whether the node is a folder.
func (m *Metadata) IsFolder() bool {
	return m.MimeType == FolderMimeType
}

// ChildPage is one page of a folder listing.
type ChildPage struct {
	Files         []Metadata
	NextPageToken string
}

// Client is the per-account capability surface against the remote API.
// Implementations classify provider errors into this package's taxonomy
// at the boundary, so callers branch on error kind, never on SDK shapes.
type Client interface {
	// GetMetadata fetches a single node's metadata.
	GetMetadata(ctx context.Context, fileID string) (*Metadata, error)

	// ListChildren returns one page of a folder's direct children.
	// Pass the previous page's NextPageToken to continue; an empty
	// token in the result means the listing is exhausted.
	ListChildren(ctx context.Context, folderID, pageToken string) (*ChildPage, error)

	// Copy copies a source file into destParentID under name, tagged
	// with the provenance marker. Returns the new file id.
	Copy(ctx context.Context, fileID, name, destParentID string) (string, error)

	// CreateFolder creates a tagged folder under destParentID.
	CreateFolder(ctx context.Context, name, destParentID string) (string, error)

	// Delete permanently removes a file or folder.
	Delete(ctx context.Context, fileID string) error

	// GetChecksum returns the provider-computed md5 of a file.
	GetChecksum(ctx context.Context, fileID string) (string, error)

	// FindOwned looks for a non-trashed object named name under
	// destParentID carrying this system's provenance marker. Returns
	// (nil, nil) when none exists.
	FindOwned(ctx context.Context, name, destParentID string) (*Metadata, error)
}
