package transfer

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/NiksRock/GDriveBridge/internal/drive"
	"github.com/NiksRock/GDriveBridge/pkg/db/models"
	"github.com/NiksRock/GDriveBridge/pkg/db/store"
	"github.com/NiksRock/GDriveBridge/pkg/log"
)

// Expander walks the selected source roots and persists one depth-annotated
// item per discovered node. Persistence is create-if-absent on
// (jobID, sourceFileID), so re-running after a crash performs zero
// duplicate writes and simply no-ops on already-known nodes.
type Expander struct {
	store    store.TransferStore
	log      log.LoggerService
	maxDepth int
}

func NewExpander(st store.TransferStore, logger log.LoggerService, maxDepth int) *Expander {
	if maxDepth <= 0 {
		maxDepth = 1000
	}
	return &Expander{
		store:    st,
		log:      logger,
		maxDepth: maxDepth,
	}
}

// ExpandAndPersist expands every root recursively. Any metadata or listing
// failure propagates up: a job is never left partially expanded and then
// run. The returned totals are recomputed from the persisted rows, so a
// re-invocation reports exactly what the records show.
func (e *Expander) ExpandAndPersist(ctx context.Context, jobID string, client drive.Client, rootIDs []string) (int64, int64, error) {
	for _, rootID := range rootIDs {
		if err := e.expand(ctx, jobID, client, rootID, nil, 0); err != nil {
			return 0, 0, fmt.Errorf("expansion of root '%s' failed: %w", rootID, err)
		}
	}

	totalItems, totalBytes, err := e.store.CountItems(ctx, jobID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count expanded items: %w", err)
	}

	e.log.Info("Expanded job '%s': %d items, %d bytes", jobID, totalItems, totalBytes)
	return totalItems, totalBytes, nil
}

func (e *Expander) expand(ctx context.Context, jobID string, client drive.Client, fileID string, parentID *string, depth int) error {
	if depth > e.maxDepth {
		return fmt.Errorf("tree depth exceeds ceiling of %d at '%s'", e.maxDepth, fileID)
	}

	meta, err := client.GetMetadata(ctx, fileID)
	if err != nil {
		return err
	}

	item := &models.Item{
		ID:             uuid.NewString(),
		JobID:          jobID,
		SourceFileID:   meta.ID,
		SourceParentID: parentID,
		FileName:       meta.Name,
		MimeType:       meta.MimeType,
		Depth:          depth,
		Status:         models.ItemPending,
		Checksum:       meta.MD5Checksum,
	}
	if !meta.IsFolder() {
		size := meta.Size
		item.SizeBytes = &size
	}

	if err := e.store.UpsertItem(ctx, item); err != nil {
		return fmt.Errorf("failed to persist item '%s': %w", meta.ID, err)
	}

	if !meta.IsFolder() {
		return nil
	}

	// Page through all children, recursing one level deeper for each
	pageToken := ""
	for {
		page, err := client.ListChildren(ctx, meta.ID, pageToken)
		if err != nil {
			return err
		}

		for _, child := range page.Files {
			if err := e.expand(ctx, jobID, client, child.ID, &meta.ID, depth+1); err != nil {
				return err
			}
		}

		if page.NextPageToken == "" {
			return nil
		}
		pageToken = page.NextPageToken
	}
}
