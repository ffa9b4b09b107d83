package transfer

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	config "github.com/NiksRock/GDriveBridge/internal/config/worker"
	"github.com/NiksRock/GDriveBridge/internal/coord"
	"github.com/NiksRock/GDriveBridge/internal/drive"
	"github.com/NiksRock/GDriveBridge/pkg/db/migrations"
	"github.com/NiksRock/GDriveBridge/pkg/db/models"
	"github.com/NiksRock/GDriveBridge/pkg/db/store"
	"github.com/NiksRock/GDriveBridge/pkg/log"
)

func testLogger() log.LoggerService {
	return log.NewLoggerService("test", config.LogWorkerConfig{
		Level:      "ERROR",
		TimeFormat: time.RFC3339,
		NoColor:    true,
	})
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	st, err := store.NewSQLiteStore(store.SQLiteConfig{Path: ":memory:"})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, st.Connect(ctx))
	require.NoError(t, migrations.NewMigrator(st.DB()).Migrate(ctx))

	t.Cleanup(func() { st.Close() })
	return st
}

// fakeNode is one entry in the fake provider's namespace.
type fakeNode struct {
	meta   drive.Metadata
	parent string
	owned  bool // carries the provenance marker
}

// fakeClient is an in-memory drive.Client with per-operation call counts
// and injectable failures.
type fakeClient struct {
	mu     sync.Mutex
	nodes  map[string]*fakeNode
	nextID int

	copyCalls   int
	folderCalls int
	deleteCalls int

	// copyErrs queues errors per source file id, consumed one per call
	copyErrs   map[string][]error
	folderErrs map[string][]error

	checksums map[string]string // overrides GetChecksum per file id
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		nodes:      make(map[string]*fakeNode),
		copyErrs:   make(map[string][]error),
		folderErrs: make(map[string][]error),
		checksums:  make(map[string]string),
	}
}

func (f *fakeClient) addFolder(id, name, parent string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nodes[id] = &fakeNode{
		meta:   drive.Metadata{ID: id, Name: name, MimeType: drive.FolderMimeType},
		parent: parent,
	}
}

func (f *fakeClient) addFile(id, name, parent string, size int64, md5 string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nodes[id] = &fakeNode{
		meta:   drive.Metadata{ID: id, Name: name, MimeType: "text/plain", Size: size, MD5Checksum: md5},
		parent: parent,
	}
}

// addOwned plants a provenance-tagged object, simulating a copy that
// landed before a crash wiped the local record.
func (f *fakeClient) addOwned(id, name, parent string, size int64, folder bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	mime := "text/plain"
	if folder {
		mime = drive.FolderMimeType
	}
	f.nodes[id] = &fakeNode{
		meta:   drive.Metadata{ID: id, Name: name, MimeType: mime, Size: size},
		parent: parent,
		owned:  true,
	}
}

func (f *fakeClient) failCopy(fileID string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.copyErrs[fileID] = append(f.copyErrs[fileID], errs...)
}

func (f *fakeClient) has(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.nodes[id]
	return ok
}

func (f *fakeClient) GetMetadata(_ context.Context, fileID string) (*drive.Metadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	node, ok := f.nodes[fileID]
	if !ok {
		return nil, drive.NewError(drive.KindNotFound, "get", fmt.Errorf("no node %s", fileID))
	}
	meta := node.meta
	return &meta, nil
}

func (f *fakeClient) ListChildren(_ context.Context, folderID, _ string) (*drive.ChildPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	page := &drive.ChildPage{}
	for _, node := range f.nodes {
		if node.parent == folderID {
			page.Files = append(page.Files, node.meta)
		}
	}
	return page, nil
}

func (f *fakeClient) Copy(_ context.Context, fileID, name, destParentID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.copyCalls++

	if errs := f.copyErrs[fileID]; len(errs) > 0 {
		err := errs[0]
		f.copyErrs[fileID] = errs[1:]
		return "", err
	}

	source, ok := f.nodes[fileID]
	if !ok {
		return "", drive.NewError(drive.KindNotFound, "copy", fmt.Errorf("no node %s", fileID))
	}

	f.nextID++
	id := fmt.Sprintf("copy-%d", f.nextID)
	f.nodes[id] = &fakeNode{
		meta: drive.Metadata{
			ID: id, Name: name, MimeType: source.meta.MimeType,
			Size: source.meta.Size, MD5Checksum: source.meta.MD5Checksum,
		},
		parent: destParentID,
		owned:  true,
	}
	return id, nil
}

func (f *fakeClient) CreateFolder(_ context.Context, name, destParentID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.folderCalls++

	if errs := f.folderErrs[name]; len(errs) > 0 {
		err := errs[0]
		f.folderErrs[name] = errs[1:]
		return "", err
	}

	f.nextID++
	id := fmt.Sprintf("folder-%d", f.nextID)
	f.nodes[id] = &fakeNode{
		meta:   drive.Metadata{ID: id, Name: name, MimeType: drive.FolderMimeType},
		parent: destParentID,
		owned:  true,
	}
	return id, nil
}

func (f *fakeClient) Delete(_ context.Context, fileID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	if _, ok := f.nodes[fileID]; !ok {
		return drive.NewError(drive.KindNotFound, "delete", fmt.Errorf("no node %s", fileID))
	}
	delete(f.nodes, fileID)
	return nil
}

func (f *fakeClient) GetChecksum(_ context.Context, fileID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sum, ok := f.checksums[fileID]; ok {
		return sum, nil
	}
	node, ok := f.nodes[fileID]
	if !ok {
		return "", drive.NewError(drive.KindNotFound, "checksum", fmt.Errorf("no node %s", fileID))
	}
	return node.meta.MD5Checksum, nil
}

func (f *fakeClient) FindOwned(_ context.Context, name, destParentID string) (*drive.Metadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, node := range f.nodes {
		if node.owned && node.parent == destParentID && node.meta.Name == name {
			meta := node.meta
			return &meta, nil
		}
	}
	return nil, nil
}

// fakeGovernor grants every slot immediately and counts grants.
type fakeGovernor struct {
	mu    sync.Mutex
	calls int
}

func (g *fakeGovernor) Throttle(_ context.Context, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return nil
}

// fakeLocker tracks leases in memory.
type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]string
	extends  int
	releases int
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[string]string)}
}

func (l *fakeLocker) Acquire(_ context.Context, accountID, ownerID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if owner, ok := l.held[accountID]; ok && owner != ownerID {
		return false, nil
	}
	l.held[accountID] = ownerID
	return true, nil
}

func (l *fakeLocker) Extend(_ context.Context, _, _ string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.extends++
	return nil
}

func (l *fakeLocker) Release(_ context.Context, accountID, ownerID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[accountID] == ownerID {
		delete(l.held, accountID)
	}
	l.releases++
	return nil
}

// fakeNotifier records published progress events.
type fakeNotifier struct {
	mu     sync.Mutex
	events []coord.Progress
}

func (n *fakeNotifier) Publish(_ context.Context, p coord.Progress) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, p)
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

// fakeEnqueuer records every enqueue call.
type fakeEnqueuer struct {
	mu            sync.Mutex
	transfers     []string
	verifications []string
	deletes       []DeleteTask
	resumes       []string
}

func (e *fakeEnqueuer) EnqueueTransfer(_ context.Context, jobID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.transfers = append(e.transfers, jobID)
	return nil
}

func (e *fakeEnqueuer) EnqueueVerification(_ context.Context, jobID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.verifications = append(e.verifications, jobID)
	return nil
}

func (e *fakeEnqueuer) EnqueueSourceDelete(_ context.Context, task DeleteTask, _ time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deletes = append(e.deletes, task)
	return nil
}

func (e *fakeEnqueuer) EnqueueQuotaResume(_ context.Context, jobID string, _ time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resumes = append(e.resumes, jobID)
	return nil
}

// Shared seed helpers

func seedAccount(t *testing.T, st store.TransferStore, id string) *models.Account {
	t.Helper()
	account := &models.Account{
		ID:                    id,
		UserID:                "user-1",
		Email:                 id + "@example.com",
		RefreshTokenEncrypted: "opaque",
		LastQuotaReset:        time.Now().UTC(),
	}
	require.NoError(t, st.CreateAccount(context.Background(), account))
	return account
}

func seedJob(t *testing.T, st store.TransferStore, mode models.TransferMode, status models.JobStatus) *models.Job {
	t.Helper()
	job := &models.Job{
		ID:                   "job-" + string(mode) + "-" + string(status),
		UserID:               "user-1",
		SourceAccountID:      "src",
		DestinationAccountID: "dst",
		DestinationFolderID:  "dest-root",
		Mode:                 mode,
		Status:               status,
	}
	require.NoError(t, st.CreateJob(context.Background(), job))
	return job
}

func clientsByAccount(src, dst drive.Client) ClientFunc {
	return func(_ context.Context, account *models.Account) (drive.Client, error) {
		if account.ID == "src" {
			return src, nil
		}
		return dst, nil
	}
}

func eventTypes(t *testing.T, st store.TransferStore, jobID string) []string {
	t.Helper()
	events, err := st.ListEvents(context.Background(), jobID)
	require.NoError(t, err)
	types := make([]string, 0, len(events))
	for _, e := range events {
		types = append(types, e.Type)
	}
	return types
}
