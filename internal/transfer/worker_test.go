package transfer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NiksRock/GDriveBridge/internal/drive"
	"github.com/NiksRock/GDriveBridge/pkg/db/models"
	"github.com/NiksRock/GDriveBridge/pkg/db/store"
)

type workerFixture struct {
	st       store.TransferStore
	src      *fakeClient
	dst      *fakeClient
	locker   *fakeLocker
	notifier *fakeNotifier
	enq      *fakeEnqueuer
	worker   *Worker
}

func newWorkerFixture(t *testing.T) *workerFixture {
	st := newTestStore(t)
	seedAccount(t, st, "src")
	seedAccount(t, st, "dst")

	src := newFakeClient()
	dst := newFakeClient()
	dst.addFolder("dest-root", "dest-root", "")

	locker := newFakeLocker()
	notifier := &fakeNotifier{}
	enq := &fakeEnqueuer{}

	worker := NewWorker(st, &fakeGovernor{}, locker, notifier, enq, clientsByAccount(src, dst),
		WorkerConfig{
			RetryLimit: 3,
			Copier: CopierConfig{
				RetryLimit:       3,
				RetryBaseDelay:   time.Millisecond,
				DailyByteCap:     1 << 40,
				QuotaResumeDelay: time.Hour,
			},
		}, testLogger())

	return &workerFixture{st: st, src: src, dst: dst, locker: locker, notifier: notifier, enq: enq, worker: worker}
}

// expand seeds the job's items from the fake source tree.
func (f *workerFixture) expand(t *testing.T, jobID string, roots []string) {
	t.Helper()
	ctx := context.Background()
	expander := NewExpander(f.st, testLogger(), 100)
	totalItems, totalBytes, err := expander.ExpandAndPersist(ctx, jobID, f.src, roots)
	require.NoError(t, err)
	require.NoError(t, f.st.SetJobTotals(ctx, jobID, totalItems, totalBytes))
}

func TestWorkerProcessesWholeTree(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()

	f.src.addFolder("root", "photos", "")
	f.src.addFile("a", "a.jpg", "root", 100, "md5-a")
	f.src.addFile("b", "b.jpg", "root", 200, "md5-b")

	job := seedJob(t, f.st, models.ModeCopy, models.JobPending)
	f.expand(t, job.ID, []string{"root"})

	require.NoError(t, f.worker.ProcessTransfer(ctx, job.ID))

	loaded, err := f.st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, loaded.Status)
	assert.Equal(t, int64(3), loaded.CompletedItems)
	assert.Equal(t, int64(300), loaded.TransferredBytes)
	assert.Zero(t, loaded.FailedItems)

	assert.Equal(t, 1, f.dst.folderCalls)
	assert.Equal(t, 2, f.dst.copyCalls)

	// Copy mode never hands off to verification
	assert.Empty(t, f.enq.verifications)

	// Locks were taken and released; the source account was not locked
	assert.Empty(t, f.locker.held)
	assert.Equal(t, 1, f.locker.releases)

	assert.Contains(t, eventTypes(t, f.st, job.ID), models.EventJobFinished)
	assert.Greater(t, f.notifier.count(), 0)
}

func TestWorkerPlacesChildrenUnderCopiedParents(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()

	f.src.addFolder("root", "docs", "")
	f.src.addFile("a", "a.txt", "root", 10, "md5-a")

	job := seedJob(t, f.st, models.ModeCopy, models.JobPending)
	f.expand(t, job.ID, []string{"root"})

	require.NoError(t, f.worker.ProcessTransfer(ctx, job.ID))

	folderItem, err := f.st.GetItemBySource(ctx, job.ID, "root")
	require.NoError(t, err)
	require.NotNil(t, folderItem.DestinationFileID)

	fileItem, err := f.st.GetItemBySource(ctx, job.ID, "a")
	require.NoError(t, err)
	require.NotNil(t, fileItem.DestinationFileID)

	// The copied file must live inside the copied folder, not the root
	f.dst.mu.Lock()
	copied := f.dst.nodes[*fileItem.DestinationFileID]
	f.dst.mu.Unlock()
	require.NotNil(t, copied)
	assert.Equal(t, *folderItem.DestinationFileID, copied.parent)
}

func TestWorkerResumesAfterCrash(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()

	f.src.addFile("a", "a.txt", "", 10, "md5-a")
	f.src.addFile("b", "b.txt", "", 20, "md5-b")
	f.src.addFile("c", "c.txt", "", 30, "md5-c")

	job := seedJob(t, f.st, models.ModeCopy, models.JobPending)
	f.expand(t, job.ID, []string{"a", "b", "c"})

	// Simulate a crash after the first item settled
	itemA, err := f.st.GetItemBySource(ctx, job.ID, "a")
	require.NoError(t, err)
	require.NoError(t, f.st.CompleteItem(ctx, itemA.ID, "pre-existing"))
	require.NoError(t, f.st.IncrementJobProgress(ctx, job.ID, 10))

	require.NoError(t, f.worker.ProcessTransfer(ctx, job.ID))

	loaded, err := f.st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, loaded.Status)
	assert.Equal(t, int64(3), loaded.CompletedItems)
	assert.Equal(t, 2, f.dst.copyCalls, "only the two pending items hit the remote")
}

func TestWorkerRetryCeilingFailsItemOnce(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()

	f.src.addFile("a", "a.txt", "", 10, "md5-a")
	f.src.addFile("b", "b.txt", "", 20, "md5-b")

	job := seedJob(t, f.st, models.ModeCopy, models.JobPending)
	f.expand(t, job.ID, []string{"a", "b"})

	// Item a fails a retryable error on every single attempt
	for i := 0; i < 20; i++ {
		f.dst.failCopy("a", drive.NewError(drive.KindRetryable, "copy", errors.New("503")))
	}

	require.NoError(t, f.worker.ProcessTransfer(ctx, job.ID))

	loaded, err := f.st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, loaded.Status)
	assert.Equal(t, int64(1), loaded.FailedItems, "incremented once, not once per attempt")
	assert.Equal(t, int64(1), loaded.CompletedItems)

	itemA, err := f.st.GetItemBySource(ctx, job.ID, "a")
	require.NoError(t, err)
	assert.Equal(t, models.ItemFailed, itemA.Status)
	assert.NotEmpty(t, itemA.ErrorMessage)

	types := eventTypes(t, f.st, job.ID)
	failedEvents := 0
	for _, typ := range types {
		if typ == models.EventItemFailed {
			failedEvents++
		}
	}
	assert.Equal(t, 1, failedEvents)
}

func TestWorkerFailsSubtreeOfFailedFolder(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()

	f.src.addFolder("root", "broken", "")
	f.src.addFile("a", "a.txt", "root", 10, "md5-a")

	job := seedJob(t, f.st, models.ModeCopy, models.JobPending)
	f.expand(t, job.ID, []string{"root"})

	// Folder creation fails permanently
	f.dst.mu.Lock()
	f.dst.folderErrs["broken"] = []error{
		drive.NewError(drive.KindValidation, "create", errors.New("forbidden")),
	}
	f.dst.mu.Unlock()

	require.NoError(t, f.worker.ProcessTransfer(ctx, job.ID))

	loaded, err := f.st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, loaded.Status)
	assert.Equal(t, int64(2), loaded.FailedItems, "the unreachable child fails too")

	child, err := f.st.GetItemBySource(ctx, job.ID, "a")
	require.NoError(t, err)
	assert.Equal(t, models.ItemFailed, child.Status)
	assert.Zero(t, f.dst.copyCalls, "no child write without its parent folder")
}

func TestWorkerDropsDeliveriesForInactiveJobs(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()

	for _, status := range []models.JobStatus{
		models.JobPaused, models.JobAutoPausedQuota,
		models.JobCancelled, models.JobCompleted,
	} {
		job := seedJob(t, f.st, models.ModeCopy, status)
		require.NoError(t, f.worker.ProcessTransfer(ctx, job.ID))

		after, err := f.st.JobStatus(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, status, after, "status %s must be untouched", status)
	}
	assert.Zero(t, f.dst.copyCalls)
}

func TestWorkerReturnsBusyOnLockContention(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()

	f.src.addFile("a", "a.txt", "", 10, "md5-a")
	job := seedJob(t, f.st, models.ModeCopy, models.JobPending)
	f.expand(t, job.ID, []string{"a"})

	// Another job holds the destination account
	held, err := f.locker.Acquire(ctx, "dst", "other-job")
	require.NoError(t, err)
	require.True(t, held)

	err = f.worker.ProcessTransfer(ctx, job.ID)
	assert.ErrorIs(t, err, ErrAccountBusy)
	assert.Zero(t, f.dst.copyCalls, "no data touched before acquisition")
}

func TestWorkerMoveLocksBothAccountsAndEnqueuesVerification(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()

	f.src.addFile("a", "a.txt", "", 10, "md5-a")
	job := seedJob(t, f.st, models.ModeMove, models.JobPending)
	f.expand(t, job.ID, []string{"a"})

	// Holding the source account blocks a move
	held, err := f.locker.Acquire(ctx, "src", "other-job")
	require.NoError(t, err)
	require.True(t, held)

	err = f.worker.ProcessTransfer(ctx, job.ID)
	assert.ErrorIs(t, err, ErrAccountBusy)
	require.NoError(t, f.locker.Release(ctx, "src", "other-job"))

	require.NoError(t, f.worker.ProcessTransfer(ctx, job.ID))

	loaded, err := f.st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, loaded.Status)

	require.Len(t, f.enq.verifications, 1)
	assert.Equal(t, job.ID, f.enq.verifications[0])
	assert.Empty(t, f.locker.held)
}

func TestWorkerQuotaPauseAcksDelivery(t *testing.T) {
	st := newTestStore(t)
	seedAccount(t, st, "src")
	seedAccount(t, st, "dst")

	src := newFakeClient()
	src.addFile("a", "a.txt", "", 600, "md5-a")
	dst := newFakeClient()
	dst.addFolder("dest-root", "dest-root", "")

	enq := &fakeEnqueuer{}
	worker := NewWorker(st, &fakeGovernor{}, newFakeLocker(), &fakeNotifier{}, enq,
		clientsByAccount(src, dst),
		WorkerConfig{
			RetryLimit: 3,
			Copier: CopierConfig{
				RetryLimit:       3,
				RetryBaseDelay:   time.Millisecond,
				DailyByteCap:     500, // item is 600 bytes
				QuotaResumeDelay: time.Hour,
			},
		}, testLogger())

	ctx := context.Background()
	job := seedJob(t, st, models.ModeCopy, models.JobPending)
	expander := NewExpander(st, testLogger(), 100)
	totalItems, totalBytes, err := expander.ExpandAndPersist(ctx, job.ID, src, []string{"a"})
	require.NoError(t, err)
	require.NoError(t, st.SetJobTotals(ctx, job.ID, totalItems, totalBytes))

	// The delivery is acknowledged; the delayed resume owns the retry
	require.NoError(t, worker.ProcessTransfer(ctx, job.ID))

	status, err := st.JobStatus(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobAutoPausedQuota, status)

	item, err := st.GetItemBySource(ctx, job.ID, "a")
	require.NoError(t, err)
	assert.Equal(t, models.ItemPending, item.Status)
	assert.Zero(t, item.RetryCount, "quota never burns the retry budget")

	require.Len(t, enq.resumes, 1)
}
