package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/NiksRock/GDriveBridge/internal/transfer"
)

// Handlers bundles the pipeline stages the mux dispatches into.
type Handlers struct {
	Worker   *transfer.Worker
	Verifier *transfer.Verifier
	Deleter  *transfer.Deleter
	Resumer  *transfer.QuotaResumer
}

// NewMux wires each task type to its stage. Malformed payloads are
// permanent failures and skip the retry machinery.
func NewMux(h Handlers) *asynq.ServeMux {
	mux := asynq.NewServeMux()

	mux.HandleFunc(TypeTransferProcess, func(ctx context.Context, t *asynq.Task) error {
		var p TransferPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return fmt.Errorf("malformed transfer payload: %v: %w", err, asynq.SkipRetry)
		}
		return h.Worker.ProcessTransfer(ctx, p.JobID)
	})

	mux.HandleFunc(TypeVerification, func(ctx context.Context, t *asynq.Task) error {
		var p TransferPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return fmt.Errorf("malformed verification payload: %v: %w", err, asynq.SkipRetry)
		}
		return h.Verifier.ProcessVerification(ctx, p.JobID)
	})

	mux.HandleFunc(TypeSourceDelete, func(ctx context.Context, t *asynq.Task) error {
		var p DeletePayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return fmt.Errorf("malformed delete payload: %v: %w", err, asynq.SkipRetry)
		}
		return h.Deleter.ProcessSourceDelete(ctx, transfer.DeleteTask{
			JobID:           p.JobID,
			SourceFileID:    p.SourceFileID,
			SourceAccountID: p.SourceAccountID,
		})
	})

	mux.HandleFunc(TypeQuotaResume, func(ctx context.Context, t *asynq.Task) error {
		var p TransferPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return fmt.Errorf("malformed quota-resume payload: %v: %w", err, asynq.SkipRetry)
		}
		return h.Resumer.ProcessQuotaResume(ctx, p.JobID)
	})

	return mux
}
