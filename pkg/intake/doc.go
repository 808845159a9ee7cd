// Package intake accepts community-report form submissions.
//
// A submission flows through a Pipeline: the idempotency Guard drops
// retransmitted forms, the Ingester stores attached files in a BlobStore under
// sanitized, date-prefixed names, and the assembled Record is forwarded to a
// content Backend. Backend failures never reach the submitter; they are
// reported on the Receipt and logged.
//
// Basic usage:
//
//	pipeline, err := intake.New(
//		intake.WithBackend(memorybackend.New()),
//		intake.WithBlobStore(store),
//	)
//	receipt, err := pipeline.Submit(ctx, intake.PetPerdidoForm, submission)
package intake
