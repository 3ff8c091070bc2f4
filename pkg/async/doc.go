// Package async provides safe concurrent execution primitives for background tasks.
//
// # Overview
//
// Work that must not hold up a response (sending email, releasing stored
// files) runs through this package so that panics are recovered, every task
// has a timeout, and failures end up in the structured log instead of being
// lost.
//
// # Key Functions
//
// SafeGo: fire-and-forget goroutine detached from the request's cancellation
//
//	async.SafeGo(r.Context(), logger, 30*time.Second, "release attachments", func(ctx context.Context) error {
//		return uploader.Delete(ctx, key)
//	})
//
// WorkerPool: bounded queue drained by a fixed set of workers
//
//	pool := async.NewWorkerPool(ctx, logger, 4, 100, "mail", 30*time.Second)
//	defer pool.Shutdown(shutdownCtx)
//
//	if err := pool.Submit(func(ctx context.Context) error {
//		return mailer.Send(ctx, msg)
//	}); err != nil {
//		// async.ErrQueueFull or async.ErrPoolClosed
//	}
//
// # Related Packages
//
//   - pkg/mailer: delivers through a WorkerPool
//   - pkg/api: releases stored objects with SafeGo
package async
