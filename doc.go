// Package pausor provides a durable approval pause/resume engine for
// long-running workflows.
//
// A workflow engine reaching a checkpoint hands its execution context to
// pausor, which snapshots it, parks an approval request and releases the
// worker. Once the required approvals arrive (or a timeout policy fires) the
// snapshot is rehydrated, the outcome injected and the run handed back to the
// engine - exactly once per request.
//
// The engine is designed to be embedded in host applications. End-users
// typically interact via the high-level Service façade exposed by the root
// package:
//
//	srv := pausor.New(pausor.WithCheckpoints(checkpoints))
//	result, _ := srv.Approvals().EvaluateCheckpoint(ctx, checkpoint, execCtx, vars)
//	if result.Suspended {
//		// worker released; decisions arrive via srv.Approvals() or the
//		// REST gateway
//	}
//
// For more details see the README and individual sub-packages.
package pausor
