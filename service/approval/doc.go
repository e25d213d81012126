// Package approval implements the human-in-the-loop approval layer. It pauses
// a workflow run at a checkpoint by persisting an approval request together
// with an execution snapshot, collects decisions until the request resolves,
// and triggers exactly one resumption per request.
package approval
