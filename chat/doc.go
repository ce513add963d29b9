// Package chat holds the vendor-neutral request and result types.
//
// A Request is a template: callers configure it once and every call derives an
// effective request from it with Request.With, so per-call adjustments such as
// forcing usage reporting never leak back into the template.
//
// A Result is produced by provider adapters, either for a whole response or for a
// single stream frame. Its Kind tells the streaming reconciler whether the frame is
// an incremental delta, a complete assistant message or only finish and usage data.
package chat
