// Package shorttermmemory holds the message history of a conversation, with
// checkpoints for transactional updates and usage tracking.
//
// Design decisions:
//   - Transactional turns: a round trip takes a Checkpoint before it writes and
//     restores it on failure, so a failed call leaves the history untouched
//   - Copy on read: Messages and Checkpoint return clones, callers can never alias
//     the stored history
//   - Stable identities: edit and remove address messages by id, an edit can not
//     change the id
//   - Usage attribution: prompt tokens are recorded on the user message that
//     triggered them, totals accumulate on the aggregator
//
// Example usage:
//
//	history := shorttermmemory.New()
//	history.Add(messages.User("What's the weather?"))
//
//	cp := history.Checkpoint()
//	history.Add(messages.Assistant("Sunny."))
//	history.AddUsage(&chat.Usage{PromptTokens: 12, CompletionTokens: 3, TotalTokens: 15})
//	if failed {
//		history.Restore(cp)
//	}
package shorttermmemory
