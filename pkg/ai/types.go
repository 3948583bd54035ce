package ai

import "context"

// Replier generates a short conversational reply to a user's question. The
// responder falls back to its canned reply set when no Replier is configured
// or a call fails.
type Replier interface {
	Reply(ctx context.Context, prompt string) (string, error)
}
