package logging

import (
	"context"

	"github.com/google/uuid"
)

type debugTagKey struct{}

const debugTagField = "debug"

// WithDebug marks ctx so CDebugw logs regardless of the logger level. The tag is attached to
// every such entry to correlate them; an empty tag picks a random one.
func WithDebug(ctx context.Context, tag string) context.Context {
	if tag == "" {
		tag = uuid.NewString()[:8]
	}
	return context.WithValue(ctx, debugTagKey{}, tag)
}

// DebugTag returns the tag set by WithDebug, or "" when ctx is not marked.
func DebugTag(ctx context.Context) string {
	tag, _ := ctx.Value(debugTagKey{}).(string)
	return tag
}
