package workflow

import "context"

type userKey struct{}

// WithUserID attaches the acting user to ctx. Status updates made with ctx
// are recorded against that user instead of Options.UserID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// actingUser returns the user on ctx, falling back to Options.UserID.
func (c *Controller) actingUser(ctx context.Context) string {
	if id, ok := ctx.Value(userKey{}).(string); ok && id != "" {
		return id
	}
	return c.opts.UserID
}
