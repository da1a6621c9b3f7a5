package auth

import "context"

type ctxKey int

const userHandleKey ctxKey = 1

// WithUserHandle and UserHandleFrom thread the authenticated UserHandle
// through request context, generalized from the teacher's
// WithPrincipal/PrincipalFrom pattern.
func WithUserHandle(ctx context.Context, u *UserHandle) context.Context {
	return context.WithValue(ctx, userHandleKey, u)
}

func UserHandleFrom(ctx context.Context) (*UserHandle, bool) {
	u, ok := ctx.Value(userHandleKey).(*UserHandle)
	return u, ok
}
