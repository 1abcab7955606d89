package platform

import (
	"context"
	"net/url"
)

type queryVarsKey struct{}

// WithQueryVars returns a context carrying the query variables resolved by
// the rewrite table.
func WithQueryVars(ctx context.Context, vars url.Values) context.Context {
	return context.WithValue(ctx, queryVarsKey{}, vars)
}

// queryVars returns the resolved query variables, or nil outside the
// request pipeline.
func queryVars(ctx context.Context) url.Values {
	vars, _ := ctx.Value(queryVarsKey{}).(url.Values)
	return vars
}

// QueryVar returns a single resolved query variable.
func QueryVar(ctx context.Context, name string) string {
	return queryVars(ctx).Get(name)
}
