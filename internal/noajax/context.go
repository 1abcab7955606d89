package noajax

import "context"

type doingAjaxKey struct{}

func withDoingAjax(ctx context.Context) context.Context {
	return context.WithValue(ctx, doingAjaxKey{}, true)
}

// DoingAjax reports whether ctx belongs to an intercepted asynchronous
// request. Extension point handlers use it to skip page-rendering work.
func DoingAjax(ctx context.Context) bool {
	v, _ := ctx.Value(doingAjaxKey{}).(bool)
	return v
}
