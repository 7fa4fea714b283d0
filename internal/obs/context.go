package obs

import "context"

// routePatternKey keys the matched chi pattern set by RoutePatternMiddleware.
type routePatternKey struct{}

// WithRoutePattern records the matched pattern for the metrics and tracing
// middleware further down the chain.
func WithRoutePattern(ctx context.Context, pattern string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, routePatternKey{}, pattern)
}

// RoutePatternFromContext returns the recorded pattern, or "" before routing.
func RoutePatternFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(routePatternKey{}).(string); ok {
		return v
	}
	return ""
}
