package domain

import "context"

type lastDeliveryKey struct{}

// WithLastDelivery marks ctx as carrying the final delivery of a queued job.
// A handler that sees it must treat every failure as final.
func WithLastDelivery(ctx context.Context) context.Context {
	return context.WithValue(ctx, lastDeliveryKey{}, true)
}

func IsLastDelivery(ctx context.Context) bool {
	last, _ := ctx.Value(lastDeliveryKey{}).(bool)
	return last
}
