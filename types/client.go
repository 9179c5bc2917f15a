package types

import (
	"context"
	"time"
)

type ClientManager interface {
	LifecycleManager
	Call(ctx context.Context, method, url string, data interface{}, opts *CallOptions) ([]byte, int, error)
	Resolve(ctx context.Context, url string, maxRedirects int) (string, error)
}

type CallOptions struct {
	Timeout time.Duration
	Retry   int
	Headers map[string]string
}
