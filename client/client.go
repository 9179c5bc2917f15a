package client

import (
	"errors"
	"net"

	"github.com/valyala/fasthttp"
)

// IsSuccessfulResponse treats 4xx answers other than 408 and 429 as
// successful exchanges: the remote side is healthy, the request was not.
func IsSuccessfulResponse(statusCode int, err error) bool {
	if err != nil {
		return false
	}

	switch {
	case statusCode >= 200 && statusCode < 400:
		return true
	case statusCode >= 400 && statusCode < 500:
		return statusCode != 408 && statusCode != 429
	default:
		return false
	}
}

func IsRetryableError(statusCode int, err error) bool {
	if err != nil {
		return isNetworkError(err)
	}

	switch statusCode {
	case 408, 429, 502, 503, 504:
		return true
	default:
		return false
	}
}

func IsCircuitBreakerFailure(statusCode int, err error) bool {
	if err != nil {
		return true
	}
	return statusCode >= 500 || statusCode == 408 || statusCode == 429
}

func isNetworkError(err error) bool {
	if errors.Is(err, fasthttp.ErrConnectionClosed) || errors.Is(err, fasthttp.ErrNoFreeConns) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}
