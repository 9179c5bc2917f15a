package types

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

var (
	ErrConfigNotFound       = errors.New("config not found")
	ErrConfigInvalidPath    = errors.New("config invalid path")
	ErrConfigParseFailed    = errors.New("config parse failed")
	ErrConfigIsNil          = errors.New("config is nil")
	ErrConfigLoadFailed     = errors.New("config load failed")
	ErrConfigValidateFailed = errors.New("config validate failed")
)

var (
	ErrServerNotRunning        = errors.New("server not running")
	ErrServerAlreadyRunning    = errors.New("server already running")
	ErrServerStartFailed       = errors.New("server start failed")
	ErrServerStopFailed        = errors.New("server stop failed")
	ErrRouteFinalizationFailed = errors.New("route finalization failed")
	ErrHandlerIsNil            = errors.New("handler is nil")
)

var (
	ErrMiddlewareNotFound     = errors.New("middleware not found")
	ErrMiddlewareOrderInvalid = errors.New("middleware order invalid")
	ErrRateLimitExceeded      = errors.New("rate limit exceeded")
	ErrBodyTooLarge           = errors.New("request body too large")
	ErrOriginNotAllowed       = errors.New("origin not allowed")
)

var (
	ErrCacheConfiguration    = errors.New("cache configuration invalid")
	ErrCacheKeyEmpty         = errors.New("cache key empty")
	ErrCacheConnectionFailed = errors.New("cache connection failed")
	ErrCacheTypeUnknown      = errors.New("cache type unknown")
	ErrCacheOperationFailed  = errors.New("cache operation failed")
	ErrCacheIsDisabled       = errors.New("cache manager is disabled")
	ErrCacheDisposed         = errors.New("cache disposed")
)

var (
	ErrCronJobNotFound       = errors.New("cron job not found")
	ErrCronJobExists         = errors.New("cron job exists")
	ErrCronExpressionInvalid = errors.New("cron expression invalid")
	ErrCronJobNameIsEmpty    = errors.New("cron job name is empty")
	ErrCronJobIsNil          = errors.New("cron job is nil")
	ErrCronJobTimeout        = errors.New("cron job timeout")
)

var (
	ErrMetricsTypeUnknown   = errors.New("metrics type unknown")
	ErrMetricsConfigInvalid = errors.New("metrics config invalid")
	ErrMetricsIsDisabled    = errors.New("metrics manager is disabled")
)

var (
	ErrClientRequestFailed   = errors.New("client request failed")
	ErrClientResponseInvalid = errors.New("client response invalid")
	ErrCircuitBreakerOpen    = errors.New("circuit breaker open")
)

var (
	ErrDatabaseTypeUnknown     = errors.New("database type unknown")
	ErrDatabaseOperationFailed = errors.New("database operation failed")
	ErrCollectionIsEmpty       = errors.New("collection name is empty")
)

var (
	ErrTemplateNotFound  = errors.New("template not found")
	ErrTemplateInvalid   = errors.New("template invalid")
	ErrLinkConvertFailed = errors.New("link convert failed")
)

var (
	ErrHealthCheckFailed  = errors.New("health check failed")
	ErrHealthCheckTimeout = errors.New("health check timeout")
)

var (
	ErrLogFileIsEmpty    = errors.New("log file is empty")
	ErrLoggerTypeUnknown = errors.New("logger type unknown")
)

var (
	ErrServiceIsRunning     = errors.New("service is running")
	ErrServiceIsNotRunning  = errors.New("service is not running")
	ErrComponentStartFailed = errors.New("component start failed")
)

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrResourceNotFound = errors.New("resource not found")
	ErrInvalidState     = errors.New("invalid state")
)

func Errorf(baseErr error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", baseErr, fmt.Sprintf(format, args...))
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// NewError records a stack trace that ErrorWithErrStack can print.
func NewError(baseErr error, message string) error {
	return pkgerrors.Wrap(baseErr, message)
}

func NewErrorf(format string, args ...interface{}) error {
	return pkgerrors.Errorf(format, args...)
}

func IsError(err, target error) bool {
	return errors.Is(err, target)
}
