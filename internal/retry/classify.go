package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
)

// Class is the retry class of an error.
type Class string

const (
	ClassNetwork     Class = "network"
	ClassTimeout     Class = "timeout"
	ClassRateLimit   Class = "rateLimit"
	ClassApplication Class = "application"
)

// Postgres SQLSTATE codes that are worth retrying.
var (
	rateLimitCodes = map[string]struct{}{
		"53300": {}, // too_many_connections
		"53400": {}, // configuration_limit_exceeded
	}
	networkCodes = map[string]struct{}{
		"08000": {}, // connection_exception
		"08001": {}, // sqlclient_unable_to_establish_sqlconnection
		"08003": {}, // connection_does_not_exist
		"08004": {}, // sqlserver_rejected_establishment_of_sqlconnection
		"08006": {}, // connection_failure
		"57P01": {}, // admin_shutdown
		"57P02": {}, // crash_shutdown
		"57P03": {}, // cannot_connect_now
	}
	timeoutCodes = map[string]struct{}{
		"57014": {}, // query_canceled, raised by statement_timeout
		"55P03": {}, // lock_not_available
	}
)

// Message fragments, matched against the lower-cased error text.
var (
	rateLimitHints = []string{"rate limit", "too many requests", "status 429", "too many connections"}
	timeoutHints   = []string{"timeout", "timed out", "deadline exceeded"}
	networkHints   = []string{
		"connection refused", "connection reset", "broken pipe", "no such host",
		"network is unreachable", "failed to connect", "fetch failed", "unexpected eof",
	}
)

// Classify maps an error onto a retry class. Unknown errors are application errors.
func Classify(err error) Class {
	if err == nil || errors.Is(err, context.Canceled) {
		return ClassApplication
	}

	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return ClassTimeout
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if _, ok := rateLimitCodes[pgErr.Code]; ok {
			return ClassRateLimit
		}
		if _, ok := networkCodes[pgErr.Code]; ok {
			return ClassNetwork
		}
		if _, ok := timeoutCodes[pgErr.Code]; ok {
			return ClassTimeout
		}
		// Any other server-side error is a response to a well-formed request.
		return ClassApplication
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ClassTimeout
		}
		return ClassNetwork
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return ClassNetwork
	}

	if errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return ClassNetwork
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, rateLimitHints):
		return ClassRateLimit
	case containsAny(msg, timeoutHints):
		return ClassTimeout
	case containsAny(msg, networkHints):
		return ClassNetwork
	}

	return ClassApplication
}

func containsAny(s string, hints []string) bool {
	for _, h := range hints {
		if strings.Contains(s, h) {
			return true
		}
	}
	return false
}
