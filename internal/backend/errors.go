package backend

import (
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/usmle-prep/quizengine/internal/infra/postgres/repository"
)

// Kind is the coarse category of a backend failure.
type Kind string

const (
	KindNetwork  Kind = "network"
	KindAuth     Kind = "auth"
	KindNotFound Kind = "notFound"
	KindUnknown  Kind = "unknown"
)

var (
	// ErrAlreadyCompleted is returned by CompleteSession for a finished session.
	ErrAlreadyCompleted = errors.New("quiz session already completed")
	// ErrSessionNotFound is returned for unknown session ids.
	ErrSessionNotFound = errors.New("quiz session not found")
)

// Error wraps every failure returned by Client.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("backend %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// authCodes are SQLSTATE codes raised by RLS and credential checks.
var authCodes = map[string]struct{}{
	"42501": {}, // insufficient_privilege
	"28000": {}, // invalid_authorization_specification
	"28P01": {}, // invalid_password
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: kindOf(err), Err: err}
}

func kindOf(err error) Kind {
	switch {
	case errors.Is(err, repository.ErrSessionNotFound),
		errors.Is(err, repository.ErrQuestionNotFound),
		errors.Is(err, repository.ErrStatsNotFound),
		errors.Is(err, repository.ErrProfileNotFound),
		errors.Is(err, ErrSessionNotFound):
		return KindNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if _, ok := authCodes[pgErr.Code]; ok {
			return KindAuth
		}
		if len(pgErr.Code) == 5 && pgErr.Code[:2] == "08" {
			return KindNetwork
		}
		return KindUnknown
	}

	var netErr net.Error
	var connectErr *pgconn.ConnectError
	if errors.As(err, &netErr) || errors.As(err, &connectErr) {
		return KindNetwork
	}

	return KindUnknown
}

// IsKind reports whether err is a backend error of the given kind.
func IsKind(err error, kind Kind) bool {
	var be *Error
	return errors.As(err, &be) && be.Kind == kind
}
