package execution

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/url"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// retryablePgCodes are PostgreSQL SQLSTATEs worth another attempt:
// serialization_failure, deadlock_detected, lock_not_available, admin_shutdown.
var retryablePgCodes = map[string]bool{
	"40001": true,
	"40P01": true,
	"55P03": true,
	"57P01": true,
}

type statusCoder interface {
	StatusCode() int
}

type httpCoder interface {
	HTTPCode() int
}

// Classify assigns err to Transient or Fatal. The rules are checked in order:
// already classified, serialization, network and data access, status code, default.
func Classify(err error, agent string) *AgentError {
	var classified *AgentError
	if errors.As(err, &classified) {
		return classified
	}
	if isSerialization(err) {
		return NewFatal(agent, err)
	}
	if isNetwork(err) || isRetryableDataAccess(err) {
		return NewTransient(agent, err)
	}
	if code, ok := statusCode(err); ok && retryableStatus(code) {
		return NewTransient(agent, err)
	}
	if isRetryableGRPC(err) {
		return NewTransient(agent, err)
	}
	return NewFatal(agent, err)
}

func isSerialization(err error) bool {
	var serErr *SerializationError
	var typeErr *json.UnsupportedTypeError
	var valueErr *json.UnsupportedValueError
	var marshalErr *json.MarshalerError
	return errors.As(err, &serErr) ||
		errors.As(err, &typeErr) ||
		errors.As(err, &valueErr) ||
		errors.As(err, &marshalErr)
}

func isNetwork(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}

	var netErr net.Error
	var dnsErr *net.DNSError
	var opErr *net.OpError
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &dnsErr) || errors.As(err, &opErr) || errors.As(err, &urlErr) {
		return true
	}

	var recordErr tls.RecordHeaderError
	var verifyErr *tls.CertificateVerificationError
	var authorityErr x509.UnknownAuthorityError
	var hostnameErr x509.HostnameError
	var invalidErr x509.CertificateInvalidError
	return errors.As(err, &recordErr) ||
		errors.As(err, &verifyErr) ||
		errors.As(err, &authorityErr) ||
		errors.As(err, &hostnameErr) ||
		errors.As(err, &invalidErr)
}

func isRetryableDataAccess(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return retryablePgCodes[pgErr.Code] || strings.HasPrefix(pgErr.Code, "08")
	}
	return pgconn.Timeout(err) || pgconn.SafeToRetry(err)
}

func statusCode(err error) (int, bool) {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code, true
	}
	var sc statusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode(), true
	}
	var hc httpCoder
	if errors.As(err, &hc) {
		return hc.HTTPCode(), true
	}
	return 0, false
}

func retryableStatus(code int) bool {
	return code == 429 || code == 502 || code == 503 || code == 504 || (code >= 500 && code <= 599)
}

func isRetryableGRPC(err error) bool {
	s, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch s.Code() {
	case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Aborted:
		return true
	}
	return false
}
