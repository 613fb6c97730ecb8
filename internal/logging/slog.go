package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// Attribute keys shared by every component.
const (
	KeyOperation = "operation"
	KeyTool      = "tool"
	KeyCustomer  = "customer_id"
	KeyStep      = "step"
	KeyTransport = "transport"
	KeyUserHash  = "user_hash"
	KeyDuration  = "duration"
	KeyStatus    = "status"
	KeyError     = "error"
)

// Status values. Duplicated from instrumentation, which imports this package.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// New returns a text logger writing to w at info level, or debug level
// when debug is set.
func New(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// WithOperation returns a logger with the operation attribute set.
func WithOperation(logger *slog.Logger, operation string) *slog.Logger {
	return logger.With(slog.String(KeyOperation, operation))
}

// WithTool returns a logger with the tool attribute set.
func WithTool(logger *slog.Logger, tool string) *slog.Logger {
	return logger.With(slog.String(KeyTool, tool))
}

func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

func Tool(tool string) slog.Attr {
	return slog.String(KeyTool, tool)
}

// Customer returns the Ads customer id attribute.
func Customer(id string) slog.Attr {
	return slog.String(KeyCustomer, id)
}

// Step returns the bootstrap step attribute.
func Step(name string) slog.Attr {
	return slog.String(KeyStep, name)
}

func Transport(name string) slog.Attr {
	return slog.String(KeyTransport, name)
}

func Status(status string) slog.Attr {
	return slog.String(KeyStatus, status)
}

// Duration rounds d to milliseconds.
func Duration(d time.Duration) slog.Attr {
	return slog.Duration(KeyDuration, d.Round(time.Millisecond))
}

// Err returns an error attribute. A nil error yields an empty group, which
// slog omits, so Err(maybeNil) is always safe to pass.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}

// AnonymizeEmail returns a stable hash of email so log lines can be
// correlated without recording the address.
func AnonymizeEmail(email string) string {
	if email == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(strings.ToLower(email)))
	return "user:" + hex.EncodeToString(hash[:8])
}

// UserHash returns the anonymized user attribute.
func UserHash(email string) slog.Attr {
	return slog.String(KeyUserHash, AnonymizeEmail(email))
}

// SanitizeToken reports only the token length. Even a prefix can leak
// structure, so no characters are kept.
func SanitizeToken(token string) string {
	if token == "" {
		return "<empty>"
	}
	return fmt.Sprintf("[token:%d chars]", len(token))
}

// ExtractDomain returns the part after '@', or "" for malformed input.
func ExtractDomain(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 || parts[1] == "" {
		return ""
	}
	return strings.ToLower(parts[1])
}

// Domain returns the user's email domain, a lower cardinality alternative
// to UserHash.
func Domain(email string) slog.Attr {
	return slog.String("user_domain", ExtractDomain(email))
}
