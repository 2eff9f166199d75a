package pgutils

import (
	"strings"
)

// containsErrorCode checks if the error message carries a SQLSTATE code.
func containsErrorCode(err error, code string) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return len(errStr) > 0 && (strings.Contains(errStr, code) || strings.Contains(errStr, "SQLSTATE "+code))
}

// Connection exception codes (class 08) and server shutdown codes (57P0x).
var connectionCodes = []string{"08000", "08001", "08003", "08004", "08006", "57P01", "57P02", "57P03"}

var connectionMessages = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"bad connection",
	"i/o timeout",
	"no such host",
	"server closed the connection",
	"invalid connection",
	"conn closed",
	"acquire connection",
}

// IsConnectionError reports whether err looks like a transport failure
// rather than a problem with the statement itself. Works for both the
// Postgres and MySQL drivers since it only inspects the message.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	for _, code := range connectionCodes {
		if containsErrorCode(err, code) {
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	for _, m := range connectionMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
