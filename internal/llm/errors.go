package llm

import (
	"errors"
	"strings"
)

// ErrFatalAPI marks provider errors that will not succeed on retry:
// authentication, billing, and quota problems. Batch jobs abort when
// they see one instead of burning through the whole batch.
var ErrFatalAPI = errors.New("fatal API error")

var fatalPatterns = []string{
	"credit balance",
	"rate limit",
	"quota exceeded",
	"billing",
	"invalid api key",
	"authentication failed",
	"unauthorized",
	"401",
	"403",
}

// isFatalAPIError reports whether err looks like an auth/billing/quota
// failure rather than a transient one.
func isFatalAPIError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range fatalPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// wrapFatalError wraps err with ErrFatalAPI when it matches a fatal
// pattern, and returns it untouched otherwise.
func wrapFatalError(err error) error {
	if err == nil {
		return nil
	}
	if isFatalAPIError(err) {
		return errors.Join(ErrFatalAPI, err)
	}
	return err
}
