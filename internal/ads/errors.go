package ads

import (
	"errors"
	"fmt"

	"google.golang.org/api/googleapi"
)

var (
	ErrMissingCredentials    = errors.New("google ads credentials not configured: set a refresh token or a service account key")
	ErrMissingDeveloperToken = errors.New("google ads developer token not configured")
	ErrInvalidCustomerID     = errors.New("customer id must be 10 digits")
	ErrInvalidQuery          = errors.New("invalid query")
)

// Describe renders err for an MCP client. Google API errors keep their
// HTTP code and message; everything else is returned as is.
func Describe(err error) string {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		msg := gerr.Message
		if msg == "" {
			msg = gerr.Body
		}
		return fmt.Sprintf("Google Ads API error %d: %s", gerr.Code, msg)
	}
	return err.Error()
}
