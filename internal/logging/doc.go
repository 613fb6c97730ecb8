// Package logging holds the structured logging conventions of ads-mcp.
//
// All components log through log/slog. This package fixes the attribute
// keys and supplies helpers that keep personal data out of log lines:
//
//	logger := logging.WithTool(slog.Default(), "search")
//	logger.Info("query executed",
//	    logging.Customer(customerID),
//	    logging.UserHash(user.Email),
//	    logging.Status(logging.StatusSuccess))
//
// Email addresses are hashed by UserHash and tokens are reduced to their
// length by SanitizeToken. Neither is ever written verbatim.
package logging
