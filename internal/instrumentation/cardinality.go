package instrumentation

import "strings"

// ExtractUserDomain reduces an email to its domain so it can be used as a
// metric label. Missing or malformed input maps to "unknown".
//
//	ExtractUserDomain("jane@example.com")  // "example.com"
//	ExtractUserDomain("invalid")           // "unknown"
func ExtractUserDomain(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) == 2 && parts[1] != "" {
		return strings.ToLower(parts[1])
	}
	return "unknown"
}

// Ads API operation names used as metric labels and span suffixes.
const (
	OperationSearch                  = "search"
	OperationListAccessibleCustomers = "list_accessible_customers"
	OperationSearchFields            = "search_fields"
)
