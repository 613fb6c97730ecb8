package ads

import (
	"fmt"
	"strconv"
	"strings"
)

// Query is a structured GAQL query.
type Query struct {
	Fields     []string
	Resource   string
	Conditions []string
	Orderings  []string
	Limit      int
}

// String renders the query as
// SELECT f FROM r [WHERE c1 AND c2] [ORDER BY o1, o2] [LIMIT n].
func (q Query) String() string {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(q.Fields, ", "))
	b.WriteString(" FROM ")
	b.WriteString(q.Resource)
	if len(q.Conditions) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(q.Conditions, " AND "))
	}
	if len(q.Orderings) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(q.Orderings, ", "))
	}
	if q.Limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(q.Limit))
	}
	return b.String()
}

// Validate checks the parts GAQL requires.
func (q Query) Validate() error {
	if len(q.Fields) == 0 {
		return fmt.Errorf("%w: at least one field is required", ErrInvalidQuery)
	}
	for _, f := range q.Fields {
		if strings.TrimSpace(f) == "" {
			return fmt.Errorf("%w: empty field name", ErrInvalidQuery)
		}
	}
	if strings.TrimSpace(q.Resource) == "" || strings.ContainsAny(q.Resource, " ,") {
		return fmt.Errorf("%w: resource must be a single name", ErrInvalidQuery)
	}
	if q.Limit < 0 {
		return fmt.Errorf("%w: limit must not be negative", ErrInvalidQuery)
	}
	return nil
}

// NormalizeCustomerID strips dashes, spaces and a customers/ prefix and
// checks that ten digits remain.
func NormalizeCustomerID(id string) (string, error) {
	id = strings.TrimPrefix(strings.TrimSpace(id), "customers/")
	id = strings.NewReplacer("-", "", " ", "").Replace(id)
	if len(id) != 10 {
		return "", fmt.Errorf("%w: %q", ErrInvalidCustomerID, id)
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("%w: %q", ErrInvalidCustomerID, id)
		}
	}
	return id, nil
}
