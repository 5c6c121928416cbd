package companies

import (
	"fmt"
	"strconv"
)

// CompanyID is a normalized companies-registry identifier: purely numeric
// registrations are zero-padded to 8 characters, prefixed codes (for example
// "CE010135") pass through unchanged. Construct one through NormalizeID so
// downstream code never branches on representation.
type CompanyID string

const companyIDMinWidth = 8

// NormalizeID canonicalizes a raw identifier string. It is idempotent.
func NormalizeID(id string) CompanyID {
	if id != "" && len(id) < companyIDMinWidth {
		return CompanyID(fmt.Sprintf("%0*s", companyIDMinWidth, id))
	}
	return CompanyID(id)
}

// NormalizeIntID canonicalizes a numeric identifier.
func NormalizeIntID(id int) CompanyID {
	return NormalizeID(strconv.Itoa(id))
}

func (id CompanyID) String() string {
	return string(id)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
