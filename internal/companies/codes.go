package companies

import "fmt"

// Company number prefixes and the legal form they imply. The empty prefix is
// the purely numeric registration of an ordinary England & Wales company.
//
// "CE", "CS" and "SG" appear against real registrations but are missing from
// the registry's own uniform-resource-identifier documentation.
var companyURICodes = map[string]string{
	"": "England & Wales Company",

	// Not listed in the registry documentation.
	"CE": "Charitable incorporated organisation",
	"CS": "Scottish charitable incorporated organisation",
	"SG": "Scottish qualifying partnership",

	// Only company name and number held.
	"IP": "Industrial & Provident Company",
	"SP": "Scottish Industrial/Provident Company",
	"IC": "ICVC (Investment Company with Variable Capital",
	"SI": "Scottish ICVC (Investment Company with Variable Capital",
	"NP": "Northern Ireland Industrial/Provident Company or Credit Union",
	"NV": "Northern Ireland ICVC (Investment Company with Variable Capital",
	"RC": "Royal Charter Companies (English/Wales",
	"SR": "Scottish Royal Charter Companies",
	"NR": "Northern Ireland Royal Charter Companies",
	"NO": "Northern Ireland Credit Union Industrial/Provident Society",

	// Full data available.
	"AC": "Assurance Company for England & Wales",
	"ZC": "Unregistered Companies (S 1043 - Not Cos Act for England & Wales",
	"FC": "Overseas Company",
	"GE": "European Economic Interest Grouping (EEIG for England & Wales",
	"LP": "Limited for England & Wales",
	"OC": "Limited Liability Partnership for England & Wales",
	"SE": "European Company (Societas Europaea for England & Wales",
	"SA": "Assurance Company for Scotland",
	"SZ": "Unregistered Companies (S 1043 Not Cos Act for Scotland",
	"SF": "Overseas Company registered in Scotland (pre 1/10/09",
	"GS": "European Economic Interest Grouping (EEIG for Scotland",
	"SL": "Limited Partnership for Scotland",
	"SO": "Limited Liability Partnership for Scotland",
	"SC": "Scottish Company",
	"ES": "European Company (Societas Europaea for Scotland",
	"NA": "Assurance Company for Northern Ireland",
	"NZ": "Unregistered Companies (S 1043 Not Cos Act for Northern Ireland",
	"NF": "Overseas Company registered in Northern Ireland (pre 1/10/09",
	"GN": "European Economic Interest Grouping (EEIG for Northern Ireland",
	"NL": "Limited Partnership for Northern Ireland",
	"NC": "Limited Liability Partnership for Northern Ireland",
	"R0": "Northern Ireland Company (pre-partition",
	"NI": "Northern Ireland Company (post-partition",
	"EN": "European Company (Societas Europaea for Northern Ireland",
}

// UnknownPrefixError reports a company number prefix absent from the code
// table. That implies the registry's identifier scheme changed, so it is
// fatal rather than a data problem.
type UnknownPrefixError struct {
	ID CompanyID
}

func (e *UnknownPrefixError) Error() string {
	return fmt.Sprintf("company number %s prefix is unlisted", e.ID)
}

// CategoryForID derives a company's legal-form category from the first two
// characters of its normalized number.
func CategoryForID(id CompanyID) (string, error) {
	normalized := NormalizeID(string(id))
	if isDigits(string(normalized)) {
		return companyURICodes[""], nil
	}
	if len(normalized) >= 2 {
		if category, ok := companyURICodes[string(normalized)[:2]]; ok {
			return category, nil
		}
	}
	return "", &UnknownPrefixError{ID: normalized}
}
