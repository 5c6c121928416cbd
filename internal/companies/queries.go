package companies

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ukboards/ukboards/internal/transport"
)

// CompaniesHouseURL is the companies registry REST endpoint.
const CompaniesHouseURL = "https://api.companieshouse.gov.uk"

// APIKeyEnvName is the env var carrying the companies registry key.
const APIKeyEnvName = "COMPANIES_HOUSE_KEY"

// Pagination keywords and the per-page cap of the officers/appointments
// listings.
const (
	totalResultsKeyword  = "total_results"
	itemsPerPageKeyword  = "items_per_page"
	startIndexKeyword    = "start_index"
	itemsPerQueryKeyword = "items_per_query_list"

	maxItemsPerPage = 50
)

// CompanyRecord is a company registration. Raw keeps the full payload for
// enrichment and node data.
type CompanyRecord struct {
	CompanyNumber CompanyID
	CompanyName   string
	CompanyStatus string
	OfficersLink  string
	Raw           map[string]interface{}
}

// OfficerEntry is one row of a company's officer listing.
type OfficerEntry struct {
	ID         string
	Name       string
	ResignedOn string
	Raw        map[string]interface{}
}

// Appointment is one row of an officer's appointment history.
type Appointment struct {
	CompanyNumber CompanyID
	Name          string
	Raw           map[string]interface{}
}

// ControllerEntry is one row of a company's significant-control listing.
type ControllerEntry struct {
	ID       string
	Name     string
	SelfLink string
	CeasedOn string
	Raw      map[string]interface{}
}

// Listing is a merged, possibly multi-page registry listing. ItemsPerQuery
// tracks per-page item counts for diagnostics.
type Listing struct {
	Items         []map[string]interface{}
	ItemsPerQuery []int
	Raw           map[string]interface{}
}

// GetCompany queries one company record. A (nil, nil) return means the
// company was not found or was filtered out as non-active.
func GetCompany(t *transport.Client, id CompanyID, excludeNonActive bool) (*CompanyRecord, error) {
	raw, err := t.Get("/company/"+id.String(), nil)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		logrus.Errorf("Querying data on company %s failed", id)
		return nil, nil
	}
	record, err := parseCompany(id, raw)
	if err != nil {
		return nil, err
	}
	if excludeNonActive && record.CompanyStatus != "" && record.CompanyStatus != "active" {
		logrus.Warnf("Excluding company %s because status is %s. Company name: %s",
			id, record.CompanyStatus, record.CompanyName)
		return nil, nil
	}
	return record, nil
}

func parseCompany(id CompanyID, raw json.RawMessage) (*CompanyRecord, error) {
	payload := map[string]interface{}{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("malformed company record for %s: %w", id, err)
	}
	record := &CompanyRecord{
		CompanyNumber: id,
		CompanyName:   asString(payload["company_name"]),
		CompanyStatus: asString(payload["company_status"]),
		OfficersLink:  asString(dig(payload, "links", "officers")),
		Raw:           payload,
	}
	return record, nil
}

// GetCompanyOfficers queries a company's officer listing, merging all pages.
func GetCompanyOfficers(t *transport.Client, id CompanyID) (*Listing, error) {
	listing, err := getPaginated(t, fmt.Sprintf("/company/%s/officers", id))
	if err != nil {
		return nil, err
	}
	if listing == nil {
		logrus.Errorf("Error requesting officers of company %s", id)
	}
	return listing, nil
}

// Officers extracts officer entries from a listing, optionally skipping
// members whose resignation date is before now.
func (l *Listing) Officers(excludeResigned bool, now time.Time) []OfficerEntry {
	if l == nil {
		return nil
	}
	var out []OfficerEntry
	for _, item := range l.Items {
		if excludeResigned && IsResigned(item, now) {
			logrus.Debugf("Skipping officer %s because of resignation on %v",
				asString(item["name"]), item[resignedKeyword])
			continue
		}
		appointmentsLink := asString(dig(item, "links", "officer", "appointments"))
		officerID := pathSegment(appointmentsLink, 2)
		if officerID == "" {
			logrus.Warnf("No officer appointments link in listing entry %q", asString(item["name"]))
			continue
		}
		out = append(out, OfficerEntry{
			ID:         officerID,
			Name:       asString(item["name"]),
			ResignedOn: asString(item[resignedKeyword]),
			Raw:        item,
		})
	}
	return out
}

// GetOfficerAppointments queries an officer's full appointment history.
func GetOfficerAppointments(t *transport.Client, officerID string) (*Listing, error) {
	listing, err := getPaginated(t, fmt.Sprintf("/officers/%s/appointments", officerID))
	if err != nil {
		return nil, err
	}
	if listing == nil {
		logrus.Errorf("Error requesting appointments of board member %s", officerID)
	}
	return listing, nil
}

// Appointments extracts per-company appointment records from a listing.
func (l *Listing) Appointments() []Appointment {
	if l == nil {
		return nil
	}
	var out []Appointment
	for _, item := range l.Items {
		number := asString(dig(item, "appointed_to", "company_number"))
		if number == "" {
			continue
		}
		out = append(out, Appointment{
			CompanyNumber: NormalizeID(number),
			Name:          asString(item["name"]),
			Raw:           item,
		})
	}
	return out
}

// GetSignificantControllers queries a company's significant-control listing.
func GetSignificantControllers(t *transport.Client, id CompanyID) (*Listing, error) {
	listing, err := getPaginated(t, fmt.Sprintf("/company/%s/persons-with-significant-control", id))
	if err != nil {
		return nil, err
	}
	if listing == nil {
		logrus.Errorf("Error requesting significant controllers from company %s", id)
	}
	return listing, nil
}

// Controllers extracts controller entries from a listing, optionally
// skipping controllers whose cessation date is before now.
func (l *Listing) Controllers(excludeCeased bool, now time.Time) []ControllerEntry {
	if l == nil {
		return nil
	}
	var out []ControllerEntry
	for _, item := range l.Items {
		if excludeCeased && IsCeased(item, now) {
			logrus.Debugf("Skipping controller %s because they ceased on %v",
				asString(item["name"]), item[ceasedKeyword])
			continue
		}
		self := asString(dig(item, "links", "self"))
		segments := strings.Split(self, "/")
		if self == "" || len(segments) < 2 {
			logrus.Warnf("No self link in controller listing entry %q", asString(item["name"]))
			continue
		}
		out = append(out, ControllerEntry{
			ID:       segments[len(segments)-1],
			Name:     asString(item["name"]),
			SelfLink: self,
			CeasedOn: asString(item[ceasedKeyword]),
			Raw:      item,
		})
	}
	return out
}

// GetControllerDetail queries a controller's own record, choosing the
// individual or corporate-entity sub-resource implied by its self link.
func GetControllerDetail(t *transport.Client, entry ControllerEntry) (map[string]interface{}, error) {
	segments := strings.Split(entry.SelfLink, "/")
	var query string
	if len(segments) >= 2 {
		switch segments[len(segments)-2] {
		case "individual":
			query = fmt.Sprintf("/company/%s/persons-with-significant-control/individual/%s",
				pathSegment(entry.SelfLink, 2), entry.ID)
		case "corporate-entity":
			query = fmt.Sprintf("/company/%s/persons-with-significant-control/corporate-entity/%s",
				pathSegment(entry.SelfLink, 2), entry.ID)
		}
	}
	if query == "" {
		logrus.Warnf("Querying an unsupported significant controller type %s", entry.SelfLink)
		query = entry.SelfLink
	}
	raw, err := t.Get(query, nil)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		logrus.Errorf("Error requesting data on significant controller from %s", entry.SelfLink)
		return nil, nil
	}
	payload := map[string]interface{}{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("malformed controller record from %s: %w", entry.SelfLink, err)
	}
	return payload, nil
}

// getPaginated fetches path, following start_index offsets whenever the
// total result count exceeds the page size. Pages that fail to parse are
// logged and contribute nothing rather than aborting the merge.
func getPaginated(t *transport.Client, path string) (*Listing, error) {
	params := url.Values{itemsPerPageKeyword: {strconv.Itoa(maxItemsPerPage)}}
	raw, err := t.Get(path, params)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	first := map[string]interface{}{}
	if err := json.Unmarshal(raw, &first); err != nil {
		return nil, fmt.Errorf("malformed listing from %s: %w", path, err)
	}

	listing := &Listing{Raw: first}
	listing.appendPage(first, path, 1, 1)

	total, hasTotal := asOptionalInt(first[totalResultsKeyword])
	perPage, hasPerPage := asOptionalInt(first[itemsPerPageKeyword])
	if !hasTotal || !hasPerPage || total <= perPage {
		return listing, nil
	}
	if perPage < maxItemsPerPage {
		perPage = maxItemsPerPage
	}

	remaining := int(math.Ceil(float64(total-perPage) / float64(maxItemsPerPage)))
	pageCount := remaining + 1
	for i := 0; i < remaining; i++ {
		pageParams := url.Values{
			itemsPerPageKeyword: {strconv.Itoa(perPage)},
			startIndexKeyword:   {strconv.Itoa((i + 1) * perPage)},
		}
		pageRaw, err := t.Get(path, pageParams)
		if err != nil {
			return nil, err
		}
		if pageRaw == nil {
			logrus.Warnf("Missing pagination page %d of %d for %s", i+2, pageCount, path)
			continue
		}
		page := map[string]interface{}{}
		if err := json.Unmarshal(pageRaw, &page); err != nil {
			logrus.Warnf("Could not extend pagination records for %s: %v at %d of %d queries",
				path, err, i+2, pageCount)
			continue
		}
		listing.appendPage(page, path, i+2, pageCount)
	}
	// A merged listing replaces Raw with the joined items so downstream
	// consumers see one coherent document.
	listing.Raw = map[string]interface{}{
		"items":              anySlice(listing.Items),
		itemsPerQueryKeyword: intSlice(listing.ItemsPerQuery),
	}
	return listing, nil
}

func (l *Listing) appendPage(page map[string]interface{}, path string, index, total int) {
	items, ok := page["items"].([]interface{})
	if !ok {
		logrus.Warnf("Could not extend pagination records for %s at %d of %d queries", path, index, total)
		return
	}
	count := 0
	for _, item := range items {
		entry, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		l.Items = append(l.Items, entry)
		count++
	}
	l.ItemsPerQuery = append(l.ItemsPerQuery, count)
}

func anySlice(items []map[string]interface{}) []interface{} {
	out := make([]interface{}, len(items))
	for i, item := range items {
		out[i] = item
	}
	return out
}

func intSlice(counts []int) []interface{} {
	out := make([]interface{}, len(counts))
	for i, c := range counts {
		out[i] = c
	}
	return out
}

func asString(value interface{}) string {
	s, _ := value.(string)
	return s
}

func asOptionalInt(value interface{}) (int, bool) {
	switch v := value.(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	}
	return 0, false
}

// dig walks nested maps by key, returning nil when any hop is absent.
func dig(payload map[string]interface{}, keys ...string) interface{} {
	var current interface{} = payload
	for _, key := range keys {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		current = m[key]
	}
	return current
}

// pathSegment returns the nth slash-separated segment of path, where the
// leading empty segment of an absolute path counts as index 0.
func pathSegment(path string, n int) string {
	segments := strings.Split(path, "/")
	if n < 0 || n >= len(segments) {
		return ""
	}
	return segments[n]
}
