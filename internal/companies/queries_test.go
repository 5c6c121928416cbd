package companies

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ukboards/ukboards/internal/transport"
)

// newTestAPI serves canned JSON bodies keyed by full request URL. Unknown
// URLs answer 404, matching how the registry reports absent records.
func newTestAPI(t *testing.T, responses map[string]string) *transport.Client {
	t.Helper()
	fetcher := transport.FetcherFunc(func(method, url string, header http.Header, body []byte) (int, []byte, error) {
		if payload, ok := responses[url]; ok {
			return 200, []byte(payload), nil
		}
		return 404, nil, nil
	})
	return transport.NewClient(fetcher, transport.ClientConfig{BaseURL: "https://api.test"})
}

func TestGetCompany(t *testing.T) {
	api := newTestAPI(t, map[string]string{
		"https://api.test/company/04547069": `{
			"company_name": "PUNCHDRUNK",
			"company_number": "04547069",
			"company_status": "active",
			"links": {"officers": "/company/04547069/officers"}
		}`,
		"https://api.test/company/06667896": `{
			"company_name": "DORMANT DREAMS LTD",
			"company_status": "dissolved"
		}`,
	})

	t.Run("active company", func(t *testing.T) {
		record, err := GetCompany(api, "04547069", false)
		require.NoError(t, err)
		require.NotNil(t, record)
		assert.Equal(t, "PUNCHDRUNK", record.CompanyName)
		assert.Equal(t, "active", record.CompanyStatus)
		assert.Equal(t, "/company/04547069/officers", record.OfficersLink)
	})

	t.Run("dissolved company excluded", func(t *testing.T) {
		record, err := GetCompany(api, "06667896", true)
		require.NoError(t, err)
		assert.Nil(t, record)
	})

	t.Run("dissolved company kept without filter", func(t *testing.T) {
		record, err := GetCompany(api, "06667896", false)
		require.NoError(t, err)
		require.NotNil(t, record)
		assert.Equal(t, "dissolved", record.CompanyStatus)
	})

	t.Run("absent company", func(t *testing.T) {
		record, err := GetCompany(api, "00000000", false)
		require.NoError(t, err)
		assert.Nil(t, record)
	})
}

func TestListing_Officers(t *testing.T) {
	now, err := time.Parse(DateFormat, "2020-03-21")
	require.NoError(t, err)

	listing := &Listing{Items: []map[string]interface{}{
		{
			"name": "MARSH, Colin",
			"links": map[string]interface{}{
				"officer": map[string]interface{}{
					"appointments": "/officers/kk4hteZw_nx0lRsy5RJvTXHnM7M/appointments",
				},
			},
		},
		{
			"name":        "BOOTH, Katy Eleanor",
			"resigned_on": "2018-10-08",
			"links": map[string]interface{}{
				"officer": map[string]interface{}{
					"appointments": "/officers/gTPJhJgfYYTDL2WFuV4e1JkB5zY/appointments",
				},
			},
		},
		{
			// No appointments link: skipped with a warning.
			"name": "UNLINKED, Officer",
		},
	}}

	t.Run("all officers", func(t *testing.T) {
		officers := listing.Officers(false, now)
		require.Len(t, officers, 2)
		assert.Equal(t, "kk4hteZw_nx0lRsy5RJvTXHnM7M", officers[0].ID)
		assert.Equal(t, "MARSH, Colin", officers[0].Name)
		assert.Equal(t, "gTPJhJgfYYTDL2WFuV4e1JkB5zY", officers[1].ID)
		assert.Equal(t, "2018-10-08", officers[1].ResignedOn)
	})

	t.Run("resigned excluded", func(t *testing.T) {
		officers := listing.Officers(true, now)
		require.Len(t, officers, 1)
		assert.Equal(t, "MARSH, Colin", officers[0].Name)
	})

	t.Run("nil listing", func(t *testing.T) {
		var empty *Listing
		assert.Nil(t, empty.Officers(false, now))
	})
}

func TestListing_Appointments(t *testing.T) {
	listing := &Listing{Items: []map[string]interface{}{
		{
			"name":         "MARSH, Colin",
			"appointed_to": map[string]interface{}{"company_number": "4547069"},
		},
		{
			"name":         "MARSH, Colin",
			"appointed_to": map[string]interface{}{"company_number": "CE010135"},
		},
		{
			// No company number: contributes nothing.
			"name": "MARSH, Colin",
		},
	}}

	appointments := listing.Appointments()
	require.Len(t, appointments, 2)
	assert.Equal(t, CompanyID("04547069"), appointments[0].CompanyNumber)
	assert.Equal(t, CompanyID("CE010135"), appointments[1].CompanyNumber)
}

func TestListing_Controllers(t *testing.T) {
	now, err := time.Parse(DateFormat, "2020-03-21")
	require.NoError(t, err)

	listing := &Listing{Items: []map[string]interface{}{
		{
			"name": "Mr Felix Joseph Barrett",
			"links": map[string]interface{}{
				"self": "/company/10098854/persons-with-significant-control/individual/N7UwUFGmQRKvRJXhMGDHjYp8zT8",
			},
		},
		{
			"name":      "CEASED HOLDINGS LTD",
			"ceased_on": "2017-02-03",
			"links": map[string]interface{}{
				"self": "/company/10098854/persons-with-significant-control/corporate-entity/aaa",
			},
		},
	}}

	t.Run("all controllers", func(t *testing.T) {
		controllers := listing.Controllers(false, now)
		require.Len(t, controllers, 2)
		assert.Equal(t, "N7UwUFGmQRKvRJXhMGDHjYp8zT8", controllers[0].ID)
		assert.Contains(t, controllers[0].SelfLink, "individual")
	})

	t.Run("ceased excluded", func(t *testing.T) {
		controllers := listing.Controllers(true, now)
		require.Len(t, controllers, 1)
		assert.Equal(t, "Mr Felix Joseph Barrett", controllers[0].Name)
	})
}

func TestGetControllerDetail(t *testing.T) {
	api := newTestAPI(t, map[string]string{
		"https://api.test/company/10098854/persons-with-significant-control/individual/ind1": `{
			"name": "Mr Felix Joseph Barrett", "kind": "individual-person-with-significant-control"
		}`,
		"https://api.test/company/10098854/persons-with-significant-control/corporate-entity/corp1": `{
			"name": "HOLDING LTD", "kind": "corporate-entity-person-with-significant-control"
		}`,
	})

	t.Run("individual", func(t *testing.T) {
		detail, err := GetControllerDetail(api, ControllerEntry{
			ID:       "ind1",
			SelfLink: "/company/10098854/persons-with-significant-control/individual/ind1",
		})
		require.NoError(t, err)
		require.NotNil(t, detail)
		assert.Equal(t, "Mr Felix Joseph Barrett", detail["name"])
	})

	t.Run("corporate entity", func(t *testing.T) {
		detail, err := GetControllerDetail(api, ControllerEntry{
			ID:       "corp1",
			SelfLink: "/company/10098854/persons-with-significant-control/corporate-entity/corp1",
		})
		require.NoError(t, err)
		require.NotNil(t, detail)
		assert.Equal(t, "HOLDING LTD", detail["name"])
	})

	t.Run("unsupported type falls back to self link", func(t *testing.T) {
		detail, err := GetControllerDetail(api, ControllerEntry{
			ID:       "x",
			SelfLink: "/company/10098854/persons-with-significant-control/legal-person/x",
		})
		require.NoError(t, err)
		assert.Nil(t, detail)
	})
}

func TestGetCompanyOfficers_Pagination(t *testing.T) {
	api := newTestAPI(t, map[string]string{
		"https://api.test/company/04547069/officers?items_per_page=50": `{
			"total_results": 120,
			"items_per_page": 50,
			"items": [{"name": "OFFICER A"}, {"name": "OFFICER B"}]
		}`,
		"https://api.test/company/04547069/officers?items_per_page=50&start_index=50": `{
			"items": [{"name": "OFFICER C"}]
		}`,
		"https://api.test/company/04547069/officers?items_per_page=50&start_index=100": `{
			"items": [{"name": "OFFICER D"}]
		}`,
	})

	listing, err := GetCompanyOfficers(api, "04547069")
	require.NoError(t, err)
	require.NotNil(t, listing)

	assert.Len(t, listing.Items, 4)
	assert.Equal(t, []int{2, 1, 1}, listing.ItemsPerQuery)

	// The merged listing's raw document carries the joined items plus the
	// per-query diagnostics.
	items, ok := listing.Raw["items"].([]interface{})
	require.True(t, ok)
	assert.Len(t, items, 4)
	assert.Equal(t, []interface{}{2, 1, 1}, listing.Raw["items_per_query_list"])
}

func TestGetCompanyOfficers_MalformedPageSkipped(t *testing.T) {
	api := newTestAPI(t, map[string]string{
		"https://api.test/company/04547069/officers?items_per_page=50": `{
			"total_results": 60,
			"items_per_page": 50,
			"items": [{"name": "OFFICER A"}]
		}`,
		"https://api.test/company/04547069/officers?items_per_page=50&start_index=50": `{not json`,
	})

	listing, err := GetCompanyOfficers(api, "04547069")
	require.NoError(t, err)
	require.NotNil(t, listing)

	// The malformed page contributes nothing; the first page survives.
	assert.Len(t, listing.Items, 1)
	assert.Equal(t, []int{1}, listing.ItemsPerQuery)
}

func TestGetCompanyOfficers_SinglePage(t *testing.T) {
	api := newTestAPI(t, map[string]string{
		"https://api.test/company/04547069/officers?items_per_page=50": `{
			"total_results": 2,
			"items_per_page": 50,
			"items": [{"name": "OFFICER A"}, {"name": "OFFICER B"}]
		}`,
	})

	listing, err := GetCompanyOfficers(api, "04547069")
	require.NoError(t, err)
	require.NotNil(t, listing)
	assert.Len(t, listing.Items, 2)
	// Single-page listings keep their original raw document.
	assert.Contains(t, listing.Raw, "total_results")
}

func TestGetCompanyOfficers_Absent(t *testing.T) {
	api := newTestAPI(t, nil)

	listing, err := GetCompanyOfficers(api, "00000000")
	require.NoError(t, err)
	assert.Nil(t, listing)
}
