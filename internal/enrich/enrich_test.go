package enrich

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ukboards/ukboards/internal/graph"
	"github.com/ukboards/ukboards/internal/transport"
)

func surveyFetcher(responses map[string]string) transport.Fetcher {
	return transport.FetcherFunc(func(method, url string, header http.Header, body []byte) (int, []byte, error) {
		if payload, ok := responses[url]; ok {
			return 200, []byte(payload), nil
		}
		return 404, []byte(`{"status": 404, "error": "Postcode not found"}`), nil
	})
}

func surveyResult(postcode string, lat, lon float64) string {
	return fmt.Sprintf(`{"status": 200, "result": {
		"postcode": %q, "quality": 1, "latitude": %v, "longitude": %v,
		"region": "London", "country": "England", "admin_district": "Haringey"
	}}`, postcode, lat, lon)
}

func TestLookup(t *testing.T) {
	client := NewClient(surveyFetcher(map[string]string{
		"https://api.postcodes.io/postcodes/N17%209LH": surveyResult("N17 9LH", 51.590792, -0.06056),
	}), "")

	record, err := client.Lookup("N17 9LH")
	require.NoError(t, err)
	require.NotNil(t, record)

	assert.Equal(t, "N17 9LH", record.Postcode)
	require.NotNil(t, record.Latitude)
	assert.InDelta(t, 51.590792, *record.Latitude, 1e-6)
	assert.Equal(t, "Haringey", record.District)
}

func TestLookup_TerminatedFallback(t *testing.T) {
	client := NewClient(surveyFetcher(map[string]string{
		"https://api.postcodes.io/terminated_postcodes/EX1%201AA": surveyResult("EX1 1AA", 50.7, -3.5),
	}), "")

	record, err := client.Lookup("EX1 1AA")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "EX1 1AA", record.Postcode)
}

func TestLookup_UnknownPostcode(t *testing.T) {
	client := NewClient(surveyFetcher(nil), "")

	record, err := client.Lookup("ZZ99 9ZZ")
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestLookup_ServerError(t *testing.T) {
	fetcher := transport.FetcherFunc(func(method, url string, header http.Header, body []byte) (int, []byte, error) {
		return 500, nil, nil
	})
	_, err := NewClient(fetcher, "").Lookup("N17 9LH")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestAnnotateGraph(t *testing.T) {
	g := graph.New()
	g.AddNode(graph.Node{
		ID:        "04547069",
		Name:      "PUNCHDRUNK",
		Kind:      graph.KindCompany,
		Bipartite: graph.SideOrganisation,
		Data: map[string]interface{}{
			"company": map[string]interface{}{
				"registered_office_address": map[string]interface{}{
					"postal_code": "N17 9LH",
					"locality":    "London",
				},
			},
		},
	})
	g.AddNode(graph.Node{
		ID:        "offA",
		Name:      "Colin MARSH",
		Kind:      graph.KindOfficer,
		Bipartite: graph.SidePerson,
		IsPerson:  true,
		Data: map[string]interface{}{
			"appointments": map[string]interface{}{
				"items": []interface{}{
					map[string]interface{}{
						"address": map[string]interface{}{"postal_code": "EC1R 5EW"},
					},
				},
			},
		},
	})
	g.AddNode(graph.Node{
		ID:        "1085314",
		Name:      "PHOTOGRAPHY FOUNDATION",
		Kind:      graph.KindCharity,
		Bipartite: graph.SideOrganisation,
		Data: map[string]interface{}{
			"CharityName": "PHOTOGRAPHY FOUNDATION",
			"Address": map[string]interface{}{
				"Line1":    "31 Eyre Street Hill ",
				"Postcode": "EC1R 5EW",
			},
		},
	})
	g.AddNode(graph.Node{
		ID:        "11589843",
		Name:      "Ms Nadia Addams",
		Kind:      graph.KindTrustee,
		Bipartite: graph.SidePerson,
		IsPerson:  true,
		Data:      map[string]interface{}{"TrusteeNumber": 11589843},
	})

	client := NewClient(surveyFetcher(map[string]string{
		"https://api.postcodes.io/postcodes/N17%209LH":  surveyResult("N17 9LH", 51.590792, -0.06056),
		"https://api.postcodes.io/postcodes/EC1R%205EW": surveyResult("EC1R 5EW", 51.522429, -0.10997),
	}), "")
	require.NoError(t, client.AnnotateGraph(g))

	t.Run("company", func(t *testing.T) {
		n, _ := g.Node("04547069")
		assert.Equal(t, "N17 9LH", n.Data["post_code"])
		record, ok := n.Data["ordinance"].(*Ordinance)
		require.True(t, ok)
		assert.Equal(t, "Haringey", record.District)
		assert.Equal(t, record.Latitude, n.Data["latitude"])
	})

	t.Run("officer", func(t *testing.T) {
		n, _ := g.Node("offA")
		assert.Equal(t, "EC1R 5EW", n.Data["post_code"])
		assert.NotNil(t, n.Data["ordinance"])
	})

	t.Run("charity address lines trimmed", func(t *testing.T) {
		n, _ := g.Node("1085314")
		address, ok := n.Data["address"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "31 Eyre Street Hill", address["Line1"])
		assert.Equal(t, "EC1R 5EW", n.Data["post_code"])
	})

	t.Run("trustee has no address", func(t *testing.T) {
		n, _ := g.Node("11589843")
		assert.Nil(t, n.Data["address"])
		assert.Equal(t, "", n.Data["post_code"])
		assert.Nil(t, n.Data["ordinance"])
		assert.Nil(t, n.Data["latitude"])
	})
}

func TestAnnotateGraph_UnresolvedPostcode(t *testing.T) {
	g := graph.New()
	g.AddNode(graph.Node{
		ID:        "04547069",
		Kind:      graph.KindCompany,
		Bipartite: graph.SideOrganisation,
		Data: map[string]interface{}{
			"company": map[string]interface{}{
				"registered_office_address": map[string]interface{}{"postal_code": "ZZ99 9ZZ"},
			},
		},
	})

	require.NoError(t, NewClient(surveyFetcher(nil), "").AnnotateGraph(g))
	n, _ := g.Node("04547069")
	assert.Nil(t, n.Data["ordinance"])
	assert.Nil(t, n.Data["latitude"])
}
