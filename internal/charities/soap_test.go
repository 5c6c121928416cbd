package charities

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ukboards/ukboards/internal/transport"
)

func envelope(body string) string {
	return `<?xml version="1.0" encoding="utf-8"?>` +
		`<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">` +
		`<soap:Body>` + body + `</soap:Body></soap:Envelope>`
}

// soapServer captures the last request and replies with a canned envelope.
type soapServer struct {
	status int
	reply  string

	lastAction string
	lastBody   string
}

func (s *soapServer) client(apiKey string) *SOAPClient {
	fetcher := transport.FetcherFunc(func(method, url string, header http.Header, body []byte) (int, []byte, error) {
		s.lastAction = header.Get("SOAPAction")
		s.lastBody = string(body)
		return s.status, []byte(s.reply), nil
	})
	api := transport.NewClient(fetcher, transport.ClientConfig{BaseURL: CharityCommissionURL})
	return NewSOAPClient(api, apiKey)
}

func TestSOAPClient_GetCharity(t *testing.T) {
	server := &soapServer{
		status: 200,
		reply: envelope(`<GetCharityByRegisteredCharityNumberResponse xmlns="http://www.charitycommission.gov.uk/">` +
			`<GetCharityByRegisteredCharityNumberResult>` +
			`<CharityName>PHOTOGRAPHY FOUNDATION</CharityName>` +
			`<RegisteredCharityNumber>1085314</RegisteredCharityNumber>` +
			`<CharityNumber>1085314</CharityNumber>` +
			`<SubsidiaryNumber>0</SubsidiaryNumber>` +
			`<RegisteredCharityStatus>Registered</RegisteredCharityStatus>` +
			`<Address><Line1>31 Eyre Street Hill </Line1><Postcode>EC1R 5EW</Postcode></Address>` +
			`</GetCharityByRegisteredCharityNumberResult>` +
			`</GetCharityByRegisteredCharityNumberResponse>`),
	}
	client := server.client("secret-key")

	record, err := client.GetCharity(1085314)
	require.NoError(t, err)
	require.NotNil(t, record)

	assert.Equal(t, "PHOTOGRAPHY FOUNDATION", record.CharityName)
	assert.Equal(t, 1085314, record.RegisteredCharityNumber)
	require.NotNil(t, record.Address)
	assert.Equal(t, "EC1R 5EW", record.Address.Postcode)

	t.Run("request shape", func(t *testing.T) {
		assert.Equal(t, "http://www.charitycommission.gov.uk/GetCharityByRegisteredCharityNumber",
			server.lastAction)
		assert.Contains(t, server.lastBody, "<APIKey>secret-key</APIKey>")
		assert.Contains(t, server.lastBody, "<registeredCharityNumber>1085314</registeredCharityNumber>")
	})
}

func TestSOAPClient_GetCharity_EmptyResult(t *testing.T) {
	server := &soapServer{
		status: 200,
		reply: envelope(`<GetCharityByRegisteredCharityNumberResponse xmlns="http://www.charitycommission.gov.uk/">` +
			`</GetCharityByRegisteredCharityNumberResponse>`),
	}
	record, err := server.client("k").GetCharity(999999)
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestSOAPClient_GetCharityTrustees(t *testing.T) {
	server := &soapServer{
		status: 200,
		reply: envelope(`<GetCharityTrusteesResponse xmlns="http://www.charitycommission.gov.uk/">` +
			`<GetCharityTrusteesResult>` +
			`<Trustee><TrusteeName>Ms Nadia Addams</TrusteeName><TrusteeNumber>11589843</TrusteeNumber>` +
			`<RelatedCharitiesCount>1</RelatedCharitiesCount>` +
			`<RelatedCharities><RelatedCharity>` +
			`<CharityName>DARKROOM TRUST</CharityName><CharityNumber>1133209</CharityNumber>` +
			`</RelatedCharity></RelatedCharities></Trustee>` +
			`<Trustee><TrusteeName>Mr Aziz Olomi</TrusteeName><TrusteeNumber>11589844</TrusteeNumber>` +
			`<RelatedCharitiesCount>0</RelatedCharitiesCount></Trustee>` +
			`</GetCharityTrusteesResult>` +
			`</GetCharityTrusteesResponse>`),
	}
	client := server.client("k")

	trustees, err := client.GetCharityTrustees(1085314, 0)
	require.NoError(t, err)
	require.Len(t, trustees, 2)

	assert.Equal(t, "Ms Nadia Addams", trustees[0].TrusteeName)
	require.Len(t, trustees[0].RelatedCharities, 1)
	assert.Equal(t, 1133209, trustees[0].RelatedCharities[0].CharityNumber)
	assert.Empty(t, trustees[1].RelatedCharities)

	assert.Contains(t, server.lastBody, "<subsidiaryNumber>0</subsidiaryNumber>")
}

func TestSOAPClient_Fault(t *testing.T) {
	server := &soapServer{
		status: 500,
		reply: envelope(`<soap:Fault>` +
			`<faultcode>soap:Server</faultcode>` +
			`<faultstring>Invalid API key</faultstring>` +
			`</soap:Fault>`),
	}
	_, err := server.client("bad-key").GetCharity(1085314)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid API key")
}

func TestSOAPClient_MalformedResponse(t *testing.T) {
	server := &soapServer{status: 200, reply: "not xml at all <"}
	_, err := server.client("k").GetCharity(1085314)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed SOAP response")
}

func TestSOAPClient_EscapesKey(t *testing.T) {
	server := &soapServer{
		status: 200,
		reply: envelope(`<GetCharityByRegisteredCharityNumberResponse xmlns="http://www.charitycommission.gov.uk/">` +
			`</GetCharityByRegisteredCharityNumberResponse>`),
	}
	_, err := server.client("a<b&c").GetCharity(1)
	require.NoError(t, err)
	assert.Contains(t, server.lastBody, "<APIKey>a&lt;b&amp;c</APIKey>")
}

func TestCheckRegisteredCharityNumber(t *testing.T) {
	api := photographyRegistry()

	t.Run("found", func(t *testing.T) {
		id, err := CheckRegisteredCharityNumber(api, "DARKROOM TRUST", 1133209)
		require.NoError(t, err)
		assert.Equal(t, CharityID(1133209), id)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := CheckRegisteredCharityNumber(api, "DARKROOM TRUST", 42)
		require.Error(t, err)
	})
}
