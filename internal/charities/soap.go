package charities

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/ukboards/ukboards/internal/transport"
)

// CharityCommissionURL is the charities registry SOAP endpoint.
const CharityCommissionURL = "https://apps.charitycommission.gov.uk/Showcharity/API/SearchCharitiesV1/SearchCharitiesV1.asmx"

// APIKeyEnvName is the env var carrying the charities registry key.
const APIKeyEnvName = "CHARITY_COMMISSION_KEY"

const soapNamespace = "http://www.charitycommission.gov.uk/"

// CharityID is a registered charity number.
type CharityID int

func (id CharityID) String() string {
	return strconv.Itoa(int(id))
}

// CharityRecord is a charity registration as returned by the registry.
type CharityRecord struct {
	CharityName             string          `xml:"CharityName"`
	RegisteredCharityNumber int             `xml:"RegisteredCharityNumber"`
	CharityNumber           int             `xml:"CharityNumber"`
	SubsidiaryNumber        int             `xml:"SubsidiaryNumber"`
	CharityType             string          `xml:"CharityType"`
	RegisteredStatus        string          `xml:"RegisteredCharityStatus"`
	Address                 *CharityAddress `xml:"Address"`
}

// CharityAddress is the registered contact address of a charity. The
// registry pads address lines with trailing whitespace.
type CharityAddress struct {
	Line1    string `xml:"Line1"`
	Line2    string `xml:"Line2"`
	Line3    string `xml:"Line3"`
	Line4    string `xml:"Line4"`
	Line5    string `xml:"Line5"`
	Postcode string `xml:"Postcode"`
}

// RelatedCharity is a charity referenced from a trustee record.
type RelatedCharity struct {
	CharityName   string `xml:"CharityName"`
	CharityNumber int    `xml:"CharityNumber"`
}

// Trustee is one member of a charity's board.
type Trustee struct {
	TrusteeName           string           `xml:"TrusteeName"`
	TrusteeNumber         int              `xml:"TrusteeNumber"`
	RelatedCharitiesCount int              `xml:"RelatedCharitiesCount"`
	RelatedCharities      []RelatedCharity `xml:"RelatedCharities>RelatedCharity"`
}

// API is the charity-registry query surface the network client crawls.
// Implementations return (nil, nil) / (empty, nil) for absent records.
type API interface {
	GetCharity(number CharityID) (*CharityRecord, error)
	GetCharityTrustees(number CharityID, subsidiary int) ([]Trustee, error)
	GetCharitiesByName(search string) ([]CharityRecord, error)
}

// SOAPClient implements API over the registry's SOAP endpoint, injecting
// the APIKey element into every request body.
type SOAPClient struct {
	transport *transport.Client
	apiKey    string
}

// NewSOAPClient creates a charity-registry client over the shared transport.
func NewSOAPClient(t *transport.Client, apiKey string) *SOAPClient {
	return &SOAPClient{transport: t, apiKey: apiKey}
}

type soapEnvelope struct {
	XMLName xml.Name `xml:"http://schemas.xmlsoap.org/soap/envelope/ Envelope"`
	Body    soapBody `xml:"Body"`
}

type soapBody struct {
	Payload []byte `xml:",innerxml"`
}

type soapFault struct {
	Code   string `xml:"faultcode"`
	Reason string `xml:"faultstring"`
}

// call posts one SOAP operation and decodes the <operation>Result element
// into result.
func (c *SOAPClient) call(operation string, params map[string]string, result interface{}) error {
	body := fmt.Sprintf(`<%s xmlns=%q><APIKey>%s</APIKey>`, operation, soapNamespace, xmlEscape(c.apiKey))
	for name, value := range params {
		body += fmt.Sprintf("<%s>%s</%s>", name, xmlEscape(value), name)
	}
	body += fmt.Sprintf("</%s>", operation)
	request := fmt.Sprintf(
		`<?xml version="1.0" encoding="utf-8"?>`+
			`<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">`+
			`<soap:Body>%s</soap:Body></soap:Envelope>`, body)

	header := make(http.Header)
	header.Set("SOAPAction", soapNamespace+operation)
	status, payload, err := c.transport.Post("", "text/xml; charset=utf-8", []byte(request), header)
	if err != nil {
		return err
	}

	var envelope soapEnvelope
	if unmarshalErr := xml.Unmarshal(payload, &envelope); unmarshalErr != nil {
		return fmt.Errorf("malformed SOAP response for %s: %w", operation, unmarshalErr)
	}
	if status != http.StatusOK {
		var fault soapFault
		if xml.Unmarshal(envelope.Body.Payload, &fault) == nil && fault.Reason != "" {
			return fmt.Errorf("SOAP fault from %s: %s", operation, fault.Reason)
		}
		return fmt.Errorf("status code %d from SOAP operation %s", status, operation)
	}
	if result == nil {
		return nil
	}
	if unmarshalErr := xml.Unmarshal(envelope.Body.Payload, result); unmarshalErr != nil {
		return fmt.Errorf("malformed %s result: %w", operation, unmarshalErr)
	}
	return nil
}

// GetCharity queries one charity record by registered number.
func (c *SOAPClient) GetCharity(number CharityID) (*CharityRecord, error) {
	var response struct {
		XMLName xml.Name       `xml:"GetCharityByRegisteredCharityNumberResponse"`
		Result  *CharityRecord `xml:"GetCharityByRegisteredCharityNumberResult"`
	}
	err := c.call("GetCharityByRegisteredCharityNumber",
		map[string]string{"registeredCharityNumber": number.String()}, &response)
	if err != nil {
		return nil, err
	}
	return response.Result, nil
}

// GetCharityTrustees queries the trustees of one charity sub-registration.
func (c *SOAPClient) GetCharityTrustees(number CharityID, subsidiary int) ([]Trustee, error) {
	var response struct {
		XMLName xml.Name  `xml:"GetCharityTrusteesResponse"`
		Result  []Trustee `xml:"GetCharityTrusteesResult>Trustee"`
	}
	err := c.call("GetCharityTrustees", map[string]string{
		"registeredCharityNumber": number.String(),
		"subsidiaryNumber":        strconv.Itoa(subsidiary),
	}, &response)
	if err != nil {
		return nil, err
	}
	return response.Result, nil
}

// GetCharitiesByName searches charity registrations by name.
func (c *SOAPClient) GetCharitiesByName(search string) ([]CharityRecord, error) {
	var response struct {
		XMLName xml.Name        `xml:"GetCharitiesByNameResponse"`
		Result  []CharityRecord `xml:"GetCharitiesByNameResult>CharityList"`
	}
	err := c.call("GetCharitiesByName", map[string]string{"strSearch": search}, &response)
	if err != nil {
		return nil, err
	}
	return response.Result, nil
}

// CheckRegisteredCharityNumber searches by name and returns the registered
// number whose record's CharityNumber matches charityNumber.
func CheckRegisteredCharityNumber(api API, name string, charityNumber int) (CharityID, error) {
	charities, err := api.GetCharitiesByName(name)
	if err != nil {
		return 0, err
	}
	for _, charity := range charities {
		record, err := api.GetCharity(CharityID(charity.RegisteredCharityNumber))
		if err != nil {
			logrus.Warnf("Skipping charity %d while matching %q: %v",
				charity.RegisteredCharityNumber, name, err)
			continue
		}
		if record != nil && record.CharityNumber == charityNumber {
			return CharityID(record.RegisteredCharityNumber), nil
		}
	}
	return 0, fmt.Errorf("no charity found with CharityNumber %d", charityNumber)
}

func xmlEscape(value string) string {
	var buffer bytes.Buffer
	_ = xml.EscapeText(&buffer, []byte(value))
	return buffer.String()
}
