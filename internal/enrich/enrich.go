// Package enrich attaches geographic coordinates to crawled nodes by
// resolving their registered postcodes against postcodes.io.
package enrich

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/ukboards/ukboards/internal/graph"
	"github.com/ukboards/ukboards/internal/transport"
)

const (
	// PostcodeBaseURL is the postcodes.io API root.
	PostcodeBaseURL = "https://api.postcodes.io"

	currentPath    = "/postcodes/"
	terminatedPath = "/terminated_postcodes/"
)

// Ordinance is the survey record postcodes.io returns for a postcode.
type Ordinance struct {
	Postcode  string   `json:"postcode"`
	Quality   int      `json:"quality"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Region    string   `json:"region"`
	Country   string   `json:"country"`
	District  string   `json:"admin_district"`
}

type lookupResponse struct {
	Status int             `json:"status"`
	Result json.RawMessage `json:"result"`
}

// Client resolves postcodes through a transport fetcher.
type Client struct {
	baseURL string
	fetcher transport.Fetcher
}

// NewClient builds a postcode lookup client. An empty baseURL selects the
// public postcodes.io service.
func NewClient(fetcher transport.Fetcher, baseURL string) *Client {
	if baseURL == "" {
		baseURL = PostcodeBaseURL
	}
	return &Client{baseURL: baseURL, fetcher: fetcher}
}

// Lookup resolves a postcode to its survey record. Postcodes absent from the
// current register are retried against the terminated register; a postcode
// unknown to both yields (nil, nil).
func (c *Client) Lookup(postcode string) (*Ordinance, error) {
	record, status, err := c.query(currentPath, postcode)
	if err != nil {
		return nil, err
	}
	if record != nil {
		return record, nil
	}
	if status == 404 {
		log.Warnf("Postcode query for %s returned a 404. Trying %s", postcode, terminatedPath)
		record, _, err = c.query(terminatedPath, postcode)
		if err != nil {
			return nil, err
		}
		if record == nil {
			log.Errorf("No current or terminated record of %s available at the ordinance survey.", postcode)
		}
		return record, nil
	}
	return nil, fmt.Errorf("postcode lookup for %s failed with status %d", postcode, status)
}

func (c *Client) query(path, postcode string) (*Ordinance, int, error) {
	target := c.baseURL + path + url.PathEscape(postcode)
	status, payload, err := c.fetcher.Fetch("GET", target, nil, nil)
	if err != nil {
		return nil, 0, err
	}
	if status != 200 {
		return nil, status, nil
	}
	var response lookupResponse
	if err := json.Unmarshal(payload, &response); err != nil {
		return nil, status, fmt.Errorf("failed to parse postcode response for %s: %w", postcode, err)
	}
	var record Ordinance
	if err := json.Unmarshal(response.Result, &record); err != nil {
		return nil, status, fmt.Errorf("failed to parse postcode result for %s: %w", postcode, err)
	}
	return &record, status, nil
}

// AnnotateGraph resolves each node's postcode and attaches address,
// post_code, ordinance, latitude and longitude entries to its data. Nodes
// without a resolvable postcode get null coordinate entries.
func (c *Client) AnnotateGraph(g *graph.Graph) error {
	for _, node := range g.Nodes() {
		if err := c.annotateNode(node); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) annotateNode(node graph.Node) error {
	if node.Data == nil {
		return nil
	}
	address, postcode := nodePostcode(node)
	node.Data["address"] = address
	node.Data["post_code"] = postcode

	var record *Ordinance
	if postcode != "" {
		var err error
		record, err = c.Lookup(postcode)
		if err != nil {
			return fmt.Errorf("failed to annotate node %s: %w", node.ID, err)
		}
	}
	if record != nil {
		node.Data["ordinance"] = record
		node.Data["latitude"] = record.Latitude
		node.Data["longitude"] = record.Longitude
	} else {
		node.Data["ordinance"] = nil
		node.Data["latitude"] = nil
		node.Data["longitude"] = nil
	}
	return nil
}

// nodePostcode extracts the postal address and postcode recorded for a node,
// following the layout each registry uses.
func nodePostcode(node graph.Node) (interface{}, string) {
	switch node.Kind {
	case graph.KindCompany:
		address, _ := dig(node.Data, "company", "registered_office_address").(map[string]interface{})
		return address, digString(address, "postal_code")
	case graph.KindOfficer:
		items, _ := dig(node.Data, "appointments", "items").([]interface{})
		if len(items) == 0 {
			return nil, ""
		}
		first, _ := items[0].(map[string]interface{})
		address, _ := dig(first, "address").(map[string]interface{})
		return address, digString(address, "postal_code")
	case graph.KindController:
		address, _ := dig(node.Data, "controller", "address").(map[string]interface{})
		return address, digString(address, "postal_code")
	case graph.KindCharity, graph.KindTrustee:
		raw, _ := dig(node.Data, "Address").(map[string]interface{})
		if raw == nil {
			return nil, ""
		}
		address := make(map[string]interface{}, len(raw))
		for key, value := range raw {
			if s, ok := value.(string); ok {
				address[key] = strings.TrimSpace(s)
			} else {
				address[key] = value
			}
		}
		return address, digString(address, "Postcode")
	default:
		log.Warnf("No postcode layout for node kind %q", node.Kind)
		return nil, ""
	}
}

func dig(data map[string]interface{}, keys ...string) interface{} {
	var current interface{} = data
	for _, key := range keys {
		asMap, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		current, ok = asMap[key]
		if !ok {
			return nil
		}
	}
	return current
}

func digString(data map[string]interface{}, key string) string {
	if data == nil {
		return ""
	}
	if s, ok := data[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}
