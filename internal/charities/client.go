package charities

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ukboards/ukboards/internal/companies"
	"github.com/ukboards/ukboards/internal/graph"
	"github.com/ukboards/ukboards/internal/runs"
)

// NegativeBranchError reports an invalid (negative) branch count.
type NegativeBranchError struct {
	Branches int
}

func (e *NegativeBranchError) Error() string {
	return fmt.Sprintf("%d is an invalid number of network branches: it must be >= 0", e.Branches)
}

// ClientConfig holds the charity crawl policy. Charities have one
// relationship type (trustee), so there is no officer/controller split.
type ClientConfig struct {
	Branches               int
	ResetCache             bool
	ComposeQueriedNetworks bool
}

// DefaultClientConfig resets the graph between runs.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{ResetCache: true}
}

func (cfg ClientConfig) parameterState() map[string]interface{} {
	return map[string]interface{}{
		"branches":                 cfg.Branches,
		"reset_cache":              cfg.ResetCache,
		"compose_queried_networks": cfg.ComposeQueriedNetworks,
	}
}

// Client recursively constructs a bipartite network of charities and their
// trustees, expanding trustee ties into related charities hop by hop.
type Client struct {
	cfg ClientConfig
	api API

	mu     sync.Mutex
	g      *graph.Graph
	ledger *runs.Ledger

	now func() time.Time
	// Metrics, when set, is called with the number of nodes and edges
	// added by each mutation.
	Metrics func(nodesAdded, edgesAdded int)
}

// NewClient validates the configuration and creates a charity crawl client.
func NewClient(cfg ClientConfig, api API) (*Client, error) {
	if cfg.Branches < 0 {
		return nil, &NegativeBranchError{Branches: cfg.Branches}
	}
	return &Client{
		cfg:    cfg,
		api:    api,
		g:      graph.New(),
		ledger: &runs.Ledger{},
		now:    time.Now,
	}, nil
}

// Graph returns the client's current (possibly accumulated) graph.
func (c *Client) Graph() *graph.Graph {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.g
}

// Runs returns the client's run ledger.
func (c *Client) Runs() *runs.Ledger {
	return c.ledger
}

func (c *Client) recordAdds(nodes, edges int) {
	if c.Metrics != nil {
		c.Metrics(nodes, edges)
	}
}

// GetNetwork crawls the trustee network from one charity root. A root whose
// record cannot be fetched yields a nil graph and a run record with
// Success=false rather than an error.
func (c *Client) GetNetwork(rootID CharityID) (*graph.Graph, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	record := &runs.Record{
		RootID:         rootID.String(),
		Kind:           graph.KindCharity,
		ParameterState: c.cfg.parameterState(),
		Success:        boolPtr(false),
	}
	if last := c.ledger.Last(); last != nil && !record.SameParameters(last) {
		logrus.Warnf("Query parameters differ between run for %s and run for %s",
			record.RootID, last.RootID)
	}
	c.ledger.Append(record)

	if !c.cfg.ComposeQueriedNetworks || c.cfg.ResetCache {
		c.g = graph.New()
	}

	record.StartTime = c.now()
	rootAdded, err := c.expandCharity(rootID, 0)
	record.EndTime = c.now()
	record.KindsIDs = c.kindsIDs()
	record.ConnectedComponentsCount = c.g.ConnectedComponents()
	if err != nil {
		return nil, err
	}
	if !rootAdded {
		return nil, nil
	}
	record.Success = boolPtr(true)
	return c.g, nil
}

// GetComposedNetwork crawls every seed in order with compose semantics and
// returns the union graph plus a summary run record.
func (c *Client) GetComposedNetwork(rootIDs []CharityID) (*graph.Graph, error) {
	restore := c.composeSemantics()
	defer restore()

	before := c.ledger.Len()
	for _, rootID := range rootIDs {
		logrus.Infof("Composed query of charity %s", rootID)
		if _, err := c.GetNetwork(rootID); err != nil {
			return nil, err
		}
	}
	children := c.ledger.Records()[before:]
	ids := make([]string, len(rootIDs))
	for i, id := range rootIDs {
		ids[i] = id.String()
	}
	summary := &runs.Record{
		RootIDs:        ids,
		Kind:           graph.KindCharity,
		ParameterState: c.cfg.parameterState(),
		ComposedRuns:   children,
	}
	if len(children) > 0 {
		summary.StartTime = children[0].StartTime
		summary.EndTime = children[len(children)-1].EndTime
	}
	success := true
	for _, child := range children {
		if child.Success == nil || !*child.Success {
			success = false
		}
	}
	summary.Success = boolPtr(success)
	g := c.Graph()
	summary.KindsIDs = c.kindsIDs()
	summary.ConnectedComponentsCount = g.ConnectedComponents()
	c.ledger.Append(summary)
	return g, nil
}

// composeSemantics makes the graph accumulate across seeds for the span of
// a composed query, whatever the client was configured with. Clients not
// already accumulating start the composition from an empty graph. The
// returned function restores the prior configuration.
func (c *Client) composeSemantics() func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	prevCompose := c.cfg.ComposeQueriedNetworks
	prevReset := c.cfg.ResetCache
	if !prevCompose || prevReset {
		c.g = graph.New()
	}
	c.cfg.ComposeQueriedNetworks = true
	c.cfg.ResetCache = false
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.cfg.ComposeQueriedNetworks = prevCompose
		c.cfg.ResetCache = prevReset
	}
}

// expandCharity fetches one charity, its trustees across all subsidiary
// registrations, and recurses into related charities while hops remain.
// The bipartite invariant is re-checked after every composition step.
func (c *Client) expandCharity(number CharityID, hop int) (bool, error) {
	charity, err := c.api.GetCharity(number)
	if err != nil {
		logrus.Errorf("Error pulling charity %s: %v", number, err)
		return false, nil
	}
	if charity == nil {
		logrus.Warnf("No data on charity %s", number)
		return false, nil
	}

	name := strings.TrimSpace(charity.CharityName)
	c.g.AddNode(graph.Node{
		ID:        number.String(),
		Name:      name,
		Kind:      graph.KindCharity,
		Bipartite: graph.SideOrganisation,
		Data:      charityData(charity),
	})
	c.recordAdds(1, 0)
	logrus.Debugf("%s", name)

	for subsidiary := 0; subsidiary <= charity.SubsidiaryNumber; subsidiary++ {
		trustees, err := c.api.GetCharityTrustees(number, subsidiary)
		if err != nil {
			logrus.Errorf("Error pulling trustees of charity %s subsidiary %d: %v",
				number, subsidiary, err)
			continue
		}
		if len(trustees) == 0 {
			logrus.Warnf("No trustees for charity %s (%s subsidiary %d)", name, number, subsidiary)
			continue
		}
		for _, trustee := range trustees {
			if err := c.addTrustee(number, trustee); err != nil {
				return false, err
			}
			if hop < c.cfg.Branches && trustee.RelatedCharitiesCount > 0 {
				for _, related := range trustee.RelatedCharities {
					relatedID := CharityID(related.CharityNumber)
					if c.g.HasNode(relatedID.String()) {
						continue
					}
					if _, err := c.expandCharity(relatedID, hop+1); err != nil {
						return false, err
					}
					if !c.g.IsBipartite() {
						return false, fmt.Errorf(
							"graph lost its bipartite partition composing charity %s", relatedID)
					}
				}
			}
		}
	}
	return true, nil
}

func (c *Client) addTrustee(charity CharityID, trustee Trustee) error {
	name := strings.TrimSpace(trustee.TrusteeName)
	trusteeID := fmt.Sprintf("%d", trustee.TrusteeNumber)
	logrus.Debugf("%s %s %s", charity, name, trusteeID)
	c.g.AddNode(graph.Node{
		ID:        trusteeID,
		Name:      name,
		Kind:      graph.KindTrustee,
		Bipartite: graph.SidePerson,
		IsPerson:  companies.IsPerson(name),
		Data:      trusteeData(trustee),
	})
	if err := c.g.AddEdge(charity.String(), trusteeID, nil); err != nil {
		return err
	}
	c.recordAdds(1, 1)
	return nil
}

func (c *Client) kindsIDs() map[string]runs.IDSet {
	kinds := map[string]runs.IDSet{
		graph.KindCharity: {},
		graph.KindTrustee: {},
	}
	for _, node := range c.g.Nodes() {
		set, ok := kinds[node.Kind]
		if !ok {
			set = runs.IDSet{}
			kinds[node.Kind] = set
		}
		set.Add(node.ID)
	}
	return kinds
}

func charityData(record *CharityRecord) map[string]interface{} {
	data := map[string]interface{}{
		"CharityName":             record.CharityName,
		"RegisteredCharityNumber": record.RegisteredCharityNumber,
		"CharityNumber":           record.CharityNumber,
		"SubsidiaryNumber":        record.SubsidiaryNumber,
		"CharityType":             record.CharityType,
		"RegisteredCharityStatus": record.RegisteredStatus,
	}
	if record.Address != nil {
		data["Address"] = map[string]interface{}{
			"Line1":    record.Address.Line1,
			"Line2":    record.Address.Line2,
			"Line3":    record.Address.Line3,
			"Line4":    record.Address.Line4,
			"Line5":    record.Address.Line5,
			"Postcode": record.Address.Postcode,
		}
	}
	return data
}

func trusteeData(trustee Trustee) map[string]interface{} {
	related := make([]interface{}, 0, len(trustee.RelatedCharities))
	for _, charity := range trustee.RelatedCharities {
		related = append(related, map[string]interface{}{
			"CharityName":   charity.CharityName,
			"CharityNumber": charity.CharityNumber,
		})
	}
	return map[string]interface{}{
		"TrusteeName":           trustee.TrusteeName,
		"TrusteeNumber":         trustee.TrusteeNumber,
		"RelatedCharitiesCount": trustee.RelatedCharitiesCount,
		"RelatedCharities":      related,
	}
}

func boolPtr(v bool) *bool {
	return &v
}
