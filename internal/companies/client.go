package companies

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/ukboards/ukboards/internal/graph"
	"github.com/ukboards/ukboards/internal/runs"
	"github.com/ukboards/ukboards/internal/transport"
)

// appointmentsCacheSize bounds the per-client officer appointments cache.
const appointmentsCacheSize = 4096

// NegativeBranchError reports an invalid (negative) branch count.
type NegativeBranchError struct {
	Branches int
}

func (e *NegativeBranchError) Error() string {
	return fmt.Sprintf("%d is an invalid number of network branches: it must be >= 0", e.Branches)
}

// ExceededBranchesError reports a recursion attempt past the configured
// maximum. Correct hop bookkeeping makes this unreachable; it is checked
// anyway.
type ExceededBranchesError struct {
	Hop      int
	Branches int
}

func (e *ExceededBranchesError) Error() string {
	return fmt.Sprintf("current branch hop %d exceeds the maximum %d branches allowed", e.Hop, e.Branches)
}

// ClientConfig holds the filtering and recursion policy of one crawl client.
type ClientConfig struct {
	Branches                      int
	IncludeSignificantControllers bool
	IncludeOfficers               bool
	IncludeEdgeData               bool
	EnforceMissingTies            bool
	ExcludeNonActiveCompanies     bool
	ExcludeResignedBoardMembers   bool
	ExcludeCeasedControllers      bool
	ResetCache                    bool
	ComposeQueriedNetworks        bool
}

// DefaultClientConfig mirrors the registry client's historic defaults:
// officers on, cache reset between runs, everything else off.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		IncludeOfficers: true,
		ResetCache:      true,
	}
}

func (cfg ClientConfig) parameterState() map[string]interface{} {
	return map[string]interface{}{
		"branches":                        cfg.Branches,
		"include_significant_controllers": cfg.IncludeSignificantControllers,
		"include_officers":                cfg.IncludeOfficers,
		"include_edge_data":               cfg.IncludeEdgeData,
		"enforce_missing_ties":            cfg.EnforceMissingTies,
		"exclude_non_active_companies":    cfg.ExcludeNonActiveCompanies,
		"exclude_resigned_board_members":  cfg.ExcludeResignedBoardMembers,
		"exclude_ceased_controllers":      cfg.ExcludeCeasedControllers,
		"reset_cache":                     cfg.ResetCache,
		"compose_queried_networks":        cfg.ComposeQueriedNetworks,
	}
}

// Client recursively constructs a bipartite network of companies and the
// officers/controllers on their boards. It exclusively owns its graph and
// appointments cache; all crawl mutations are serialized by one mutex.
type Client struct {
	cfg ClientConfig
	api *transport.Client

	mu     sync.Mutex
	g      *graph.Graph
	cache  *lru.Cache[string, map[CompanyID]Appointment]
	ledger *runs.Ledger

	// now is swapped out in tests to pin "today" for date filters.
	now func() time.Time
	// Metrics, when set, is called with the number of nodes and edges
	// added by each mutation.
	Metrics func(nodesAdded, edgesAdded int)
}

// NewClient validates the configuration and creates a crawl client.
// A negative branch count fails before any fetch occurs.
func NewClient(cfg ClientConfig, api *transport.Client) (*Client, error) {
	if cfg.Branches < 0 {
		return nil, &NegativeBranchError{Branches: cfg.Branches}
	}
	cache, err := lru.New[string, map[CompanyID]Appointment](appointmentsCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create appointments cache: %w", err)
	}
	return &Client{
		cfg:    cfg,
		api:    api,
		g:      graph.New(),
		cache:  cache,
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

// SetResetCache toggles graph/cache reset between runs.
func (c *Client) SetResetCache(reset bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.ResetCache = reset
}

func (c *Client) recordAdds(nodes, edges int) {
	if c.Metrics != nil {
		c.Metrics(nodes, edges)
	}
}

// GetNetwork runs a single-seed crawl from rootID and returns the client's
// graph. With ComposeQueriedNetworks set and ResetCache unset the new crawl
// is unioned onto the accumulated graph and reuses the populated cache.
func (c *Client) GetNetwork(rootID CompanyID) (*graph.Graph, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getNetworkLocked(rootID)
}

func (c *Client) getNetworkLocked(rootID CompanyID) (*graph.Graph, error) {
	rootID = NormalizeID(rootID.String())
	if !c.cfg.ResetCache && c.g.NumNodes() > 0 && !c.cfg.ComposeQueriedNetworks {
		return c.g, nil
	}

	record := &runs.Record{
		RootID:         rootID.String(),
		Kind:           graph.KindCompany,
		ParameterState: c.cfg.parameterState(),
	}
	if last := c.ledger.Last(); last != nil && !record.SameParameters(last) {
		logrus.Warnf("Query parameters differ between run for %s and run for %s",
			record.RootID, last.RootID)
	}
	c.ledger.Append(record)

	if !c.cfg.ComposeQueriedNetworks || c.cfg.ResetCache {
		c.g = graph.New()
		c.cache.Purge()
	}

	record.StartTime = c.now()
	err := c.crawl(rootID)
	record.EndTime = c.now()
	record.KindsIDs = kindsIDs(c.g)
	record.ConnectedComponentsCount = c.g.ConnectedComponents()
	if err != nil {
		return c.g, err
	}
	return c.g, nil
}

type workItem struct {
	company CompanyID
	hop     int
	// person is the board member whose appointments referenced this
	// company; empty for the crawl root.
	person     string
	personName string
}

// crawl is a depth-bounded DFS over an explicit worklist, so large branch
// counts cannot exhaust the call stack.
func (c *Client) crawl(rootID CompanyID) error {
	stack := []workItem{{company: rootID}}
	for len(stack) > 0 {
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if item.hop < 0 {
			return &NegativeBranchError{Branches: item.hop}
		}
		if item.hop > c.cfg.Branches {
			return &ExceededBranchesError{Hop: item.hop, Branches: c.cfg.Branches}
		}

		pushes, err := c.expandCompany(item)
		if err != nil {
			return err
		}
		stack = append(stack, pushes...)
	}
	return nil
}

// expandCompany fetches one company, adds its node, board and controllers,
// and returns deeper work items for each branch hop still available.
func (c *Client) expandCompany(item workItem) ([]workItem, error) {
	if c.g.HasNode(item.company.String()) {
		return nil, nil
	}
	logrus.Debugf("Querying board network from %s", item.company)

	company, err := GetCompany(c.api, item.company, c.cfg.ExcludeNonActiveCompanies)
	if err != nil {
		return nil, err
	}
	if company == nil {
		if item.person != "" {
			logrus.Warnf("Skipping company %s from board member %s (%s)",
				item.company, item.personName, item.person)
		}
		return nil, nil
	}

	category, err := CategoryForID(item.company)
	if err != nil {
		return nil, err
	}

	data := map[string]interface{}{"company": company.Raw}
	c.g.AddNode(graph.Node{
		ID:        item.company.String(),
		Name:      strings.TrimSpace(company.CompanyName),
		Kind:      graph.KindCompany,
		Bipartite: graph.SideOrganisation,
		IsPerson:  false,
		Category:  category,
		Data:      data,
	})
	c.recordAdds(1, 0)

	var pushes []workItem
	if c.cfg.IncludeOfficers && company.OfficersLink != "" {
		officerPushes, err := c.expandOfficers(item, data)
		if err != nil {
			return nil, err
		}
		pushes = append(pushes, officerPushes...)
	}
	if c.cfg.IncludeSignificantControllers {
		controllerPushes, err := c.expandControllers(item, data)
		if err != nil {
			return nil, err
		}
		pushes = append(pushes, controllerPushes...)
	}

	// The destination's own listing may omit the tie back to the person
	// whose appointment history referenced it (a registry data-quality gap).
	if item.person != "" && c.cfg.EnforceMissingTies &&
		!c.g.HasEdge(item.company.String(), item.person) {
		logrus.Warnf("Enforcing possible tie between %s and %s", item.person, item.company)
		if err := c.g.AddEdge(item.company.String(), item.person, nil); err != nil {
			return nil, err
		}
		c.recordAdds(0, 1)
	}
	return pushes, nil
}

func (c *Client) expandOfficers(item workItem, companyData map[string]interface{}) ([]workItem, error) {
	listing, err := GetCompanyOfficers(c.api, item.company)
	if err != nil {
		return nil, err
	}
	if listing == nil {
		return nil, nil
	}
	companyData["officers"] = listing.Raw

	var pushes []workItem
	for _, officer := range listing.Officers(c.cfg.ExcludeResignedBoardMembers, c.now()) {
		if !c.g.HasNode(officer.ID) {
			if err := c.addOfficer(officer, item.company); err != nil {
				return nil, err
			}
		}
		if err := c.g.AddEdge(item.company.String(), officer.ID, c.edgeData(officer.Raw)); err != nil {
			return nil, err
		}
		c.recordAdds(0, 1)

		if item.hop < c.cfg.Branches {
			pushes = append(pushes, c.branchesFrom(officer.ID, officer.Name, item.hop)...)
		}
	}
	return pushes, nil
}

func (c *Client) expandControllers(item workItem, companyData map[string]interface{}) ([]workItem, error) {
	listing, err := GetSignificantControllers(c.api, item.company)
	if err != nil {
		return nil, err
	}
	if listing == nil {
		return nil, nil
	}
	companyData["significant_controllers"] = listing.Raw

	var pushes []workItem
	for _, controller := range listing.Controllers(c.cfg.ExcludeCeasedControllers, c.now()) {
		if !c.g.HasNode(controller.ID) {
			if err := c.addController(controller); err != nil {
				return nil, err
			}
		}
		if err := c.g.AddEdge(item.company.String(), controller.ID, c.edgeData(controller.Raw)); err != nil {
			return nil, err
		}
		c.recordAdds(0, 1)

		// Controllers never populate the appointments cache, so branch
		// attempts from them only log the missing-branch warning.
		if item.hop < c.cfg.Branches {
			pushes = append(pushes, c.branchesFrom(controller.ID, controller.Name, item.hop)...)
		}
	}
	return pushes, nil
}

// addOfficer fetches the officer's full appointment history, caches the
// per-company appointment records and adds the officer node.
func (c *Client) addOfficer(officer OfficerEntry, companyID CompanyID) error {
	appointments, err := GetOfficerAppointments(c.api, officer.ID)
	if err != nil {
		return err
	}

	var appointmentsRaw map[string]interface{}
	if appointments != nil {
		appointmentsRaw = appointments.Raw
		entry := make(map[CompanyID]Appointment)
		skipped := 0
		for _, appointment := range appointments.Appointments() {
			if c.cfg.ExcludeResignedBoardMembers && IsResigned(appointment.Raw, c.now()) {
				skipped++
				continue
			}
			entry[appointment.CompanyNumber] = appointment
		}
		if skipped > 0 {
			logrus.Debugf("Skipping %d resigned board positions for officer %s", skipped, officer.ID)
		}
		c.cache.Add(officer.ID, entry)
	}

	name := c.officerName(officer, companyID)
	c.g.AddNode(graph.Node{
		ID:        officer.ID,
		Name:      name,
		Kind:      graph.KindOfficer,
		Bipartite: graph.SidePerson,
		IsPerson:  IsPerson(name),
		Data: map[string]interface{}{
			"appointments": appointmentsRaw,
			"board":        officer.Raw,
		},
	})
	c.recordAdds(1, 0)
	return nil
}

func (c *Client) addController(controller ControllerEntry) error {
	detail, err := GetControllerDetail(c.api, controller)
	if err != nil {
		return err
	}
	name := strings.TrimSpace(controller.Name)
	c.g.AddNode(graph.Node{
		ID:        controller.ID,
		Name:      name,
		Kind:      graph.KindController,
		Bipartite: graph.SidePerson,
		// Both signals must agree for a controller to count as a person.
		IsPerson: IsIndividualControllerURL(controller.SelfLink) && IsPerson(name),
		Data: map[string]interface{}{
			"controller": detail,
			"board":      controller.Raw,
		},
	})
	c.recordAdds(1, 0)
	return nil
}

// officerName resolves a display name: the appointments-cache record for
// this company first, the company's own listing entry second, empty last.
func (c *Client) officerName(officer OfficerEntry, companyID CompanyID) string {
	if appointments, ok := c.cache.Get(officer.ID); ok {
		if appointment, ok := appointments[companyID]; ok && appointment.Name != "" {
			return strings.TrimSpace(appointment.Name)
		}
	}
	logrus.Warnf("No 'name' data available for officer %s (%s) in appointments cache",
		officer.Name, officer.ID)
	if _, ok := officer.Raw["name"]; !ok {
		logrus.Warnf("No 'name' data available for officer %s for company %s", officer.ID, companyID)
		return ""
	}
	if officer.Name == "" {
		logrus.Warnf("Null name listed for officer %s from company %s", officer.ID, companyID)
	}
	return strings.TrimSpace(officer.Name)
}

// branchesFrom returns deeper work items for every other organisation in a
// person's appointments cache not yet present in the graph.
func (c *Client) branchesFrom(personID, personName string, hop int) []workItem {
	appointments, ok := c.cache.Get(personID)
	if !ok {
		logrus.Warnf("No branch data from %s", personID)
		return nil
	}
	related := make([]CompanyID, 0, len(appointments))
	for companyID := range appointments {
		related = append(related, companyID)
	}
	sort.Slice(related, func(i, j int) bool { return related[i] < related[j] })

	var pushes []workItem
	for _, companyID := range related {
		if c.g.HasNode(companyID.String()) {
			continue
		}
		pushes = append(pushes, workItem{
			company:    companyID,
			hop:        hop + 1,
			person:     personID,
			personName: personName,
		})
	}
	return pushes
}

func (c *Client) edgeData(record map[string]interface{}) map[string]interface{} {
	if c.cfg.IncludeEdgeData {
		return record
	}
	return nil
}

func kindsIDs(g *graph.Graph) map[string]runs.IDSet {
	kinds := map[string]runs.IDSet{
		graph.KindCompany:    {},
		graph.KindOfficer:    {},
		graph.KindController: {},
	}
	for _, node := range g.Nodes() {
		set, ok := kinds[node.Kind]
		if !ok {
			set = runs.IDSet{}
			kinds[node.Kind] = set
		}
		set.Add(node.ID)
	}
	return kinds
}
