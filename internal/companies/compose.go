package companies

import (
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ukboards/ukboards/internal/graph"
	"github.com/ukboards/ukboards/internal/runs"
)

// NetworksGenerator crawls the seeds in order, returning each seed's
// (possibly accumulated) graph in submission order.
func (c *Client) NetworksGenerator(rootIDs []CompanyID) ([]*graph.Graph, error) {
	graphs := make([]*graph.Graph, 0, len(rootIDs))
	for _, rootID := range rootIDs {
		logrus.Infof("Composed query of company %s", rootID)
		g, err := c.GetNetwork(rootID)
		if err != nil {
			return graphs, err
		}
		graphs = append(graphs, g)
	}
	return graphs, nil
}

// GetComposedNetwork drives the client over every seed sequentially and
// returns the composed graph. Each seed produces its own run record; the
// composition appends a summary record referencing the children.
func (c *Client) GetComposedNetwork(rootIDs []CompanyID) (*graph.Graph, error) {
	restore := c.composeSemantics()
	defer restore()

	before := c.ledger.Len()
	if _, err := c.NetworksGenerator(rootIDs); err != nil {
		return nil, err
	}
	c.appendSummaryRecord(rootIDs, before)
	return c.Graph(), nil
}

// composeSemantics makes the graph and cache accumulate across seeds for
// the span of a composed query, whatever the client was configured with.
// Clients not already accumulating start the composition from an empty
// graph. The returned function restores the prior configuration.
func (c *Client) composeSemantics() func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	prevCompose := c.cfg.ComposeQueriedNetworks
	prevReset := c.cfg.ResetCache
	if !prevCompose || prevReset {
		c.g = graph.New()
		c.cache.Purge()
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

// AsyncNetworksGenerator dispatches one crawl task per seed. Underlying
// fetches may interleave across seeds, but graph and cache writes stay
// serialized behind the client's single-writer mutex, and the returned
// graphs follow seed submission order.
func (c *Client) AsyncNetworksGenerator(rootIDs []CompanyID) ([]*graph.Graph, error) {
	graphs := make([]*graph.Graph, len(rootIDs))
	var group errgroup.Group
	for i, rootID := range rootIDs {
		i, rootID := i, rootID
		group.Go(func() error {
			logrus.Infof("Composed async query of company %s", rootID)
			g, err := c.GetNetwork(rootID)
			if err != nil {
				return err
			}
			graphs[i] = g
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return graphs, nil
}

// AsyncGetComposedNetwork is the concurrent variant of GetComposedNetwork.
// For a fixed seed list and configuration the composed graph is identical
// to the sequential result.
func (c *Client) AsyncGetComposedNetwork(rootIDs []CompanyID) (*graph.Graph, error) {
	restore := c.composeSemantics()
	defer restore()

	before := c.ledger.Len()
	if _, err := c.AsyncNetworksGenerator(rootIDs); err != nil {
		return nil, err
	}
	c.appendSummaryRecord(rootIDs, before)
	return c.Graph(), nil
}

func (c *Client) appendSummaryRecord(rootIDs []CompanyID, firstChild int) {
	children := c.ledger.Records()[firstChild:]
	ids := make([]string, len(rootIDs))
	for i, id := range rootIDs {
		ids[i] = NormalizeID(id.String()).String()
	}
	summary := &runs.Record{
		RootIDs:        ids,
		Kind:           graph.KindCompany,
		ParameterState: c.cfg.parameterState(),
		ComposedRuns:   children,
	}
	if len(children) > 0 {
		summary.StartTime = children[0].StartTime
		summary.EndTime = children[len(children)-1].EndTime
	}
	g := c.Graph()
	summary.KindsIDs = kindsIDs(g)
	summary.ConnectedComponentsCount = g.ConnectedComponents()
	c.ledger.Append(summary)
}
