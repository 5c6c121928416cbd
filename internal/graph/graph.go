package graph

import (
	"fmt"
	"sort"
	"sync"
)

// Side identifies which partition of the bipartite graph a node belongs to.
const (
	SideOrganisation = 0
	SidePerson       = 1
)

// Node kinds as recorded by the two registries.
const (
	KindCompany    = "company"
	KindOfficer    = "officer"
	KindController = "controller"
	KindCharity    = "charity"
	KindTrustee    = "trustee"
)

// Node is an organisation or a person/entity sitting on its board.
type Node struct {
	ID        string
	Name      string
	Kind      string
	Bipartite int
	IsPerson  bool
	Category  string
	Data      map[string]interface{}
}

// Edge records an observed tie between an organisation and a board member.
// Data holds the raw relationship record, or nil when unavailable.
type Edge struct {
	Org    string
	Person string
	Data   map[string]interface{}
}

// Graph is an undirected bipartite graph of organisations (side 0) and the
// people/entities who control them (side 1). No parallel edges.
type Graph struct {
	mu        sync.RWMutex
	nodes     map[string]*Node
	nodeOrder []string
	edges     map[edgeKey]*Edge
	edgeOrder []edgeKey
	adjacency map[string]map[string]bool
}

type edgeKey struct {
	org    string
	person string
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes:     make(map[string]*Node),
		edges:     make(map[edgeKey]*Edge),
		adjacency: make(map[string]map[string]bool),
	}
}

// AddNode inserts a node. A second insert for an existing id is a no-op:
// first write wins for all node attributes.
// Returns true if the node was added, false if it already existed.
func (g *Graph) AddNode(n Node) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[n.ID]; exists {
		return false
	}
	copied := n
	g.nodes[n.ID] = &copied
	g.nodeOrder = append(g.nodeOrder, n.ID)
	if g.adjacency[n.ID] == nil {
		g.adjacency[n.ID] = make(map[string]bool)
	}
	return true
}

// Node returns a copy of the node with the given id.
func (g *Graph) Node(id string) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// HasNode reports whether id is present.
func (g *Graph) HasNode(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes[id]
	return ok
}

// AddEdge connects an organisation node to a person/entity node. Both nodes
// must already exist and sit on opposite sides; anything else is rejected so
// the bipartite invariant holds after every mutation. Re-adding an existing
// edge keeps the first recorded data (no parallel edges).
func (g *Graph) AddEdge(orgID, personID string, data map[string]interface{}) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	org, ok := g.nodes[orgID]
	if !ok {
		return fmt.Errorf("graph: edge source node %q not found", orgID)
	}
	person, ok := g.nodes[personID]
	if !ok {
		return fmt.Errorf("graph: edge target node %q not found", personID)
	}
	if org.Bipartite == person.Bipartite {
		return fmt.Errorf("graph: edge %q-%q would break bipartite partition (both side %d)",
			orgID, personID, org.Bipartite)
	}
	// Normalize so the key always runs organisation -> person.
	if org.Bipartite == SidePerson {
		orgID, personID = personID, orgID
	}
	key := edgeKey{org: orgID, person: personID}
	if _, exists := g.edges[key]; exists {
		return nil
	}
	g.edges[key] = &Edge{Org: orgID, Person: personID, Data: data}
	g.edgeOrder = append(g.edgeOrder, key)
	g.adjacency[orgID][personID] = true
	g.adjacency[personID][orgID] = true
	return nil
}

// HasEdge reports whether a tie between the two nodes exists, in either
// argument order.
func (g *Graph) HasEdge(a, b string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.adjacency[a][b]
}

// Edge returns a copy of the edge between the two nodes, if present.
func (g *Graph) Edge(a, b string) (Edge, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if e, ok := g.edges[edgeKey{org: a, person: b}]; ok {
		return *e, true
	}
	if e, ok := g.edges[edgeKey{org: b, person: a}]; ok {
		return *e, true
	}
	return Edge{}, false
}

// RemoveNode deletes a node and every edge touching it.
func (g *Graph) RemoveNode(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[id]; !ok {
		return
	}
	delete(g.nodes, id)
	for i, nid := range g.nodeOrder {
		if nid == id {
			g.nodeOrder = append(g.nodeOrder[:i], g.nodeOrder[i+1:]...)
			break
		}
	}
	for neighbour := range g.adjacency[id] {
		delete(g.adjacency[neighbour], id)
		key := edgeKey{org: id, person: neighbour}
		if _, ok := g.edges[key]; !ok {
			key = edgeKey{org: neighbour, person: id}
		}
		delete(g.edges, key)
		for i, ek := range g.edgeOrder {
			if ek == key {
				g.edgeOrder = append(g.edgeOrder[:i], g.edgeOrder[i+1:]...)
				break
			}
		}
	}
	delete(g.adjacency, id)
}

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]Node, 0, len(g.nodeOrder))
	for _, id := range g.nodeOrder {
		out = append(out, *g.nodes[id])
	}
	return out
}

// Edges returns all edges in insertion order.
func (g *Graph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]Edge, 0, len(g.edgeOrder))
	for _, key := range g.edgeOrder {
		out = append(out, *g.edges[key])
	}
	return out
}

// NodeIDs returns all node ids, sorted.
func (g *Graph) NodeIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// EdgeIDs returns all edges as sorted "org|person" pairs.
func (g *Graph) EdgeIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ids := make([]string, 0, len(g.edges))
	for key := range g.edges {
		ids = append(ids, key.org+"|"+key.person)
	}
	sort.Strings(ids)
	return ids
}

// NumNodes returns the node count.
func (g *Graph) NumNodes() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// NumEdges returns the edge count.
func (g *Graph) NumEdges() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges)
}

// IsBipartite verifies every edge crosses between the two sides.
func (g *Graph) IsBipartite() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for key := range g.edges {
		org, person := g.nodes[key.org], g.nodes[key.person]
		if org == nil || person == nil || org.Bipartite == person.Bipartite {
			return false
		}
	}
	return true
}

// ConnectedComponents counts connected components, isolated nodes included.
func (g *Graph) ConnectedComponents() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	visited := make(map[string]bool, len(g.nodes))
	count := 0
	for id := range g.nodes {
		if visited[id] {
			continue
		}
		count++
		stack := []string{id}
		for len(stack) > 0 {
			current := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if visited[current] {
				continue
			}
			visited[current] = true
			for neighbour := range g.adjacency[current] {
				if !visited[neighbour] {
					stack = append(stack, neighbour)
				}
			}
		}
	}
	return count
}

// Compose unions other into g. Existing nodes and edges keep their
// attributes (first write wins, matching AddNode/AddEdge semantics).
func (g *Graph) Compose(other *Graph) error {
	if other == nil {
		return nil
	}
	for _, n := range other.Nodes() {
		g.AddNode(n)
	}
	for _, e := range other.Edges() {
		if err := g.AddEdge(e.Org, e.Person, e.Data); err != nil {
			return err
		}
	}
	return nil
}

// Copy returns a deep-enough copy: node and edge records are duplicated,
// raw data payloads remain shared.
func (g *Graph) Copy() *Graph {
	out := New()
	if err := out.Compose(g); err != nil {
		// Compose of a valid graph into an empty one cannot fail.
		panic(err)
	}
	return out
}
