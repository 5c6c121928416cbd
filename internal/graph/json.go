package graph

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// MetadataKey is the sibling key holding crawl provenance inside a
// node-link JSON document.
const MetadataKey = "ukboards-metadata"

type nodeLinkNode struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Kind      string                 `json:"kind"`
	Bipartite int                    `json:"bipartite"`
	IsPerson  bool                   `json:"is_person"`
	Category  string                 `json:"category,omitempty"`
	Data      map[string]interface{} `json:"data"`
}

type nodeLinkEdge struct {
	Source string                 `json:"source"`
	Target string                 `json:"target"`
	Data   map[string]interface{} `json:"data"`
}

type nodeLinkDocument struct {
	Directed   bool                   `json:"directed"`
	Multigraph bool                   `json:"multigraph"`
	Graph      map[string]interface{} `json:"graph"`
	Nodes      []nodeLinkNode         `json:"nodes"`
	Links      []nodeLinkEdge         `json:"links"`
	Metadata   json.RawMessage        `json:"ukboards-metadata,omitempty"`
}

// WriteJSON writes g to path in node-link format. A non-nil metadata value
// is serialized under MetadataKey alongside the nodes and links.
func WriteJSON(path string, g *Graph, metadata interface{}) error {
	doc := nodeLinkDocument{
		Graph: map[string]interface{}{},
		Nodes: []nodeLinkNode{},
		Links: []nodeLinkEdge{},
	}
	for _, n := range g.Nodes() {
		doc.Nodes = append(doc.Nodes, nodeLinkNode{
			ID:        n.ID,
			Name:      n.Name,
			Kind:      n.Kind,
			Bipartite: n.Bipartite,
			IsPerson:  n.IsPerson,
			Category:  n.Category,
			Data:      n.Data,
		})
	}
	for _, e := range g.Edges() {
		doc.Links = append(doc.Links, nodeLinkEdge{
			Source: e.Org,
			Target: e.Person,
			Data:   e.Data,
		})
	}
	if metadata != nil {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal graph metadata: %w", err)
		}
		doc.Metadata = raw
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create graph directory: %w", err)
		}
	}
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal graph: %w", err)
	}
	if err := os.WriteFile(path, payload, 0644); err != nil {
		return fmt.Errorf("failed to write graph file: %w", err)
	}
	return nil
}

// ReadJSON reads a node-link JSON document. The raw metadata block, if any,
// is returned for the caller to decode (see runs.DecodeMetadata).
func ReadJSON(path string) (*Graph, json.RawMessage, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read graph file: %w", err)
	}
	var doc nodeLinkDocument
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, nil, fmt.Errorf("failed to parse graph file: %w", err)
	}

	g := New()
	for _, n := range doc.Nodes {
		g.AddNode(Node{
			ID:        n.ID,
			Name:      n.Name,
			Kind:      n.Kind,
			Bipartite: n.Bipartite,
			IsPerson:  n.IsPerson,
			Category:  n.Category,
			Data:      n.Data,
		})
	}
	for _, e := range doc.Links {
		if err := g.AddEdge(e.Source, e.Target, e.Data); err != nil {
			return nil, nil, fmt.Errorf("failed to restore edge: %w", err)
		}
	}
	return g, doc.Metadata, nil
}
