// Package kg builds the knowledge graph the backend serves: tab nodes
// linked to the entities they contain, plus similarity links between
// entities.
package kg

import (
	"crypto/sha1"
	"encoding/hex"
	"regexp"
	"strings"
	"sync"

	"github.com/tabsense/tabsense/models"
	"github.com/tabsense/tabsense/pkg/metrics"
)

const (
	NodeTab    = "Tab"
	NodeEntity = "Entity"

	RelContains     = "contains"
	RelSemantically = "semantically_related"
)

type Node struct {
	ID         string `json:"id"`
	Label      string `json:"label"`
	Type       string `json:"type"`
	EntityType string `json:"entity_type,omitempty"`
	URL        string `json:"url,omitempty"`
	Summary    string `json:"summary,omitempty"`
}

type Edge struct {
	Source   string  `json:"source"`
	Target   string  `json:"target"`
	Relation string  `json:"relation"`
	Weight   float64 `json:"weight"`
}

// Export is the frontend-ready shape served by /graph.
type Export struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Graph accumulates tabs and their entities. Safe for concurrent use.
type Graph struct {
	mu        sync.Mutex
	nodes     map[string]Node
	nodeOrder []string
	edges     map[string]Edge
	edgeOrder []string
	threshold float64
}

// NewGraph creates a graph that links entities whose labels reach the
// given lexical similarity threshold.
func NewGraph(threshold float64) *Graph {
	return &Graph{
		nodes:     make(map[string]Node),
		edges:     make(map[string]Edge),
		threshold: threshold,
	}
}

// AddTab upserts the tab's node, its entity nodes and contains edges,
// then links the new entities to similar existing ones.
func (g *Graph) AddTab(payload models.TabPayload) {
	g.mu.Lock()
	defer g.mu.Unlock()

	title := payload.Title
	if title == "" {
		title = "Untitled"
	}

	tabID := "tab::" + hashID(firstNonEmpty(payload.URL, title))
	g.upsertNode(Node{
		ID:      tabID,
		Label:   title,
		Type:    NodeTab,
		URL:     payload.URL,
		Summary: payload.Summary,
	})

	var added []string
	for _, ent := range payload.Entities {
		label := strings.TrimSpace(ent.Name)
		if label == "" {
			continue
		}

		entityID := "entity::" + hashID(strings.ToLower(label))
		if _, exists := g.nodes[entityID]; !exists {
			g.upsertNode(Node{
				ID:         entityID,
				Label:      label,
				Type:       NodeEntity,
				EntityType: string(models.NormalizeEntityType(string(ent.Type))),
			})
			added = append(added, entityID)
		}

		g.upsertEdge(Edge{
			Source:   tabID,
			Target:   entityID,
			Relation: RelContains,
			Weight:   1.0,
		})
	}

	g.linkSimilarEntities(added)
	metrics.GraphNodes.Set(float64(len(g.nodes)))
}

// linkSimilarEntities connects each newly added entity to existing
// entities whose labels overlap enough. The original system compared
// sentence embeddings; the threshold semantics are kept over a token
// overlap measure instead.
func (g *Graph) linkSimilarEntities(added []string) {
	newSet := make(map[string]struct{}, len(added))
	for _, id := range added {
		newSet[id] = struct{}{}
	}

	for _, newID := range added {
		for _, oldID := range g.nodeOrder {
			old := g.nodes[oldID]
			if old.Type != NodeEntity {
				continue
			}
			if _, isNew := newSet[oldID]; isNew {
				continue
			}

			sim := Similarity(g.nodes[newID].Label, old.Label)
			if sim >= g.threshold {
				g.upsertEdge(Edge{
					Source:   newID,
					Target:   oldID,
					Relation: RelSemantically,
					Weight:   round3(sim),
				})
			}
		}
	}
}

// Export returns the graph in insertion order, deterministic for a
// fixed sequence of AddTab calls.
func (g *Graph) Export() Export {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := Export{
		Nodes: make([]Node, 0, len(g.nodeOrder)),
		Edges: make([]Edge, 0, len(g.edgeOrder)),
	}
	for _, id := range g.nodeOrder {
		out.Nodes = append(out.Nodes, g.nodes[id])
	}
	for _, key := range g.edgeOrder {
		out.Edges = append(out.Edges, g.edges[key])
	}
	return out
}

func (g *Graph) upsertNode(n Node) {
	if _, exists := g.nodes[n.ID]; !exists {
		g.nodeOrder = append(g.nodeOrder, n.ID)
	}
	g.nodes[n.ID] = n
}

func (g *Graph) upsertEdge(e Edge) {
	key := edgeKey(e)
	if _, exists := g.edges[key]; !exists {
		g.edgeOrder = append(g.edgeOrder, key)
	}
	g.edges[key] = e
}

// edgeKey normalizes similarity edges so the two directions collapse
// into one undirected edge.
func edgeKey(e Edge) string {
	a, b := e.Source, e.Target
	if e.Relation == RelSemantically && b < a {
		a, b = b, a
	}
	return a + "|" + b + "|" + e.Relation
}

var tokenSplit = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// Similarity is a lexical token-overlap measure between two labels:
// the Jaccard index of their lowercased token sets. Pure function,
// symmetric, in [0, 1].
func Similarity(a, b string) float64 {
	ta := tokenSet(a)
	tb := tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	inter := 0
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	return float64(inter) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range tokenSplit.Split(strings.ToLower(s), -1) {
		if tok != "" {
			set[tok] = struct{}{}
		}
	}
	return set
}

func hashID(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func round3(f float64) float64 {
	return float64(int(f*1000+0.5)) / 1000
}
