// Package loader parses declarative workflow JSON (nodes + edges),
// instantiates nodes via the registry, and builds a graph.Graph.
package loader

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/lyzr/flowkernel/common/logger"
	"github.com/lyzr/flowkernel/internal/graph"
	"github.com/lyzr/flowkernel/internal/nodeconfig"
	"github.com/lyzr/flowkernel/internal/registry"
)

// Document is the wire shape of a workflow JSON file.
type Document struct {
	Nodes []DocNode `json:"nodes"`
	Edges []DocEdge `json:"edges"`
}

// DocNode is one entry of Document.Nodes.
type DocNode struct {
	ID   string      `json:"id"`
	Type string      `json:"type"`
	Data DocNodeData `json:"data"`
}

// DocNodeData is a node entry's "data" subtree: rendered form values and
// a free-form config map.
type DocNodeData struct {
	Form   map[string]any `json:"form"`
	Config map[string]any `json:"config"`
}

// DocEdge is one entry of Document.Edges.
type DocEdge struct {
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle"`
}

// Result is what Load returns: the built graph plus the identifiers the
// loader could not resolve (unknown node types, each already logged).
type Result struct {
	Graph   *graph.Graph
	Skipped []string
}

// Loader parses workflow documents against a fixed registry.
type Loader struct {
	registry *registry.Registry
	log      *logger.Logger
}

// New returns a Loader bound to reg. log may be nil, in which case
// skip/parse warnings are discarded.
func New(reg *registry.Registry, log *logger.Logger) *Loader {
	return &Loader{registry: reg, log: log}
}

// Load parses raw workflow JSON into a graph.Graph.
func (l *Loader) Load(raw []byte) (*Result, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("loader: parse workflow document: %w", err)
	}
	return l.loadDocument(&doc)
}

func (l *Loader) loadDocument(doc *Document) (*Result, error) {
	g := graph.New()
	var skipped []string

	for _, n := range doc.Nodes {
		cfg, err := nodeconfig.New(n.ID, n.Type, nodeconfig.Cooperative, n.Data.Config, n.Data.Form)
		if err != nil {
			return nil, fmt.Errorf("loader: node %q: %w", n.ID, err)
		}
		if pool, ok := poolFromConfig(n.Data.Config); ok {
			cfg, err = nodeconfig.New(n.ID, n.Type, pool, n.Data.Config, n.Data.Form)
			if err != nil {
				return nil, fmt.Errorf("loader: node %q: %w", n.ID, err)
			}
		}

		instance, err := l.registry.Create(cfg)
		if err != nil {
			return nil, fmt.Errorf("loader: node %q: %w", n.ID, err)
		}
		if instance == nil {
			l.logf("warn", "loader: unknown node type, skipping", "node_id", n.ID, "type", n.Type)
			skipped = append(skipped, n.ID)
			continue
		}
		if err := g.AddNode(n.ID, instance); err != nil {
			return nil, fmt.Errorf("loader: %w", err)
		}
	}

	for _, e := range doc.Edges {
		key := normalizeHandle(e.SourceHandle)
		if err := g.Connect(e.Source, e.Target, key); err != nil {
			// An edge referencing a skipped (unknown-type) node is not
			// a load error — it's the documented consequence of
			// omitting the node.
			if containsAny(skipped, e.Source, e.Target) {
				l.logf("warn", "loader: edge references skipped node, dropping edge",
					"source", e.Source, "target", e.Target)
				continue
			}
			return nil, fmt.Errorf("loader: %w", err)
		}
	}

	l.logf("info", "loader: graph built", "nodes", g.Len(), "skipped", len(skipped))

	return &Result{Graph: g, Skipped: skipped}, nil
}

// ApplyPatch applies an RFC 6902 JSON patch to a raw workflow document —
// the mechanism development-mode tooling uses to push a single node's
// form/config edit without resubmitting the whole graph. The caller
// re-runs Load on the result.
func (l *Loader) ApplyPatch(raw []byte, patch []byte) ([]byte, error) {
	p, err := jsonpatch.DecodePatch(patch)
	if err != nil {
		return nil, fmt.Errorf("loader: decode patch: %w", err)
	}
	out, err := p.Apply(raw)
	if err != nil {
		return nil, fmt.Errorf("loader: apply patch: %w", err)
	}
	return out, nil
}

// normalizeHandle canonicalizes an edge's branch key: lowercase,
// null/missing -> "default", "Yes"/"No" -> "yes"/"no" (case-insensitively,
// since lowercasing happens first).
func normalizeHandle(handle string) string {
	h := strings.ToLower(strings.TrimSpace(handle))
	if h == "" {
		return graph.DefaultBranch
	}
	return h
}

func poolFromConfig(config map[string]any) (nodeconfig.Pool, bool) {
	raw, ok := config["preferred_pool"]
	if !ok {
		return "", false
	}
	s, ok := raw.(string)
	if !ok {
		return "", false
	}
	p := nodeconfig.Pool(strings.ToUpper(s))
	if !p.Valid() {
		return "", false
	}
	return p, true
}

func containsAny(list []string, candidates ...string) bool {
	for _, c := range candidates {
		for _, item := range list {
			if item == c {
				return true
			}
		}
	}
	return false
}

func (l *Loader) logf(level, msg string, args ...any) {
	if l.log == nil {
		return
	}
	switch level {
	case "warn":
		l.log.Warn(msg, args...)
	default:
		l.log.Info(msg, args...)
	}
}
