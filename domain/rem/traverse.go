package rem

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Healer-AI/p8fs-sub000/pkg/apperror"
	"github.com/Healer-AI/p8fs-sub000/pkg/logger"
	"github.com/Healer-AI/p8fs-sub000/pkg/tracing"
)

const (
	// DefaultSeedLimit caps SEARCH and SQL seed queries.
	DefaultSeedLimit = 100
	// DefaultEdgeSampleLimit caps sample targets per edge type in PLAN mode.
	DefaultEdgeSampleLimit = 5

	planEntityLimit = 10
	planMode        = "PLAN"
	noEdgesStage    = "No edges to follow"
)

// StageCount is what one stage found.
type StageCount struct {
	Nodes int `json:"nodes"`
	Edges int `json:"edges"`
}

// Stage describes one executed depth of a traversal.
type Stage struct {
	Depth     int            `json:"depth"`
	Executed  string         `json:"executed"`
	Found     StageCount     `json:"found"`
	EdgeTypes map[string]int `json:"edge_types,omitempty"`
	PlanMemo  string         `json:"plan_memo,omitempty"`
}

// EdgeTriple is a followed edge as [src, rel_type, dst].
type EdgeTriple [3]string

// EdgeTypeStats counts one edge type in PLAN mode.
type EdgeTypeStats struct {
	Count         int      `json:"count"`
	SampleTargets []string `json:"sample_targets"`
}

// EntityEdgeCount is the edge count of one seed entity in PLAN mode.
type EntityEdgeCount struct {
	Key       string `json:"key"`
	EdgeCount int    `json:"edge_count"`
}

// EdgeAnalysis is the PLAN mode result: which relationships leave the seed.
type EdgeAnalysis struct {
	EntityCount int                       `json:"entity_count"`
	EdgeTypes   map[string]*EdgeTypeStats `json:"edge_types"`
	Entities    []EntityEdgeCount         `json:"entities"`
}

// TraverseMetadata summarises a traversal.
type TraverseMetadata struct {
	Mode                     string   `json:"mode,omitempty"`
	TotalNodes               int      `json:"total_nodes"`
	TotalNodesBeforeLimit    int      `json:"total_nodes_before_limit"`
	TotalEdges               int      `json:"total_edges"`
	UniqueNodes              int      `json:"unique_nodes"`
	NodeUniquenessGuaranteed bool     `json:"node_uniqueness_guaranteed"`
	MaxDepthReached          int      `json:"max_depth_reached"`
	EdgeFilter               []string `json:"edge_filter,omitempty"`
	QueryPlanMemo            string   `json:"query_plan_memo,omitempty"`
	ResultLimit              int      `json:"result_limit"`
	LimitApplied             bool     `json:"limit_applied"`
}

// TraverseResponse is the full result of a TRAVERSE query.
type TraverseResponse struct {
	Nodes       []Entity         `json:"nodes"`
	Stages      []Stage          `json:"stages"`
	SourceNodes []string         `json:"source_nodes"`
	EdgeSummary []EdgeTriple     `json:"edge_summary"`
	Analysis    *EdgeAnalysis    `json:"analysis,omitempty"`
	Metadata    TraverseMetadata `json:"metadata"`
}

// TraverserConfig bounds a traversal.
type TraverserConfig struct {
	SeedLimit       int
	EdgeSampleLimit int
	Timeout         time.Duration
}

// Traverser runs breadth-first edge expansion on top of a Backend. Each
// depth costs exactly one batched LOOKUP.
type Traverser struct {
	backend Backend
	cfg     TraverserConfig
	log     *slog.Logger
}

// NewTraverser creates a traverser. Zero config values take defaults.
func NewTraverser(backend Backend, cfg TraverserConfig, log *slog.Logger) *Traverser {
	if cfg.SeedLimit <= 0 {
		cfg.SeedLimit = DefaultSeedLimit
	}
	if cfg.EdgeSampleLimit <= 0 {
		cfg.EdgeSampleLimit = DefaultEdgeSampleLimit
	}
	return &Traverser{
		backend: backend,
		cfg:     cfg,
		log:     log.With(logger.Scope("rem.traverse")),
	}
}

// traversal holds the state of one Traverse call.
type traversal struct {
	params  TraverseParameters
	visited map[string]struct{}
	nodes   []Entity
	stages  []Stage
	sources []string
	summary []EdgeTriple
}

func (t *traversal) visit(key string) bool {
	if key == "" {
		return true
	}
	if _, seen := t.visited[key]; seen {
		return false
	}
	t.visited[key] = struct{}{}
	return true
}

// Traverse runs the seed query and follows edges up to MaxDepth hops.
func (t *Traverser) Traverse(ctx context.Context, p TraverseParameters) (*TraverseResponse, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if t.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.Timeout)
		defer cancel()
	}
	if p.Direction != DirectionOutbound {
		t.log.Debug("only outbound edges are stored, following outbound",
			slog.String("direction", p.Direction))
	}

	ctx, span := tracing.Start(ctx, "rem.traverse",
		attribute.String("rem.initial_query_type", string(p.InitialQueryType)),
		attribute.Int("rem.max_depth", p.MaxDepth),
	)
	defer span.End()

	st := &traversal{params: p, visited: map[string]struct{}{}}

	seed, err := t.seed(ctx, p)
	if err != nil {
		return nil, err
	}
	executed := fmt.Sprintf("%s %s", strings.ToUpper(string(p.InitialQueryType)), p.InitialQuery)

	var entry []Entity
	for _, e := range seed {
		key := e.Key()
		if !st.visit(key) {
			continue
		}
		if key != "" {
			st.sources = append(st.sources, key)
		}
		entry = append(entry, e)
	}

	if len(entry) == 0 {
		t.log.Info("traverse seed found nothing", slog.String("seed", executed))
		st.stages = append(st.stages, Stage{Depth: 0, Executed: executed, PlanMemo: p.PlanMemo})
		return st.response(), nil
	}

	seedEdges := 0
	for _, e := range entry {
		edges, _ := e.GraphPaths()
		seedEdges += len(edges)
	}
	seedStage := Stage{
		Depth:    0,
		Executed: executed,
		Found:    StageCount{Nodes: len(entry), Edges: seedEdges},
		PlanMemo: p.PlanMemo,
	}

	// PLAN mode returns no nodes; seed counts live in the stage and analysis.
	if p.IsPlanMode() {
		return &TraverseResponse{
			Nodes:       []Entity{},
			Stages:      []Stage{seedStage},
			SourceNodes: st.sources,
			EdgeSummary: []EdgeTriple{},
			Analysis:    t.analyze(entry, p.EdgeTypes),
			Metadata: TraverseMetadata{
				Mode:                     planMode,
				TotalNodes:               0,
				TotalNodesBeforeLimit:    0,
				TotalEdges:               seedEdges,
				UniqueNodes:              len(st.visited),
				NodeUniquenessGuaranteed: true,
				EdgeFilter:               p.EdgeTypes,
				QueryPlanMemo:            p.PlanMemo,
				ResultLimit:              p.ResultLimit,
			},
		}, nil
	}

	st.stages = append(st.stages, seedStage)
	for i := range entry {
		entry[i].setTraverseDepth(0)
	}
	st.nodes = append(st.nodes, entry...)

	frontier := entry
	for depth := 1; depth <= p.MaxDepth; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, apperror.ErrBackendUnavailable.WithMessage("traverse deadline exceeded").WithInternal(err)
		}
		next, done, err := t.expand(ctx, st, frontier, depth)
		if err != nil {
			return nil, err
		}
		if done {
			break
		}
		frontier = next
	}

	t.log.Info("traverse complete",
		slog.Int("nodes", len(st.nodes)),
		slog.Int("stages", len(st.stages)),
		slog.Int("edges", len(st.summary)),
	)
	return st.response(), nil
}

// seed runs the initial query.
func (t *Traverser) seed(ctx context.Context, p TraverseParameters) ([]Entity, error) {
	switch p.InitialQueryType {
	case QueryLookup:
		lp := DefaultLookupParameters(p.InitialQuery...)
		lp.TenantID = p.TenantID
		return t.backend.Lookup(ctx, lp)
	case QuerySearch:
		sp := DefaultSearchParameters(p.InitialQuery[0])
		sp.TableName = p.TableName
		sp.TenantID = p.TenantID
		sp.Limit = t.cfg.SeedLimit
		return t.backend.Search(ctx, sp)
	case QuerySQL:
		qp, err := NewSQLParameters(p.TableName, p.InitialQuery[0], nil, t.cfg.SeedLimit)
		if err != nil {
			return nil, err
		}
		qp.TenantID = p.TenantID
		return t.backend.SQL(ctx, qp)
	}
	return nil, apperror.NewValidation(fmt.Sprintf("unsupported initial query type %q", p.InitialQueryType))
}

// expand follows the frontier's edges one hop. done is true when there
// was nothing left to follow.
func (t *Traverser) expand(ctx context.Context, st *traversal, frontier []Entity, depth int) ([]Entity, bool, error) {
	ctx, span := tracing.Start(ctx, "rem.traverse.depth", attribute.Int("rem.depth", depth))
	defer span.End()

	p := st.params
	var targets []string
	pending := map[string]struct{}{}
	histogram := map[string]int{}
	var relOrder []string
	followed := 0

	for _, e := range frontier {
		edges, err := e.GraphPaths()
		if err != nil {
			t.log.Warn("skipping malformed graph_paths",
				slog.String("entity", e.Key()),
				logger.Error(err),
			)
			continue
		}

		candidates := make([]Edge, 0, len(edges))
		for _, edge := range edges {
			if len(p.EdgeTypes) > 0 && !slices.Contains(p.EdgeTypes, edge.RelType) {
				continue
			}
			if _, seen := st.visited[edge.Target]; seen {
				continue
			}
			candidates = append(candidates, edge)
		}
		sortEdges(candidates, p.OrderByEdgeField, p.Descending())

		src := e.Key()
		for _, edge := range candidates {
			if _, ok := pending[edge.Target]; !ok {
				pending[edge.Target] = struct{}{}
				targets = append(targets, edge.Target)
			}
			if _, ok := histogram[edge.RelType]; !ok {
				relOrder = append(relOrder, edge.RelType)
			}
			histogram[edge.RelType]++
			followed++
			st.summary = append(st.summary, EdgeTriple{src, edge.RelType, edge.Target})
		}
	}

	if len(targets) == 0 {
		t.log.Debug("no edges to follow", slog.Int("depth", depth))
		st.stages = append(st.stages, Stage{Depth: depth, Executed: noEdgesStage, PlanMemo: p.PlanMemo})
		return nil, true, nil
	}

	lp := DefaultLookupParameters(targets...)
	lp.TenantID = p.TenantID
	found, err := t.backend.Lookup(ctx, lp)
	if err != nil {
		return nil, false, err
	}

	next := make([]Entity, 0, len(found))
	for _, e := range found {
		if !st.visit(e.Key()) {
			continue
		}
		e.setTraverseDepth(depth)
		next = append(next, e)
	}
	st.nodes = append(st.nodes, next...)

	st.stages = append(st.stages, Stage{
		Depth:     depth,
		Executed:  fmt.Sprintf("LOOKUP %d targets via %v", len(targets), relOrder),
		Found:     StageCount{Nodes: len(next), Edges: followed},
		EdgeTypes: histogram,
		PlanMemo:  p.PlanMemo,
	})
	return next, false, nil
}

// analyze builds the PLAN mode edge statistics for the seed entities.
func (t *Traverser) analyze(entities []Entity, filter []string) *EdgeAnalysis {
	a := &EdgeAnalysis{
		EntityCount: len(entities),
		EdgeTypes:   map[string]*EdgeTypeStats{},
	}
	for i, e := range entities {
		edges, err := e.GraphPaths()
		if err != nil {
			t.log.Warn("skipping malformed graph_paths",
				slog.String("entity", e.Key()),
				logger.Error(err),
			)
		}
		if i < planEntityLimit {
			a.Entities = append(a.Entities, EntityEdgeCount{Key: e.Key(), EdgeCount: len(edges)})
		}
		for _, edge := range edges {
			rel := edge.RelType
			if rel == "" {
				rel = "unknown"
			}
			if len(filter) > 0 && !slices.Contains(filter, rel) {
				continue
			}
			stats, ok := a.EdgeTypes[rel]
			if !ok {
				stats = &EdgeTypeStats{SampleTargets: []string{}}
				a.EdgeTypes[rel] = stats
			}
			stats.Count++
			if len(stats.SampleTargets) < t.cfg.EdgeSampleLimit {
				stats.SampleTargets = append(stats.SampleTargets, edge.Target)
			}
		}
	}
	return a
}

func (st *traversal) response() *TraverseResponse {
	p := st.params
	nodes := st.nodes
	if nodes == nil {
		nodes = []Entity{}
	}
	before := len(nodes)
	if before > p.ResultLimit {
		nodes = nodes[:p.ResultLimit]
	}
	sources := st.sources
	if sources == nil {
		sources = []string{}
	}
	summary := st.summary
	if summary == nil {
		summary = []EdgeTriple{}
	}
	return &TraverseResponse{
		Nodes:       nodes,
		Stages:      st.stages,
		SourceNodes: sources,
		EdgeSummary: summary,
		Metadata: TraverseMetadata{
			TotalNodes:               len(nodes),
			TotalNodesBeforeLimit:    before,
			TotalEdges:               len(summary),
			UniqueNodes:              len(st.visited),
			NodeUniquenessGuaranteed: true,
			MaxDepthReached:          len(st.stages) - 1,
			EdgeFilter:               p.EdgeTypes,
			QueryPlanMemo:            p.PlanMemo,
			ResultLimit:              p.ResultLimit,
			LimitApplied:             before > p.ResultLimit,
		},
	}
}

// sortEdges orders edges by field. Edges without a value for the field
// always sort last; ties keep their stored order.
func sortEdges(edges []Edge, field string, desc bool) {
	slices.SortStableFunc(edges, func(a, b Edge) int {
		va, okA := a.Field(field)
		vb, okB := b.Field(field)
		switch {
		case !okA && !okB:
			return 0
		case !okA:
			return 1
		case !okB:
			return -1
		}
		c := compareValues(va, vb)
		if desc {
			return -c
		}
		return c
	})
}

func compareValues(a, b any) int {
	ta, okA := parseTime(a)
	tb, okB := parseTime(b)
	if okA && okB {
		return ta.Compare(tb)
	}
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	if okA && okB {
		return cmp.Compare(fa, fb)
	}
	return strings.Compare(toString(a), toString(b))
}
