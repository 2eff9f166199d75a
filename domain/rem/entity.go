package rem

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"
)

// Annotation fields added to every returned entity.
const (
	FieldEntityType    = "_entity_type"
	FieldTableName     = "_table_name"
	FieldTraverseDepth = "_traverse_depth"
	FieldGraphPaths    = "graph_paths"
)

// Entity is one row returned by a backend. Row columns stay opaque; the
// fields the engine relies on have typed accessors.
type Entity struct {
	fields     map[string]any
	entityType string
	tableName  string
	depth      int
	traversed  bool
}

// NewEntity wraps a row. Byte values are converted to strings and any
// annotation fields already present are lifted out of the row.
func NewEntity(row map[string]any) Entity {
	e := Entity{fields: make(map[string]any, len(row))}
	for k, v := range row {
		switch k {
		case FieldEntityType:
			e.entityType = toString(v)
			continue
		case FieldTableName:
			e.tableName = toString(v)
			continue
		case FieldTraverseDepth:
			if d, ok := toInt(v); ok {
				e.depth, e.traversed = d, true
			}
			continue
		}
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		e.fields[k] = v
	}
	return e
}

// Key is the logical key used for traversal: name, else id.
func (e Entity) Key() string {
	if name := toString(e.fields["name"]); name != "" {
		return name
	}
	return toString(e.fields["id"])
}

// ID returns the id column as a string.
func (e Entity) ID() string { return toString(e.fields["id"]) }

// TenantID returns the tenant_id column, empty when absent.
func (e Entity) TenantID() string { return toString(e.fields["tenant_id"]) }

// EntityType is the fully qualified type the row was resolved as.
func (e Entity) EntityType() string { return e.entityType }

// TableName is the table the row came from.
func (e Entity) TableName() string { return e.tableName }

// TraverseDepth is the hop at which the entity was reached.
func (e Entity) TraverseDepth() (int, bool) { return e.depth, e.traversed }

// Get returns a raw column value.
func (e Entity) Get(field string) (any, bool) {
	v, ok := e.fields[field]
	return v, ok
}

// Fields returns a copy of the row columns without annotations.
func (e Entity) Fields() map[string]any { return maps.Clone(e.fields) }

// GraphPaths parses the outgoing edges stored on the entity.
func (e Entity) GraphPaths() ([]Edge, error) {
	return ParseGraphPaths(e.fields[FieldGraphPaths])
}

// annotate records the resolved type. The table is the last dotted part.
func (e *Entity) annotate(entityType string) {
	e.entityType = entityType
	e.tableName = entityType
	if i := strings.LastIndex(entityType, "."); i >= 0 {
		e.tableName = entityType[i+1:]
	}
}

func (e *Entity) annotateTable(entityType, table string) {
	e.entityType = entityType
	e.tableName = table
}

func (e *Entity) setTraverseDepth(depth int) {
	e.depth, e.traversed = depth, true
}

// Map flattens the entity and its annotations into one map.
func (e Entity) Map() map[string]any {
	out := maps.Clone(e.fields)
	if out == nil {
		out = map[string]any{}
	}
	if e.entityType != "" {
		out[FieldEntityType] = e.entityType
	}
	if e.tableName != "" {
		out[FieldTableName] = e.tableName
	}
	if e.traversed {
		out[FieldTraverseDepth] = e.depth
	}
	return out
}

// MarshalJSON renders the flattened map.
func (e Entity) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Map())
}

// UnmarshalJSON reads a flattened map back into an Entity.
func (e *Entity) UnmarshalJSON(data []byte) error {
	var row map[string]any
	if err := json.Unmarshal(data, &row); err != nil {
		return err
	}
	*e = NewEntity(row)
	return nil
}

// Edge is one outgoing relationship stored in graph_paths.
type Edge struct {
	RelType    string         `json:"rel_type"`
	Target     string         `json:"dst"`
	CreatedAt  *time.Time     `json:"created_at,omitempty"`
	Weight     float64        `json:"weight"`
	Properties map[string]any `json:"properties,omitempty"`

	raw map[string]any
}

// Field returns the value used to order edges. Well-known fields map to
// the typed values; anything else is looked up in the raw edge and then in
// its properties.
func (e Edge) Field(name string) (any, bool) {
	switch name {
	case "created_at":
		if e.CreatedAt != nil {
			return *e.CreatedAt, true
		}
	case "weight":
		return e.Weight, true
	case "rel_type", "type", "relationship_type":
		return e.RelType, e.RelType != ""
	case "dst", "target", "target_key":
		return e.Target, e.Target != ""
	}
	if v, ok := e.raw[name]; ok && v != nil {
		return v, true
	}
	if v, ok := e.Properties[name]; ok && v != nil {
		return v, true
	}
	return nil, false
}

// ErrMalformedGraphPaths is returned when graph_paths cannot be decoded.
var ErrMalformedGraphPaths = errors.New("malformed graph_paths")

// ParseGraphPaths decodes graph_paths from a list or a JSON encoded list.
// Dict edges accept rel_type, relationship_type or type for the edge type
// and dst, target_key or target for the destination. Bare strings become
// edges of type "edge". Entries without a destination are dropped.
func ParseGraphPaths(v any) ([]Edge, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []Edge:
		return t, nil
	case string:
		return parseGraphPathsJSON([]byte(t))
	case []byte:
		return parseGraphPathsJSON(t)
	case json.RawMessage:
		return parseGraphPathsJSON(t)
	case []string:
		edges := make([]Edge, 0, len(t))
		for _, s := range t {
			if s != "" {
				edges = append(edges, stringEdge(s))
			}
		}
		return edges, nil
	case []map[string]any:
		edges := make([]Edge, 0, len(t))
		for _, m := range t {
			if edge, ok := edgeFromMap(m); ok {
				edges = append(edges, edge)
			}
		}
		return edges, nil
	case []any:
		edges := make([]Edge, 0, len(t))
		for _, item := range t {
			switch it := item.(type) {
			case string:
				if it != "" {
					edges = append(edges, stringEdge(it))
				}
			case map[string]any:
				if edge, ok := edgeFromMap(it); ok {
					edges = append(edges, edge)
				}
			}
		}
		return edges, nil
	}
	return nil, fmt.Errorf("%w: unsupported type %T", ErrMalformedGraphPaths, v)
}

func parseGraphPathsJSON(data []byte) ([]Edge, error) {
	s := strings.TrimSpace(string(data))
	if s == "" || s == "null" {
		return nil, nil
	}
	var items []any
	if err := json.Unmarshal([]byte(s), &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedGraphPaths, err)
	}
	return ParseGraphPaths(items)
}

func stringEdge(target string) Edge {
	return Edge{RelType: "edge", Target: target, Weight: 1.0}
}

func edgeFromMap(m map[string]any) (Edge, bool) {
	target := firstString(m, "dst", "target_key", "target")
	if target == "" {
		return Edge{}, false
	}
	edge := Edge{
		RelType: firstString(m, "rel_type", "relationship_type", "type"),
		Target:  target,
		Weight:  1.0,
		raw:     m,
	}
	if w, ok := toFloat(m["weight"]); ok {
		edge.Weight = w
	}
	if ts, ok := parseTime(m["created_at"]); ok {
		edge.CreatedAt = &ts
	}
	if props, ok := m["properties"].(map[string]any); ok {
		edge.Properties = props
	}
	return edge, true
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := toString(m[k]); s != "" {
			return s
		}
	}
	return ""
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999-07:00",
	"2006-01-02 15:04:05.999999",
	"2006-01-02",
}

func parseTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t != nil {
			return *t, true
		}
	case string:
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, t); err == nil {
				return ts, true
			}
		}
	}
	return time.Time{}, false
}

func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case fmt.Stringer:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	}
	return fmt.Sprint(v)
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	case []byte:
		f, err := strconv.ParseFloat(string(t), 64)
		return f, err == nil
	}
	return 0, false
}

func toInt(v any) (int, bool) {
	f, ok := toFloat(v)
	return int(f), ok
}
