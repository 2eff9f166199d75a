package rem

import (
	"encoding/json"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/Healer-AI/p8fs-sub000/pkg/apperror"
)

// QueryType identifies one of the five REM query shapes.
type QueryType string

const (
	QueryLookup   QueryType = "lookup"
	QuerySearch   QueryType = "search"
	QueryFuzzy    QueryType = "fuzzy"
	QuerySQL      QueryType = "sql"
	QueryTraverse QueryType = "traverse"
)

// ParseQueryType accepts any casing of a query type name.
func ParseQueryType(s string) (QueryType, error) {
	qt := QueryType(strings.ToLower(strings.TrimSpace(s)))
	switch qt {
	case QueryLookup, QuerySearch, QueryFuzzy, QuerySQL, QueryTraverse:
		return qt, nil
	}
	return "", apperror.ErrUnsupportedQuery.WithMessage(fmt.Sprintf("unsupported query type %q", s))
}

// Metric is the vector distance used by SEARCH.
type Metric string

const (
	MetricCosine       Metric = "cosine"
	MetricL2           Metric = "l2"
	MetricInnerProduct Metric = "inner_product"
)

// Defaults shared by the parameter constructors.
const (
	DefaultTable            = "resources"
	DefaultLimit            = 10
	DefaultSearchThreshold  = 0.7
	DefaultFuzzyThreshold   = 0.3
	DefaultMaxDepth         = 1
	DefaultResultLimit      = 9
	DefaultOrderByEdgeField = "created_at"
)

// Edge traversal directions. Only outbound edges are stored on entities.
const (
	DirectionOutbound = "outbound"
	DirectionInbound  = "inbound"
	DirectionBoth     = "both"
)

// Keys is one or more lookup keys. In JSON it is either a string or a list.
type Keys []string

// UnmarshalJSON accepts "key" as well as ["a", "b"].
func (k *Keys) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*k = Keys{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("key must be a string or a list of strings")
	}
	*k = many
	return nil
}

// MarshalJSON writes a single key as a plain string.
func (k Keys) MarshalJSON() ([]byte, error) {
	if len(k) == 1 {
		return json.Marshal(k[0])
	}
	return json.Marshal([]string(k))
}

// String renders keys the way stage descriptions show them.
func (k Keys) String() string {
	return strings.Join(k, ", ")
}

func (k Keys) validate(field string) error {
	if len(k) == 0 {
		return apperror.NewValidation(field + " is required")
	}
	for _, key := range k {
		if strings.TrimSpace(key) == "" {
			return apperror.NewValidation(field + " must not contain empty keys")
		}
	}
	return nil
}

// Scope carries the table and tenant every query runs against.
type Scope struct {
	TableName string `json:"table_name"`
	TenantID  string `json:"tenant_id,omitempty"`
}

func defaultScope() Scope {
	return Scope{TableName: DefaultTable}
}

// Parameters is implemented by the five parameter variants.
type Parameters interface {
	QueryType() QueryType
	Validate() error
	scope() Scope
	withTenant(tenantID string) Parameters
}

// LookupParameters resolves keys to entities across every table. A
// non-empty TableName restricts results to that table.
type LookupParameters struct {
	Scope
	Keys   Keys     `json:"key"`
	Fields []string `json:"fields,omitempty"`
}

// DefaultLookupParameters returns type-agnostic lookup parameters for keys.
func DefaultLookupParameters(keys ...string) LookupParameters {
	return LookupParameters{Keys: keys}
}

func (p LookupParameters) QueryType() QueryType { return QueryLookup }
func (p LookupParameters) scope() Scope         { return p.Scope }

func (p LookupParameters) withTenant(tenantID string) Parameters {
	p.TenantID = tenantID
	p.Keys = slices.Clone(p.Keys)
	p.Fields = slices.Clone(p.Fields)
	return p
}

func (p LookupParameters) Validate() error {
	if err := p.Keys.validate("key"); err != nil {
		return err
	}
	if p.TableName != "" && !isIdentifier(p.TableName) {
		return apperror.NewValidation(fmt.Sprintf("invalid table name %q", p.TableName))
	}
	for _, f := range p.Fields {
		if f != "*" && !isIdentifier(f) {
			return apperror.NewValidation(fmt.Sprintf("invalid field %q", f))
		}
	}
	return nil
}

// SearchParameters drive a vector similarity search.
type SearchParameters struct {
	Scope
	QueryText      string  `json:"query_text"`
	EmbeddingField string  `json:"embedding_field,omitempty"`
	Limit          int     `json:"limit"`
	Threshold      float64 `json:"threshold"`
	Metric         Metric  `json:"metric"`
}

// DefaultSearchParameters returns search parameters with the standard
// limit, threshold and metric.
func DefaultSearchParameters(text string) SearchParameters {
	return SearchParameters{
		Scope:     defaultScope(),
		QueryText: text,
		Limit:     DefaultLimit,
		Threshold: DefaultSearchThreshold,
		Metric:    MetricCosine,
	}
}

func (p SearchParameters) QueryType() QueryType { return QuerySearch }
func (p SearchParameters) scope() Scope         { return p.Scope }

func (p SearchParameters) withTenant(tenantID string) Parameters {
	p.TenantID = tenantID
	return p
}

func (p SearchParameters) Validate() error {
	if strings.TrimSpace(p.QueryText) == "" {
		return apperror.NewValidation("query_text is required")
	}
	if !isIdentifier(p.TableName) {
		return apperror.NewValidation(fmt.Sprintf("invalid table name %q", p.TableName))
	}
	if p.Limit <= 0 {
		return apperror.NewValidation("limit must be positive")
	}
	switch p.Metric {
	case MetricCosine, MetricL2, MetricInnerProduct:
	default:
		return apperror.NewValidation(fmt.Sprintf("unsupported metric %q", p.Metric))
	}
	return nil
}

// FuzzyParameters drive approximate text matching.
type FuzzyParameters struct {
	Scope
	QueryText         string   `json:"query_text"`
	SearchFields      []string `json:"search_fields"`
	Limit             int      `json:"limit"`
	Threshold         float64  `json:"threshold"`
	UseWordSimilarity bool     `json:"use_word_similarity"`
}

// DefaultFuzzyParameters matches text against name and content.
func DefaultFuzzyParameters(text string) FuzzyParameters {
	return FuzzyParameters{
		Scope:        defaultScope(),
		QueryText:    text,
		SearchFields: []string{"name", "content"},
		Limit:        DefaultLimit,
		Threshold:    DefaultFuzzyThreshold,
	}
}

func (p FuzzyParameters) QueryType() QueryType { return QueryFuzzy }
func (p FuzzyParameters) scope() Scope         { return p.Scope }

func (p FuzzyParameters) withTenant(tenantID string) Parameters {
	p.TenantID = tenantID
	p.SearchFields = slices.Clone(p.SearchFields)
	return p
}

func (p FuzzyParameters) Validate() error {
	if strings.TrimSpace(p.QueryText) == "" {
		return apperror.NewValidation("query_text is required")
	}
	if !isIdentifier(p.TableName) {
		return apperror.NewValidation(fmt.Sprintf("invalid table name %q", p.TableName))
	}
	if len(p.SearchFields) == 0 {
		return apperror.NewValidation("search_fields must not be empty")
	}
	for _, f := range p.SearchFields {
		if !isIdentifier(f) {
			return apperror.NewValidation(fmt.Sprintf("invalid search field %q", f))
		}
	}
	if p.Limit <= 0 {
		return apperror.NewValidation("limit must be positive")
	}
	if p.Threshold < 0 || p.Threshold > 1 {
		return apperror.NewValidation("threshold must be between 0 and 1")
	}
	return nil
}

var (
	dangerousKeywords = regexp.MustCompile(`(?i)\b(DELETE|UPDATE|DROP|INSERT|TRUNCATE|ALTER|CREATE)\b`)
	identifierRE      = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)
	orderTermRE       = regexp.MustCompile(`(?i)^([A-Za-z_][A-Za-z0-9_.]*)(\s+(ASC|DESC))?(\s+NULLS\s+(FIRST|LAST))?$`)
)

func isIdentifier(s string) bool {
	return identifierRE.MatchString(s)
}

// SQLParameters describe a read-only, tenant-scoped SELECT. Select fields,
// order terms and the table are interpolated, so they must be plain
// identifiers; the where clause may not carry any mutating keyword.
type SQLParameters struct {
	Scope
	SelectFields []string `json:"select_fields"`
	WhereClause  string   `json:"where_clause,omitempty"`
	OrderBy      []string `json:"order_by,omitempty"`
	Limit        int      `json:"limit,omitempty"`
}

// DefaultSQLParameters selects every column of the default table.
func DefaultSQLParameters() SQLParameters {
	return SQLParameters{Scope: defaultScope(), SelectFields: []string{"*"}}
}

// NewSQLParameters builds and validates SQL parameters in one step.
func NewSQLParameters(table, where string, orderBy []string, limit int) (SQLParameters, error) {
	p := DefaultSQLParameters()
	if table != "" {
		p.TableName = table
	}
	p.WhereClause = strings.TrimSpace(where)
	p.OrderBy = orderBy
	p.Limit = limit
	if err := p.Validate(); err != nil {
		return SQLParameters{}, err
	}
	return p, nil
}

func (p SQLParameters) QueryType() QueryType { return QuerySQL }
func (p SQLParameters) scope() Scope         { return p.Scope }

func (p SQLParameters) withTenant(tenantID string) Parameters {
	p.TenantID = tenantID
	p.SelectFields = slices.Clone(p.SelectFields)
	p.OrderBy = slices.Clone(p.OrderBy)
	return p
}

func (p SQLParameters) Validate() error {
	if m := dangerousKeywords.FindString(p.WhereClause); m != "" {
		return apperror.NewValidation(fmt.Sprintf("dangerous SQL keyword %s not allowed in where clause", strings.ToUpper(m)))
	}
	if !isIdentifier(p.TableName) {
		return apperror.NewValidation(fmt.Sprintf("invalid table name %q", p.TableName))
	}
	for _, f := range p.SelectFields {
		if f == "*" {
			continue
		}
		if !isIdentifier(strings.TrimSuffix(f, ".*")) {
			return apperror.NewValidation(fmt.Sprintf("invalid select field %q", f))
		}
	}
	for _, o := range p.OrderBy {
		if !orderTermRE.MatchString(strings.TrimSpace(o)) {
			return apperror.NewValidation(fmt.Sprintf("invalid order by term %q", o))
		}
	}
	if p.Limit < 0 {
		return apperror.NewValidation("limit must not be negative")
	}
	return nil
}

// fields returns the select list, "*" when empty.
func (p SQLParameters) fields() string {
	if len(p.SelectFields) == 0 {
		return "*"
	}
	return strings.Join(p.SelectFields, ", ")
}

// TraverseParameters describe a seeded multi-hop walk over graph_paths.
type TraverseParameters struct {
	Scope
	InitialQueryType QueryType `json:"initial_query_type" jsonschema:"seed query kind: lookup, search or sql"`
	InitialQuery     Keys      `json:"initial_query" jsonschema:"lookup keys, search text or a where clause"`
	EdgeTypes        []string  `json:"edge_types,omitempty" jsonschema:"only follow these relationship types"`
	MaxDepth         int       `json:"max_depth" jsonschema:"hops to follow; 0 returns edge statistics only"`
	PlanMode         bool      `json:"plan_mode,omitempty" jsonschema:"same as max_depth 0"`
	PlanMemo         string    `json:"plan_memo,omitempty" jsonschema:"free text echoed back on every stage"`
	Direction        string    `json:"direction" jsonschema:"outbound, inbound or both"`
	OrderByEdgeField string    `json:"order_by_edge_field" jsonschema:"edge field used to order edges before following"`
	OrderDirection   string    `json:"order_direction" jsonschema:"ASC or DESC"`
	ResultLimit      int       `json:"result_limit" jsonschema:"maximum nodes returned"`
}

// DefaultTraverseParameters seeds a one-hop traversal with the given query.
func DefaultTraverseParameters(initial QueryType, query ...string) TraverseParameters {
	return TraverseParameters{
		Scope:            defaultScope(),
		InitialQueryType: initial,
		InitialQuery:     query,
		MaxDepth:         DefaultMaxDepth,
		Direction:        DirectionOutbound,
		OrderByEdgeField: DefaultOrderByEdgeField,
		OrderDirection:   "DESC",
		ResultLimit:      DefaultResultLimit,
	}
}

func (p TraverseParameters) QueryType() QueryType { return QueryTraverse }
func (p TraverseParameters) scope() Scope         { return p.Scope }

func (p TraverseParameters) withTenant(tenantID string) Parameters {
	p.TenantID = tenantID
	p.InitialQuery = slices.Clone(p.InitialQuery)
	p.EdgeTypes = slices.Clone(p.EdgeTypes)
	return p
}

// IsPlanMode reports whether the traversal should stop after the seed and
// return edge statistics.
func (p TraverseParameters) IsPlanMode() bool {
	return p.MaxDepth == 0 || p.PlanMode
}

// Descending reports whether edges are ordered high to low.
func (p TraverseParameters) Descending() bool {
	return !strings.EqualFold(p.OrderDirection, "ASC")
}

func (p TraverseParameters) Validate() error {
	switch p.InitialQueryType {
	case QueryLookup, QuerySearch, QuerySQL:
	default:
		return apperror.NewValidation(fmt.Sprintf("unsupported initial query type %q", p.InitialQueryType))
	}
	if err := p.InitialQuery.validate("initial_query"); err != nil {
		return err
	}
	if p.InitialQueryType == QuerySQL {
		if m := dangerousKeywords.FindString(p.InitialQuery.String()); m != "" {
			return apperror.NewValidation(fmt.Sprintf("dangerous SQL keyword %s not allowed in where clause", strings.ToUpper(m)))
		}
	}
	if p.MaxDepth < 0 {
		return apperror.NewValidation("max_depth must not be negative")
	}
	if p.ResultLimit < 0 {
		return apperror.NewValidation("result_limit must not be negative")
	}
	switch p.Direction {
	case DirectionOutbound, DirectionInbound, DirectionBoth:
	default:
		return apperror.NewValidation(fmt.Sprintf("unsupported direction %q", p.Direction))
	}
	if !strings.EqualFold(p.OrderDirection, "ASC") && !strings.EqualFold(p.OrderDirection, "DESC") {
		return apperror.NewValidation("order_direction must be ASC or DESC")
	}
	if p.OrderByEdgeField == "" {
		return apperror.NewValidation("order_by_edge_field is required")
	}
	if !isIdentifier(p.TableName) {
		return apperror.NewValidation(fmt.Sprintf("invalid table name %q", p.TableName))
	}
	return nil
}

// QueryPlan is an immutable, validated query ready for execution.
type QueryPlan struct {
	queryType QueryType
	params    Parameters
	metadata  map[string]any
}

// NewQueryPlan validates params and checks they match qt.
func NewQueryPlan(qt QueryType, params Parameters, metadata map[string]any) (*QueryPlan, error) {
	if params == nil {
		return nil, apperror.NewValidation("parameters are required")
	}
	if params.QueryType() != qt {
		return nil, apperror.NewValidation(fmt.Sprintf("%s parameters do not match query type %s", params.QueryType(), qt))
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &QueryPlan{
		queryType: qt,
		params:    params.withTenant(params.scope().TenantID),
		metadata:  maps.Clone(metadata),
	}, nil
}

// WithTenant returns a copy of the plan scoped to tenantID.
func (p *QueryPlan) WithTenant(tenantID string) *QueryPlan {
	return &QueryPlan{
		queryType: p.queryType,
		params:    p.params.withTenant(tenantID),
		metadata:  maps.Clone(p.metadata),
	}
}

// Type returns the query type.
func (p *QueryPlan) Type() QueryType { return p.queryType }

// Parameters returns a copy of the plan parameters.
func (p *QueryPlan) Parameters() Parameters {
	return p.params.withTenant(p.params.scope().TenantID)
}

// TenantID is the tenant carried by the parameters, possibly empty.
func (p *QueryPlan) TenantID() string { return p.params.scope().TenantID }

// TableName is the table carried by the parameters.
func (p *QueryPlan) TableName() string { return p.params.scope().TableName }

// Metadata returns a copy of the plan metadata.
func (p *QueryPlan) Metadata() map[string]any { return maps.Clone(p.metadata) }

type planJSON struct {
	QueryType  QueryType       `json:"query_type"`
	Parameters json.RawMessage `json:"parameters"`
	Metadata   map[string]any  `json:"metadata,omitempty"`
}

// MarshalJSON renders the plan as {query_type, parameters, metadata}.
func (p *QueryPlan) MarshalJSON() ([]byte, error) {
	raw, err := json.Marshal(p.params)
	if err != nil {
		return nil, err
	}
	return json.Marshal(planJSON{QueryType: p.queryType, Parameters: raw, Metadata: p.metadata})
}

// DecodeQueryPlan reads a JSON plan. Missing parameter fields take their
// defaults before validation.
func DecodeQueryPlan(data []byte) (*QueryPlan, error) {
	var in planJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, apperror.NewValidation("invalid plan: " + err.Error())
	}
	qt, err := ParseQueryType(string(in.QueryType))
	if err != nil {
		return nil, err
	}
	if len(in.Parameters) == 0 {
		return nil, apperror.NewValidation("parameters are required")
	}

	var params Parameters
	switch qt {
	case QueryLookup:
		p := DefaultLookupParameters()
		err = json.Unmarshal(in.Parameters, &p)
		params = p
	case QuerySearch:
		p := DefaultSearchParameters("")
		err = json.Unmarshal(in.Parameters, &p)
		params = p
	case QueryFuzzy:
		p := DefaultFuzzyParameters("")
		err = json.Unmarshal(in.Parameters, &p)
		params = p
	case QuerySQL:
		p := DefaultSQLParameters()
		err = json.Unmarshal(in.Parameters, &p)
		params = p
	case QueryTraverse:
		p := DefaultTraverseParameters(QueryLookup)
		err = json.Unmarshal(in.Parameters, &p)
		p.InitialQueryType = QueryType(strings.ToLower(string(p.InitialQueryType)))
		params = p
	}
	if err != nil {
		return nil, apperror.NewValidation(fmt.Sprintf("invalid %s parameters: %v", qt, err))
	}
	return NewQueryPlan(qt, params, in.Metadata)
}
