package rem

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/Healer-AI/p8fs-sub000/pkg/apperror"
	"github.com/Healer-AI/p8fs-sub000/pkg/logger"
)

// Parser turns REM query strings into query plans.
//
//	LOOKUP key | LOOKUP table:key | LOOKUP k1, k2 | GET key
//	SEARCH "text" [IN table] | SEARCH table: text
//	FUZZY "text" [IN table]
//	SELECT fields FROM table [WHERE ...] [ORDER BY ...] [LIMIT n]
//	TRAVERSE [PLAN] [type1,type2] WITH LOOKUP key|SEARCH "text" [DEPTH n] [IN table]
//
// Anything else is a SEARCH over the default table.
type Parser struct {
	DefaultTable string
	TenantID     string
	log          *slog.Logger
}

// NewParser creates a parser that scopes plans to tenantID.
func NewParser(defaultTable, tenantID string, log *slog.Logger) *Parser {
	if defaultTable == "" {
		defaultTable = DefaultTable
	}
	return &Parser{
		DefaultTable: defaultTable,
		TenantID:     tenantID,
		log:          log.With(logger.Scope("rem.parser")),
	}
}

var (
	lookupPrefix   = regexp.MustCompile(`(?i)^(LOOKUP|GET)\s+`)
	searchPrefix   = regexp.MustCompile(`(?i)^SEARCH\s+`)
	fuzzyPrefix    = regexp.MustCompile(`(?i)^FUZZY\s+`)
	traversePrefix = regexp.MustCompile(`(?i)^TRAVERSE\s+`)
	planPrefix     = regexp.MustCompile(`(?i)^PLAN\s+`)
	quotedIn       = regexp.MustCompile(`(?is)^["'](.+?)["']\s*(?:IN\s+(\w+))?$`)
	quotedLead     = regexp.MustCompile(`(?s)^["'](.+?)["']`)
	withWord       = regexp.MustCompile(`(?i)\bWITH\b`)
	depthClause    = regexp.MustCompile(`(?i)DEPTH\s+(\d+)`)
	depthMarker    = regexp.MustCompile(`(?i)\s+DEPTH\s+`)
	inMarker       = regexp.MustCompile(`(?i)\s+IN\s+`)
	inClause       = regexp.MustCompile(`(?i)\bIN\s+(\w+)`)
	selectFields   = regexp.MustCompile(`(?is)^SELECT\s+(.+?)\s+FROM\s`)
	fromClause     = regexp.MustCompile(`(?i)FROM\s+(\w+)`)
	whereClause    = regexp.MustCompile(`(?is)WHERE\s+(.+?)(?:ORDER BY|LIMIT|$)`)
	limitClause    = regexp.MustCompile(`(?i)LIMIT\s+(\d+)`)
	orderClause    = regexp.MustCompile(`(?is)ORDER BY\s+(.+?)(?:LIMIT|$)`)
)

// quoteMarks are tried longest first so triple quotes win over single ones.
var quoteMarks = []string{"```", `"""`, `'''`, `"`, `'`, "`"}

// stripQuotes removes one matching pair of surrounding quotes.
func stripQuotes(s string) string {
	for _, q := range quoteMarks {
		if len(s) > 2*len(q) && strings.HasPrefix(s, q) && strings.HasSuffix(s, q) {
			return s[len(q) : len(s)-len(q)]
		}
	}
	return s
}

func unescapeQuotes(s string) string {
	return strings.NewReplacer(`\"`, `"`, `\'`, `'`).Replace(s)
}

// Parse builds a validated plan from a REM query string.
func (p *Parser) Parse(query string) (*QueryPlan, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperror.NewValidation("query is required")
	}
	upper := strings.ToUpper(query)

	var (
		plan *QueryPlan
		err  error
	)
	switch {
	case strings.HasPrefix(upper, "TRAVERSE "):
		plan, err = p.parseTraverse(query)
	case strings.HasPrefix(upper, "LOOKUP "), strings.HasPrefix(upper, "GET "):
		plan, err = p.parseLookup(query)
	case strings.HasPrefix(upper, "SEARCH "):
		plan, err = p.parseSearch(query)
	case strings.HasPrefix(upper, "FUZZY "):
		plan, err = p.parseFuzzy(query)
	case strings.HasPrefix(upper, "SELECT "):
		plan, err = p.parseSelect(query)
	default:
		sp := DefaultSearchParameters(query)
		sp.TableName = p.DefaultTable
		sp.TenantID = p.TenantID
		plan, err = NewQueryPlan(QuerySearch, sp, nil)
	}
	if err != nil {
		return nil, err
	}
	p.log.Debug("parsed query",
		slog.String("query_type", string(plan.Type())),
		slog.String("table", plan.TableName()),
	)
	return plan, nil
}

// parseLookup handles "LOOKUP key", "LOOKUP table:key" and comma lists.
// Without a table the lookup is type-agnostic.
func (p *Parser) parseLookup(query string) (*QueryPlan, error) {
	rest := strings.TrimSpace(lookupPrefix.ReplaceAllString(query, ""))

	var table string
	if !strings.Contains(rest, ",") {
		if before, after, ok := strings.Cut(rest, ":"); ok && !strings.Contains(before, " ") {
			table = strings.TrimSpace(before)
			rest = strings.TrimSpace(after)
		}
	}

	var keys []string
	for _, raw := range strings.Split(rest, ",") {
		if k := stripQuotes(strings.TrimSpace(raw)); k != "" {
			keys = append(keys, k)
		}
	}

	lp := DefaultLookupParameters(keys...)
	lp.TableName = table
	lp.TenantID = p.TenantID
	return NewQueryPlan(QueryLookup, lp, nil)
}

// parseQuotedTarget reads `"text" [IN table]` or the legacy `table: text`.
func (p *Parser) parseQuotedTarget(rest string) (text, table string) {
	table = p.DefaultTable
	if m := quotedIn.FindStringSubmatch(rest); m != nil {
		if m[2] != "" {
			table = m[2]
		}
		return unescapeQuotes(m[1]), table
	}
	if before, after, ok := strings.Cut(rest, ":"); ok {
		return strings.TrimSpace(after), strings.TrimSpace(before)
	}
	return rest, table
}

func (p *Parser) parseSearch(query string) (*QueryPlan, error) {
	text, table := p.parseQuotedTarget(strings.TrimSpace(searchPrefix.ReplaceAllString(query, "")))
	sp := DefaultSearchParameters(text)
	sp.TableName = table
	sp.TenantID = p.TenantID
	return NewQueryPlan(QuerySearch, sp, nil)
}

func (p *Parser) parseFuzzy(query string) (*QueryPlan, error) {
	text, table := p.parseQuotedTarget(strings.TrimSpace(fuzzyPrefix.ReplaceAllString(query, "")))
	fp := DefaultFuzzyParameters(text)
	fp.TableName = table
	fp.TenantID = p.TenantID
	return NewQueryPlan(QueryFuzzy, fp, nil)
}

// parseSelect picks the clauses out of a SELECT statement. The result is
// rebuilt by the SQL executor, so only the recognised clauses survive.
func (p *Parser) parseSelect(query string) (*QueryPlan, error) {
	table := p.DefaultTable
	if m := fromClause.FindStringSubmatch(query); m != nil {
		table = m[1]
	}
	var where string
	if m := whereClause.FindStringSubmatch(query); m != nil {
		where = strings.TrimSpace(m[1])
	}
	var limit int
	if m := limitClause.FindStringSubmatch(query); m != nil {
		limit, _ = strconv.Atoi(m[1])
	}
	var orderBy []string
	if m := orderClause.FindStringSubmatch(query); m != nil {
		for _, o := range strings.Split(m[1], ",") {
			if o = strings.TrimSpace(o); o != "" {
				orderBy = append(orderBy, o)
			}
		}
	}

	sp, err := NewSQLParameters(table, where, orderBy, limit)
	if err != nil {
		return nil, err
	}
	if m := selectFields.FindStringSubmatch(query); m != nil {
		var fields []string
		for _, f := range strings.Split(m[1], ",") {
			if f = strings.TrimSpace(f); f != "" {
				fields = append(fields, f)
			}
		}
		sp.SelectFields = fields
	}
	sp.TenantID = p.TenantID
	return NewQueryPlan(QuerySQL, sp, nil)
}

// parseTraverse handles TRAVERSE [PLAN] [edge types] WITH <seed> [DEPTH n] [IN table].
func (p *Parser) parseTraverse(query string) (*QueryPlan, error) {
	rest := strings.TrimSpace(traversePrefix.ReplaceAllString(query, ""))

	planMode := false
	if planPrefix.MatchString(rest) {
		planMode = true
		rest = strings.TrimSpace(planPrefix.ReplaceAllString(rest, ""))
	}

	var edgeTypes []string
	if loc := withWord.FindStringIndex(rest); loc != nil {
		for _, et := range strings.Split(rest[:loc[0]], ",") {
			if et = strings.TrimSpace(et); et != "" {
				edgeTypes = append(edgeTypes, et)
			}
		}
		rest = strings.TrimSpace(rest[loc[1]:])
	}

	var (
		initialType QueryType
		initial     string
	)
	upper := strings.ToUpper(rest)
	switch {
	case strings.HasPrefix(upper, "LOOKUP "):
		initialType = QueryLookup
		part := strings.TrimSpace(rest[len("LOOKUP "):])
		end := len(part)
		if loc := depthMarker.FindStringIndex(part); loc != nil {
			end = min(end, loc[0])
		}
		if loc := inMarker.FindStringIndex(part); loc != nil {
			end = min(end, loc[0])
		}
		initial = stripQuotes(strings.TrimSpace(part[:end]))
		rest = strings.TrimSpace(part[end:])
	case strings.HasPrefix(upper, "SEARCH "):
		initialType = QuerySearch
		part := strings.TrimSpace(rest[len("SEARCH "):])
		loc := quotedLead.FindStringSubmatchIndex(part)
		if loc == nil {
			return nil, apperror.NewValidation(`TRAVERSE SEARCH requires quoted text: TRAVERSE WITH SEARCH "text"`)
		}
		initial = unescapeQuotes(part[loc[2]:loc[3]])
		rest = strings.TrimSpace(part[loc[1]:])
	default:
		return nil, apperror.NewValidation("TRAVERSE requires WITH LOOKUP or WITH SEARCH")
	}

	tp := DefaultTraverseParameters(initialType, initial)
	tp.EdgeTypes = edgeTypes
	tp.PlanMode = planMode
	tp.TableName = p.DefaultTable
	tp.TenantID = p.TenantID

	if m := depthClause.FindStringSubmatchIndex(rest); m != nil {
		depth, err := strconv.Atoi(rest[m[2]:m[3]])
		if err != nil {
			return nil, apperror.NewValidation(fmt.Sprintf("invalid DEPTH %q", rest[m[2]:m[3]]))
		}
		tp.MaxDepth = depth
		rest = strings.TrimSpace(rest[:m[0]] + " " + rest[m[1]:])
	}
	if m := inClause.FindStringSubmatch(rest); m != nil {
		tp.TableName = m[1]
	}
	return NewQueryPlan(QueryTraverse, tp, nil)
}
