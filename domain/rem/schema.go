package rem

import (
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// ParametersSchema returns the JSON schema for the parameters of qt.
func ParametersSchema(qt QueryType) (*jsonschema.Schema, error) {
	switch qt {
	case QueryLookup:
		return jsonschema.For[LookupParameters](nil)
	case QuerySearch:
		return jsonschema.For[SearchParameters](nil)
	case QueryFuzzy:
		return jsonschema.For[FuzzyParameters](nil)
	case QuerySQL:
		return jsonschema.For[SQLParameters](nil)
	case QueryTraverse:
		return jsonschema.For[TraverseParameters](nil)
	}
	return nil, fmt.Errorf("no schema for query type %q", qt)
}
