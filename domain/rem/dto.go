package rem

import "github.com/Healer-AI/p8fs-sub000/domain/revmap"

// QueryRequest is the body of POST /api/rem/query.
type QueryRequest struct {
	Query    string `json:"query"`
	TenantID string `json:"tenant_id,omitempty"`
}

// ParseResponse is the body returned by POST /api/rem/parse.
type ParseResponse struct {
	Query string     `json:"query"`
	Plan  *QueryPlan `json:"plan"`
}

// CacheClearResponse confirms a metadata cache invalidation.
type CacheClearResponse struct {
	Cleared string `json:"cleared"`
}

// RegisterMappingRequest is the body of POST /api/rem/mappings.
type RegisterMappingRequest struct {
	Name       string `json:"name"`
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	TableName  string `json:"table_name,omitempty"`
	TenantID   string `json:"tenant_id,omitempty"`
}

// MappingResponse describes a stored name mapping.
type MappingResponse struct {
	Name       string `json:"name"`
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id,omitempty"`
	EntityKey  string `json:"entity_key"`
	TableName  string `json:"table_name"`
	TenantID   string `json:"tenant_id"`
	TiDBKey    string `json:"tidb_key,omitempty"`
	ReverseKey string `json:"reverse_key"`
}

func toMappingResponse(m *revmap.NameMapping) MappingResponse {
	return MappingResponse{
		Name:       m.Name,
		EntityType: m.EntityType,
		EntityID:   m.EntityID,
		EntityKey:  m.EntityKey,
		TableName:  m.TableName,
		TenantID:   m.TenantID,
		TiDBKey:    m.TiDBKey,
		ReverseKey: m.ReverseKey,
	}
}
