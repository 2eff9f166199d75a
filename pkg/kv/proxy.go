package kv

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/Healer-AI/p8fs-sub000/pkg/logger"
)

// ProxyStore talks to the HTTP proxy in front of the TiKV cluster.
//
//	PUT    /kv               {"key", "value"}
//	GET    /kv/{key}         {"key", "value"}
//	GET    /kv/scan          ?prefix=&limit= -> [{"key", "value"}]
//	DELETE /kv/{key}
//	GET    /kv/raw/{hexkey}  {"key", "value"}
//
// Values travel as JSON-encoded strings.
type ProxyStore struct {
	client *resty.Client
	log    *slog.Logger
}

type proxyItem struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// NewProxyStore creates a store for the proxy at baseURL.
func NewProxyStore(baseURL string, timeout time.Duration, log *slog.Logger) *ProxyStore {
	p := &ProxyStore{
		client: resty.New().SetBaseURL(baseURL).SetTimeout(timeout),
		log:    log.With(logger.Scope("kv.proxy")),
	}
	p.client.SetHeader("Accept", "application/json")
	return p
}

func (p *ProxyStore) Put(ctx context.Context, key string, value map[string]any, tenantID string) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode value for %s: %w", key, err)
	}
	full := TenantKey(tenantID, key)

	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(proxyItem{Key: full, Value: string(raw)}).
		Put("/kv")
	if err != nil {
		return fmt.Errorf("put %s: %w", full, err)
	}
	if resp.IsError() {
		return fmt.Errorf("put %s: proxy returned %s", full, resp.Status())
	}
	return nil
}

func (p *ProxyStore) Get(ctx context.Context, key, tenantID string) (map[string]any, error) {
	full := TenantKey(tenantID, key)
	return p.getItem(ctx, "/kv/"+url.PathEscape(full), full)
}

func (p *ProxyStore) Scan(ctx context.Context, prefix string, limit int, tenantID string) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultScanLimit
	}
	full := TenantKey(tenantID, prefix)

	var items []proxyItem
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParam("prefix", full).
		SetQueryParam("limit", strconv.Itoa(limit)).
		SetResult(&items).
		Get("/kv/scan")
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", full, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("scan %s: proxy returned %s", full, resp.Status())
	}

	entries := make([]Entry, 0, len(items))
	for _, item := range items {
		if item.Value == "" {
			continue
		}
		v, err := decode([]byte(item.Value))
		if err != nil {
			p.log.Warn("skipping undecodable scan entry",
				slog.String("key", item.Key),
				logger.Error(err),
			)
			continue
		}
		entries = append(entries, Entry{Key: StripTenant(tenantID, item.Key), Value: v})
	}
	return entries, nil
}

func (p *ProxyStore) Delete(ctx context.Context, key, tenantID string) error {
	full := TenantKey(tenantID, key)
	resp, err := p.client.R().SetContext(ctx).Delete("/kv/" + url.PathEscape(full))
	if err != nil {
		return fmt.Errorf("delete %s: %w", full, err)
	}
	if resp.IsError() && resp.StatusCode() != http.StatusNotFound {
		return fmt.Errorf("delete %s: proxy returned %s", full, resp.Status())
	}
	return nil
}

// GetRow reads a row by its raw storage key.
func (p *ProxyStore) GetRow(ctx context.Context, key []byte) (map[string]any, error) {
	h := hex.EncodeToString(key)
	return p.getItem(ctx, "/kv/raw/"+h, h)
}

func (p *ProxyStore) getItem(ctx context.Context, path, label string) (map[string]any, error) {
	var item proxyItem
	resp, err := p.client.R().
		SetContext(ctx).
		SetResult(&item).
		Get(path)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", label, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.IsError() {
		return nil, fmt.Errorf("get %s: proxy returned %s", label, resp.Status())
	}
	if item.Value == "" {
		return nil, ErrNotFound
	}
	return decode([]byte(item.Value))
}
