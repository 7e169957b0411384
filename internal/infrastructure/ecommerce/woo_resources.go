package ecommerce

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/vitrine/backend/internal/domain/integration"
)

// wooResource implements integration.RemoteResource for one collection.
// Entity specific behavior is injected through the optional hooks.
type wooResource struct {
	client     *WooClient
	entityType integration.EntityType
	// listQuery adds collection specific filters to every listing
	listQuery url.Values
	// enrich post-processes fetched records, e.g. to embed sub-resources
	enrich func(ctx context.Context, rec *integration.RemoteRecord, header wooHeader) error
	// outbound strips fields the API does not accept on writes
	outbound func(payload json.RawMessage) (json.RawMessage, error)
}

// EntityType returns the entity kind served by this resource
func (r *wooResource) EntityType() integration.EntityType {
	return r.entityType
}

// FetchIndex lists (id, last modified) of every entity in the collection
func (r *wooResource) FetchIndex(ctx context.Context) ([]integration.IndexEntry, error) {
	q := r.query()
	q.Set("orderby", "id")
	q.Set("order", "asc")
	q.Set("_fields", "id,date_modified_gmt,date_created_gmt")

	items, err := r.client.getAllPages(ctx, r.entityType.ResourcePath(), q)
	if err != nil {
		return nil, fmt.Errorf("fetch %s index: %w", r.entityType, err)
	}

	index := make([]integration.IndexEntry, 0, len(items))
	for _, raw := range items {
		h, err := decodeHeader(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s index: %v", integration.ErrInvalidRemoteResponse, r.entityType, err)
		}
		lm, err := h.lastModified()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", integration.ErrInvalidRemoteResponse, err)
		}
		index = append(index, integration.IndexEntry{ID: h.ID, LastModified: lm})
	}
	return index, nil
}

// FetchBatch fetches full documents for the given ids, at most one page per request
func (r *wooResource) FetchBatch(ctx context.Context, ids []int64) ([]integration.RemoteRecord, error) {
	records := make([]integration.RemoteRecord, 0, len(ids))
	for start := 0; start < len(ids); start += WooMaxPageSize {
		end := min(start+WooMaxPageSize, len(ids))
		chunk := ids[start:end]

		q := r.query()
		q.Set("include", joinIDs(chunk))
		q.Set("per_page", strconv.Itoa(len(chunk)))

		items, _, err := r.client.getList(ctx, r.entityType.ResourcePath(), q)
		if err != nil {
			return nil, fmt.Errorf("fetch %s batch: %w", r.entityType, err)
		}
		for _, raw := range items {
			rec, err := r.toRecord(ctx, raw)
			if err != nil {
				return nil, err
			}
			records = append(records, *rec)
		}
	}
	return records, nil
}

// Create creates an entity
func (r *wooResource) Create(ctx context.Context, payload json.RawMessage) (*integration.RemoteRecord, error) {
	body, err := r.prepare(payload)
	if err != nil {
		return nil, err
	}
	doc, err := r.client.send(ctx, http.MethodPost, r.entityType.ResourcePath(), nil, body)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", r.entityType, err)
	}
	return r.toRecord(ctx, doc)
}

// Update updates an entity
func (r *wooResource) Update(ctx context.Context, id int64, payload json.RawMessage) (*integration.RemoteRecord, error) {
	body, err := r.prepare(payload)
	if err != nil {
		return nil, err
	}
	doc, err := r.client.send(ctx, http.MethodPut, r.itemPath(id), nil, body)
	if err != nil {
		return nil, fmt.Errorf("update %s %d: %w", r.entityType, id, err)
	}
	if doc == nil {
		return nil, nil
	}
	return r.toRecord(ctx, doc)
}

// Delete deletes an entity permanently, bypassing the trash
func (r *wooResource) Delete(ctx context.Context, id int64) error {
	q := url.Values{}
	q.Set("force", "true")
	if _, err := r.client.send(ctx, http.MethodDelete, r.itemPath(id), q, nil); err != nil {
		return fmt.Errorf("delete %s %d: %w", r.entityType, id, err)
	}
	return nil
}

func (r *wooResource) query() url.Values {
	return cloneValues(r.listQuery)
}

func (r *wooResource) itemPath(id int64) string {
	return r.entityType.ResourcePath() + "/" + strconv.FormatInt(id, 10)
}

func (r *wooResource) prepare(payload json.RawMessage) (json.RawMessage, error) {
	if r.outbound == nil {
		return payload, nil
	}
	return r.outbound(payload)
}

func (r *wooResource) toRecord(ctx context.Context, raw json.RawMessage) (*integration.RemoteRecord, error) {
	h, err := decodeHeader(raw)
	if err != nil || h.ID == 0 {
		return nil, fmt.Errorf("%w: %s document without id", integration.ErrInvalidRemoteResponse, r.entityType)
	}
	lm, err := h.lastModified()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrInvalidRemoteResponse, err)
	}
	rec := &integration.RemoteRecord{ID: h.ID, LastModified: lm, Payload: raw}
	if r.enrich != nil {
		if err := r.enrich(ctx, rec, h); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// ---------------------------------------------------------------------------
// Entity specific resources
// ---------------------------------------------------------------------------

// newProductResource serves products and embeds variations of variable products
func newProductResource(client *WooClient) *wooResource {
	r := &wooResource{
		client:     client,
		entityType: integration.EntityTypeProducts,
		listQuery:  url.Values{},
		outbound:   stripFields("id", "variations", "date_modified_gmt", "date_created_gmt"),
	}
	r.enrich = func(ctx context.Context, rec *integration.RemoteRecord, h wooHeader) error {
		if h.Type != "variable" {
			return nil
		}
		variations, err := client.getAllPages(ctx, r.itemPath(rec.ID)+"/variations", url.Values{})
		if err != nil {
			return fmt.Errorf("fetch variations of product %d: %w", rec.ID, err)
		}
		payload, err := setField(rec.Payload, "variations", variations)
		if err != nil {
			return err
		}
		rec.Payload = payload
		return nil
	}
	return r
}

// newCustomerResource serves customers of every role
func newCustomerResource(client *WooClient) *wooResource {
	return &wooResource{
		client:     client,
		entityType: integration.EntityTypeCustomers,
		listQuery:  url.Values{"role": []string{"all"}},
		outbound:   stripFields("id", "date_modified_gmt", "date_created_gmt"),
	}
}

// newOrderResource serves orders in any status
func newOrderResource(client *WooClient) *wooResource {
	return &wooResource{
		client:     client,
		entityType: integration.EntityTypeOrders,
		listQuery:  url.Values{"status": []string{"any"}},
		outbound:   stripFields("id", "date_modified_gmt", "date_created_gmt"),
	}
}

func stripFields(fields ...string) func(json.RawMessage) (json.RawMessage, error) {
	return func(payload json.RawMessage) (json.RawMessage, error) {
		var doc map[string]json.RawMessage
		if err := json.Unmarshal(payload, &doc); err != nil || doc == nil {
			return nil, fmt.Errorf("%w: payload must be a JSON object", integration.ErrRemoteRejected)
		}
		for _, f := range fields {
			delete(doc, f)
		}
		return json.Marshal(doc)
	}
}

func setField(payload json.RawMessage, key string, value any) (json.RawMessage, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrInvalidRemoteResponse, err)
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	doc[key] = encoded
	return json.Marshal(doc)
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
