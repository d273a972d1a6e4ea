package square

import (
	"context"
	"errors"
	"net/http"
	"net/url"
)

// maxPages bounds cursor pagination so a misbehaving cursor cannot loop forever.
const maxPages = 50

// SearchCatalogItems returns every item matching the request, following cursors.
func (c *Client) SearchCatalogItems(ctx context.Context, req SearchCatalogItemsRequest) ([]CatalogObject, error) {
	var items []CatalogObject
	for page := 0; page < maxPages; page++ {
		var out struct {
			Items  []CatalogObject `json:"items"`
			Cursor string          `json:"cursor"`
		}
		if err := c.do(ctx, "search_catalog_items", http.MethodPost, "/v2/catalog/search-catalog-items", nil, req, &out); err != nil {
			return nil, err
		}
		items = append(items, out.Items...)
		if out.Cursor == "" {
			return items, nil
		}
		req.Cursor = out.Cursor
	}
	return items, nil
}

// SearchCatalogObjects returns every object of the requested types, following cursors.
func (c *Client) SearchCatalogObjects(ctx context.Context, req SearchCatalogObjectsRequest) (*CatalogResult, error) {
	result := &CatalogResult{}
	for page := 0; page < maxPages; page++ {
		var out struct {
			Objects        []CatalogObject `json:"objects"`
			RelatedObjects []CatalogObject `json:"related_objects"`
			Cursor         string          `json:"cursor"`
		}
		if err := c.do(ctx, "search_catalog_objects", http.MethodPost, "/v2/catalog/search", nil, req, &out); err != nil {
			return nil, err
		}
		result.Objects = append(result.Objects, out.Objects...)
		result.RelatedObjects = append(result.RelatedObjects, out.RelatedObjects...)
		if out.Cursor == "" {
			return result, nil
		}
		req.Cursor = out.Cursor
	}
	return result, nil
}

// BatchRetrieveCatalogObjects fetches objects by id. Square drops unknown ids
// silently, so callers compare lengths when every id must resolve.
func (c *Client) BatchRetrieveCatalogObjects(ctx context.Context, ids []string, includeRelated bool) (*CatalogResult, error) {
	if len(ids) == 0 {
		return nil, errors.New("square: batch_retrieve_catalog_objects: object ids required")
	}
	body := map[string]any{
		"object_ids":              ids,
		"include_related_objects": includeRelated,
	}
	var out CatalogResult
	if err := c.do(ctx, "batch_retrieve_catalog_objects", http.MethodPost, "/v2/catalog/batch-retrieve", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RetrieveCatalogObject fetches one object, optionally with its related objects.
func (c *Client) RetrieveCatalogObject(ctx context.Context, id string, includeRelated bool) (*CatalogObject, []CatalogObject, error) {
	if id == "" {
		return nil, nil, errors.New("square: retrieve_catalog_object: id required")
	}
	q := url.Values{}
	if includeRelated {
		q.Set("include_related_objects", "true")
	}
	var out struct {
		Object         CatalogObject   `json:"object"`
		RelatedObjects []CatalogObject `json:"related_objects"`
	}
	if err := c.do(ctx, "retrieve_catalog_object", http.MethodGet, "/v2/catalog/object/"+url.PathEscape(id), q, nil, &out); err != nil {
		return nil, nil, err
	}
	return &out.Object, out.RelatedObjects, nil
}
