package booking

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/square-bookings/internal/square"
)

const uncategorizedName = "Other"

// ListServices returns the appointment services enabled at the location,
// grouped by category in catalog order. Items without a known category end
// up in a trailing "Other" group.
func (s *Service) ListServices(ctx context.Context) (*ServicesView, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.list_services")
	defer span.End()

	var (
		items      []square.CatalogObject
		categories *square.CatalogResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, err = s.catalog.SearchCatalogItems(gctx, square.SearchCatalogItemsRequest{
			EnabledLocationIDs: []string{s.locationID},
			ProductTypes:       []string{square.ProductTypeAppointmentsService},
		})
		if err != nil {
			return fmt.Errorf("booking: search services: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		categories, err = s.catalog.SearchCatalogObjects(gctx, square.SearchCatalogObjectsRequest{
			ObjectTypes: []string{square.ObjectTypeCategory},
		})
		if err != nil {
			return fmt.Errorf("booking: search categories: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	view := &ServicesView{Categories: groupByCategory(items, categories.Objects)}
	s.logger.Debug("services listed", "items", len(items), "categories", len(view.Categories))
	return view, nil
}

func groupByCategory(items, categoryObjects []square.CatalogObject) []ServiceCategory {
	grouped := map[string][]CatalogItem{}
	var other []CatalogItem
	known := map[string]bool{}
	for _, cat := range categoryObjects {
		if cat.Type == square.ObjectTypeCategory && !cat.IsDeleted {
			known[cat.ID] = true
		}
	}

	for _, obj := range items {
		if obj.ItemData == nil || obj.IsDeleted {
			continue
		}
		item := catalogItem(obj)
		if len(item.Variations) == 0 {
			continue
		}
		catID := obj.ItemData.PrimaryCategoryID()
		if known[catID] {
			grouped[catID] = append(grouped[catID], item)
		} else {
			other = append(other, item)
		}
	}

	var out []ServiceCategory
	for _, cat := range categoryObjects {
		group := grouped[cat.ID]
		if len(group) == 0 {
			continue
		}
		name := cat.ID
		if cat.CategoryData != nil && cat.CategoryData.Name != "" {
			name = cat.CategoryData.Name
		}
		out = append(out, ServiceCategory{ID: cat.ID, Name: name, Items: group})
		delete(grouped, cat.ID)
	}
	if len(other) > 0 {
		out = append(out, ServiceCategory{Name: uncategorizedName, Items: other})
	}
	return out
}

func catalogItem(obj square.CatalogObject) CatalogItem {
	item := CatalogItem{ID: obj.ID, Name: obj.ItemData.Name, Description: obj.ItemData.Description}
	parent := map[string]square.CatalogObject{obj.ID: obj}
	for _, v := range obj.ItemData.Variations {
		if v.ItemVariationData != nil && v.ItemVariationData.ItemID == "" {
			data := *v.ItemVariationData
			data.ItemID = obj.ID
			v.ItemVariationData = &data
		}
		if svc, ok := variationFromCatalog(v, parent); ok {
			item.Variations = append(item.Variations, svc)
		}
	}
	return item
}
