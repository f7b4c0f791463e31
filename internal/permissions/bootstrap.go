package permissions

import (
	"context"
	"fmt"
)

// CatalogEntry describes one permission of the built-in catalog.
type CatalogEntry struct {
	Action       Action
	ResourceType ResourceType
	Description  string
}

// DefaultCatalog returns the built-in permission set: CRUD plus manage on every
// resource type, and the workflow verbs the report and user screens need.
func DefaultCatalog() []CatalogEntry {
	crud := []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionManage}
	entries := make([]CatalogEntry, 0, len(ResourceTypes)*len(crud)+4)
	for _, rt := range ResourceTypes {
		for _, a := range crud {
			entries = append(entries, CatalogEntry{Action: a, ResourceType: rt, Description: describe(a, rt)})
		}
	}
	entries = append(entries,
		CatalogEntry{Action: ActionExport, ResourceType: ResourceReport, Description: describe(ActionExport, ResourceReport)},
		CatalogEntry{Action: ActionApprove, ResourceType: ResourceReport, Description: describe(ActionApprove, ResourceReport)},
		CatalogEntry{Action: ActionReject, ResourceType: ResourceReport, Description: describe(ActionReject, ResourceReport)},
		CatalogEntry{Action: ActionImport, ResourceType: ResourceUser, Description: describe(ActionImport, ResourceUser)},
	)
	return entries
}

func describe(a Action, rt ResourceType) string {
	if a == ActionManage {
		return fmt.Sprintf("Full control over %s", rt)
	}
	return fmt.Sprintf("Allows %s on %s", a, rt)
}

// Bootstrap registers the default catalog. It is safe to run on every start.
func (s *Service) Bootstrap(ctx context.Context) ([]Permission, error) {
	catalog := DefaultCatalog()
	out := make([]Permission, 0, len(catalog))
	for _, entry := range catalog {
		p, err := s.Register(ctx, entry.Action, entry.ResourceType, entry.Description)
		if err != nil {
			return nil, fmt.Errorf("permissions: bootstrap %s: %w", Name(entry.Action, entry.ResourceType), err)
		}
		out = append(out, p)
	}
	return out, nil
}
