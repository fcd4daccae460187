// Package reconcile computes cart mutations without performing them.
// The cart manager fetches current state, plans here, and executes only the
// mutations the plan names.
package reconcile

import "storefront-gateway/internal/model"

// DefaultQuantity is used when an add request names no quantity.
const DefaultQuantity = 1

// AddPlan is the single mutation needed to add a variant to a cart.
type AddPlan struct {
	Insert     bool   // true: create a new line item
	LineItemID string // existing line item to update when Insert is false
	Quantity   int    // resulting line item quantity
}

// PlanAdd decides how to add quantity units of variantID to cart. A variant
// already in the cart is incremented rather than inserted again, so a cart
// holds at most one line item per variant. Quantities below 1 count as
// DefaultQuantity.
func PlanAdd(cart *model.Cart, variantID string, quantity int) AddPlan {
	if quantity < 1 {
		quantity = DefaultQuantity
	}
	if existing := cart.FindItemByVariant(variantID); existing != nil {
		return AddPlan{
			LineItemID: existing.ID,
			Quantity:   existing.Quantity + quantity,
		}
	}
	return AddPlan{Insert: true, Quantity: quantity}
}

// RegionDrift reports whether a cart must be moved to sessionRegion.
// An unresolved session region never causes drift.
func RegionDrift(cartRegion, sessionRegion string) bool {
	return sessionRegion != "" && cartRegion != sessionRegion
}

// LineItemDiff describes the mutations needed to reach a desired cart.
// Operations should be applied in order: Remove → Update → Add
// to prevent conflicts (e.g., updating a removed item).
type LineItemDiff struct {
	ToAdd    []ItemToAdd    // Variants in desired but not current
	ToRemove []ItemToRemove // Line items not desired, or duplicate rows
	ToUpdate []ItemToUpdate // Variants in both with different quantities
}

// ItemToAdd specifies a new line item.
type ItemToAdd struct {
	VariantID string
	Quantity  int
}

// ItemToRemove specifies a line item to delete.
type ItemToRemove struct {
	VariantID  string // for reference
	LineItemID string
}

// ItemToUpdate specifies a quantity change for an existing line item.
type ItemToUpdate struct {
	VariantID   string // for reference
	LineItemID  string
	OldQuantity int // informational
	NewQuantity int
}

// IsEmpty returns true if no line item changes are needed.
func (d *LineItemDiff) IsEmpty() bool {
	return len(d.ToAdd) == 0 && len(d.ToRemove) == 0 && len(d.ToUpdate) == 0
}

// DesiredItem is one variant and quantity the caller wants in the cart.
type DesiredItem struct {
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

// DiffLineItems computes the delta between a cart's line items and the
// desired set. Matching is by variant. Desired quantities of 0 or less mean
// "not in the cart"; repeated desired variants are summed. When the cart
// already holds several rows for one variant, the first is kept and the
// rest are removed.
//
// Output order follows the input order so plans are deterministic.
func DiffLineItems(current []model.LineItem, desired []DesiredItem) *LineItemDiff {
	diff := &LineItemDiff{}

	wanted := make(map[string]int)
	var wantedOrder []string
	for _, item := range desired {
		if item.VariantID == "" {
			continue
		}
		if _, seen := wanted[item.VariantID]; !seen {
			wantedOrder = append(wantedOrder, item.VariantID)
		}
		if item.Quantity > 0 {
			wanted[item.VariantID] += item.Quantity
		} else if _, seen := wanted[item.VariantID]; !seen {
			wanted[item.VariantID] = 0
		}
	}

	kept := make(map[string]model.LineItem)
	for _, item := range current {
		if _, dup := kept[item.VariantID]; dup {
			diff.ToRemove = append(diff.ToRemove, ItemToRemove{VariantID: item.VariantID, LineItemID: item.ID})
			continue
		}
		kept[item.VariantID] = item

		qty := wanted[item.VariantID]
		switch {
		case qty <= 0:
			diff.ToRemove = append(diff.ToRemove, ItemToRemove{VariantID: item.VariantID, LineItemID: item.ID})
		case qty != item.Quantity:
			diff.ToUpdate = append(diff.ToUpdate, ItemToUpdate{
				VariantID:   item.VariantID,
				LineItemID:  item.ID,
				OldQuantity: item.Quantity,
				NewQuantity: qty,
			})
		}
	}

	for _, variantID := range wantedOrder {
		if _, exists := kept[variantID]; exists {
			continue
		}
		if qty := wanted[variantID]; qty > 0 {
			diff.ToAdd = append(diff.ToAdd, ItemToAdd{VariantID: variantID, Quantity: qty})
		}
	}

	return diff
}
