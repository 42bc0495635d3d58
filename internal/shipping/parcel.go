package shipping

import (
	"github.com/joao-fontenele/storefront-payments/internal/biteship"
	"github.com/joao-fontenele/storefront-payments/internal/config"
	"github.com/joao-fontenele/storefront-payments/internal/domain"
)

// Parcel is the single box all items of an order ship in.
type Parcel struct {
	Weight int
	Length int
	Width  int
	Height int
	Items  []biteship.Item
}

// BuildParcel aggregates items into one parcel. Each item weighs at least
// defaults.MinItemWeight per unit. When no item has a known weight the
// parcel weight is defaults.DefaultWeight. Item dimensions override the
// default box, catalog values fill in for items that carry none.
func BuildParcel(items []domain.SubmissionItem, catalog map[string]domain.ProductDimensions, defaults config.Parcel) Parcel {
	parcel := Parcel{Items: make([]biteship.Item, 0, len(items))}

	var known, total int
	var length, width, height int

	for _, item := range items {
		qty := max(1, item.Quantity)
		dims := catalog[item.ProductID]

		unit := item.Weight
		if unit <= 0 {
			unit = dims.Weight
		}
		if unit > 0 {
			known += unit * qty
		}
		unit = max(defaults.MinItemWeight, unit)
		total += unit * qty

		l, w, h := pick(item.Length, dims.Length), pick(item.Width, dims.Width), pick(item.Height, dims.Height)
		length, width, height = max(length, l), max(width, w), max(height, h)

		parcel.Items = append(parcel.Items, biteship.Item{
			Name:        item.Name,
			Description: itemDescription(item),
			SKU:         item.ProductID,
			Value:       item.UnitPrice,
			Quantity:    qty,
			Weight:      unit,
			Length:      l,
			Width:       w,
			Height:      h,
		})
	}

	if known <= 0 {
		total = defaults.DefaultWeight
	}
	parcel.Weight = total

	parcel.Length = orDefault(length, defaults.Length)
	parcel.Width = orDefault(width, defaults.Width)
	parcel.Height = orDefault(height, defaults.Height)

	return parcel
}

// ItemsFromOrder turns frozen order lines back into parcel input.
func ItemsFromOrder(items []domain.OrderItem) []domain.SubmissionItem {
	out := make([]domain.SubmissionItem, 0, len(items))
	for _, item := range items {
		out = append(out, domain.SubmissionItem{
			ProductID: item.ProductID,
			Name:      item.ProductName,
			Quantity:  item.Quantity,
			UnitPrice: item.Price,
			Size:      item.Size,
		})
	}
	return out
}

func ProductIDs(items []domain.SubmissionItem) []string {
	ids := make([]string, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		if item.ProductID == "" || seen[item.ProductID] {
			continue
		}
		seen[item.ProductID] = true
		ids = append(ids, item.ProductID)
	}
	return ids
}

func itemDescription(item domain.SubmissionItem) string {
	if item.Size == "" {
		return ""
	}
	return "Size " + item.Size
}

func pick(given, fallback int) int {
	if given > 0 {
		return given
	}
	return max(fallback, 0)
}

func orDefault(v, d int) int {
	if v > 0 {
		return v
	}
	return d
}
