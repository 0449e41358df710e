package tabular

import "strings"

// ImportType describes what kind of records a table carries.
type ImportType string

const (
	ImportInventory ImportType = "inventory"
	ImportOrders    ImportType = "orders"
	ImportBoth      ImportType = "both"

	// ImportDetect is accepted as a request hint and means the caller
	// wants the classifier to decide.
	ImportDetect ImportType = "detect"
)

func (t ImportType) Valid() bool {
	switch t {
	case ImportInventory, ImportOrders, ImportBoth, ImportDetect:
		return true
	}
	return false
}

// Header fragments that strongly indicate one table kind. Matching is
// substring-based over normalized headers, so "Current Stock (Packs)"
// hits "stock" and "New Notification Point" hits "notification".
var (
	inventorySignatures = []string{
		"pack size",
		"stock",
		"on hand",
		"notification",
		"reorder point",
		"units per",
		"available",
		"item type",
	}
	orderSignatures = []string{
		"order id",
		"order number",
		"order no",
		"po number",
		"purchase order",
		"order date",
		"date submitted",
		"ship to",
		"order status",
		"unit price",
		"total price",
	}
)

// Classify decides whether a header set looks like an inventory export,
// an order export, or a combined export. Two or more signature hits on a
// side counts as evidence for that side; with no decisive evidence the
// table is treated as inventory, the more forgiving path.
func Classify(headers []string) ImportType {
	inv, ord := 0, 0
	for _, h := range headers {
		n := normalizeForSignature(h)
		if matchesAny(n, inventorySignatures) {
			inv++
		}
		if matchesAny(n, orderSignatures) {
			ord++
		}
	}
	switch {
	case inv >= 2 && ord >= 2:
		return ImportBoth
	case inv >= 2:
		return ImportInventory
	case ord >= 2:
		return ImportOrders
	default:
		return ImportInventory
	}
}

func matchesAny(normalized string, signatures []string) bool {
	for _, sig := range signatures {
		if strings.Contains(normalized, sig) {
			return true
		}
	}
	return false
}

func normalizeForSignature(h string) string {
	n := strings.ToLower(strings.TrimSpace(h))
	for _, sep := range []string{"_", "-", ".", "/"} {
		n = strings.ReplaceAll(n, sep, " ")
	}
	return strings.Join(strings.Fields(n), " ")
}
