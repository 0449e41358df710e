package schema

import "strings"

// DefaultRules returns the catalog for the stock/order domain. Pattern
// lists come from header vocabularies observed across distributor and
// ERP exports; thresholds are per-field because short identifiers need
// stricter matches than long descriptive headers.
func DefaultRules() *RuleSet {
	return &RuleSet{
		InventoryFields: []Field{
			{
				Name:     "productId",
				Type:     TypeAlphanumeric,
				Category: CategoryProductIdentity,
				Patterns: []string{
					"product id", "item number", "sku", "part number",
					"item id", "product code", "item code", "material number",
				},
				MinConfidence: 0.7,
				Required:      true,
			},
			{
				Name:     "name",
				Type:     TypeText,
				Category: CategoryProductIdentity,
				Patterns: []string{
					"product name", "item name", "description",
					"item description", "product description", "material description",
				},
				MinConfidence: 0.65,
				Required:      true,
			},
			{
				Name:     "itemType",
				Type:     TypeCategorical,
				Category: CategoryProductIdentity,
				Patterns: []string{
					"item type", "product type", "product category", "category", "type",
				},
				MinConfidence: 0.7,
			},
			{
				Name:     "packSize",
				Type:     TypeNumericPositive,
				Category: CategoryQuantities,
				Patterns: []string{
					"pack size", "units per pack", "case pack", "pack quantity",
					"units per case", "quantity multiplier", "multiplier",
				},
				MinConfidence: 0.7,
			},
			{
				Name:     "currentStockPacks",
				Type:     TypeNumericInteger,
				Category: CategoryQuantities,
				Patterns: []string{
					"current stock", "available quantity", "quantity on hand",
					"stock on hand", "qty available", "packs available", "on hand",
				},
				MinConfidence: 0.65,
			},
			{
				Name:     "notificationPoint",
				Type:     TypeNumericInteger,
				Category: CategoryQuantities,
				Patterns: []string{
					"notification point", "reorder point", "min stock level",
					"minimum quantity", "new notification point", "current notification point",
				},
				MinConfidence: 0.7,
			},
		},

		OrderFields: []Field{
			{
				Name:     "productId",
				Type:     TypeAlphanumeric,
				Category: CategoryProductIdentity,
				Patterns: []string{
					"product id", "item number", "sku", "part number",
					"item id", "product code", "item code", "material number",
				},
				MinConfidence: 0.7,
				Required:      true,
			},
			{
				Name:     "orderId",
				Type:     TypeAlphanumeric,
				Category: CategoryOrderMetadata,
				Patterns: []string{
					"order id", "order number", "order no", "po number",
					"purchase order", "reference number",
				},
				MinConfidence: 0.7,
				Required:      true,
			},
			{
				Name:     "quantityUnits",
				Type:     TypeNumericPositive,
				Category: CategoryQuantities,
				Patterns: []string{
					"total quantity", "quantity units", "total units", "units", "quantity",
				},
				MinConfidence: 0.65,
			},
			{
				Name:     "quantityPacks",
				Type:     TypeNumericPositive,
				Category: CategoryQuantities,
				Patterns: []string{
					"quantity packs", "packs", "cases", "qty",
				},
				MinConfidence: 0.65,
			},
			{
				Name:     "dateSubmitted",
				Type:     TypeDate,
				Category: CategoryOrderMetadata,
				Patterns: []string{
					"date submitted", "order date", "transaction date",
					"created date", "submitted", "date",
				},
				MinConfidence: 0.65,
			},
			{
				Name:     "orderStatus",
				Type:     TypeCategorical,
				Category: CategoryOrderMetadata,
				Patterns: []string{
					"order status", "fulfillment status", "status",
				},
				MinConfidence: 0.7,
			},
			{
				Name:     "shipToLocation",
				Type:     TypeText,
				Category: CategoryAddress,
				Patterns: []string{
					"ship to location", "ship to", "delivery location",
					"destination", "location", "site",
				},
				MinConfidence: 0.65,
			},
			{
				Name:     "shipToCompany",
				Type:     TypeText,
				Category: CategoryAddress,
				Patterns: []string{
					"ship to company", "company name", "company",
					"customer", "account name",
				},
				MinConfidence: 0.65,
			},
			{
				Name:     "unitPrice",
				Type:     TypeNumericPositive,
				Category: CategoryFinancial,
				Patterns: []string{
					"unit price", "price per unit", "unit cost", "price", "cost",
				},
				MinConfidence: 0.7,
			},
			{
				Name:     "totalPrice",
				Type:     TypeNumericPositive,
				Category: CategoryFinancial,
				Patterns: []string{
					"total price", "extended price", "ext price",
					"line total", "amount", "total",
				},
				MinConfidence: 0.7,
			},
			{
				Name:     "contactName",
				Type:     TypeText,
				Category: CategoryPersonName,
				Patterns: []string{
					"contact name", "ordered by", "requested by", "buyer", "contact",
				},
				MinConfidence: 0.7,
			},
			{
				Name:     "contactEmail",
				Type:     TypeText,
				Category: CategoryContact,
				Patterns: []string{
					"contact email", "email address", "email", "e mail",
				},
				MinConfidence: 0.75,
			},
		},

		Incompatible: map[Category][]Category{
			CategoryFinancial:       {CategoryPersonName, CategoryContact, CategoryAddress, CategoryOrderMetadata},
			CategoryQuantities:      {CategoryPersonName, CategoryContact, CategoryAddress},
			CategoryProductIdentity: {CategoryPersonName, CategoryContact},
		},

		BlockingRules: []BlockingRule{
			{
				HeaderPatterns: []string{"order type", "order status", "status", "type"},
				BlockedFields:  []string{"totalPrice", "unitPrice", "quantityUnits", "quantityPacks"},
				Reason:         "status and type columns hold categories, never amounts",
			},
			{
				HeaderPatterns: []string{"phone", "fax", "mobile"},
				BlockedFields:  []string{"productId", "orderId", "quantityUnits", "quantityPacks"},
				Reason:         "phone numbers look numeric but are contact data",
			},
			{
				HeaderPatterns: []string{"zip", "postal code", "postcode"},
				BlockedFields:  []string{"packSize", "quantityUnits", "quantityPacks", "unitPrice", "totalPrice", "notificationPoint", "currentStockPacks"},
				Reason:         "postal codes are not quantities or amounts",
			},
			{
				HeaderPatterns: []string{"notes", "comments", "remarks", "memo"},
				BlockedFields:  []string{"productId", "orderId", "packSize", "quantityUnits", "quantityPacks", "unitPrice", "totalPrice"},
				Reason:         "free text never feeds identifiers or numbers",
			},
		},

		Boosts: []Boost{
			{Triggers: []string{"orderId"}, Boosted: []string{"dateSubmitted", "orderStatus", "shipToLocation", "shipToCompany"}, Amount: 0.1},
			{Triggers: []string{"shipToCompany"}, Boosted: []string{"shipToLocation"}, Amount: 0.15},
			{Triggers: []string{"shipToLocation"}, Boosted: []string{"shipToCompany"}, Amount: 0.15},
			{Triggers: []string{"unitPrice"}, Boosted: []string{"totalPrice", "quantityUnits"}, Amount: 0.1},
			{Triggers: []string{"packSize"}, Boosted: []string{"currentStockPacks", "notificationPoint"}, Amount: 0.1},
			{Triggers: []string{"productId"}, Boosted: []string{"name", "itemType"}, Amount: 0.1},
		},

		Abbreviations: map[string]string{
			"qty":   "quantity",
			"num":   "number",
			"no":    "number",
			"nbr":   "number",
			"amt":   "amount",
			"desc":  "description",
			"descr": "description",
			"ext":   "extended",
			"pkg":   "pack",
			"loc":   "location",
			"co":    "company",
			"avail": "available",
			"mult":  "multiplier",
			"notif": "notification",
			"curr":  "current",
			"prod":  "product",
			"uom":   "unit of measure",
		},
	}
}

// Header keyword tables for category inference. Checked in a fixed order
// so inference is deterministic; product wording wins over person wording
// because "Product Name" must not read as a person name.
var categoryKeywords = []struct {
	category Category
	keywords []string
}{
	{CategoryContact, []string{"email", "e mail", "phone", "fax", "mobile"}},
	{CategoryProductIdentity, []string{"sku", "product", "item", "part", "material"}},
	{CategoryFinancial, []string{"price", "cost", "amount", "subtotal", "invoice"}},
	{CategoryQuantities, []string{"qty", "quantity", "pack", "units", "stock", "on hand", "reorder", "notification"}},
	{CategoryAddress, []string{"address", "street", "city", "state", "zip", "postal", "location", "ship to", "destination", "site"}},
	{CategoryPersonName, []string{"first name", "last name", "contact name", "buyer", "ordered by", "requested by", "attn"}},
	{CategoryOrderMetadata, []string{"order", "status", "date", "submitted", "po "}},
}

// InferCategory guesses the semantic family of a source header from its
// wording. The guess drives the compatibility veto only; CategoryNone
// means no opinion and never vetoes anything.
func InferCategory(header string) Category {
	n := NormalizeHeader(header)
	for _, entry := range categoryKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(n, kw) {
				return entry.category
			}
		}
	}
	return CategoryNone
}

// NormalizeHeader lowercases a header and collapses separator characters
// and runs of whitespace to single spaces.
func NormalizeHeader(h string) string {
	n := strings.ToLower(strings.TrimSpace(h))
	replacer := strings.NewReplacer("_", " ", "-", " ", ".", " ", "/", " ", "(", " ", ")", " ", "#", " number ")
	n = replacer.Replace(n)
	return strings.Join(strings.Fields(n), " ")
}

// Blocked reports whether any blocking rule forbids mapping the header to
// the named field, and the matching rule's reason.
func (rs *RuleSet) Blocked(header, field string) (bool, string) {
	n := NormalizeHeader(header)
	for _, rule := range rs.BlockingRules {
		matched := false
		for _, pat := range rule.HeaderPatterns {
			if strings.Contains(n, pat) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		for _, blocked := range rule.BlockedFields {
			if blocked == field {
				return true, rule.Reason
			}
		}
	}
	return false, ""
}
