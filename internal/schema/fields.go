// Package schema declares the canonical field catalog the mapping engine
// resolves source headers against, together with the rule tables that
// constrain resolution: semantic categories, blocking rules, co-occurrence
// boosts, and abbreviation expansions.
//
// The tables are data, not behavior. The mapping engine receives a
// RuleSet at construction and treats it as immutable, so alternate
// catalogs can be injected for other record shapes without touching the
// engine.
package schema

import "github.com/stockflow/importer/internal/tabular"

// DataType constrains what sampled values under a header must look like
// for the header to be a credible match for a field.
type DataType int

const (
	TypeAlphanumeric DataType = iota
	TypeText
	TypeNumericPositive
	TypeNumericInteger
	TypeCategorical
	TypeDate
)

func (t DataType) String() string {
	switch t {
	case TypeAlphanumeric:
		return "alphanumeric"
	case TypeText:
		return "text"
	case TypeNumericPositive:
		return "numeric"
	case TypeNumericInteger:
		return "integer"
	case TypeCategorical:
		return "categorical"
	case TypeDate:
		return "date"
	default:
		return "unknown"
	}
}

// Category is the semantic family a field or header belongs to.
// Incompatible families veto a mapping outright no matter how close the
// name similarity is.
type Category int

const (
	CategoryNone Category = iota
	CategoryProductIdentity
	CategoryQuantities
	CategoryFinancial
	CategoryOrderMetadata
	CategoryAddress
	CategoryPersonName
	CategoryContact
)

func (c Category) String() string {
	switch c {
	case CategoryProductIdentity:
		return "product_identity"
	case CategoryQuantities:
		return "quantities"
	case CategoryFinancial:
		return "financial"
	case CategoryOrderMetadata:
		return "order_metadata"
	case CategoryAddress:
		return "address"
	case CategoryPersonName:
		return "person_name"
	case CategoryContact:
		return "contact"
	default:
		return "none"
	}
}

// Field is one canonical target the mapping engine can resolve a source
// header to.
type Field struct {
	Name          string
	Type          DataType
	Category      Category
	Patterns      []string
	MinConfidence float64
	Required      bool
}

// BlockingRule vetoes specific targets for headers matching any of its
// patterns. A veto is absolute: it survives any similarity score and any
// co-occurrence boost.
type BlockingRule struct {
	HeaderPatterns []string
	BlockedFields  []string
	Reason         string
}

// Boost raises a candidate field's score when related fields were already
// confidently mapped elsewhere in the same file.
type Boost struct {
	// Triggers are canonical field names already accepted in pass one.
	Triggers []string
	// Boosted are the candidate fields whose scores rise.
	Boosted []string
	Amount  float64
}

// MaxBoost caps the total co-occurrence lift a single candidate can
// accumulate across all applicable boosts.
const MaxBoost = 0.3

// RuleSet is the full catalog for one record domain.
type RuleSet struct {
	InventoryFields []Field
	OrderFields     []Field

	// Incompatible lists category pairs that can never map to each
	// other. Declared one-directionally; Compatible checks both ways.
	Incompatible map[Category][]Category

	BlockingRules []BlockingRule
	Boosts        []Boost

	// Abbreviations expand per-token before similarity scoring, so
	// "Qty" and "Quantity" compare equal.
	Abbreviations map[string]string
}

// FieldsFor returns the candidate fields for an import type, in
// declaration order. For combined exports the union keeps inventory
// order first and skips order fields already present by name.
func (rs *RuleSet) FieldsFor(t tabular.ImportType) []Field {
	switch t {
	case tabular.ImportInventory:
		return rs.InventoryFields
	case tabular.ImportOrders:
		return rs.OrderFields
	case tabular.ImportBoth:
		seen := make(map[string]bool, len(rs.InventoryFields))
		union := make([]Field, 0, len(rs.InventoryFields)+len(rs.OrderFields))
		for _, f := range rs.InventoryFields {
			seen[f.Name] = true
			union = append(union, f)
		}
		for _, f := range rs.OrderFields {
			if !seen[f.Name] {
				union = append(union, f)
			}
		}
		return union
	default:
		return rs.InventoryFields
	}
}

// Compatible reports whether two categories may map to each other. An
// unknown category on either side never vetoes.
func (rs *RuleSet) Compatible(a, b Category) bool {
	if a == CategoryNone || b == CategoryNone || a == b {
		return true
	}
	for _, blocked := range rs.Incompatible[a] {
		if blocked == b {
			return false
		}
	}
	for _, blocked := range rs.Incompatible[b] {
		if blocked == a {
			return false
		}
	}
	return true
}
