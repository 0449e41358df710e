package core

import (
	"fmt"
	"time"

	"github.com/stockflow/importer/internal/tabular"
)

// Plausibility bounds. Values beyond these are almost certainly unit
// confusion or a misplaced column, but the data may still be real, so
// they warn instead of blocking.
const (
	maxPlausiblePackSize = 10_000
	maxPlausibleStock    = 1_000_000
	maxPlausibleQuantity = 100_000

	notificationRatioLimit = 10
	futureDateSlack        = 7 * 24 * time.Hour
	pastDateLimit          = 5 * 365 * 24 * time.Hour
)

// ValidateRow checks one canonical row against the rules for the import
// type. Combined imports union both rule sets. The row number is
// 1-indexed over data rows and appears on every finding.
func ValidateRow(importType tabular.ImportType, row CanonicalRow, rowNum int) []Finding {
	switch importType {
	case tabular.ImportOrders:
		return validateOrderRow(row, rowNum)
	case tabular.ImportBoth:
		findings := validateInventoryRow(row, rowNum)
		return append(findings, validateOrderRow(row, rowNum)...)
	default:
		return validateInventoryRow(row, rowNum)
	}
}

// HasError reports whether any finding is blocking.
func HasError(findings []Finding) bool {
	for _, f := range findings {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}

func validateInventoryRow(row CanonicalRow, rowNum int) []Finding {
	var findings []Finding

	if row.Text("productId") == "" {
		findings = append(findings, errorf(rowNum, "productId", "", "required field productId is empty"))
	}
	if row.Text("name") == "" {
		findings = append(findings, errorf(rowNum, "name", "", "required field name is empty"))
	}

	if row.Has("packSize") {
		raw := row.Text("packSize")
		packSize, ok := row.Number("packSize")
		switch {
		case !ok:
			findings = append(findings, errorf(rowNum, "packSize", raw, "invalid number for pack size"))
		case packSize <= 0:
			// Pack size divides and multiplies quantities downstream; a
			// zero or negative value would corrupt every conversion.
			findings = append(findings, errorf(rowNum, "packSize", raw, "pack size must be greater than zero"))
		case packSize > maxPlausiblePackSize:
			findings = append(findings, warnf(rowNum, "packSize", raw, "pack size %d is implausibly large", int(packSize)))
		}
	}

	if row.Has("currentStockPacks") {
		raw := row.Text("currentStockPacks")
		stock, ok := row.Number("currentStockPacks")
		switch {
		case !ok:
			findings = append(findings, errorf(rowNum, "currentStockPacks", raw, "invalid number for stock quantity"))
		case stock < 0:
			findings = append(findings, errorf(rowNum, "currentStockPacks", raw, "stock quantity cannot be negative"))
		case stock > maxPlausibleStock:
			findings = append(findings, warnf(rowNum, "currentStockPacks", raw, "stock quantity %d is implausibly large", int(stock)))
		}
	}

	if row.Has("notificationPoint") {
		point, ok := row.Number("notificationPoint")
		stock, stockOK := row.Number("currentStockPacks")
		if ok && stockOK && point > 0 && point > stock*notificationRatioLimit {
			findings = append(findings, warnf(rowNum, "notificationPoint", row.Text("notificationPoint"),
				"notification point %d is more than %d× the current stock", int(point), notificationRatioLimit))
		}
	}

	return findings
}

func validateOrderRow(row CanonicalRow, rowNum int) []Finding {
	var findings []Finding

	if row.Text("productId") == "" {
		findings = append(findings, errorf(rowNum, "productId", "", "required field productId is empty"))
	}
	if row.Text("orderId") == "" {
		findings = append(findings, errorf(rowNum, "orderId", "", "required field orderId is empty"))
	}

	qtyField := "quantityUnits"
	if !row.Has(qtyField) && row.Has("quantityPacks") {
		qtyField = "quantityPacks"
	}
	if row.Has(qtyField) {
		raw := row.Text(qtyField)
		qty, ok := row.Number(qtyField)
		switch {
		case !ok:
			findings = append(findings, errorf(rowNum, qtyField, raw, "invalid number for quantity"))
		case qty < 0:
			findings = append(findings, errorf(rowNum, qtyField, raw, "quantity cannot be negative"))
		case qty == 0:
			findings = append(findings, warnf(rowNum, qtyField, raw, "quantity is zero"))
		case qty > maxPlausibleQuantity:
			findings = append(findings, warnf(rowNum, qtyField, raw, "quantity %d is implausibly large", int(qty)))
		}
	}

	if row.Has("dateSubmitted") {
		raw := row.Text("dateSubmitted")
		date, ok := row.Date("dateSubmitted")
		now := time.Now()
		switch {
		case !ok:
			findings = append(findings, warnf(rowNum, "dateSubmitted", raw, "unparseable date, import date will be used"))
		case date.After(now.Add(futureDateSlack)):
			findings = append(findings, warnf(rowNum, "dateSubmitted", raw, "date is more than a week in the future"))
		case date.Before(now.Add(-pastDateLimit)):
			findings = append(findings, warnf(rowNum, "dateSubmitted", raw, "date is more than five years old"))
		}
	}

	return findings
}

func errorf(row int, field, value, format string, args ...any) Finding {
	return Finding{Row: row, Field: field, Value: value, Message: fmt.Sprintf(format, args...), Severity: SeverityError}
}

func warnf(row int, field, value, format string, args ...any) Finding {
	return Finding{Row: row, Field: field, Value: value, Message: fmt.Sprintf(format, args...), Severity: SeverityWarning}
}
