package mapping

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/stockflow/importer/internal/schema"
	"github.com/stockflow/importer/internal/tabular"
)

// Level buckets a raw confidence for display.
type Level string

const (
	LevelHigh   Level = "high"
	LevelMedium Level = "medium"
	LevelLow    Level = "low"
)

func LevelFor(confidence float64) Level {
	switch {
	case confidence >= 0.8:
		return LevelHigh
	case confidence >= 0.6:
		return LevelMedium
	default:
		return LevelLow
	}
}

// ColumnMapping is the resolution result for one source header. An empty
// TargetField means the header stayed unmapped; it still appears in the
// output so the caller sees the full ordered header list.
type ColumnMapping struct {
	SourceHeader string   `json:"sourceHeader"`
	TargetField  string   `json:"targetField,omitempty"`
	Confidence   float64  `json:"confidence"`
	Level        Level    `json:"confidenceLevel"`
	Reason       string   `json:"reason,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`
}

const (
	// exclusiveThreshold is the confidence at which a mapped target is
	// withheld from later headers.
	exclusiveThreshold = 0.9
	// typeBonusThreshold is the sample match ratio that earns the
	// data-type bonus.
	typeBonusThreshold = 0.7
	// typePenaltyThreshold is the ratio below which the score shrinks.
	typePenaltyThreshold = 0.5
	// sampleLimit caps how many non-empty values are inspected per header.
	sampleLimit = 10
)

// Engine scores headers against a rule set. It carries no mutable state
// between calls, so one engine may serve concurrent previews.
type Engine struct {
	rules *schema.RuleSet
}

func NewEngine(rules *schema.RuleSet) *Engine {
	return &Engine{rules: rules}
}

// candidate is the best permitted field found for a header during pass
// one, kept around whether or not it cleared its acceptance threshold.
type candidate struct {
	field  schema.Field
	score  float64
	reason string
}

// MapColumns resolves every header in order. Pass one scores each header
// independently under the blocking and compatibility vetoes; pass two
// revisits unmapped and low-confidence headers with co-occurrence boosts
// derived from pass one's accepted fields. All iteration follows
// declaration order, so identical inputs always produce identical output.
func (e *Engine) MapColumns(importType tabular.ImportType, headers []string, rows []tabular.Row) []ColumnMapping {
	fields := e.rules.FieldsFor(importType)
	mappings := make([]ColumnMapping, len(headers))
	candidates := make([]candidate, len(headers))
	used := make(map[string]bool)
	accepted := make(map[string]bool)

	for i, header := range headers {
		m := ColumnMapping{SourceHeader: header}
		best, vetoNote := e.bestCandidate(fields, header, rows, used)
		if best.field.Name == "" && vetoNote != "" {
			m.Warnings = append(m.Warnings, vetoNote)
		}

		// A claimed target stays off the table unless it is this
		// header's only strong option.
		if best.score < exclusiveThreshold {
			if alt, _ := e.bestCandidate(fields, header, rows, nil); alt.score >= exclusiveThreshold && alt.score > best.score {
				alt.reason += "; also matched by an earlier header"
				best = alt
			}
		}

		candidates[i] = best
		if best.field.Name != "" && best.score >= best.field.MinConfidence {
			m.TargetField = best.field.Name
			m.Confidence = round2(best.score)
			m.Level = LevelFor(best.score)
			m.Reason = best.reason
			accepted[best.field.Name] = true
			if best.score >= exclusiveThreshold {
				used[best.field.Name] = true
			}
		} else {
			m.Level = LevelLow
			if best.field.Name != "" && best.score > 0 {
				m.Confidence = round2(best.score)
				m.Warnings = append(m.Warnings, fmt.Sprintf(
					"best candidate %q scored %.2f, below its %.2f threshold",
					best.field.Name, best.score, best.field.MinConfidence))
			}
		}
		mappings[i] = m
	}

	// Pass two: co-occurrence boosting for headers that missed their
	// threshold or landed in the low bucket.
	for i := range mappings {
		m := &mappings[i]
		c := candidates[i]
		if c.field.Name == "" || c.score <= 0 {
			continue
		}
		if m.TargetField != "" && m.Level != LevelLow {
			continue
		}
		if m.TargetField == "" && used[c.field.Name] {
			continue
		}

		boost := e.cooccurrenceBoost(c.field.Name, accepted)
		if boost == 0 {
			continue
		}
		boosted := min(1, c.score+boost)
		if boosted < c.field.MinConfidence {
			continue
		}
		m.TargetField = c.field.Name
		m.Confidence = round2(boosted)
		m.Level = LevelFor(boosted)
		m.Reason = c.reason + fmt.Sprintf("; +%.2f from related fields in this file", boost)
		m.Warnings = []string{fmt.Sprintf(
			"%q was promoted by related fields from a standalone score of %.2f",
			c.field.Name, c.score)}
		accepted[c.field.Name] = true
	}

	return mappings
}

// bestCandidate scores one header against every permitted field and
// returns the winner. Ties keep the earlier-declared field. A non-empty
// veto note reports the blocking rule that removed the closest match.
func (e *Engine) bestCandidate(fields []schema.Field, header string, rows []tabular.Row, used map[string]bool) (candidate, string) {
	normalized := normalizeForScoring(header, e.rules.Abbreviations)
	inferred := schema.InferCategory(header)

	var best candidate
	var vetoNote string
	for _, field := range fields {
		if used[field.Name] {
			continue
		}
		if blocked, reason := e.rules.Blocked(header, field.Name); blocked {
			if vetoNote == "" {
				vetoNote = fmt.Sprintf("%s excluded: %s", field.Name, reason)
			}
			continue
		}
		if !e.rules.Compatible(inferred, field.Category) {
			continue
		}

		score, matched := 0.0, ""
		for _, pattern := range field.Patterns {
			p := normalizeForScoring(pattern, e.rules.Abbreviations)
			if s := scorePattern(normalized, p); s > score {
				score, matched = s, pattern
			}
		}
		if score == 0 {
			continue
		}
		reason := fmt.Sprintf("matched pattern %q", matched)

		if ratio, sampled := sampleMatchRatio(header, rows, field.Type); sampled {
			switch {
			case ratio >= typeBonusThreshold:
				score = min(1, score+0.1)
				reason += fmt.Sprintf("; %d%% of sampled values fit %s", int(ratio*100), field.Type)
			case ratio < typePenaltyThreshold:
				score *= 0.8
				reason += fmt.Sprintf("; only %d%% of sampled values fit %s", int(ratio*100), field.Type)
			}
		}

		if score > best.score {
			best = candidate{field: field, score: score, reason: reason}
		}
	}
	return best, vetoNote
}

func (e *Engine) cooccurrenceBoost(field string, accepted map[string]bool) float64 {
	total := 0.0
	for _, b := range e.rules.Boosts {
		boostsField := false
		for _, name := range b.Boosted {
			if name == field {
				boostsField = true
				break
			}
		}
		if !boostsField {
			continue
		}
		for _, trigger := range b.Triggers {
			if accepted[trigger] && trigger != field {
				total += b.Amount
				break
			}
		}
	}
	return min(total, schema.MaxBoost)
}

// ----------------------------------------------------------------------
// Sample data-type validation
// ----------------------------------------------------------------------

var (
	currencyStripper = strings.NewReplacer("$", "", "€", "", "£", "", ",", "", "%", "")
	alnumPattern     = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 ._/-]*$`)
)

var sampleDateLayouts = []string{
	"2006-01-02", "01/02/2006", "1/2/2006", "01-02-2006",
	"2006/01/02", "Jan 2, 2006", "2 Jan 2006", "01/02/06", "1/2/06",
}

// sampleMatchRatio inspects up to sampleLimit non-empty values under the
// header and reports the fraction that fit the expected type. The second
// result is false when the header had no non-empty samples at all, in
// which case no bonus or penalty applies.
func sampleMatchRatio(header string, rows []tabular.Row, t schema.DataType) (float64, bool) {
	seen, matched := 0, 0
	for _, row := range rows {
		cell := row.Get(header)
		if cell.IsEmpty() {
			continue
		}
		seen++
		if matchesType(cell, t) {
			matched++
		}
		if seen == sampleLimit {
			break
		}
	}
	if seen == 0 {
		return 0, false
	}
	return float64(matched) / float64(seen), true
}

func matchesType(cell tabular.Cell, t schema.DataType) bool {
	switch t {
	case schema.TypeText:
		return true
	case schema.TypeAlphanumeric:
		if cell.Kind == tabular.CellNumber {
			return true
		}
		s := strings.TrimSpace(cell.Text)
		return len(s) <= 64 && len(strings.Fields(s)) <= 3 && alnumPattern.MatchString(s)
	case schema.TypeNumericPositive:
		v, ok := cellNumber(cell)
		return ok && v > 0
	case schema.TypeNumericInteger:
		v, ok := cellNumber(cell)
		return ok && v >= 0 && v == float64(int64(v))
	case schema.TypeCategorical:
		if cell.Kind == tabular.CellNumber {
			return false
		}
		s := strings.TrimSpace(cell.Text)
		return len(s) <= 30 && len(strings.Fields(s)) <= 3
	case schema.TypeDate:
		_, ok := parseSampleDate(cell.String())
		return ok
	default:
		return false
	}
}

// cellNumber reads a numeric value, tolerating currency symbols and
// thousands separators in text cells.
func cellNumber(cell tabular.Cell) (float64, bool) {
	if v, ok := cell.AsNumber(); ok {
		return v, true
	}
	if cell.Kind != tabular.CellText {
		return 0, false
	}
	stripped := strings.TrimSpace(currencyStripper.Replace(cell.Text))
	return tabular.TextCell(stripped).AsNumber()
}

func parseSampleDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range sampleDateLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}
