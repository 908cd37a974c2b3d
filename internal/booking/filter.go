package booking

import (
	"html"
	"regexp"
	"strconv"
	"strings"

	"github.com/julianbeese/tennis_bot/internal/config"
	"github.com/julianbeese/tennis_bot/internal/domain"
)

// Filter applies the slot business rules
type Filter struct {
	priceTypes []string
	courtTypes []string
}

// NewFilter creates a filter for the accepted price and court types
func NewFilter(cfg *config.Config) *Filter {
	return &Filter{priceTypes: cfg.PriceType, courtTypes: cfg.CourtType}
}

// FilterResult contains filtering outcome for a slot
type FilterResult struct {
	Passed  bool
	Reasons []string // Reasons for filtering out
}

// Court checks the per-location court allow-list. Run it first; it needs only the court label.
func (f *Filter) Court(loc domain.Location, slot *domain.Slot) FilterResult {
	return apply(slot, &CourtMatcher{Location: loc})
}

// Description checks price and court type, both read from the slot's description
func (f *Filter) Description(slot *domain.Slot) FilterResult {
	return apply(slot,
		&LabelMatcher{Label: "price_type", Accepted: f.priceTypes, Value: func(s *domain.Slot) string { return s.PriceType }},
		&LabelMatcher{Label: "court_type", Accepted: f.courtTypes, Value: func(s *domain.Slot) string { return s.CourtType }},
	)
}

func apply(slot *domain.Slot, matchers ...Matcher) FilterResult {
	result := FilterResult{Passed: true}
	for _, m := range matchers {
		if reason := m.Match(slot); reason != "" {
			result.Passed = false
			result.Reasons = append(result.Reasons, reason)
		}
	}
	return result
}

// Matcher interface for individual filter criteria
type Matcher interface {
	Match(slot *domain.Slot) string // Returns empty string if passes, reason if filtered
}

// CourtMatcher enforces a location's court allow-list
type CourtMatcher struct {
	Location domain.Location
}

func (m *CourtMatcher) Match(s *domain.Slot) string {
	if len(m.Location.Courts) == 0 {
		return ""
	}
	if s.CourtNumber == 0 {
		return "court_unknown"
	}
	if !m.Location.AllowsCourt(s.CourtNumber) {
		return "court_not_allowed"
	}
	return ""
}

// LabelMatcher requires a slot label to be one of the accepted values
type LabelMatcher struct {
	Label    string
	Accepted []string
	Value    func(s *domain.Slot) string
}

func (m *LabelMatcher) Match(s *domain.Slot) string {
	v := m.Value(s)
	if v == "" {
		return m.Label + "_unknown"
	}
	for _, a := range m.Accepted {
		if strings.TrimSpace(a) == v {
			return ""
		}
	}
	return m.Label + "_not_accepted"
}

var courtNumberRe = regexp.MustCompile(`Court N°\s*(\d+)`)

// parseCourtNumber extracts N from a "Court N°N" label
func parseCourtNumber(text string) (int, bool) {
	m := courtNumberRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

var lineBreakRe = regexp.MustCompile(`(?i)<br\s*/?>`)

// parseDescription splits "priceType<br>courtType"
func parseDescription(inner string) (priceType, courtType string, ok bool) {
	parts := lineBreakRe.Split(inner, 3)
	if len(parts) < 2 {
		return "", "", false
	}
	priceType = strings.TrimSpace(html.UnescapeString(parts[0]))
	courtType = strings.TrimSpace(html.UnescapeString(parts[1]))
	return priceType, courtType, priceType != "" && courtType != ""
}

var spacesRe = regexp.MustCompile(`\s+`)

// collapse trims text and squeezes whitespace runs to one space
func collapse(text string) string {
	return spacesRe.ReplaceAllString(strings.TrimSpace(text), " ")
}
