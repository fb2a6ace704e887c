// Package normalizer derives rule prefixes and readable merchant names from
// raw bank operation labels ("CB CARREFOUR 12/01 4521" -> prefix
// "CB CARREFOUR", merchant "Carrefour").
package normalizer

import (
	"regexp"
	"strings"
	"sync"
	"unicode"
)

// Suggestion is what a raw label tells about its merchant.
type Suggestion struct {
	Description string
	Prefix      string // A rule prefix that matches the label and its siblings
	Merchant    string // Display name of the merchant
	Category    string // Category name hint, empty when unknown
}

// MerchantPattern maps labels to a known merchant.
type MerchantPattern struct {
	Pattern  *regexp.Regexp
	Name     string
	Category string
}

// PrefixSuggester proposes categorization rules for uncategorized operations.
type PrefixSuggester struct {
	mu       sync.RWMutex
	patterns []MerchantPattern
}

// NewPrefixSuggester creates a suggester with common French merchant patterns.
func NewPrefixSuggester() *PrefixSuggester {
	return &PrefixSuggester{patterns: defaultMerchantPatterns()}
}

// Suggest analyzes one operation label.
func (s *PrefixSuggester) Suggest(description string) Suggestion {
	result := Suggestion{
		Description: description,
		Prefix:      SuggestPrefix(description),
	}

	cleaned := cleanMerchantName(description)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.patterns {
		if p.Pattern.MatchString(strings.ToUpper(cleaned)) {
			result.Merchant = p.Name
			result.Category = p.Category
			return result
		}
	}
	result.Merchant = titleCase(cleaned)
	return result
}

// AddPattern registers a custom merchant pattern, checked after the built-in ones.
func (s *PrefixSuggester) AddPattern(pattern, name, category string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patterns = append(s.patterns, MerchantPattern{Pattern: re, Name: name, Category: category})
	return nil
}

// Group buckets labels by suggested prefix, keeping first-seen order.
func (s *PrefixSuggester) Group(descriptions []string) map[string][]string {
	groups := make(map[string][]string)
	for _, d := range descriptions {
		p := SuggestPrefix(d)
		if p == "" {
			continue
		}
		groups[p] = append(groups[p], d)
	}
	return groups
}

// Payment channel markers French banks put in front of the merchant.
var channelPrefixes = []string{
	"PAIEMENT PAR CARTE ", "PAIEMENT CB ", "CARTE ", "CB ",
	"PRLV SEPA ", "PRELEVEMENT ", "PRLV ",
	"VIR SEPA RECU ", "VIR SEPA EMIS ", "VIR SEPA ", "VIREMENT ", "VIR ",
	"RETRAIT DAB ", "RETRAIT ",
	"ECHEANCE PRET ", "ACHAT ",
}

var (
	refPattern   = regexp.MustCompile(`\s+\d{4,}$`)
	datePattern  = regexp.MustCompile(`\s+\d{1,2}/\d{1,2}(/\d{2,4})?\b.*$`)
	cardPattern  = regexp.MustCompile(`\b(CARTE\s+)?X\d{4}\b`)
	spacePattern = regexp.MustCompile(`\s+`)
)

// SuggestPrefix keeps the leading words of a label up to the first token that
// varies between operations of the same merchant: dates, references, card
// numbers. A payment channel marker alone is not a useful prefix.
func SuggestPrefix(description string) string {
	words := strings.Fields(description)
	keep := 0
	for _, w := range words {
		if isNoise(w) {
			break
		}
		keep++
	}
	if keep == 1 && isChannel(words[0]) {
		return ""
	}
	return strings.Join(words[:keep], " ")
}

func isNoise(word string) bool {
	if strings.HasPrefix(word, "*") || strings.HasPrefix(word, "/") {
		return true
	}
	for _, r := range word {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func isChannel(word string) bool {
	upper := strings.ToUpper(word) + " "
	for _, p := range channelPrefixes {
		if strings.HasPrefix(p, upper) {
			return true
		}
	}
	return false
}

// cleanMerchantName removes payment channel markers, references and dates.
func cleanMerchantName(raw string) string {
	result := spacePattern.ReplaceAllString(strings.TrimSpace(raw), " ")

	upper := strings.ToUpper(result)
	for _, prefix := range channelPrefixes {
		if strings.HasPrefix(upper, prefix) {
			result = result[len(prefix):]
			break
		}
	}

	result = cardPattern.ReplaceAllString(result, "")
	result = datePattern.ReplaceAllString(result, "")
	result = refPattern.ReplaceAllString(result, "")
	return strings.TrimSpace(spacePattern.ReplaceAllString(result, " "))
}

// titleCase converts a string to title case.
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, word := range words {
		runes := []rune(strings.ToLower(word))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

// defaultMerchantPatterns returns common merchant patterns for France.
func defaultMerchantPatterns() []MerchantPattern {
	return []MerchantPattern{
		// Supermarkets
		{regexp.MustCompile(`(?i)CARREFOUR`), "Carrefour", "Alimentation"},
		{regexp.MustCompile(`(?i)E\.?\s*LECLERC|\bLECLERC\b`), "E.Leclerc", "Alimentation"},
		{regexp.MustCompile(`(?i)AUCHAN`), "Auchan", "Alimentation"},
		{regexp.MustCompile(`(?i)MONOPRIX|MONOP'`), "Monoprix", "Alimentation"},
		{regexp.MustCompile(`(?i)\bLIDL\b`), "Lidl", "Alimentation"},
		{regexp.MustCompile(`(?i)INTERMARCHE`), "Intermarché", "Alimentation"},
		{regexp.MustCompile(`(?i)PICARD`), "Picard", "Alimentation"},
		{regexp.MustCompile(`(?i)FRANPRIX`), "Franprix", "Alimentation"},

		// Food & delivery
		{regexp.MustCompile(`(?i)UBER\s*\*?\s*EATS`), "Uber Eats", "Restaurants"},
		{regexp.MustCompile(`(?i)DELIVEROO`), "Deliveroo", "Restaurants"},
		{regexp.MustCompile(`(?i)MC\s*DONALDS|MCDONALD`), "McDonald's", "Restaurants"},

		// Transport (delivery patterns above match first for UBER EATS)
		{regexp.MustCompile(`(?i)\bUBER\b`), "Uber", "Transport"},
		{regexp.MustCompile(`(?i)\bSNCF\b|OUI\.?SNCF`), "SNCF", "Transport"},
		{regexp.MustCompile(`(?i)\bRATP\b|NAVIGO`), "RATP", "Transport"},
		{regexp.MustCompile(`(?i)TOTAL\s*ENERGIES|\bTOTAL\b`), "TotalEnergies", "Transport"},

		// Utilities
		{regexp.MustCompile(`(?i)\bEDF\b`), "EDF", "Logement"},
		{regexp.MustCompile(`(?i)ENGIE`), "Engie", "Logement"},
		{regexp.MustCompile(`(?i)FREE\s*MOBILE|\bFREE\b`), "Free", "Télécom"},
		{regexp.MustCompile(`(?i)ORANGE`), "Orange", "Télécom"},
		{regexp.MustCompile(`(?i)\bSFR\b`), "SFR", "Télécom"},
		{regexp.MustCompile(`(?i)BOUYGUES`), "Bouygues Telecom", "Télécom"},

		// Shopping & subscriptions
		{regexp.MustCompile(`(?i)AMAZON|AMZN`), "Amazon", "Achats"},
		{regexp.MustCompile(`(?i)\bFNAC\b`), "Fnac", "Achats"},
		{regexp.MustCompile(`(?i)DECATHLON`), "Decathlon", "Achats"},
		{regexp.MustCompile(`(?i)IKEA`), "IKEA", "Achats"},
		{regexp.MustCompile(`(?i)NETFLIX`), "Netflix", "Loisirs"},
		{regexp.MustCompile(`(?i)SPOTIFY`), "Spotify", "Loisirs"},
		{regexp.MustCompile(`(?i)DISNEY\s*\+|DISNEYPLUS`), "Disney+", "Loisirs"},

		// Health
		{regexp.MustCompile(`(?i)PHARMACIE|PHIE\b`), "Pharmacie", "Santé"},
		{regexp.MustCompile(`(?i)DOCTOLIB`), "Doctolib", "Santé"},
	}
}
