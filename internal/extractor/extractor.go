// Package extractor maps raw transcript text to a coarse intent and a set of
// canonical entity names using fixed keyword/alias tables. It is deliberately
// rule-based: the upstream transcription is noisy enough that a small closed
// vocabulary beats a general NLP model for this signal.
package extractor

import (
	"regexp"
	"strings"
)

const (
	IntentFindStore       = "FIND_STORE"
	IntentProductInterest = "PRODUCT_INTEREST"
)

// Result is the output of one extraction pass. Entities are canonical names,
// deduplicated, in first-seen order.
type Result struct {
	Intent   string   `json:"intent"`
	Entities []string `json:"entities"`
}

type alias struct {
	keyword   string
	canonical string
}

// Alias tables are ordered slices, not maps: matching walks every alias in a
// layer and keeps all hits, so iteration order decides first-seen order.

// Store and brand names. Checked first; brand mentions are the most specific
// and highest-value signal. Includes common mis-transcriptions.
var storeNames = []alias{
	{"crumbl", "Crumbl"},
	{"crumbl cookies", "Crumbl"},
	{"auntie anne", "Auntie Anne's"},
	{"auntie ann", "Auntie Anne's"},
	{"auntie anne's", "Auntie Anne's"},
	{"auntie ann's", "Auntie Anne's"},
	{"auntie annes", "Auntie Anne's"},
	{"aunty anne", "Auntie Anne's"},
	{"aunty ann", "Auntie Anne's"},
	{"aunty anne's", "Auntie Anne's"},
	{"aunty ann's", "Auntie Anne's"},
	{"aunty annes", "Auntie Anne's"},
	{"monty ann", "Auntie Anne's"},
	{"lululemon", "Lululemon"},
	{"nike", "Nike"},
	{"starbucks", "Starbucks"},
	{"chipotle", "Chipotle"},
	{"panera", "Panera"},
	{"panera bread", "Panera"},
	{"chick fil a", "Chick-fil-A"},
	{"chick-fil-a", "Chick-fil-A"},
	{"wingstop", "Wingstop"},
	{"pizza hut", "Pizza Hut"},
	{"subway", "Subway"},
	{"burger king", "Burger King"},
}

// Specific food items.
var foodItems = []alias{
	{"burger", "Burger"},
	{"burgers", "Burger"},
	{"hamburger", "Hamburger"},
	{"hot dog", "Hot Dog"},
	{"hotdog", "Hot Dog"},
	{"pizza", "Pizza"},
	{"pasta", "Pasta"},
	{"salad", "Salad"},
	{"sandwich", "Sandwich"},
	{"taco", "Taco"},
	{"tacos", "Taco"},
	{"burrito", "Burrito"},
	{"quesadilla", "Quesadilla"},
	{"fries", "Fries"},
	{"wings", "Chicken Wings"},
	{"chicken", "Chicken"},
	{"beef", "Beef"},
	{"sushi", "Sushi"},
	{"ramen", "Ramen"},
	{"noodles", "Noodles"},
	{"rice", "Rice Bowl"},
	{"soup", "Soup"},
	{"donut", "Donut"},
	{"donuts", "Donut"},
	{"croissant", "Pastry"},
	{"bagel", "Bagel"},
	{"waffle", "Waffle"},
	{"pancake", "Pancake"},
	{"cupcake", "Cupcake"},
	{"brownie", "Brownie"},
	{"cookie", "Cookie"},
	{"cookies", "Cookie"},
	{"pretzel", "Pretzel"},
	{"pretzels", "Pretzel"},
	{"popcorn", "Popcorn"},
	{"nachos", "Nachos"},
}

var beverages = []alias{
	{"coffee", "Coffee"},
	{"espresso", "Espresso"},
	{"latte", "Latte"},
	{"cappuccino", "Cappuccino"},
	{"macchiato", "Macchiato"},
	{"americano", "Americano"},
	{"mocha", "Mocha"},
	{"tea", "Tea"},
	{"iced tea", "Iced Tea"},
	{"boba", "Boba Tea"},
	{"bubble tea", "Bubble Tea"},
	{"smoothie", "Smoothie"},
	{"juice", "Juice"},
	{"soda", "Soda"},
	{"coke", "Coke"},
	{"sprite", "Sprite"},
	{"water", "Water"},
	{"lemonade", "Lemonade"},
	{"milkshake", "Milkshake"},
	{"shake", "Shake"},
}

// Generic product categories. Fallback only: consulted when the three layers
// above matched nothing.
var productCategories = []alias{
	{"sneakers", "Sneakers"},
	{"shoes", "Sneakers"},
	{"dessert", "Dessert"},
	{"candy", "Candy"},
}

var locatePhrases = []string{"where is", "where's", "find", "locate", "store"}
var wantPhrases = []string{"want", "need", "looking for", "buy"}

// phraseRegexps holds compiled word-boundary matchers for every multi-word
// alias across all layers.
var phraseRegexps = buildPhraseRegexps()

func buildPhraseRegexps() map[string]*regexp.Regexp {
	out := make(map[string]*regexp.Regexp)
	for _, layer := range [][]alias{storeNames, foodItems, beverages, productCategories} {
		for _, a := range layer {
			if strings.Contains(a.keyword, " ") {
				if _, ok := out[a.keyword]; !ok {
					out[a.keyword] = regexp.MustCompile(`\b` + regexp.QuoteMeta(a.keyword) + `\b`)
				}
			}
		}
	}
	return out
}

// Extract is pure and deterministic: no state is retained between calls.
func Extract(transcript string) Result {
	lower := strings.ToLower(transcript)

	// FIND_STORE is checked before PRODUCT_INTEREST; first matching rule
	// wins, and PRODUCT_INTEREST is also the default.
	intent := IntentProductInterest
	if containsAny(lower, locatePhrases) {
		intent = IntentFindStore
	} else if containsAny(lower, wantPhrases) {
		intent = IntentProductInterest
	}

	return Result{Intent: intent, Entities: extractEntities(lower)}
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// extractEntities runs the brand, food and beverage layers unconditionally
// and unions their matches; the generic-category layer runs only when nothing
// more specific was found.
func extractEntities(lower string) []string {
	words := tokenize(lower)

	var found []string
	seen := make(map[string]bool)
	scan := func(layer []alias) {
		for _, a := range layer {
			if !matchesKeyword(lower, words, a.keyword) {
				continue
			}
			if !seen[a.canonical] {
				seen[a.canonical] = true
				found = append(found, a.canonical)
			}
		}
	}

	scan(storeNames)
	scan(foodItems)
	scan(beverages)
	if len(found) == 0 {
		scan(productCategories)
	}
	return found
}

// matchesKeyword enforces the matching discipline: multi-word phrases must
// appear as a whole-word sequence; single words must equal a token exactly.
// Substring hits are never accepted ("ann" must not match inside "Anne's").
func matchesKeyword(lower string, words []string, keyword string) bool {
	if strings.Contains(keyword, " ") {
		return phraseRegexps[keyword].MatchString(lower)
	}
	for _, w := range words {
		if w == keyword {
			return true
		}
	}
	return false
}

// tokenize splits on whitespace and strips non-alphanumeric runs from token
// edges, mirroring how the alias keys are written.
func tokenize(lower string) []string {
	fields := strings.Fields(lower)
	out := fields[:0]
	for _, f := range fields {
		w := strings.TrimFunc(f, func(r rune) bool {
			return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
		})
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}
