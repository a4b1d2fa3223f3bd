// Package retrieval rewrites user queries, runs hybrid search, and
// assembles cited context for the completion prompt.
package retrieval

import (
	"sort"
	"strings"
)

// expansions maps semantic triggers to synonym phrases appended when
// the trigger appears in a query. Keys may be multi-word phrases.
var expansions = map[string][]string{
	"onboarding":   {"onboarding process", "new hire", "orientation"},
	"new employee": {"first day", "getting started"},
	"vacation":     {"time off", "pto", "leave policy"},
	"benefits":     {"health insurance", "compensation"},
	"deploy":       {"deployment", "release process"},
}

// techWhitelist holds tokens kept verbatim even where the stopword
// rules would drop them.
var techWhitelist = map[string]bool{
	"api": true, "sdk": true, "cli": true, "ui": true, "db": true,
	"docker": true, "kubernetes": true, "k8s": true, "git": true,
	"ci": true, "cd": true, "llm": true, "gpt": true, "embedding": true,
	"http": true, "json": true, "yaml": true, "sql": true, "oauth": true,
	"sso": true, "vpn": true, "it": true, "ip": true, "dns": true,
}

// stopwords are question-words and fillers dropped when standalone.
var stopwords = map[string]bool{
	"what": true, "how": true, "why": true, "when": true, "where": true,
	"who": true, "which": true, "is": true, "are": true, "was": true,
	"the": true, "a": true, "an": true, "of": true, "to": true,
	"in": true, "on": true, "for": true, "about": true, "me": true,
	"my": true, "do": true, "does": true, "can": true, "could": true,
	"would": true, "please": true, "tell": true, "i": true, "you": true,
}

func tokenize(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		t := strings.Trim(f, ".,!?:;\"'()")
		if t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

// Preprocess rewrites a query for search: lowercase, expand domain
// terms, and drop standalone stopwords while keeping whitelisted
// technical tokens. When more than half of the tokens would be
// dropped the original query wins, preserving intent. The function is
// idempotent.
func Preprocess(query string) string {
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return ""
	}
	normalized := strings.Join(tokens, " ")

	// Expansion triggers are checked against the normalized query so
	// multi-word triggers match; a synonym already present is not
	// appended again, which keeps reapplication stable.
	expanded := normalized
	for _, trigger := range expansionTriggers() {
		if !containsPhrase(expanded, trigger) {
			continue
		}
		for _, synonym := range expansions[trigger] {
			if !containsPhrase(expanded, synonym) {
				expanded += " " + synonym
			}
		}
	}

	all := strings.Fields(expanded)
	kept := make([]string, 0, len(all))
	for _, t := range all {
		if stopwords[t] && !techWhitelist[t] {
			continue
		}
		kept = append(kept, t)
	}
	if (len(all)-len(kept))*2 > len(all) {
		return normalized
	}
	return strings.Join(kept, " ")
}

// expansionTriggers returns the trigger phrases in deterministic
// order.
func expansionTriggers() []string {
	triggers := make([]string, 0, len(expansions))
	for t := range expansions {
		triggers = append(triggers, t)
	}
	sort.Strings(triggers)
	return triggers
}

func containsPhrase(query, phrase string) bool {
	idx := strings.Index(query, phrase)
	if idx < 0 {
		return false
	}
	// Word-boundary check on both sides.
	if idx > 0 && query[idx-1] != ' ' {
		return false
	}
	end := idx + len(phrase)
	if end < len(query) && query[end] != ' ' {
		return false
	}
	return true
}

// Enhancement limits: at most K previous queries contribute, and at
// most maxCarryTerms terms are appended.
const (
	previousQueryWindow = 2
	maxCarryTerms       = 5
)

// Enhance appends key terms from recent previous user queries to the
// current (already preprocessed) query. Terms the current query
// already contains are skipped.
func Enhance(current string, previous []string) string {
	if len(previous) > previousQueryWindow {
		previous = previous[len(previous)-previousQueryWindow:]
	}
	present := make(map[string]bool)
	for _, t := range strings.Fields(current) {
		present[t] = true
	}

	carried := make([]string, 0, maxCarryTerms)
	for _, prev := range previous {
		for _, term := range strings.Fields(Preprocess(prev)) {
			if present[term] {
				continue
			}
			present[term] = true
			carried = append(carried, term)
			if len(carried) == maxCarryTerms {
				break
			}
		}
		if len(carried) == maxCarryTerms {
			break
		}
	}
	if len(carried) == 0 {
		return current
	}
	return strings.TrimSpace(current + " " + strings.Join(carried, " "))
}
