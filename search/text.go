package search

import "strings"

// verbatimBoost is added to the score of a chunk containing every query keyword.
const verbatimBoost = 0.3

// Stop words to filter out when checking for verbatim matches
var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "be": {}, "is": {}, "are": {}, "was": {},
	"to": {}, "of": {}, "and": {}, "in": {}, "that": {}, "have": {}, "it": {},
	"for": {}, "not": {}, "on": {}, "with": {}, "as": {}, "you": {}, "do": {},
	"at": {}, "this": {}, "but": {}, "by": {}, "from": {}, "or": {}, "what": {},
}

// keywords returns the distinct lower-cased words of text that are not stop words.
func keywords(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, word := range strings.Fields(text) {
		cleaned := strings.ToLower(strings.Trim(word, ".,!?;:'\"-()[]{}*_`#"))
		if cleaned == "" {
			continue
		}
		if _, stop := stopWords[cleaned]; stop {
			continue
		}
		set[cleaned] = struct{}{}
	}
	return set
}

// containsAllKeywords reports whether every keyword of query appears in document.
// A query made only of stop words matches nothing.
func containsAllKeywords(document string, query map[string]struct{}) bool {
	if len(query) == 0 {
		return false
	}
	doc := keywords(document)
	for word := range query {
		if _, ok := doc[word]; !ok {
			return false
		}
	}
	return true
}
