// Package matcher implements the keyword matching engine for posts.
package matcher

import (
	"regexp"
	"strings"

	"github.com/Sxientrie/reddit-hawk/internal/model"
)

// Matches checks whether a post passes the ruleset's keyword filters.
//
// Exclusion (poison) keywords are checked first: any match rejects.
// Inclusion keywords are mandatory: an empty include list rejects every
// post, so a blank ruleset stays silent instead of forwarding the whole
// firehose.
func Matches(post model.Post, rules model.Ruleset) bool {
	searchText := strings.ToLower(post.Title + " " + post.SelfText)

	if matchesAny(searchText, rules.PoisonKeywords) {
		return false
	}
	return matchesAny(searchText, rules.Keywords)
}

// FilterPosts returns the posts that pass the ruleset, preserving order.
func FilterPosts(posts []model.Post, rules model.Ruleset) []model.Post {
	var matched []model.Post
	for _, post := range posts {
		if Matches(post, rules) {
			matched = append(matched, post)
		}
	}
	return matched
}

func matchesAny(text string, keywords []string) bool {
	for _, keyword := range keywords {
		keyword = strings.TrimSpace(keyword)
		if keyword == "" {
			continue
		}
		if matchKeyword(text, keyword) {
			return true
		}
	}
	return false
}

// matchKeyword matches case-insensitively with boundary awareness: a
// word boundary is required only on the sides where the keyword itself
// starts or ends with a word character. "react" therefore does not match
// inside "overreaction", while "c++" still matches as a substring.
func matchKeyword(text, keyword string) bool {
	re, err := regexp.Compile(keywordPattern(keyword))
	if err != nil {
		return strings.Contains(text, strings.ToLower(keyword))
	}
	return re.MatchString(text)
}

func keywordPattern(keyword string) string {
	var b strings.Builder
	b.WriteString("(?i)")
	if isWordByte(keyword[0]) {
		b.WriteString(`\b`)
	}
	b.WriteString(regexp.QuoteMeta(keyword))
	if isWordByte(keyword[len(keyword)-1]) {
		b.WriteString(`\b`)
	}
	return b.String()
}

func isWordByte(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}
