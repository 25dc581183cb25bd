package reddit

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/Sxientrie/reddit-hawk/internal/model"
)

// ParseOutcome classifies the result of validating a single raw post.
type ParseOutcome int

// Validation outcomes.
const (
	ParseOK ParseOutcome = iota
	// ParseDefaulted means the post is usable but one or more volatile
	// fields were substituted with fallbacks.
	ParseDefaulted
	// ParseRejected means a required field is missing; the post is dropped.
	ParseRejected
)

// ParseResult is the tagged outcome of validating one raw post.
type ParseResult struct {
	Outcome ParseOutcome
	Post    model.Post
	Reason  string
}

// listing mirrors the /r/<subs>/new.json response envelope.
type listing struct {
	Data struct {
		Children []struct {
			Data json.RawMessage `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// rawPost decodes a single child with every volatile field optional.
type rawPost struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Author      string          `json:"author"`
	Subreddit   string          `json:"subreddit"`
	Permalink   string          `json:"permalink"`
	URL         string          `json:"url"`
	SelfText    string          `json:"selftext"`
	CreatedUTC  json.RawMessage `json:"created_utc"`
	Score       *int            `json:"score"`
	NumComments *int            `json:"num_comments"`
	Flair       *string         `json:"link_flair_text"`
	IsSelf      *bool           `json:"is_self"`
	Over18      *bool           `json:"over_18"`
}

// ParseListing extracts posts from a raw listing response body.
// Each child is validated independently; rejected children are counted,
// never fatal. A malformed envelope yields zero posts.
func ParseListing(body []byte) (posts []model.Post, rejected int) {
	var l listing
	if err := json.Unmarshal(body, &l); err != nil {
		return nil, 0
	}

	for _, child := range l.Data.Children {
		res := ParsePost(child.Data)
		if res.Outcome == ParseRejected {
			rejected++
			continue
		}
		posts = append(posts, res.Post)
	}
	return posts, rejected
}

// ParsePost validates one raw post object, applying per-field fallbacks
// for volatile attributes.
func ParsePost(raw json.RawMessage) ParseResult {
	var rp rawPost
	if err := json.Unmarshal(raw, &rp); err != nil {
		return ParseResult{Outcome: ParseRejected, Reason: "malformed post object"}
	}
	if rp.ID == "" {
		return ParseResult{Outcome: ParseRejected, Reason: "missing id"}
	}
	if rp.Title == "" {
		return ParseResult{Outcome: ParseRejected, Reason: "missing title"}
	}

	defaulted := false

	author := rp.Author
	if author == "" {
		author = "[deleted]"
		defaulted = true
	}

	created, ok := parseCreatedUTC(rp.CreatedUTC)
	if !ok {
		created = float64(time.Now().Unix())
		defaulted = true
	}

	score := 0
	if rp.Score != nil {
		score = *rp.Score
	} else {
		defaulted = true
	}

	comments := 0
	if rp.NumComments != nil {
		comments = *rp.NumComments
	} else {
		defaulted = true
	}

	flair := ""
	if rp.Flair != nil {
		flair = *rp.Flair
	}

	isSelf := true
	if rp.IsSelf != nil {
		isSelf = *rp.IsSelf
	}

	over18 := false
	if rp.Over18 != nil {
		over18 = *rp.Over18
	}

	post := model.Post{
		ID:          rp.ID,
		Title:       rp.Title,
		Author:      author,
		Subreddit:   rp.Subreddit,
		Permalink:   rp.Permalink,
		URL:         rp.URL,
		SelfText:    rp.SelfText,
		CreatedUTC:  created,
		Score:       score,
		NumComments: comments,
		Flair:       flair,
		IsSelf:      isSelf,
		Over18:      over18,
	}

	if defaulted {
		return ParseResult{Outcome: ParseDefaulted, Post: post}
	}
	return ParseResult{Outcome: ParseOK, Post: post}
}

// parseCreatedUTC accepts the timestamp as a JSON number or a numeric
// string, both of which appear in the wild.
func parseCreatedUTC(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}
