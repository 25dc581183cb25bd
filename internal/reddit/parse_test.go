package reddit

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/Sxientrie/reddit-hawk/internal/model"
)

func loadFixture(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read fixture %s: %v", path, err)
	}
	return data
}

func TestParseListing(t *testing.T) {
	body := loadFixture(t, "../../testdata/listing.json")

	posts, rejected := ParseListing(body)

	if rejected != 1 {
		t.Errorf("rejected = %d, want 1 (the post without an id)", rejected)
	}
	if len(posts) != 3 {
		t.Fatalf("parsed %d posts, want 3", len(posts))
	}

	want := model.Post{
		ID:          "1abcd1",
		Title:       "Looking to hire a Go developer for a short contract",
		Author:      "gopher_jane",
		Subreddit:   "forhire",
		Permalink:   "/r/forhire/comments/1abcd1/looking_to_hire/",
		URL:         "https://www.reddit.com/r/forhire/comments/1abcd1/looking_to_hire/",
		SelfText:    "Remote friendly, 3 month contract.",
		CreatedUTC:  1724990000,
		Score:       12,
		NumComments: 4,
		Flair:       "Hiring",
		IsSelf:      true,
		Over18:      false,
	}
	if diff := cmp.Diff(want, posts[0]); diff != "" {
		t.Errorf("first post mismatch (-want +got):\n%s", diff)
	}

	// Second post exercises the per-field fallbacks: missing author,
	// string timestamp, missing score and comment count.
	second := posts[1]
	if second.Author != "[deleted]" {
		t.Errorf("author = %q, want placeholder", second.Author)
	}
	if second.CreatedUTC != 1724990100 {
		t.Errorf("created_utc = %v, want parsed string value", second.CreatedUTC)
	}
	if second.Score != 0 || second.NumComments != 0 {
		t.Errorf("score/comments = %d/%d, want zero fallbacks", second.Score, second.NumComments)
	}
}

func TestParseListingMalformedEnvelope(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: "<html>rate limited</html>"},
		{name: "wrong shape", body: `{"error": 500}`},
		{name: "empty object", body: `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			posts, rejected := ParseListing([]byte(tt.body))
			if len(posts) != 0 || rejected != 0 {
				t.Errorf("got %d posts, %d rejected; want none", len(posts), rejected)
			}
		})
	}
}

func TestParsePost(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		wantOutcome ParseOutcome
	}{
		{
			name:        "complete post",
			raw:         `{"id":"x","title":"t","author":"a","created_utc":100,"score":1,"num_comments":0}`,
			wantOutcome: ParseOK,
		},
		{
			name:        "missing id rejects",
			raw:         `{"title":"t","author":"a","created_utc":100}`,
			wantOutcome: ParseRejected,
		},
		{
			name:        "missing title rejects",
			raw:         `{"id":"x","author":"a","created_utc":100}`,
			wantOutcome: ParseRejected,
		},
		{
			name:        "missing author defaults",
			raw:         `{"id":"x","title":"t","created_utc":100,"score":1,"num_comments":2}`,
			wantOutcome: ParseDefaulted,
		},
		{
			name:        "string timestamp parses",
			raw:         `{"id":"x","title":"t","author":"a","created_utc":"123.5","score":1,"num_comments":2}`,
			wantOutcome: ParseOK,
		},
		{
			name:        "garbage timestamp defaults",
			raw:         `{"id":"x","title":"t","author":"a","created_utc":"soon","score":1,"num_comments":2}`,
			wantOutcome: ParseDefaulted,
		},
		{
			name:        "not an object rejects",
			raw:         `"just a string"`,
			wantOutcome: ParseRejected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParsePost(json.RawMessage(tt.raw))
			if got.Outcome != tt.wantOutcome {
				t.Errorf("outcome = %v, want %v (reason %q)", got.Outcome, tt.wantOutcome, got.Reason)
			}
		})
	}
}

func TestParsePostGarbageTimestampFallsBackToNow(t *testing.T) {
	before := float64(time.Now().Unix())
	res := ParsePost(json.RawMessage(`{"id":"x","title":"t","author":"a","created_utc":"soon"}`))
	after := float64(time.Now().Unix())

	if res.Post.CreatedUTC < before || res.Post.CreatedUTC > after {
		t.Errorf("created_utc = %v, want within [%v, %v]", res.Post.CreatedUTC, before, after)
	}
}
