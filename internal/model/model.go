// Package model defines the domain types used across the application.
package model

// Post represents a single Reddit submission fetched from the listing API.
// Posts are never mutated after parsing; identity is the ID field.
type Post struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Author      string  `json:"author"`
	Subreddit   string  `json:"subreddit"`
	Permalink   string  `json:"permalink"`
	URL         string  `json:"url,omitempty"`
	SelfText    string  `json:"selftext,omitempty"`
	CreatedUTC  float64 `json:"created_utc"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	Flair       string  `json:"link_flair_text,omitempty"`
	IsSelf      bool    `json:"is_self"`
	Over18      bool    `json:"over_18"`
}

// QuietHours defines a local-time window during which notifications are
// suppressed. Start and End use "HH:MM"; the window may cross midnight.
type QuietHours struct {
	Enabled bool   `json:"enabled"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

// Ruleset is the user-editable watch configuration. It lives in the
// durable store under the "config" key and is re-read every poll cycle.
type Ruleset struct {
	Subreddits      []string   `json:"subreddits"`
	Keywords        []string   `json:"keywords"`
	PoisonKeywords  []string   `json:"poisonKeywords"`
	PollingInterval int        `json:"pollingInterval"`
	AudioEnabled    bool       `json:"audioEnabled"`
	QuietHours      QuietHours `json:"quietHours"`
	WebhookURL      string     `json:"webhookUrl,omitempty"`
}

// Polling interval bounds in seconds.
const (
	MinPollingInterval     = 10
	MaxPollingInterval     = 300
	DefaultPollingInterval = 30
)

// DefaultRuleset returns the ruleset used when nothing has been stored yet.
func DefaultRuleset() Ruleset {
	return Ruleset{
		Subreddits:      []string{},
		Keywords:        []string{},
		PoisonKeywords:  []string{},
		PollingInterval: DefaultPollingInterval,
		AudioEnabled:    true,
		QuietHours: QuietHours{
			Enabled: false,
			Start:   "22:00",
			End:     "08:00",
		},
	}
}

// Interval returns the polling interval in seconds, clamped to the
// allowed range. Callers must use this instead of PollingInterval raw.
func (r Ruleset) Interval() int {
	switch {
	case r.PollingInterval < MinPollingInterval:
		return MinPollingInterval
	case r.PollingInterval > MaxPollingInterval:
		return MaxPollingInterval
	default:
		return r.PollingInterval
	}
}

// RateLimitState mirrors the x-ratelimit-* response headers of the
// Reddit API. Refreshed passively from every response that carries them.
// ObservedAtUnix records when the headers were last seen, so a quota
// window that has since expired can be detected without a request.
type RateLimitState struct {
	Remaining      float64 `json:"remaining"`
	Reset          float64 `json:"reset"`
	Used           float64 `json:"used"`
	ObservedAtUnix int64   `json:"observedAtUnix,omitempty"`
}

// PollerState names the orchestrator lifecycle states.
type PollerState string

// Orchestrator states.
const (
	StateStopped PollerState = "stopped"
	StateIdle    PollerState = "idle"
	StateRunning PollerState = "running"
)

// Status is a read-only snapshot of the poller exposed by the control API.
type Status struct {
	State             PollerState `json:"state"`
	ConsecutiveErrors int         `json:"consecutiveErrors"`
	SeenCount         int         `json:"seenCount"`
	LastCycleUnix     int64       `json:"lastCycleUnix"`
}
