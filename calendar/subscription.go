package calendar

import "time"

// SubscriptionKind says where a subscription's feed text comes from.
type SubscriptionKind string

const (
	// SubscriptionRemote fetches feed text over HTTP.
	SubscriptionRemote SubscriptionKind = "remote"
	// SubscriptionLocal reads feed text from a file on disk.
	SubscriptionLocal SubscriptionKind = "local"
)

// Subscription describes one tracked calendar feed. The scheduler owns
// LastFetchedAt and LastError; everything else comes from settings.
type Subscription struct {
	ID   string
	Name string
	Kind SubscriptionKind
	// URL locates remote feeds; Path locates local ones.
	URL  string
	Path string

	Enabled bool
	// RefreshMinutes is the refresh interval. It also bounds how long
	// the subscription's cached events stay valid.
	RefreshMinutes int

	LastFetchedAt time.Time
	LastError     string
}

// DefaultRefreshMinutes applies when a subscription does not set an
// interval of its own.
const DefaultRefreshMinutes = 60

// RefreshInterval returns the effective refresh interval. Unset and
// negative values take the default.
func (s Subscription) RefreshInterval() time.Duration {
	m := s.RefreshMinutes
	if m <= 0 {
		m = DefaultRefreshMinutes
	}
	return time.Duration(m) * time.Minute
}

// Source returns the subscription's locator for logs.
func (s Subscription) Source() string {
	if s.Kind == SubscriptionLocal {
		return s.Path
	}
	return s.URL
}
