package calendar

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/pkg/errors"
)

// Fetcher retrieves raw feed text for a subscription. How the text is
// obtained is the transport's business; the engine only parses it.
type Fetcher interface {
	Fetch(ctx context.Context, sub Subscription) ([]byte, error)
}

// feedFetcher is the default Fetcher: an HTTP GET for remote
// subscriptions and a plain file read for local ones.
type feedFetcher struct {
	client *http.Client
}

var _ Fetcher = (*feedFetcher)(nil)

// NewFetcher returns the default feed transport.
func NewFetcher() Fetcher {
	return &feedFetcher{
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (f *feedFetcher) Fetch(ctx context.Context, sub Subscription) ([]byte, error) {
	if sub.Kind == SubscriptionLocal {
		data, err := os.ReadFile(sub.Path)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read calendar file")
		}
		return data, nil
	}
	return f.fetchRemote(ctx, sub.URL)
}

func (f *feedFetcher) fetchRemote(ctx context.Context, url string) ([]byte, error) {
	r, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	resp, err := f.client.Do(r)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %v", resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read feed body")
	}
	return data, nil
}
