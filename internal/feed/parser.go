package feed

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"studylog/internal/domain"
)

const (
	feedSuffix       = "/rss"
	feedAcceptHeader = "application/rss+xml, application/xml, text/xml"
	feedFetchTimeout = 20 * time.Second
)

// Parser fetches a blog's syndication document and extracts its latest entry.
type Parser struct {
	libParser *gofeed.Parser
	client    *http.Client
	log       *slog.Logger
}

func NewParser(log *slog.Logger) *Parser {
	return &Parser{
		libParser: gofeed.NewParser(),
		client:    &http.Client{Timeout: feedFetchTimeout},
		log:       log,
	}
}

// FetchLatest requests <blogURL>/rss and returns the first entry in document
// order. The feed's own ordering is trusted; no timestamp sorting happens.
func (p *Parser) FetchLatest(ctx context.Context, blogURL string) (*domain.ParsedPost, error) {
	endpoint := FeedEndpoint(blogURL)
	if endpoint == "" {
		return nil, &domain.FeedError{FeedURL: blogURL, Err: fmt.Errorf("blog URL is empty")}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &domain.FeedError{FeedURL: endpoint, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Accept", feedAcceptHeader)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &domain.FeedError{FeedURL: endpoint, Err: fmt.Errorf("fetch feed: %w", err)}
	}
	defer func() {
		if err = resp.Body.Close(); err != nil {
			p.log.WarnContext(ctx, "Failed to close response body",
				"error", err,
				"feedURL", endpoint)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, &domain.FeedError{
			FeedURL: endpoint,
			Err:     fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	parsed, err := p.libParser.Parse(resp.Body)
	if err != nil {
		return nil, &domain.FeedError{FeedURL: endpoint, Err: fmt.Errorf("parse feed: %w", err)}
	}

	if len(parsed.Items) == 0 {
		return nil, &domain.FeedError{FeedURL: endpoint, Err: fmt.Errorf("feed has no entries")}
	}

	return p.parseItem(ctx, endpoint, parsed.Items[0]), nil
}

func (p *Parser) parseItem(
	ctx context.Context,
	endpoint string,
	item *gofeed.Item,
) *domain.ParsedPost {
	// Prefer the full-content field; a feed that only carries a summary
	// still yields a usable post.
	content := strings.TrimSpace(item.Content)
	if content == "" {
		content = strings.TrimSpace(item.Description)
	}

	publishedAt := time.Now().UTC()
	if item.PublishedParsed != nil {
		publishedAt = *item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		publishedAt = *item.UpdatedParsed
	} else {
		p.log.WarnContext(ctx, "Feed entry has no publish date",
			"feedURL", endpoint,
			"itemTitle", strings.TrimSpace(item.Title))
	}

	link := strings.TrimSpace(item.Link)

	return &domain.ParsedPost{
		Title:       strings.TrimSpace(item.Title),
		URL:         link,
		Content:     content,
		PublishedAt: publishedAt,
		// The entry's canonical link doubles as the dedup key; a link
		// change re-ingests the post.
		GUID: link,
	}
}

// FeedEndpoint appends the conventional feed suffix to a blog URL.
func FeedEndpoint(blogURL string) string {
	blogURL = strings.TrimSpace(blogURL)
	if blogURL == "" {
		return ""
	}

	return strings.TrimSuffix(blogURL, "/") + feedSuffix
}
