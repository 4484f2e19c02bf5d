package tools

import (
	"strings"
	"testing"
)

func sampleFeed(n int) newsRSS {
	var feed newsRSS
	for i := 0; i < n; i++ {
		feed.Channel.Items = append(feed.Channel.Items, struct {
			Title       string `xml:"title"`
			Description string `xml:"description"`
			PubDate     string `xml:"pubDate"`
		}{
			Title:       "Headline",
			Description: strings.Repeat("x", 200),
			PubDate:     "today",
		})
	}
	return feed
}

func TestFormatNewsFeedEmpty(t *testing.T) {
	got := formatNewsFeed(newsRSS{}, "", 3)
	if got != "Es gibt gerade keine aktuellen Nachrichten." {
		t.Fatalf("unexpected empty-feed message: %q", got)
	}
}

func TestFormatNewsFeedClampsCountToAvailableItems(t *testing.T) {
	feed := sampleFeed(2)
	got := formatNewsFeed(feed, "", 5)
	if strings.Count(got, "Headline") != 2 {
		t.Fatalf("expected 2 headlines, got:\n%s", got)
	}
}

func TestFormatNewsFeedTruncatesLongDescriptions(t *testing.T) {
	feed := sampleFeed(1)
	got := formatNewsFeed(feed, "", 1)
	if !strings.Contains(got, "...") {
		t.Fatalf("expected truncated description with ellipsis, got:\n%s", got)
	}
}

func TestFormatNewsFeedUsesCategoryHeader(t *testing.T) {
	feed := sampleFeed(1)
	got := formatNewsFeed(feed, "sport", 1)
	if !strings.Contains(got, "Sport Nachrichten") {
		t.Fatalf("expected sport category header, got:\n%s", got)
	}
}

func TestClampCountBounds(t *testing.T) {
	cases := map[int]int{-1: 1, 0: 1, 1: 1, 5: 5, 6: 5, 100: 5}
	for in, want := range cases {
		if got := clampCount(in); got != want {
			t.Errorf("clampCount(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestRandomHoldingPhraseReturnsNonEmpty(t *testing.T) {
	for i := 0; i < 10; i++ {
		if RandomHoldingPhrase() == "" {
			t.Fatalf("expected non-empty holding phrase")
		}
	}
}
