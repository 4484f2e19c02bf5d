package tools

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"
)

// newsRSS is the decode target for a standard RSS 2.0 feed. No ecosystem
// RSS/Atom parsing library appears anywhere in the example pack retrieved
// for this spec (see DESIGN.md); stdlib encoding/xml is used directly,
// mirroring the original's xml.etree.ElementTree usage.
type newsRSS struct {
	Channel struct {
		Items []struct {
			Title       string `xml:"title"`
			Description string `xml:"description"`
			PubDate     string `xml:"pubDate"`
		} `xml:"item"`
	} `xml:"channel"`
}

// newsFeedURLs mirrors external_tools.py's RSS_URLS table.
var newsFeedURLs = map[string]string{
	"":             "https://www.tagesschau.de/infoservices/alle-meldungen-100~rss2.xml",
	"domestic":     "https://www.tagesschau.de/inland/index~rss2.xml",
	"international": "https://www.tagesschau.de/ausland/index~rss2.xml",
	"business":     "https://www.tagesschau.de/wirtschaft/index~rss2.xml",
	"sport":        "https://www.tagesschau.de/sport/index~rss2.xml",
}

var newsCategoryNames = map[string]string{
	"":             "Aktuelle",
	"domestic":     "Deutschland",
	"international": "Internationale",
	"business":     "Wirtschafts",
	"sport":        "Sport",
}

// NewsTool fetches current headlines from a tagesschau.de-style RSS feed.
// Grounded on external_tools.py's ExternalTools.get_news.
type NewsTool struct {
	client *http.Client
}

// NewNewsTool constructs a NewsTool with a bounded-timeout HTTP client,
// matching the original's aiohttp.ClientTimeout(total=5).
func NewNewsTool() *NewsTool {
	return &NewsTool{client: &http.Client{Timeout: 5 * time.Second}}
}

// Schema describes the get_news tool for LLM function-calling, matching
// external_tools.py's TOOL_DEFINITIONS shape (category enum, count 1-5).
func (n *NewsTool) Schema() Schema {
	return Schema{
		Name:        "get_news",
		Description: "Ruft aktuelle Nachrichten und Schlagzeilen von tagesschau.de ab. Nutze dieses Tool wenn der Nutzer nach aktuellen Nachrichten, Neuigkeiten, Schlagzeilen oder was in der Welt passiert fragt.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"category": map[string]any{
					"type":        "string",
					"description": "Optionale Kategorie: 'domestic' (Deutschland), 'international', 'business', 'sport'. Leer lassen fuer alle Nachrichten.",
					"enum":        []string{"", "domestic", "international", "business", "sport"},
				},
				"count": map[string]any{
					"type":        "integer",
					"description": "Anzahl der Nachrichten (1-5). Standard: 3",
					"default":     3,
				},
			},
			"required": []string{},
		},
	}
}

// Execute fetches and formats headlines. Args use string "category" and
// numeric "count" (floats after JSON decode), clamped to [1,5].
func (n *NewsTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	category, _ := args["category"].(string)
	count := 3
	if raw, ok := args["count"]; ok {
		switch v := raw.(type) {
		case float64:
			count = int(v)
		case int:
			count = v
		}
	}
	count = clampCount(count)

	url, ok := newsFeedURLs[category]
	if !ok {
		url = newsFeedURLs[""]
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return "Entschuldigung, ich konnte die Nachrichten gerade nicht abrufen.", nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "Entschuldigung, ich konnte die Nachrichten gerade nicht abrufen.", nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "Entschuldigung, ich konnte die Nachrichten gerade nicht verarbeiten.", nil
	}

	var feed newsRSS
	if err := xml.Unmarshal(body, &feed); err != nil {
		return "Entschuldigung, ich konnte die Nachrichten gerade nicht verarbeiten.", nil
	}

	return formatNewsFeed(feed, category, count), nil
}

// clampCount bounds a requested item count to [1,5], per spec.md §4.8.
func clampCount(count int) int {
	if count < 1 {
		return 1
	}
	if count > 5 {
		return 5
	}
	return count
}

// formatNewsFeed renders a decoded RSS feed into the plain-text summary
// handed back to the LLM, matching external_tools.py's get_news
// formatting (category header, numbered items, truncated descriptions).
func formatNewsFeed(feed newsRSS, category string, count int) string {
	if len(feed.Channel.Items) == 0 {
		return "Es gibt gerade keine aktuellen Nachrichten."
	}

	categoryName, ok := newsCategoryNames[category]
	if !ok {
		categoryName = newsCategoryNames[""]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "=== %s Nachrichten von tagesschau.de ===\n\n", categoryName)

	n := clampCount(count)
	if n > len(feed.Channel.Items) {
		n = len(feed.Channel.Items)
	}
	for i := 0; i < n; i++ {
		item := feed.Channel.Items[i]
		title := strings.TrimSpace(item.Title)
		desc := strings.TrimSpace(item.Description)
		if len(desc) > 150 {
			desc = desc[:150] + "..."
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, title)
		if desc != "" {
			fmt.Fprintf(&b, "   %s\n", desc)
		}
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

// holdingPhrases is the randomized holding-phrase pool retained from
// original_source's FETCHING_PHRASES, spoken by the state machine while a
// tool call is in flight so the caller hears continuous speech across
// the fetch latency.
var holdingPhrases = []string{
	"Lass mich das kurz fuer dich herausfinden...",
	"Moment, ich schau mal nach...",
	"Einen Augenblick, ich hole die Infos...",
	"Kurz warten, ich schaue nach...",
}

// RandomHoldingPhrase returns one holding phrase at random, matching
// original_source's get_fetching_phrase.
func RandomHoldingPhrase() string {
	return holdingPhrases[rand.Intn(len(holdingPhrases))]
}
