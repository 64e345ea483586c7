package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/eleven-am/specter/internal/domain"
	"golang.org/x/net/html"
)

const (
	defaultFetchTimeout = 10 * time.Second
	defaultMaxChars     = 5000
	defaultMaxResults   = 5
	maxBodyBytes        = 4 << 20
	DefaultSearchURL    = "https://duckduckgo.com/html/"
)

type webTools struct {
	client    *http.Client
	searchURL string
}

func (w *webTools) get(ctx context.Context, target string, timeout time.Duration) (string, string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("User-Agent", "specter/1.0")

	resp, err := w.client.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", "", fmt.Errorf("http status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", "", err
	}
	return string(body), resp.Header.Get("Content-Type"), nil
}

func (w *webTools) fetch(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	target, ok := stringParam(params, "url")
	if !ok || target == "" {
		return domain.ToolFail("url is required"), nil
	}
	timeout := time.Duration(intParam(params, "timeout", int(defaultFetchTimeout/time.Second))) * time.Second
	maxChars := intParam(params, "max_chars", defaultMaxChars)

	body, contentType, err := w.get(ctx, target, timeout)
	if err != nil {
		return domain.ToolFail(err.Error()), nil
	}

	text := body
	if strings.Contains(strings.ToLower(body), "<html") || strings.Contains(contentType, "html") {
		text = htmlText(body)
	}
	text = strings.Join(strings.Fields(text), " ")
	return domain.ToolOK(truncateRunes(text, maxChars)), nil
}

func (w *webTools) search(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	query, ok := stringParam(params, "query")
	if !ok || strings.TrimSpace(query) == "" {
		return domain.ToolFail("query is required"), nil
	}
	maxResults := intParam(params, "max_results", defaultMaxResults)

	target := w.searchURL + "?" + url.Values{"q": {query}}.Encode()
	body, _, err := w.get(ctx, target, defaultFetchTimeout)
	if err != nil {
		return domain.ToolFail("search failed: " + err.Error()), nil
	}

	results := make([]string, 0, maxResults)
	for _, link := range htmlLinks(body) {
		if len(results) >= maxResults {
			break
		}
		if strings.Contains(link, "duckduckgo.com") {
			continue
		}
		results = append(results, link)
	}
	return domain.ToolOK(map[string]interface{}{
		"query":   query,
		"results": results,
	}), nil
}

// htmlText returns the visible text of a document, dropping script and style
// contents.
func htmlText(doc string) string {
	z := html.NewTokenizer(strings.NewReader(doc))
	var b strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.StartTagToken:
			name, _ := z.TagName()
			if tag := string(name); tag == "script" || tag == "style" {
				skip++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if tag := string(name); (tag == "script" || tag == "style") && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
				b.WriteByte(' ')
			}
		}
	}
}

func htmlLinks(doc string) []string {
	z := html.NewTokenizer(strings.NewReader(doc))
	var links []string
	seen := make(map[string]bool)
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return links
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		name, hasAttr := z.TagName()
		if string(name) != "a" || !hasAttr {
			continue
		}
		for {
			key, val, more := z.TagAttr()
			if string(key) == "href" {
				link := string(val)
				if (strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://")) && !seen[link] {
					seen[link] = true
					links = append(links, link)
				}
			}
			if !more {
				break
			}
		}
	}
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
