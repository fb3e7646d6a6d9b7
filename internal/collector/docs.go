package collector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"basegraph.app/radar/common/logger"
	"basegraph.app/radar/core/config"
	"basegraph.app/radar/internal/model"
)

const (
	defaultDocSelector = "main"
	docContentLimit    = 12000
)

// Docs snapshots tracked documentation pages, one item per page. The item ID
// depends only on the URL so a retitled page stays the same item; unchanged
// pages are filtered later by novelty detection.
type Docs struct {
	Base
	cfg    config.DocsConfig
	client *http.Client
}

func NewDocs(cfg config.DocsConfig, timeout time.Duration, opts Options) *Docs {
	return &Docs{
		Base:   newBase("docs", model.SourceDocs),
		cfg:    cfg,
		client: opts.client(timeout),
	}
}

func (d *Docs) Collect(ctx context.Context) (*Result, error) {
	start := time.Now()

	var (
		candidates []*model.CollectedItem
		errs       []string
	)
	for _, page := range d.cfg.Pages {
		item, err := d.fetchPage(ctx, page)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			errs = append(errs, fmt.Sprintf("%s: %s", page.URL, logger.Truncate(err.Error(), 200)))
			continue
		}
		candidates = append(candidates, item)
	}

	if len(d.cfg.Pages) > 0 && len(errs) == len(d.cfg.Pages) {
		return nil, fmt.Errorf("every page failed: %s", strings.Join(errs, "; "))
	}

	return d.finish(ctx, start, candidates, errs), nil
}

func (d *Docs) fetchPage(ctx context.Context, page config.DocPage) (*model.CollectedItem, error) {
	doc, err := getDocument(ctx, d.client, page.URL)
	if err != nil {
		return nil, err
	}

	title := page.Name
	if title == "" {
		title = pageTitle(doc)
	}

	text := pageText(doc, page.Selector)
	if text == "" {
		return nil, errors.New("no content found")
	}

	sum := sha256.Sum256([]byte(text))
	content := model.Truncate(text, docContentLimit)

	item := model.NewItem(model.SourceDocs, page.URL, title, content)
	item.ID = model.ItemID(model.SourceDocs, page.URL, "")
	item.Summary = model.Truncate(text, 500)
	item.Metadata = map[string]any{
		"page":         page.Name,
		"content_hash": hex.EncodeToString(sum[:])[:16],
		"length":       len([]rune(text)),
	}
	return item, nil
}

func pageTitle(doc *goquery.Document) string {
	if h1 := collapse(doc.Find("h1").First().Text()); h1 != "" {
		return h1
	}
	return collapse(doc.Find("title").First().Text())
}

// pageText extracts the readable text under selector, falling back to
// article and then body when the selector matches nothing.
func pageText(doc *goquery.Document, selector string) string {
	doc.Find("script, style, nav, footer, header, noscript").Remove()

	if selector == "" {
		selector = defaultDocSelector
	}
	for _, sel := range []string{selector, "article", "body"} {
		node := doc.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		if text := collapse(node.Text()); text != "" {
			return text
		}
	}
	return ""
}
