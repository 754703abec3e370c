// Package extract turns raw article HTML into clean markdown.
//
// The chain mirrors what works in practice for messy feeds: trafilatura
// tuned for precision first, then a readability pass converted to
// markdown. Title and image fall back from feed-provided values to
// Open Graph metadata to the document title.
package extract

import (
	"errors"
	"net/url"
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	readability "github.com/go-shiori/go-readability"
	"github.com/markusmobius/go-trafilatura"
)

// MinHTMLLength is the floor below which inline encoded content and
// fetched pages are not worth extracting from. The slot filler uses the
// same threshold to decide whether an entry needs a page fetch at all.
const MinHTMLLength = 500

// ErrNoContent means no usable article body could be produced.
var ErrNoContent = errors.New("no extractable content")

// Input carries everything known about a candidate before extraction.
type Input struct {
	SourceURL   string
	RSSTitle    string
	RSSImageURL string

	// EncodedHTML is inline content:encoded from the feed entry;
	// PageHTML is the separately fetched article page. Encoded wins
	// when both are present and long enough.
	EncodedHTML string
	PageHTML    string

	// ForceH1Title prepends the resolved title as a level-1 heading.
	ForceH1Title bool
}

// Result is a fully resolved article body.
type Result struct {
	Title        string
	ImageURL     string
	BodyMarkdown string
	WordCount    int
}

var wordRe = regexp.MustCompile(`\w+`)

// Parse resolves an article from the available HTML sources, or
// ErrNoContent when every required step fails.
func Parse(in Input) (*Result, error) {
	var htmlSource string
	switch {
	case len(in.EncodedHTML) > MinHTMLLength:
		htmlSource = in.EncodedHTML
	case len(in.PageHTML) > MinHTMLLength:
		htmlSource = in.PageHTML
	default:
		return nil, ErrNoContent
	}

	md, err := markdownFromHTML(htmlSource, in.SourceURL)
	if err != nil {
		return nil, err
	}
	md = stripLeadingH1(md)

	// Page metadata is only available when the page was fetched
	var meta pageMeta
	if in.PageHTML != "" {
		meta = parsePageMeta(in.PageHTML)
	}

	title := strings.TrimSpace(in.RSSTitle)
	if title == "" {
		title = meta.ogTitle
	}
	if title == "" {
		title = meta.docTitle
	}
	if title == "" {
		title = "Untitled"
	}

	imageURL := strings.TrimSpace(in.RSSImageURL)
	if imageURL == "" {
		imageURL = meta.ogImage
	}

	if in.ForceH1Title {
		md = "# " + title + "\n\n" + strings.TrimSpace(md)
	}

	// Every article ends with a provenance footer
	md = strings.TrimSpace(md) + "\n\n---\n\nSource: " + in.SourceURL + "\n"

	return &Result{
		Title:        title,
		ImageURL:     imageURL,
		BodyMarkdown: md,
		WordCount:    countWords(md),
	}, nil
}

// markdownFromHTML runs the extraction chain: trafilatura with a
// precision focus, falling back to readability plus markdown
// conversion when it comes up empty.
func markdownFromHTML(rawHTML, sourceURL string) (string, error) {
	pageURL, _ := url.Parse(sourceURL)

	opts := trafilatura.Options{
		OriginalURL:   pageURL,
		Focus:         trafilatura.FavorPrecision,
		IncludeLinks:  true,
		IncludeImages: false,
	}
	if result, err := trafilatura.Extract(strings.NewReader(rawHTML), opts); err == nil &&
		result != nil && result.ContentNode != nil {
		if md, convErr := htmltomarkdown.ConvertNode(result.ContentNode); convErr == nil {
			if s := strings.TrimSpace(string(md)); s != "" {
				return s, nil
			}
		}
	}

	article, err := readability.FromReader(strings.NewReader(rawHTML), pageURL)
	if err != nil || strings.TrimSpace(article.Content) == "" {
		return "", ErrNoContent
	}
	md, err := htmltomarkdown.ConvertString(article.Content)
	if err != nil {
		return "", ErrNoContent
	}
	md = strings.TrimSpace(md)
	if md == "" {
		return "", ErrNoContent
	}
	return md, nil
}

// stripLeadingH1 removes a leading top-level heading so the extractor's
// own title line never duplicates the forced one.
func stripLeadingH1(md string) string {
	s := strings.TrimLeft(md, " \t\r\n")
	if strings.HasPrefix(s, "# ") {
		if _, rest, found := strings.Cut(s, "\n"); found {
			return strings.TrimLeft(rest, " \t\r\n")
		}
		return ""
	}
	return strings.TrimSpace(md)
}

func countWords(md string) int {
	return len(wordRe.FindAllString(md, -1))
}
