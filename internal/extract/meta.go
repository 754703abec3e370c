package extract

import (
	"strings"

	"golang.org/x/net/html"
)

// pageMeta is what a fetched article page says about itself.
type pageMeta struct {
	ogTitle  string
	ogImage  string
	docTitle string
}

// parsePageMeta walks the page DOM once collecting og:title, og:image
// and the <title> element. Malformed HTML is tolerated; missing fields
// stay empty.
func parsePageMeta(pageHTML string) pageMeta {
	var meta pageMeta

	doc, err := html.Parse(strings.NewReader(pageHTML))
	if err != nil {
		return meta
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "meta":
				var property, content string
				for _, attr := range n.Attr {
					switch attr.Key {
					case "property":
						property = strings.ToLower(attr.Val)
					case "content":
						content = attr.Val
					}
				}
				if property == "og:title" && meta.ogTitle == "" {
					meta.ogTitle = strings.TrimSpace(content)
				} else if property == "og:image" && meta.ogImage == "" {
					meta.ogImage = strings.TrimSpace(content)
				}
			case "title":
				if meta.docTitle == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					meta.docTitle = strings.TrimSpace(n.FirstChild.Data)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return meta
}
