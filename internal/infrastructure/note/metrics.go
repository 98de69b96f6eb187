package note

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/Liyracat/tool-rss-reader/internal/domain"
)

// fullWidthPeriod is the sentence terminator counted across paragraphs.
const fullWidthPeriod = "。"

// computeMetrics counts structure strictly inside the article body region.
//
// The paragraph set is: paragraphs not nested in a list or blockquote,
// plus paragraphs inside list items, plus paragraphs inside a
// figure/blockquote wrapper; each paragraph participates once even when
// several rules match it. Character counting only sees text nodes whose
// immediate parent is in a small inline whitelist, so text inside nested
// block structure is never counted twice.
func computeMetrics(body *goquery.Selection, hasCTA int) domain.ArticleMetrics {
	m := domain.ArticleMetrics{HasPurchaseCTA: hasCTA}

	m.H2Count = body.Find("h2").Length()
	m.H3Count = body.Find("h3").Length()
	m.ImgCount = body.Find("figure > a > img").Length()
	embedCount := body.Find("figure > div > div > iframe").Length()

	topParagraphs := body.Find("p").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return !hasAncestor(s.Nodes[0], "ul", "ol", "blockquote")
	})
	quoteParagraphs := body.Find("figure > blockquote > p")
	ulItems := body.Find("ul > li")
	olItems := body.Find("ol > li")

	chars := 0
	topParagraphs.Each(func(_ int, s *goquery.Selection) {
		chars += allowedTextLen(s.Nodes[0], "p", "s", "a")
	})
	ulItems.Each(func(_ int, s *goquery.Selection) {
		chars += allowedTextLen(s.Nodes[0], "li", "s", "a")
	})
	olItems.Each(func(_ int, s *goquery.Selection) {
		chars += allowedTextLen(s.Nodes[0], "li", "s", "a")
	})
	quoteParagraphs.Each(func(_ int, s *goquery.Selection) {
		chars += allowedTextLen(s.Nodes[0], "p", "s", "a")
	})
	m.TotalCharacterCount = chars

	paragraphs := uniqueNodes(
		topParagraphs,
		body.Find("ul > li p"),
		body.Find("ol > li p"),
		quoteParagraphs,
	)
	m.PCount = len(paragraphs)

	for _, p := range paragraphs {
		m.BrInPCount += countTag(p, "br")
		m.PeriodCount += strings.Count(nodeText(p), fullWidthPeriod)
	}

	linkCount := embedCount
	topParagraphs.Each(func(_ int, s *goquery.Selection) {
		linkCount += countTag(s.Nodes[0], "a")
	})
	linkCount += body.Find("ul > li a").Length()
	linkCount += body.Find("ol > li a").Length()
	quoteParagraphs.Each(func(_ int, s *goquery.Selection) {
		linkCount += countTag(s.Nodes[0], "a")
	})
	m.LinkCount = linkCount

	return m
}

// uniqueNodes flattens selections into a node list deduplicated by
// element identity, preserving first-seen order.
func uniqueNodes(selections ...*goquery.Selection) []*html.Node {
	seen := map[*html.Node]struct{}{}
	var out []*html.Node
	for _, sel := range selections {
		for _, n := range sel.Nodes {
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			out = append(out, n)
		}
	}
	return out
}

func hasAncestor(n *html.Node, names ...string) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type != html.ElementNode {
			continue
		}
		for _, name := range names {
			if p.Data == name {
				return true
			}
		}
	}
	return false
}

// allowedTextLen sums the rune length of descendant text nodes whose
// immediate parent element is in the whitelist.
func allowedTextLen(n *html.Node, allowed ...string) int {
	allowedSet := map[string]struct{}{}
	for _, a := range allowed {
		allowedSet[a] = struct{}{}
	}
	total := 0
	var walk func(*html.Node)
	walk = func(cur *html.Node) {
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode && cur.Type == html.ElementNode {
				if _, ok := allowedSet[cur.Data]; ok {
					total += utf8.RuneCountInString(c.Data)
				}
			}
			walk(c)
		}
	}
	walk(n)
	return total
}

// countTag counts descendant elements with the given name.
func countTag(n *html.Node, name string) int {
	count := 0
	var walk func(*html.Node)
	walk = func(cur *html.Node) {
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.Data == name {
				count++
			}
			walk(c)
		}
	}
	walk(n)
	return count
}

// nodeText concatenates every descendant text node.
func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(cur *html.Node) {
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				sb.WriteString(c.Data)
			}
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
