// Package feed contains the pure ingestion plumbing: link
// canonicalization and fingerprinting, publish-date normalization, and a
// format-agnostic entry extractor over a namespace-stripped XML tree.
package feed

import "strings"

// defaultCreatorTag is the author element looked up when a source does
// not configure one.
const defaultCreatorTag = "creatorName"

// Entry is one normalized feed entry, prior to filtering and persistence.
type Entry struct {
	Title       string
	Link        string
	PubDate     string
	CreatorName string
}

// CreatorLocator describes where an entry's author name lives. It is the
// structured form of the per-source "prefix:tag" setting; only the tag
// segment participates in matching, which is done on local names.
type CreatorLocator struct {
	Tag string
}

// ParseCreatorLocator parses the stored locator string. The portion after
// the first ":" is the tag segment; an empty result falls back to the
// default author element name.
func ParseCreatorLocator(raw string) CreatorLocator {
	s := raw
	if i := strings.Index(s, ":"); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSpace(s)
	if s == "" {
		s = defaultCreatorTag
	}
	return CreatorLocator{Tag: s}
}

// ExtractEntries yields the normalized entries of a parsed feed document.
// Containers are all elements named "item" (RSS); when a document has
// none, elements named "entry" (Atom) are used instead. Entries missing a
// title or link are dropped and counted in skipped. Nothing is persisted
// here.
func ExtractEntries(root *Node, loc CreatorLocator) (entries []Entry, skipped int) {
	containers := root.Descendants("item")
	if len(containers) == 0 {
		containers = root.Descendants("entry")
	}
	for _, c := range containers {
		e := Entry{
			Title:       childText(c, "title"),
			Link:        childText(c, "link"),
			PubDate:     pubDateOf(c),
			CreatorName: creatorNameOf(c, loc),
		}
		if e.Title == "" || e.Link == "" {
			skipped++
			continue
		}
		entries = append(entries, e)
	}
	return entries, skipped
}

// pubDateOf picks the first populated date child in RSS-then-Atom
// priority order.
func pubDateOf(entry *Node) string {
	for _, name := range []string{"pubDate", "published", "updated"} {
		if v := childText(entry, name); v != "" {
			return v
		}
	}
	return ""
}

// childText scans direct children with the given local name and returns
// the first non-empty text; an Atom-style self-closing element yields its
// href attribute instead.
func childText(n *Node, name string) string {
	for _, c := range n.Children {
		if c.Name != name {
			continue
		}
		if c.Text != "" {
			return c.Text
		}
		if href := strings.TrimSpace(c.Attr("href")); href != "" {
			return href
		}
	}
	return ""
}

// creatorNameOf resolves the author through the locator: the matching
// child's own text, else a nested "name" child, else a "name" attribute.
func creatorNameOf(entry *Node, loc CreatorLocator) string {
	for _, c := range entry.Children {
		if c.Name != loc.Tag {
			continue
		}
		if c.Text != "" {
			return c.Text
		}
		if nested := childText(c, "name"); nested != "" {
			return nested
		}
		if attr := strings.TrimSpace(c.Attr("name")); attr != "" {
			return attr
		}
	}
	return ""
}
