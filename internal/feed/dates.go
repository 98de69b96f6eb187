package feed

import (
	"strings"
	"time"
)

// pubDateLayouts covers the formats feeds actually emit: RFC 3339 (Atom),
// RFC 1123/822 variants (RSS), and a few bare date/time shapes.
var pubDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2 Jan 2006 15:04:05 -0700",
	"2 Jan 2006 15:04:05 MST",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2 Jan 2006",
}

// NormalizePubDate turns a raw feed date into (instant, date-only). The
// primary path is a permissive calendar parse returning the instant. On
// failure a token heuristic runs so every entry still gets an orderable
// date: split on "-" then "/", and if the first three tokens are numeric,
// emit them zero-padded as Y-M-D. Token ranges are deliberately not
// validated ("2024-13-40" passes through as-is). If no separator yields
// three numeric tokens, the current UTC date is used. Empty input yields
// (nil, "").
func NormalizePubDate(raw string, now time.Time) (*time.Time, string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ""
	}
	for _, layout := range pubDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, ""
		}
	}
	return nil, fallbackDate(raw, now)
}

func fallbackDate(raw string, now time.Time) string {
	for _, sep := range []string{"-", "/"} {
		if !strings.Contains(raw, sep) {
			continue
		}
		parts := strings.Split(raw, sep)
		if len(parts) < 3 {
			continue
		}
		tokens := make([]string, 3)
		numeric := true
		for i := 0; i < 3; i++ {
			tok := strings.TrimSpace(parts[i])
			if !isDigits(tok) {
				numeric = false
				break
			}
			tokens[i] = zeroPad(tok)
		}
		if numeric {
			return tokens[0] + "-" + tokens[1] + "-" + tokens[2]
		}
	}
	return now.UTC().Format("2006-01-02")
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func zeroPad(s string) string {
	if len(s) >= 2 {
		return s
	}
	return "0" + s
}
