// Package seism implements the seismology bulletin source: an HTML-table
// and detail-page scraping collector feeding a (date,id) min-heap buffer,
// and a six-field equality verifier (spec.md §4.5).
package seism

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// Row is one row of the summary table: its detail-page href.
type Row struct {
	DetailHref string
}

// ParseSummaryRows extracts the href of every <tr><td><a href=...> in the
// summary table, skipping the header row and any row that does not have
// exactly 8 cells, treated as a pure
// bytes-to-typed-records collaborator per spec.md's Non-goals.
func ParseSummaryRows(body []byte) ([]Row, error) {
	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parsing seism summary html: %w", err)
	}
	var trs [][]*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "tr" {
			trs = append(trs, findAll(n, "td"))
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	if len(trs) <= 1 {
		return nil, fmt.Errorf("seism summary table has no data rows")
	}

	rows := make([]Row, 0, len(trs)-1)
	for _, tds := range trs[1:] {
		if len(tds) != 8 {
			continue
		}
		href, ok := findHref(tds[0])
		if !ok {
			continue
		}
		rows = append(rows, Row{DetailHref: href})
	}
	return rows, nil
}

// DetailFields extracts the six canonical fields from a detail page,
// expecting exactly 14 <td> cells per spec.md §4.5.
func DetailFields(body []byte) (date, lat, long, depth, magnitude string, err error) {
	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return "", "", "", "", "", fmt.Errorf("parsing seism detail html: %w", err)
	}
	tds := findAll(doc, "td")
	if len(tds) != 14 {
		return "", "", "", "", "", fmt.Errorf("seism detail page has %d td cells, want 14", len(tds))
	}
	date = text(tds[3])
	lat = text(tds[5])
	long = text(tds[7])
	depth = firstToken(text(tds[9]))
	magnitude = firstToken(text(tds[11]))
	return date, lat, long, depth, magnitude, nil
}

func findAll(n *html.Node, tag string) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == tag {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func findHref(n *html.Node) (string, bool) {
	for _, a := range findAll(n, "a") {
		for _, attr := range a.Attr {
			if attr.Key == "href" {
				return attr.Val, true
			}
		}
	}
	return "", false
}

func text(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}

func firstToken(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// IDFromHref extracts the id from a detail-page href of the form
// ".../{id}.html".
func IDFromHref(href string) string {
	base := href
	if idx := strings.LastIndex(base, "/"); idx >= 0 {
		base = base[idx+1:]
	}
	return strings.TrimSuffix(base, ".html")
}
