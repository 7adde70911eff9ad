package results

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// FillReport describes the outcome of FillResults.
type FillReport struct {
	Body      string
	UsedTable bool
	Matched   []string
	Unmatched []string
}

// FillResults writes values into the result column of the first table of
// body, leaving every other part of the body untouched. A value is matched
// to a row by its exact label, its normalized key, or a case-insensitive
// label comparison. Bodies without a table are replaced by one
// "key: value" line per result.
func FillResults(body string, values map[string]string) (FillReport, error) {
	keys := sortedKeys(values)

	if hasTable(body) {
		nodes, err := parseFragment(body)
		if err != nil {
			return FillReport{}, err
		}
		if table := findTable(nodes); table != nil {
			return fillTable(nodes, table, values, keys)
		}
	}

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %s", k, values[k]))
	}
	return FillReport{Body: strings.Join(lines, "\n"), Matched: keys}, nil
}

func fillTable(nodes []*html.Node, table *html.Node, values map[string]string, keys []string) (FillReport, error) {
	byLabel := make(map[string]string, len(values))
	byKey := make(map[string]string, len(values))
	sourceOf := make(map[string]string, len(values))
	for _, k := range keys {
		label := strings.TrimSpace(k)
		byLabel[label] = values[k]
		byKey[NormalizeKey(k)] = values[k]
		sourceOf[label] = k
		sourceOf[NormalizeKey(k)] = k
	}

	used := map[string]struct{}{}
	for _, row := range rows(table) {
		cells := cellsOf(row)
		if len(cells) < 2 {
			continue
		}
		label := cleanText(cells[0])
		if label == "" {
			continue
		}

		value, source, ok := lookup(label, byLabel, byKey, sourceOf, keys)
		if !ok {
			continue
		}
		setText(cells[1], value)
		used[source] = struct{}{}
	}

	var buf bytes.Buffer
	for _, n := range nodes {
		if err := html.Render(&buf, n); err != nil {
			return FillReport{}, fmt.Errorf("render body: %w", err)
		}
	}

	report := FillReport{Body: buf.String(), UsedTable: true}
	for _, k := range keys {
		if _, ok := used[k]; ok {
			report.Matched = append(report.Matched, k)
		} else {
			report.Unmatched = append(report.Unmatched, k)
		}
	}
	return report, nil
}

func lookup(label string, byLabel, byKey, sourceOf map[string]string, keys []string) (string, string, bool) {
	if v, ok := byLabel[label]; ok {
		return v, sourceOf[label], true
	}
	norm := NormalizeKey(label)
	if v, ok := byKey[norm]; ok && norm != "" {
		return v, sourceOf[norm], true
	}
	for _, k := range keys {
		if strings.EqualFold(strings.TrimSpace(k), label) {
			return byLabel[strings.TrimSpace(k)], k, true
		}
	}
	return "", "", false
}

func hasTable(body string) bool {
	return strings.Contains(strings.ToLower(body), "<table")
}

func parseFragment(body string) ([]*html.Node, error) {
	parent := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(body), parent)
	if err != nil {
		return nil, fmt.Errorf("parse body: %w", err)
	}
	return nodes, nil
}

func findTable(nodes []*html.Node) *html.Node {
	for _, n := range nodes {
		if t := findElement(n, atom.Table); t != nil {
			return t
		}
	}
	return nil
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

// rows returns the <tr> elements of table, skipping nested tables.
func rows(table *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			switch c.DataAtom {
			case atom.Tr:
				out = append(out, c)
			case atom.Table:
			default:
				walk(c)
			}
		}
	}
	walk(table)
	return out
}

// cellsOf returns the <td> children of a row. Header cells are ignored.
func cellsOf(row *html.Node) []*html.Node {
	var cells []*html.Node
	for c := row.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Td {
			cells = append(cells, c)
		}
	}
	return cells
}

func cleanText(n *html.Node) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	text := strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
	// Escaped markup pasted into a cell is not a value.
	if strings.ContainsAny(text, "<>") || strings.Contains(strings.ToLower(text), "style=") {
		return ""
	}
	return text
}

func setText(cell *html.Node, value string) {
	for c := cell.FirstChild; c != nil; {
		next := c.NextSibling
		cell.RemoveChild(c)
		c = next
	}
	cell.AppendChild(&html.Node{Type: html.TextNode, Data: value})
}
