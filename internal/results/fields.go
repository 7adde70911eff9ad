package results

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/html"
)

// Field is one row of a result table, or one placeholder when the body has no table.
type Field struct {
	Key         string `json:"key"`
	Label       string `json:"label"`
	Value       string `json:"value"`
	Unit        string `json:"unit"`
	Reference   string `json:"reference"`
	Observation string `json:"observation"`
}

var (
	nonAlnum      = regexp.MustCompile(`[^a-z0-9]+`)
	placeholderRe = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)
)

// Labels of header rows that some templates write with <td> instead of <th>.
var headerLabels = map[string]struct{}{
	"parameter": {},
	"parâmetro": {},
	"parametro": {},
	"result":    {},
	"resultado": {},
}

// NormalizeKey lowercases a label and collapses every run of characters
// outside [a-z0-9] into a single underscore.
func NormalizeKey(label string) string {
	key := nonAlnum.ReplaceAllString(strings.ToLower(strings.TrimSpace(label)), "_")
	return strings.Trim(key, "_")
}

// Placeholders returns the distinct {{name}} markers of body in order of appearance.
func Placeholders(body string) []string {
	seen := map[string]struct{}{}
	var names []string
	for _, match := range placeholderRe.FindAllStringSubmatch(body, -1) {
		name := strings.TrimSpace(match[1])
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

// Render substitutes {{key}} markers with HTML-escaped values. Markers
// without a matching key are left in place.
func Render(body string, vars map[string]string) string {
	if len(vars) == 0 {
		return body
	}
	return placeholderRe.ReplaceAllStringFunc(body, func(marker string) string {
		name := strings.TrimSpace(placeholderRe.FindStringSubmatch(marker)[1])
		value, ok := vars[name]
		if !ok {
			return marker
		}
		return html.EscapeString(value)
	})
}

// ParseFields extracts the result table rows of body. When body has no
// table, one field per placeholder is returned instead.
func ParseFields(body string) ([]Field, error) {
	if hasTable(body) {
		nodes, err := parseFragment(body)
		if err != nil {
			return nil, err
		}
		if table := findTable(nodes); table != nil {
			fields := tableFields(table)
			if len(fields) > 0 {
				return fields, nil
			}
		}
	}

	var fields []Field
	for _, name := range Placeholders(body) {
		fields = append(fields, Field{Key: NormalizeKey(name), Label: name})
	}
	return fields, nil
}

func tableFields(table *html.Node) []Field {
	var fields []Field
	for _, row := range rows(table) {
		cells := cellsOf(row)
		if len(cells) < 3 {
			continue
		}
		label := cleanText(cells[0])
		if label == "" {
			continue
		}
		if _, header := headerLabels[strings.ToLower(label)]; header {
			continue
		}
		field := Field{
			Key:   NormalizeKey(label),
			Label: label,
			Value: cleanText(cells[1]),
			Unit:  cleanText(cells[2]),
		}
		if len(cells) > 3 {
			field.Reference = cleanText(cells[3])
		}
		if len(cells) > 4 {
			field.Observation = cleanText(cells[4])
		}
		fields = append(fields, field)
	}
	return fields
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
