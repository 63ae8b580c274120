package catalog

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"
)

// nameEntry is one element of a genre or keyword list: {"id": 28, "name": "Action"}.
type nameEntry struct {
	Name string `json:"name"`
}

// Python-literal lists quote names with either ' or " depending on content.
var nameFieldRe = regexp.MustCompile(`['"]name['"]\s*:\s*(?:'((?:[^'\\]|\\.)*)'|"((?:[^"\\]|\\.)*)")`)

// ParseNames extracts the name fields from a serialized list of {name}
// records. Both JSON and Python-literal quoting are accepted. An absent value
// yields (nil, true); malformed input yields (nil, false) so callers can
// degrade to an empty list explicitly.
func ParseNames(raw string) ([]string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "nan") {
		return nil, true
	}
	if !strings.HasPrefix(raw, "[") || !strings.HasSuffix(raw, "]") {
		return nil, false
	}

	var entries []nameEntry
	if err := json.Unmarshal([]byte(raw), &entries); err == nil {
		return collectNames(entries), true
	}

	body := strings.TrimSpace(raw[1 : len(raw)-1])
	if body == "" {
		return nil, true
	}

	matches := nameFieldRe.FindAllStringSubmatch(body, -1)
	if len(matches) == 0 || len(matches) != strings.Count(body, "{") {
		return nil, false
	}
	entries = entries[:0]
	for _, m := range matches {
		name := m[1]
		if name == "" {
			name = m[2]
		}
		entries = append(entries, nameEntry{Name: unescape(name)})
	}
	return collectNames(entries), true
}

func collectNames(entries []nameEntry) []string {
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if n := strings.TrimSpace(e.Name); n != "" {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		return nil
	}
	return names
}

func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	r := strings.NewReplacer(`\'`, `'`, `\"`, `"`, `\\`, `\`)
	return r.Replace(s)
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"01/02/2006",
	"2006-01",
	"2006",
}

// ParseYear derives the release year from a release date. ok is false when no
// known layout matches.
func ParseYear(date string) (year int, ok bool) {
	date = strings.TrimSpace(date)
	if date == "" {
		return 0, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, date); err == nil {
			return t.Year(), true
		}
	}
	return 0, false
}
