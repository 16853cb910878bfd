package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RuleList is a list of match or exclusion patterns. Inside the module and
// towards the browser it is a plain string array. The backend stores it as a
// JSON string whose content is a JSON array of strings, e.g.
// "[\"taobao.com\",\"tmall.com\"]"; EncodeRules and DecodeRules are the
// only conversions between the two forms. The platform API module writes
// with EncodeRules and reads with ParseStoredRules, which also accepts rows
// stored before the JSON form was enforced.
type RuleList []string

// Compact returns the rules with blank entries removed and surrounding
// whitespace trimmed.
func (r RuleList) Compact() RuleList {
	out := make(RuleList, 0, len(r))
	for _, rule := range r {
		if rule = strings.TrimSpace(rule); rule != "" {
			out = append(out, rule)
		}
	}
	return out
}

// EncodeRules serialises rules into their stored text form. A nil or empty
// list encodes as "[]".
func EncodeRules(r RuleList) (string, error) {
	if r == nil {
		r = RuleList{}
	}
	b, err := json.Marshal([]string(r))
	if err != nil {
		return "", fmt.Errorf("model: encode rules: %w", err)
	}
	return string(b), nil
}

// DecodeRules parses the stored text form. Empty text decodes to an empty
// list; anything that is not a JSON array of strings is an error.
func DecodeRules(text string) (RuleList, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return RuleList{}, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, fmt.Errorf("model: decode rules %q: %w", text, err)
	}
	if out == nil {
		out = []string{}
	}
	return RuleList(out), nil
}

// ParseStoredRules reads rule text the way stored rows are read back. A JSON
// array of strings is taken as is. Otherwise single quotes are turned into
// double quotes and the array form is tried again, and failing that the text
// is split on commas. legacy reports that the text was not in the JSON form.
func ParseStoredRules(text string) (rules RuleList, legacy bool) {
	if rules, err := DecodeRules(text); err == nil {
		return rules, false
	}
	trimmed := strings.TrimSpace(text)
	if rules, err := DecodeRules(strings.ReplaceAll(trimmed, "'", `"`)); err == nil {
		return rules, true
	}
	out := RuleList{}
	for _, part := range strings.Split(trimmed, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out, true
}
