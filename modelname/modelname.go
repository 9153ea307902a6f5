// Package modelname condenses verbose model identifiers into short
// display labels such as "Opus 4" or "Sonnet 3.5".
package modelname

import (
	"strconv"
	"strings"
)

var families = []string{"Opus", "Sonnet", "Haiku"}

// Format returns a short display label for model, or model unchanged if
// no known family substring is found.
func Format(model string) string {
	lower := strings.ToLower(model)
	var family string
	for _, f := range families {
		if strings.Contains(lower, strings.ToLower(f)) {
			family = f
			break
		}
	}
	if family == "" {
		return model
	}

	version, ok := extractVersion(model)
	if !ok {
		return family
	}
	return family + " " + version
}

// extractVersion walks dash-separated parts of model looking for a
// version number: a part with exactly one '.' between two integers, or
// else the first bare integer part, optionally combined with a
// following integer part as "N.M" unless that following part is an
// 8-digit date, in which case only "N" is returned.
func extractVersion(model string) (string, bool) {
	parts := strings.Split(model, "-")

	for _, p := range parts {
		if isDotted(p) {
			return p, true
		}
	}

	for i, p := range parts {
		if !isInt(p) {
			continue
		}
		if i+1 < len(parts) && isInt(parts[i+1]) {
			next := parts[i+1]
			if len(next) == 8 {
				return p, true
			}
			return p + "." + next, true
		}
		return p, true
	}
	return "", false
}

func isInt(s string) bool {
	if s == "" {
		return false
	}
	_, err := strconv.Atoi(s)
	return err == nil
}

func isDotted(s string) bool {
	idx := strings.Index(s, ".")
	if idx <= 0 || idx == len(s)-1 {
		return false
	}
	if strings.Count(s, ".") != 1 {
		return false
	}
	left, right := s[:idx], s[idx+1:]
	return isInt(left) && isInt(right)
}
