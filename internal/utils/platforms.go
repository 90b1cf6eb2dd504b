package utils

import (
	"strings"
)

// ParsePlatforms parses a comma-separated platform list into a normalized
// slice of "os/arch" pairs. Entries that are empty or not in os/arch form
// are dropped.
func ParsePlatforms(s string) []string {
	platforms := make([]string, 0)

	for _, p := range strings.Split(s, ",") {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}

		parts := strings.Split(p, "/")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			continue
		}

		platforms = append(platforms, p)
	}

	return platforms
}
