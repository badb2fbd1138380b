package writepath

import (
	"strings"
	"time"
)

func timeNow() time.Time {
	return time.Now().UTC()
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
