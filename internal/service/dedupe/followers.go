package dedupe

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var followerToken = regexp.MustCompile(`(\d+(?:,\d{3})*(?:\.\d+)?)([kKmMbB])?`)

var followerMultipliers = map[string]float64{
	"":  1,
	"k": 1e3,
	"m": 1e6,
	"b": 1e9,
}

// NormalizeFollowers converts a human-readable follower count ("622K",
// "1.2M", "253K IG / 487K X") into an integer. Composite strings yield the
// largest count they mention. Dashes, empty and unparseable input yield 0.
func NormalizeFollowers(raw string) int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "—" || raw == "-" || raw == "–" {
		return 0
	}

	var best int64
	for _, match := range followerToken.FindAllStringSubmatch(raw, -1) {
		number, err := strconv.ParseFloat(strings.ReplaceAll(match[1], ",", ""), 64)
		if err != nil {
			continue
		}
		value := number * followerMultipliers[strings.ToLower(match[2])]
		if math.IsNaN(value) || math.IsInf(value, 0) {
			continue
		}
		var n int64
		if value >= math.MaxInt64 {
			n = math.MaxInt64
		} else {
			n = int64(math.Round(value))
		}
		if n > best {
			best = n
		}
	}
	return best
}
