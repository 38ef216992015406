package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys are the valid keys of each config section.
var knownKeys = map[string][]string{
	"store": {
		"backend", "path", "url", "token", "poll_interval",
		"redis_addr", "redis_password", "redis_db",
	},
	"sync":    {"doc_path", "staleness_threshold", "resubscribe_backoff"},
	"session": {"role"},
	"server":  {"listen", "writes_per_second", "write_burst"},
	"logging": {"log_level", "log_format"},
}

// knownSections is the sorted section list for suggestions.
var knownSections = func() []string {
	out := make([]string, 0, len(knownKeys))
	for s := range knownKeys {
		out = append(out, s)
	}

	slices.Sort(out)

	return out
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error with "did you mean?" suggestions for each unknown key.
func checkUnknownKeys(md *toml.MetaData) error {
	var errs []error

	for _, key := range md.Undecoded() {
		errs = append(errs, unknownKeyError(key))
	}

	return errors.Join(errs...)
}

func unknownKeyError(key toml.Key) error {
	if len(key) == 1 {
		if s := closestMatch(key[0], knownSections); s != "" {
			return fmt.Errorf("unknown config key %q: did you mean section [%s]?", key[0], s)
		}

		return fmt.Errorf("unknown config key %q: settings belong in a section such as [store]", key[0])
	}

	section, field := key[0], key[len(key)-1]

	keys, ok := knownKeys[section]
	if !ok {
		if s := closestMatch(section, knownSections); s != "" {
			return fmt.Errorf("unknown config section [%s]: did you mean [%s]?", section, s)
		}

		return fmt.Errorf("unknown config section [%s]", section)
	}

	if s := closestMatch(field, keys); s != "" {
		return fmt.Errorf("unknown config key %q in [%s]: did you mean %q?", field, section, s)
	}

	return fmt.Errorf("unknown config key %q in [%s]", field, section)
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
// Ties go to the earlier entry in known.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		if d := levenshtein(strings.ToLower(unknown), k); d < bestDist {
			bestDist = d
			best = k
		}
	}

	return best
}

// levenshtein computes the edit distance between two strings using a
// single-row table.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
