// Package signatures loads the secret-pattern catalog and finds
// candidate secrets in text, combining named regex signatures with a
// Shannon-entropy secondary detector for unnamed high-entropy tokens.
package signatures

import (
	"fmt"
	"math"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Match is one detected secret span within a line of text.
type Match struct {
	Service    string
	PatternName string
	Key        string // the assignment key, if the secret appeared as key=value
	Value      string
	LineNumber int
	Start      int
	End        int
}

// HighEntropyThreshold is the minimum Shannon entropy (bits/char) for an
// unnamed assignment value to be flagged as a probable secret.
const HighEntropyThreshold = 4.0

// group is a compiled service's set of named patterns.
type group struct {
	name     string
	patterns map[string]*regexp.Regexp
}

// Catalog is a loaded, compiled set of signature groups.
type Catalog struct {
	groups []group
}

// rawCatalog mirrors the on-disk YAML shape: a list of single-key maps,
// service_name -> [{pattern_name: regex}, ...].
type rawCatalog []map[string][]map[string]string

// LoadFile reads and compiles a signature catalog from a YAML file.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("signatures: read %s: %w", path, err)
	}
	return Load(data)
}

// Load compiles a signature catalog from YAML bytes already in memory.
func Load(data []byte) (*Catalog, error) {
	content := preprocess(string(data))

	var raw rawCatalog
	if err := yaml.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("signatures: parse catalog: %w", err)
	}

	cat := &Catalog{}
	seen := map[string]bool{}
	for _, item := range raw {
		for serviceName, patternDicts := range item {
			if seen[serviceName] {
				continue
			}
			compiled := map[string]*regexp.Regexp{}
			for _, pd := range patternDicts {
				for patternName, pattern := range pd {
					if pattern == "" || strings.HasPrefix(pattern, "#") {
						continue
					}
					re, err := compilePattern(sanitize(pattern))
					if err != nil {
						continue // skip invalid patterns, same as the reference loader
					}
					compiled[patternName] = re
				}
			}
			if len(compiled) > 0 {
				cat.groups = append(cat.groups, group{name: serviceName, patterns: compiled})
				seen[serviceName] = true
			}
		}
	}
	return cat, nil
}

func preprocess(content string) string {
	content = strings.ReplaceAll(content, "\t", "    ")
	content = strings.TrimPrefix(content, "\ufeff")
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	return content
}

// compilePattern handles the catalog's `(?i)` case-insensitive marker
// wherever it appears, not only at the start (Go's RE2 only accepts
// inline flags at the very start of the pattern or a subexpression).
func compilePattern(pattern string) (*regexp.Regexp, error) {
	if strings.Contains(pattern, "(?i)") {
		pattern = strings.ReplaceAll(pattern, "(?i)", "")
		return regexp.Compile("(?i)" + pattern)
	}
	return regexp.Compile(pattern)
}

var boundaryFlag = regexp.MustCompile(`\\b\(\?i\)`)

func sanitize(pattern string) string {
	if pattern == "" {
		return pattern
	}
	return boundaryFlag.ReplaceAllString(pattern, `(?i)\b`)
}

var assignmentKeyRe = func(value string) *regexp.Regexp {
	return regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_]*)\s*=\s*["']?` + regexp.QuoteMeta(value) + `["']?`)
}

var entropyAssignmentRe = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_]*)\s*=\s*["']?([A-Za-z0-9_\-.+/=]{8,})["']?`)

// FindInString scans text line by line for named-pattern secrets and
// high-entropy assignment values.
func (c *Catalog) FindInString(text string) []Match {
	if text == "" {
		return nil
	}
	var matches []Match
	found := map[string]bool{}

	for i, line := range strings.Split(text, "\n") {
		lineNum := i + 1
		matches = append(matches, c.findRegexMatches(line, lineNum, found)...)
		matches = append(matches, findHighEntropyMatches(line, lineNum, found)...)
	}
	return matches
}

func (c *Catalog) findRegexMatches(line string, lineNum int, found map[string]bool) []Match {
	var out []Match
	for _, g := range c.groups {
		for patternName, re := range g.patterns {
			for _, loc := range re.FindAllStringIndex(line, -1) {
				value := line[loc[0]:loc[1]]
				key := extractKey(line, value)
				dedupeKey := key + ":" + value
				if strings.EqualFold(value, "token") || found[dedupeKey] {
					continue
				}
				found[dedupeKey] = true
				out = append(out, Match{
					Service:     g.name,
					PatternName: patternName,
					Key:         key,
					Value:       value,
					LineNumber:  lineNum,
					Start:       loc[0],
					End:         loc[1],
				})
			}
		}
	}
	return out
}

func extractKey(line, secretValue string) string {
	m := assignmentKeyRe(secretValue).FindStringSubmatch(line)
	if m == nil {
		return ""
	}
	return m[1]
}

func findHighEntropyMatches(line string, lineNum int, found map[string]bool) []Match {
	var out []Match
	for _, m := range entropyAssignmentRe.FindAllStringSubmatch(line, -1) {
		key, word := m[1], m[2]
		dedupeKey := key + ":" + word
		if found[dedupeKey] || strings.HasPrefix(word, "REDACTED") {
			continue
		}
		if shannonEntropy(word) >= HighEntropyThreshold {
			found[dedupeKey] = true
			start := strings.Index(line, word)
			out = append(out, Match{
				Service:     "High Entropy",
				PatternName: "Potential Secret",
				Key:         key,
				Value:       word,
				LineNumber:  lineNum,
				Start:       start,
				End:         start + len(word),
			})
		}
	}
	return out
}

// shannonEntropy computes the Shannon entropy of s in bits per character.
func shannonEntropy(s string) float64 {
	if s == "" {
		return 0
	}
	counts := map[rune]int{}
	for _, r := range s {
		counts[r]++
	}
	n := float64(len(s))
	var entropy float64
	for _, c := range counts {
		p := float64(c) / n
		entropy -= p * math.Log2(p)
	}
	return entropy
}
