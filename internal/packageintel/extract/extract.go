// Package extract pulls package/module references out of request text:
// fenced code blocks (language-aware import/require grammars) and
// well-known manifest files pasted or referenced inline.
package extract

import (
	"regexp"
	"strings"

	"github.com/stacklok/codegate/pkg/models"
)

var fencedBlockRe = regexp.MustCompile("(?s)```([a-zA-Z0-9_+-]*)\\n(.*?)```")

type grammar struct {
	ecosystem string
	patterns  []*regexp.Regexp
}

// languageGrammars maps a fenced-block language tag to the import
// grammar used to pull package identifiers out of it.
var languageGrammars = map[string]grammar{
	"python": {
		ecosystem: "pypi",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?m)^\s*import\s+([A-Za-z0-9_.]+)`),
			regexp.MustCompile(`(?m)^\s*from\s+([A-Za-z0-9_.]+)\s+import`),
		},
	},
	"py": {ecosystem: "pypi"},
	"go": {
		ecosystem: "go",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?m)^\s*"([a-zA-Z0-9._/\-]+\.[a-zA-Z]{2,}/[a-zA-Z0-9._/\-]+)"`),
		},
	},
	"java": {
		ecosystem: "maven",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?m)^\s*import\s+(?:static\s+)?([A-Za-z0-9_.]+)\s*;`),
		},
	},
	"javascript": {
		ecosystem: "npm",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?m)(?:import\s.*?\sfrom\s+|require\()\s*['"]([^'".][^'"]*)['"]`),
		},
	},
	"js":         {ecosystem: "npm"},
	"typescript": {ecosystem: "npm"},
	"ts":         {ecosystem: "npm"},
	"rust": {
		ecosystem: "crates",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?m)^\s*use\s+([A-Za-z0-9_]+)(?:::[A-Za-z0-9_:{}, ]*)?;`),
			regexp.MustCompile(`(?m)^\s*extern\s+crate\s+([A-Za-z0-9_]+)\s*;`),
		},
	},
}

func init() {
	// alias entries with no patterns of their own reuse the primary
	// language's grammar.
	languageGrammars["py"] = languageGrammars["python"]
	languageGrammars["js"] = languageGrammars["javascript"]
	languageGrammars["typescript"] = languageGrammars["javascript"]
	languageGrammars["ts"] = languageGrammars["javascript"]
}

// manifestGrammars are regex fallbacks for well-known manifest files
// that may appear pasted directly into a message (not fenced with a
// language the extractor recognizes as source code).
var manifestGrammars = []struct {
	filenameHint string
	ecosystem    string
	pattern      *regexp.Regexp
}{
	{"requirements.txt", "pypi", regexp.MustCompile(`(?m)^\s*([A-Za-z0-9_.\-]+)\s*(?:[=<>~!].*)?$`)},
	{"package.json", "npm", regexp.MustCompile(`"([A-Za-z0-9@/_.\-]+)"\s*:\s*"[^"]*"`)},
	{"pyproject.toml", "pypi", regexp.MustCompile(`(?m)^\s*([A-Za-z0-9_.\-]+)\s*=\s*"[^"]*"`)},
	{"go.mod", "go", regexp.MustCompile(`(?m)^\s*([a-zA-Z0-9._/\-]+\.[a-zA-Z]{2,}/[a-zA-Z0-9._/\-]+)\s+v[0-9]`)},
}

// freeTextMentionRe catches a bare package name named directly in
// prose ("is it safe to use invokehttp?", "should I install
// left-pad?") with no fenced code and no ecosystem context. Extracted
// with an empty Ecosystem; the lookup side matches by name across
// every ecosystem for these.
var freeTextMentionRe = regexp.MustCompile(
	`(?i)\b(?:install|use|import|require|depend(?:ency|s)? on)\s+(?:the\s+)?` +
		`([A-Za-z][A-Za-z0-9_.\-]{1,63})\b`)

// FromText scans free-form message text for fenced code blocks (using
// the language grammars) and inline manifest content (using the
// manifest fallbacks), returning every package reference found.
func FromText(text string) []models.ExtractedPackage {
	var out []models.ExtractedPackage
	seen := map[string]bool{}

	add := func(ecosystem, name string, loc models.PackageLocation) {
		name = strings.TrimSpace(name)
		if name == "" {
			return
		}
		key := ecosystem + ":" + name
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, models.ExtractedPackage{Ecosystem: ecosystem, Name: name, Location: loc})
	}

	for _, m := range fencedBlockRe.FindAllStringSubmatch(text, -1) {
		lang := strings.ToLower(m[1])
		body := m[2]

		if g, ok := languageGrammars[lang]; ok {
			for _, re := range g.patterns {
				for _, sub := range re.FindAllStringSubmatch(body, -1) {
					add(g.ecosystem, topLevelPackage(g.ecosystem, sub[1]), models.LocationCodeImport)
				}
			}
			continue
		}

		for _, mg := range manifestGrammars {
			if !strings.Contains(strings.ToLower(lang), strings.TrimSuffix(mg.filenameHint, ".txt")) &&
				!looksLikeManifest(body, mg.filenameHint) {
				continue
			}
			for _, sub := range mg.pattern.FindAllStringSubmatch(body, -1) {
				add(mg.ecosystem, sub[1], models.LocationManifest)
			}
		}
	}

	// Manifest content sometimes appears unfenced too (e.g. quoted
	// inline in prose); scan the whole text as a lower-confidence pass.
	for _, mg := range manifestGrammars {
		if !strings.Contains(text, mg.filenameHint) {
			continue
		}
		for _, sub := range mg.pattern.FindAllStringSubmatch(text, -1) {
			add(mg.ecosystem, sub[1], models.LocationManifest)
		}
	}

	prose := fencedBlockRe.ReplaceAllString(text, " ")
	for _, sub := range freeTextMentionRe.FindAllStringSubmatch(prose, -1) {
		add("", sub[1], models.LocationFreeText)
	}

	return out
}

func looksLikeManifest(body, filenameHint string) bool {
	switch filenameHint {
	case "package.json":
		return strings.Contains(body, "\"dependencies\"") || strings.Contains(body, "\"name\"")
	case "requirements.txt":
		return false // ambiguous without an explicit language tag; skip to avoid false positives
	default:
		return false
	}
}

// topLevelPackage narrows a dotted/slashed import path down to the
// installable package name for ecosystems where imports name a
// submodule but the manifest/registry entry names only the root
// (Python's `import requests.adapters` still installs as `requests`;
// Go module paths are used verbatim since the import path *is* the
// module coordinate).
func topLevelPackage(ecosystem, importPath string) string {
	switch ecosystem {
	case "pypi":
		if i := strings.Index(importPath, "."); i != -1 {
			return importPath[:i]
		}
		return importPath
	case "maven":
		return importPath
	default:
		return importPath
	}
}
