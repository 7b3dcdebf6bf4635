package product

import "strings"

// Kind classifies a compiled path pattern.
type Kind int

const (
	// Exact requires string equality with the request path.
	Exact Kind = iota
	// SingleWildcard contains `*`, which matches one path segment.
	SingleWildcard
	// DoubleWildcard contains `**`, which matches anything, separators included.
	DoubleWildcard
)

func (k Kind) String() string {
	switch k {
	case SingleWildcard:
		return "single_wildcard"
	case DoubleWildcard:
		return "double_wildcard"
	default:
		return "exact"
	}
}

type tokenKind int

const (
	literal tokenKind = iota
	star
	doubleStar
)

type patternToken struct {
	kind tokenKind
	text string
}

// Pattern is a proxy-scoped path pattern ready for matching.
type Pattern struct {
	Source        string
	Kind          Kind
	trailingSlash bool
	tokens        []patternToken
}

// Compile scopes raw to basePath and tokenizes it. basePath is prepended
// unless raw already contains it.
func Compile(raw, basePath string) Pattern {
	scoped := raw
	if !strings.Contains(raw, basePath) {
		sep := "/"
		if strings.HasPrefix(raw, "/") {
			sep = ""
		}
		scoped = basePath + sep + raw
	}

	p := Pattern{
		Source:        scoped,
		Kind:          Exact,
		trailingSlash: strings.HasSuffix(scoped, "/"),
	}

	rest := scoped
	for rest != "" {
		i := strings.IndexByte(rest, '*')
		if i < 0 {
			p.tokens = append(p.tokens, patternToken{kind: literal, text: rest})
			break
		}
		if i > 0 {
			p.tokens = append(p.tokens, patternToken{kind: literal, text: rest[:i]})
		}
		if strings.HasPrefix(rest[i:], "**") {
			p.tokens = append(p.tokens, patternToken{kind: doubleStar})
			p.Kind = DoubleWildcard
			rest = strings.TrimLeft(rest[i:], "*")
			continue
		}
		p.tokens = append(p.tokens, patternToken{kind: star})
		if p.Kind == Exact {
			p.Kind = SingleWildcard
		}
		rest = rest[i+1:]
	}

	return p
}

// Match reports whether the whole path matches. A pattern ending in "/"
// compares against the path with a trailing "/" added when missing.
func (p Pattern) Match(path string) bool {
	if p.trailingSlash && !strings.HasSuffix(path, "/") {
		path += "/"
	}
	if p.Kind == Exact {
		return path == p.Source
	}
	return matchTokens(p.tokens, path)
}

func matchTokens(tokens []patternToken, s string) bool {
	if len(tokens) == 0 {
		return s == ""
	}

	t, rest := tokens[0], tokens[1:]
	switch t.kind {
	case literal:
		after, ok := strings.CutPrefix(s, t.text)
		return ok && matchTokens(rest, after)
	case star:
		// one or more characters, stopping at the segment boundary
		for i := 1; i <= len(s) && s[i-1] != '/'; i++ {
			if matchTokens(rest, s[i:]) {
				return true
			}
		}
		return false
	default:
		for i := 0; i <= len(s); i++ {
			if matchTokens(rest, s[i:]) {
				return true
			}
		}
		return false
	}
}
