package template

import (
	"fmt"
	"regexp"
	"strings"
)

// token is one pre-tokenized piece of template content: either a literal
// text run or a placeholder's dotted path.
type token struct {
	literal string
	path    []string
}

func (t token) isPlaceholder() bool {
	return t.path != nil
}

var placeholderRe = regexp.MustCompile(`\$\{([^}]+)\}`)

// tokenize splits template content into literal and placeholder tokens.
func tokenize(content string) []token {
	if content == "" {
		return nil
	}

	matches := placeholderRe.FindAllStringSubmatchIndex(content, -1)
	if len(matches) == 0 {
		return []token{{literal: content}}
	}

	tokens := make([]token, 0, len(matches)*2+1)
	pos := 0
	for _, m := range matches {
		if m[0] > pos {
			tokens = append(tokens, token{literal: content[pos:m[0]]})
		}
		tokens = append(tokens, token{path: splitPath(content[m[2]:m[3]])})
		pos = m[1]
	}
	if pos < len(content) {
		tokens = append(tokens, token{literal: content[pos:]})
	}

	return tokens
}

// splitPath breaks a dotted path expression into trimmed segments.
func splitPath(expr string) []string {
	parts := strings.Split(strings.TrimSpace(expr), ".")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

// resolveTokens writes each token's resolution to out. Placeholders whose
// path starts with the loop variable resolve against the current element;
// everything else resolves against the root record. An unresolvable path
// contributes an empty string.
func resolveTokens(out *strings.Builder, tokens []token, root interface{}, loopVar string, element interface{}) {
	for _, t := range tokens {
		if !t.isPlaceholder() {
			out.WriteString(t.literal)
			continue
		}

		var value interface{}
		var ok bool
		if loopVar != "" && t.path[0] == loopVar {
			if len(t.path) == 1 {
				value, ok = element, true
			} else {
				value, ok = resolvePath(element, t.path[1:])
			}
		} else {
			value, ok = resolvePath(root, t.path)
		}

		if ok {
			out.WriteString(stringify(value))
		}
	}
}

// stringify renders a resolved value as template output.
func stringify(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
