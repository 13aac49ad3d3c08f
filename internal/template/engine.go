// Package template implements the placeholder resolution engine for invoice
// document templates. Templates contain ${dotted.path} placeholders and
// repeating sections marked by data-repeat-over / data-repeat-var control
// attributes. A template is compiled once per distinct template text into an
// executable plan; execution resolves that plan against one record.
package template

import (
	"regexp"
	"strings"
	"sync"
)

const (
	attrRepeatOver = "data-repeat-over"
	attrRepeatVar  = "data-repeat-var"
)

// Plan is the compiled, immutable form of one template text.
type Plan struct {
	// HasRepeat reports whether any repeating section was found
	HasRepeat bool
	// HasPlaceholder reports whether any placeholder was found
	HasPlaceholder bool
	// Segments holds the repeating sections in source order
	Segments []RepeatSegment
	// Tail holds the tokens after the last repeating section (or the whole
	// template when there is none)
	Tail []token

	source string
}

// PassThrough reports whether executing the plan returns the template text
// unchanged for any record.
func (p *Plan) PassThrough() bool {
	return !p.HasRepeat && !p.HasPlaceholder
}

// RepeatSegment is one repeating section plus the literal content that
// precedes it.
type RepeatSegment struct {
	// Prefix holds the tokens before the section's opening tag
	Prefix []token
	// OpenTag is the opening tag with both control attributes stripped
	OpenTag string
	// CloseTag is the section's closing tag
	CloseTag string
	// CollectionPath is the dotted path of the repeated collection
	CollectionPath []string
	// Var is the loop-variable name inner placeholders use
	Var string
	// Inner holds the section body tokens
	Inner []token
}

// Engine compiles templates on first use and caches the plans for the
// process lifetime. The template set is small and bounded by configuration,
// so the cache never evicts.
type Engine struct {
	plans sync.Map // template text -> *Plan
}

// NewEngine creates a template engine with an empty plan cache.
func NewEngine() *Engine {
	return &Engine{}
}

// Compile returns the cached plan for the template text, building it on
// first use. Compilation is a pure function of the template text, so a
// racing duplicate build is wasted work rather than a correctness problem.
func (e *Engine) Compile(source string) *Plan {
	if cached, ok := e.plans.Load(source); ok {
		return cached.(*Plan)
	}

	plan := compileRepeatPlan(source)
	actual, _ := e.plans.LoadOrStore(source, plan)
	return actual.(*Plan)
}

// Resolve compiles the template (or reuses its cached plan) and executes it
// against the root record. On any execution failure the original template
// text is returned whole: a visibly-unresolved document is preferred over a
// partially-resolved one.
func (e *Engine) Resolve(source string, root interface{}) string {
	return e.Compile(source).Execute(root)
}

// Execute resolves the plan against one root record.
func (p *Plan) Execute(root interface{}) (result string) {
	if p.PassThrough() {
		return p.source
	}

	defer func() {
		if r := recover(); r != nil {
			result = p.source
		}
	}()

	var out strings.Builder
	out.Grow(len(p.source))

	for _, seg := range p.Segments {
		resolveTokens(&out, seg.Prefix, root, "", nil)

		collection, ok := resolvePath(root, seg.CollectionPath)
		if ok {
			for _, element := range elements(collection) {
				out.WriteString(seg.OpenTag)
				resolveTokens(&out, seg.Inner, root, seg.Var, element)
				out.WriteString(seg.CloseTag)
			}
		}
	}

	resolveTokens(&out, p.Tail, root, "", nil)

	return out.String()
}

// repeatOpenRe matches an opening tag that carries the repeat-over control
// attribute; the repeat-var attribute is checked separately because the two
// may appear in either order.
var repeatOpenRe = regexp.MustCompile(`<([A-Za-z][A-Za-z0-9:-]*)((?:\s+[^<>]*?)?)>`)

var (
	overAttrRe  = regexp.MustCompile(attrRepeatOver + `="([^"]*)"`)
	varAttrRe   = regexp.MustCompile(attrRepeatVar + `="([^"]*)"`)
	overStripRe = regexp.MustCompile(`\s*` + attrRepeatOver + `="[^"]*"`)
	varStripRe  = regexp.MustCompile(`\s*` + attrRepeatVar + `="[^"]*"`)
)

// compileRepeatPlan scans the template for repeating sections and
// pre-tokenizes all literal/placeholder content.
func compileRepeatPlan(source string) *Plan {
	plan := &Plan{source: source}

	rest := source
	for {
		openStart, openEnd, tag, overPath, varName, found := findRepeatOpen(rest)
		if !found {
			break
		}

		bodyStart := openEnd
		closeStart, closeEnd := findMatchingClose(rest, bodyStart, tag)
		if closeStart < 0 {
			// Unterminated section: treat the remainder as literal content.
			break
		}

		openTag := stripControlAttrs(rest[openStart:openEnd])

		plan.Segments = append(plan.Segments, RepeatSegment{
			Prefix:         tokenize(rest[:openStart]),
			OpenTag:        openTag,
			CloseTag:       rest[closeStart:closeEnd],
			CollectionPath: splitPath(overPath),
			Var:            varName,
			Inner:          tokenize(rest[bodyStart:closeStart]),
		})

		rest = rest[closeEnd:]
	}

	plan.Tail = tokenize(rest)
	plan.HasRepeat = len(plan.Segments) > 0
	plan.HasPlaceholder = hasPlaceholder(plan)

	return plan
}

// findRepeatOpen locates the next opening tag carrying both control
// attributes. Tags with only one of the two are left in place as literal
// content.
func findRepeatOpen(s string) (start, end int, tag, over, varName string, found bool) {
	offset := 0
	for {
		loc := repeatOpenRe.FindStringSubmatchIndex(s[offset:])
		if loc == nil {
			return 0, 0, "", "", "", false
		}

		start = offset + loc[0]
		end = offset + loc[1]
		tag = s[offset+loc[2] : offset+loc[3]]
		attrs := s[offset+loc[4] : offset+loc[5]]

		overMatch := overAttrRe.FindStringSubmatch(attrs)
		varMatch := varAttrRe.FindStringSubmatch(attrs)
		if overMatch != nil && varMatch != nil {
			return start, end, tag, overMatch[1], varMatch[1], true
		}

		offset = end
	}
}

// findMatchingClose finds the closing tag balancing the section's opening
// tag, accounting for nested occurrences of the same tag name in the body.
func findMatchingClose(s string, from int, tag string) (closeStart, closeEnd int) {
	openToken := "<" + tag
	closeToken := "</" + tag + ">"

	depth := 1
	pos := from
	for {
		nextClose := strings.Index(s[pos:], closeToken)
		if nextClose < 0 {
			return -1, -1
		}
		nextClose += pos

		// Same-name opens before this close candidate deepen the nesting.
		for scan := pos; scan < nextClose; {
			idx := strings.Index(s[scan:nextClose], openToken)
			if idx < 0 {
				break
			}
			after := scan + idx + len(openToken)
			if after < len(s) && isTagBoundary(s[after]) {
				depth++
			}
			scan = after
		}

		depth--
		pos = nextClose + len(closeToken)
		if depth == 0 {
			return nextClose, pos
		}
	}
}

func isTagBoundary(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '>', '/':
		return true
	}
	return false
}

// stripControlAttrs removes the two control attributes from an opening tag,
// keeping every other attribute intact.
func stripControlAttrs(openTag string) string {
	openTag = overStripRe.ReplaceAllString(openTag, "")
	openTag = varStripRe.ReplaceAllString(openTag, "")
	return openTag
}

func hasPlaceholder(plan *Plan) bool {
	if anyPlaceholder(plan.Tail) {
		return true
	}
	for _, seg := range plan.Segments {
		if anyPlaceholder(seg.Prefix) || anyPlaceholder(seg.Inner) {
			return true
		}
	}
	return false
}

func anyPlaceholder(tokens []token) bool {
	for _, t := range tokens {
		if t.isPlaceholder() {
			return true
		}
	}
	return false
}
