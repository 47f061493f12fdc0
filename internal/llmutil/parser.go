// Package llmutil parses model output: the think/answer marker structure
// and the call-expression action grammar inside the answer section.
package llmutil

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/xkilldash9x/phonepilot/api/schemas"
)

// Markers delimiting the two response sections.
const (
	ThinkOpen   = "<think>"
	ThinkClose  = "</think>"
	AnswerOpen  = "<answer>"
	AnswerClose = "</answer>"
)

var (
	// ErrNoAction means the response contained no do()/finish() call at all.
	ErrNoAction = errors.New("no action found in model response")
	// ErrMalformedAction means a call was present but did not match the
	// grammar (unknown kind, missing or unknown arguments, bad syntax).
	ErrMalformedAction = errors.New("malformed action")
)

// SplitSections separates the raw response into its thinking and action
// sections. Both marker pairs are optional: a missing think section yields
// an empty thinking string, and a missing answer section falls back to the
// text after the think section, so an unmarked trailing call still parses.
func SplitSections(raw string) (thinking, action string) {
	rest := raw
	if start := strings.Index(rest, ThinkOpen); start >= 0 {
		if end := strings.Index(rest[start:], ThinkClose); end >= 0 {
			thinking = strings.TrimSpace(rest[start+len(ThinkOpen) : start+end])
			rest = rest[start+end+len(ThinkClose):]
		}
	}
	if start := strings.Index(rest, AnswerOpen); start >= 0 {
		rest = rest[start+len(AnswerOpen):]
		if end := strings.Index(rest, AnswerClose); end >= 0 {
			rest = rest[:end]
		}
	}
	return thinking, strings.TrimSpace(rest)
}

// ParseResponse splits the raw text and parses the action section. The
// returned ModelResponse always carries the raw text and sections; Action
// is nil and an error is returned when the action section does not parse.
func ParseResponse(raw string) (*schemas.ModelResponse, error) {
	thinking, rawAction := SplitSections(raw)
	resp := &schemas.ModelResponse{
		Thinking:  thinking,
		RawAction: rawAction,
		RawText:   raw,
	}
	action, err := ParseAction(rawAction)
	if err != nil {
		return resp, err
	}
	resp.Action = action
	return resp, nil
}

// ParseAction parses one call expression, do(...) or finish(...), into a
// typed Action. Text around the call is ignored; the model occasionally
// wraps the call in prose or code fences.
func ParseAction(s string) (*schemas.Action, error) {
	name, args, err := extractCall(s)
	if err != nil {
		return nil, err
	}

	switch name {
	case "finish":
		if err := requireKeys(args, "message"); err != nil {
			return nil, err
		}
		msg, err := stringArg(args, "message")
		if err != nil {
			return nil, err
		}
		return &schemas.Action{Kind: schemas.ActionFinish, Message: msg}, nil
	case "do":
		return parseDo(args)
	default:
		return nil, fmt.Errorf("%w: unknown call %q", ErrMalformedAction, name)
	}
}

func parseDo(args map[string]value) (*schemas.Action, error) {
	kindStr, err := stringArg(args, "action")
	if err != nil {
		return nil, err
	}

	switch schemas.ActionKind(kindStr) {
	case schemas.ActionLaunch:
		if err := requireKeys(args, "action", "app"); err != nil {
			return nil, err
		}
		app, err := stringArg(args, "app")
		if err != nil {
			return nil, err
		}
		return &schemas.Action{Kind: schemas.ActionLaunch, App: app}, nil

	case schemas.ActionTap, schemas.ActionLongPress, schemas.ActionDoubleTap:
		if err := requireKeys(args, "action", "element", "message"); err != nil {
			return nil, err
		}
		el, err := pointArg(args, "element")
		if err != nil {
			return nil, err
		}
		msg, _ := optionalString(args, "message")
		return &schemas.Action{Kind: schemas.ActionKind(kindStr), Element: el, Message: msg}, nil

	case schemas.ActionSwipe:
		if err := requireKeys(args, "action", "start", "end", "message"); err != nil {
			return nil, err
		}
		start, err := pointArg(args, "start")
		if err != nil {
			return nil, err
		}
		end, err := pointArg(args, "end")
		if err != nil {
			return nil, err
		}
		msg, _ := optionalString(args, "message")
		return &schemas.Action{Kind: schemas.ActionSwipe, Start: start, End: end, Message: msg}, nil

	case schemas.ActionTypeText:
		if err := requireKeys(args, "action", "text"); err != nil {
			return nil, err
		}
		text, err := stringArg(args, "text")
		if err != nil {
			return nil, err
		}
		return &schemas.Action{Kind: schemas.ActionTypeText, Text: text}, nil

	case schemas.ActionBack, schemas.ActionHome:
		if err := requireKeys(args, "action"); err != nil {
			return nil, err
		}
		return &schemas.Action{Kind: schemas.ActionKind(kindStr)}, nil

	case schemas.ActionWait:
		if err := requireKeys(args, "action", "duration"); err != nil {
			return nil, err
		}
		durStr, err := stringArg(args, "duration")
		if err != nil {
			return nil, err
		}
		dur, err := parseDuration(durStr)
		if err != nil {
			return nil, err
		}
		return &schemas.Action{Kind: schemas.ActionWait, Duration: dur}, nil

	case schemas.ActionTakeOver:
		if err := requireKeys(args, "action", "message"); err != nil {
			return nil, err
		}
		msg, _ := optionalString(args, "message")
		return &schemas.Action{Kind: schemas.ActionTakeOver, Message: msg}, nil

	case schemas.ActionFinish:
		// Finish arrives as finish(message=...), never through do().
		return nil, fmt.Errorf("%w: Finish must use the finish() form", ErrMalformedAction)

	default:
		return nil, fmt.Errorf("%w: unknown action kind %q", ErrMalformedAction, kindStr)
	}
}

// FormatAction renders an Action back into the grammar. ParseAction on the
// result yields an equal Action.
func FormatAction(a *schemas.Action) string {
	var b strings.Builder
	switch a.Kind {
	case schemas.ActionFinish:
		fmt.Fprintf(&b, "finish(message=%s)", quote(a.Message))
	case schemas.ActionLaunch:
		fmt.Fprintf(&b, "do(action=%q, app=%s)", a.Kind, quote(a.App))
	case schemas.ActionTap, schemas.ActionLongPress, schemas.ActionDoubleTap:
		fmt.Fprintf(&b, "do(action=%q, element=[%d,%d]", a.Kind, a.Element.X, a.Element.Y)
		if a.Message != "" {
			fmt.Fprintf(&b, ", message=%s", quote(a.Message))
		}
		b.WriteString(")")
	case schemas.ActionSwipe:
		fmt.Fprintf(&b, "do(action=%q, start=[%d,%d], end=[%d,%d]",
			a.Kind, a.Start.X, a.Start.Y, a.End.X, a.End.Y)
		if a.Message != "" {
			fmt.Fprintf(&b, ", message=%s", quote(a.Message))
		}
		b.WriteString(")")
	case schemas.ActionTypeText:
		fmt.Fprintf(&b, "do(action=%q, text=%s)", a.Kind, quote(a.Text))
	case schemas.ActionBack, schemas.ActionHome:
		fmt.Fprintf(&b, "do(action=%q)", a.Kind)
	case schemas.ActionWait:
		secs := int(a.Duration / time.Second)
		fmt.Fprintf(&b, "do(action=%q, duration=\"%d seconds\")", a.Kind, secs)
	case schemas.ActionTakeOver:
		fmt.Fprintf(&b, "do(action=%q, message=%s)", a.Kind, quote(a.Message))
	}
	return b.String()
}

// quote emits exactly the escape set the scanner decodes, so arbitrary
// text survives a format/parse round trip byte for byte.
func quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '"', '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// parseDuration accepts the grammar's `"<n> seconds"` form plus tolerant
// variants: a bare number, "second", and fractional values.
func parseDuration(s string) (time.Duration, error) {
	fields := strings.Fields(strings.TrimSpace(s))
	if len(fields) == 0 {
		return 0, fmt.Errorf("%w: empty duration", ErrMalformedAction)
	}
	n, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad duration %q", ErrMalformedAction, s)
	}
	if len(fields) > 1 {
		unit := strings.ToLower(strings.TrimSuffix(fields[1], "s"))
		if unit != "second" {
			return 0, fmt.Errorf("%w: unsupported duration unit %q", ErrMalformedAction, fields[1])
		}
	}
	if n < 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, fmt.Errorf("%w: invalid duration %q", ErrMalformedAction, s)
	}
	// The executor enforces its own wait cap; this bound only keeps the
	// arithmetic below from overflowing on absurd input.
	if n > maxParsedWaitSeconds {
		n = maxParsedWaitSeconds
	}
	return time.Duration(n * float64(time.Second)), nil
}

// maxParsedWaitSeconds bounds a parsed wait at one day.
const maxParsedWaitSeconds = 86400

// --- call expression scanner ---

// value is one parsed keyword argument: a string literal or an int pair.
type value struct {
	str    string
	pair   [2]int
	isPair bool
}

// extractCall locates the first do( or finish( in s and parses its keyword
// arguments.
func extractCall(s string) (string, map[string]value, error) {
	idx, name := -1, ""
	for _, candidate := range []string{"do", "finish"} {
		if i := findCall(s, candidate); i >= 0 && (idx < 0 || i < idx) {
			idx, name = i, candidate
		}
	}
	if idx < 0 {
		return "", nil, ErrNoAction
	}

	rest := s[idx+len(name):]
	args, err := parseArgs(rest)
	if err != nil {
		return "", nil, err
	}
	return name, args, nil
}

// findCall returns the index of `name` followed by '(' appearing as its own
// word, so "redo(" does not match "do".
func findCall(s, name string) int {
	for from := 0; ; {
		i := strings.Index(s[from:], name+"(")
		if i < 0 {
			return -1
		}
		abs := from + i
		if abs == 0 || !isWordChar(rune(s[abs-1])) {
			return abs
		}
		from = abs + 1
	}
}

func isWordChar(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// parseArgs parses "(key=value, ...)" starting at the opening parenthesis.
func parseArgs(s string) (map[string]value, error) {
	p := &scanner{input: s}
	p.skipSpace()
	if !p.consume('(') {
		return nil, fmt.Errorf("%w: expected '('", ErrMalformedAction)
	}

	args := make(map[string]value)
	p.skipSpace()
	if p.consume(')') {
		return args, nil
	}
	for {
		key, err := p.ident()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if !p.consume('=') {
			return nil, fmt.Errorf("%w: expected '=' after %q", ErrMalformedAction, key)
		}
		p.skipSpace()
		val, err := p.value()
		if err != nil {
			return nil, err
		}
		if _, dup := args[key]; dup {
			return nil, fmt.Errorf("%w: duplicate argument %q", ErrMalformedAction, key)
		}
		args[key] = val

		p.skipSpace()
		if p.consume(')') {
			return args, nil
		}
		if !p.consume(',') {
			return nil, fmt.Errorf("%w: expected ',' or ')'", ErrMalformedAction)
		}
		p.skipSpace()
	}
}

type scanner struct {
	input string
	pos   int
}

func (p *scanner) skipSpace() {
	for p.pos < len(p.input) && unicode.IsSpace(rune(p.input[p.pos])) {
		p.pos++
	}
}

func (p *scanner) consume(c byte) bool {
	if p.pos < len(p.input) && p.input[p.pos] == c {
		p.pos++
		return true
	}
	return false
}

func (p *scanner) ident() (string, error) {
	start := p.pos
	for p.pos < len(p.input) && isWordChar(rune(p.input[p.pos])) {
		p.pos++
	}
	if p.pos == start {
		return "", fmt.Errorf("%w: expected argument name", ErrMalformedAction)
	}
	return p.input[start:p.pos], nil
}

func (p *scanner) value() (value, error) {
	if p.pos >= len(p.input) {
		return value{}, fmt.Errorf("%w: unexpected end of input", ErrMalformedAction)
	}
	switch p.input[p.pos] {
	case '"', '\'':
		s, err := p.stringLit()
		return value{str: s}, err
	case '[':
		pair, err := p.pairLit()
		return value{pair: pair, isPair: true}, err
	default:
		// Bare numbers show up in the wild for durations.
		start := p.pos
		for p.pos < len(p.input) && (isWordChar(rune(p.input[p.pos])) || p.input[p.pos] == '.' || p.input[p.pos] == '-') {
			p.pos++
		}
		if p.pos == start {
			return value{}, fmt.Errorf("%w: unexpected character %q", ErrMalformedAction, p.input[p.pos])
		}
		return value{str: p.input[start:p.pos]}, nil
	}
}

// stringLit parses a quoted string with backslash escapes. Both double and
// single quotes are accepted.
func (p *scanner) stringLit() (string, error) {
	quote := p.input[p.pos]
	p.pos++
	var b strings.Builder
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		switch c {
		case quote:
			p.pos++
			return b.String(), nil
		case '\\':
			p.pos++
			if p.pos >= len(p.input) {
				return "", fmt.Errorf("%w: dangling escape", ErrMalformedAction)
			}
			esc := p.input[p.pos]
			switch esc {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(esc)
			}
			p.pos++
		default:
			b.WriteByte(c)
			p.pos++
		}
	}
	return "", fmt.Errorf("%w: unterminated string", ErrMalformedAction)
}

// pairLit parses "[x,y]" into two ints.
func (p *scanner) pairLit() ([2]int, error) {
	var pair [2]int
	p.pos++ // '['
	for i := 0; i < 2; i++ {
		p.skipSpace()
		start := p.pos
		for p.pos < len(p.input) && (p.input[p.pos] == '-' || unicode.IsDigit(rune(p.input[p.pos]))) {
			p.pos++
		}
		n, err := strconv.Atoi(p.input[start:p.pos])
		if err != nil {
			return pair, fmt.Errorf("%w: bad coordinate in pair", ErrMalformedAction)
		}
		pair[i] = n
		p.skipSpace()
		if i == 0 && !p.consume(',') {
			return pair, fmt.Errorf("%w: expected ',' in pair", ErrMalformedAction)
		}
	}
	if !p.consume(']') {
		return pair, fmt.Errorf("%w: expected ']'", ErrMalformedAction)
	}
	return pair, nil
}

// --- argument helpers ---

// requireKeys validates that args only uses keys from allowed, and that the
// non-optional ones are present. "message" is always optional.
func requireKeys(args map[string]value, allowed ...string) error {
	allowedSet := make(map[string]bool, len(allowed))
	for _, k := range allowed {
		allowedSet[k] = true
	}
	for k := range args {
		if !allowedSet[k] {
			return fmt.Errorf("%w: unknown argument %q", ErrMalformedAction, k)
		}
	}
	for _, k := range allowed {
		if k == "message" {
			continue
		}
		if _, ok := args[k]; !ok {
			return fmt.Errorf("%w: missing argument %q", ErrMalformedAction, k)
		}
	}
	return nil
}

func stringArg(args map[string]value, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("%w: missing argument %q", ErrMalformedAction, key)
	}
	if v.isPair {
		return "", fmt.Errorf("%w: argument %q must be a string", ErrMalformedAction, key)
	}
	return v.str, nil
}

func optionalString(args map[string]value, key string) (string, bool) {
	v, ok := args[key]
	if !ok || v.isPair {
		return "", false
	}
	return v.str, true
}

func pointArg(args map[string]value, key string) (*schemas.Point, error) {
	v, ok := args[key]
	if !ok {
		return nil, fmt.Errorf("%w: missing argument %q", ErrMalformedAction, key)
	}
	if !v.isPair {
		return nil, fmt.Errorf("%w: argument %q must be [x,y]", ErrMalformedAction, key)
	}
	return &schemas.Point{X: v.pair[0], Y: v.pair[1]}, nil
}
