// Package tidrange implements the thread/SIMD-lane range grammar the
// debugger uses to address (inferior, thread, SIMD-lane) tuples and
// ranges.
//
// Grammar: a whitespace-separated list of tokens of the form
// "[inferior.]thread[:lane]", where thread and lane may each be a single
// number, a range "a-b", or (lane only) the wildcard "*".
package tidrange

import (
	"fmt"
	"strconv"
	"strings"
)

// Ref is one concrete (inferior, thread, lane) tuple. Lane == NoLane means
// no SIMD lane was specified for this reference.
type Ref struct {
	Inferior int
	Thread   int
	Lane     int
}

// NoLane is the sentinel Lane value meaning "no SIMD lane specified".
const NoLane = -1

// MaxLane is the highest legal SIMD lane number (a 32-bit lane mask).
const MaxLane = 31

// Parser iteratively expands a range-grammar string into concrete Refs.
// Each call to Next returns one (inf, thr, lane) tuple; on thread or lane
// ranges, the lane sub-range is re-iterated for every thread in the
// thread range, matching a cartesian expansion of "a-b:c-d".
type Parser struct {
	tokens     []string
	tokenIdx   int
	defaultInf int
	defaultThr int
	pending    []Ref
}

// NewParser builds a Parser over s. defaultInf/defaultThr are substituted
// for tokens that omit the corresponding component.
func NewParser(s string, defaultInf, defaultThr int) *Parser {
	return &Parser{tokens: strings.Fields(s), defaultInf: defaultInf, defaultThr: defaultThr}
}

// Next returns the next concrete reference, or ok == false once the
// input is exhausted.
func (p *Parser) Next() (ref Ref, ok bool, err error) {
	for len(p.pending) == 0 {
		if p.tokenIdx >= len(p.tokens) {
			return Ref{}, false, nil
		}
		tok := p.tokens[p.tokenIdx]
		p.tokenIdx++

		refs, err := expandToken(tok, p.defaultInf, p.defaultThr)
		if err != nil {
			return Ref{}, false, err
		}
		p.pending = refs
	}

	ref = p.pending[0]
	p.pending = p.pending[1:]
	return ref, true, nil
}

// All drains the parser, returning every reference or the first error.
func (p *Parser) All() ([]Ref, error) {
	var out []Ref
	for {
		r, ok, err := p.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, r)
	}
}

func expandToken(tok string, defaultInf, defaultThr int) ([]Ref, error) {
	infPart, rest := "", tok
	if i := strings.IndexByte(tok, '.'); i >= 0 {
		infPart, rest = tok[:i], tok[i+1:]
	}

	inf := defaultInf
	if infPart != "" {
		v, err := parseStrict(infPart)
		if err != nil {
			return nil, fmt.Errorf("tidrange: invalid inferior %q: %w", infPart, err)
		}
		if v == 0 {
			return nil, fmt.Errorf("tidrange: explicit inferior 0 is invalid")
		}
		inf = v
	}

	threadPart, lanePart, hasLane := rest, "", false
	if i := strings.IndexByte(rest, ':'); i >= 0 {
		threadPart, lanePart, hasLane = rest[:i], rest[i+1:], true
	}

	if threadPart == "" && !hasLane {
		return nil, fmt.Errorf("tidrange: %q is missing a thread", tok)
	}

	var threadStart, threadEnd int
	if threadPart == "" {
		threadStart, threadEnd = defaultThr, defaultThr
	} else {
		ts, te, err := parseRangeOrSingle(threadPart)
		if err != nil {
			return nil, fmt.Errorf("tidrange: invalid thread %q: %w", threadPart, err)
		}
		if ts == 0 || te == 0 {
			return nil, fmt.Errorf("tidrange: thread 0 is invalid")
		}
		threadStart, threadEnd = ts, te
	}

	var lanes []int
	if hasLane {
		if lanePart == "*" {
			for l := 0; l <= MaxLane; l++ {
				lanes = append(lanes, l)
			}
		} else {
			ls, le, err := parseRangeOrSingle(lanePart)
			if err != nil {
				return nil, fmt.Errorf("tidrange: invalid lane %q: %w", lanePart, err)
			}
			for l := ls; l <= le; l++ {
				if l < 0 || l > MaxLane {
					return nil, fmt.Errorf("tidrange: lane %d out of range [0,%d]", l, MaxLane)
				}
				lanes = append(lanes, l)
			}
		}
	}

	var refs []Ref
	for th := threadStart; th <= threadEnd; th++ {
		if len(lanes) == 0 {
			refs = append(refs, Ref{Inferior: inf, Thread: th, Lane: NoLane})
			continue
		}
		for _, l := range lanes {
			refs = append(refs, Ref{Inferior: inf, Thread: th, Lane: l})
		}
	}
	return refs, nil
}

// parseRangeOrSingle parses "a-b" or "a" into inclusive endpoints.
func parseRangeOrSingle(s string) (int, int, error) {
	if i := strings.IndexByte(s, '-'); i > 0 {
		a, err := parseStrict(s[:i])
		if err != nil {
			return 0, 0, err
		}
		b, err := parseStrict(s[i+1:])
		if err != nil {
			return 0, 0, err
		}
		return a, b, nil
	}
	v, err := parseStrict(s)
	if err != nil {
		return 0, 0, err
	}
	return v, v, nil
}

// parseStrict parses a non-negative decimal integer, rejecting anything
// non-numeric (including a leading sign, which would otherwise let a
// negative number slip through strconv.Atoi).
func parseStrict(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty number")
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("non-numeric component %q", s)
		}
	}
	return strconv.Atoi(s)
}

// TidIsInList reports whether (inf, thr) matches list, a range-grammar
// string used to filter breakpoint locations by thread. An empty (or
// all-whitespace) list matches everything.
func TidIsInList(list string, defaultInf, inf, thr int) (bool, error) {
	if strings.TrimSpace(list) == "" {
		return true, nil
	}
	p := NewParser(list, defaultInf, 0)
	for {
		r, ok, err := p.Next()
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		if r.Inferior == inf && r.Thread == thr {
			return true, nil
		}
	}
}
