// Package rewrite maps public request paths to internal query variables.
//
// Rules are registered into a pending set and only take effect once the table
// is flushed. Matching always uses the last flushed (or loaded) set, so a rule
// registered after boot is invisible until something flushes the table.
package rewrite

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/zjrosen/noajax/internal/log"
)

// Position controls where a rule is placed relative to other rules.
type Position int

const (
	// PositionBottom appends the rule after every top rule.
	PositionBottom Position = iota
	// PositionTop places the rule ahead of every bottom rule.
	PositionTop
)

// Rule maps a path pattern to a query string such as "index.php?flag=true".
type Rule struct {
	Pattern string `yaml:"pattern" json:"pattern"`
	Query   string `yaml:"query" json:"query"`
}

// Persister stores a flushed rule set.
type Persister interface {
	Save(ctx context.Context, rules []Rule) error
}

type compiled struct {
	rule Rule
	re   *regexp.Regexp
}

var matchRef = regexp.MustCompile(`\$matches\[(\d+)\]`)

// Table is the rewrite table. The zero value is not usable; use NewTable.
type Table struct {
	mu sync.RWMutex

	// tags: query var -> value regex
	tags map[string]string

	top    []Rule
	bottom []Rule

	active    []compiled
	persister Persister
}

// NewTable creates an empty table. persister may be nil, in which case
// flushes only update the in-memory rule set.
func NewTable(persister Persister) *Table {
	return &Table{
		tags:      make(map[string]string),
		persister: persister,
	}
}

// AddTag registers a rewrite tag of the form "%name%". The tag's name becomes
// a recognised query variable; unrecognised variables are dropped by Match.
func (t *Table) AddTag(tag, regex string) {
	name := strings.Trim(tag, "%")
	if name == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.tags[name] = regex
}

// HasTag reports whether name is a recognised query variable.
func (t *Table) HasTag(name string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.tags[name]
	return ok
}

// AddRule registers pattern -> query at pos. Registering a pattern twice
// replaces the earlier query and moves the rule to pos.
func (t *Table) AddRule(pattern, query string, pos Position) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.top = removePattern(t.top, pattern)
	t.bottom = removePattern(t.bottom, pattern)

	r := Rule{Pattern: pattern, Query: query}
	if pos == PositionTop {
		t.top = append(t.top, r)
	} else {
		t.bottom = append(t.bottom, r)
	}
}

func removePattern(rules []Rule, pattern string) []Rule {
	out := rules[:0]
	for _, r := range rules {
		if r.Pattern != pattern {
			out = append(out, r)
		}
	}
	return out
}

// Pending returns the registered but not yet flushed rules in match order.
func (t *Table) Pending() []Rule {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Rule, 0, len(t.top)+len(t.bottom))
	out = append(out, t.top...)
	return append(out, t.bottom...)
}

// Reset drops every pending rule. Tags and the active set are kept so
// requests keep matching while registrations are rebuilt.
func (t *Table) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.top = nil
	t.bottom = nil
}

// Flush makes the pending rules active and persists them.
// Rules whose pattern does not compile are skipped.
func (t *Table) Flush(ctx context.Context) error {
	rules := t.Pending()
	active := compile(rules)

	t.mu.Lock()
	t.active = active
	persister := t.persister
	t.mu.Unlock()

	log.Info(log.CatRewrite, "rewrite table flushed", "rules", len(active))

	if persister == nil {
		return nil
	}
	saved := make([]Rule, len(active))
	for i, c := range active {
		saved[i] = c.rule
	}
	if err := persister.Save(ctx, saved); err != nil {
		return fmt.Errorf("persisting rewrite rules: %w", err)
	}
	return nil
}

// Load replaces the active set with previously persisted rules.
func (t *Table) Load(rules []Rule) {
	active := compile(rules)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = active
}

// Rules returns the active rules in match order.
func (t *Table) Rules() []Rule {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Rule, len(t.active))
	for i, c := range t.active {
		out[i] = c.rule
	}
	return out
}

func compile(rules []Rule) []compiled {
	out := make([]compiled, 0, len(rules))
	for _, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			log.Warn(log.CatRewrite, "skipping invalid rewrite pattern", "pattern", r.Pattern, "error", err)
			continue
		}
		out = append(out, compiled{rule: r, re: re})
	}
	return out
}

// Match resolves a request path against the active rules. The first matching
// rule wins. The returned values hold only recognised query variables.
func (t *Table) Match(path string) (url.Values, bool) {
	path = strings.TrimPrefix(path, "/")

	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, c := range t.active {
		m := c.re.FindStringSubmatch(path)
		if m == nil {
			continue
		}
		return t.queryVars(expandMatches(c.rule.Query, m)), true
	}
	return nil, false
}

// expandMatches substitutes $matches[N] references with capture groups.
func expandMatches(query string, m []string) string {
	return matchRef.ReplaceAllStringFunc(query, func(ref string) string {
		n, err := strconv.Atoi(matchRef.FindStringSubmatch(ref)[1])
		if err != nil || n >= len(m) {
			return ""
		}
		return url.QueryEscape(m[n])
	})
}

// queryVars parses the query part of a rule target, keeping known tags.
// Caller holds t.mu.
func (t *Table) queryVars(target string) url.Values {
	if i := strings.IndexByte(target, '?'); i >= 0 {
		target = target[i+1:]
	}
	parsed, err := url.ParseQuery(target)
	if err != nil {
		log.Debug(log.CatRewrite, "malformed rule query", "query", target, "error", err)
	}

	vars := url.Values{}
	for name, values := range parsed {
		if _, ok := t.tags[name]; ok {
			vars[name] = values
		}
	}
	return vars
}
