// Package hook implements the Event Hook Runner (spec §4.D): it invokes a
// configured external command on role transitions, with $TOKEN
// substitution, and never blocks the monitor tick.
package hook

import (
	"sort"
	"strings"
	"sync"
)

// Context supplies the substitution values for one hook invocation. Any
// subset of the tokens may appear in a command template; unknown $tokens
// are left literal and logged once per Runner (spec §4.D, §9 redesign
// note: "a small template renderer with a fixed token set").
type Context struct {
	Initiator   string // [addr]:port of the transitioning backend
	Event       string // transition-category symbolic name
	Parent      string // [addr]:port of this node's master, if any
	Children    string // comma-separated [addr]:port of this node's replicas
	NodeList    string // comma-separated running backends
	List        string // comma-separated all backends
	MasterList  string
	SlaveList   string
	SyncedList  string
	Credentials string // user:pass@[addr]:port list
}

func (c Context) tokens() map[string]string {
	return map[string]string{
		"$INITIATOR":  c.Initiator,
		"$EVENT":      c.Event,
		"$PARENT":     c.Parent,
		"$CHILDREN":   c.Children,
		"$NODELIST":   c.NodeList,
		"$LIST":       c.List,
		"$MASTERLIST": c.MasterList,
		"$SLAVELIST":  c.SlaveList,
		"$SYNCEDLIST": c.SyncedList,
		"$CREDENTIALS": c.Credentials,
	}
}

// unknownTokenLogger reports each distinct unrecognised $token exactly
// once, keyed by the literal token text.
type unknownTokenLogger struct {
	mu      sync.Mutex
	reported map[string]bool
	logFn    func(token string)
}

func newUnknownTokenLogger(logFn func(token string)) *unknownTokenLogger {
	return &unknownTokenLogger{reported: make(map[string]bool), logFn: logFn}
}

func (u *unknownTokenLogger) report(token string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.reported[token] {
		return
	}
	u.reported[token] = true
	if u.logFn != nil {
		u.logFn(token)
	}
}

// render replaces every recognised $TOKEN in template with its Context
// value. A "$" not followed by a recognised token name is left as-is in
// the output; the longest matching token name wins so "$SLAVELIST" is not
// mistaken for "$SLAVE" + "LIST" (no such shorter token exists here, but
// the rule keeps the renderer correct if the token set grows).
func render(template string, ctx Context, unknown *unknownTokenLogger) string {
	values := ctx.tokens()

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })

	var out strings.Builder
	i := 0
	for i < len(template) {
		if template[i] != '$' {
			out.WriteByte(template[i])
			i++
			continue
		}

		matched := false
		for _, name := range names {
			if strings.HasPrefix(template[i:], name) {
				out.WriteString(values[name])
				i += len(name)
				matched = true
				break
			}
		}
		if matched {
			continue
		}

		// Not a known token: find the run of identifier characters after
		// '$' to report a clean token name, then emit it literally.
		j := i + 1
		for j < len(template) && isTokenChar(template[j]) {
			j++
		}
		if unknown != nil && j > i+1 {
			unknown.report(template[i:j])
		}
		out.WriteString(template[i:j])
		i = j
	}
	return out.String()
}

func isTokenChar(b byte) bool {
	return b == '_' ||
		(b >= 'A' && b <= 'Z') ||
		(b >= 'a' && b <= 'z') ||
		(b >= '0' && b <= '9')
}
