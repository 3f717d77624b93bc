package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nedscode/dbrouted/pkg/metrics"
	"github.com/nedscode/dbrouted/pkg/registry"
)

// ErrNoCandidates is returned when no registered backend satisfies the
// required role mask.
var ErrNoCandidates = fmt.Errorf("router: no eligible backend found")

// Router selects one backend per client session using a weighted-least-
// connections strategy, matching the original readconnroute module's
// scoring (spec §4.E), generalized from round-robin selection in the
// teacher's pkg/ingress.LoadBalancer.
type Router struct {
	Registry *registry.Registry
	Sessions *SessionRegistry

	// RequireMask/RequireValue select eligible backends: a backend
	// qualifies when (flags & RequireMask) == (RequireValue & RequireMask),
	// mirroring RoleFlags.Matches. The zero value requires only RUNNING.
	RequireMask  registry.RoleFlags
	RequireValue registry.RoleFlags
}

// NewRouter builds a Router requiring RUNNING (and nothing else) by
// default.
func NewRouter(reg *registry.Registry, sessions *SessionRegistry) *Router {
	return &Router{
		Registry:     reg,
		Sessions:     sessions,
		RequireMask:  registry.RUNNING,
		RequireValue: registry.RUNNING,
	}
}

// candidates returns every registered backend eligible for selection under
// (mask, value): RUNNING (checked independently of mask, per spec §4.E
// step 2), none of MAINT/DRAINING/DISK_EXHAUSTED/AUTH_ERROR set, matching
// the role filter, and excluding root when value includes SLAVE but not
// MASTER (spec §4.E step 3's second special case: a root master must
// never be handed out as a plain slave).
func (r *Router) candidates(mask, value registry.RoleFlags, root *registry.Backend) []*registry.Backend {
	var out []*registry.Backend
	for _, b := range r.Registry.All() {
		flags := b.Flags()
		if !flags.Has(registry.RUNNING) {
			continue
		}
		if flags.Has(registry.MAINT) || flags.Has(registry.DRAINING) ||
			flags.Has(registry.DISK_EXHAUSTED) || flags.Has(registry.AUTH_ERROR) {
			continue
		}
		if !flags.Matches(mask, value) {
			continue
		}
		if root != nil && b == root && value.Has(registry.SLAVE) && !value.Has(registry.MASTER) {
			continue
		}
		out = append(out, b)
	}
	return out
}

// score implements the original router's weighted-least-connections
// formula: (connections + 1) * 1000 / weight. Lower scores win. Weight 0
// is a special case handled by betterCandidate, not here.
func score(b *registry.Backend) int64 {
	return (b.Connections() + 1) * 1000 / int64(b.Weight)
}

// betterCandidate reports whether candidate should replace current as the
// router's pick, per readconnroute.cc: weight-0 backends always lose to a
// weighted one; between two weight-0 backends, fewer lifetime sessions
// wins; between two weighted backends, the lower score wins and ties break
// on fewer lifetime sessions.
func betterCandidate(current, candidate *registry.Backend) bool {
	if current == nil {
		return true
	}

	if (current.Weight == 0) != (candidate.Weight == 0) {
		return candidate.Weight != 0
	}

	if candidate.Weight == 0 && current.Weight == 0 {
		return candidate.LifetimeSessions() < current.LifetimeSessions()
	}

	cs, ds := score(current), score(candidate)
	if cs != ds {
		return ds < cs
	}
	return candidate.LifetimeSessions() < current.LifetimeSessions()
}

// Select picks one eligible backend without creating a session, for
// callers that need to inspect the choice (e.g. admin diagnostics) before
// committing to it.
func (r *Router) Select(ctx context.Context) (*registry.Backend, error) {
	b, _, err := r.selectEffective()
	return b, err
}

// selectEffective implements spec §4.E's full selection algorithm,
// including the three root-master special cases, and reports the
// effective `value` the caller's session should be bound with (widened
// with MASTER on a root-master fallback, per step 4, so later validity
// checks accept it).
func (r *Router) selectEffective() (*registry.Backend, registry.RoleFlags, error) {
	mask, value := r.RequireMask, r.RequireValue
	root := RootMaster(r.Registry)

	// Special case (a): value == MASTER only ever resolves to root_master.
	if value == registry.MASTER {
		if root == nil {
			metrics.RouterSelections.WithLabelValues("no_candidate").Inc()
			return nil, value, ErrNoCandidates
		}
		metrics.RouterSelections.WithLabelValues("selected").Inc()
		return root, value, nil
	}

	var best *registry.Backend
	for _, b := range r.candidates(mask, value, root) {
		if betterCandidate(best, b) {
			best = b
		}
	}
	if best != nil {
		metrics.RouterSelections.WithLabelValues("selected").Inc()
		return best, value, nil
	}

	// Special case (c): no generic candidate, but a root master exists.
	if root != nil {
		metrics.RouterSelections.WithLabelValues("selected_root_master_fallback").Inc()
		return root, value | registry.MASTER, nil
	}

	metrics.RouterSelections.WithLabelValues("no_candidate").Inc()
	return nil, value, ErrNoCandidates
}

// Route selects a backend and opens a session bound to it for the
// client's entire lifetime (spec §4.E).
func (r *Router) Route(ctx context.Context) (*Session, error) {
	backend, value, err := r.selectEffective()
	if err != nil {
		return nil, err
	}
	return r.Sessions.Create(backend, r.RequireMask, value), nil
}

// RootMaster returns the highest-weight backend currently flagged MASTER,
// or nil if none exists, matching the original router's get_root_master.
func RootMaster(reg *registry.Registry) *registry.Backend {
	var best *registry.Backend
	for _, b := range reg.All() {
		if !b.Flags().Has(registry.MASTER) {
			continue
		}
		if best == nil || b.Weight > best.Weight {
			best = b
		}
	}
	return best
}

// InvalidReason names why a session-lifetime validity check failed (spec
// §4.E, §7's diagnostic taxonomy: "session closed / backend down /
// backend in maintenance / backend no longer eligible").
type InvalidReason int

const (
	// Valid means the session's binding still holds.
	Valid InvalidReason = iota
	ReasonSessionClosed
	ReasonBackendDown
	ReasonBackendMaintenance
	ReasonBackendIneligible
)

func (r InvalidReason) String() string {
	switch r {
	case Valid:
		return "valid"
	case ReasonSessionClosed:
		return "session closed"
	case ReasonBackendDown:
		return "backend down"
	case ReasonBackendMaintenance:
		return "backend in maintenance"
	case ReasonBackendIneligible:
		return "backend no longer eligible"
	default:
		return "unknown"
	}
}

// validate re-verifies a live session's binding against the backend's
// current state (spec §4.E "Session-lifetime validity"): the backend must
// still be RUNNING and match the mask/value the session was bound with;
// a session whose value includes MASTER (including a root-master fallback
// session) must still point at the current root_master. A backend that is merely DRAINING does not invalidate the
// session — graceful drain lets it terminate naturally.
func (r *Router) validate(s *Session) InvalidReason {
	flags := s.Backend.Flags()

	if !flags.Has(registry.RUNNING) {
		return ReasonBackendDown
	}
	if flags.Has(registry.MAINT) {
		return ReasonBackendMaintenance
	}
	if !flags.Matches(s.Mask, s.Value) {
		return ReasonBackendIneligible
	}
	if s.Value.Has(registry.MASTER) {
		root := RootMaster(r.Registry)
		if root == nil || root.Name != s.Backend.Name {
			return ReasonBackendIneligible
		}
	}
	return Valid
}

// CheckSession re-verifies that the session bound to id is still valid
// before a client packet is routed through it. An invalid session is
// closed and the reason is returned; callers drop the packet and surface
// reason as the diagnostic.
func (r *Router) CheckSession(id uuid.UUID) (*Session, InvalidReason) {
	s := r.Sessions.Get(id)
	if s == nil {
		return nil, ReasonSessionClosed
	}
	if reason := r.validate(s); reason != Valid {
		r.Sessions.Close(id)
		return s, reason
	}
	return s, Valid
}

// ParseRouterOptions translates the `router_options` config grammar (spec
// §6: "router_options = {master|slave|running|synced|ndb}",
// comma/whitespace separated) into a (mask, value) pair suitable for
// Router.RequireMask/RequireValue. An empty string yields the default
// RUNNING-only filter.
func ParseRouterOptions(s string) (mask, value registry.RoleFlags, err error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	if len(fields) == 0 {
		return registry.RUNNING, registry.RUNNING, nil
	}

	var bits registry.RoleFlags
	for _, f := range fields {
		switch strings.ToLower(strings.TrimSpace(f)) {
		case "master":
			bits |= registry.MASTER
		case "slave":
			bits |= registry.SLAVE
		case "running":
			bits |= registry.RUNNING
		case "synced":
			bits |= registry.JOINED
		case "ndb":
			bits |= registry.NDB
		case "":
			continue
		default:
			return 0, 0, fmt.Errorf("router: unknown router_options token %q", f)
		}
	}
	return bits, bits, nil
}
