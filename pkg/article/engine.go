package article

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/eunmann/aspect-iter/internal/logctx"
	"github.com/eunmann/aspect-iter/pkg/aspect"
	"github.com/eunmann/aspect-iter/pkg/pattern"
)

// CollisionPolicy decides which resource keeps a role when two resources
// with the same key both claim it.
type CollisionPolicy int

const (
	// LastWins keeps the resource seen last in stream order.
	LastWins CollisionPolicy = iota
	// FirstWins keeps the resource seen first in stream order.
	FirstWins
)

func (p CollisionPolicy) String() string {
	switch p {
	case LastWins:
		return "last-wins"
	case FirstWins:
		return "first-wins"
	default:
		return fmt.Sprintf("CollisionPolicy(%d)", int(p))
	}
}

// ParseCollisionPolicy parses "last-wins" or "first-wins". The empty string
// selects LastWins.
func ParseCollisionPolicy(s string) (CollisionPolicy, error) {
	switch s {
	case "", "last-wins":
		return LastWins, nil
	case "first-wins":
		return FirstWins, nil
	}
	return LastWins, fmt.Errorf("unknown collision policy %q", s)
}

// Stream yields resource identifiers until io.EOF.
type Stream interface {
	Next(ctx context.Context) (string, error)
}

// Config is the read-only configuration an Engine runs with. It may be
// shared by any number of engines.
type Config struct {
	// Table recognises aspects (required).
	Table *aspect.Table
	// Matcher filters candidates before aspect detection; nil accepts all.
	Matcher *pattern.Matcher
	// FullText is the priority order for full-text resolution.
	FullText []aspect.Role
	// Derived maps a role to candidate roles that can stand in for it.
	Derived map[aspect.Role][]aspect.Role
	// MetadataRole is the role whose resource feeds metadata extraction.
	MetadataRole aspect.Role
	// Collision is the policy for roles claimed twice under one key.
	Collision CollisionPolicy
}

// Validate checks the configuration. Failures are *pattern.ConfigError.
func (c *Config) Validate() error {
	if c.Table == nil || c.Table.Len() == 0 {
		return pattern.Configf("aspects", "at least one aspect rule is required")
	}
	if c.Collision != LastWins && c.Collision != FirstWins {
		return pattern.Configf("collision", "unknown policy %v", c.Collision)
	}
	for role, alts := range c.Derived {
		for _, alt := range alts {
			if alt == role {
				return pattern.Configf("derived_roles", "role %s derives from itself", role)
			}
		}
	}
	return nil
}

// Stats counts what an engine did with its input.
type Stats struct {
	// Seen is every identifier read from the stream.
	Seen int64
	// OutOfScope were rejected by the matcher.
	OutOfScope int64
	// Unrecognized matched no aspect rule.
	Unrecognized int64
	// Malformed could not be evaluated and were skipped.
	Malformed int64
	// Collisions counts roles claimed by more than one resource in a group.
	Collisions int64
	// Groups is the number of groups emitted.
	Groups int64
}

// Engine accumulates resources into groups. Input need not be sorted or
// clustered by key. An Engine is not safe for concurrent use; concurrent
// scans each use their own Engine.
type Engine struct {
	cfg    Config
	groups map[string]*Group
	order  []string
	stats  Stats
}

// NewEngine creates an engine. A zero MetadataRole defaults to
// aspect.RoleArticleMetadata and a nil FullText priority to
// aspect.DefaultFullTextPriority.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.MetadataRole == "" {
		cfg.MetadataRole = aspect.RoleArticleMetadata
	}
	if cfg.FullText == nil {
		cfg.FullText = aspect.DefaultFullTextPriority
	}
	return &Engine{
		cfg:    cfg,
		groups: make(map[string]*Group),
	}, nil
}

// Add offers one candidate to the engine. Malformed candidates are logged
// and skipped; Add never fails.
func (e *Engine) Add(ctx context.Context, id string) {
	e.stats.Seen++
	log := logctx.FromContext(ctx)

	if e.cfg.Matcher != nil {
		ok, err := e.cfg.Matcher.Match(id)
		if err != nil {
			e.stats.Malformed++
			log.Warn().Str("resource_id", id).Err(err).Msg("skipping resource: pattern evaluation failed")
			return
		}
		if !ok {
			e.stats.OutOfScope++
			return
		}
	}

	a, ok, err := e.cfg.Table.Derive(id)
	if err != nil {
		e.stats.Malformed++
		log.Warn().Str("resource_id", id).Err(err).Msg("skipping resource: aspect derivation failed")
		return
	}
	if !ok {
		e.stats.Unrecognized++
		return
	}

	g, exists := e.groups[a.Key]
	if !exists {
		g = newGroup(a.Key, e.cfg.Derived)
		e.groups[a.Key] = g
		e.order = append(e.order, a.Key)
	}
	g.addResource(id)

	for _, role := range a.Roles {
		prev, taken := g.Members[role]
		if taken && prev != id {
			e.stats.Collisions++
			log.Debug().
				Str("key", a.Key).
				Str("role", string(role)).
				Str("kept", e.keep(prev, id)).
				Str("dropped", e.drop(prev, id)).
				Msg("role claimed twice")
			if e.cfg.Collision == FirstWins {
				continue
			}
		}
		g.Members[role] = id
	}
}

func (e *Engine) keep(prev, next string) string {
	if e.cfg.Collision == FirstWins {
		return prev
	}
	return next
}

func (e *Engine) drop(prev, next string) string {
	if e.cfg.Collision == FirstWins {
		return next
	}
	return prev
}

// Finish closes every open group and returns them in the order their keys
// were first observed, with FullText and Metadata resolved. The engine is
// reset and may be reused for another scan.
func (e *Engine) Finish() []*Group {
	out := make([]*Group, 0, len(e.order))
	for _, key := range e.order {
		g := e.groups[key]
		if len(g.Members) == 0 {
			continue
		}
		g.FullText, _ = Resolve(g, e.cfg.FullText)
		g.Metadata, _ = g.Role(e.cfg.MetadataRole)
		g.seen = nil
		out = append(out, g)
	}
	e.stats.Groups += int64(len(out))
	e.groups = make(map[string]*Group)
	e.order = nil
	return out
}

// Process drains s and returns the completed groups. Only stream failures
// and context cancellation are returned as errors.
func (e *Engine) Process(ctx context.Context, s Stream) ([]*Group, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id, err := s.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read resource stream: %w", err)
		}
		e.Add(ctx, id)
	}
	return e.Finish(), nil
}

// Stats returns the counters accumulated so far.
func (e *Engine) Stats() Stats {
	return e.stats
}
