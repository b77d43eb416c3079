package tools

import (
	"sort"
	"sync"
)

// Permissions holds per-session allow/deny overrides keyed by tool name or
// category. Everything is allowed until denied; an explicit allow for a
// tool name beats a category deny.
type Permissions struct {
	mu    sync.RWMutex
	allow map[string]bool
	deny  map[string]bool
}

// NewPermissions creates an empty override set
func NewPermissions() *Permissions {
	return &Permissions{
		allow: make(map[string]bool),
		deny:  make(map[string]bool),
	}
}

// Allow lifts a deny on a tool or category
func (p *Permissions) Allow(target string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.deny, target)
	p.allow[target] = true
}

// Deny blocks a tool or category
func (p *Permissions) Deny(target string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.allow, target)
	p.deny[target] = true
}

// Allowed reports whether a tool may run
func (p *Permissions) Allowed(name string, category Category) bool {
	if p == nil {
		return true
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.allow[name] {
		return true
	}
	if p.deny[name] {
		return false
	}
	return !p.deny[string(category)]
}

// Denied lists the denied targets
func (p *Permissions) Denied() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.deny))
	for k := range p.deny {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
