package persist

import (
	"context"
	"fmt"
	"strings"

	layout "github.com/goliatone/go-layout"
	"github.com/goliatone/go-layout/layering"
	"github.com/goliatone/go-layout/pkg/activity"
)

// Strategy selects how a version conflict is resolved.
type Strategy string

const (
	// StrategyLocal keeps the local document and overwrites the remote one.
	StrategyLocal Strategy = "local"
	// StrategyRemote discards local edits in favour of the remote document.
	StrategyRemote Strategy = "remote"
	// StrategyMerge keeps the remote base with the local widgets and rule order.
	StrategyMerge Strategy = "merge"
)

// ParseStrategy accepts the strategy names case-insensitively.
func ParseStrategy(value string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(value))) {
	case StrategyLocal:
		return StrategyLocal, nil
	case StrategyRemote:
		return StrategyRemote, nil
	case StrategyMerge:
		return StrategyMerge, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, value)
}

// CheckForConflicts polls the backend and records a conflict when its
// version is strictly newer than the last synced one.
func (c *Coordinator) CheckForConflicts(ctx context.Context) (bool, error) {
	remote, err := c.backend.GetLayout(ctx, c.userID)
	if err != nil {
		return false, fmt.Errorf("persist: check conflicts: %w", err)
	}
	if remote == nil {
		return false, nil
	}

	c.mu.Lock()
	local := c.lastSynced
	if remote.Metadata.Version <= local {
		c.mu.Unlock()
		return false, nil
	}
	c.conflict = &Conflict{
		LocalVersion:  local,
		ServerVersion: remote.Metadata.Version,
		Remote:        remote.Clone(),
		DetectedAt:    c.cfg.now(),
	}
	c.mu.Unlock()

	c.autosave.Cancel()
	c.cfg.logger.LogLayout(layout.LogEvent{
		Component: "persist",
		Action:    "conflict_detected",
		LayoutID:  remote.ID,
		Version:   local,
		Fields:    map[string]any{"server_version": remote.Metadata.Version},
	})
	c.emit(ctx, activity.VerbConflictDetected, activity.LayoutEventInput{
		LayoutID:      remote.ID,
		Version:       local,
		ServerVersion: remote.Metadata.Version,
	})
	return true, nil
}

// Conflict returns the pending conflict, if any.
func (c *Coordinator) Conflict() (Conflict, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conflict == nil {
		return Conflict{}, false
	}
	out := *c.conflict
	out.Remote = c.conflict.Remote.Clone()
	return out, true
}

// ResolveConflict reconciles with the current remote document and persists
// the outcome with exactly one save. The remote copy is fetched again so a
// resolution also works without a prior CheckForConflicts.
func (c *Coordinator) ResolveConflict(ctx context.Context, strategy Strategy) error {
	switch strategy {
	case StrategyLocal, StrategyRemote, StrategyMerge:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}

	c.autosave.Cancel()
	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}

	remote, err := c.backend.GetLayout(ctx, c.userID)
	if err != nil {
		return fmt.Errorf("persist: resolve conflict: %w", err)
	}

	var (
		serverVersion int
		override      *int
	)
	if remote != nil {
		serverVersion = remote.Metadata.Version
	}

	switch strategy {
	case StrategyLocal:
		base := serverVersion
		override = &base
		c.store.MarkDirty()

	case StrategyRemote:
		if remote == nil {
			return fmt.Errorf("persist: resolve conflict: %w", ErrNoRemote)
		}
		c.store.Load(*remote, layout.LoadOptions{Dirty: true})
		base := serverVersion
		override = &base

	case StrategyMerge:
		if remote == nil {
			return fmt.Errorf("persist: resolve conflict: %w", ErrNoRemote)
		}
		local, ok := c.store.Document()
		if !ok {
			return layout.ErrNoDocument
		}
		// Merge treats nil slices as unset; an empty local list must win.
		strong := layout.Document{Widgets: local.Widgets, RuleOrder: local.RuleOrder}
		if strong.Widgets == nil {
			strong.Widgets = []layout.Widget{}
		}
		if strong.RuleOrder == nil {
			strong.RuleOrder = []string{}
		}
		merged := layering.Merge(strong, remote.Clone())
		merged.Metadata.Version = serverVersion + 1
		c.store.Load(merged, layout.LoadOptions{Dirty: true})
		next := serverVersion + 1
		override = &next
	}

	// MarkDirty and Load may have re-armed autosave.
	c.autosave.Cancel()

	// The conflict stays pending until the resolution is acknowledged.
	saved, err := c.persist(ctx, "resolve_"+string(strategy), override)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.conflict = nil
	c.mu.Unlock()

	c.emit(ctx, activity.VerbConflictResolved, activity.LayoutEventInput{
		LayoutID:      saved.ID,
		Version:       saved.Metadata.Version,
		ServerVersion: serverVersion,
		Strategy:      string(strategy),
	})
	return nil
}
