// Package keymap binds keyboard chords to commands. The host UI translates
// its key events into chords and calls Dispatch; nothing here listens for
// input on its own.
package keymap

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Command runs in response to a chord and reports whether it did anything.
type Command func() bool

// modifier order used when normalizing chords.
var modifierOrder = []string{"ctrl", "alt", "shift", "meta"}

var modifierAliases = map[string]string{
	"control": "ctrl",
	"ctl":     "ctrl",
	"option":  "alt",
	"opt":     "alt",
	"cmd":     "meta",
	"command": "meta",
	"super":   "meta",
	"win":     "meta",
}

// Dispatcher stores commands keyed by normalized chord.
type Dispatcher struct {
	mu       sync.RWMutex
	commands map[string]Command
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{commands: make(map[string]Command)}
}

// Register stores cmd under chord guarding against duplicates.
func (d *Dispatcher) Register(chord string, cmd Command) error {
	if cmd == nil {
		return fmt.Errorf("keymap: command for %q is nil", chord)
	}
	key, err := Normalize(chord)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.commands == nil {
		d.commands = make(map[string]Command)
	}
	if _, exists := d.commands[key]; exists {
		return fmt.Errorf("keymap: chord %q already registered", key)
	}
	d.commands[key] = cmd
	return nil
}

// Dispatch runs the command bound to chord. It reports whether a command was
// bound and whether that command did anything.
func (d *Dispatcher) Dispatch(chord string) (bound, handled bool) {
	if d == nil {
		return false, false
	}
	key, err := Normalize(chord)
	if err != nil {
		return false, false
	}
	d.mu.RLock()
	cmd := d.commands[key]
	d.mu.RUnlock()
	if cmd == nil {
		return false, false
	}
	return true, cmd()
}

// Bindings returns registered chords sorted alphabetically.
func (d *Dispatcher) Bindings() []string {
	if d == nil {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	chords := make([]string, 0, len(d.commands))
	for chord := range d.commands {
		chords = append(chords, chord)
	}
	sort.Strings(chords)
	return chords
}

// Normalize lowercases chord, resolves modifier aliases and orders modifiers
// as ctrl+alt+shift+meta followed by the key.
func Normalize(chord string) (string, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(chord)), "+")
	mods := map[string]bool{}
	key := ""
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if alias, ok := modifierAliases[part]; ok {
			part = alias
		}
		switch part {
		case "":
			return "", fmt.Errorf("keymap: malformed chord %q", chord)
		case "ctrl", "alt", "shift", "meta":
			mods[part] = true
		default:
			if key != "" {
				return "", fmt.Errorf("keymap: chord %q has more than one key", chord)
			}
			key = part
		}
	}
	if key == "" {
		return "", fmt.Errorf("keymap: chord %q has no key", chord)
	}
	out := make([]string, 0, len(mods)+1)
	for _, mod := range modifierOrder {
		if mods[mod] {
			out = append(out, mod)
		}
	}
	return strings.Join(append(out, key), "+"), nil
}

// HistoryNavigator is the part of a history store the undo bindings need.
type HistoryNavigator interface {
	Undo() bool
	Redo() bool
}

// Default undo/redo chords for both Windows/Linux and macOS conventions.
var (
	UndoChords = []string{"ctrl+z", "meta+z"}
	RedoChords = []string{"ctrl+shift+z", "ctrl+y", "meta+shift+z"}
)

// BindHistory registers UndoChords and RedoChords against nav.
func BindHistory(d *Dispatcher, nav HistoryNavigator) error {
	if d == nil || nav == nil {
		return fmt.Errorf("keymap: dispatcher and navigator are required")
	}
	for _, chord := range UndoChords {
		if err := d.Register(chord, nav.Undo); err != nil {
			return err
		}
	}
	for _, chord := range RedoChords {
		if err := d.Register(chord, nav.Redo); err != nil {
			return err
		}
	}
	return nil
}
