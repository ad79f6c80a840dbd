package control

import (
	"fmt"
	"strconv"
	"strings"
)

// KeyMap binds key names (as bubbletea reports them) to events.
type KeyMap map[string]Event

// DefaultKeyMap mirrors the stream-deck layout: f4 pause, 1-9 activate,
// f7/f8 push-to-talk, f6 ingest chat, f9 or ctrl+c shutdown.
func DefaultKeyMap() KeyMap {
	km := KeyMap{
		"f4":     {Kind: KindPause},
		"f6":     {Kind: KindIngest},
		"f7":     {Kind: KindTalkBegin},
		"f8":     {Kind: KindTalkEnd},
		"f9":     {Kind: KindShutdown},
		"ctrl+c": {Kind: KindShutdown},
	}
	for i := 1; i <= 9; i++ {
		km[strconv.Itoa(i)] = Event{Kind: KindActivate, Agent: i}
	}
	return km
}

// ParseAction turns "pause", "activate:2" or "terminate:3" into an Event.
func ParseAction(action string) (Event, error) {
	name, arg, _ := strings.Cut(strings.TrimSpace(strings.ToLower(action)), ":")
	kind := Kind(name)
	switch kind {
	case KindPause, KindTalkBegin, KindTalkEnd, KindIngest, KindShutdown:
		if arg != "" {
			return Event{}, fmt.Errorf("action %q takes no argument", name)
		}
		return Event{Kind: kind}, nil
	case KindActivate, KindTerminate:
		n, err := strconv.Atoi(arg)
		if err != nil || n <= 0 {
			return Event{}, fmt.Errorf("action %q needs an agent number, got %q", name, arg)
		}
		return Event{Kind: kind, Agent: n}, nil
	default:
		return Event{}, fmt.Errorf("unknown action %q", action)
	}
}

// WithBindings overlays key -> action overrides on km.
func (km KeyMap) WithBindings(bindings map[string]string) (KeyMap, error) {
	out := make(KeyMap, len(km)+len(bindings))
	for k, v := range km {
		out[k] = v
	}
	for key, action := range bindings {
		ev, err := ParseAction(action)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}
		out[strings.ToLower(strings.TrimSpace(key))] = ev
	}
	return out, nil
}
