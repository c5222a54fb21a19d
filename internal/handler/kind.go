// Package handler loads, stores and dispatches the bot's pluggable units:
// slash commands, buttons, select menus, modals and gateway events.
package handler

import "fmt"

type Kind string

const (
	KindCommand Kind = "command"
	KindButton  Kind = "button"
	KindMenu    Kind = "menu"
	KindModal   Kind = "modal"
	KindEvent   Kind = "event"
)

// Kinds lists every kind in load order.
var Kinds = []Kind{KindCommand, KindButton, KindMenu, KindModal, KindEvent}

func ParseKind(value string) (Kind, error) {
	for _, kind := range Kinds {
		if string(kind) == value {
			return kind, nil
		}
	}
	return "", fmt.Errorf("unknown handler kind %q", value)
}

// Mandatory reports whether an empty registry of this kind must stop startup.
func (k Kind) Mandatory() bool {
	return k == KindCommand || k == KindEvent
}

// Category is the stream category interaction kinds subscribe to. Event
// definitions subscribe to their own event name instead.
func (k Kind) Category() string {
	return "interaction:" + string(k)
}

func (k Kind) String() string {
	return string(k)
}
