// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package testkit

import "sync"

// Message is one recorded notification. Room is set for room broadcasts and
// User for direct sends.
type Message struct {
	Room    string
	User    string
	Event   string
	Payload any
}

// Notifier records everything sent through ports.Notifier.
type Notifier struct {
	mu   sync.Mutex
	msgs []Message
}

func NewNotifier() *Notifier { return &Notifier{} }

func (n *Notifier) BroadcastToRoom(sessionID, event string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, Message{Room: sessionID, Event: event, Payload: payload})
}

func (n *Notifier) SendToUser(identity, event string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, Message{User: identity, Event: event, Payload: payload})
}

// Events returns the messages with the given event name.
func (n *Notifier) Events(event string) []Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []Message
	for _, m := range n.msgs {
		if m.Event == event {
			out = append(out, m)
		}
	}
	return out
}
