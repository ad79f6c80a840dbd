package presentation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event names pushed to viewers.
const (
	EventStartAgent   = "start_agent"
	EventAgentAudio   = "agent_audio"
	EventAgentMessage = "agent_message"
	EventClearAgent   = "clear_agent"
)

// Payload is the data carried by every presentation event.
type Payload struct {
	AgentID string `json:"agent_id"`
	Audio   string `json:"audio,omitempty"`
	Text    string `json:"text,omitempty"`
}

// Event is one message on the presentation channel. Its JSON form is the
// wire format sent to viewers.
type Event struct {
	ID   string  `json:"id"`
	Name string  `json:"event"`
	Data Payload `json:"data"`
	Time int64   `json:"ts"`
}

func newEvent(name string, data Payload) Event {
	return Event{ID: uuid.NewString(), Name: name, Data: data, Time: time.Now().UnixMilli()}
}

func StartAgent(agentID string) Event {
	return newEvent(EventStartAgent, Payload{AgentID: agentID})
}

func AgentAudio(agentID, reference string) Event {
	return newEvent(EventAgentAudio, Payload{AgentID: agentID, Audio: reference})
}

func AgentMessage(agentID, text string) Event {
	return newEvent(EventAgentMessage, Payload{AgentID: agentID, Text: text})
}

func ClearAgent(agentID string) Event {
	return newEvent(EventClearAgent, Payload{AgentID: agentID})
}

// Channel is the one-way push to viewers.
type Channel interface {
	Publish(ctx context.Context, ev Event) error
}

// ChannelFunc adapts a function to Channel.
type ChannelFunc func(ctx context.Context, ev Event) error

func (f ChannelFunc) Publish(ctx context.Context, ev Event) error { return f(ctx, ev) }

// FanOut publishes every event to each channel and returns the first error.
type FanOut []Channel

func (f FanOut) Publish(ctx context.Context, ev Event) error {
	var first error
	for _, ch := range f {
		if ch == nil {
			continue
		}
		if err := ch.Publish(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
