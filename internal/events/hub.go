package events

import (
	"context"
	"encoding/json"
	"fmt"
)

// UserSender delivers a payload to every open connection of a user.
type UserSender interface {
	Send(userID string, msg []byte)
}

// HubPublisher pushes events to the owner's websocket connections.
type HubPublisher struct {
	hub UserSender
}

func NewHubPublisher(hub UserSender) *HubPublisher {
	return &HubPublisher{hub: hub}
}

func (p *HubPublisher) Publish(_ context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	p.hub.Send(event.UserID, payload)
	return nil
}
