// Package websocket pushes meter updates to subscribed browser clients.
package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"horizonx-meter/internal/logger"
	"horizonx-meter/internal/meter"
)

const (
	EventMeterUpdated = "meter.updated"
	EventSubscribed   = "subscribed"
)

// Event is the frame sent to clients.
type Event struct {
	Channel string `json:"channel"`
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

type Hub struct {
	clients  map[*Client]bool
	channels map[string]map[*Client]bool

	register    chan *Client
	unregister  chan *Client
	subscribe   chan *Subscription
	unsubscribe chan *Subscription
	events      chan *Event
	done        chan struct{}

	mu        sync.Mutex
	observers map[meter.Kind]*Observer

	log logger.Logger
}

type Subscription struct {
	client  *Client
	channel string
}

func NewHub(log logger.Logger) *Hub {
	return &Hub{
		clients:  make(map[*Client]bool),
		channels: make(map[string]map[*Client]bool),

		register:    make(chan *Client),
		unregister:  make(chan *Client),
		subscribe:   make(chan *Subscription),
		unsubscribe: make(chan *Subscription),
		events:      make(chan *Event, 100),
		done:        make(chan struct{}),

		observers: make(map[meter.Kind]*Observer),
		log:       log,
	}
}

// Run serves the hub until ctx is done. Every client is disconnected on
// return.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.remove(client)
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			h.log.Info("ws: client registered", "id", client.ID, "total_clients", len(h.clients))

		case client := <-h.unregister:
			h.remove(client)

		case sub := <-h.subscribe:
			if !h.clients[sub.client] {
				continue
			}
			if h.channels[sub.channel] == nil {
				h.channels[sub.channel] = make(map[*Client]bool)
			}
			h.channels[sub.channel][sub.client] = true
			h.deliver(sub.client, &Event{Channel: sub.channel, Event: EventSubscribed})
			h.log.Debug("ws: client subscribed", "client_id", sub.client.ID, "channel", sub.channel)

		case sub := <-h.unsubscribe:
			if subs, ok := h.channels[sub.channel]; ok && subs[sub.client] {
				delete(subs, sub.client)
				if len(subs) == 0 {
					delete(h.channels, sub.channel)
				}
				h.log.Debug("ws: client unsubscribed", "client_id", sub.client.ID, "channel", sub.channel)
			}

		case event := <-h.events:
			h.handleEvent(event)
		}
	}
}

// Register adds client to the hub. It reports false once the hub stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) request(ch chan *Subscription, sub *Subscription) {
	select {
	case ch <- sub:
	case <-h.done:
	}
}

func (h *Hub) remove(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}

	delete(h.clients, client)
	close(client.send)

	for channel, subs := range h.channels {
		if subs[client] {
			delete(subs, client)
			if len(subs) == 0 {
				delete(h.channels, channel)
			}
		}
	}

	h.log.Info("ws: client unregistered", "id", client.ID, "total_clients", len(h.clients))
}

func (h *Hub) handleEvent(event *Event) {
	subs, ok := h.channels[event.Channel]
	if !ok {
		return
	}

	message, err := json.Marshal(event)
	if err != nil {
		h.log.Error("ws: failed to marshal event", "error", err)
		return
	}

	for client := range subs {
		h.send(client, message)
	}
}

func (h *Hub) deliver(client *Client, event *Event) {
	message, err := json.Marshal(event)
	if err != nil {
		h.log.Error("ws: failed to marshal event", "error", err)
		return
	}
	h.send(client, message)
}

func (h *Hub) send(client *Client, message []byte) {
	select {
	case client.send <- message:
	default:
		h.log.Warn("ws: client channel full, force unregister", "id", client.ID)
		h.remove(client)
	}
}

// Broadcast queues an event for the subscribers of channel. It never
// blocks; when the queue is full the event is dropped.
func (h *Hub) Broadcast(channel, event string, payload any) {
	select {
	case h.events <- &Event{Channel: channel, Event: event, Payload: payload}:
	default:
		h.log.Warn("ws: event queue full, event dropped", "channel", channel)
	}
}

// Observer returns the meter observer publishing to the channel named
// after kind. Repeated calls return the same observer.
func (h *Hub) Observer(kind meter.Kind) *Observer {
	h.mu.Lock()
	defer h.mu.Unlock()

	if o, ok := h.observers[kind]; ok {
		return o
	}
	o := &Observer{hub: h, channel: kind.String()}
	h.observers[kind] = o
	return o
}

type Observer struct {
	hub     *Hub
	channel string
}

func (o *Observer) Update(u meter.Update) {
	o.hub.Broadcast(o.channel, EventMeterUpdated, u)
}
