package hub

import (
	"github.com/netaamz/moveo-project/internal/events"
	"github.com/netaamz/moveo-project/internal/registry"
)

// message is one unit of work for the hub loop.
type message interface {
	apply(h *Hub)
}

type connectMsg struct {
	peer  Peer
	reply chan<- registry.ConnID
}

func (m connectMsg) apply(h *Hub) {
	id := h.reg.OnConnect()
	h.peers[id] = m.peer
	h.logger.Debug("hub: connection opened", "conn", id, "conns", h.reg.Len())
	m.reply <- id
}

type joinMsg struct {
	id     registry.ConnID
	userID string
}

func (m joinMsg) apply(h *Hub) {
	h.reg.OnJoin(m.id, m.userID)
	h.logger.Debug("hub: joined", "conn", m.id, "user", m.userID, "conns", h.reg.Len())
}

type disconnectMsg struct {
	id registry.ConnID
}

func (m disconnectMsg) apply(h *Hub) {
	if p, ok := h.peers[m.id]; ok {
		p.Close()
		delete(h.peers, m.id)
	}
	left, ok := h.reg.OnDisconnect(m.id)
	h.logger.Debug("hub: connection closed", "conn", m.id, "conns", h.reg.Len())
	if ok {
		h.deliver(left, h.reg.Members(left.Room))
	}
}

type publishMsg struct {
	from  registry.ConnID
	event events.Event
}

func (m publishMsg) apply(h *Hub) {
	n := h.deliver(m.event, h.reg.All())
	h.logger.Info("hub: broadcast",
		"type", string(m.event.Type),
		"rehearsal", m.event.RehearsalID,
		"from", m.from,
		"delivered", n,
	)
	if h.observer != nil {
		h.observer(m.event)
	}
}

type countMsg struct {
	reply chan<- int
}

func (m countMsg) apply(h *Hub) {
	m.reply <- h.reg.Len()
}

// deliver encodes e once and offers it to each target, returning how many
// peers accepted it.
func (h *Hub) deliver(e events.Event, targets []registry.ConnID) int {
	frame, err := events.Encode(e)
	if err != nil {
		h.logger.Error("hub: encode event", "type", string(e.Type), "err", err)
		return 0
	}
	n := 0
	for _, id := range targets {
		p, ok := h.peers[id]
		if !ok {
			continue
		}
		if p.Send(frame) {
			n++
			continue
		}
		h.logger.Debug("hub: dropped frame", "conn", id, "type", string(e.Type), "code", string(events.CodeTransportUnavailable))
	}
	return n
}
