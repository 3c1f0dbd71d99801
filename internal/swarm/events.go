package swarm

import (
	"reflect"
	"sync"

	"github.com/chordmesh/ringsnode/internal/identity"
)

// messageSource is the slice of *transport.Transport that the event pump
// actually needs. Accepting the interface rather than the concrete type
// keeps this package testable without a live WebRTC connection.
type messageSource interface {
	OnMessage(fn func([]byte))
}

// perTransportBuffer is the bound on each transport's own inbound event
// channel.
const perTransportBuffer = 64

// eventPump fans the per-transport inbound channels together and lets
// PollMessage wait on whichever set happens to be current, using
// reflect.Select since the channel set grows and shrinks as transports are
// registered and disconnected — something a fixed select statement can't
// express.
type eventPump struct {
	mu     sync.Mutex
	chans  map[identity.Did]chan []byte
	cursor int // round-robin starting point for the next poll

	onDrop func(did identity.Did) // notified when a full channel drops its oldest entry
}

func newEventPump(onDrop func(did identity.Did)) *eventPump {
	return &eventPump{chans: make(map[identity.Did]chan []byte), onDrop: onDrop}
}

// watch starts pumping t's inbound messages into this Did's channel. A full
// channel drops its oldest buffered message to make room for the new one
// rather than blocking the DataChannel's own receive callback.
func (p *eventPump) watch(did identity.Did, t messageSource) {
	ch := make(chan []byte, perTransportBuffer)

	p.mu.Lock()
	p.chans[did] = ch
	p.mu.Unlock()

	t.OnMessage(func(data []byte) {
		for {
			select {
			case ch <- data:
				return
			default:
				select {
				case <-ch:
					if p.onDrop != nil {
						p.onDrop(did)
					}
				default:
				}
			}
		}
	})
}

// forget stops routing a Did's events and drops its channel.
func (p *eventPump) forget(did identity.Did) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.chans, did)
}

// poll waits for the next message from any watched transport, or for stop
// to be closed. Successive calls rotate the starting point so no single
// busy transport can starve the others.
func (p *eventPump) poll(stop <-chan struct{}) (identity.Did, []byte, bool) {
	for {
		p.mu.Lock()
		n := len(p.chans)
		dids := make([]identity.Did, 0, n)
		cases := make([]reflect.SelectCase, 0, n+1)
		for did, ch := range p.chans {
			dids = append(dids, did)
			cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ch)})
		}
		start := p.cursor % max(n, 1)
		p.cursor++
		p.mu.Unlock()

		// Rotate the transport cases so the starting index for this poll
		// isn't always 0, then append stop last so its index is stable.
		rotated := make([]reflect.SelectCase, 0, len(cases)+1)
		rotated = append(rotated, cases[start:]...)
		rotated = append(rotated, cases[:start]...)
		rotated = append(rotated, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(stop)})

		rotatedDids := make([]identity.Did, 0, len(dids))
		rotatedDids = append(rotatedDids, dids[start:]...)
		rotatedDids = append(rotatedDids, dids[:start]...)

		chosen, recv, ok := reflect.Select(rotated)
		if chosen == len(rotated)-1 {
			return identity.Did{}, nil, false // stop fired
		}
		if !ok {
			// That transport's channel was closed; loop and rebuild the
			// case set. forget only removes a channel from the map without
			// closing it, so nothing in this package takes this branch.
			continue
		}
		return rotatedDids[chosen], recv.Interface().([]byte), true
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
