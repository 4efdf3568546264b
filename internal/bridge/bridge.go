// Package bridge is the single consumer of the session engine's event
// stream. It feeds lifecycle events into the state machine, translates
// events into realtime notices for subscribers, and runs the small
// auto-responder behaviors (ping replies, call courtesy messages).
package bridge

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/wa-bridge/backend/internal/config"
	"github.com/wa-bridge/backend/internal/engine"
	"github.com/wa-bridge/backend/internal/qr"
	"github.com/wa-bridge/backend/internal/session"
	"github.com/wa-bridge/backend/internal/ws"
)

const replyTimeout = 15 * time.Second

// Publisher is the realtime side the bridge pushes notices to.
// *ws.Broadcaster satisfies it.
type Publisher interface {
	Publish(n ws.Notice)
	PublishStatus(text string)
}

type Bridge struct {
	eng     engine.Engine
	machine *session.Machine
	pub     Publisher
	cfg     config.ResponderConfig
}

func New(eng engine.Engine, machine *session.Machine, pub Publisher, cfg config.ResponderConfig) *Bridge {
	return &Bridge{
		eng:     eng,
		machine: machine,
		pub:     pub,
		cfg:     cfg,
	}
}

// Run pumps engine events until the context is cancelled or the stream
// closes. Must be the only reader of the engine's event channel. The pump
// itself never blocks on slow work: notice fan-out is non-blocking and
// responder actions run in their own goroutines.
func (b *Bridge) Run(ctx context.Context) {
	events := b.eng.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				log.Printf("bridge: engine event stream closed")
				return
			}
			b.handle(ev)
		}
	}
}

func (b *Bridge) handle(ev engine.Event) {
	b.machine.Apply(ev)

	switch ev.Type {
	case engine.EventQRChallenge:
		// Encode once per challenge, not per subscriber.
		dataURL, err := qr.DataURL(ev.Challenge)
		if err != nil {
			log.Printf("bridge: qr encode failed: %v", err)
			b.pub.PublishStatus("QR code received but could not be rendered")
			return
		}
		b.pub.Publish(ws.Notice{Type: ws.NoticeQR, Payload: dataURL})
		b.pub.PublishStatus("QR code received, scan please!")

	case engine.EventAuthenticated:
		b.pub.Publish(ws.Notice{Type: ws.NoticeAuthenticated, Payload: "WhatsApp is authenticated!"})
		b.pub.PublishStatus("WhatsApp is authenticated!")

	case engine.EventReady:
		b.pub.Publish(ws.Notice{Type: ws.NoticeReady, Payload: "WhatsApp is ready!"})
		b.pub.PublishStatus("WhatsApp is ready!")

	case engine.EventAuthFailed:
		b.pub.PublishStatus("Authentication failure, restarting...")

	case engine.EventDisconnected:
		b.pub.PublishStatus("WhatsApp is disconnected!")

	case engine.EventMessageReceived:
		b.forward(ev.Type, ev.Message)
		if ev.Message != nil {
			b.maybeReplyPing(ev.Message)
		}

	case engine.EventMessageAck:
		b.forward(ev.Type, ev.Ack)

	case engine.EventGroupNotification:
		b.forward(ev.Type, ev.Group)
		if ev.Group != nil {
			log.Printf("bridge: group %s %s by %s", ev.Group.GroupID, ev.Group.Kind, ev.Group.Actor)
		}

	case engine.EventCallReceived:
		b.forward(ev.Type, ev.Call)
		if ev.Call != nil && b.cfg.RejectCalls {
			go b.sendCallNotice(ev.Call)
		}

	case engine.EventContactChanged:
		b.forward(ev.Type, ev.Contact)
		if ev.Contact != nil {
			log.Printf("bridge: contact %s changed number to %s", ev.Contact.OldID, ev.Contact.NewID)
		}

	default:
		log.Printf("bridge: unknown event type %q dropped", ev.Type)
	}
}

func (b *Bridge) forward(evType engine.EventType, data any) {
	b.pub.Publish(ws.Notice{
		Type:    ws.NoticeEvent,
		Payload: ws.EventPayload{Event: string(evType), Data: data},
	})
}

func (b *Bridge) maybeReplyPing(msg *engine.Message) {
	if !b.cfg.AutoReplyPing || msg.FromMe || msg.Body != "!ping" {
		return
	}
	go b.reply(msg.From, "pong")
}

// sendCallNotice tells the caller their call was rejected. The rejection
// itself happens inside the engine; this is just the courtesy message.
func (b *Bridge) sendCallNotice(call *engine.Call) {
	kind := "audio"
	if call.IsVideo {
		kind = "video"
	}
	b.reply(call.From, fmt.Sprintf("Incoming %s call was automatically rejected by the bot.", kind))
}

func (b *Bridge) reply(to, body string) {
	ctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
	defer cancel()

	err := b.machine.Exec(ctx, func(eng engine.Engine) error {
		_, err := eng.SendText(ctx, to, body)
		return err
	})
	if err != nil {
		// Includes the not-ready window around reconnects; nothing to do
		// but log, auto-replies are best effort.
		log.Printf("bridge: auto-reply to %s failed: %v", to, err)
	}
}
