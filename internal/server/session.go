package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/floorcast/floorcast/internal/queue"
)

// session is one connected subscriber: an outbound FIFO drained by the
// sender loop, and a receiver loop routing inbound frames. The first loop
// to finish ends the session; shutdown closes the connection and the
// queue, which unblocks the survivor.
type session struct {
	id      uuid.UUID
	conn    *websocket.Conn
	manager *SessionManager
	out     *queue.Queue[ServerFrame]

	closeOnce sync.Once
}

func newSession(conn *websocket.Conn, manager *SessionManager) *session {
	return &session{
		id:      uuid.New(),
		conn:    conn,
		manager: manager,
		out:     queue.New[ServerFrame](),
	}
}

// enqueue appends an outbound frame. Never blocks; frames pushed after
// shutdown are dropped.
func (s *session) enqueue(frame ServerFrame) {
	s.out.Push(frame)
}

func (s *session) run(ctx context.Context) {
	// Unsolicited frames on connect: session id, topology, then the
	// current state snapshot. Everything the snapshot misses arrives as
	// live entity.state_change frames with a higher serial.
	s.enqueue(ServerFrame{Type: frameConnected, SessionID: s.id.String()})
	s.enqueue(ServerFrame{Type: frameRegistry, Registry: s.manager.registries.Get()})

	snap, err := s.manager.states.GetStateAt(ctx, time.Now().UTC())
	if err != nil {
		s.manager.log.Error("initial snapshot failed",
			zap.String("session_id", s.id.String()), zap.Error(err))
		s.shutdown()
		return
	}
	s.enqueue(ServerFrame{Type: frameSnapshot, State: snap.State})

	g, ctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(ctx, s.shutdown)
	defer stop()

	// Either loop ending ends the session, clean close included: shutdown
	// closes the queue and the connection, which unblocks the survivor.
	g.Go(func() error {
		defer s.shutdown()
		return s.sendLoop()
	})
	g.Go(func() error {
		defer s.shutdown()
		return s.receiveLoop()
	})
	_ = g.Wait()
}

func (s *session) shutdown() {
	s.closeOnce.Do(func() {
		s.out.Close()
		_ = s.conn.Close()
	})
}

func (s *session) sendLoop() error {
	for {
		frame, ok := s.out.Pop()
		if !ok {
			return nil
		}
		if err := s.conn.WriteJSON(frame); err != nil {
			// The peer started a close handshake between Pop and the write.
			if errors.Is(err, websocket.ErrCloseSent) {
				return nil
			}
			return err
		}
	}
}

func (s *session) receiveLoop() error {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if isExpectedClose(err) {
				return nil
			}
			return err
		}

		var frame ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.protocolError("malformed frame")
			continue
		}
		s.route(frame)
	}
}

// route dispatches one inbound frame. Protocol errors answer with an error
// frame and keep the session open.
func (s *session) route(frame ClientFrame) {
	switch frame.Type {
	case framePing:
		s.enqueue(ServerFrame{Type: framePong})
	case frameSubscribe:
		if err := s.manager.subscribe(s, frame.Data); err != nil {
			s.protocolError(err.Error())
		}
	case frameUnsubscribe:
		if err := s.manager.unsubscribe(s, frame.Data); err != nil {
			s.protocolError(err.Error())
		}
	default:
		s.protocolError("unknown message type: " + frame.Type)
	}
}

func (s *session) protocolError(message string) {
	s.manager.log.Warn("subscriber protocol error",
		zap.String("session_id", s.id.String()), zap.String("message", message))
	s.enqueue(ServerFrame{Type: frameError, Message: message})
}

func isExpectedClose(err error) bool {
	return websocket.IsCloseError(
		err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	)
}
