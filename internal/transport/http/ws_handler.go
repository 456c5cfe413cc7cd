package http

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"quizplay-service/internal/app"
	"quizplay-service/internal/domain"
	"quizplay-service/internal/duelview"
)

// WSHandler runs one duel view per websocket connection.
type WSHandler struct {
	duels    *app.DuelService
	view     duelview.Options
	upgrader websocket.Upgrader
}

func NewWSHandler(duels *app.DuelService, view duelview.Options) *WSHandler {
	return &WSHandler{
		duels: duels,
		view:  view,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	Option *int `json:"option"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type submittedPayload struct {
	Round   int  `json:"round"`
	Correct bool `json:"correct"`
}

type outcomePayload struct {
	Outcome domain.RoundOutcome `json:"outcome"`
	Phase   domain.Phase        `json:"phase"`
}

// ServeWS upgrades HTTP requests to websockets and wires them into a duel view.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	pairID := r.URL.Query().Get("pairId")
	token := r.URL.Query().Get("token")
	if pairID == "" || token == "" {
		http.Error(w, "missing pairId or token", http.StatusBadRequest)
		return
	}
	seat, err := h.duels.Seat(r.Context(), pairID, token)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	view := duelview.New(h.duels, seat, h.view)
	if err := view.Attach(r.Context()); err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		view.Close()
		return
	}
	log.Info().Str("pair_id", seat.PairID).Str("slot", string(seat.Slot)).Msg("duel client connected")

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	eventsDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug().Err(err).Msg("ws write error")
				return
			}
		}
	}()

	go func() {
		defer close(eventsDone)
		for ev := range view.Events() {
			select {
			case send <- eventMessage(ev):
			case <-closeSignals:
				return
			}
		}
	}()

	sendError := func(err error) {
		select {
		case send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}:
		case <-writerDone:
		}
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "start":
			if _, err := view.StartRound(r.Context()); err != nil {
				sendError(err)
			}
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.Option == nil {
				sendError(domain.ErrInvalidOptionIndex)
				continue
			}
			if _, err := view.Submit(r.Context(), *payload.Option); err != nil {
				sendError(err)
			}
		case "state":
			select {
			case send <- outboundMessage[any]{Type: "state", Payload: view.View()}:
			case <-writerDone:
			}
		default:
			select {
			case send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}:
			case <-writerDone:
			}
		}
	}

	close(closeSignals)
	view.Close()
	<-eventsDone
	close(send)
	<-writerDone
	log.Info().Str("pair_id", seat.PairID).Str("slot", string(seat.Slot)).Msg("duel client disconnected")
}

func eventMessage(ev duelview.Event) outboundMessage[any] {
	switch ev.Type {
	case duelview.EventQuestion:
		return outboundMessage[any]{Type: string(ev.Type), Payload: newRoundView(*ev.Round)}
	case duelview.EventSubmitted:
		return outboundMessage[any]{Type: string(ev.Type), Payload: submittedPayload{Round: ev.Outcome.Round, Correct: ev.Outcome.Correct}}
	case duelview.EventOutcome:
		return outboundMessage[any]{Type: string(ev.Type), Payload: outcomePayload{Outcome: *ev.Outcome, Phase: ev.View.Phase}}
	default:
		return outboundMessage[any]{Type: string(duelview.EventState), Payload: ev.View}
	}
}
