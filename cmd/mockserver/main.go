// mockserver is a loopback MCP endpoint for manual client testing: it
// accepts /ws/{client_id}, answers suggestions with a canned evaluation and
// continue requests with a continue_response, threading parent_id back to
// the request. Unknown types get an error envelope.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aidevmon/mcp-transport/internal/protocol"
	"github.com/aidevmon/mcp-transport/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func main() {
	addr := flag.String("addr", ":5001", "listen address")
	flag.Parse()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/", handleWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintln(w, "ok")
	})
	mux.Handle("/metrics", promhttp.Handler())

	logger.S().Infow("mockserver_listen", "addr", *addr)
	if err := http.ListenAndServe(*addr, mux); err != nil {
		logger.S().Fatalw("mockserver_exit", "err", err)
	}
}

func handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	clientID := r.URL.Path[len("/ws/"):]
	logger.S().Infow("client_connected", "client_id", clientID)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			logger.S().Infow("client_gone", "client_id", clientID, "err", err)
			return
		}
		raw, err := protocol.MaybeDecompress(data)
		if err != nil {
			logger.S().Warnw("bad_frame", "err", err)
			continue
		}
		envelopes, err := protocol.DecodeFrame(raw, 0)
		if err != nil {
			logger.S().Warnw("bad_frame", "err", err)
			continue
		}
		for _, env := range envelopes {
			if err := respond(conn, env); err != nil {
				logger.S().Warnw("write_failed", "err", err)
				return
			}
		}
	}
}

func respond(conn *websocket.Conn, env *protocol.Envelope) error {
	var (
		t       protocol.MessageType
		content any
	)
	switch env.Type {
	case protocol.MsgSuggestion:
		t = protocol.MsgEvaluation
		content = protocol.EvaluationPayload{
			Accept:          true,
			AlignmentScore:  0.9,
			IssuesDetected:  []string{},
			Recommendations: []string{},
			Reason:          "mock evaluation",
		}
	case protocol.MsgContinue:
		t = protocol.MsgContinueResponse
		content = map[string]string{"status": "continued"}
	case protocol.MsgTDDRequest:
		t = protocol.MsgTDDTests
		content = map[string]string{"tests": ""}
	default:
		t = protocol.MsgError
		content = protocol.ErrorPayload{Error: "unknown message type: " + string(env.Type)}
	}

	reply := &protocol.Envelope{
		Context: protocol.Context{
			ConversationID: env.Context.ConversationID,
			MessageID:      uuid.New().String(),
			ParentID:       env.Context.MessageID,
			Metadata:       map[string]any{},
		},
		Type: t,
	}
	var err error
	if reply.Content, err = json.Marshal(content); err != nil {
		return err
	}
	frame, err := protocol.EncodeFrame(reply)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, frame)
}
