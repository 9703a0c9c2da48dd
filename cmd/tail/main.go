package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/gorilla/websocket"

	"starlane.ai/internal/protocol"
	"starlane.ai/internal/transport/ws"
)

func main() {
	var (
		url   = flag.String("url", "ws://127.0.0.1:8420/v1/stream", "stream url")
		name  = flag.String("name", "tail", "client name")
		kinds = flag.String("kinds", "", "comma-separated event kinds (default: all)")
		queue = flag.Int("queue", 64, "server-side queue size for this client")
		raw   = flag.Bool("raw", false, "print the full event JSON")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[tail] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := ws.HelloMsg{Type: ws.TypeHello, Client: *name, MaxQueue: *queue}
	for _, k := range strings.Split(*kinds, ",") {
		if k = strings.TrimSpace(k); k != "" {
			hello.Kinds = append(hello.Kinds, k)
		}
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				logger.Printf("read: %v", err)
			}
			return
		}
		var base struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(msg, &base); err != nil {
			continue
		}
		switch base.Type {
		case ws.TypeWelcome:
			var w ws.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			logger.Printf("WELCOME client_id=%s max_queue=%d kinds=%v", w.ClientID, w.MaxQueue, w.Kinds)

		case ws.TypeEvent:
			var em ws.EventMsg
			if err := json.Unmarshal(msg, &em); err != nil {
				continue
			}
			printEvent(logger, em.Event, *raw)
		}
	}
}

func printEvent(logger *log.Logger, b json.RawMessage, raw bool) {
	if raw {
		logger.Printf("%s", b)
		return
	}
	var ev protocol.Event
	if err := json.Unmarshal(b, &ev); err != nil {
		logger.Printf("undecodable event: %s", b)
		return
	}
	tag := ""
	if ev.FromLoad {
		tag = " (replay)"
	}
	logger.Printf("%s %s%s", ev.Timestamp.Format("2006-01-02 15:04:05"), ev.Kind, tag)
}
