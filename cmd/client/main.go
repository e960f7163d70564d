package main

import (
	"flag"
	"log"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"github.com/campuslink/presence/pkg/domain"
)

func main() {
	addr := flag.String("addr", "localhost:3001", "presence server address")
	userID := flag.String("user", "", "user id to announce")
	pingInterval := flag.Duration("ping", 5*time.Second, "ping interval")
	flag.Parse()

	if *userID == "" {
		log.Fatal("missing -user")
	}

	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws"}
	log.Printf("connecting to %s", u.String())

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer conn.Close()

	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				log.Println("read:", err)
				return
			}
			log.Printf("recv: %s", message)
		}
	}()

	if err := conn.WriteJSON(domain.Message{Type: domain.MessageTypeOnline, UserID: *userID}); err != nil {
		log.Fatal("write online:", err)
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	ticker := time.NewTicker(*pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteJSON(domain.Message{Type: domain.MessageTypePing}); err != nil {
				log.Println("write ping:", err)
				return
			}
		case <-interrupt:
			log.Println("interrupt")

			if err := conn.WriteJSON(domain.Message{Type: domain.MessageTypeOffline, UserID: *userID}); err != nil {
				log.Println("write offline:", err)
				return
			}

			// Cleanly close the connection by sending a close message and then
			// waiting (with timeout) for the server to close the connection.
			err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Println("write close:", err)
				return
			}

			select {
			case <-done:
			case <-time.After(time.Second):
			}

			return
		}
	}
}
