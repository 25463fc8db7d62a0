package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

type controlEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type destinationStatus struct {
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
	Errors    int    `json:"errors"`
}

type relayStatus struct {
	Destinations []destinationStatus `json:"destinations"`
}

func streamHandler(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	deviceName := r.URL.Query().Get("device_name")
	destinationsRaw := r.URL.Query().Get("destinations")

	var destinations []struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	}
	if err := json.Unmarshal([]byte(destinationsRaw), &destinations); err != nil {
		http.Error(w, "Invalid destinations parameter", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Printf("❌ Websocket accept failed: %v", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	log.Printf("🔌 STREAM CONNECTED:")
	log.Printf("  Device: %s", deviceName)
	log.Printf("  Token: %s", token)
	for _, d := range destinations {
		log.Printf("  Destination: %s -> %s", d.Name, d.URL)
	}

	ctx := r.Context()

	// Periodic relay_status reports keep the client's health check happy
	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()

		statuses := make([]destinationStatus, len(destinations))
		for i, d := range destinations {
			statuses[i] = destinationStatus{Name: d.Name, Connected: true}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			data, _ := json.Marshal(relayStatus{Destinations: statuses})
			msg, _ := json.Marshal(controlEnvelope{Type: "relay_status", Data: data})
			msg = append(msg, '\n')

			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}
		}
	}()

	var chunks, bytes int
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			log.Printf("🔌 STREAM CLOSED: %v", err)
			log.Printf("  Chunks received: %d", chunks)
			log.Printf("  Bytes received: %d", bytes)
			log.Println("---")
			return
		}

		switch typ {
		case websocket.MessageText:
			var env controlEnvelope
			if err := json.Unmarshal(data, &env); err != nil {
				log.Printf("⚠️  Undecodable control message: %v", err)
				continue
			}
			log.Printf("📨 CONTROL MESSAGE: %s %s", env.Type, string(env.Data))

		case websocket.MessageBinary:
			chunks++
			bytes += len(data)
			if chunks%100 == 0 {
				log.Printf("🎧 Audio progress: %d chunks, %d bytes", chunks, bytes)
			}
		}
	}
}

func main() {
	http.HandleFunc("/stream", streamHandler)

	port := ":9000"
	log.Printf("🚀 Test Relay Server starting on port %s", port)
	log.Printf("📡 Endpoint: ws://localhost%s/stream", port)
	log.Println("💡 Update your config to use: ws://localhost:9000/stream")

	if err := http.ListenAndServe(port, nil); err != nil {
		log.Fatal("Server failed to start:", err)
	}
}
