// Package main runs a demo WebSocket client for trip editing sessions.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Seed two places and a trip
	var placeIDs []string
	for _, p := range []map[string]any{
		{"name": "Louvre", "lat": 48.8606, "lng": 2.3376, "visitMin": 120, "openTime": "09:00", "closeTime": "18:00"},
		{"name": "Sainte-Chapelle", "lat": 48.8554, "lng": 2.3450, "visitMin": 45},
	} {
		var out struct {
			ID string `json:"_id"`
		}
		post(base+"/v1/places", p, &out)
		placeIDs = append(placeIDs, out.ID)
	}
	var trip struct {
		ID string `json:"_id"`
	}
	post(base+"/v1/trips", map[string]any{"name": "Paris weekend", "startDate": time.Now().Format(time.DateOnly)}, &trip)

	var sess struct {
		ID string `json:"id"`
	}
	post(base+"/v1/sessions", map[string]any{"tripId": trip.ID}, &sess)
	log.Printf("Session ID: %s", sess.ID)

	var clientIDs []string
	for _, pid := range placeIDs {
		var out struct {
			ClientID string `json:"clientId"`
		}
		post(base+"/v1/sessions/"+sess.ID+"/days/0/events", map[string]any{"placeId": pid}, &out)
		clientIDs = append(clientIDs, out.ClientID)
	}

	// Connect WS
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/sessions/" + sess.ID + "/ws"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s: %s", m.Type, string(m.Payload))
		}
	}()

	// Swap the two visits over the socket, then schedule the day over HTTP
	time.Sleep(500 * time.Millisecond)
	pl, _ := json.Marshal(map[string]any{"dayIndex": 0, "activeId": clientIDs[1], "overId": clientIDs[0]})
	if err := c.WriteJSON(wsMessage{Type: "reorder", Payload: pl}); err != nil {
		log.Fatal(err)
	}
	post(base+"/v1/sessions/"+sess.ID+"/days/0/schedule", map[string]any{}, nil)
	post(base+"/v1/sessions/"+sess.ID+"/save", nil, nil)

	// Wait briefly to receive a few messages
	select {
	case <-time.After(2 * time.Second):
	case <-done:
	}
}

func post(u string, body any, out any) {
	var rd *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	resp, err := http.Post(u, "application/json", rd)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		log.Fatalf("POST %s: %s", u, resp.Status)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			log.Fatal(err)
		}
	}
}
