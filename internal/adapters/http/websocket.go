package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/nats-io/nats.go"

	natsadapter "github.com/samirrijal/gapfinder/internal/adapters/nats"
	"github.com/samirrijal/gapfinder/internal/core/domain"
	"github.com/samirrijal/gapfinder/internal/core/usecases"
	"github.com/samirrijal/gapfinder/internal/pkg/metrics"
)

var errRelayDisabled = errors.New("event relay not configured")

// wsMessage is sent from client to narrow or widen the relayed searches,
// or to look up demographics for the point under the cursor.
type wsMessage struct {
	Action   string   `json:"action"`    // "subscribe" | "unsubscribe" | "lookup"
	SearchID string   `json:"search_id"` // "" = every search
	Lat      *float64 `json:"lat,omitempty"`
	Lng      *float64 `json:"lng,omitempty"`
}

// wsLookupResult answers a lookup action.
type wsLookupResult struct {
	Type         string               `json:"type"` // always "demographics"
	Key          string               `json:"key"`
	Demographics demographicsResponse `json:"demographics"`
}

// WebSocketHandler relays search lifecycle events from NATS to the client.
// Every search is relayed until the client subscribes to a specific one:
// {"action":"subscribe","search_id":"..."}. A lookup action
// {"action":"lookup","lat":..,"lng":..} replaces this connection's
// outstanding point lookup; other connections are unaffected.
func WebSocketHandler(deps *Dependencies) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		log := slog.Default().With("remote", c.RemoteAddr().String())
		log.Info("ws client connected")

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		nc := deps.NATS
		var lookups *usecases.PointLookup
		if deps.Demographics != nil {
			lookups = usecases.NewPointLookup(deps.Demographics)
			defer lookups.Cancel()
		}

		var mu sync.Mutex
		subs := make(map[string]*nats.Subscription) // subject -> subscription

		writeJSON := func(v interface{}) error {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}

		subscribe := func(subject string) error {
			if nc == nil {
				return errRelayDisabled
			}
			s, err := nc.Subscribe(subject, func(msg *nats.Msg) {
				_ = writeJSON(json.RawMessage(msg.Data))
			})
			if err != nil {
				return err
			}
			subs[subject] = s
			return nil
		}

		all := natsadapter.SearchFilter("")
		if err := subscribe(all); err != nil {
			log.Warn("ws event relay unavailable", "error", err)
			_ = writeJSON(map[string]string{"error": "event relay unavailable: " + err.Error()})
		}

		// Keep-alive ping
		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					mu.Lock()
					err := c.WriteMessage(websocket.PingMessage, nil)
					mu.Unlock()
					if err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				break
			}

			var m wsMessage
			if err := json.Unmarshal(msg, &m); err != nil {
				_ = writeJSON(map[string]string{"error": "invalid JSON"})
				continue
			}

			subject := natsadapter.SearchFilter(m.SearchID)

			switch m.Action {
			case "subscribe":
				if _, exists := subs[subject]; exists {
					_ = writeJSON(map[string]string{"status": "already subscribed", "subject": subject})
					continue
				}
				// A specific search replaces the catch-all so events are not sent twice.
				if m.SearchID != "" {
					if s, ok := subs[all]; ok {
						_ = s.Unsubscribe()
						delete(subs, all)
					}
				}
				if err := subscribe(subject); err != nil {
					_ = writeJSON(map[string]string{"error": "subscribe failed: " + err.Error()})
					continue
				}
				_ = writeJSON(map[string]string{"status": "subscribed", "subject": subject})

			case "unsubscribe":
				if s, exists := subs[subject]; exists {
					_ = s.Unsubscribe()
					delete(subs, subject)
					_ = writeJSON(map[string]string{"status": "unsubscribed", "subject": subject})
				} else {
					_ = writeJSON(map[string]string{"error": "not subscribed to " + subject})
				}

			case "lookup":
				if lookups == nil || m.Lat == nil || m.Lng == nil {
					_ = writeJSON(map[string]string{"error": "lookup needs lat and lng"})
					continue
				}
				p := domain.GeoPoint{Lat: *m.Lat, Lng: *m.Lng}
				if !p.Valid() {
					_ = writeJSON(map[string]string{"error": domain.ErrInvalidLocation.Error()})
					continue
				}
				h, started := lookups.Lookup(ctx, p, func(res domain.DemographicsResult) {
					_ = writeJSON(wsLookupResult{
						Type:         "demographics",
						Key:          usecases.DemographicsKey(p),
						Demographics: newDemographicsResponse(res),
					})
				})
				if !started {
					_ = writeJSON(map[string]string{"status": "lookup pending", "key": h.Key})
				}

			default:
				_ = writeJSON(map[string]string{"error": "unknown action: " + m.Action})
			}
		}

		close(done)
		for _, s := range subs {
			_ = s.Unsubscribe()
		}
		log.Info("ws client disconnected")
	}
}
