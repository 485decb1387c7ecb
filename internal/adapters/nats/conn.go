package natsadapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/gapfinder/internal/core/domain"
	"github.com/samirrijal/gapfinder/internal/pkg/readiness"
)

const (
	streamName    = "SEARCH_EVENTS"
	subjectPrefix = "gapfinder.search."
)

var errDisconnected = errors.New("nats not connected")

// SearchSubject is the subject for one search event: gapfinder.search.<id>.<state>.
func SearchSubject(e *domain.SearchEvent) string {
	return subjectPrefix + e.SearchID + "." + string(e.State)
}

// SearchFilter returns the subject filter for one search, or every search
// when searchID is empty.
func SearchFilter(searchID string) string {
	if searchID == "" {
		return subjectPrefix + ">"
	}
	return subjectPrefix + searchID + ".>"
}

// Connect dials NATS and waits for the first successful connection.
func Connect(ctx context.Context, url string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	err = readiness.DefaultGate("nats").Wait(ctx, func(context.Context) error {
		if conn.IsConnected() {
			return nil
		}
		return errDisconnected
	})
	if err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}
