package api

import (
	"context"

	"board-api/domain"
)

// Board is the engine surface the handlers consume.
type Board interface {
	Tasks(ctx context.Context) domain.BoardView
	Apply(ctx context.Context, op domain.Operation) error
	Reconcile(ctx context.Context, snapshots []domain.TaskSnapshot) error
	History(ctx context.Context, author string) []domain.AuditEvent
	SessionStatus(ctx context.Context) domain.SessionAggregate
	PushSessionStatus(ctx context.Context, status domain.SessionStatus) error
}

// Streamer hands out live change-event subscriptions for /api/stream. The
// channel is closed by the broker when the subscriber falls behind.
type Streamer interface {
	Subscribe() chan domain.ChangeEvent
	Unsubscribe(chan domain.ChangeEvent)
}

// Authenticator is implemented by types able to extract caller identities
// from Authorization headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}
