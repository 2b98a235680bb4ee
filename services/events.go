package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/petanque-connect/server/models"
	"github.com/petanque-connect/server/repositories"
)

// Realtime event names. Contest-channel broadcasts carry the enriched
// team; direct events carry a small targeted payload.
const (
	EventTeamCreated      = "team:created"
	EventTeamUpdated      = "team:updated"
	EventTeamDeleted      = "team:deleted"
	EventTeamJoinRequest  = "team:join-request"
	EventTeamJoinResponse = "team:join-response"
	EventTeamKicked       = "team:kicked"
)

type JoinRequestPayload struct {
	TeamID   string `json:"teamId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

type JoinResponsePayload struct {
	TeamID   string `json:"teamId"`
	Accepted bool   `json:"accepted"`
	TeamName string `json:"teamName"`
}

type KickedPayload struct {
	TeamID   string `json:"teamId"`
	TeamName string `json:"teamName"`
}

type TeamDeletedPayload struct {
	TeamID    string `json:"teamId"`
	ContestID string `json:"contestId"`
}

// Event is a domain event produced by a committed team transition.
// Exactly one of ContestID (broadcast) or UserID (direct) is set.
type Event struct {
	Name      string
	ContestID string
	UserID    string
	Payload   interface{}
	// Message is the human-readable text persisted with the
	// notification record of a direct event.
	Message string
}

func broadcastEvent(name, contestID string, payload interface{}) Event {
	return Event{Name: name, ContestID: contestID, Payload: payload}
}

func directEvent(name, userID string, payload interface{}, message string) Event {
	return Event{Name: name, UserID: userID, Payload: payload, Message: message}
}

// EventPublisher is the realtime transport consumed by the dispatcher.
type EventPublisher interface {
	EmitToContest(contestID, event string, payload interface{})
	EmitToUser(userID, event string, payload interface{})
}

// Dispatcher delivers domain events after a transition has been
// persisted: broadcasts to the contest channel, direct events to the
// addressed user plus a durable notification record. Delivery is
// fire-and-forget; failures are logged and never reach the caller.
type Dispatcher struct {
	publisher     EventPublisher
	notifications repositories.NotificationRepository
	logger        *slog.Logger
}

func NewDispatcher(
	publisher EventPublisher,
	notifications repositories.NotificationRepository,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		publisher:     publisher,
		notifications: notifications,
		logger:        logger,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, events []Event) {
	g, gCtx := errgroup.WithContext(ctx)
	for _, event := range events {
		event := event
		g.Go(func() error {
			switch {
			case event.ContestID != "":
				d.publisher.EmitToContest(event.ContestID, event.Name, event.Payload)
			case event.UserID != "":
				d.publisher.EmitToUser(event.UserID, event.Name, event.Payload)
				if err := d.persistNotification(gCtx, event); err != nil {
					d.logger.Error("failed to persist notification",
						slog.String("event", event.Name),
						slog.String("user_id", event.UserID),
						slog.Any("error", err))
				}
			default:
				return fmt.Errorf("event %q has no target", event.Name)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		d.logger.Error("event dispatch failed", slog.Any("error", err))
	}
}

func (d *Dispatcher) persistNotification(ctx context.Context, event Event) error {
	data := map[string]interface{}{}
	switch p := event.Payload.(type) {
	case JoinRequestPayload:
		data["teamId"], data["userId"], data["userName"] = p.TeamID, p.UserID, p.UserName
	case JoinResponsePayload:
		data["teamId"], data["accepted"], data["teamName"] = p.TeamID, p.Accepted, p.TeamName
	case KickedPayload:
		data["teamId"], data["teamName"] = p.TeamID, p.TeamName
	}

	return d.notifications.Create(ctx, &models.Notification{
		ID:        uuid.NewString(),
		UserID:    event.UserID,
		Type:      event.Name,
		Message:   event.Message,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	})
}
