package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"gate-service/internal/approval"
	"gate-service/internal/domain/anpr"
	"gate-service/internal/notify"
	"gate-service/internal/registry"
	"gate-service/internal/repository"
	"gate-service/internal/utils"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	// ErrNotPending means the plate has no open approval request: it was
	// never detected or its request already expired.
	ErrNotPending = errors.New("plate is not awaiting a decision")
)

type GateService struct {
	owners    registry.Store
	matcher   *registry.Matcher
	approvals approval.Store
	sink      notify.Sink
	repo      *repository.GateRepository
	log       zerolog.Logger
}

func NewGateService(
	owners registry.Store,
	matcher *registry.Matcher,
	approvals approval.Store,
	sink notify.Sink,
	repo *repository.GateRepository,
	log zerolog.Logger,
) *GateService {
	if sink == nil {
		sink = notify.Noop{}
	}
	return &GateService{
		owners:    owners,
		matcher:   matcher,
		approvals: approvals,
		sink:      sink,
		repo:      repo,
		log:       log,
	}
}

func (s *GateService) RegisterOwner(ctx context.Context, payload anpr.RegisterPayload) (*anpr.Owner, error) {
	plate := utils.NormalizePlate(payload.Plate)
	if plate == "" {
		return nil, fmt.Errorf("%w: plate is required", ErrInvalidInput)
	}
	name := strings.TrimSpace(payload.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if payload.ChatID == 0 {
		return nil, fmt.Errorf("%w: chat_id is required", ErrInvalidInput)
	}

	owner := anpr.Owner{
		Name:     name,
		Username: strings.TrimPrefix(strings.TrimSpace(payload.Username), "@"),
		Plate:    plate,
		ChatID:   payload.ChatID,
	}
	if err := s.owners.Register(ctx, owner); err != nil {
		s.log.Error().Err(err).Str("plate", plate).Msg("failed to register owner")
		return nil, fmt.Errorf("failed to register owner: %w", err)
	}
	s.matcher.Invalidate()

	s.log.Info().
		Str("plate", plate).
		Str("name", owner.Name).
		Str("username", owner.Username).
		Int64("chat_id", owner.ChatID).
		Msg("owner registered")
	return &owner, nil
}

func (s *GateService) ListOwners(ctx context.Context) ([]anpr.Owner, error) {
	owners, err := s.owners.Owners(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list owners: %w", err)
	}
	if owners == nil {
		owners = []anpr.Owner{}
	}
	return owners, nil
}

// Decide records an owner's decision for a plate awaiting approval.
func (s *GateService) Decide(ctx context.Context, plateQuery, decision string) (approval.Status, error) {
	plate := utils.NormalizePlate(plateQuery)
	if plate == "" {
		return "", fmt.Errorf("%w: plate is required", ErrInvalidInput)
	}
	status, err := approval.ParseDecision(decision)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	ok, err := s.approvals.Decide(ctx, plate, status)
	if err != nil {
		s.log.Error().Err(err).Str("plate", plate).Msg("failed to store decision")
		return "", fmt.Errorf("failed to store decision: %w", err)
	}
	if !ok {
		s.log.Info().Str("plate", plate).Str("decision", string(status)).Msg("decision for plate without open request")
		return "", fmt.Errorf("%w: %s", ErrNotPending, plate)
	}

	s.log.Info().Str("plate", plate).Str("decision", string(status)).Msg("decision stored")
	return status, nil
}

func (s *GateService) PendingPlates(ctx context.Context) ([]string, error) {
	plates, err := s.approvals.Pending(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending plates: %w", err)
	}
	if plates == nil {
		plates = []string{}
	}
	return plates, nil
}

// RelayNotify sends the detection alert for plate to its registered owner.
func (s *GateService) RelayNotify(ctx context.Context, payload anpr.NotifyPayload) (*anpr.RelayResult, error) {
	owner, plate, err := s.relayOwner(ctx, payload.Plate)
	if err != nil {
		return nil, err
	}
	if err := s.sink.Notify(ctx, *owner, plate, payload.ImageURL); err != nil {
		s.log.Error().Err(err).Str("plate", plate).Msg("failed to relay notification")
		return nil, fmt.Errorf("failed to send notification: %w", err)
	}
	s.log.Info().Str("plate", plate).Int64("chat_id", owner.ChatID).Msg("notification relayed")
	return &anpr.RelayResult{Status: "ok", Message: "Notification sent"}, nil
}

func (s *GateService) RelayTimeout(ctx context.Context, payload anpr.TimeoutPayload) (*anpr.RelayResult, error) {
	owner, plate, err := s.relayOwner(ctx, payload.Plate)
	if err != nil {
		return nil, err
	}
	if err := s.sink.NotifyTimeout(ctx, *owner, plate); err != nil {
		s.log.Error().Err(err).Str("plate", plate).Msg("failed to relay timeout notification")
		return nil, fmt.Errorf("failed to send timeout notification: %w", err)
	}
	s.log.Info().Str("plate", plate).Int64("chat_id", owner.ChatID).Msg("timeout notification relayed")
	return &anpr.RelayResult{Status: "ok", Message: "Timeout notification sent"}, nil
}

func (s *GateService) relayOwner(ctx context.Context, raw string) (*anpr.Owner, string, error) {
	plate := utils.NormalizePlate(raw)
	if plate == "" {
		return nil, "", fmt.Errorf("%w: No plate number provided", ErrInvalidInput)
	}
	owner := s.matcher.Lookup(ctx, plate)
	if owner == nil {
		return nil, "", fmt.Errorf("%w: Plate not registered", ErrNotFound)
	}
	return owner, plate, nil
}

func (s *GateService) RecordEvent(ctx context.Context, event anpr.GateEvent) error {
	if err := s.repo.RecordEvent(ctx, event); err != nil {
		s.log.Error().
			Err(err).
			Str("plate", event.Plate).
			Str("type", string(event.Type)).
			Msg("failed to record gate event")
		return fmt.Errorf("failed to record gate event: %w", err)
	}
	s.log.Debug().
		Str("event_id", event.ID.String()).
		Str("plate", event.Plate).
		Str("type", string(event.Type)).
		Msg("gate event recorded")
	return nil
}

func (s *GateService) FindEvents(ctx context.Context, plateQuery, eventType *string, from, to *string, limit, offset int) ([]EventInfo, error) {
	var normalizedPlate *string
	if plateQuery != nil {
		normalized := utils.NormalizePlate(*plateQuery)
		if normalized != "" {
			normalizedPlate = &normalized
		}
	}

	if eventType != nil {
		switch anpr.EventType(*eventType) {
		case anpr.EventNotified, anpr.EventAllowed, anpr.EventDenied, anpr.EventTimeout:
		default:
			return nil, fmt.Errorf("%w: unknown event type %q", ErrInvalidInput, *eventType)
		}
	}

	var fromTime, toTime *time.Time
	if from != nil && *from != "" {
		t, err := time.Parse(time.RFC3339, *from)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid from time format", ErrInvalidInput)
		}
		fromTime = &t
	}
	if to != nil && *to != "" {
		t, err := time.Parse(time.RFC3339, *to)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid to time format", ErrInvalidInput)
		}
		toTime = &t
	}

	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	events, err := s.repo.FindEvents(ctx, normalizedPlate, eventType, fromTime, toTime, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to find events: %w", err)
	}

	result := make([]EventInfo, 0, len(events))
	for _, e := range events {
		result = append(result, EventInfo{
			ID:        e.ID,
			Type:      e.Type,
			Plate:     e.Plate,
			OwnerName: e.OwnerName,
			ChatID:    e.ChatID,
			TrackID:   e.TrackID,
			ImageRef:  e.ImageRef,
			EventTime: e.EventTime,
		})
	}
	return result, nil
}

// CleanupOldEvents deletes gate events older than days.
func (s *GateService) CleanupOldEvents(ctx context.Context, days int) (int64, error) {
	if days < 1 {
		return 0, fmt.Errorf("%w: days must be positive", ErrInvalidInput)
	}
	deleted, err := s.repo.DeleteOldEvents(ctx, days)
	if err != nil {
		s.log.Error().Err(err).Int("days", days).Msg("failed to cleanup old events")
		return 0, err
	}
	if deleted > 0 {
		s.log.Info().Int64("deleted_count", deleted).Int("days", days).Msg("cleaned up old events")
	}
	return deleted, nil
}

type EventInfo struct {
	ID        uuid.UUID `json:"id"`
	Type      string    `json:"type"`
	Plate     string    `json:"plate"`
	OwnerName *string   `json:"owner_name,omitempty"`
	ChatID    *int64    `json:"chat_id,omitempty"`
	TrackID   *string   `json:"track_id,omitempty"`
	ImageRef  *string   `json:"image_ref,omitempty"`
	EventTime time.Time `json:"event_time"`
}
