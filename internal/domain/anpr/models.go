package anpr

import (
	"time"

	"github.com/google/uuid"
)

// ClassPlate is the only detection class the gate pipeline consumes.
const ClassPlate = "plate"

// Box is an axis-aligned rectangle in frame pixel coordinates.
type Box struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

func (b Box) Width() float64  { return b.X2 - b.X1 }
func (b Box) Height() float64 { return b.Y2 - b.Y1 }
func (b Box) Area() float64   { return b.Width() * b.Height() }

// Detection is a single frame-local plate candidate.
type Detection struct {
	Box   Box     `json:"box"`
	Score float64 `json:"score"`
	Class string  `json:"class"`
}

// Track is a tracker-assigned identity followed across frames.
type Track struct {
	ID        string `json:"id"`
	Box       Box    `json:"box"`
	Confirmed bool   `json:"confirmed"`
}

// Fragment is one piece of recognized text inside a plate crop.
type Fragment struct {
	Box   Box     `json:"box"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

type Owner struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Plate    string `json:"plate"`
	ChatID   int64  `json:"chat_id"`
}

type EventType string

const (
	EventNotified EventType = "notified"
	EventAllowed  EventType = "allowed"
	EventDenied   EventType = "denied"
	EventTimeout  EventType = "timeout"
)

// GateEvent records a state change of a plate that produced an external effect.
type GateEvent struct {
	ID       uuid.UUID `json:"id"`
	Type     EventType `json:"type"`
	Plate    string    `json:"plate"`
	Owner    Owner     `json:"owner"`
	TrackID  string    `json:"track_id,omitempty"`
	ImageRef string    `json:"image_ref,omitempty"`
	At       time.Time `json:"at"`
}

func NewGateEvent(eventType EventType, plate string, owner Owner, at time.Time) GateEvent {
	return GateEvent{
		ID:    uuid.New(),
		Type:  eventType,
		Plate: plate,
		Owner: owner,
		At:    at,
	}
}

type NotifyPayload struct {
	Plate    string `json:"plate"`
	ImageURL string `json:"image_url,omitempty"`
}

type TimeoutPayload struct {
	Plate string `json:"plate"`
}

type RegisterPayload struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Plate    string `json:"plate"`
	ChatID   int64  `json:"chat_id"`
}

type DecisionPayload struct {
	Decision string `json:"decision"`
}

type RelayResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}
