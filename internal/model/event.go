// Package model defines the data structures shared by every layer.
package model

import (
	"slices"
	"time"
)

// Categories an event can be tagged with. The zero value is never stored:
// an empty category becomes CategoryGeneral on create.
const (
	CategoryGeneral    = "General"
	CategoryMusic      = "Music"
	CategoryArt        = "Art"
	CategoryTechnology = "Technology"
	CategorySports     = "Sports"
)

// Categories lists every valid category in display order.
var Categories = []string{
	CategoryGeneral,
	CategoryMusic,
	CategoryArt,
	CategoryTechnology,
	CategorySports,
}

// ValidCategory reports whether c is one of Categories.
func ValidCategory(c string) bool {
	return slices.Contains(Categories, c)
}

// Event is a single organized gathering.
//
// Attendees is a set of user IDs stored as a slice. The store guarantees no
// duplicates and len(Attendees) <= Capacity; code outside the store must
// never append to it directly.
type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
	Location    string    `json:"location"`
	Capacity    int       `json:"capacity"`
	Category    string    `json:"category"`
	Image       string    `json:"image,omitempty"`
	Organizer   string    `json:"organizer"` // user ID, immutable after create
	Attendees   []string  `json:"attendees"`
	CreatedAt   time.Time `json:"createdAt"`
}

// IsFull reports whether no seats remain.
func (e *Event) IsFull() bool {
	return len(e.Attendees) >= e.Capacity
}

// HasAttendee reports whether userID is in the attendee set.
func (e *Event) HasAttendee(userID string) bool {
	if userID == "" {
		return false
	}
	return slices.Contains(e.Attendees, userID)
}

// EventView is an Event annotated with the fill state a client needs to
// decide whether to offer "Join", "Leave" or nothing.
type EventView struct {
	Event
	// OrganizerName is filled in by the event service when the organizer's
	// account still exists.
	OrganizerName string `json:"organizerName,omitempty"`
	AttendeeCount int    `json:"attendeeCount"`
	IsFull        bool   `json:"isFull"`
	IsMember      bool   `json:"isMember"`
	IsOrganizer   bool   `json:"isOrganizer"`
}

// NewEventView derives the view of e as seen by viewerID.
// An empty viewerID is an anonymous visitor.
func NewEventView(e Event, viewerID string) EventView {
	if e.Attendees == nil {
		e.Attendees = []string{}
	}
	return EventView{
		Event:         e,
		AttendeeCount: len(e.Attendees),
		IsFull:        e.IsFull(),
		IsMember:      e.HasAttendee(viewerID),
		IsOrganizer:   viewerID != "" && e.Organizer == viewerID,
	}
}
