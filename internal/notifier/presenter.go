package notifier

import (
	"errors"
	"log"
)

// ErrNoAudience is returned when an event that needs a live user surface (the
// popup) reached nobody.
var ErrNoAudience = errors.New("no user surface available")

// EventType identifies what the desk wants the user surface to do.
type EventType string

const (
	EventAlert   EventType = "alert"
	EventNotify  EventType = "notify"
	EventStatus  EventType = "status"
	EventView    EventType = "view"
	EventScroll  EventType = "scroll"
	EventAccount EventType = "account"
	EventEngine  EventType = "engine"
	EventFunds   EventType = "funds"
	EventPopup   EventType = "popup"
	EventLogin   EventType = "login"
)

// Views and sections the desk switches to.
const (
	ViewAccount   = "account"
	SectionBroker = "broker"
)

// Event is one instruction to the user surface.
type Event struct {
	Type EventType `json:"type"`
	Text string    `json:"text,omitempty"`
	Data any       `json:"data,omitempty"`
}

// Presenter renders events for the user.
type Presenter interface {
	Present(evt Event) error
}

// PresenterFunc adapts a function to Presenter.
type PresenterFunc func(evt Event) error

func (f PresenterFunc) Present(evt Event) error { return f(evt) }

// Multi fans an event out to several presenters. It succeeds when at least
// one presenter accepted the event.
type Multi []Presenter

func (m Multi) Present(evt Event) error {
	var errs []error
	delivered := false
	for _, p := range m {
		if err := p.Present(evt); err != nil {
			errs = append(errs, err)
			continue
		}
		delivered = true
	}
	if delivered {
		return nil
	}
	if len(errs) == 0 {
		if evt.Type == EventPopup {
			return ErrNoAudience
		}
		return nil
	}
	return errors.Join(errs...)
}

// LogPresenter writes events to the process log. It cannot open a popup.
type LogPresenter struct{}

func (LogPresenter) Present(evt Event) error {
	switch evt.Type {
	case EventAlert:
		log.Printf("[WARN] alert: %s", evt.Text)
	case EventPopup:
		log.Printf("[INFO] login link: %s", evt.Text)
		return ErrNoAudience
	case EventAccount, EventEngine, EventFunds:
		log.Printf("[INFO] %s: %+v", evt.Type, evt.Data)
	default:
		log.Printf("[INFO] %s: %s", evt.Type, evt.Text)
	}
	return nil
}
