package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType identifies the kind of behavioral event reported by the capture script.
type EventType string

const (
	EventPageView    EventType = "pageview"
	EventClick       EventType = "click"
	EventScroll      EventType = "scroll"
	EventResize      EventType = "resize"
	EventFormSubmit  EventType = "form_submit"
	EventEngagement  EventType = "engagement"
	EventPageHidden  EventType = "page_hidden"
	EventPageVisible EventType = "page_visible"
	EventPageExit    EventType = "page_exit"
	EventCustom      EventType = "custom"
	EventIdentify    EventType = "identify"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventPageView, EventClick, EventScroll, EventResize, EventFormSubmit,
		EventEngagement, EventPageHidden, EventPageVisible, EventPageExit,
		EventCustom, EventIdentify:
		return true
	}
	return false
}

// Payload is the tagged union of per-event-type data. Each event type has
// exactly one concrete payload variant; DecodePayload switches over all of
// them so a new event type cannot be added without a compile-visible home.
type Payload interface {
	eventPayload()
}

type PageViewPayload struct {
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
	Referrer string `json:"referrer,omitempty"`
}

type ClickPayload struct {
	X              int    `json:"x"`
	Y              int    `json:"y"`
	Element        string `json:"element,omitempty"`
	ElementText    string `json:"elementText,omitempty"`
	ElementClasses string `json:"elementClasses,omitempty"`
	ElementID      string `json:"elementId,omitempty"`
	URL            string `json:"url,omitempty"`
}

type ScrollPayload struct {
	ScrollDepth int    `json:"scrollDepth"`
	MaxScroll   int    `json:"maxScroll"`
	URL         string `json:"url,omitempty"`
}

type ResizePayload struct {
	WindowWidth  int `json:"windowWidth"`
	WindowHeight int `json:"windowHeight"`
}

type FormSubmitPayload struct {
	FormID     string `json:"formId,omitempty"`
	FormAction string `json:"formAction,omitempty"`
	FieldCount int    `json:"fieldCount,omitempty"`
	URL        string `json:"url,omitempty"`
}

type EngagementPayload struct {
	TimeOnPage       int64  `json:"timeOnPage"`
	InteractionCount int    `json:"interactionCount"`
	URL              string `json:"url,omitempty"`
}

type PageHiddenPayload struct {
	TimeVisible int64 `json:"timeVisible"`
}

type PageVisiblePayload struct{}

type PageExitPayload struct {
	TimeOnPage int64  `json:"timeOnPage"`
	MaxScroll  int    `json:"maxScroll,omitempty"`
	URL        string `json:"url,omitempty"`
}

type CustomPayload struct {
	Name       string         `json:"name,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

type IdentifyPayload struct {
	UserID string         `json:"userId"`
	Traits map[string]any `json:"traits,omitempty"`
}

func (PageViewPayload) eventPayload()    {}
func (ClickPayload) eventPayload()       {}
func (ScrollPayload) eventPayload()      {}
func (ResizePayload) eventPayload()      {}
func (FormSubmitPayload) eventPayload()  {}
func (EngagementPayload) eventPayload()  {}
func (PageHiddenPayload) eventPayload()  {}
func (PageVisiblePayload) eventPayload() {}
func (PageExitPayload) eventPayload()    {}
func (CustomPayload) eventPayload()      {}
func (IdentifyPayload) eventPayload()    {}

// DecodePayload unmarshals the variant matching the event type. Unknown
// fields in the client bag are ignored; an unknown event type is an error.
func DecodePayload(t EventType, data []byte) (Payload, error) {
	if len(data) == 0 {
		data = []byte("{}")
	}

	decode := func(v Payload) (Payload, error) {
		if err := json.Unmarshal(data, v); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", t, err)
		}
		return v, nil
	}

	switch t {
	case EventPageView:
		return decode(&PageViewPayload{})
	case EventClick:
		return decode(&ClickPayload{})
	case EventScroll:
		return decode(&ScrollPayload{})
	case EventResize:
		return decode(&ResizePayload{})
	case EventFormSubmit:
		return decode(&FormSubmitPayload{})
	case EventEngagement:
		return decode(&EngagementPayload{})
	case EventPageHidden:
		return decode(&PageHiddenPayload{})
	case EventPageVisible:
		return decode(&PageVisiblePayload{})
	case EventPageExit:
		return decode(&PageExitPayload{})
	case EventCustom:
		return decode(&CustomPayload{})
	case EventIdentify:
		return decode(&IdentifyPayload{})
	default:
		return nil, fmt.Errorf("unknown event type %q", t)
	}
}

// DeviceInfo is the device/browser/OS snapshot attached to events and
// sessions. Client-supplied values win; gaps are filled server-side from
// the user-agent string.
type DeviceInfo struct {
	UserAgent      string `json:"userAgent,omitempty"`
	ScreenWidth    int    `json:"screenWidth,omitempty"`
	ScreenHeight   int    `json:"screenHeight,omitempty"`
	DeviceType     string `json:"deviceType"`
	BrowserName    string `json:"browserName"`
	BrowserVersion string `json:"browserVersion"`
	OS             string `json:"os"`
}

// Event is a single immutable behavioral event. Timestamp is the
// client-reported time (untrusted, used for in-session ordering and range
// queries); ReceivedAt is the server clock at ingestion and is authoritative
// for the realtime window.
type Event struct {
	ID         string     `json:"id"`
	WebsiteID  string     `json:"websiteId"`
	SessionID  string     `json:"sessionId"`
	Type       EventType  `json:"eventType"`
	Payload    Payload    `json:"payload"`
	Device     DeviceInfo `json:"device"`
	IP         string     `json:"ip,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
	ReceivedAt time.Time  `json:"receivedAt"`
}

// URL returns the page URL carried by the payload, if the variant has one.
func (e *Event) URL() string {
	switch p := e.Payload.(type) {
	case *PageViewPayload:
		return p.URL
	case *ClickPayload:
		return p.URL
	case *ScrollPayload:
		return p.URL
	case *FormSubmitPayload:
		return p.URL
	case *EngagementPayload:
		return p.URL
	case *PageExitPayload:
		return p.URL
	default:
		return ""
	}
}
