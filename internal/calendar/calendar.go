// Package calendar renders booking confirmations as iCalendar events.
package calendar

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/google/uuid"
	"github.com/julianbeese/tennis_bot/internal/domain"
)

const (
	// Title is the event summary
	Title = "Réservation Tennis"
	// DefaultHour is used when the confirmation text carries no "NNh"
	DefaultHour = 12

	productID = "-//tennisbot//booking//FR"
)

var hourRe = regexp.MustCompile(`(\d{2})h`)

// StartHour reads the booked hour from the portal's date text
func StartHour(dateText string) int {
	m := hourRe.FindStringSubmatch(dateText)
	if m == nil {
		return DefaultHour
	}
	h, err := strconv.Atoi(m[1])
	if err != nil || h > 23 {
		return DefaultHour
	}
	return h
}

// NewEvent builds a one-hour CONFIRMED event for conf
func NewEvent(conf domain.Confirmation, now time.Time) []byte {
	day := conf.TargetDate
	start := time.Date(day.Year(), day.Month(), day.Day(), StartHour(conf.DateText), 0, 0, 0, day.Location())

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(productID)

	event := cal.AddEvent(uuid.NewString())
	event.SetDtStampTime(now)
	event.SetCreatedTime(now)
	event.SetStartAt(start)
	event.SetEndAt(start.Add(time.Hour))
	event.SetSummary(Title)
	event.SetDescription(fmt.Sprintf("Court: %s\nAdresse: %s", conf.CourtText, conf.Address))
	event.SetLocation(conf.Address)
	event.SetStatus(ics.ObjectStatusConfirmed)

	return []byte(cal.Serialize())
}

// Store keeps the exported document
type Store interface {
	SaveCalendar(ics []byte) (string, error)
}

// Exporter renders and stores booking events
type Exporter struct {
	store Store
	now   func() time.Time
}

// NewExporter creates an exporter. store may be nil to skip writing.
func NewExporter(store Store) *Exporter {
	return &Exporter{store: store, now: time.Now}
}

// Export renders conf and writes it to the store
func (e *Exporter) Export(conf domain.Confirmation) ([]byte, error) {
	data := NewEvent(conf, e.now())
	if e.store != nil {
		if _, err := e.store.SaveCalendar(data); err != nil {
			return data, fmt.Errorf("save calendar: %w", err)
		}
	}
	return data, nil
}
