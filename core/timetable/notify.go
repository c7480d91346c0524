package timetable

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/school"
)

const substitutionConfirmedTmpl = "substitution_confirmed"

type substitutionConfirmedData struct {
	SubstituteName string
	ClassName      string
	Day            string
	Date           string
	Period         int
	StartTime      string
	EndTime        string
	Room           string
	Reason         string
}

// notifySubstitute emails the substitute about a confirmed substitution. Sending is asynchronous.
func (svc *Service) notifySubstitute(sub Substitution, cls school.Class, substitute school.Teacher, entry OverrideEntry) {
	if svc.mailer == nil || svc.conf == nil || !svc.conf.Timetable.NotifySubstitutes || substitute.Email == "" {
		return
	}

	msg := &core.EmailMessage{
		From:         svc.conf.DefaultFromEmail(),
		To:           []mail.Address{{Name: substitute.Name, Address: substitute.Email}},
		Subject:      "Substitution confirmed: " + cls.Name,
		TemplateName: substitutionConfirmedTmpl,
		TemplateData: substitutionConfirmedData{
			SubstituteName: substitute.Name,
			ClassName:      cls.Name,
			Day:            strings.Title(string(sub.Day)),
			Date:           sub.Date.Format(DateLayout),
			Period:         sub.Period,
			StartTime:      entry.StartTime,
			EndTime:        entry.EndTime,
			Room:           core.StringVal(entry.Room),
			Reason:         sub.Reason,
		},
	}
	if ics, ok := substitutionEvent(sub, cls, entry); ok {
		if err := msg.Attach(strings.NewReader(ics), "substitution.ics", "text/calendar"); err != nil {
			svc.logger.Warn("attaching substitution event", err)
		}
	}
	svc.mailer.SendMessages(msg)
}

const icsTimeLayout = "20060102T150405"

// substitutionEvent renders a single-event iCalendar for the substituted period.
// It reports false when the period has no usable start and end times.
func substitutionEvent(sub Substitution, cls school.Class, entry OverrideEntry) (string, bool) {
	start, err1 := time.Parse("15:04", entry.StartTime)
	end, err2 := time.Parse("15:04", entry.EndTime)
	if err1 != nil || err2 != nil || !end.After(start) {
		return "", false
	}
	at := func(t time.Time) string {
		return time.Date(sub.Date.Year(), sub.Date.Month(), sub.Date.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC).
			Format(icsTimeLayout)
	}

	var b strings.Builder
	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//ratiba//substitutions//EN",
		"BEGIN:VEVENT",
		"UID:" + sub.ID + "@ratiba",
		"DTSTAMP:" + sub.UpdatedAt.UTC().Format(icsTimeLayout) + "Z",
		"DTSTART:" + at(start),
		"DTEND:" + at(end),
		fmt.Sprintf("SUMMARY:Substitution %s (period %d)", cls.Name, sub.Period),
	}
	if room := core.StringVal(entry.Room); room != "" {
		lines = append(lines, "LOCATION:"+room)
	}
	lines = append(lines, "END:VEVENT", "END:VCALENDAR")
	for _, l := range lines {
		b.WriteString(l)
		b.WriteString("\r\n")
	}
	return b.String(), true
}
