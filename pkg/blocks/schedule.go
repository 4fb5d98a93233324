package blocks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/petrijr/botflow/pkg/api"
)

// Pending tags of the schedule dialog and the session vars it fills.
const (
	ScheduleTagDate = "schedule.date"
	ScheduleTagTime = "schedule.time"

	VarScheduleDate = "schedule_date"
	VarScheduleTime = "schedule_time"
)

const (
	defaultDateQuestion = "Which date would you like to book?"
	defaultTimeQuestion = "What time would you like to book?"
	defaultUnavailable  = "Sorry, this time is already taken. Please choose another one."

	dateFormatHint = "Invalid date format. Please enter the date as:\n" +
		"• YYYY-MM-DD (for example 2025-09-28)\n" +
		"• DD.MM.YYYY (for example 28.09.2025)\n" +
		"• DD month (for example 28 September)"
	timeFormatHint    = "Invalid time format. Please enter the time as HH:MM (for example 14:30) or HH.MM (for example 14.30)."
	dateUnavailable   = "The selected date is not available. Please choose another date."
	outsideWorkingHrs = "Please choose a time between %s and %s."

	isoDate     = "2006-01-02"
	displayDate = "02.01.2006"
	clock       = "15:04"
)

var monthNames = map[string]time.Month{
	"января": time.January, "февраля": time.February, "марта": time.March,
	"апреля": time.April, "мая": time.May, "июня": time.June,
	"июля": time.July, "августа": time.August, "сентября": time.September,
	"октября": time.October, "ноября": time.November, "декабря": time.December,
}

func init() {
	for m := time.January; m <= time.December; m++ {
		name := strings.ToLower(m.String())
		monthNames[name] = m
		monthNames[name[:3]] = m
	}
}

// scheduleBlock runs a two-step booking dialog: it asks for a date, then for
// a time, optionally checking both against a CRM, and finally confirms the
// booking to the user and notifies the administrator chat.
type scheduleBlock struct {
	nodeID       string
	dateQuestion string
	timeQuestion string
	unavailable  string
	minDate      time.Time
	maxDate      time.Time
	workStart    string
	workEnd      string
	crmEndpoint  string
	adminChatID  string

	http   *resty.Client
	now    func() time.Time
	logger *slog.Logger
}

func newScheduleBlock(n api.Node, opts Options) (api.Block, error) {
	d := n.Data
	b := &scheduleBlock{
		nodeID:       n.ID,
		dateQuestion: orDefault(d.DateQuestion, defaultDateQuestion),
		timeQuestion: orDefault(d.TimeQuestion, defaultTimeQuestion),
		unavailable:  orDefault(d.UnavailableMessage, defaultUnavailable),
		adminChatID:  d.AdminChatID,
		http:         opts.HTTPClient,
		now:          opts.Now,
		logger:       opts.Logger,
	}
	var err error
	if d.MinDate != "" {
		if b.minDate, err = time.Parse(isoDate, d.MinDate); err != nil {
			return nil, &api.ConfigurationError{NodeID: n.ID, Reason: "invalid minDate", Err: err}
		}
	}
	if d.MaxDate != "" {
		if b.maxDate, err = time.Parse(isoDate, d.MaxDate); err != nil {
			return nil, &api.ConfigurationError{NodeID: n.ID, Reason: "invalid maxDate", Err: err}
		}
	}
	if d.WorkStartTime != "" && d.WorkEndTime != "" {
		// Bounds are kept as zero-padded HH:MM so they compare as strings.
		start, ok := parseClock(d.WorkStartTime)
		if !ok {
			return nil, &api.ConfigurationError{NodeID: n.ID, Reason: "invalid workStartTime " + d.WorkStartTime}
		}
		end, ok := parseClock(d.WorkEndTime)
		if !ok {
			return nil, &api.ConfigurationError{NodeID: n.ID, Reason: "invalid workEndTime " + d.WorkEndTime}
		}
		b.workStart, b.workEnd = start, end
	}
	if d.CRMIntegration {
		b.crmEndpoint = strings.TrimSpace(d.CRMEndpoint)
	}
	return b, nil
}

func (b *scheduleBlock) Interactive() bool { return true }

// Execute opens the dialog by asking for a date.
func (b *scheduleBlock) Execute(ctx context.Context, x *api.Exec) (api.Directive, error) {
	x.Session.SetPending(api.Pending{NodeID: b.nodeID, Tag: ScheduleTagDate})
	return api.Wait(), x.SendText(ctx, b.dateQuestion)
}

// Continue handles the user's answer to whichever question is pending.
func (b *scheduleBlock) Continue(ctx context.Context, x *api.Exec) (api.Directive, error) {
	p, ok := x.Session.Pending()
	if !ok || p.NodeID != b.nodeID {
		return api.Wait(), nil
	}
	answer := strings.TrimSpace(x.Text())
	switch p.Tag {
	case ScheduleTagDate:
		return b.onDate(ctx, x, answer)
	case ScheduleTagTime:
		return b.onTime(ctx, x, p, answer)
	default:
		x.Session.ClearPending()
		return api.Wait(), fmt.Errorf("unexpected pending tag %q", p.Tag)
	}
}

func (b *scheduleBlock) onDate(ctx context.Context, x *api.Exec, answer string) (api.Directive, error) {
	date, ok := parseDate(answer, b.now())
	if !ok {
		return api.Wait(), b.reask(ctx, x, dateFormatHint, b.dateQuestion)
	}
	if !b.minDate.IsZero() && date.Before(b.minDate) {
		return api.Wait(), b.reask(ctx, x, "The date must not be earlier than "+b.minDate.Format(displayDate)+".", b.dateQuestion)
	}
	if !b.maxDate.IsZero() && date.After(b.maxDate) {
		return api.Wait(), b.reask(ctx, x, "The date must not be later than "+b.maxDate.Format(displayDate)+".", b.dateQuestion)
	}
	iso := date.Format(isoDate)
	if b.crmEndpoint != "" && !b.available(ctx, map[string]string{"date": iso}) {
		return api.Wait(), b.reask(ctx, x, dateUnavailable, b.dateQuestion)
	}

	x.Session.SetPending(api.Pending{NodeID: b.nodeID, Tag: ScheduleTagTime, Data: map[string]string{"date": iso}})
	return api.Wait(), x.SendText(ctx, b.timeQuestion)
}

func (b *scheduleBlock) onTime(ctx context.Context, x *api.Exec, p api.Pending, answer string) (api.Directive, error) {
	hhmm, ok := parseTime(answer)
	if !ok {
		return api.Wait(), b.reask(ctx, x, timeFormatHint, b.timeQuestion)
	}
	if b.workStart != "" && (hhmm < b.workStart || hhmm >= b.workEnd) {
		return api.Wait(), b.reask(ctx, x, fmt.Sprintf(outsideWorkingHrs, b.workStart, b.workEnd), b.timeQuestion)
	}
	date := p.Data["date"]
	if b.crmEndpoint != "" && !b.available(ctx, map[string]string{"date": date, "time": hhmm}) {
		return api.Wait(), b.reask(ctx, x, b.unavailable, b.timeQuestion)
	}

	x.Session.ClearPending()
	x.Session.Vars[VarScheduleDate] = date
	x.Session.Vars[VarScheduleTime] = hhmm

	shown := date
	if t, err := time.Parse(isoDate, date); err == nil {
		shown = t.Format(displayDate)
	}
	if err := x.SendText(ctx, fmt.Sprintf("You are booked for %s at %s.", shown, hhmm)); err != nil {
		return api.FollowEdge(), err
	}
	b.notifyAdmin(ctx, x, date, hhmm)
	return api.FollowEdge(), nil
}

func (b *scheduleBlock) reask(ctx context.Context, x *api.Exec, problem, question string) error {
	if err := x.SendText(ctx, problem); err != nil {
		return err
	}
	return x.SendText(ctx, question)
}

// notifyAdmin sends the booking to the graph's admin chat, falling back to the
// node's admin chat and finally to the user.
func (b *scheduleBlock) notifyAdmin(ctx context.Context, x *api.Exec, date, hhmm string) {
	target := x.ChatID
	for _, candidate := range []string{x.Graph.AdminChatID, b.adminChatID} {
		if candidate == "" {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSpace(candidate), 10, 64)
		if err != nil {
			x.Logger.WarnContext(ctx, "invalid_admin_chat_id", slog.String("value", candidate))
			continue
		}
		target = id
		break
	}
	if target == x.ChatID {
		x.Logger.WarnContext(ctx, "admin_chat_not_configured", slog.Int64("chat_id", x.ChatID))
	}

	username := "unknown bot"
	if id, err := x.Transport.Identity(ctx); err == nil && id.Username != "" {
		username = "@" + id.Username
	}
	msg := fmt.Sprintf("New booking via %s\nDate: %s\nTime: %s\nUser: tg://user?id=%d\nPlease contact the user to confirm.",
		username, date, hhmm, x.ChatID)
	if _, err := x.Transport.Send(ctx, target, api.OutboundMessage{Text: msg}); err != nil {
		x.Logger.ErrorContext(ctx, "admin_notify_failed", slog.Int64("admin_chat_id", target), slog.Any("error", err))
	}
}

type crmAvailability struct {
	Available *bool `json:"available"`
}

// available asks the CRM whether a slot is free. Any failure counts as
// available so an unreachable CRM never blocks bookings.
func (b *scheduleBlock) available(ctx context.Context, query map[string]string) bool {
	resp, err := b.http.R().
		SetContext(ctx).
		SetQueryParams(query).
		SetHeader("Accept", "application/json").
		Get(b.crmEndpoint)
	if err != nil {
		b.logger.ErrorContext(ctx, "crm_check_failed", slog.String("endpoint", b.crmEndpoint), slog.Any("error", err))
		return true
	}
	if resp.StatusCode() != http.StatusOK {
		b.logger.WarnContext(ctx, "crm_check_status", slog.String("endpoint", b.crmEndpoint), slog.Int("status", resp.StatusCode()))
		return true
	}
	var out crmAvailability
	if err := json.Unmarshal(resp.Body(), &out); err != nil || out.Available == nil {
		return true
	}
	return *out.Available
}

// parseDate accepts YYYY-MM-DD, DD.MM.YYYY and "DD <month>" in Russian or
// English. A day-month date already past this year rolls over to next year.
func parseDate(s string, now time.Time) (time.Time, bool) {
	for _, layout := range []string{isoDate, displayDate} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	parts := strings.Fields(strings.ToLower(s))
	if len(parts) != 2 {
		return time.Time{}, false
	}
	day, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, false
	}
	month, ok := monthNames[parts[1]]
	if !ok {
		return time.Time{}, false
	}
	year := now.Year()
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day {
		return time.Time{}, false
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if t.Before(today) {
		t = time.Date(year+1, month, day, 0, 0, 0, 0, time.UTC)
	}
	return t, true
}

// parseTime accepts HH:MM, HH.MM and "H MM" and returns the time as HH:MM.
func parseTime(s string) (string, bool) {
	if t, ok := parseClock(s); ok {
		return t, true
	}
	if t, err := time.Parse("15.04", s); err == nil {
		return t.Format(clock), true
	}
	parts := strings.Fields(s)
	if len(parts) == 2 {
		h, errH := strconv.Atoi(parts[0])
		m, errM := strconv.Atoi(parts[1])
		if errH == nil && errM == nil && h >= 0 && h < 24 && m >= 0 && m < 60 {
			return fmt.Sprintf("%02d:%02d", h, m), true
		}
	}
	return "", false
}

func parseClock(s string) (string, bool) {
	t, err := time.Parse(clock, s)
	if err != nil {
		return "", false
	}
	return t.Format(clock), true
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
