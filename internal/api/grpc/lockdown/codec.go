package lockdown

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	domain "github.com/oshokin/lockdown/internal/domain/lockdown"
)

// Window request fields.
const (
	fieldStart = "start"
	fieldEnd   = "end"
)

var errMalformedSnapshot = errors.New("malformed status snapshot")

// WindowRequest builds the SetDailyWindow request.
func WindowRequest(start, end string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldStart: structpb.NewStringValue(start),
		fieldEnd:   structpb.NewStringValue(end),
	}}
}

// windowFromRequest extracts the raw start and end strings.
func windowFromRequest(req *structpb.Struct) (string, string) {
	fields := req.GetFields()

	return fields[fieldStart].GetStringValue(), fields[fieldEnd].GetStringValue()
}

// SnapshotToStruct encodes a status snapshot.
func SnapshotToStruct(s domain.Snapshot) (*structpb.Struct, error) {
	payload := map[string]any{
		"countdown_on":      s.State.CountdownOn,
		"window_on":         s.State.WindowOn,
		"state":             s.State.String(),
		"privilege_granted": s.Privilege == domain.Granted,
		"indicator": map[string]any{
			"on":    s.Indicator.On,
			"title": s.Indicator.Title,
			"text":  s.Indicator.Text,
			"icon":  string(s.Indicator.Icon),
		},
	}

	if s.Countdown != nil {
		payload["countdown"] = map[string]any{
			"started_at":  formatTime(s.Countdown.StartedAt),
			"duration_ms": s.Countdown.Duration.Milliseconds(),
		}
	}

	if s.DailyWindow != nil {
		payload["daily_window"] = map[string]any{
			fieldStart: s.DailyWindow.Start.String(),
			fieldEnd:   s.DailyWindow.End.String(),
		}
	}

	alarms := make([]any, 0, len(s.Alarms))
	for _, record := range s.Alarms {
		alarms = append(alarms, map[string]any{
			"key":       string(record.Key),
			"next_fire": formatTime(record.NextFire),
			"period_ms": record.Period.Milliseconds(),
		})
	}

	payload["alarms"] = alarms

	notices := make([]any, 0, len(s.Notices))
	for _, notice := range s.Notices {
		notices = append(notices, map[string]any{
			"key":  notice.Key,
			"text": notice.Text,
			"time": formatTime(notice.Time),
		})
	}

	payload["notices"] = notices

	result, err := structpb.NewStruct(payload)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}

	return result, nil
}

// SnapshotFromStruct decodes a status snapshot.
//
//nolint:cyclop // One branch per optional section.
func SnapshotFromStruct(payload *structpb.Struct) (domain.Snapshot, error) {
	fields := payload.GetFields()

	snapshot := domain.Snapshot{
		State: domain.EnforcementState{
			CountdownOn: fields["countdown_on"].GetBoolValue(),
			WindowOn:    fields["window_on"].GetBoolValue(),
		},
	}

	if fields["privilege_granted"].GetBoolValue() {
		snapshot.Privilege = domain.Granted
	}

	if indicator := fields["indicator"].GetStructValue(); indicator != nil {
		values := indicator.GetFields()
		snapshot.Indicator = domain.Indicator{
			On:    values["on"].GetBoolValue(),
			Title: values["title"].GetStringValue(),
			Text:  values["text"].GetStringValue(),
			Icon:  domain.IndicatorIcon(values["icon"].GetStringValue()),
		}
	}

	if countdown := fields["countdown"].GetStructValue(); countdown != nil {
		values := countdown.GetFields()

		startedAt, err := parseTime(values["started_at"].GetStringValue())
		if err != nil {
			return domain.Snapshot{}, err
		}

		snapshot.Countdown = &domain.Countdown{
			StartedAt: startedAt,
			Duration:  time.Duration(values["duration_ms"].GetNumberValue()) * time.Millisecond,
		}
	}

	if window := fields["daily_window"].GetStructValue(); window != nil {
		start, end := windowFromRequest(window)

		startHM, err := domain.ParseHourMinute(start)
		if err != nil {
			return domain.Snapshot{}, fmt.Errorf("%w: %w", errMalformedSnapshot, err)
		}

		endHM, err := domain.ParseHourMinute(end)
		if err != nil {
			return domain.Snapshot{}, fmt.Errorf("%w: %w", errMalformedSnapshot, err)
		}

		snapshot.DailyWindow = &domain.DailyWindow{Start: startHM, End: endHM}
	}

	for _, value := range fields["alarms"].GetListValue().GetValues() {
		values := value.GetStructValue().GetFields()

		key, err := domain.ParseAlarmKey(values["key"].GetStringValue())
		if err != nil {
			return domain.Snapshot{}, fmt.Errorf("%w: %w", errMalformedSnapshot, err)
		}

		nextFire, err := parseTime(values["next_fire"].GetStringValue())
		if err != nil {
			return domain.Snapshot{}, err
		}

		snapshot.Alarms = append(snapshot.Alarms, domain.AlarmRecord{
			Key:      key,
			NextFire: nextFire,
			Period:   time.Duration(values["period_ms"].GetNumberValue()) * time.Millisecond,
		})
	}

	for _, value := range fields["notices"].GetListValue().GetValues() {
		values := value.GetStructValue().GetFields()

		raised, err := parseTime(values["time"].GetStringValue())
		if err != nil {
			return domain.Snapshot{}, err
		}

		snapshot.Notices = append(snapshot.Notices, domain.Notice{
			Key:  values["key"].GetStringValue(),
			Text: values["text"].GetStringValue(),
			Time: raised,
		})
	}

	return snapshot, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}

	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", errMalformedSnapshot, err)
	}

	return parsed, nil
}
