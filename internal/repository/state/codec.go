package state

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/lockdown/internal/domain/lockdown"
)

// Field names of the persisted layout.
const (
	fieldStartHour  = "start_h"
	fieldStartMin   = "start_m"
	fieldEndHour    = "end_h"
	fieldEndMin     = "end_m"
	fieldStartedAt  = "started_at"
	fieldDurationMS = "duration_ms"
	fieldAlarms     = "alarms"
	fieldKey        = "key"
	fieldNextFire   = "next_fire"
	fieldPeriodMS   = "period_ms"
)

var (
	errMissingField  = errors.New("missing field")
	errNotAnInteger  = errors.New("not an integer")
	errWrongKindType = errors.New("unexpected value type")
)

// scheduleToStruct encodes the variant payload of s.
func scheduleToStruct(s lockdown.Schedule) (*structpb.Struct, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("validate schedule: %w", err)
	}

	switch s.Kind {
	case lockdown.KindDailyWindow:
		w := s.DailyWindow

		return &structpb.Struct{Fields: map[string]*structpb.Value{
			fieldStartHour: structpb.NewNumberValue(float64(w.Start.Hour)),
			fieldStartMin:  structpb.NewNumberValue(float64(w.Start.Minute)),
			fieldEndHour:   structpb.NewNumberValue(float64(w.End.Hour)),
			fieldEndMin:    structpb.NewNumberValue(float64(w.End.Minute)),
		}}, nil
	default:
		c := s.Countdown

		return &structpb.Struct{Fields: map[string]*structpb.Value{
			fieldStartedAt:  structpb.NewStringValue(c.StartedAt.UTC().Format(time.RFC3339Nano)),
			fieldDurationMS: structpb.NewNumberValue(float64(c.Duration.Milliseconds())),
		}}, nil
	}
}

// scheduleFromStruct decodes a payload stored under kind.
func scheduleFromStruct(kind lockdown.ScheduleKind, payload *structpb.Struct) (lockdown.Schedule, error) {
	var s lockdown.Schedule

	switch kind {
	case lockdown.KindDailyWindow:
		var (
			values [4]int
			names  = [4]string{fieldStartHour, fieldStartMin, fieldEndHour, fieldEndMin}
		)

		for i, name := range names {
			v, err := intField(payload, name)
			if err != nil {
				return lockdown.Schedule{}, err
			}

			values[i] = int(v)
		}

		s = lockdown.NewDailyWindowSchedule(lockdown.DailyWindow{
			Start: lockdown.HourMinute{Hour: values[0], Minute: values[1]},
			End:   lockdown.HourMinute{Hour: values[2], Minute: values[3]},
		})
	case lockdown.KindCountdown:
		startedAt, err := timeField(payload, fieldStartedAt)
		if err != nil {
			return lockdown.Schedule{}, err
		}

		durationMS, err := intField(payload, fieldDurationMS)
		if err != nil {
			return lockdown.Schedule{}, err
		}

		s = lockdown.NewCountdownSchedule(lockdown.Countdown{
			StartedAt: startedAt,
			Duration:  time.Duration(durationMS) * time.Millisecond,
		})
	default:
		return lockdown.Schedule{}, fmt.Errorf("unknown schedule key %q", kind)
	}

	if err := s.Validate(); err != nil {
		return lockdown.Schedule{}, fmt.Errorf("decoded %s: %w", kind, err)
	}

	return s, nil
}

// alarmToStruct encodes one record.
func alarmToStruct(r lockdown.AlarmRecord) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldKey:      structpb.NewStringValue(string(r.Key)),
		fieldNextFire: structpb.NewStringValue(r.NextFire.UTC().Format(time.RFC3339Nano)),
		fieldPeriodMS: structpb.NewNumberValue(float64(r.Period.Milliseconds())),
	}}
}

// alarmFromStruct decodes one record.
func alarmFromStruct(payload *structpb.Struct) (lockdown.AlarmRecord, error) {
	rawKey, ok := payload.GetFields()[fieldKey]
	if !ok {
		return lockdown.AlarmRecord{}, fmt.Errorf("%s: %w", fieldKey, errMissingField)
	}

	key, err := lockdown.ParseAlarmKey(rawKey.GetStringValue())
	if err != nil {
		return lockdown.AlarmRecord{}, err
	}

	nextFire, err := timeField(payload, fieldNextFire)
	if err != nil {
		return lockdown.AlarmRecord{}, err
	}

	periodMS, err := intField(payload, fieldPeriodMS)
	if err != nil {
		return lockdown.AlarmRecord{}, err
	}

	return lockdown.AlarmRecord{
		Key:      key,
		NextFire: nextFire,
		Period:   time.Duration(periodMS) * time.Millisecond,
	}, nil
}

// alarmsToStruct encodes the record list sorted by key for stable files.
func alarmsToStruct(records []lockdown.AlarmRecord) *structpb.Struct {
	sorted := append([]lockdown.AlarmRecord(nil), records...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })

	values := make([]*structpb.Value, 0, len(sorted))
	for _, r := range sorted {
		values = append(values, structpb.NewStructValue(alarmToStruct(r)))
	}

	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldAlarms: structpb.NewListValue(&structpb.ListValue{Values: values}),
	}}
}

// alarmsFromStruct decodes the record list.
func alarmsFromStruct(payload *structpb.Struct) ([]lockdown.AlarmRecord, error) {
	list := payload.GetFields()[fieldAlarms].GetListValue()

	records := make([]lockdown.AlarmRecord, 0, len(list.GetValues()))

	for i, value := range list.GetValues() {
		entry := value.GetStructValue()
		if entry == nil {
			return nil, fmt.Errorf("alarm %d: %w", i, errWrongKindType)
		}

		record, err := alarmFromStruct(entry)
		if err != nil {
			return nil, fmt.Errorf("alarm %d: %w", i, err)
		}

		records = append(records, record)
	}

	return records, nil
}

func intField(payload *structpb.Struct, name string) (int64, error) {
	value, ok := payload.GetFields()[name]
	if !ok {
		return 0, fmt.Errorf("%s: %w", name, errMissingField)
	}

	number, ok := value.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("%s: %w", name, errWrongKindType)
	}

	if number.NumberValue != math.Trunc(number.NumberValue) {
		return 0, fmt.Errorf("%s: %w", name, errNotAnInteger)
	}

	return int64(number.NumberValue), nil
}

func timeField(payload *structpb.Struct, name string) (time.Time, error) {
	value, ok := payload.GetFields()[name]
	if !ok {
		return time.Time{}, fmt.Errorf("%s: %w", name, errMissingField)
	}

	parsed, err := time.Parse(time.RFC3339Nano, value.GetStringValue())
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", name, err)
	}

	return parsed, nil
}
