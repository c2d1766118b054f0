package garmin

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// SourceShapeError reports a mandatory field missing from the activity list
// response. Only the activity identifier is mandatory; every other field
// degrades to its zero value.
type SourceShapeError struct {
	Field string
}

func (e *SourceShapeError) Error() string {
	return fmt.Sprintf("activity list response is missing required field %q", e.Field)
}

// ident accepts an identifier as either a JSON number or a string; both
// appear across Garmin's API generations.
type ident string

func (i *ident) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*i = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*i = ident(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*i = ident(n.String())
	return nil
}

// Text accepts either a bare JSON string or the older {"value": "..."} shape.
type Text struct {
	Value string
}

func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		t.Value = ""
		return nil
	}
	if data[0] == '{' {
		var obj struct {
			Value   string `json:"value"`
			Display string `json:"display"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		if obj.Value != "" {
			t.Value = obj.Value
		} else {
			t.Value = obj.Display
		}
		return nil
	}
	return json.Unmarshal(data, &t.Value)
}

// Measurement is one optional unit-tagged statistic. Older responses wrap it
// in an object with display strings, newer ones send a bare number. A missing
// field leaves the zero value, which renders as empty strings; no field
// access ever panics.
type Measurement struct {
	Value    *float64
	Display  string
	WithUnit string
	Unit     string
}

func (m *Measurement) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if data[0] == '{' {
		// The object shape carries value as a number or a quoted number
		// depending on the API generation.
		var obj struct {
			Value    ident  `json:"value"`
			Display  string `json:"display"`
			WithUnit string `json:"withUnit"`
			UOM      string `json:"uom"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		if obj.Value != "" {
			if v, err := strconv.ParseFloat(string(obj.Value), 64); err == nil {
				m.Value = &v
			}
		}
		m.Display = obj.Display
		m.WithUnit = obj.WithUnit
		m.Unit = obj.UOM
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	m.Value = &v
	return nil
}

// Present reports whether the source supplied this statistic at all.
func (m Measurement) Present() bool {
	return m.Value != nil || m.Display != "" || m.WithUnit != ""
}

// Raw renders the numeric value, or "" when absent.
func (m Measurement) Raw() string {
	if m.Value == nil {
		return ""
	}
	return strconv.FormatFloat(*m.Value, 'f', -1, 64)
}

// Timestamp is a local timestamp with an optional raw-millisecond epoch.
type Timestamp struct {
	Display string
	Millis  int64
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if data[0] == '{' {
		var obj struct {
			Display string `json:"display"`
			Value   string `json:"value"`
			Millis  ident  `json:"millis"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		if obj.Display != "" {
			t.Display = obj.Display
		} else {
			t.Display = obj.Value
		}
		if obj.Millis != "" {
			t.Millis, _ = strconv.ParseInt(string(obj.Millis), 10, 64)
		}
		return nil
	}
	return json.Unmarshal(data, &t.Display)
}

// Time converts the raw millisecond epoch, if present.
func (t Timestamp) Time() (time.Time, bool) {
	if t.Millis == 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(t.Millis), true
}

// RawMillis renders the millisecond epoch, or "" when absent.
func (t Timestamp) RawMillis() string {
	if t.Millis == 0 {
		return ""
	}
	return strconv.FormatInt(t.Millis, 10)
}

// TypeRef is the {"typeId": n, "parentTypeId": n} reference attached to an
// activity, resolved to display names through the lookup tables.
type TypeRef struct {
	TypeID       int64 `json:"typeId"`
	ParentTypeID int64 `json:"parentTypeId"`
}

// Activity is one activity summary from the list endpoint. Produced read-only
// by the paginator and never mutated.
type Activity struct {
	ID          string
	Name        string
	Description string

	Begin    Timestamp
	End      Timestamp
	TimeZone string

	DeviceID     int64
	ActivityType TypeRef
	EventType    TypeRef

	Distance       Measurement
	Duration       Measurement
	MovingDuration Measurement
	AvgSpeed       Measurement
	AvgMovingSpeed Measurement
	MaxSpeed       Measurement
	Calories       Measurement
	AvgHeartRate   Measurement
	MaxHeartRate   Measurement
	MinHeartRate   Measurement
	MaxElevation   Measurement
	MinElevation   Measurement
	ElevationGain  Measurement
	ElevationLoss  Measurement
	BeginLatitude  Measurement
	BeginLongitude Measurement
	EndLatitude    Measurement
	EndLongitude   Measurement
}

// activityJSON is the wire shape; field names follow the vendor's JSON, with
// old and new spellings decoded side by side.
type activityJSON struct {
	ActivityID          ident       `json:"activityId"`
	ActivityName        Text        `json:"activityName"`
	ActivityDescription Text        `json:"activityDescription"`
	Description         Text        `json:"description"`
	BeginTimestamp      Timestamp   `json:"beginTimestamp"`
	StartTimeLocal      Text        `json:"startTimeLocal"`
	StartTimeGMT        Timestamp   `json:"startTimeGMT"`
	EndTimestamp        Timestamp   `json:"endTimestamp"`
	ActivityTimeZone    Text        `json:"activityTimeZone"`
	DeviceID            ident       `json:"deviceId"`
	ActivityType        TypeRef     `json:"activityType"`
	EventType           TypeRef     `json:"eventType"`
	SumDistance         Measurement `json:"sumDistance"`
	Distance            Measurement `json:"distance"`
	SumElapsedDuration  Measurement `json:"sumElapsedDuration"`
	Duration            Measurement `json:"duration"`
	SumMovingDuration   Measurement `json:"sumMovingDuration"`
	MovingDuration      Measurement `json:"movingDuration"`
	WeightedMeanSpeed   Measurement `json:"weightedMeanSpeed"`
	AverageSpeed        Measurement `json:"averageSpeed"`
	WeightedMeanMoving  Measurement `json:"weightedMeanMovingSpeed"`
	AverageMovingSpeed  Measurement `json:"averageMovingSpeed"`
	MaxSpeed            Measurement `json:"maxSpeed"`
	SumEnergy           Measurement `json:"sumEnergy"`
	Calories            Measurement `json:"calories"`
	WeightedMeanHR      Measurement `json:"weightedMeanHeartRate"`
	AverageHR           Measurement `json:"averageHR"`
	MaxHeartRate        Measurement `json:"maxHeartRate"`
	MaxHR               Measurement `json:"maxHR"`
	MinHeartRate        Measurement `json:"minHeartRate"`
	MaxElevation        Measurement `json:"maxElevation"`
	MinElevation        Measurement `json:"minElevation"`
	GainElevation       Measurement `json:"gainElevation"`
	ElevationGain       Measurement `json:"elevationGain"`
	LossElevation       Measurement `json:"lossElevation"`
	ElevationLoss       Measurement `json:"elevationLoss"`
	BeginLatitude       Measurement `json:"beginLatitude"`
	StartLatitude       Measurement `json:"startLatitude"`
	BeginLongitude      Measurement `json:"beginLongitude"`
	StartLongitude      Measurement `json:"startLongitude"`
	EndLatitude         Measurement `json:"endLatitude"`
	EndLongitude        Measurement `json:"endLongitude"`
}

func firstMeasurement(candidates ...Measurement) Measurement {
	for _, m := range candidates {
		if m.Present() {
			return m
		}
	}
	return Measurement{}
}

func (a activityJSON) toActivity() (Activity, error) {
	if a.ActivityID == "" {
		return Activity{}, &SourceShapeError{Field: "activityId"}
	}

	begin := a.BeginTimestamp
	if begin.Display == "" && a.StartTimeLocal.Value != "" {
		begin.Display = a.StartTimeLocal.Value
	}
	if begin.Millis == 0 {
		begin.Millis = a.StartTimeGMT.Millis
	}

	desc := a.ActivityDescription.Value
	if desc == "" {
		desc = a.Description.Value
	}

	deviceID, _ := strconv.ParseInt(string(a.DeviceID), 10, 64)

	return Activity{
		ID:          string(a.ActivityID),
		Name:        a.ActivityName.Value,
		Description: desc,

		Begin:    begin,
		End:      a.EndTimestamp,
		TimeZone: a.ActivityTimeZone.Value,

		DeviceID:     deviceID,
		ActivityType: a.ActivityType,
		EventType:    a.EventType,

		Distance:       firstMeasurement(a.SumDistance, a.Distance),
		Duration:       firstMeasurement(a.SumElapsedDuration, a.Duration),
		MovingDuration: firstMeasurement(a.SumMovingDuration, a.MovingDuration),
		AvgSpeed:       firstMeasurement(a.WeightedMeanSpeed, a.AverageSpeed),
		AvgMovingSpeed: firstMeasurement(a.WeightedMeanMoving, a.AverageMovingSpeed),
		MaxSpeed:       a.MaxSpeed,
		Calories:       firstMeasurement(a.SumEnergy, a.Calories),
		AvgHeartRate:   firstMeasurement(a.WeightedMeanHR, a.AverageHR),
		MaxHeartRate:   firstMeasurement(a.MaxHeartRate, a.MaxHR),
		MinHeartRate:   a.MinHeartRate,
		MaxElevation:   a.MaxElevation,
		MinElevation:   a.MinElevation,
		ElevationGain:  firstMeasurement(a.GainElevation, a.ElevationGain),
		ElevationLoss:  firstMeasurement(a.LossElevation, a.ElevationLoss),
		BeginLatitude:  firstMeasurement(a.BeginLatitude, a.StartLatitude),
		BeginLongitude: firstMeasurement(a.BeginLongitude, a.StartLongitude),
		EndLatitude:    a.EndLatitude,
		EndLongitude:   a.EndLongitude,
	}, nil
}
