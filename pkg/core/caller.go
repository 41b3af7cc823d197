// pkg/core/caller.go
package core

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Placeholder is the value the signal backend uses for unknown fields.
const Placeholder = "---"

// FlexFloat decodes a number that the backend may send either as a JSON
// number or as a string, including the "---" placeholder.
type FlexFloat struct {
	Value float64
	Valid bool
}

// Float returns a valid FlexFloat holding v.
func Float(v float64) FlexFloat {
	return FlexFloat{Value: v, Valid: true}
}

func (f FlexFloat) String() string {
	if !f.Valid {
		return Placeholder
	}
	return strconv.FormatFloat(f.Value, 'f', -1, 64)
}

func (f FlexFloat) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return json.Marshal(Placeholder)
	}
	return json.Marshal(f.Value)
}

func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*f = FlexFloat{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = ParseFlexFloat(s)
		return nil
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return err
	}
	*f = Float(v)
	return nil
}

// ParseFlexFloat parses s, yielding an invalid value for placeholders and
// anything that is not a number.
func ParseFlexFloat(s string) FlexFloat {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return FlexFloat{}
	}
	return Float(v)
}

// Receiver is one station's bearing in the nested record shape.
type Receiver struct {
	RFF     string    `json:"RFF"`
	Bearing FlexFloat `json:"bearing"`
}

// CallerRecord is a signal event as served by the signal backend. Older
// revisions carry a single flat rff1/bearing1 pair; newer ones a list of
// receivers.
type CallerRecord struct {
	ID        string     `json:"id"`
	Channel   string     `json:"channel,omitempty"`
	RFF1      string     `json:"rff1,omitempty"`
	Bearing1  FlexFloat  `json:"bearing1"`
	Receivers []Receiver `json:"receivers,omitempty"`
	Fix       string     `json:"fix,omitempty"`
	StartTime string     `json:"starttime"`
	StopTime  string     `json:"stoptime,omitempty"`
}

// Bearings normalises both record shapes into a receiver list. The nested
// shape wins when present.
func (c CallerRecord) Bearings() []Receiver {
	if len(c.Receivers) > 0 {
		return c.Receivers
	}
	if c.RFF1 == "" {
		return nil
	}
	return []Receiver{{RFF: c.RFF1, Bearing: c.Bearing1}}
}

// Started parses StartTime. Records with an unparseable start time report ok=false.
func (c CallerRecord) Started() (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, c.StartTime); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// RFFSite is a persisted receiver station returned by the RFF seed endpoint.
type RFFSite struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

// SignalUpdate is a partial update of a caller record.
type SignalUpdate struct {
	Channel   *string    `json:"channel,omitempty"`
	RFF1      *string    `json:"rff1,omitempty"`
	Bearing1  *FlexFloat `json:"bearing1,omitempty"`
	Fix       *string    `json:"fix,omitempty"`
	StartTime *string    `json:"starttime,omitempty"`
	StopTime  *string    `json:"stoptime,omitempty"`
}

// Empty reports whether the update carries no fields.
func (u SignalUpdate) Empty() bool {
	return u.Channel == nil && u.RFF1 == nil && u.Bearing1 == nil &&
		u.Fix == nil && u.StartTime == nil && u.StopTime == nil
}

// Response is the envelope every signal backend endpoint answers with.
// Data holds exactly one payload on success.
type Response[T any] struct {
	Data    []T    `json:"data"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// NewResponse wraps a payload in a success envelope.
func NewResponse[T any](payload T, message string) Response[T] {
	return Response[T]{Data: []T{payload}, Code: 200, Message: message}
}
