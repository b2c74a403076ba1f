package reading

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var ErrMalformed = errors.New("malformed sensor payload")

// Reading is one snapshot of the six hydroponic sensor values
type Reading struct {
	AirTemperature   float64   `json:"air_temperature"`
	Humidity         float64   `json:"humidity"`
	WaterTemperature float64   `json:"water_temperature"`
	WaterLevel       float64   `json:"water_level"`
	PH               float64   `json:"ph"`
	TDS              float64   `json:"tds"`
	Received         time.Time `json:"ts"`
}

type Field int

const (
	AirTemperature Field = iota
	Humidity
	WaterTemperature
	PH
	TDS
	WaterLevel
)

// Fields lists every field in display order.
var Fields = []Field{AirTemperature, Humidity, WaterTemperature, WaterLevel, PH, TDS}

var fieldNames = map[Field]string{
	AirTemperature:   "Air Temperature",
	Humidity:         "Humidity",
	WaterTemperature: "Water Temperature",
	PH:               "pH Level",
	TDS:              "TDS",
	WaterLevel:       "Water Level",
}

var fieldUnits = map[Field]string{
	AirTemperature:   "°C",
	Humidity:         "%",
	WaterTemperature: "°C",
	PH:               "",
	TDS:              " ppm",
	WaterLevel:       "%",
}

// wire keys used by the device server
var wireKeys = map[Field]string{
	AirTemperature:   "temperature",
	Humidity:         "humidity",
	WaterTemperature: "waterTemp",
	WaterLevel:       "distance",
	PH:               "ph",
	TDS:              "tds",
}

func (f Field) String() string {
	if n, ok := fieldNames[f]; ok {
		return n
	}
	return fmt.Sprintf("Field(%d)", int(f))
}

func (f Field) Unit() string {
	return fieldUnits[f]
}

// Value returns the value of the given field
func (r Reading) Value(f Field) float64 {
	switch f {
	case AirTemperature:
		return r.AirTemperature
	case Humidity:
		return r.Humidity
	case WaterTemperature:
		return r.WaterTemperature
	case WaterLevel:
		return r.WaterLevel
	case PH:
		return r.PH
	case TDS:
		return r.TDS
	}
	return 0
}

func (r *Reading) set(f Field, v float64) {
	switch f {
	case AirTemperature:
		r.AirTemperature = v
	case Humidity:
		r.Humidity = v
	case WaterTemperature:
		r.WaterTemperature = v
	case WaterLevel:
		r.WaterLevel = v
	case PH:
		r.PH = v
	case TDS:
		r.TDS = v
	}
}

// Lines renders the reading for display, one field per line.
func (r Reading) Lines() []string {
	lines := make([]string, 0, len(Fields))
	for _, f := range Fields {
		lines = append(lines, fmt.Sprintf("%s: %s", f, FormatValue(f, r.Value(f))))
	}
	return lines
}

func (r Reading) String() string {
	return strings.Join(r.Lines(), ", ")
}

// FormatValue formats v with the unit of f
func FormatValue(f Field, v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + f.Unit()
}

// Decode parses a JSON object payload into a Reading. Missing, null and
// non-numeric fields decode to zero.
func Decode(payload []byte, received time.Time) (Reading, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Reading{}, ErrMalformed
	}
	var obj map[string]any
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(&obj); err != nil {
		return Reading{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	r := Reading{Received: received}
	for f, key := range wireKeys {
		r.set(f, optFloat(obj, key))
	}
	return r, nil
}

func optFloat(obj map[string]any, key string) float64 {
	v, ok := obj[key]
	if !ok || v == nil {
		return 0
	}
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0
		}
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil || math.IsInf(f, 0) {
			return 0
		}
		return f
	}
	return 0
}
