package catalog

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ObjectType classifies a tracked object.
type ObjectType int

const (
	RocketBody ObjectType = iota
	Payload
	Debris
	Unknown
)

// String returns the Space-Track wire form of the type.
func (t ObjectType) String() string {
	switch t {
	case RocketBody:
		return "ROCKET BODY"
	case Payload:
		return "PAYLOAD"
	case Debris:
		return "DEBRIS"
	default:
		return "UNKNOWN"
	}
}

// MarshalJSON emits the Space-Track wire form.
func (t ObjectType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// parseObjectType maps a Space-Track OBJECT_TYPE value. The second result
// reports whether the value was recognized; categories introduced upstream
// after this code was written map to Unknown so they never break ingestion.
func parseObjectType(s string) (ObjectType, bool) {
	switch s {
	case "ROCKET BODY":
		return RocketBody, true
	case "PAYLOAD":
		return Payload, true
	case "DEBRIS":
		return Debris, true
	case "UNKNOWN":
		return Unknown, true
	}
	return Unknown, false
}

// OrbitData summarizes a satellite's orbit. It is present on a Satellite
// only when the catalog record carried all four fields.
type OrbitData struct {
	Period      float64 `json:"PERIOD"`
	Inclination float64 `json:"INCLINATION"`
	Apogee      float64 `json:"APOGEE"`
	Perigee     float64 `json:"PERIGEE"`
}

// Satellite is one tracked object from the Space-Track catalog.
type Satellite struct {
	NoradID int
	Type    ObjectType
	Name    string
	Launch  string  // date string, e.g. "1957-10-04"
	Decay   *string // nil while the object is on orbit
	Orbit   *OrbitData
}

// MarshalJSON renders the satellite with the orbit summary flattened into
// the object, matching the shape Space-Track uses on the wire.
func (s *Satellite) MarshalJSON() ([]byte, error) {
	type wire struct {
		NoradID int        `json:"NORAD_CAT_ID"`
		Type    ObjectType `json:"OBJECT_TYPE"`
		Name    string     `json:"OBJECT_NAME"`
		Launch  string     `json:"LAUNCH"`
		Decay   *string    `json:"DECAY,omitempty"`
		*OrbitData
	}
	return json.Marshal(wire{s.NoradID, s.Type, s.Name, s.Launch, s.Decay, s.Orbit})
}

// flexFloat accepts a JSON number or a numeric string. Space-Track emits
// both depending on the endpoint and field.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(str, 64)
		if err != nil {
			return fmt.Errorf("numeric string %q: %w", str, err)
		}
		*f = flexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// flexInt is the integer counterpart of flexFloat, used for catalog numbers.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		v, err := strconv.Atoi(strings.TrimSpace(str))
		if err != nil {
			return fmt.Errorf("numeric string %q: %w", str, err)
		}
		*f = flexInt(v)
		return nil
	}
	var v int
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = flexInt(v)
	return nil
}

// catalogRecord mirrors one element of the satcat response. Optional
// fields are pointers so absence and null are distinguishable from zero.
type catalogRecord struct {
	NoradID     *flexInt   `json:"NORAD_CAT_ID"`
	ObjectType  string     `json:"OBJECT_TYPE"`
	ObjectName  string     `json:"OBJECT_NAME"`
	Launch      string     `json:"LAUNCH"`
	Decay       *string    `json:"DECAY"`
	Period      *flexFloat `json:"PERIOD"`
	Inclination *flexFloat `json:"INCLINATION"`
	Apogee      *flexFloat `json:"APOGEE"`
	Perigee     *flexFloat `json:"PERIGEE"`
}
