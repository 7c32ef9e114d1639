package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Participant is one entry in a message address list.
type Participant struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ParticipantList is stored as a JSON text column.
type ParticipantList []Participant

func (l ParticipantList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	raw, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func (l *ParticipantList) Scan(value interface{}) error {
	return scanJSON(value, l)
}

// StringList is stored as a JSON text column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	raw, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func (l *StringList) Scan(value interface{}) error {
	return scanJSON(value, l)
}

// UintList is stored as a JSON text column.
type UintList []uint32

func (l UintList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	raw, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func (l *UintList) Scan(value interface{}) error {
	return scanJSON(value, l)
}

func scanJSON(value, dest interface{}) error {
	if value == nil {
		return nil
	}
	switch v := value.(type) {
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dest)
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("unsupported column type %T for JSON scan", value)
	}
}
