package model

import (
	"database/sql/driver"
	"encoding/json"
)

// StringList stores a JSON array in a single text column.
type StringList []string

// Scan implements the sql.Scanner interface.
func (s *StringList) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		*s = nil
		return nil
	}
	if len(bytes) == 0 || string(bytes) == "null" {
		*s = nil
		return nil
	}
	return json.Unmarshal(bytes, s)
}

// Value implements the driver.Valuer interface.
func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// DefaultTheme is used when a user has no stored preference row.
const DefaultTheme = "synthwave"

// UserPreference holds per-user UI and filtering settings.
type UserPreference struct {
	Username       string     `json:"username" gorm:"primaryKey;size:100"`
	Theme          string     `json:"theme" gorm:"size:50;default:'synthwave'"`
	MutedUploaders StringList `json:"mutedUploaders" gorm:"type:text"`
}

// TableName specifies the table name for GORM.
func (UserPreference) TableName() string {
	return "user_preferences"
}
