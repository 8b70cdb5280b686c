package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// AssistantQuery records one request to the AI assistant along with the
// structured answer returned to the client.
type AssistantQuery struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	UserID      string     `gorm:"index;not null;size:36" json:"userId"`
	SessionID   *string    `gorm:"size:64" json:"sessionId,omitempty"`
	Mode        string     `gorm:"not null;size:32" json:"mode"`
	Prompt      string     `gorm:"type:text;not null" json:"prompt"`
	Response    string     `gorm:"type:text" json:"response"`
	Commands    StringList `gorm:"type:text" json:"commands,omitempty"`
	Warnings    StringList `gorm:"type:text" json:"warnings,omitempty"`
	Explanation string     `gorm:"type:text" json:"explanation,omitempty"`
	Confidence  float64    `json:"confidence"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName returns the table name for AssistantQuery.
func (AssistantQuery) TableName() string {
	return "ai_queries"
}

// StringList is a slice of strings stored as a JSON text column.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(value any) error {
	if value == nil {
		*l = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for StringList: %T", value)
	}
	if len(data) == 0 {
		*l = nil
		return nil
	}
	return json.Unmarshal(data, l)
}
