package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Values represents the ordered serialized values of an event, stored as JSON
// in the database. It implements the sql.Scanner and driver.Valuer interfaces
// to handle database serialization.
type Values []any

// Scan implements the sql.Scanner interface, allowing Values to be read from the database.
func (v *Values) Scan(value interface{}) error {
	if value == nil {
		*v = make(Values, 0)
		return nil
	}

	switch raw := value.(type) {
	case []byte:
		json.Unmarshal(raw, &v)
		return nil
	case string:
		json.Unmarshal([]byte(raw), &v)
		return nil
	default:
		return fmt.Errorf("unsupported type %T", raw)
	}
}

// Value implements the driver.Valuer interface, allowing Values to be written to the database.
func (v Values) Value() (driver.Value, error) {
	if len(v) == 0 {
		return "[]", nil
	}
	return json.Marshal(v)
}
