package workbook

import (
	"fmt"
	"strconv"
	"time"
)

// Kind is the native type of a cell value.
type Kind uint8

const (
	Null Kind = iota
	String
	Number
	Bool
	DateTime
	TimeOfDay
	Duration
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case String:
		return "string"
	case Number:
		return "number"
	case Bool:
		return "bool"
	case DateTime:
		return "datetime"
	case TimeOfDay:
		return "time"
	case Duration:
		return "duration"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Cell is a typed cell value. Value holds nil, string, float64, bool,
// time.Time (DateTime and TimeOfDay) or time.Duration depending on Kind.
type Cell struct {
	Kind  Kind
	Value any
}

// IsNull reports whether the cell holds no value.
func (c Cell) IsNull() bool { return c.Kind == Null }

// Native returns the value as a plain Go value for classification.
func (c Cell) Native() any { return c.Value }

// Serialize returns a JSON-ready representation: dates become
// "YYYY-MM-DD HH:MM", times of day and durations "HH:MM:SS".
func (c Cell) Serialize() any {
	switch c.Kind {
	case Null:
		return nil
	case DateTime:
		return c.Value.(time.Time).Format("2006-01-02 15:04")
	case TimeOfDay:
		return c.Value.(time.Time).Format("15:04:05")
	case Duration:
		return FormatDuration(c.Value.(time.Duration))
	}
	return c.Value
}

// String renders the value as text, as shown in sample values and headers.
func (c Cell) String() string {
	switch c.Kind {
	case Null:
		return ""
	case String:
		return c.Value.(string)
	case Number:
		return strconv.FormatFloat(c.Value.(float64), 'f', -1, 64)
	case Bool:
		if c.Value.(bool) {
			return "True"
		}
		return "False"
	case DateTime:
		return c.Value.(time.Time).Format("2006-01-02 15:04:05")
	case TimeOfDay:
		return c.Value.(time.Time).Format("15:04:05")
	case Duration:
		return FormatDuration(c.Value.(time.Duration))
	}
	return fmt.Sprint(c.Value)
}

// FormatDuration formats d as HH:MM:SS from its whole seconds. Hours are not
// wrapped at 24.
func FormatDuration(d time.Duration) string {
	total := int64(d / time.Second)
	sign := ""
	if total < 0 {
		sign = "-"
		total = -total
	}
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%s%02d:%02d:%02d", sign, h, m, s)
}
