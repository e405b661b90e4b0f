// Package types defines the typed column model shared by every stage of the
// write path: column data types, typed values, rows and table schemas.
package types

import (
	"fmt"
	"strings"
)

// DataType is the semantic type of a column as reported by the store.
type DataType int

const (
	TypeUnknown DataType = iota
	TypeBool
	TypeChar  // int8
	TypeShort // int16
	TypeInt   // int32
	TypeLong  // int64
	TypeFloat
	TypeDouble
	TypeString
	TypeSymbol
	TypeBlob
	TypeDate
	TypeTimestamp     // millisecond precision
	TypeNanoTimestamp // nanosecond precision
	TypeUUID
)

// ArrayTypeBase is added to an element type to form the array column type
// holding a variable-length list of that element per row.
const ArrayTypeBase DataType = 64

var typeNames = map[DataType]string{
	TypeBool:          "BOOL",
	TypeChar:          "CHAR",
	TypeShort:         "SHORT",
	TypeInt:           "INT",
	TypeLong:          "LONG",
	TypeFloat:         "FLOAT",
	TypeDouble:        "DOUBLE",
	TypeString:        "STRING",
	TypeSymbol:        "SYMBOL",
	TypeBlob:          "BLOB",
	TypeDate:          "DATE",
	TypeTimestamp:     "TIMESTAMP",
	TypeNanoTimestamp: "NANOTIMESTAMP",
	TypeUUID:          "UUID",
}

// IsArray reports whether t is an array column type.
func (t DataType) IsArray() bool {
	return t >= ArrayTypeBase
}

// Elem returns the element type of an array type, or t itself.
func (t DataType) Elem() DataType {
	if t.IsArray() {
		return t - ArrayTypeBase
	}
	return t
}

// ArrayOf returns the array type whose elements are t.
func ArrayOf(t DataType) DataType {
	return t.Elem() + ArrayTypeBase
}

// Valid reports whether t names a known scalar or array type.
func (t DataType) Valid() bool {
	_, ok := typeNames[t.Elem()]
	return ok
}

// IsIntegral reports whether values of t are stored as integers, including
// the temporal types.
func (t DataType) IsIntegral() bool {
	switch t {
	case TypeChar, TypeShort, TypeInt, TypeLong, TypeDate, TypeTimestamp, TypeNanoTimestamp:
		return true
	}
	return false
}

// IsTemporal reports whether t is a date or timestamp type.
func (t DataType) IsTemporal() bool {
	return t == TypeDate || t == TypeTimestamp || t == TypeNanoTimestamp
}

func (t DataType) String() string {
	if t.IsArray() {
		if name, ok := typeNames[t.Elem()]; ok {
			return name + "[]"
		}
	}
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(t))
}

// ParseDataType parses a type name such as "LONG" or "DOUBLE[]".
func ParseDataType(name string) (DataType, error) {
	n := strings.ToUpper(strings.TrimSpace(name))
	array := strings.HasSuffix(n, "[]")
	n = strings.TrimSuffix(n, "[]")
	for t, tn := range typeNames {
		if tn == n {
			if array {
				return ArrayOf(t), nil
			}
			return t, nil
		}
	}
	return TypeUnknown, fmt.Errorf("unknown data type %q", name)
}

// ColumnSchema describes one column of a table.
type ColumnSchema struct {
	Name string   `json:"name" yaml:"name"`
	Type DataType `json:"type" yaml:"type"`
}

// TableSchema is the ordered column list of a table. It is fetched once when
// a writer is built and never mutated afterwards.
type TableSchema struct {
	Columns []ColumnSchema `json:"columns" yaml:"columns"`
}

// Len returns the number of columns.
func (s *TableSchema) Len() int {
	return len(s.Columns)
}

// Index returns the position of the named column, or -1.
func (s *TableSchema) Index(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Names returns the column names in order.
func (s *TableSchema) Names() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Types returns the column types in order.
func (s *TableSchema) Types() []DataType {
	dts := make([]DataType, len(s.Columns))
	for i, c := range s.Columns {
		dts[i] = c.Type
	}
	return dts
}
