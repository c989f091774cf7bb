package watchlist

import "strings"

// Sort fields and directions.
const (
	FieldName        = "name"
	FieldPrice       = "price"
	FieldDiff        = "diff"
	FieldDiffPercent = "diffPercent"

	Asc  = "asc"
	Desc = "desc"
)

// DefaultOrder is used when nothing was saved.
const DefaultOrder = "price-desc"

// Order is a parsed "field-direction" string.
type Order struct {
	Field     string
	Direction string
}

// ParseOrder splits s into field and direction. Unknown fields fall back
// to name and anything but "asc" is descending.
func ParseOrder(s string) Order {
	field, dir, _ := strings.Cut(s, "-")
	if !KnownField(field) {
		field = FieldName
	}
	if dir != Asc {
		dir = Desc
	}
	return Order{Field: field, Direction: dir}
}

func (o Order) String() string { return o.Field + "-" + o.Direction }

// Select returns the order after the user picks field: the same field
// flips direction, a new one starts ascending for name and descending
// otherwise.
func (o Order) Select(field string) Order {
	if field == o.Field {
		if o.Direction == Asc {
			return Order{Field: field, Direction: Desc}
		}
		return Order{Field: field, Direction: Asc}
	}
	if field == FieldName {
		return Order{Field: field, Direction: Asc}
	}
	return Order{Field: field, Direction: Desc}
}

// KnownField reports whether f is a sortable field.
func KnownField(f string) bool {
	switch f {
	case FieldName, FieldPrice, FieldDiff, FieldDiffPercent:
		return true
	}
	return false
}
