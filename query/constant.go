package query

import (
	"cmp"
	"strconv"
	"strings"
)

// Constant is a value stored in a field: either an integer or a string.
// Constants are comparable with == and can be used as map keys.
type Constant struct {
	ival     int32
	sval     string
	isString bool
}

func NewIntConstant(v int32) Constant {
	return Constant{ival: v}
}

func NewStringConstant(s string) Constant {
	return Constant{sval: s, isString: true}
}

func (c Constant) IsString() bool {
	return c.isString
}

func (c Constant) AsInt() int32 {
	return c.ival
}

func (c Constant) AsString() string {
	return c.sval
}

// Compare orders integers before strings, then by value.
func (c Constant) Compare(other Constant) int {
	if c.isString != other.isString {
		if c.isString {
			return 1
		}
		return -1
	}
	if c.isString {
		return cmp.Compare(c.sval, other.sval)
	}
	return cmp.Compare(c.ival, other.ival)
}

func (c Constant) String() string {
	if c.isString {
		return "'" + strings.ReplaceAll(c.sval, "'", "''") + "'"
	}
	return strconv.Itoa(int(c.ival))
}
