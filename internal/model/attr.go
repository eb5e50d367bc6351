package model

import (
	"bytes"
	"cmp"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Attr is a single typed attribute value, used as an index key.
type Attr interface {
	Kind() AttrKind
	// Compare returns -1, 0 or +1. Attributes of different kinds order by kind.
	Compare(other Attr) int
	// Marshal writes the value into buf, which holds exactly the type length.
	Marshal(buf []byte)
	String() string
}

type IntAttr int32

type FloatAttr float32

// StringAttr is stored zero padded up to the type length.
type StringAttr string

func (a IntAttr) Kind() AttrKind { return KindInt }

func (a IntAttr) Compare(other Attr) int {
	o, ok := other.(IntAttr)
	if !ok {
		return cmp.Compare(a.Kind(), other.Kind())
	}
	return cmp.Compare(a, o)
}

func (a IntAttr) Marshal(buf []byte) {
	marshalInt32(buf, int32(a), 0)
}

func (a IntAttr) String() string {
	return strconv.FormatInt(int64(a), 10)
}

func (a FloatAttr) Kind() AttrKind { return KindFloat }

func (a FloatAttr) Compare(other Attr) int {
	o, ok := other.(FloatAttr)
	if !ok {
		return cmp.Compare(a.Kind(), other.Kind())
	}
	return cmp.Compare(a, o)
}

func (a FloatAttr) Marshal(buf []byte) {
	marshalUint32(buf, math.Float32bits(float32(a)), 0)
}

func (a FloatAttr) String() string {
	return strconv.FormatFloat(float64(a), 'g', -1, 32)
}

func (a StringAttr) Kind() AttrKind { return KindString }

func (a StringAttr) Compare(other Attr) int {
	o, ok := other.(StringAttr)
	if !ok {
		return cmp.Compare(a.Kind(), other.Kind())
	}
	return strings.Compare(string(a), string(o))
}

func (a StringAttr) Marshal(buf []byte) {
	n := copy(buf, a)
	clear(buf[n:])
}

func (a StringAttr) String() string {
	return string(a)
}

// UnmarshalAttr decodes an attribute of type t from its first t.Length bytes.
func UnmarshalAttr(t AttrType, buf []byte) (Attr, error) {
	if uint32(len(buf)) < t.Length {
		return nil, fmt.Errorf("unmarshal %s: buffer of %d bytes is too short", t, len(buf))
	}
	switch t.Kind {
	case KindInt:
		return IntAttr(unmarshalInt32(buf, 0)), nil
	case KindFloat:
		return FloatAttr(math.Float32frombits(unmarshalUint32(buf, 0))), nil
	case KindString:
		return StringAttr(bytes.TrimRight(buf[:t.Length], "\x00")), nil
	default:
		return nil, fmt.Errorf("unmarshal: %w: kind %s", ErrInvalidAttrType, t.Kind)
	}
}

// ParseAttr parses the textual form of an attribute of type t.
func ParseAttr(t AttrType, s string) (Attr, error) {
	var attr Attr
	switch t.Kind {
	case KindInt:
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", t, err)
		}
		attr = IntAttr(n)
	case KindFloat:
		f, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", t, err)
		}
		attr = FloatAttr(f)
	case KindString:
		attr = StringAttr(s)
	default:
		return nil, fmt.Errorf("parse: %w: kind %s", ErrInvalidAttrType, t.Kind)
	}
	if err := t.Check(attr); err != nil {
		return nil, err
	}
	return attr, nil
}
