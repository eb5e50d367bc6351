// Package model holds the value types shared by the index and the record store.
package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type AttrKind uint32

const (
	KindInt AttrKind = iota + 1
	KindFloat
	KindString
)

const MaxStringLength = 255

var (
	ErrInvalidAttrType  = errors.New("invalid attribute type")
	ErrAttrTypeMismatch = errors.New("attribute type mismatch")
	ErrInvalidAttr      = errors.New("invalid attribute value")
)

func (k AttrKind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(k))
	}
}

// AttrType is the kind of an attribute plus its fixed byte length.
type AttrType struct {
	Kind   AttrKind
	Length uint32
}

func IntType() AttrType {
	return AttrType{Kind: KindInt, Length: 4}
}

func FloatType() AttrType {
	return AttrType{Kind: KindFloat, Length: 4}
}

func StringType(length uint32) AttrType {
	return AttrType{Kind: KindString, Length: length}
}

// ParseAttrType parses "int", "float" or "string:N".
func ParseAttrType(s string) (AttrType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case s == "int":
		return IntType(), nil
	case s == "float":
		return FloatType(), nil
	case strings.HasPrefix(s, "string:"):
		n, err := strconv.ParseUint(strings.TrimPrefix(s, "string:"), 10, 32)
		if err != nil {
			return AttrType{}, fmt.Errorf("%w: %q: %w", ErrInvalidAttrType, s, err)
		}
		t := StringType(uint32(n))
		return t, t.Validate()
	default:
		return AttrType{}, fmt.Errorf("%w: %q", ErrInvalidAttrType, s)
	}
}

func (t AttrType) Validate() error {
	switch t.Kind {
	case KindInt, KindFloat:
		if t.Length != 4 {
			return fmt.Errorf("%w: %s of length %d", ErrInvalidAttrType, t.Kind, t.Length)
		}
	case KindString:
		if t.Length == 0 || t.Length > MaxStringLength {
			return fmt.Errorf("%w: string length must be between 1 and %d, got %d", ErrInvalidAttrType, MaxStringLength, t.Length)
		}
	default:
		return fmt.Errorf("%w: kind %s", ErrInvalidAttrType, t.Kind)
	}
	return nil
}

// Check verifies the attribute can be stored under this type.
func (t AttrType) Check(attr Attr) error {
	if attr == nil {
		return fmt.Errorf("%w: nil attribute", ErrAttrTypeMismatch)
	}
	if attr.Kind() != t.Kind {
		return fmt.Errorf("%w: expected %s, got %s", ErrAttrTypeMismatch, t, attr.Kind())
	}
	s, ok := attr.(StringAttr)
	if !ok {
		return nil
	}
	if uint32(len(s)) > t.Length {
		return fmt.Errorf("%w: string of %d bytes does not fit %s", ErrAttrTypeMismatch, len(s), t)
	}
	// NUL is the padding byte, a string holding one would not read back the same
	if strings.IndexByte(string(s), 0) >= 0 {
		return fmt.Errorf("%w: string %q contains a NUL byte", ErrInvalidAttr, string(s))
	}
	return nil
}

func (t AttrType) String() string {
	if t.Kind == KindString {
		return fmt.Sprintf("string(%d)", t.Length)
	}
	return t.Kind.String()
}
