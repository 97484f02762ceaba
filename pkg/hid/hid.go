package hid

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Delimiter separates levels. A closed id ends with two of them.
const Delimiter = '.'

// MaxLevels bounds the number of levels Decode accepts.
const MaxLevels = 16

// ErrInvalidArgument is returned for a type character equal to the Delimiter
// and for ids that cannot be decoded.
var ErrInvalidArgument = errors.New("hid: invalid argument")

// Builder accumulates the leading levels of an id. The zero value is ready to
// use. A Builder is not safe for concurrent mutation; Build, Prefix and ID do
// not mutate and may be shared once the levels are in place.
type Builder struct {
	buf    []byte
	levels int
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder { return &Builder{buf: make([]byte, 0, 50)} }

// Clone returns an independent copy of b.
func (b *Builder) Clone() *Builder {
	return &Builder{buf: append(make([]byte, 0, len(b.buf)+16), b.buf...), levels: b.levels}
}

// Add appends a level.
func (b *Builder) Add(tag byte, value string) error {
	if err := checkTag(tag); err != nil {
		return err
	}
	b.buf = appendLevel(b.buf, tag, value)
	b.levels++
	return nil
}

// AddInt64 appends a level with an integer value.
func (b *Builder) AddInt64(tag byte, value int64) error {
	return b.Add(tag, strconv.FormatInt(value, 10))
}

// Build returns the closed id made of the current levels plus one more.
// b is left unchanged so it can serve as a base for further ids.
func (b *Builder) Build(tag byte, value string) (string, error) {
	if err := checkTag(tag); err != nil {
		return "", err
	}
	out := make([]byte, 0, len(b.buf)+len(value)+3)
	out = append(out, b.buf...)
	out = appendLevel(out, tag, value)
	out = append(out, Delimiter)
	return string(out), nil
}

// BuildInt64 is Build for an integer value.
func (b *Builder) BuildInt64(tag byte, value int64) (string, error) {
	return b.Build(tag, strconv.FormatInt(value, 10))
}

// Open returns the current levels followed by an unterminated level with a
// partial value. Every id whose next level has that tag and a value
// starting with partial has it as a string prefix.
func (b *Builder) Open(tag byte, partial string) (string, error) {
	if err := checkTag(tag); err != nil {
		return "", err
	}
	out := make([]byte, 0, len(b.buf)+len(partial)+1)
	out = append(out, b.buf...)
	out = append(out, tag)
	return string(append(out, partial...)), nil
}

// Prefix returns the open form of the current levels.
func (b *Builder) Prefix() string { return string(b.buf) }

// ID returns the closed form of the current levels.
func (b *Builder) ID() string { return string(b.buf) + string(Delimiter) }

// Len returns the number of levels added so far.
func (b *Builder) Len() int { return b.levels }

func appendLevel(buf []byte, tag byte, value string) []byte {
	buf = append(buf, tag)
	buf = append(buf, value...)
	return append(buf, Delimiter)
}

func checkTag(tag byte) error {
	if tag == Delimiter {
		return fmt.Errorf("%w: %q cannot be used as a type identifier", ErrInvalidArgument, Delimiter)
	}
	return nil
}

// Level is one decoded (type, value) pair. Value is the raw text.
type Level struct {
	Type  byte
	Value string
}

// Int parses the value as an int.
func (l Level) Int() (int, error) { return strconv.Atoi(l.Value) }

// Int64 parses the value as an int64.
func (l Level) Int64() (int64, error) { return strconv.ParseInt(l.Value, 10, 64) }

// Key is a decoded id.
type Key struct {
	Levels []Level
	// Closed reports whether the id ended with the terminator.
	Closed bool
}

// Len returns the number of levels.
func (k Key) Len() int { return len(k.Levels) }

// Type returns the type character of level i.
func (k Key) Type(i int) byte { return k.Levels[i].Type }

// String returns the raw value of level i.
func (k Key) String(i int) string { return k.Levels[i].Value }

// Int returns the value of level i parsed as an int.
func (k Key) Int(i int) (int, error) { return k.Levels[i].Int() }

// Int64 returns the value of level i parsed as an int64.
func (k Key) Int64(i int) (int64, error) { return k.Levels[i].Int64() }

// Decode splits an id into its levels. An id ending in two delimiters is
// closed and the terminator does not count as a level; any other id is open,
// and a missing trailing delimiter is tolerated.
func Decode(id string) (Key, error) {
	if id == "" {
		return Key{}, fmt.Errorf("%w: empty id", ErrInvalidArgument)
	}
	body := id
	closed := len(id) >= 2 && id[len(id)-1] == Delimiter && id[len(id)-2] == Delimiter
	if closed {
		body = id[:len(id)-1]
	} else if id[len(id)-1] != Delimiter {
		body = id + string(Delimiter)
	}

	levels := make([]Level, 0, strings.Count(body, string(Delimiter)))
	start := 0
	for i := 0; i < len(body); i++ {
		if body[i] != Delimiter {
			continue
		}
		if i == start {
			return Key{}, fmt.Errorf("%w: empty level at offset %d in %q", ErrInvalidArgument, i, id)
		}
		if len(levels) == MaxLevels {
			return Key{}, fmt.Errorf("%w: more than %d levels", ErrInvalidArgument, MaxLevels)
		}
		levels = append(levels, Level{Type: body[start], Value: body[start+1 : i]})
		start = i + 1
	}
	return Key{Levels: levels, Closed: closed}, nil
}
