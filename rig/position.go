// Package rig describes the fixed four-camera vehicle rig: the camera positions, the order every
// per-camera array is indexed by, and which cameras share an overlap.
package rig

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// Position identifies a camera on the rig. Its value is the index into every per-camera array.
type Position int

// The rig positions in canonical order.
const (
	Front Position = iota
	Left
	Rear
	Right
)

// NumCameras is the size of the rig.
const NumCameras = 4

// Positions lists every position in canonical order.
var Positions = [NumCameras]Position{Front, Left, Rear, Right}

var positionNames = [NumCameras]string{"front", "left", "rear", "right"}

func (p Position) String() string {
	if !p.Valid() {
		return "unknown"
	}
	return positionNames[p]
}

// Valid reports whether p is one of the rig positions.
func (p Position) Valid() bool {
	return p >= 0 && int(p) < NumCameras
}

// ParsePosition parses a position name case-insensitively.
func ParsePosition(name string) (Position, error) {
	for i, n := range positionNames {
		if strings.EqualFold(n, name) {
			return Position(i), nil
		}
	}
	return 0, errors.Errorf("unknown camera position %q", name)
}

// MarshalText encodes the position name, which also makes positions usable as JSON map keys.
func (p Position) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, errors.Errorf("invalid camera position %d", int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText decodes a position name.
func (p *Position) UnmarshalText(text []byte) error {
	parsed, err := ParsePosition(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// MarshalJSON encodes the position as its name.
func (p Position) MarshalJSON() ([]byte, error) {
	text, err := p.MarshalText()
	if err != nil {
		return nil, err
	}
	return json.Marshal(string(text))
}

// Pair is two adjacent cameras whose fields of view overlap. A is always the front or rear camera.
type Pair struct {
	A, B Position
}

func (p Pair) String() string {
	return p.A.String() + "-" + p.B.String()
}

// AdjacentPairs lists the four overlapping corners of the rig.
var AdjacentPairs = [4]Pair{
	{Front, Left},
	{Front, Right},
	{Rear, Left},
	{Rear, Right},
}

// Adjacent reports whether a and b share an overlap.
func Adjacent(a, b Position) bool {
	for _, pair := range AdjacentPairs {
		if (pair.A == a && pair.B == b) || (pair.A == b && pair.B == a) {
			return true
		}
	}
	return false
}
