// Package grid is a voxel world of integer positions that serves as the spatial oracle for a rail network.
package grid

import (
	"fmt"
	"strconv"
	"strings"

	"nyiyui.ca/hato/railnet"
)

// Pos is a block position. North is -Z and east is +X.
type Pos struct {
	X, Y, Z int
}

func (p Pos) Offset(h railnet.Heading) Pos {
	switch h {
	case railnet.North:
		p.Z--
	case railnet.South:
		p.Z++
	case railnet.East:
		p.X++
	case railnet.West:
		p.X--
	case railnet.Up:
		p.Y++
	case railnet.Down:
		p.Y--
	}
	return p
}

func (p Pos) Compare(o Pos) int {
	switch {
	case p.X != o.X:
		return cmpInt(p.X, o.X)
	case p.Y != o.Y:
		return cmpInt(p.Y, o.Y)
	default:
		return cmpInt(p.Z, o.Z)
	}
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (p Pos) String() string {
	return fmt.Sprintf("%d,%d,%d", p.X, p.Y, p.Z)
}

func (p Pos) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Pos) UnmarshalText(text []byte) error {
	q, err := ParsePos(string(text))
	if err != nil {
		return err
	}
	*p = q
	return nil
}

// ParsePos parses "x,y,z".
func ParsePos(s string) (Pos, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return Pos{}, fmt.Errorf("position %q: want x,y,z", s)
	}
	var v [3]int
	for i, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return Pos{}, fmt.Errorf("position %q: %w", s, err)
		}
		v[i] = n
	}
	return Pos{v[0], v[1], v[2]}, nil
}

func MustParsePos(s string) Pos {
	p, err := ParsePos(s)
	if err != nil {
		panic(err)
	}
	return p
}
