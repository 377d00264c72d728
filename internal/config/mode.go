package config

import (
	"errors"
	"fmt"
)

// Mode selects how many backends run and whether a balancer fronts them
type Mode int

const (
	ModeSingle Mode = iota
	ModeLoadBalanced
)

// ErrInvalidMode is returned for any mode other than the two accepted values
var ErrInvalidMode = errors.New("invalid mode")

// ModeNames lists the accepted command-line values in display order
var ModeNames = []string{"single", "load-balanced"}

// String returns the command-line spelling of the mode
func (m Mode) String() string {
	switch m {
	case ModeSingle:
		return "single"
	case ModeLoadBalanced:
		return "load-balanced"
	default:
		return "unknown"
	}
}

// ParseMode maps a command-line value to a Mode
func ParseMode(s string) (Mode, error) {
	switch s {
	case "single":
		return ModeSingle, nil
	case "load-balanced":
		return ModeLoadBalanced, nil
	default:
		return 0, fmt.Errorf("%w %q (expected single or load-balanced)", ErrInvalidMode, s)
	}
}
