package model

import (
	"fmt"
	"strings"
)

// Division is the school division a schedule belongs to.
type Division string

const (
	DivisionLower  Division = "lower"
	DivisionMiddle Division = "middle"
	DivisionUpper  Division = "upper"
)

// ParseDivision accepts the division names case-insensitively, plus the
// common "US"/"MS"/"LS" abbreviations.
func ParseDivision(s string) (Division, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "lower", "ls":
		return DivisionLower, nil
	case "middle", "ms":
		return DivisionMiddle, nil
	case "upper", "us":
		return DivisionUpper, nil
	default:
		return "", fmt.Errorf("unknown division %q", s)
	}
}

func (d Division) String() string { return string(d) }
