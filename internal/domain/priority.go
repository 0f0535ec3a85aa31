package domain

import "fmt"

type Visibility int

const (
	Hidden Visibility = iota
	Visible
	Foreground
)

var visibilityNames = map[Visibility]string{
	Hidden:     "hidden",
	Visible:    "visible",
	Foreground: "foreground",
}

func (v Visibility) String() string {
	if s, ok := visibilityNames[v]; ok {
		return s
	}
	return fmt.Sprintf("visibility(%d)", int(v))
}

func ParseVisibility(s string) (Visibility, error) {
	for v, name := range visibilityNames {
		if name == s {
			return v, nil
		}
	}
	return Hidden, fmt.Errorf("unknown visibility %q", s)
}

// Priority is the scheduling class the host assigns to a worker.
type Priority int

const (
	PriorityBackground Priority = iota
	PriorityVisible
	PriorityForeground
)

func (p Priority) String() string {
	switch p {
	case PriorityBackground:
		return "background"
	case PriorityVisible:
		return "visible"
	case PriorityForeground:
		return "foreground"
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// PriorityFor maps a requester visibility onto the worker priority it earns.
func PriorityFor(v Visibility) Priority {
	switch v {
	case Foreground:
		return PriorityForeground
	case Visible:
		return PriorityVisible
	default:
		return PriorityBackground
	}
}
