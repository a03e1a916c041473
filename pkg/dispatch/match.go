package dispatch

import "strings"

// Separator divides channel name segments.
const Separator = ":"

// Match reports whether a channel name matches a subscription pattern.
//
// Rules:
//   - pattern segments match name segments position by position
//   - a "*" segment matches any single name segment
//   - a trailing "**" segment matches one or more remaining segments
//   - anything else must match exactly
//
// So "metrics:*" matches "metrics:cpu" but not "metrics:cpu:core0",
// while "metrics:**" matches both.
func Match(pattern, channel string) bool {
	if pattern == "" || channel == "" {
		return false
	}
	if pattern == channel {
		return true
	}

	pSegs := strings.Split(pattern, Separator)
	cSegs := strings.Split(channel, Separator)

	last := len(pSegs) - 1
	if pSegs[last] == "**" {
		if len(cSegs) <= last {
			return false
		}
		return segmentsMatch(pSegs[:last], cSegs[:last])
	}

	if len(pSegs) != len(cSegs) {
		return false
	}
	return segmentsMatch(pSegs, cSegs)
}

func segmentsMatch(pSegs, cSegs []string) bool {
	for i, p := range pSegs {
		if p == "*" {
			continue
		}
		if p != cSegs[i] {
			return false
		}
	}
	return true
}
