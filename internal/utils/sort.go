package utils

import (
	"sort"
	"strings"
)

// NaturalSort orders strings so that digit runs compare by value and
// everything else compares case-insensitively: img2.jpg < img10.jpg
func NaturalSort(s []string) {
	sort.SliceStable(s, func(i, j int) bool {
		return NaturalLess(s[i], s[j])
	})
}

// NaturalLess compares two strings chunk by chunk
func NaturalLess(a, b string) bool {
	ca, cb := chunks(a), chunks(b)
	for i := 0; i < len(ca) && i < len(cb); i++ {
		x, y := ca[i], cb[i]
		xd, yd := isDigits(x), isDigits(y)
		switch {
		case xd && yd:
			if c := compareNumeric(x, y); c != 0 {
				return c < 0
			}
		case xd != yd:
			// numbers sort before text at the same position
			return xd
		default:
			lx, ly := strings.ToLower(x), strings.ToLower(y)
			if lx != ly {
				return lx < ly
			}
		}
	}
	return len(ca) < len(cb)
}

func chunks(s string) []string {
	var out []string
	start := 0
	for i := 1; i < len(s); i++ {
		// digits are ASCII so a split here never cuts a multi-byte rune
		if isDigit(s[i-1]) != isDigit(s[i]) {
			out = append(out, s[start:i])
			start = i
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return true
}

// compareNumeric compares digit strings of any length without overflow
func compareNumeric(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}
