package core

import (
	"log"
	"os"
	"strings"
)

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// Getwd returns the working directory, exiting when it can't be determined.
func Getwd() string {
	wd, err := os.Getwd()
	if err != nil {
		log.Fatalf("os.Getwd(): %v", err)
	}
	return wd
}

// StringPtr returns a pointer to a copy of `s`, or nil when `s` is blank.
func StringPtr(s string) *string {
	if s = CleanString(s); s == "" {
		return nil
	}
	return &s
}

// StringVal dereferences `s`, returning "" for nil.
func StringVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
