package config

import (
	"math"
	"strconv"
	"strings"
	"sync"
)

// Section is one [name] block. Every option read through a getter, or
// defaulted by a fallback, is marked as used so CheckUnusedOptions can
// report typos.
type Section struct {
	name    string
	options map[string]string

	mu   sync.Mutex
	used map[string]bool
}

func newSection(name string, options map[string]string) *Section {
	opts := make(map[string]string, len(options))
	for k, v := range options {
		opts[strings.ToLower(k)] = v
	}
	return &Section{name: name, options: opts, used: make(map[string]bool)}
}

// GetUnusedOptions returns the options no getter asked for.
func (s *Section) GetUnusedOptions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []string
	for opt := range s.options {
		if !s.used[opt] {
			result = append(result, opt)
		}
	}
	return result
}

// lookup resolves option through conv, falling back to the first element of
// fallback when the option is absent. kind names the expected type in
// conversion errors.
func lookup[T any](s *Section, option, kind string, fallback []T, conv func(string) (T, bool)) (T, error) {
	var zero T
	key := strings.ToLower(option)

	s.mu.Lock()
	raw, ok := s.options[key]
	if ok || len(fallback) > 0 {
		s.used[key] = true
	}
	s.mu.Unlock()

	switch {
	case ok:
		v, valid := conv(strings.TrimSpace(raw))
		if !valid {
			return zero, ErrInvalidValue(s.name, option, raw, kind)
		}
		return v, nil
	case len(fallback) > 0:
		return fallback[0], nil
	}
	return zero, ErrMissingOption(s.name, option)
}

// Get returns the option as a string.
func (s *Section) Get(option string, fallback ...string) (string, error) {
	return lookup(s, option, "string", fallback, func(v string) (string, bool) {
		return v, true
	})
}

// GetInt returns the option as an int.
func (s *Section) GetInt(option string, fallback ...int) (int, error) {
	return lookup(s, option, "integer", fallback, func(v string) (int, bool) {
		i, err := strconv.Atoi(v)
		return i, err == nil
	})
}

// GetIntWithBounds is GetInt with an inclusive range check. Nil bounds are
// open.
func (s *Section) GetIntWithBounds(option string, minVal, maxVal *int, fallback ...int) (int, error) {
	v, err := s.GetInt(option, fallback...)
	if err != nil {
		return 0, err
	}
	if minVal != nil && v < *minVal {
		return 0, ErrOutOfRange(s.name, option, float64(v), "must have minimum of "+strconv.Itoa(*minVal))
	}
	if maxVal != nil && v > *maxVal {
		return 0, ErrOutOfRange(s.name, option, float64(v), "must have maximum of "+strconv.Itoa(*maxVal))
	}
	return v, nil
}

// GetFloat returns the option as a finite float64.
func (s *Section) GetFloat(option string, fallback ...float64) (float64, error) {
	return lookup(s, option, "float", fallback, func(v string) (float64, bool) {
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
	})
}

// FloatBounds specifies bounds for GetFloatWithBounds.
type FloatBounds struct {
	MinVal *float64 // >=
	MaxVal *float64 // <=
	Above  *float64 // >
	Below  *float64 // <
}

// GetFloatWithBounds is GetFloat with a range check.
func (s *Section) GetFloatWithBounds(option string, bounds FloatBounds, fallback ...float64) (float64, error) {
	v, err := s.GetFloat(option, fallback...)
	if err != nil {
		return 0, err
	}
	fmtf := func(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
	switch {
	case bounds.MinVal != nil && v < *bounds.MinVal:
		return 0, ErrOutOfRange(s.name, option, v, "must have minimum of "+fmtf(*bounds.MinVal))
	case bounds.MaxVal != nil && v > *bounds.MaxVal:
		return 0, ErrOutOfRange(s.name, option, v, "must have maximum of "+fmtf(*bounds.MaxVal))
	case bounds.Above != nil && v <= *bounds.Above:
		return 0, ErrOutOfRange(s.name, option, v, "must be above "+fmtf(*bounds.Above))
	case bounds.Below != nil && v >= *bounds.Below:
		return 0, ErrOutOfRange(s.name, option, v, "must be below "+fmtf(*bounds.Below))
	}
	return v, nil
}

// GetBool accepts 1/true/yes/on and 0/false/no/off.
func (s *Section) GetBool(option string, fallback ...bool) (bool, error) {
	return lookup(s, option, "boolean (true/false/yes/no/on/off/1/0)", fallback, func(v string) (bool, bool) {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			return true, true
		case "0", "false", "no", "off":
			return false, true
		}
		return false, false
	})
}

// GetChoice returns the option matched case-insensitively against choices,
// spelled as in choices.
func (s *Section) GetChoice(option string, choices []string, fallback ...string) (string, error) {
	v, err := s.Get(option, fallback...)
	if err != nil {
		return "", err
	}
	for _, c := range choices {
		if strings.EqualFold(v, c) {
			return c, nil
		}
	}
	return "", ErrInvalidChoice(s.name, option, v, choices)
}
