package flagx

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Env overlays environment variables onto config fields. The lookup
// function is injected so tests do not have to touch the process env.
// The first parse failure is kept in Err; later calls become no-ops.
type Env struct {
	lookup func(string) (string, bool)
	Err    error
}

func NewEnv(lookup func(string) (string, bool)) *Env {
	return &Env{lookup: lookup}
}

func (e *Env) value(name string) (string, bool) {
	if e.Err != nil {
		return "", false
	}
	v, ok := e.lookup(name)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// String sets *dst when name is set and non-empty.
func (e *Env) String(name string, dst *string) {
	if v, ok := e.value(name); ok {
		*dst = v
	}
}

// Int sets *dst when name is set to a valid integer.
func (e *Env) Int(name string, dst *int) {
	v, ok := e.value(name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.Err = fmt.Errorf("env %s: %w", name, err)
		return
	}
	*dst = n
}

// List sets *dst to the comma-separated, non-empty items of name.
func (e *Env) List(name string, dst *[]string) {
	v, ok := e.value(name)
	if !ok {
		return
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
}

// Duration sets *dst when name holds a Go duration string ("15m", "7h").
func (e *Env) Duration(name string, dst *time.Duration) {
	v, ok := e.value(name)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.Err = fmt.Errorf("env %s: %w", name, err)
		return
	}
	*dst = d
}
