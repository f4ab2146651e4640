package factory

import (
	"fmt"
	"strings"
)

// Backend describes the capabilities of the memory backend buffers are made for.
type Backend struct {
	Name string
	// HalfPrecision reports native float16 support. Without it, creating Half
	// buffers from data fails instead of silently downcasting.
	HalfPrecision bool
}

// Known backends.
var (
	CPU  = Backend{Name: "cpu"}
	CUDA = Backend{Name: "cuda", HalfPrecision: true}
)

// Backends lists the known backends.
var Backends = []Backend{CPU, CUDA}

// ParseBackend returns the known backend with the given name.
func ParseBackend(name string) (Backend, error) {
	for _, b := range Backends {
		if strings.EqualFold(b.Name, strings.TrimSpace(name)) {
			return b, nil
		}
	}
	return Backend{}, fmt.Errorf("unknown backend %q", name)
}
