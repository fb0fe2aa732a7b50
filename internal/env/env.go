// Package env composes the environment handed to service processes.
package env

import (
	"os"
	"sort"
	"strings"
)

type Var map[string]string

// Env layers configured variables over an optional OS base.
type Env struct {
	Var   Var  // configured variables (K->V)
	UseOS bool // start from the invoking process environment
	base  Var
}

func New() *Env {
	return &Env{Var: make(Var), UseOS: true}
}

// FromOS caches the current process environment as the base.
func (e *Env) FromOS() {
	e.base = parse(os.Environ())
}

// Set sets a configured variable K=V.
func (e *Env) Set(k, v string) {
	if e.Var == nil {
		e.Var = make(Var)
	}
	e.Var[k] = v
}

// WithSet returns e after setting K=V, for chaining.
func (e *Env) WithSet(k, v string) *Env {
	e.Set(k, v)
	return e
}

// SetAll applies "K=V" pairs; malformed entries are skipped.
func (e *Env) SetAll(kvs []string) {
	for k, v := range parse(kvs) {
		e.Set(k, v)
	}
}

// Merge returns base, then configured, then perService ("K=V") variables,
// later layers winning, with ${VAR} references expanded once against the
// merged set. The result is sorted by key. Without UseOS the base is empty
// except for PATH, which services need to find helper tools.
func (e *Env) Merge(perService []string) []string {
	m := make(Var)
	if e.UseOS {
		if e.base == nil {
			e.FromOS()
		}
		for k, v := range e.base {
			m[k] = v
		}
	} else if p, ok := os.LookupEnv("PATH"); ok {
		m["PATH"] = p
	}
	for k, v := range e.Var {
		if k != "" {
			m[k] = v
		}
	}
	for k, v := range parse(perService) {
		m[k] = v
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+expand(m[k], m))
	}
	return out
}

func parse(kvs []string) Var {
	m := make(Var, len(kvs))
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		m[k] = v
	}
	return m
}

// expand replaces ${NAME} with its value in m; unknown names expand to "".
// Bare $NAME is left alone so values like PHP ini paths survive.
func expand(s string, m Var) string {
	if !strings.Contains(s, "${") {
		return s
	}
	var b strings.Builder
	for {
		i := strings.Index(s, "${")
		if i < 0 {
			b.WriteString(s)
			return b.String()
		}
		j := strings.IndexByte(s[i+2:], '}')
		if j < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:i])
		b.WriteString(m[s[i+2:i+2+j]])
		s = s[i+3+j:]
	}
}
