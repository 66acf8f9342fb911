// Package api describes outbound API invocations: method calls with
// ordered parameter maps, and raw upload calls.
package api

import (
	"strconv"
	"strings"
)

// Param is a single request parameter. Params keep the order in which
// they were added.
type Param struct {
	Key   string
	Value string
}

// MethodCall is an immutable description of one API method invocation.
// Build one with NewCall.
type MethodCall struct {
	method         string
	version        string
	retries        int
	params         []Param
	index          map[string]int
	skipValidation bool
	allowNoAuth    bool
	anonymous      bool
	ignoredErrors  []int
}

// Method returns the API method name, e.g. "users.get".
func (c *MethodCall) Method() string { return c.method }

// Version returns the requested API version. Empty means "use the
// manager's configured version".
func (c *MethodCall) Version() string { return c.version }

// Retries returns the retry budget: attempts beyond the first one.
func (c *MethodCall) Retries() int { return c.retries }

// SkipValidation reports whether interactive challenge handling is
// disabled for this call.
func (c *MethodCall) SkipValidation() bool { return c.skipValidation }

// AllowNoAuth reports whether the call may go out without an access token.
func (c *MethodCall) AllowNoAuth() bool { return c.allowNoAuth }

// Anonymous reports whether the call must not carry an access token.
func (c *MethodCall) Anonymous() bool { return c.anonymous }

// IgnoredExecuteErrors returns the execute error codes the caller
// chose to tolerate in batched responses.
func (c *MethodCall) IgnoredExecuteErrors() []int {
	out := make([]int, len(c.ignoredErrors))
	copy(out, c.ignoredErrors)
	return out
}

// Params returns the parameters in insertion order.
func (c *MethodCall) Params() []Param {
	out := make([]Param, len(c.params))
	copy(out, c.params)
	return out
}

// Param returns the value for key and whether it is present.
func (c *MethodCall) Param(key string) (string, bool) {
	i, ok := c.index[key]
	if !ok {
		return "", false
	}
	return c.params[i].Value, true
}

// CallBuilder accumulates parameters for a MethodCall. Zero values are
// never sent: a zero int, zero float, empty string, false bool or empty
// slice leaves the parameter out entirely.
type CallBuilder struct {
	call MethodCall
}

// NewCall starts building a call to the given method.
func NewCall(method string) *CallBuilder {
	return &CallBuilder{call: MethodCall{
		method: method,
		index:  make(map[string]int),
	}}
}

func (b *CallBuilder) put(key, value string) {
	if i, ok := b.call.index[key]; ok {
		// Same key keeps its original position.
		b.call.params[i].Value = value
		return
	}
	b.call.index[key] = len(b.call.params)
	b.call.params = append(b.call.params, Param{Key: key, Value: value})
}

// Str adds a string parameter unless the value is empty.
func (b *CallBuilder) Str(key, value string) *CallBuilder {
	if value != "" {
		b.put(key, value)
	}
	return b
}

// Int adds an integer parameter unless the value is zero.
func (b *CallBuilder) Int(key string, value int) *CallBuilder {
	if value != 0 {
		b.put(key, strconv.Itoa(value))
	}
	return b
}

// Int64 adds a 64-bit integer parameter unless the value is zero.
func (b *CallBuilder) Int64(key string, value int64) *CallBuilder {
	if value != 0 {
		b.put(key, strconv.FormatInt(value, 10))
	}
	return b
}

// Float adds a float parameter unless the value is zero.
func (b *CallBuilder) Float(key string, value float64) *CallBuilder {
	if value != 0 {
		b.put(key, strconv.FormatFloat(value, 'f', -1, 64))
	}
	return b
}

// Bool adds a boolean parameter as "1" unless the value is false.
func (b *CallBuilder) Bool(key string, value bool) *CallBuilder {
	if value {
		b.put(key, "1")
	}
	return b
}

// Ints adds an integer list parameter, comma-joined in source order,
// unless the list is empty.
func (b *CallBuilder) Ints(key string, values []int) *CallBuilder {
	if len(values) == 0 {
		return b
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	b.put(key, strings.Join(parts, ","))
	return b
}

// Strs adds a string list parameter, comma-joined in source order,
// unless the list is empty.
func (b *CallBuilder) Strs(key string, values []string) *CallBuilder {
	if len(values) == 0 {
		return b
	}
	b.put(key, strings.Join(values, ","))
	return b
}

// Version overrides the API version for this call.
func (b *CallBuilder) Version(v string) *CallBuilder {
	b.call.version = v
	return b
}

// Retries sets the retry budget. Negative budgets clamp to zero.
func (b *CallBuilder) Retries(n int) *CallBuilder {
	if n < 0 {
		n = 0
	}
	b.call.retries = n
	return b
}

// SkipValidation disables interactive challenge handling for this call.
func (b *CallBuilder) SkipValidation() *CallBuilder {
	b.call.skipValidation = true
	return b
}

// AllowNoAuth lets the call go out without an access token configured.
func (b *CallBuilder) AllowNoAuth() *CallBuilder {
	b.call.allowNoAuth = true
	return b
}

// Anonymous strips the access token from the call.
func (b *CallBuilder) Anonymous() *CallBuilder {
	b.call.anonymous = true
	return b
}

// IgnoreExecuteErrors marks execute error codes that should not fail a
// batched response.
func (b *CallBuilder) IgnoreExecuteErrors(codes ...int) *CallBuilder {
	b.call.ignoredErrors = append(b.call.ignoredErrors, codes...)
	return b
}

// Build seals the descriptor. The builder must not be reused afterwards.
func (b *CallBuilder) Build() *MethodCall {
	c := b.call
	return &c
}
