// File: internal/resolve/interp.go
// Brief: ${NAME} placeholder interpolation against a variable source.

package resolve

import (
	"regexp"
	"strings"
)

// MergedParamPrefix marks placeholders the resolver leaves untouched:
// ${HSM_MERGED.key} is substituted by the adapter layer from the
// plan's merged value lists.
const MergedParamPrefix = "HSM_MERGED."

var placeholderRe = regexp.MustCompile(`\$\$?\{([A-Za-z_][A-Za-z0-9_.]*)\}`)

// interpolate replaces every ${NAME} in value with the variable
// source's value for NAME. $${NAME} escapes to a literal ${NAME}, and
// ${HSM_MERGED.*} placeholders pass through untouched. The first
// missing variable aborts with UnresolvedVariableError naming the
// owning component.
func interpolate(value, component string, vars VariableSource) (string, error) {
	var firstErr error
	out := placeholderRe.ReplaceAllStringFunc(value, func(match string) string {
		if strings.HasPrefix(match, "$$") {
			return match[1:]
		}
		name := match[2 : len(match)-1]
		if strings.HasPrefix(name, MergedParamPrefix) {
			return match
		}
		if vars != nil {
			if v, ok := vars.Lookup(name); ok {
				return v
			}
		}
		if firstErr == nil {
			firstErr = &UnresolvedVariableError{Variable: name, Component: component}
		}
		return match
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

// SubstituteMerged replaces ${HSM_MERGED.key} placeholders in value
// using lookup, which receives the key without the prefix. Other
// placeholders, already resolved or escaped, pass through. An unknown
// key is an error: merged placeholders only make sense for parameters
// some contributor actually supplied.
func SubstituteMerged(value string, lookup func(key string) (string, bool)) (string, error) {
	var firstErr error
	out := placeholderRe.ReplaceAllStringFunc(value, func(match string) string {
		if strings.HasPrefix(match, "$$") {
			return match
		}
		name := match[2 : len(match)-1]
		if !strings.HasPrefix(name, MergedParamPrefix) {
			return match
		}
		key := strings.TrimPrefix(name, MergedParamPrefix)
		if v, ok := lookup(key); ok {
			return v
		}
		if firstErr == nil {
			firstErr = &UnresolvedVariableError{Variable: name}
		}
		return match
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

// interpolateMap interpolates every value of a map, returning a fresh
// map so the inputs stay untouched.
func interpolateMap(env map[string]string, component string, vars VariableSource) (map[string]string, error) {
	if len(env) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(env))
	for k, v := range env {
		resolved, err := interpolate(v, component, vars)
		if err != nil {
			return nil, err
		}
		out[k] = resolved
	}
	return out, nil
}
