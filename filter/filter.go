// Package filter matches names against allow and ignore lists. An expression wrapped in slashes
// (e.g. "/^kafka-web-ui-.*/") is a regular expression, anything else is matched literally.
package filter

import (
	"fmt"
	"regexp"
	"strings"
)

type Filter struct {
	allowed []*regexp.Regexp
	ignored []*regexp.Regexp
}

// New compiles the given expressions. Ignored expressions take precedence over allowed ones.
func New(allowed []string, ignored []string) (*Filter, error) {
	allowedExpr, err := compileRegexes(allowed)
	if err != nil {
		return nil, fmt.Errorf("failed to compile allowed expressions: %w", err)
	}
	ignoredExpr, err := compileRegexes(ignored)
	if err != nil {
		return nil, fmt.Errorf("failed to compile ignored expressions: %w", err)
	}
	return &Filter{allowed: allowedExpr, ignored: ignoredExpr}, nil
}

// MustNew is like New but panics if an expression does not compile.
func MustNew(allowed []string, ignored []string) *Filter {
	f, err := New(allowed, ignored)
	if err != nil {
		panic(err)
	}
	return f
}

// Validate checks that all expressions compile.
func Validate(expressions []string) error {
	_, err := compileRegexes(expressions)
	return err
}

func (f *Filter) IsAllowed(name string) bool {
	isAllowed := false
	for _, regex := range f.allowed {
		if regex.MatchString(name) {
			isAllowed = true
			break
		}
	}

	for _, regex := range f.ignored {
		if regex.MatchString(name) {
			isAllowed = false
			break
		}
	}
	return isAllowed
}

func compileRegex(expr string) (*regexp.Regexp, error) {
	if len(expr) > 1 && strings.HasPrefix(expr, "/") && strings.HasSuffix(expr, "/") {
		substr := expr[1 : len(expr)-1]
		regex, err := regexp.Compile(substr)
		if err != nil {
			return nil, err
		}

		return regex, nil
	}

	// Without slashes the input is a literal name
	return regexp.Compile("^" + regexp.QuoteMeta(expr) + "$")
}

func compileRegexes(expr []string) ([]*regexp.Regexp, error) {
	compiledExpressions := make([]*regexp.Regexp, len(expr))
	for i, exprStr := range expr {
		expr, err := compileRegex(exprStr)
		if err != nil {
			return nil, fmt.Errorf("failed to compile expression string '%v': %w", exprStr, err)
		}
		compiledExpressions[i] = expr
	}

	return compiledExpressions, nil
}
