// Package assert panics on programmer errors, never use it for runtime
// conditions.
package assert

import "fmt"

func NotNil(value any) {
	if value == nil {
		panic("expected value to be not nil")
	}
}

func NotEmptyStr(str string) {
	if str == "" {
		panic("expected string to be non-empty")
	}
}

func NoError(err error) {
	if err != nil {
		panic(fmt.Sprintf("expected no error, got: %v", err))
	}
}
