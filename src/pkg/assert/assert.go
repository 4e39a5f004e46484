package assert

import (
	"fmt"
	"path/filepath"
	"runtime"
)

// Assert panics with the formatted message when the condition is false.
// The first optional argument is a format string, the rest are its operands.
func Assert(condition bool, args ...any) bool {
	if condition {
		return true
	}

	_, file, line, ok := runtime.Caller(1)
	if !ok {
		file = "unknown"
		line = 0
	}

	filename := filepath.Base(file)

	if len(args) > 0 {
		format := args[0].(string)
		message := fmt.Sprintf(format, args[1:]...)
		panic(fmt.Sprintf(
			"Assertion failed: %s at %s:%d\n",
			message,
			filename,
			line,
		))
	}

	panic(fmt.Sprintf("Assertion failed at %s:%d\n", filename, line))
}

// NoError treats err as fatal. Used on paths where a failed forced write
// leaves no consistent state to fall back to.
func NoError(err error) {
	Assert(err == nil, "expected no error, got: %v", err)
}

// NoErrorf is NoError with context. The error is appended to args.
func NoErrorf(err error, format string, args ...any) {
	if err == nil {
		return
	}

	Assert(false, append([]any{format + ": %v"}, append(args, err)...)...)
}
