package backup

import (
	"fmt"
	"os"
)

// FatalHandler is invoked for contract violations that the process cannot
// safely continue past (starting an append while one is already open);
// gzip write and flush failures are returned as KindIO errors instead of
// reaching it. It defaults to
// printing to stderr and exiting, but tests may replace it to observe the
// call instead of tearing down the test binary.
var FatalHandler = func(format string, args...any) {
	fmt.Fprintf(os.Stderr, "backup: fatal: "+format+"\n", args...)
	os.Exit(1)
}

func fatalf(format string, args...any) {
	FatalHandler(format, args...)
}
