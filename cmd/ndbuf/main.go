// Package main provides the ndbuf command line tool.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/born-ml/ndbuf/internal/envconfig"
	"github.com/born-ml/ndbuf/internal/logutil"
)

func main() {
	slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel()))

	if err := NewCLI().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
