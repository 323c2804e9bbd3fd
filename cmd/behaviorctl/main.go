package main

import (
	"os"

	"github.com/danmuck/globalbehavior/internal/observability"
)

func main() {
	observability.InitLogger("behaviorctl")
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
