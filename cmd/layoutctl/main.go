package main

import (
	"os"

	"github.com/goliatone/go-layout/internal/ctl"
)

func main() {
	if err := ctl.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
