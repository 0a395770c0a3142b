package main

import (
	"fmt"
	"os"

	"queryfabric/Common/console"
	worker "queryfabric/Worker/app"
)

func main() {
	if err := worker.Run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s worker error: %v\n", console.TagError(), err)
		os.Exit(1)
	}
}
