package main

import (
	"fmt"
	"os"

	"queryfabric/Common/console"
	leader "queryfabric/TeamLeader/app"
)

func main() {
	if err := leader.Run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s team leader error: %v\n", console.TagError(), err)
		os.Exit(1)
	}
}
