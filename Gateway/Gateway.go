package main

import (
	"fmt"
	"os"

	"queryfabric/Common/console"
	gateway "queryfabric/Gateway/app"
)

func main() {
	if err := gateway.Run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s gateway error: %v\n", console.TagError(), err)
		os.Exit(1)
	}
}
