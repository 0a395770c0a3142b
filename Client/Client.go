package main

import (
	"fmt"
	"os"

	client "queryfabric/Client/app"
	"queryfabric/Common/console"
)

func main() {
	if err := client.Run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s client error: %v\n", console.TagError(), err)
		os.Exit(1)
	}
}
