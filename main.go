package main

import (
	"fmt"
	"os"

	"github.com/putto11262002/roomsync/app"
)

func main() {
	a, err := app.New(nil, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	a.Start()
}
