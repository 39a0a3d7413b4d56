package main

import (
	"log"

	"github.com/markethub/markethub/cmd/markethubctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
