package main

import (
	"os"

	"github.com/Harshal1803/Raspberry-NAS-Server/cmd/nasctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
