package main

import "github.com/ovoronin/audiobook-manager/cmd/abm-healthcheck/cmd"

func main() {
	cmd.Execute()
}
