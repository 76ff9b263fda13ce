package main

import "github.com/ovoronin/audiobook-manager/cmd/abm-server/cmd"

func main() {
	cmd.Execute()
}
