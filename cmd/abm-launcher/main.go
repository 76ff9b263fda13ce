package main

import "github.com/ovoronin/audiobook-manager/cmd/abm-launcher/cmd"

func main() {
	cmd.Execute()
}
