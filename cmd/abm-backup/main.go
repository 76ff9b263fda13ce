package main

import "github.com/ovoronin/audiobook-manager/cmd/abm-backup/cmd"

func main() {
	cmd.Execute()
}
