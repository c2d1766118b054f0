package main

import "github.com/sstent/gcexport/cmd"

func main() {
	cmd.Execute()
}
