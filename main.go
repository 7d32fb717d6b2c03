package main

import "github.com/notargets/gombd/cmd"

func main() {
	cmd.Execute()
}
