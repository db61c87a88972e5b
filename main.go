package main

import "github.com/CosmoTheDev/vtyscan-agent/cmd"

func main() {
	cmd.Execute()
}
