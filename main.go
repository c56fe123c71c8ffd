package main

import "modelbridge/cmd"

func main() {
	cmd.Execute()
}
