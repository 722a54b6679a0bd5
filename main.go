package main

import "prsheet/cmd"

func main() {
	cmd.Execute()
}
