package main

import "vodqueue/cmd"

func main() {
	cmd.Execute()
}
