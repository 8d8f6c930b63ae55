package main

import "halcyon-cms/cmd"

func main() {
	cmd.Execute()
}
