package main

import "index-checker/cmd"

func main() {
	cmd.Execute()
}
