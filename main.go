package main

import "github.com/fulmenhq/tmplcat/cmd"

func main() {
	cmd.Execute()
}
