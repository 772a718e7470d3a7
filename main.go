// main.go
// Entry point for the troubleflipper command line client.
package main

import "github.com/erilali/troubleflipper/internal/cli"

func main() {
	cli.Execute()
}
