package main

import "github.com/evanrusso/gmailvault/internal/cli"

func main() {
	cli.Execute()
}
