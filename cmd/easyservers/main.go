package main

import "github.com/payperplay/easyservers/internal/cli"

func main() {
	cli.Main()
}
