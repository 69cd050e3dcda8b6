package main

import "github.com/NVIDIA/unithost/pkg/cli"

func main() {
	cli.Execute()
}
