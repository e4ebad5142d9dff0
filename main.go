package main

import "idprivacy/cli"

func main() {
	cli.Execute()
}
