package main

import "ozon-price-tracker/internal/cli"

func main() {
	cli.Execute()
}
