package main

import "github.com/AzielCF/az-bookings/cmd"

func main() {
	cmd.Execute()
}
