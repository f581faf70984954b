package main

import "kindred/internal/app"

func main() {
	app.Run()
}
