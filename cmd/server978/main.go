package main

import (
	uat978 "github.com/radiokees/keeshond/src"
)

func main() {
	uat978.ServerMain()
}
