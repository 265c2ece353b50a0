package main

import (
	"ely.by/multilogin/internal/cmd"
)

func main() {
	cmd.Execute()
}
