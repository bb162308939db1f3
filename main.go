package main

import "github.com/NamanBalaji/mtdl/cmd"

func main() {
	cmd.Execute()
}
