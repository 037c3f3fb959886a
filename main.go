package main

import "github.com/KaramelBytes/insighto/cmd"

func main() {
	cmd.Execute()
}
