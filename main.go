package main

import "github.com/dderg/invidious-downloader-sub001/cmd"

func main() {
	cmd.Execute()
}
