package main

import (
	"os"

	"lambda-url-crawler/cmd/crawl/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
