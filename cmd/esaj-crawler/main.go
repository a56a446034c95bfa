package main

import (
	"esaj-crawler/cmd/esaj-crawler/commands"
	"esaj-crawler/lib/serviceutil"
)

func main() {
	commands.ExecuteContext(serviceutil.SignalContext())
}
