package main

import (
	"digiget/cmd/digiget/commands"
	"digiget/lib/osutil"
)

func main() {
	commands.ExecuteContext(osutil.SignalContext())
}
