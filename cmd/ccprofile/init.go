package main

import (
	"fmt"
)

// runInit implements the `ccprofile init` subcommand. Automatic settings.json
// editing is out of scope (spec's Non-goals), so this only prints the
// stanza a user should paste into their own settings file, plus the shell
// alias line to route their usual invocation through `ccprofile exec`.
func runInit(args []string) error {
	fmt.Println(`Add the following to your hook settings (e.g. ~/.claude/settings.json),
under each event you want traced:

  {
    "hooks": {
      "PreToolUse": [{"hooks": [{"type": "command", "command": "ccprofile hook"}]}],
      "PostToolUse": [{"hooks": [{"type": "command", "command": "ccprofile hook"}]}],
      "Stop": [{"hooks": [{"type": "command", "command": "ccprofile hook"}]}]
    }
  }

Then add this alias to your shell profile so your usual invocation is
traced automatically:

  alias claude="ccprofile exec"

ccprofile does not edit either file for you; copy the stanza above by hand.`)
	return nil
}
