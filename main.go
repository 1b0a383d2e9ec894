package main

import (
	"Bt1QLooper/cmd"
	"Bt1QLooper/logger"
)

func main() {
	defer logger.Sync()
	cmd.Execute()
	// If Execute() had a problem, Cobra would have called os.Exit.
	// If we reach here, the command completed successfully (or a
	// long-running server started without error during setup).
}
