// Command loadtest drives a running chat server over HTTP.
//
//   - chat:    users log in, send messages and poll; reports send-to-seen latency
//   - contend: many clients race to log in with one name; exactly one must win
//
// Usage:
//
//	loadtest <command> [options]
package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "chat":
		os.Exit(runChat(os.Args[2:]))
	case "contend":
		os.Exit(runContend(os.Args[2:]))
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: loadtest <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  chat        N users log in, send messages and poll the room")
	fmt.Println("  contend     N clients log in with the same name at once")
	fmt.Println()
	fmt.Println("Run 'loadtest <command> -h' for command-specific options.")
}
