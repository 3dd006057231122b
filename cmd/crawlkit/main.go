// Command crawlkit is the CLI entrypoint: crawl, search, feed, index,
// reindex, and stats subcommands live in internal/cli.
package main

import cmd "github.com/corvusreach/crawlkit/internal/cli"

func main() {
	cmd.Execute()
}
