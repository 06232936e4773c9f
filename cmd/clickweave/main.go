// Command clickweave runs a Clickweave workflow against an MCP server.
package main

func main() {
	Execute()
}
