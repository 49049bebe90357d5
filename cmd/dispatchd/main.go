// Command dispatchd is a scriptable HTTP mock and forwarding server.
package main

import "github.com/dispatchd/dispatchd/pkg/cli"

func main() {
	cli.Execute()
}
