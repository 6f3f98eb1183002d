// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/provisio/provisio/cmd/provisio"

func main() {
	cmd.Execute()
}
