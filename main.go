// The main package for the recipe-archiver executable.
package main

import (
	"github.com/pantrylab/recipe-archiver/cmd"
)

func main() {
	cmd.Execute()
}
