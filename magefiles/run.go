//go:build mage

package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Runs the bridge against the simulated capture server. CONFIG overrides
// the configuration file.
func (Run) Sim() error {
	mg.Deps(Build.Binary)
	config := os.Getenv("CONFIG")
	if config == "" {
		config = "livelink.toml"
	}
	fmt.Println("Run bridge...")
	if _, err := executeCmd("bin/anima-livelink", withArgs("-config", config), withStream()); err != nil {
		return err
	}
	return nil
}
