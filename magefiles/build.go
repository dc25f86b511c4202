//go:build mage

package main

import (
	"errors"
	"fmt"

	"github.com/magefile/mage/mg"

	"github.com/spaghettifunk/umbra/engine/renderer/shaders"
)

type Build mg.Namespace

// Compiles every embedded WGSL program to SPIR-V and reports the failures.
func (Build) Shaders() error {
	return buildShaders()
}

// Builds the testbed binary into bin/.
func (Build) Engine() error {
	mg.Deps(Build.Shaders)
	_, err := executeCmd("go", withArgs("build", "-o", "bin/umbra", "."), withStream())
	return err
}

func buildShaders() error {
	var errs []error
	for _, name := range shaders.Names() {
		source, err := shaders.Source(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		words, err := shaders.Compile(name, source)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		fmt.Printf("%-10s %6d words\n", name, len(words))
	}
	return errors.Join(errs...)
}
