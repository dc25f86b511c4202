//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Validates the shaders and runs the testbed. Set UMBRA_SETTINGS to a TOML
// file to enable hot reload.
func (Run) Engine() error {
	if err := buildShaders(); err != nil {
		return err
	}
	args := []string{"run", "."}
	if path := settingsPath(); path != "" {
		args = append(args, "-settings", path)
	}
	fmt.Println("Run engine...")
	if _, err := executeCmd("go", withArgs(args...), withStream()); err != nil {
		return err
	}
	return nil
}

type Test mg.Namespace

// Runs every package test with the race detector.
func (Test) All() error {
	_, err := executeCmd("go", withArgs("test", "-race", "./..."), withStream())
	return err
}

// Runs the tests that need no GPU or window.
func (Test) Headless() error {
	_, err := executeCmd("go", withArgs("test",
		"./engine/config/...",
		"./engine/containers/...",
		"./engine/core/...",
		"./engine/math/...",
		"./engine/renderer",
		"./engine/renderer/attachments/...",
		"./engine/renderer/binding/...",
		"./engine/renderer/buffers/...",
		"./engine/renderer/components/...",
		"./engine/renderer/gpu/...",
		"./engine/renderer/passes/...",
		"./engine/renderer/shaders/...",
		"./engine/renderer/shadow/...",
		"./engine/renderer/surface/...",
	), withStream())
	return err
}
