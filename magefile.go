//go:build mage
// +build mage

package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

var (
	binDir  = "bin"
	tmpDir  = "tmp"
	appName = "esim-payments"
)

var Default = Dev

func Dev() error {
	mg.Deps(Tidy)

	if _, err := exec.LookPath("air"); err == nil {
		fmt.Println("Starting hot-reload with air ...")
		return sh.RunV("air")
	}

	fmt.Println("air not found. Falling back to `go run ./cmd/web`.")
	fmt.Println("Install with: mage Tools")
	return Run()
}

func Run() error {
	fmt.Println("Running (go run) on :8080 ...")
	return sh.RunV("go", "run", "./cmd/web")
}

func Build() error {
	mg.Deps(Tidy)

	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return err
	}

	out := filepath.Join(binDir, appName+exeSuffix())
	fmt.Println("Building:", out)

	env := map[string]string{"CGO_ENABLED": "0"}
	return sh.RunWithV(env, "go", "build", "-trimpath", "-o", out, "./cmd/web")
}

func Test() error {
	fmt.Println("Testing...")
	return sh.RunV("go", "test", "./...", "-count=1")
}

func TestRace() error {
	fmt.Println("Testing with -race...")
	if runtime.GOOS == "windows" {
		fmt.Println("Note: -race on Windows may be unsupported/unstable depending on your Go toolchain.")
	}
	return sh.RunV("go", "test", "./...", "-race", "-count=1")
}

func Fmt() error {
	fmt.Println("Formatting...")
	return sh.RunV("gofmt", "-w", "./cmd", "./internal", "./magefile.go")
}

func Lint() error {
	fmt.Println("Linting (golangci-lint)...")
	if _, err := exec.LookPath("golangci-lint"); err != nil {
		return fmt.Errorf("golangci-lint not found. Install with: mage Tools")
	}
	return sh.RunV("golangci-lint", "run", "--timeout=3m", "./...")
}

func Check() error {
	mg.Deps(Fmt, Lint, Test)
	fmt.Println("Check OK.")
	return nil
}

func Tidy() error {
	fmt.Println("Tidying go.mod/go.sum...")
	return sh.RunV("go", "mod", "tidy")
}

// Tables: create the payment schema against DB_DSN
func Tables() error {
	fmt.Println("Creating tables...")
	return sh.RunV("go", "run", "./cmd/tools/createtable")
}

// MockWebhook: fire a signed provider webhook at a local server
func MockWebhook() error {
	return sh.RunV("go", "run", "./cmd/tools/mockwebhook", "-dry-run")
}

func Clean() error {
	fmt.Println("Cleaning...")
	_ = os.RemoveAll(binDir)
	_ = os.RemoveAll(tmpDir)
	return nil
}

// Tools: air + golangci-lint
func Tools() error {
	fmt.Println("Installing tools (air, golangci-lint)...")

	if err := sh.RunV("go", "install", "github.com/air-verse/air@latest"); err != nil {
		return err
	}
	if err := sh.RunV("go", "install", "github.com/golangci/golangci-lint/v2/cmd/golangci-lint@latest"); err != nil {
		return err
	}

	fmt.Println("Tools installed. Ensure GOBIN/GOPATH/bin is in PATH.")
	return nil
}

func exeSuffix() string {
	if runtime.GOOS == "windows" {
		return ".exe"
	}
	return ""
}
