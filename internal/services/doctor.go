package services

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/conneroisu/assetforge/internal/config"
)

// Check is one doctor finding.
type Check struct {
	Name   string `json:"name" yaml:"name"`
	OK     bool   `json:"ok" yaml:"ok"`
	Detail string `json:"detail" yaml:"detail"`
	// Hint explains how to fix a failed check.
	Hint string `json:"hint,omitempty" yaml:"hint,omitempty"`
}

// lookPath finds executables. Tests replace it.
var lookPath = exec.LookPath

// Doctor checks that the tools and inputs a build needs are present.
func Doctor(cfg *config.Config) []Check {
	checks := []Check{checkCompiler(cfg)}
	checks = append(checks,
		checkExists("source directory", cfg.Resolve(cfg.Paths.Source), true,
			"Run 'assetforge init' or set paths.source"),
		checkExists("sass directory", cfg.Resolve(cfg.Styles.SassDir), true,
			"Set styles.sass_dir to the directory holding your partials"),
		checkExists("entry script", cfg.Resolve(cfg.Scripts.Entry), false,
			"Create the entry or set scripts.entry"),
		checkPort(cfg),
	)
	return checks
}

// Healthy reports whether every check passed.
func Healthy(checks []Check) bool {
	for _, c := range checks {
		if !c.OK {
			return false
		}
	}
	return true
}

func checkCompiler(cfg *config.Config) Check {
	check := Check{Name: "sass compiler"}
	path, err := lookPath(cfg.Styles.Compiler)
	if err != nil {
		check.Detail = fmt.Sprintf("%s not found", cfg.Styles.Compiler)
		check.Hint = "Install Dart Sass (npm install -g sass) or set styles.compiler"
		return check
	}

	check.OK = true
	check.Detail = path
	if out, err := exec.Command(path, "--version").Output(); err == nil {
		check.Detail = fmt.Sprintf("%s (%s)", path, strings.TrimSpace(string(out)))
	}
	return check
}

func checkExists(name, path string, dir bool, hint string) Check {
	check := Check{Name: name, Detail: path}
	info, err := os.Stat(path)
	switch {
	case err != nil:
		check.Detail = fmt.Sprintf("%s is missing", path)
		check.Hint = hint
	case info.IsDir() != dir:
		kind := "a file"
		if dir {
			kind = "a directory"
		}
		check.Detail = fmt.Sprintf("%s is not %s", path, kind)
		check.Hint = hint
	default:
		check.OK = true
	}
	return check
}

func checkPort(cfg *config.Config) Check {
	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	check := Check{Name: "server port", Detail: addr}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		check.Detail = fmt.Sprintf("%s is unavailable: %v", addr, err)
		check.Hint = "Stop the process using the port or set server.port"
		return check
	}
	_ = ln.Close()
	check.OK = true
	return check
}
