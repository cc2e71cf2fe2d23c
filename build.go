//go:build ignore

// build.go - ChurchBulletin host build script
// Usage: go run build.go [-target=TARGET]
// Targets: all, server, generate, test, clean

package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const (
	version = "0.1.0"
	module  = "github.com/ClearMeasureLabs/onion8-flyway"
)

// BuildContext holds configuration for the build process
type BuildContext struct {
	Verbose bool
	Version string
	Commit  string
	OS      string
	Arch    string
}

var (
	rootDir string
	distDir string

	colorReset = "\033[0m"
	colorRed   = "\033[31m"
	colorGreen = "\033[32m"
	colorBlue  = "\033[34m"
	colorCyan  = "\033[36m"
)

func init() {
	cwd, err := os.Getwd()
	if err != nil {
		panic(fmt.Sprintf("Failed to get current directory: %v", err))
	}
	rootDir = cwd
	distDir = filepath.Join(rootDir, "dist")

	if _, err := os.Stat(filepath.Join(rootDir, "go.mod")); os.IsNotExist(err) {
		panic(fmt.Sprintf("go.mod not found in %s; run from the module root", rootDir))
	}
}

func main() {
	target := flag.String("target", "all", "Build target")
	verbose := flag.Bool("v", false, "Verbose output")
	ver := flag.String("version", version, "Version stamped into the binary")
	goos := flag.String("os", "", "Target GOOS (default: host)")
	goarch := flag.String("arch", "", "Target GOARCH (default: host)")
	flag.Parse()

	printHeader()
	startTime := time.Now()

	ctx := &BuildContext{
		Verbose: *verbose,
		Version: *ver,
		Commit:  gitCommit(),
		OS:      *goos,
		Arch:    *goarch,
	}

	switch *target {
	case "all":
		generate(ctx)
		buildServer(ctx)
	case "server":
		buildServer(ctx)
	case "generate":
		generate(ctx)
	case "test":
		runTests(ctx)
	case "clean":
		clean()
	default:
		showHelp()
		os.Exit(1)
	}

	printSuccess(fmt.Sprintf("Build completed in %s", time.Since(startTime).Round(time.Millisecond)))
}

func printHeader() {
	fmt.Println(colorCyan + "===========================================" + colorReset)
	fmt.Println(colorCyan + "     ChurchBulletin host - Build System    " + colorReset)
	fmt.Println(colorCyan + "===========================================" + colorReset)
	fmt.Println()
}

func printInfo(msg string) {
	fmt.Printf("%s[INFO]%s %s\n", colorBlue, colorReset, msg)
}

func printSuccess(msg string) {
	fmt.Printf("%s[SUCCESS]%s %s\n", colorGreen, colorReset, msg)
}

func printError(msg string) {
	fmt.Printf("%s[ERROR]%s %s\n", colorRed, colorReset, msg)
}

func buildServer(ctx *BuildContext) {
	printInfo("Building server...")

	exeName := "bulletin"
	if ctx.OS == "windows" {
		exeName += ".exe"
	}
	outputPath := filepath.Join(distDir, exeName)

	pkg := module + "/cmd/server/commands"
	ldflags := fmt.Sprintf("-s -w -X %s.Version=%s -X %s.Commit=%s -X %s.Date=%s",
		pkg, ctx.Version, pkg, ctx.Commit, pkg, time.Now().UTC().Format(time.RFC3339))

	args := []string{"build", "-trimpath", "-ldflags", ldflags, "-o", outputPath, "./cmd/server"}
	if ctx.Verbose {
		args = append([]string{"build", "-v"}, args[1:]...)
	}

	cmd := exec.Command("go", args...)
	cmd.Dir = rootDir
	cmd.Env = os.Environ()
	if ctx.OS != "" {
		cmd.Env = append(cmd.Env, "GOOS="+ctx.OS)
	}
	if ctx.Arch != "" {
		cmd.Env = append(cmd.Env, "GOARCH="+ctx.Arch)
	}
	if ctx.Verbose {
		fmt.Printf("Running: go %s\n", strings.Join(args, " "))
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		printError(fmt.Sprintf("Failed to build server: %v", err))
		os.Exit(1)
	}

	if info, err := os.Stat(outputPath); err == nil {
		printSuccess(fmt.Sprintf("Built %s (%.1f MB)", exeName, float64(info.Size())/1024/1024))
	}
}

// generate refreshes the gomock doubles
func generate(ctx *BuildContext) {
	printInfo("Generating mocks...")
	run(ctx, "go", "generate", "./internal/...")
}

func runTests(ctx *BuildContext) {
	printInfo("Running Go tests...")
	args := []string{"test", "-race"}
	if ctx.Verbose {
		args = append(args, "-v")
	}
	args = append(args, "./...")
	run(ctx, "go", args...)
	printSuccess("All tests passed")
}

func clean() {
	printInfo("Cleaning build artifacts...")
	if err := os.RemoveAll(distDir); err != nil {
		printError(fmt.Sprintf("Failed to clean dist directory: %v", err))
		os.Exit(1)
	}
	if err := os.RemoveAll(filepath.Join(rootDir, "logs")); err != nil {
		printError(fmt.Sprintf("Failed to clean logs: %v", err))
	}
	printSuccess("Build artifacts cleaned")
}

func run(ctx *BuildContext, name string, args ...string) {
	cmd := exec.Command(name, args...)
	cmd.Dir = rootDir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if ctx.Verbose {
		fmt.Printf("Running: %s %s\n", name, strings.Join(args, " "))
	}
	if err := cmd.Run(); err != nil {
		printError(fmt.Sprintf("%s %s failed: %v", name, args[0], err))
		os.Exit(1)
	}
}

func gitCommit() string {
	out, err := exec.Command("git", "rev-parse", "--short", "HEAD").Output()
	if err != nil {
		return "none"
	}
	return strings.TrimSpace(string(out))
}

func showHelp() {
	fmt.Println("Usage: go run build.go [-target=TARGET] [-v] [-version=X.Y.Z] [-os=GOOS] [-arch=GOARCH]")
	fmt.Println()
	fmt.Println("Targets:")
	fmt.Println("  all        Generate mocks and build the server (default)")
	fmt.Println("  server     Build the server binary into dist/")
	fmt.Println("  generate   Regenerate gomock doubles")
	fmt.Println("  test       Run all tests with the race detector")
	fmt.Println("  clean      Remove dist/ and logs/")
}
