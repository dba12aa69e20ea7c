package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"time"

	"audio-workbench/internal/config"
	"audio-workbench/internal/domain"
)

const installCommandTimeout = 45 * time.Minute

// packageManager is one way of installing ffmpeg on the current OS.
type packageManager struct {
	name     string
	commands [][]string
}

// ffmpegInstallers lists package managers per OS, in preference order.
var ffmpegInstallers = map[string][]packageManager{
	"windows": {
		{name: "winget", commands: [][]string{{"winget", "install", "--id", "Gyan.FFmpeg", "--exact", "--accept-source-agreements", "--accept-package-agreements"}}},
		{name: "choco", commands: [][]string{{"choco", "install", "ffmpeg", "-y"}}},
		{name: "scoop", commands: [][]string{{"scoop", "install", "ffmpeg"}}},
	},
	"darwin": {
		{name: "brew", commands: [][]string{{"brew", "install", "ffmpeg"}}},
	},
	"linux": {
		{name: "apt-get", commands: [][]string{{"apt-get", "update"}, {"apt-get", "install", "-y", "ffmpeg"}}},
		{name: "dnf", commands: [][]string{{"dnf", "install", "-y", "ffmpeg"}}},
		{name: "pacman", commands: [][]string{{"pacman", "-Sy", "--noconfirm", "ffmpeg"}}},
		{name: "zypper", commands: [][]string{{"zypper", "install", "-y", "ffmpeg"}}},
	},
}

// commandExec runs install commands; replaced in tests.
var commandExec = func(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if len(msg) > 400 {
			msg = msg[len(msg)-400:]
		}
		return fmt.Errorf("%s: %w: %s", formatCommand(name, args), err, msg)
	}
	return nil
}

// FixDiagnostic applies an OS-specific remediation for one failed diagnostic item.
func (a *App) FixDiagnostic(itemID string) (domain.DiagnosticReport, error) {
	id := strings.TrimSpace(itemID)
	if id == "" {
		return domain.DiagnosticReport{}, fmt.Errorf("diagnostic item id is required")
	}

	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}
	settings = normalizeSettings(settings)

	changed := false
	var fixErr error
	switch id {
	case "tool_ffmpeg", "tool_ffprobe":
		fixErr = installFFmpeg(goruntime.GOOS, exec.LookPath)
	case "output_dir":
		settings, changed, fixErr = fixOutputDir(settings)
	default:
		return domain.DiagnosticReport{}, fmt.Errorf("unsupported diagnostic item id: %s", id)
	}

	if changed {
		if _, err := a.SaveSettings(settings); err != nil {
			return a.GetDiagnostics(), fmt.Errorf("save settings after fix: %w", err)
		}
	}
	report, err := a.RefreshDiagnostics()
	if err != nil {
		return report, err
	}
	return report, fixErr
}

// installFFmpeg tries each available package manager of goos until one succeeds.
func installFFmpeg(goos string, lookPath func(string) (string, error)) error {
	managers := ffmpegInstallers[goos]
	if len(managers) == 0 {
		return fmt.Errorf("no install commands configured for OS %s", goos)
	}

	ctx, cancel := context.WithTimeout(context.Background(), installCommandTimeout)
	defer cancel()

	var failures []string
	for _, m := range managers {
		if _, err := lookPath(m.name); err != nil {
			continue
		}
		err := runAll(ctx, goos, m.commands, lookPath)
		if err == nil {
			return nil
		}
		failures = append(failures, fmt.Sprintf("%s: %v", m.name, err))
	}
	if len(failures) == 0 {
		return fmt.Errorf("no supported package manager found for %s", goos)
	}
	return errors.New(strings.Join(failures, " | "))
}

// runAll runs commands in order, retrying each with pkexec or sudo on Linux.
func runAll(ctx context.Context, goos string, commands [][]string, lookPath func(string) (string, error)) error {
	for _, command := range commands {
		candidates := [][]string{command}
		if goos == "linux" {
			if _, err := lookPath("pkexec"); err == nil {
				candidates = append(candidates, append([]string{"pkexec"}, command...))
			}
			if _, err := lookPath("sudo"); err == nil {
				candidates = append(candidates, append([]string{"sudo", "-n"}, command...))
			}
		}

		var attempts []string
		ok := false
		for _, c := range candidates {
			if err := commandExec(ctx, c[0], c[1:]...); err != nil {
				attempts = append(attempts, err.Error())
				continue
			}
			ok = true
			break
		}
		if !ok {
			return errors.New(strings.Join(attempts, " | "))
		}
	}
	return nil
}

// fixOutputDir restores the default output directory when empty and creates it.
func fixOutputDir(settings domain.Settings) (domain.Settings, bool, error) {
	outputDir := strings.TrimSpace(settings.OutputDir)
	changed := false
	if outputDir == "" {
		outputDir = config.DefaultSettings().OutputDir
		settings.OutputDir = outputDir
		changed = true
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return settings, changed, fmt.Errorf("create output directory %s: %w", outputDir, err)
	}
	return settings, changed, nil
}

// ensureLocalBinOnPATH prepends {appDir}/bin to PATH so user-installed
// tools are found by the transcoder.
func ensureLocalBinOnPATH(appDir string) error {
	binDir := filepath.Join(appDir, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return err
	}

	current := os.Getenv("PATH")
	for _, entry := range filepath.SplitList(current) {
		if filepath.Clean(entry) == filepath.Clean(binDir) {
			return nil
		}
	}

	if current == "" {
		return os.Setenv("PATH", binDir)
	}
	return os.Setenv("PATH", binDir+string(os.PathListSeparator)+current)
}

func formatCommand(name string, args []string) string {
	if len(args) == 0 {
		return name
	}
	return name + " " + strings.Join(args, " ")
}
