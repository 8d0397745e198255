package platform

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// OS is the detected operating system.
type OS string

const (
	Windows OS = "windows"
	Linux   OS = "linux"
	MacOS   OS = "macos"
	WSL     OS = "wsl"
	Unknown OS = "unknown"
)

// Arch is the detected CPU architecture.
type Arch string

const (
	X64   Arch = "x64"
	X86   Arch = "x86"
	ARM64 Arch = "arm64"
	ARM   Arch = "arm"
)

// AppName names the per-user directories.
const AppName = "browserforge"

// Info summarises the host for diagnostics.
type Info struct {
	OS         OS     `json:"os" yaml:"os"`
	OSVersion  string `json:"os_version" yaml:"os_version"`
	Arch       Arch   `json:"architecture" yaml:"architecture"`
	GoVersion  string `json:"go_version" yaml:"go_version"`
	IsWSL      bool   `json:"is_wsl" yaml:"is_wsl"`
	HasDisplay bool   `json:"has_display" yaml:"has_display"`
}

// DetectOS returns the current operating system. Linux under WSL reports WSL.
func DetectOS() OS {
	return detectOS(runtime.GOOS, IsWSL())
}

func detectOS(goos string, wsl bool) OS {
	switch goos {
	case "windows":
		return Windows
	case "darwin":
		return MacOS
	case "linux":
		if wsl {
			return WSL
		}
		return Linux
	default:
		return Unknown
	}
}

// IsWSL reports whether the process runs under Windows Subsystem for Linux.
func IsWSL() bool {
	version, _ := os.ReadFile("/proc/version")
	return isWSL(string(version), os.Getenv)
}

func isWSL(procVersion string, getenv func(string) string) bool {
	v := strings.ToLower(procVersion)
	if strings.Contains(v, "microsoft") || strings.Contains(v, "wsl") {
		return true
	}
	return getenv("WSL_DISTRO_NAME") != ""
}

// DetectArch maps runtime.GOARCH to an Arch.
func DetectArch() Arch {
	return detectArch(runtime.GOARCH)
}

func detectArch(goarch string) Arch {
	switch goarch {
	case "amd64":
		return X64
	case "386":
		return X86
	case "arm64":
		return ARM64
	default:
		if strings.HasPrefix(goarch, "arm") {
			return ARM
		}
		return Arch(goarch)
	}
}

// HasDisplay reports whether a graphical display is available.
func HasDisplay() bool {
	return hasDisplay(runtime.GOOS, os.Getenv)
}

func hasDisplay(goos string, getenv func(string) string) bool {
	if goos == "windows" || goos == "darwin" {
		return true
	}
	return getenv("DISPLAY") != "" || getenv("WAYLAND_DISPLAY") != ""
}

// OSVersion returns the kernel or OS release string, or "unknown".
func OSVersion() string {
	switch runtime.GOOS {
	case "linux":
		if data, err := os.ReadFile("/proc/sys/kernel/osrelease"); err == nil {
			return strings.TrimSpace(string(data))
		}
	case "darwin":
		if out, err := exec.Command("sw_vers", "-productVersion").Output(); err == nil {
			return strings.TrimSpace(string(out))
		}
	case "windows":
		if out, err := exec.Command("cmd", "/c", "ver").Output(); err == nil {
			return strings.TrimSpace(string(out))
		}
	}
	return "unknown"
}

// SystemInfo collects host information.
func SystemInfo() Info {
	return Info{
		OS:         DetectOS(),
		OSVersion:  OSVersion(),
		Arch:       DetectArch(),
		GoVersion:  strings.TrimPrefix(runtime.Version(), "go"),
		IsWSL:      IsWSL(),
		HasDisplay: HasDisplay(),
	}
}

// CacheDir returns the per-user cache directory, creating it if needed.
func CacheDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return ensureDir(filepath.Join(base, AppName))
}

// ConfigDir returns the per-user configuration directory, creating it if
// needed.
func ConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return ensureDir(filepath.Join(base, AppName))
}

// DataDir returns the per-user data directory, creating it if needed.
func DataDir() (string, error) {
	base, err := userDataDir()
	if err != nil {
		return "", err
	}
	return ensureDir(filepath.Join(base, AppName))
}

func userDataDir() (string, error) {
	switch runtime.GOOS {
	case "windows":
		if dir := os.Getenv("LOCALAPPDATA"); dir != "" {
			return dir, nil
		}
		return os.UserConfigDir()
	case "darwin":
		return os.UserConfigDir() // ~/Library/Application Support
	default:
		if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
			return dir, nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".local", "share"), nil
	}
}

func ensureDir(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", err
	}
	return dir, nil
}
