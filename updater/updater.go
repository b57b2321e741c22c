package updater

import (
	"archive/tar"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/schollz/progressbar/v3"
)

const (
	githubAPIURL = "https://api.github.com/repos/agnosto/casewatch/releases/latest"
)

type GithubRelease struct {
	TagName string `json:"tag_name"`
	Assets  []struct {
		Name               string `json:"name"`
		BrowserDownloadURL string `json:"browser_download_url"`
	} `json:"assets"`
}

// SameVersion compares a release tag against a bare version string,
// tolerating the leading "v" on either side.
func SameVersion(tag, version string) bool {
	return strings.TrimPrefix(tag, "v") == strings.TrimPrefix(version, "v")
}

// CheckForUpdate is the CLI entry point: compare against the latest
// release and swap the binary if it is newer.
func CheckForUpdate(currentVersion string) error {
	release, err := LatestRelease()
	if err != nil {
		return fmt.Errorf("failed to get latest release: %w", err)
	}

	if SameVersion(release.TagName, currentVersion) {
		fmt.Println("You are already on the latest version.")
		return nil
	}

	fmt.Printf("New version available: %s\n", release.TagName)
	return Apply(release)
}

// UpdateAvailable reports whether a newer release exists, for the startup
// announcement.
func UpdateAvailable(currentVersion string) (string, bool) {
	release, err := LatestRelease()
	if err != nil {
		return "", false
	}
	if SameVersion(release.TagName, currentVersion) {
		return "", false
	}
	return release.TagName, true
}

func LatestRelease() (*GithubRelease, error) {
	resp, err := http.Get(githubAPIURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var release GithubRelease
	if err := json.Unmarshal(body, &release); err != nil {
		return nil, err
	}

	return &release, nil
}

// Apply downloads the release asset for this platform and swaps the
// running binary. On Windows the swap is deferred to a script that waits
// for the process to exit.
func Apply(release *GithubRelease) error {
	assetName := fmt.Sprintf("casewatch_%s_%s_%s.tar.gz", strings.TrimPrefix(release.TagName, "v"), runtime.GOOS, runtime.GOARCH)

	var downloadURL string
	for _, asset := range release.Assets {
		if asset.Name == assetName {
			downloadURL = asset.BrowserDownloadURL
			break
		}
	}

	if downloadURL == "" {
		return fmt.Errorf("no suitable binary found for your system")
	}

	resp, err := http.Get(downloadURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	tempDir, err := os.MkdirTemp("", "casewatch-update")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tempDir)

	bar := progressbar.DefaultBytes(resp.ContentLength, "Downloading update")
	archive := filepath.Join(tempDir, assetName)
	out, err := os.Create(archive)
	if err != nil {
		return err
	}
	if _, err := io.Copy(io.MultiWriter(out, bar), resp.Body); err != nil {
		out.Close()
		return err
	}
	out.Close()

	return swapBinary(tempDir, archive)
}

func swapBinary(tempDir, archive string) error {
	in, err := os.Open(archive)
	if err != nil {
		return err
	}
	defer in.Close()

	gzr, err := gzip.NewReader(in)
	if err != nil {
		return err
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)

	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		if header.Typeflag != tar.TypeReg || !strings.HasPrefix(header.Name, "casewatch") {
			continue
		}

		outPath := filepath.Join(tempDir, header.Name)
		outFile, err := os.Create(outPath)
		if err != nil {
			return err
		}
		if _, err := io.Copy(outFile, tr); err != nil {
			outFile.Close()
			return err
		}
		outFile.Close()

		execPath, err := os.Executable()
		if err != nil {
			return err
		}

		if err := os.Chmod(outPath, 0755); err != nil {
			return err
		}

		if runtime.GOOS == "windows" {
			// The running binary cannot be replaced in place; a script
			// waits for the process to exit and moves it then.
			updateScript := filepath.Join(tempDir, "update.bat")
			scriptContent := fmt.Sprintf(`@echo off
:loop
tasklist /FI "IMAGENAME eq %s" 2>NUL | find /I /N "%s">NUL
if "%%ERRORLEVEL%%"=="0" (
    timeout /t 1 >nul
    goto loop
)
move /Y "%s" "%s"
del "%s"
`, filepath.Base(execPath), filepath.Base(execPath), outPath, execPath, updateScript)

			if err := os.WriteFile(updateScript, []byte(scriptContent), 0755); err != nil {
				return err
			}

			cmd := exec.Command("cmd", "/C", updateScript)
			if err := cmd.Start(); err != nil {
				return err
			}
			return nil
		}

		return os.Rename(outPath, execPath)
	}

	return fmt.Errorf("binary not found in the archive")
}

// Restart launches a fresh copy of this binary with the same arguments and
// exits the current process.
func Restart() error {
	execPath, err := os.Executable()
	if err != nil {
		return err
	}
	cmd := exec.Command(execPath, os.Args[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return err
	}
	os.Exit(0)
	return nil
}
