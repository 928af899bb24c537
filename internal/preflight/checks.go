package preflight

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/MY221B/bird-download/internal/config"
	"github.com/MY221B/bird-download/internal/deps"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFile verifies that a regular file exists and is readable.
func CheckFile(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not readable: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: path}
}

// CheckCredentials reports which secrets are present. Sound acquisition
// needs both the eBird token and Cloudinary credentials; without them sounds
// fail with a reason but the run continues, so these checks are optional.
func CheckCredentials(cfg *config.Config) []Result {
	if !cfg.Sounds.Enabled {
		return []Result{{Name: "Sound credentials", Passed: true, Detail: "Disabled", Optional: true}}
	}
	ebird := Result{Name: "eBird token", Optional: true, Detail: "EBIRD_TOKEN not set"}
	if strings.TrimSpace(cfg.Credentials.EBirdToken) != "" {
		ebird.Passed, ebird.Detail = true, "present"
	}
	cloud := Result{Name: "Cloudinary credentials", Optional: true, Detail: "CLOUDINARY_CLOUD_NAME, CLOUDINARY_API_KEY and CLOUDINARY_API_SECRET required"}
	if cfg.Credentials.HasCloudinary() {
		cloud.Passed, cloud.Detail = true, "present"
	}
	return []Result{ebird, cloud}
}

// CheckEBird verifies eBird connectivity and the API token.
func CheckEBird(ctx context.Context, baseURL, token string) Result {
	const name = "eBird API"

	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing url", Optional: true}
	}
	if strings.TrimSpace(token) == "" {
		return Result{Name: name, Detail: "missing token", Optional: true}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, base+"/ref/taxonomy/versions", nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("auth check failed (%v)", err), Optional: true}
	}
	req.Header.Set("X-eBirdApiToken", strings.TrimSpace(token))

	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("auth check failed (%v)", err), Optional: true}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return Result{Name: name, Passed: true, Detail: "Reachable", Optional: true}
	case http.StatusUnauthorized, http.StatusForbidden:
		return Result{Name: name, Detail: "auth failed (invalid token)", Optional: true}
	default:
		return Result{Name: name, Detail: fmt.Sprintf("auth check failed (%d)", resp.StatusCode), Optional: true}
	}
}

// CheckSystemDeps evaluates the configured collaborator commands. Both the
// refresh run and the status command use this list.
func CheckSystemDeps(_ context.Context, cfg *config.Config) []deps.Status {
	root := cfg.Paths.ProjectRoot
	var requirements []deps.Requirement
	requirements = append(requirements, deps.CommandRequirements(
		"Download collaborator", "Fetches species images into the images directory",
		root, cfg.Collaborators.DownloadCommand)...)
	requirements = append(requirements, deps.CommandRequirements(
		"Upload collaborator", "Uploads images and writes cloud metadata",
		root, cfg.Collaborators.UploadCommand)...)
	return deps.CheckBinaries(requirements)
}
