package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MY221B/bird-download/internal/preflight"
)

type cliTestEnv struct {
	root       string
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	for _, key := range []string{"EBIRD_TOKEN", "CLOUDINARY_CLOUD_NAME", "CLOUDINARY_API_KEY", "CLOUDINARY_API_SECRET", "NTFY_TOKEN"} {
		t.Setenv(key, "")
	}

	root := filepath.Join(base, "project")
	writeFile(t, filepath.Join(root, "config", "locations.json"), `{"locations": [
  {"id": "park", "name": "Olympic Park", "city": "北京", "pointname": "奥森"}
]}`)
	writeFile(t, filepath.Join(root, "all_birds.csv"), `# slug,chinese_name,english_name,scientific_name,wikipedia_page
mallard,绿头鸭,Mallard,Anas platyrhynchos,Mallard
grey_heron,苍鹭,Grey Heron,Ardea cinerea,Grey_Heron
`)
	writeFile(t, filepath.Join(root, "cloud", "mallard_cloudinary_urls.json"), `{"bird_info": {"slug": "mallard"}, "macaulay": [{"url": "x"}]}`)

	configPath := filepath.Join(base, "config.toml")
	writeFile(t, configPath, fmt.Sprintf(`[paths]
project_root = %q
images_dir = "images"
cloud_metadata_dir = "cloud"
registry_file = "all_birds.csv"
locations_file = "config/locations.json"
location_birds_dir = "location_birds"
work_dir = "work"
state_dir = "state"

[sounds]
enabled = false

[collaborators]
download_command = ["sh", "-c", "exit 0"]
upload_command = ["sh", "-c", "exit 0"]
timeout_seconds = 30
`, root))

	return &cliTestEnv{root: root, configPath: configPath}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q\n---\n%s", needle, haystack)
	}
}

func TestVersionSkipsConfig(t *testing.T) {
	out, _, err := runCLI(t, []string{"version"}, filepath.Join(t.TempDir(), "missing", "config.toml"))
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	requireContains(t, out, "birdsync ")
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Locations: 1")
	requireContains(t, out, "Configuration valid")

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected init to refuse overwriting an existing file")
	}
}

func TestRegistryListAndCheck(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"registry", "list", "--filter", "heron"}, env.configPath)
	if err != nil {
		t.Fatalf("registry list: %v", err)
	}
	requireContains(t, out, "grey_heron")
	requireContains(t, out, "1 of 2 species")

	out, _, err = runCLI(t, []string{"registry", "check"}, env.configPath)
	if err != nil {
		t.Fatalf("registry check: %v", err)
	}
	requireContains(t, out, "needs_download")
	requireContains(t, out, "needs_sound")
}

func TestFetchFromSavedPage(t *testing.T) {
	env := setupCLITestEnv(t)
	page := filepath.Join(env.root, "page.html")
	writeFile(t, page, `<html><body><table>
<tr><th>序号</th><th>中文名</th><th>英文名</th><th>学名</th></tr>
<tr><td>1</td><td>大山雀</td><td>Japanese Tit</td><td>Parus minor</td></tr>
</table></body></html>`)

	out, _, err := runCLI(t, []string{"fetch", "--html", page}, env.configPath)
	if err != nil {
		t.Fatalf("fetch --html: %v", err)
	}
	requireContains(t, out, "japanese_tit")
	requireContains(t, out, "1 species")

	if _, _, err := runCLI(t, []string{"fetch", "--html", page, "--location", "park"}, env.configPath); err == nil {
		t.Fatal("expected an error when two sources are given")
	}
}

func TestRefreshRejectsUnknownLocation(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, []string{"refresh", "--locations", "nowhere"}, env.configPath)
	if err == nil {
		t.Fatal("expected an error for an unknown location")
	}
	if errors.Is(err, errNothingConverged) {
		t.Fatalf("unknown location should fail before the run: %v", err)
	}
}

func TestStatusShowsPreflightAndCoverage(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"status"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "== Preflight ==")
	requireContains(t, out, "Location config")
	requireContains(t, out, "Coverage")
}

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Registry", statusError, "missing", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Registry:", "[ERROR] missing")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("Registry", statusOK, "ready", true)
	if !strings.HasPrefix(got, ansiGreen) || !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected green line, got %q", got)
	}
}

func TestPreflightLines(t *testing.T) {
	lines := preflightLines([]preflight.Result{
		{Name: "Images directory", Passed: true, Detail: "/srv/images"},
		{Name: "eBird token", Optional: true, Detail: "EBIRD_TOKEN not set"},
	}, false)
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d: %v", len(lines), lines)
	}
	if !strings.Contains(lines[0], "[WARN]") || !strings.Contains(lines[0], "Summary") {
		t.Fatalf("unexpected summary %q", lines[0])
	}
	if !strings.Contains(lines[3], "eBird token") {
		t.Fatalf("expected degraded line to name the check, got %q", lines[3])
	}

	lines = preflightLines([]preflight.Result{{Name: "State directory", Detail: "missing"}}, false)
	if !strings.Contains(lines[0], "[ERROR]") {
		t.Fatalf("expected error summary, got %q", lines[0])
	}
}
