package scripts_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MY221B/bird-download/internal/registry"
	"github.com/MY221B/bird-download/internal/scripts"
	"github.com/MY221B/bird-download/internal/services"
)

type fakeExecutor struct {
	dir     string
	binary  string
	args    []string
	csv     string
	output  []string
	err     error
	blockOn bool
}

func (f *fakeExecutor) Run(ctx context.Context, dir, binary string, args []string, onOutput func(string)) error {
	f.dir, f.binary, f.args = dir, binary, args
	for _, arg := range args {
		if strings.HasSuffix(arg, "birds.csv") {
			data, err := os.ReadFile(arg)
			if err != nil {
				return err
			}
			f.csv = string(data)
		}
	}
	for _, line := range f.output {
		onOutput(line)
	}
	if f.blockOn {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.err
}

var mallard = registry.Entry{Slug: "mallard", Chinese: "绿头鸭", English: "Mallard", Scientific: "Anas platyrhynchos"}

func newRunner(t *testing.T, exec scripts.Executor, timeout time.Duration) *scripts.Runner {
	t.Helper()
	r, err := scripts.New(scripts.Options{
		ProjectRoot:     "/srv/birds",
		ScratchDir:      t.TempDir(),
		DownloadCommand: []string{"tools/batch_fetch.sh", "{csv}", "--skip-existing"},
		UploadCommand:   []string{"python3", "tools/upload_to_cloudinary.py", "{slug}", "{chinese}", "{english}", "{scientific}"},
		Timeout:         timeout,
	}, scripts.WithExecutor(exec))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func TestDownloadWritesSpeciesCSV(t *testing.T) {
	exec := &fakeExecutor{}
	if err := newRunner(t, exec, 0).Download(context.Background(), mallard); err != nil {
		t.Fatalf("Download: %v", err)
	}
	if exec.dir != "/srv/birds" || exec.binary != "tools/batch_fetch.sh" {
		t.Fatalf("unexpected invocation %s in %s", exec.binary, exec.dir)
	}
	if !strings.Contains(exec.csv, `mallard,"绿头鸭","Mallard","Anas platyrhynchos",`) {
		t.Fatalf("unexpected csv %q", exec.csv)
	}
	if _, err := os.Stat(exec.args[0]); !os.IsNotExist(err) {
		t.Fatal("scratch csv should be removed after the run")
	}
}

func TestUploadExpandsNames(t *testing.T) {
	exec := &fakeExecutor{}
	if err := newRunner(t, exec, 0).Upload(context.Background(), mallard); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	want := []string{"tools/upload_to_cloudinary.py", "mallard", "绿头鸭", "Mallard", "Anas platyrhynchos"}
	if strings.Join(exec.args, "|") != strings.Join(want, "|") {
		t.Fatalf("args = %q, want %q", exec.args, want)
	}
}

func TestFailureCarriesOutputTail(t *testing.T) {
	exec := &fakeExecutor{output: []string{"line 1", "", "quota exceeded"}, err: errors.New("exit status 1")}
	err := newRunner(t, exec, 0).Upload(context.Background(), mallard)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("expected output tail in error, got %v", err)
	}
}

func TestTimeoutIsReported(t *testing.T) {
	exec := &fakeExecutor{blockOn: true}
	err := newRunner(t, exec, 20*time.Millisecond).Download(context.Background(), mallard)
	if !errors.Is(err, context.DeadlineExceeded) || !strings.Contains(err.Error(), "timeout") {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestCancelledContextSkipsRun(t *testing.T) {
	exec := &fakeExecutor{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := newRunner(t, exec, 0).Download(ctx, mallard); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if exec.binary != "" {
		t.Fatal("executor should not run after cancellation")
	}
}

func TestCancelLetsStartedCollaboratorFinish(t *testing.T) {
	root := t.TempDir()
	doc := filepath.Join(root, "mallard_cloudinary_urls.json")
	script := `printf '{"bird' > "$1"; sleep 0.3; printf '_info": {}}' >> "$1"`
	r, err := scripts.New(scripts.Options{
		ProjectRoot:     root,
		ScratchDir:      t.TempDir(),
		DownloadCommand: []string{"true"},
		UploadCommand:   []string{"sh", "-c", script, "sh", doc},
		Timeout:         10 * time.Second,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)
	if err := r.Upload(ctx, mallard); err != nil {
		t.Fatalf("upload interrupted: %v", err)
	}
	data, err := os.ReadFile(doc)
	if err != nil {
		t.Fatalf("read metadata: %v", err)
	}
	if string(data) != `{"bird_info": {}}` {
		t.Fatalf("metadata truncated: %q", data)
	}
}

func TestNewRequiresCommands(t *testing.T) {
	if _, err := scripts.New(scripts.Options{UploadCommand: []string{"x"}}); err == nil {
		t.Fatal("expected error without download command")
	}
	if _, err := scripts.New(scripts.Options{DownloadCommand: []string{"x"}}); err == nil {
		t.Fatal("expected error without upload command")
	}
}

func TestExpand(t *testing.T) {
	got := scripts.Expand([]string{"--name={english}", "{slug}/{slug}"}, map[string]string{"english": "Grey Heron", "slug": "grey_heron"})
	if got[0] != "--name=Grey Heron" || got[1] != "grey_heron/grey_heron" {
		t.Fatalf("unexpected expansion %q", got)
	}
}
