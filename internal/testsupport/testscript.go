package testsupport

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rogpeppe/go-internal/testscript"

	"github.com/amonks/timekeep/server"
	"github.com/amonks/timekeep/tracking"
)

var (
	buildOnce sync.Once
	tkPath    string
	buildErr  error
)

// BuildTk builds the tk binary once and returns its path.
func BuildTk(t testing.TB) string {
	t.Helper()

	buildOnce.Do(func() {
		moduleRoot, err := findModuleRoot()
		if err != nil {
			buildErr = err
			return
		}

		binDir, err := os.MkdirTemp("", "tk-bin-")
		if err != nil {
			buildErr = err
			return
		}

		tkPath = filepath.Join(binDir, "tk")
		cmd := exec.Command("go", "build", "-o", tkPath, "./cmd/tk")
		cmd.Dir = moduleRoot
		output, err := cmd.CombinedOutput()
		if err != nil {
			buildErr = fmt.Errorf("build tk: %w: %s", err, strings.TrimSpace(string(output)))
		}
	})

	if buildErr != nil {
		t.Fatalf("%v", buildErr)
	}

	return tkPath
}

// SetupScriptEnv configures common environment variables for testscript and
// starts a tracking backend for the script. The backend's ledger lives in
// $WORK/ledger and its URL is exported as TIMEKEEP_URL.
func SetupScriptEnv(t testing.TB, env *testscript.Env) error {
	t.Helper()

	env.Setenv("TK", BuildTk(t))

	homeDir := filepath.Join(env.WorkDir, "home")
	if err := EnsureHomeDirs(homeDir); err != nil {
		return err
	}
	env.Setenv("HOME", homeDir)
	env.Setenv("NO_COLOR", "1")

	srv, err := server.NewServer(server.ServerOptions{
		DataDir: filepath.Join(env.WorkDir, "ledger"),
		Logger:  log.New(io.Discard, "", 0),
	})
	if err != nil {
		return err
	}
	backend := httptest.NewServer(srv.Handler())
	env.Defer(backend.Close)
	env.Setenv("TIMEKEEP_URL", backend.URL)
	return nil
}

// Commands returns the custom testscript commands.
func Commands() map[string]func(ts *testscript.TestScript, neg bool, args []string) {
	return map[string]func(ts *testscript.TestScript, neg bool, args []string){
		"envset":  CmdEnvSet,
		"entryid": CmdEntryID,
	}
}

// CmdEnvSet stores the trimmed contents of a file in an env var.
func CmdEnvSet(ts *testscript.TestScript, neg bool, args []string) {
	if neg {
		ts.Fatalf("envset does not support negation")
	}
	if len(args) != 2 {
		ts.Fatalf("usage: envset VAR FILE")
	}

	value := strings.TrimSpace(ts.ReadFile(args[1]))
	ts.Setenv(args[0], value)
}

// CmdEntryID finds an active timer by subject ID in `tk active --json`
// output and stores its entry ID in an env var.
func CmdEntryID(ts *testscript.TestScript, neg bool, args []string) {
	if neg {
		ts.Fatalf("entryid does not support negation")
	}
	if len(args) != 3 {
		ts.Fatalf("usage: entryid FILE SUBJECT-ID VAR")
	}

	var items []tracking.ActiveTimer
	data := ts.ReadFile(args[0])
	if err := json.Unmarshal([]byte(data), &items); err != nil {
		ts.Fatalf("parse active timers: %v", err)
	}

	for _, item := range items {
		if item.SubjectID == args[1] {
			ts.Setenv(args[2], item.ID)
			return
		}
	}

	ts.Fatalf("active timer for %q not found", args[1])
}

func findModuleRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("could not find module root (go.mod)")
		}
		dir = parent
	}
}
