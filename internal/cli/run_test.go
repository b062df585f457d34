package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/filefilter/internal/filter"
	"github.com/hupe1980/filefilter/internal/testsupport"
)

// cliFixture holds a filter directory, an empty workdir and a data dir.
type cliFixture struct {
	filters string
	work    string
	data    string
}

func newCLIFixture(t *testing.T) *cliFixture {
	t.Helper()
	testsupport.SkipIfNoShell(t)

	fx := &cliFixture{
		filters: t.TempDir(),
		work:    t.TempDir(),
		data:    t.TempDir(),
	}

	testsupport.WriteFilter(t, fx.filters, "cat", testsupport.ModeCat)
	testsupport.WriteFilter(t, fx.filters, "upper", testsupport.ModeUpper)
	testsupport.WriteFilter(t, fx.filters, "reverse", testsupport.ModeReverse)
	testsupport.WriteFilter(t, fx.filters, "bang", testsupport.ModeAppend, testsupport.WithArg("!"))
	testsupport.WriteFilter(t, fx.filters, "boom", testsupport.ModeFail,
		testsupport.WithExitCode(4), testsupport.WithStderr("boom: bad input\n"))
	testsupport.WriteFilter(t, fx.filters, "noisy", testsupport.ModeNoisy, testsupport.WithArg("note from noisy\n"))
	testsupport.WriteFilter(t, fx.filters, "slow", testsupport.ModeSleep, testsupport.WithArg("30"))

	return fx
}

// args prefixes the fixture's search path and workdir.
func (fx *cliFixture) args(extra ...string) []string {
	return append([]string{"--filterdir", fx.filters, "--workdir", fx.work}, extra...)
}

func (fx *cliFixture) file(t *testing.T, name, content string) string {
	t.Helper()
	return testsupport.WriteFile(t, fx.data, name, content)
}

func (fx *cliFixture) assertNoScratch(t *testing.T) {
	t.Helper()
	assert.Empty(t, testsupport.DirEntries(t, fx.work), "scratch directory must be removed")
}

// ---------------------------------------------------------------------------
// Stdin mode
// ---------------------------------------------------------------------------

func TestRoot_StdinUpper(t *testing.T) {
	fx := newCLIFixture(t)

	stdout, stderr, err := executeCommandWithInput("hello\n", fx.args("-f", "upper")...)
	require.NoError(t, err)
	assert.Equal(t, "HELLO\n", stdout)
	assert.Empty(t, stderr)
	fx.assertNoScratch(t)
}

func TestRoot_StdinFailureWritesNothing(t *testing.T) {
	fx := newCLIFixture(t)

	stdout, _, err := executeCommandWithInput("hello\n", fx.args("-f", "upper", "-f", "boom")...)
	require.Error(t, err)
	assert.Equal(t, 4, exitCode(t, err))
	assert.Empty(t, stdout)
	fx.assertNoScratch(t)
}

func TestRoot_DryRunStdinStillFilters(t *testing.T) {
	fx := newCLIFixture(t)

	stdout, _, err := executeCommandWithInput("abc", fx.args("-f", "upper", "--dry-run")...)
	require.NoError(t, err)
	assert.Equal(t, "ABC", stdout)
}

// ---------------------------------------------------------------------------
// File mode
// ---------------------------------------------------------------------------

func TestRoot_FileChain(t *testing.T) {
	fx := newCLIFixture(t)
	p := fx.file(t, "notes.txt", "ab")

	stdout, _, err := executeCommand(fx.args("-f", "bang", "-f", "reverse", "-i", p)...)
	require.NoError(t, err)
	assert.Empty(t, stdout)
	assert.Equal(t, "!ba", testsupport.ReadFile(t, p))
	fx.assertNoScratch(t)
}

func TestRoot_OrderMatters(t *testing.T) {
	fx := newCLIFixture(t)
	p := fx.file(t, "notes.txt", "ab")

	_, _, err := executeCommand(fx.args("-f", "reverse", "-f", "bang", "-i", p)...)
	require.NoError(t, err)
	assert.Equal(t, "ba!", testsupport.ReadFile(t, p))
}

func TestRoot_AtomicFailure(t *testing.T) {
	fx := newCLIFixture(t)
	p := fx.file(t, "notes.txt", "original")

	_, _, err := executeCommand(fx.args("-f", "upper", "-f", "boom", "-f", "reverse", "-i", p)...)
	require.Error(t, err)
	assert.Equal(t, 4, exitCode(t, err))
	assert.Equal(t, "original", testsupport.ReadFile(t, p))
	fx.assertNoScratch(t)

	var filterErr *filter.ExitError
	require.ErrorAs(t, err, &filterErr)
	assert.Equal(t, "boom: bad input\n", string(filterErr.Stderr))
	assert.Contains(t, err.Error(), `filter "boom" failed with exit code 4`)
}

func TestRoot_StopsAtFirstFailingFile(t *testing.T) {
	fx := newCLIFixture(t)
	first := fx.file(t, "a.txt", "a")
	second := fx.file(t, "b.txt", "b")

	_, _, err := executeCommand(fx.args("-f", "boom", "-i", first, "-i", second, "-p")...)
	require.Error(t, err)

	assert.Equal(t, "a", testsupport.ReadFile(t, first))
	assert.Equal(t, "b", testsupport.ReadFile(t, second))
}

func TestRoot_MissingExecutable(t *testing.T) {
	fx := newCLIFixture(t)
	p := fx.file(t, "notes.txt", "keep")

	_, _, err := executeCommand(fx.args("-f", "upper", "-f", "no-such-filter-xyz", "-i", p)...)
	require.Error(t, err)
	assert.Equal(t, ExitStartFailure, exitCode(t, err))
	assert.Contains(t, err.Error(), "no-such-filter-xyz")
	assert.Equal(t, "keep", testsupport.ReadFile(t, p))
	fx.assertNoScratch(t)
}

func TestRoot_MissingInput(t *testing.T) {
	fx := newCLIFixture(t)

	_, _, err := executeCommand(fx.args("-f", "upper", "-i", filepath.Join(fx.data, "missing.txt"))...)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, exitCode(t, err))
	fx.assertNoScratch(t)
}

func TestRoot_GlobInputs(t *testing.T) {
	fx := newCLIFixture(t)
	a := fx.file(t, "a.txt", "a")
	b := fx.file(t, filepath.Join("sub", "b.txt"), "b")
	other := fx.file(t, "c.md", "c")

	_, _, err := executeCommand(fx.args("-f", "upper", "-i", filepath.Join(fx.data, "**", "*.txt"))...)
	require.NoError(t, err)

	assert.Equal(t, "A", testsupport.ReadFile(t, a))
	assert.Equal(t, "B", testsupport.ReadFile(t, b))
	assert.Equal(t, "c", testsupport.ReadFile(t, other))
}

func TestRoot_GlobWithoutMatch(t *testing.T) {
	fx := newCLIFixture(t)

	_, _, err := executeCommand(fx.args("-f", "upper", "-i", filepath.Join(fx.data, "*.nothing"))...)
	require.Error(t, err)
	assert.Equal(t, ExitUsage, exitCode(t, err))
}

func TestRoot_Progress(t *testing.T) {
	fx := newCLIFixture(t)
	a := fx.file(t, "a.txt", "a")
	b := fx.file(t, "b.txt", "b")

	_, stderr, err := executeCommand(fx.args("-p", "-f", "upper", "-f", "reverse", "-i", a, "-i", b)...)
	require.NoError(t, err)
	assert.Equal(t, a+": upper reverse\n"+b+": upper reverse\n", stderr)
}

func TestRoot_ProgressStdin(t *testing.T) {
	fx := newCLIFixture(t)

	_, stderr, err := executeCommandWithInput("x", fx.args("--progress", "-f", "cat")...)
	require.NoError(t, err)
	assert.Equal(t, "STDIN: cat\n", stderr)
}

func TestRoot_ForwardsStderrOfSuccessfulFilter(t *testing.T) {
	fx := newCLIFixture(t)

	stdout, stderr, err := executeCommandWithInput("data", fx.args("-f", "noisy")...)
	require.NoError(t, err)
	assert.Equal(t, "data", stdout)
	assert.Equal(t, "note from noisy\n", stderr)
}

func TestRoot_DryRunPrintsDiff(t *testing.T) {
	fx := newCLIFixture(t)
	p := fx.file(t, "notes.txt", "hello\n")

	stdout, _, err := executeCommand(fx.args("--dry-run", "--no-color", "-f", "upper", "-i", p)...)
	require.NoError(t, err)
	assert.Contains(t, stdout, "-hello\n")
	assert.Contains(t, stdout, "+HELLO\n")
	assert.NotContains(t, stdout, "\033[")
	assert.Equal(t, "hello\n", testsupport.ReadFile(t, p))
	fx.assertNoScratch(t)
}

func TestRoot_DryRunUnchangedPrintsNothing(t *testing.T) {
	fx := newCLIFixture(t)
	p := fx.file(t, "notes.txt", "SAME\n")

	stdout, _, err := executeCommand(fx.args("--dry-run", "-f", "upper", "-i", p)...)
	require.NoError(t, err)
	assert.Empty(t, stdout)
}

func TestRoot_Jobs(t *testing.T) {
	fx := newCLIFixture(t)

	args := fx.args("--jobs", "3", "-f", "upper")

	var paths []string
	for i := range 6 {
		p := fx.file(t, fmt.Sprintf("f%d.txt", i), fmt.Sprintf("file %d", i))
		paths = append(paths, p)
		args = append(args, "-i", p)
	}

	_, _, err := executeCommand(args...)
	require.NoError(t, err)

	for i, p := range paths {
		assert.Equal(t, fmt.Sprintf("FILE %d", i), testsupport.ReadFile(t, p))
	}

	fx.assertNoScratch(t)
}

func TestRoot_JobsFailureLeavesFilesUntouched(t *testing.T) {
	fx := newCLIFixture(t)
	a := fx.file(t, "a.txt", "a")
	b := fx.file(t, "b.txt", "b")

	_, _, err := executeCommand(fx.args("--jobs", "2", "-f", "boom", "-i", a, "-i", b)...)
	require.Error(t, err)
	assert.Equal(t, 4, exitCode(t, err))
	assert.Equal(t, "a", testsupport.ReadFile(t, a))
	assert.Equal(t, "b", testsupport.ReadFile(t, b))
	fx.assertNoScratch(t)
}

func TestRoot_Timeout(t *testing.T) {
	fx := newCLIFixture(t)
	p := fx.file(t, "notes.txt", "keep")

	_, _, err := executeCommand(fx.args("--timeout", "200ms", "-f", "slow", "-i", p)...)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, exitCode(t, err))
	assert.Equal(t, "keep", testsupport.ReadFile(t, p))

	var filterErr *filter.ExitError
	require.ErrorAs(t, err, &filterErr)
	assert.Contains(t, string(filterErr.Stderr), "timeout")
}

func TestRoot_Lock(t *testing.T) {
	fx := newCLIFixture(t)
	p := fx.file(t, "notes.txt", "abc")

	_, _, err := executeCommand(fx.args("--lock", "-f", "upper", "-i", p)...)
	require.NoError(t, err)
	assert.Equal(t, "ABC", testsupport.ReadFile(t, p))
}

func TestRoot_Caller(t *testing.T) {
	fx := newCLIFixture(t)
	p := fx.file(t, "notes.txt", "abc")

	_, _, err := executeCommand(fx.args("--caller", "sh", "-f", "upper", "-i", p)...)
	require.NoError(t, err)
	assert.Equal(t, "ABC", testsupport.ReadFile(t, p))
}

// ---------------------------------------------------------------------------
// Configuration sources
// ---------------------------------------------------------------------------

func TestRoot_FilterDirFromEnv(t *testing.T) {
	fx := newCLIFixture(t)
	t.Setenv("FF_FILTERDIR", fx.filters)
	t.Setenv("FF_WORKDIR", fx.work)

	stdout, _, err := executeCommandWithInput("env", "-f", "upper")
	require.NoError(t, err)
	assert.Equal(t, "ENV", stdout)
	fx.assertNoScratch(t)
}

func TestRoot_FlagOverridesEnv(t *testing.T) {
	fx := newCLIFixture(t)
	t.Setenv("FF_FILTERDIR", t.TempDir())

	stdout, _, err := executeCommandWithInput("flag", fx.args("-f", "upper")...)
	require.NoError(t, err)
	assert.Equal(t, "FLAG", stdout)
}

func TestRoot_ProgressFromEnv(t *testing.T) {
	fx := newCLIFixture(t)
	t.Setenv("FF_PROGRESS", "true")

	_, stderr, err := executeCommandWithInput("x", fx.args("-f", "cat")...)
	require.NoError(t, err)
	assert.Equal(t, "STDIN: cat\n", stderr)
}

func TestRoot_WorkDirMustExist(t *testing.T) {
	fx := newCLIFixture(t)

	_, _, err := executeCommandWithInput("x", "--filterdir", fx.filters, "--workdir", filepath.Join(fx.work, "missing"), "-f", "cat")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, exitCode(t, err))
}

// ---------------------------------------------------------------------------
// Chain files
// ---------------------------------------------------------------------------

func TestRoot_ChainFileRunsFirst(t *testing.T) {
	fx := newCLIFixture(t)
	chainPath := fx.file(t, "chain.yaml", "filters:\n  - reverse\n")
	p := fx.file(t, "notes.txt", "ab")

	_, _, err := executeCommand(fx.args("--chain", chainPath, "-f", "bang", "-i", p)...)
	require.NoError(t, err)
	assert.Equal(t, "ba!", testsupport.ReadFile(t, p))
}

func TestRoot_ChainFileTOML(t *testing.T) {
	fx := newCLIFixture(t)
	chainPath := fx.file(t, "chain.toml", "filters = [\"upper\", \"bang\"]\n")

	stdout, _, err := executeCommandWithInput("x", fx.args("--chain", chainPath)...)
	require.NoError(t, err)
	assert.Equal(t, "X!", stdout)
}

func TestRoot_ChainFileInvalid(t *testing.T) {
	fx := newCLIFixture(t)
	chainPath := fx.file(t, "chain.yaml", "filters: [upper]\nunknown: true\n")

	_, _, err := executeCommandWithInput("x", fx.args("--chain", chainPath)...)
	require.Error(t, err)
	assert.Equal(t, ExitUsage, exitCode(t, err))
}

func TestRoot_ChainFileVersionGate(t *testing.T) {
	fx := newCLIFixture(t)
	chainPath := fx.file(t, "chain.yaml", "requires: not-a-constraint\nfilters: [upper]\n")

	_, _, err := executeCommandWithInput("x", fx.args("--chain", chainPath)...)
	require.Error(t, err)
	assert.Equal(t, ExitUsage, exitCode(t, err))
	assert.Contains(t, err.Error(), "constraint")
}

// ---------------------------------------------------------------------------
// Full process entry
// ---------------------------------------------------------------------------

func TestRun_MultiValueFlags(t *testing.T) {
	fx := newCLIFixture(t)
	a := fx.file(t, "a.txt", "ab")
	b := fx.file(t, "b.txt", "cd")

	var stdout, stderr bytes.Buffer

	args := fx.args("-f", "upper", "reverse", "-i", a, b)
	code := run(context.Background(), args, strings.NewReader(""), &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	assert.Equal(t, "BA", testsupport.ReadFile(t, a))
	assert.Equal(t, "DC", testsupport.ReadFile(t, b))
}

func TestRun_PathsWithCommasAreNotSplit(t *testing.T) {
	fx := newCLIFixture(t)
	p := fx.file(t, "a,b.txt", "hello")

	var stdout, stderr bytes.Buffer

	code := run(context.Background(), fx.args("-f", "upper", "-i", p), strings.NewReader(""), &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Equal(t, "HELLO", testsupport.ReadFile(t, p))
}

func TestRun_ArgFile(t *testing.T) {
	fx := newCLIFixture(t)
	p := fx.file(t, "notes.txt", "abc")
	argFile := fx.file(t, "args.txt", strings.Join(fx.args("-f", "upper", "-i", p), "\n")+"\n")

	var stdout, stderr bytes.Buffer

	code := run(context.Background(), []string{"@" + argFile}, strings.NewReader(""), &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Equal(t, "ABC", testsupport.ReadFile(t, p))
}

func TestRun_FilterFailureExitCodeAndStderr(t *testing.T) {
	fx := newCLIFixture(t)
	p := fx.file(t, "notes.txt", "abc")

	var stdout, stderr bytes.Buffer

	code := run(context.Background(), fx.args("-f", "boom", "-i", p), strings.NewReader(""), &stdout, &stderr)
	assert.Equal(t, 4, code)
	assert.Contains(t, stderr.String(), `filter "boom" failed with exit code 4`)
	assert.True(t, strings.HasSuffix(stderr.String(), "\nboom: bad input\n"), stderr.String())
	assert.Equal(t, "abc", testsupport.ReadFile(t, p))
}

func TestRun_StartFailureExitCode(t *testing.T) {
	fx := newCLIFixture(t)

	var stdout, stderr bytes.Buffer

	code := run(context.Background(), fx.args("-f", "absent-filter"), strings.NewReader("x"), &stdout, &stderr)
	assert.Equal(t, ExitStartFailure, code)
	assert.Contains(t, stderr.String(), "absent-filter")
	assert.Contains(t, stderr.String(), "could not be started")
}

func TestRun_CancelledContext(t *testing.T) {
	fx := newCLIFixture(t)
	p := fx.file(t, "notes.txt", "keep")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var stdout, stderr bytes.Buffer

	code := run(ctx, fx.args("-f", "upper", "-i", p), strings.NewReader(""), &stdout, &stderr)
	assert.Equal(t, ExitInterrupted, code)
	assert.Equal(t, "keep", testsupport.ReadFile(t, p))
	fx.assertNoScratch(t)
}

// ---------------------------------------------------------------------------
// classify
// ---------------------------------------------------------------------------

func TestClassify(t *testing.T) {
	spec := filter.Spec{Path: "f"}

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"exit code propagated", &filter.ExitError{Spec: spec, Code: 3}, 3},
		{"killed maps to failure", &filter.ExitError{Spec: spec, Code: -1}, ExitFailure},
		{"start failure", &filter.StartError{Spec: spec, Err: os.ErrNotExist}, ExitStartFailure},
		{"wrapped exit code", fmt.Errorf("a.txt: stage 2: %w", &filter.ExitError{Spec: spec, Code: 9}), 9},
		{"existing exit error kept", &ExitError{Code: ExitUsage, Err: assert.AnError}, ExitUsage},
		{"other", assert.AnError, ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(t, classify(tt.err)))
		})
	}

	assert.NoError(t, classify(nil))
}
