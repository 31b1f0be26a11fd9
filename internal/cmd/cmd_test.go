package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auscope/vgljobs/internal/config"
)

const seedYAML = `
series:
  - id: 5432
    user: user@example.org
    name: Gravity survey
    description: Series of gravity inversions.
jobs:
  - id: 1235
    series_id: 5432
    name: Inversion
    description: Gravity inversion over the selected region.
    user: user@example.org
    email_address: user@example.org
    status: Active
    submit_date: "20130101_120000"
    selection_min_easting: 1.0
    selection_max_easting: 2.0
    selection_min_northing: 3.0
    selection_max_northing: 4.0
    output_bucket: vgl-outputs
    output_base_key: jobs/1235
`

const insertOK = `<?xml version="1.0" encoding="UTF-8"?>
<csw:TransactionResponse xmlns:csw="http://www.opengis.net/cat/csw/2.0.2" xmlns:dc="http://purl.org/dc/elements/1.1/">
  <csw:TransactionSummary><csw:totalInserted>1</csw:totalInserted></csw:TransactionSummary>
  <csw:InsertResult><csw:BriefRecord><dc:identifier>rec-1235</dc:identifier></csw:BriefRecord></csw:InsertResult>
</csw:TransactionResponse>`

// testEnv points the CLI at a temp job store, a file storage root, and
// optionally a fake catalog.
type testEnv struct {
	dir        string
	catalogURL string
	inserts    *atomic.Int32
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv(config.ConfigFileEnv, "")

	outputs := filepath.Join(dir, "outputs", "vgl-outputs", "jobs", "1235")
	require.NoError(t, os.MkdirAll(outputs, 0o755))
	for name, body := range map[string]string{"a.txt": "alpha", "b.nc": "bravo!", "c.log": "charlie"} {
		require.NoError(t, os.WriteFile(filepath.Join(outputs, name), []byte(body), 0o644))
	}

	inserts := &atomic.Int32{}
	catalog := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inserts.Add(1)
		w.Header().Set("Content-Type", "application/xml")
		_, _ = io.WriteString(w, insertOK)
	}))
	t.Cleanup(catalog.Close)

	t.Setenv("VGLJOBS_DATABASE_DRIVER", "sqlite")
	t.Setenv("VGLJOBS_DATABASE_PATH", filepath.Join(dir, "jobs.db"))
	t.Setenv("VGLJOBS_STORAGE_PROVIDER", "file")
	t.Setenv("VGLJOBS_STORAGE_BASE_DIR", filepath.Join(dir, "outputs"))
	t.Setenv("VGLJOBS_CATALOG_URL", catalog.URL+"/geonetwork")
	t.Setenv("VGLJOBS_CATALOG_REQUESTS_PER_SECOND", "0")
	t.Setenv("VGLJOBS_MAIL_ENABLED", "false")

	return &testEnv{dir: dir, catalogURL: catalog.URL + "/geonetwork", inserts: inserts}
}

func (e *testEnv) seed(t *testing.T) {
	t.Helper()
	path := filepath.Join(e.dir, "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o600))
	out, err := runCLI(t, "jobs", "import", path)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 1 series, 1 jobs")
}

func resetFlags() {
	configFile, verbose, logLevel = "", false, ""
	registerDryRun, registerFormat = false, formatYAML
	jobsFormat = formatYAML
	serveHost, servePort = "", 0
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetIn(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSetVersionInfo(t *testing.T) {
	orig := versionInfo
	t.Cleanup(func() { versionInfo = orig })

	SetVersionInfo("1.0.0", "abc123", "2024-01-15")
	assert.Equal(t, "1.0.0", versionInfo.Version)
	assert.Equal(t, "abc123", versionInfo.Commit)
	assert.Equal(t, "2024-01-15", versionInfo.BuildDate)

	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "vgljobs 1.0.0 (commit abc123")
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(errors.New("plain")))

	err := exitError(foundry.ExitInvalidArgument, "Invalid job id", errors.New("bad"))
	assert.Equal(t, int(foundry.ExitInvalidArgument), ExitCode(err))
	assert.Contains(t, err.Error(), "Invalid job id: bad")

	wrapped := errors.Join(errors.New("context"), err)
	assert.Equal(t, int(foundry.ExitInvalidArgument), ExitCode(wrapped))
}

func TestParseJobID(t *testing.T) {
	id, err := parseJobID("1235")
	require.NoError(t, err)
	assert.Equal(t, int64(1235), id)

	for _, raw := range []string{"", "abc", "12abc", "0", "-1"} {
		_, err := parseJobID(raw)
		assert.Error(t, err, raw)
		assert.Equal(t, int(foundry.ExitInvalidArgument), ExitCode(err), raw)
	}
}

func TestJobsImportAndShow(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	out, err := runCLI(t, "jobs", "show", "1235", "--format", "json")
	require.NoError(t, err)

	var view jobView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, int64(1235), view.ID)
	assert.Equal(t, int64(5432), view.SeriesID)
	assert.Equal(t, "Active", view.Status)
	assert.Equal(t, "20130101_120000", view.SubmitDate)
	assert.Empty(t, view.RegisteredURL)

	_, err = runCLI(t, "jobs", "show", "999")
	require.Error(t, err)
	assert.Equal(t, int(foundry.ExitInvalidArgument), ExitCode(err))
}

func TestJobsSeries(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	out, err := runCLI(t, "jobs", "series", "5432", "--format", "json")
	require.NoError(t, err)

	var view struct {
		ID   int64     `json:"id"`
		Name string    `json:"name"`
		Jobs []jobView `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, int64(5432), view.ID)
	assert.Equal(t, "Gravity survey", view.Name)
	require.Len(t, view.Jobs, 1)
	assert.Equal(t, int64(1235), view.Jobs[0].ID)

	_, err = runCLI(t, "jobs", "series", "999")
	require.Error(t, err)
	assert.Equal(t, int(foundry.ExitInvalidArgument), ExitCode(err))
}

func TestRegisterDryRun(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	out, err := runCLI(t, "register", "1235", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "Gravity survey: Inversion")
	assert.Contains(t, out, "west: 1")
	assert.Contains(t, out, "north: 4")
	assert.Contains(t, out, "jobs/1235/b.nc")
	assert.Equal(t, int32(0), env.inserts.Load())

	_, err = runCLI(t, "register", "1235", "--dry-run", "--format", "xml")
	require.Error(t, err)
	assert.Equal(t, int(foundry.ExitInvalidArgument), ExitCode(err))
}

func TestRegisterAndStatus(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	out, err := runCLI(t, "register", "1235")
	require.NoError(t, err)
	url := strings.TrimSpace(out)
	assert.Equal(t, env.catalogURL+"/srv/eng/catalog.search#/metadata/rec-1235", url)
	assert.Equal(t, int32(1), env.inserts.Load())

	out, err = runCLI(t, "jobs", "show", "1235", "--format", "json")
	require.NoError(t, err)
	var view jobView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, url, view.RegisteredURL)

	// A second registration is rejected before the catalog is called.
	_, err = runCLI(t, "register", "1235")
	require.Error(t, err)
	assert.Equal(t, int(foundry.ExitInvalidArgument), ExitCode(err))
	assert.Equal(t, int32(1), env.inserts.Load())

	out, err = runCLI(t, "status", "1235", "Done")
	require.NoError(t, err)
	assert.Equal(t, "1235: Active -> Done\n", out)

	out, err = runCLI(t, "jobs", "audit", "1235", "--format", "json")
	require.NoError(t, err)
	var trail []auditView
	require.NoError(t, json.Unmarshal([]byte(out), &trail))
	require.Len(t, trail, 1)
	assert.Equal(t, auditView{From: "Active", To: "Done", Message: "Job status updated.", CreatedAt: trail[0].CreatedAt}, trail[0])
}

func TestRegister_UnknownJob(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	_, err := runCLI(t, "register", "777")
	require.Error(t, err)
	assert.Equal(t, int(foundry.ExitInvalidArgument), ExitCode(err))
	assert.Equal(t, int32(0), env.inserts.Load())
}

func TestRegister_CatalogDown(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	t.Cleanup(down.Close)
	t.Setenv("VGLJOBS_CATALOG_URL", down.URL)

	_, err := runCLI(t, "register", "1235")
	require.Error(t, err)
	assert.Equal(t, int(foundry.ExitExternalServiceUnavailable), ExitCode(err))

	out, err := runCLI(t, "jobs", "show", "1235", "--format", "json")
	require.NoError(t, err)
	assert.NotContains(t, out, "registered_url")
}

func TestSelectFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "selection.xml")
	require.NoError(t, os.WriteFile(path, []byte(`<files>
  <file><fileUrl>http://example.org/a.rnx</fileUrl></file>
  <file><fileUrl>http://example.org/b.rnx</fileUrl></file>
</files>`), 0o600))

	out, err := runCLI(t, "select-files", path)
	require.NoError(t, err)
	assert.Equal(t, "http://example.org/a.rnx\nhttp://example.org/b.rnx\n", out)

	_, err = runCLI(t, "select-files", filepath.Join(dir, "missing.xml"))
	assert.Equal(t, int(foundry.ExitFileNotFound), ExitCode(err))

	require.NoError(t, os.WriteFile(path, []byte(`<files/>`), 0o600))
	_, err = runCLI(t, "select-files", path)
	assert.Equal(t, int(foundry.ExitInvalidArgument), ExitCode(err))
}

func TestMigrate(t *testing.T) {
	newTestEnv(t)
	out, err := runCLI(t, "migrate")
	require.NoError(t, err)
	assert.Equal(t, "migrated sqlite job store\n", out)
}

func TestMaskAccessKey(t *testing.T) {
	assert.Equal(t, "****", maskAccessKey("abc"))
	assert.Equal(t, "****WXYZ", maskAccessKey("AKIAABCDWXYZ"))
}
