package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trialscout/trial-matcher/internal/catalog"
	"github.com/trialscout/trial-matcher/internal/domain"
	"github.com/trialscout/trial-matcher/internal/extraction"
	"github.com/trialscout/trial-matcher/internal/feedback"
	"github.com/trialscout/trial-matcher/internal/service"
	"github.com/trialscout/trial-matcher/internal/setup"
)

const lungPatient = `{
  "age": 62,
  "sex": "female",
  "stage": "IV",
  "ecog": "1",
  "biomarkers": {
    "EGFR": {"status": "present", "mutation": "Exon 19 deletion"},
    "ALK": "absent",
    "ROS1": "absent",
    "KRAS": {"status": "absent"},
    "MET": {"status": "absent"},
    "BRAF": "absent",
    "PDL1": {"status": "unknown"}
  },
  "prior_treatments": [{"category": "targeted_therapy", "name": "osimertinib"}],
  "line_of_therapy": "post_targeted"
}`

const breastReport = `SURGICAL PATHOLOGY REPORT
58 year old female. Invasive ductal carcinoma, left breast, stage IV.
ER positive (95%), PR positive (60%), HER2 IHC 1+. Ki-67 20%.`

const breastAnswer = `{
  "cancer_type": "breast",
  "patient_demographics": {"age": 58, "sex": "female"},
  "clinical_status": {"stage": "IV", "ecog": "unknown"},
  "biomarkers": {
    "ER": {"status": "present"},
    "PR": {"status": "present"},
    "HER2": {"status": "unknown", "ihc_score": "1+"}
  }
}`

type fakeLLM struct{ answer string }

func (f *fakeLLM) GenerateJSON(context.Context, string) (string, error) { return f.answer, nil }
func (f *fakeLLM) Close() error                                          { return nil }

type testCLI struct {
	app     *cli
	dataDir string
}

func newTestCLI(t *testing.T) *testCLI {
	t.Helper()
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv(DatabaseURLEnv, "")
	t.Setenv("TRIALSCOUT_LOG_LEVEL", "error")
	return &testCLI{app: newCLI(), dataDir: t.TempDir()}
}

// run executes one command line against a fresh command tree
func (c *testCLI) run(args ...string) (string, error) {
	root := c.app.rootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--data-dir", c.dataDir}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func decode[T any](t *testing.T, out string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(out), &v), out)
	return v
}

func TestMatchCommand(t *testing.T) {
	c := newTestCLI(t)
	patient := writeFile(t, "patient.json", lungPatient)

	out, err := c.run("match", "--patient", patient, "--cancer-type", "lung")
	require.NoError(t, err)

	resp := decode[domain.MatchingResponse](t, out)
	assert.Equal(t, domain.LUNG, resp.Context.Patient.CancerType, "--cancer-type fills the missing field")
	assert.Equal(t, 10, resp.Context.TotalTrials)
	assert.NotEmpty(t, resp.Matches)
}

func TestMatchCommand_Errors(t *testing.T) {
	c := newTestCLI(t)

	_, err := c.run("match")
	assert.ErrorContains(t, err, `required flag(s) "patient" not set`)

	_, err = c.run("match", "--patient", filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "failed to open patient file")

	young := strings.Replace(lungPatient, `"age": 62`, `"age": 15`, 1)
	_, err = c.run("match", "--patient", writeFile(t, "young.json", young), "--cancer-type", "lung")
	assert.ErrorContains(t, err, "age")

	_, err = c.run("match", "--patient", writeFile(t, "p.json", lungPatient), "--sqlite", "a.db", "--postgres", "postgres://x")
	assert.Error(t, err, "catalog flags are mutually exclusive")
}

func TestCheckCommand(t *testing.T) {
	c := newTestCLI(t)
	withType := strings.Replace(lungPatient, `"age": 62`, `"age": 62, "cancer_type": "lung"`, 1)
	patient := writeFile(t, "patient.json", withType)

	out, err := c.run("check", "--patient", patient, "--nct", "nct05234567")
	require.NoError(t, err)
	check := decode[service.ExclusionCheck](t, out)
	assert.True(t, check.Excluded)
	assert.Equal(t, "NCT05234567", check.NCTNumber)

	_, err = c.run("check", "--patient", patient, "--nct", "NCT00000000")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSeedAndTrialsCommands(t *testing.T) {
	c := newTestCLI(t)

	out, err := c.run("seed")
	require.NoError(t, err)
	assert.Equal(t, catalog.SeedResult{Inserted: 20}, decode[catalog.SeedResult](t, out))

	out, err = c.run("seed")
	require.NoError(t, err)
	assert.Equal(t, catalog.SeedResult{Skipped: 20}, decode[catalog.SeedResult](t, out), "seeding twice is harmless")

	dbPath := filepath.Join(c.dataDir, "trials.db")
	out, err = c.run("trials", "--sqlite", dbPath, "--cancer-type", "breast")
	require.NoError(t, err)
	assert.Len(t, decode[[]domain.Trial](t, out), 10)

	out, err = c.run("trials", "nct05894239")
	require.NoError(t, err)
	assert.Equal(t, "NCT05894239", decode[domain.Trial](t, out).NCTNumber)

	_, err = c.run("trials", "--status", "paused")
	var verr *domain.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestMigrateCommand_RequiresURL(t *testing.T) {
	c := newTestCLI(t)
	_, err := c.run("migrate", "up")
	assert.ErrorContains(t, err, DatabaseURLEnv)
}

func TestExtractCommand(t *testing.T) {
	c := newTestCLI(t)
	report := writeFile(t, "report.txt", breastReport)

	out, err := c.run("extract", "--file", report, "--text-only")
	require.NoError(t, err)
	text := decode[service.TextResult](t, out)
	assert.Equal(t, 3, text.LineCount)

	_, err = c.run("extract", "--file", report)
	assert.ErrorContains(t, err, "needs an API key")

	c.app.newLLM = func(context.Context, string, string) (extraction.Client, error) {
		return &fakeLLM{answer: breastAnswer}, nil
	}
	out, err = c.run("extract", "--file", report, "--api-key", "test-key")
	require.NoError(t, err)
	result := decode[service.BiomarkerResult](t, out)
	require.NotNil(t, result.PatientProfile)
	assert.Equal(t, domain.HER2_LOW, result.PatientProfile.Biomarkers.Breast.HER2)

	_, err = c.run("extract", "--file", writeFile(t, "scan.png", "\x89PNG\r\n\x1a\n"), "--text-only")
	assert.ErrorIs(t, err, domain.ErrUnsupportedDocument)
}

func TestFeedbackCommands(t *testing.T) {
	c := newTestCLI(t)
	ctx := context.Background()

	dbPath := filepath.Join(c.dataDir, "feedback.db")
	require.NoError(t, os.MkdirAll(c.dataDir, 0755))
	store, err := feedback.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, &feedback.Feedback{NCTNumber: "NCT05894239", Outcome: feedback.OutcomeEnrolled}))
	require.NoError(t, store.Close())

	exportPath := filepath.Join(t.TempDir(), "out", "feedback.json")
	_, err = c.run("export-feedback", "--out", exportPath)
	require.NoError(t, err)

	data, err := os.ReadFile(exportPath)
	require.NoError(t, err)
	export := decode[feedback.FeedbackExport](t, string(data))
	assert.Equal(t, 1, export.Count)

	out, err := c.run("import-feedback", "--in", exportPath)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"imported": 0, "skipped": 1}, decode[map[string]int](t, out))

	other := filepath.Join(t.TempDir(), "other.db")
	out, err = c.run("import-feedback", "--in", exportPath, "--sqlite", other)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"imported": 1, "skipped": 0}, decode[map[string]int](t, out))

	out, err = c.run("export-feedback", "--sqlite", other)
	require.NoError(t, err)
	assert.Contains(t, out, "NCT05894239")
}

func TestSetupCommands(t *testing.T) {
	c := newTestCLI(t)
	configPath := filepath.Join(t.TempDir(), "claude_desktop_config.json")
	binary := writeFile(t, "mcp-server", "#!/bin/sh\n")
	require.NoError(t, os.Chmod(binary, 0755))

	_, err := c.run("setup", "status", "--config", configPath)
	assert.ErrorContains(t, err, "issue")

	out, err := c.run("setup", "claude-desktop", "--config", configPath, "--binary", binary)
	require.NoError(t, err)
	assert.Contains(t, out, configPath)

	out, err = c.run("setup", "status", "--config", configPath)
	require.NoError(t, err)
	status := decode[setup.Status](t, out)
	assert.True(t, status.Registered)
	assert.Equal(t, c.dataDir, status.DataDir)
}
