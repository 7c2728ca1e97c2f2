package integration_tests

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwobiora/oncoflow/internal/app"
	"github.com/cwobiora/oncoflow/internal/testutil"
)

// Test for: artifacts flow between stages through declared output paths and
// the run leaves a completion marker per stage plus a journal.
func TestCoreExecution_LinearPipelineProducesArtifacts(t *testing.T) {
	// --- Arrange ---
	files := map[string]string{
		"pipeline/main.hcl": `
stage "caller" {
  command = ["/bin/sh", "-c", "printf 'chr1\t100\nchr2\t250\n' > ${artifact.vcf}"]
  output "vcf" { path = "calls/variants.vcf" }
}

stage "burden" {
  command = ["/bin/sh", "-c", "wc -l < ${artifact.vcf} > ${artifact.tmb}"]
  output "tmb" { path = "tmb/score.txt" }
}
`,
	}

	// --- Act ---
	result := testutil.RunPipelineTest(t, files, nil)

	// --- Assert ---
	require.NoError(t, result.Err)
	assert.True(t, result.MarkerExists("stage.caller"))
	assert.True(t, result.MarkerExists("stage.burden"))

	score, err := os.ReadFile(filepath.Join(result.Workdir, "tmb", "score.txt"))
	require.NoError(t, err)
	assert.Equal(t, "2", strings.TrimSpace(string(score)))

	_, err = os.Stat(filepath.Join(result.Workdir, "journal.db"))
	assert.NoError(t, err)
}

// Test for: per-sample stages expand into one instance per manifest pair and
// a cross barrier aggregates all of them.
func TestCoreExecution_PerSampleExpansionAndCrossBarrier(t *testing.T) {
	// --- Arrange ---
	files := map[string]string{
		"samples.yaml": `
samples:
  - id: P01
    tumour: /data/P01_Tumour
    normal: /data/P01_Normal
  - id: P02
    tumour: /data/P02_Tumour
    normal: /data/P02_Normal
`,
		"pipeline/main.hcl": `
stage "fit" {
  per_sample = true
  command    = ["/bin/sh", "-c", "echo ${sample.id} > ${artifact.fit_out}"]
  output "fit_out" { path = "fit/${sample.id}/out.txt" }
}

stage "cohort_summary" {
  inputs  = [artifact.fit_out]
  command = ["/bin/sh", "-c", "cat ${workdir}/fit/*/out.txt > ${artifact.summary}"]
  output "summary" { path = "summary/cohort.txt" }
  barrier {
    arity = 2
    join  = "cross"
  }
}
`,
	}
	mut := func(cfg *app.Config) {
		cfg.SamplesPath = filepath.Join(filepath.Dir(cfg.PipelinePath), "samples.yaml")
	}

	// --- Act ---
	result := testutil.RunPipelineTest(t, files, mut)

	// --- Assert ---
	require.NoError(t, result.Err)
	assert.True(t, result.MarkerExists("stage.fit[P01]"))
	assert.True(t, result.MarkerExists("stage.fit[P02]"))
	assert.True(t, result.MarkerExists("stage.cohort_summary"))

	summary, err := os.ReadFile(filepath.Join(result.Workdir, "summary", "cohort.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(summary), "P01")
	assert.Contains(t, string(summary), "P02")
}

// Test for: declared env values reach the stage process.
func TestCoreExecution_EnvInjection(t *testing.T) {
	// --- Arrange ---
	files := map[string]string{
		"pipeline/main.hcl": `
stage "annotate" {
  command = ["/bin/sh", "-c", "printf '%s' \"$ASSEMBLY\" > ${artifact.out}"]
  env = {
    ASSEMBLY = "hg38"
  }
  output "out" { path = "annotate/assembly.txt" }
}
`,
	}

	// --- Act ---
	result := testutil.RunPipelineTest(t, files, nil)

	// --- Assert ---
	require.NoError(t, result.Err)
	out, err := os.ReadFile(filepath.Join(result.Workdir, "annotate", "assembly.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hg38", string(out))
}

// Test for: every stage writes its process output to a per-stage log file.
func TestCoreExecution_PerStageLogs(t *testing.T) {
	// --- Arrange ---
	files := map[string]string{
		"pipeline/main.hcl": `
stage "chatty" {
  command = ["/bin/sh", "-c", "echo to-stdout; echo to-stderr >&2; touch ${artifact.out}"]
  output "out" { path = "chatty/done.txt" }
}
`,
	}

	// --- Act ---
	result := testutil.RunPipelineTest(t, files, nil)

	// --- Assert ---
	require.NoError(t, result.Err)
	logData, err := os.ReadFile(filepath.Join(result.Workdir, "logs", "stage.chatty.log"))
	require.NoError(t, err)
	assert.Contains(t, string(logData), "to-stdout")
	assert.Contains(t, string(logData), "to-stderr")
}
