package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwobiora/oncoflow/internal/config"
	"github.com/cwobiora/oncoflow/internal/graph"
)

func sampleNode() *graph.Node {
	return &graph.Node{
		ID:        "stage.fit_model[P01]",
		StageName: "fit_model",
		SampleID:  "P01",
		Image:     "sequenza:3.0",
		Command:   []string{"fit.sh", "/work/run/P01/bins.seqz.gz"},
		Env:       map[string]string{"THREADS": "4", "ASSEMBLY": "hg38"},
		Resources: config.ResourceSpec{Cpus: 4, MemoryMB: 8192},
		Inputs: []graph.Artifact{
			{Name: "reference", Path: "/data/ref/hg38.fa"},
			{Name: "bins", Path: "/work/run/P01/bins.seqz.gz"},
		},
		Outputs: []graph.Artifact{{Name: "segments", Path: "/work/run/P01/segments.txt"}},
	}
}

func TestBuildArgv_Local(t *testing.T) {
	argv, err := buildArgv(config.RuntimeLocal, "/work/run", sampleNode())
	require.NoError(t, err)
	assert.Equal(t, []string{"fit.sh", "/work/run/P01/bins.seqz.gz"}, argv)
}

func TestBuildArgv_Docker(t *testing.T) {
	argv, err := buildArgv(config.RuntimeDocker, "/work/run", sampleNode())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"docker", "run", "--rm",
		"--cpus", "4",
		"--memory", "8192m",
		"-v", "/work/run:/work/run:rw",
		"-v", "/data/ref/hg38.fa:/data/ref/hg38.fa:ro",
		"-e", "ASSEMBLY=hg38",
		"-e", "THREADS=4",
		"sequenza:3.0",
		"fit.sh", "/work/run/P01/bins.seqz.gz",
	}, argv)
}

func TestBuildArgv_Singularity(t *testing.T) {
	argv, err := buildArgv(config.RuntimeSingularity, "/work/run", sampleNode())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"singularity", "exec", "--contain",
		"--bind", "/work/run:/work/run:rw",
		"--bind", "/data/ref/hg38.fa:/data/ref/hg38.fa:ro",
		"--env", "ASSEMBLY=hg38",
		"--env", "THREADS=4",
		"sequenza:3.0",
		"fit.sh", "/work/run/P01/bins.seqz.gz",
	}, argv)
}

func TestBuildArgv_UnknownRuntime(t *testing.T) {
	_, err := buildArgv(config.RuntimeKind("podman"), "/work/run", sampleNode())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown runtime")
}

func TestReadOnlyBinds_DedupesAndSkipsWorkdir(t *testing.T) {
	node := &graph.Node{
		Inputs: []graph.Artifact{
			{Name: "a", Path: "/data/ref/hg38.fa"},
			{Name: "b", Path: "/data/ref/hg38.fa"},
			{Name: "c", Path: "/work/run/upstream/out.txt"},
			{Name: "d", Path: "/data/annot/vep"},
		},
	}
	binds := readOnlyBinds("/work/run", node)
	assert.Equal(t, []string{"/data/annot/vep", "/data/ref/hg38.fa"}, binds)
}
