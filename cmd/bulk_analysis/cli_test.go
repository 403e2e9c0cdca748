package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajaypag/guest-post-workflow-sub004/internal/api/apitest"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/config"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/types"
)

func seedRecords() []types.DomainRecord {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return []types.DomainRecord{
		{ID: "d1", ProjectID: "p1", Domain: "alpha.com", QualificationStatus: types.StatusPending, CreatedAt: now, UpdatedAt: now},
		{ID: "d2", ProjectID: "p1", Domain: "beta.com", QualificationStatus: types.StatusHighQuality, CreatedAt: now.Add(time.Hour), UpdatedAt: now},
		{ID: "d3", ProjectID: "p1", Domain: "gamma.com", QualificationStatus: types.StatusGoodQuality, HasWorkflow: true, CreatedAt: now.Add(2 * time.Hour), UpdatedAt: now},
		{ID: "x1", ProjectID: "p2", Domain: "shared.com", QualificationStatus: types.StatusMarginalQuality, CreatedAt: now, UpdatedAt: now},
	}
}

// cliEnv isolates a test from the developer's environment and points the
// CLI at a fake backend through a config file.
func cliEnv(t *testing.T) (*apitest.Backend, string) {
	t.Helper()
	for _, key := range []string{
		config.EnvAPIBaseURL, config.EnvUserID, config.EnvAPIToken, config.EnvDatabaseURL, config.EnvJWTSecret,
	} {
		t.Setenv(key, "")
	}

	backend := apitest.New(seedRecords()...)
	t.Cleanup(backend.Close)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	cfg := `{
  "api_base_url": "` + backend.URL() + `",
  "project_id": "p1",
  "user_id": "u1",
  "poll_interval_ms": 100,
  "requests_per_second": 1000,
  "log_level": "error"
}`
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0644))
	return backend, path
}

func run(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", configPath}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestList(t *testing.T) {
	_, cfg := cliEnv(t)

	tests := []struct {
		name    string
		args    []string
		want    []string
		notWant []string
	}{
		{
			name: "every domain",
			args: []string{"list"},
			want: []string{"alpha.com", "beta.com", "gamma.com", "3 of 3 matching", "3 domains in project"},
		},
		{
			name:    "status filter",
			args:    []string{"list", "--status", "high_quality,good-quality"},
			want:    []string{"beta.com", "gamma.com", "2 of 2 matching"},
			notWant: []string{"alpha.com"},
		},
		{
			name:    "workflow filter",
			args:    []string{"list", "--workflow", "no_workflow", "--search", "ALPHA"},
			want:    []string{"alpha.com", "1 of 1 matching"},
			notWant: []string{"beta.com"},
		},
		{
			name:    "page size",
			args:    []string{"list", "--sort", "domain", "--order", "asc", "--limit", "1"},
			want:    []string{"alpha.com", "2 more not shown"},
			notWant: []string{"beta.com"},
		},
		{
			name: "all pages",
			args: []string{"list", "--limit", "1", "--all"},
			want: []string{"alpha.com", "beta.com", "gamma.com"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, cfg, tt.args...)
			require.NoError(t, err)
			for _, w := range tt.want {
				assert.Contains(t, out, w)
			}
			for _, w := range tt.notWant {
				assert.NotContains(t, out, w)
			}
		})
	}
}

func TestList_Errors(t *testing.T) {
	_, cfg := cliEnv(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "bad status", args: []string{"list", "--status", "great"}, want: "unknown qualification status"},
		{name: "bad sort", args: []string{"list", "--sort", "size"}, want: "unknown sort key"},
		{name: "bad workflow", args: []string{"list", "--workflow", "maybe"}, want: "unknown workflow filter"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, cfg, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNoProject(t *testing.T) {
	_, cfg := cliEnv(t)
	// An empty project flag leaves the file's project in place, so use a
	// config without one.
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	data, err := os.ReadFile(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte(strings.Replace(string(data), `"project_id": "p1",`, "", 1)), 0644))

	_, err = run(t, path, "list")
	assert.ErrorIs(t, err, errNoProject)
}

func TestStatus(t *testing.T) {
	t.Run("single domain with notes", func(t *testing.T) {
		backend, cfg := cliEnv(t)
		out, err := run(t, cfg, "status", "d1", "--set", "good-quality", "--notes", "solid")
		require.NoError(t, err)
		assert.Contains(t, out, "Marked alpha.com as Good Quality")

		rec, ok := backend.Domain("d1")
		require.True(t, ok)
		assert.Equal(t, types.StatusGoodQuality, rec.QualificationStatus)
		assert.Equal(t, "solid", rec.Notes)
	})

	t.Run("status only keeps existing notes", func(t *testing.T) {
		backend, cfg := cliEnv(t)
		_, err := run(t, cfg, "status", "d1", "--set", "good-quality", "--notes", "solid")
		require.NoError(t, err)
		_, err = run(t, cfg, "status", "d1", "--set", "marginal-quality")
		require.NoError(t, err)

		rec, _ := backend.Domain("d1")
		assert.Equal(t, types.StatusMarginalQuality, rec.QualificationStatus)
		assert.Equal(t, "solid", rec.Notes)
	})

	t.Run("several domains in bulk", func(t *testing.T) {
		backend, cfg := cliEnv(t)
		out, err := run(t, cfg, "status", "d1", "d2", "--set", "disqualified")
		require.NoError(t, err)
		assert.Contains(t, out, "Updated 2 domains to Disqualified")
		assert.Equal(t, 1, backend.Count(apitest.RouteBulkUpdate))
	})

	t.Run("notes need a single domain", func(t *testing.T) {
		_, cfg := cliEnv(t)
		_, err := run(t, cfg, "status", "d1", "d2", "--set", "disqualified", "--notes", "x")
		assert.Error(t, err)
	})

	t.Run("status flag is required", func(t *testing.T) {
		_, cfg := cliEnv(t)
		_, err := run(t, cfg, "status", "d1")
		assert.Error(t, err)
	})
}

func TestDeleteAndMove(t *testing.T) {
	backend, cfg := cliEnv(t)

	_, err := run(t, cfg, "delete", "d1")
	require.NoError(t, err)
	_, ok := backend.Domain("d1")
	assert.False(t, ok)

	_, err = run(t, cfg, "move", "d2", "--to", "p2")
	require.NoError(t, err)
	rec, ok := backend.Domain("d2")
	require.True(t, ok)
	assert.Equal(t, "p2", rec.ProjectID)
}

func TestAnalyze(t *testing.T) {
	t.Run("runs to completion", func(t *testing.T) {
		backend, cfg := cliEnv(t)
		out, err := run(t, cfg, "analyze", "d1", "d2", "-k", "guest post,seo")
		require.NoError(t, err)
		assert.Contains(t, out, "Submitted analysis job")
		assert.Equal(t, 1, backend.Count(apitest.RouteSubmitAnalysis))
	})

	t.Run("failed job exits with an error", func(t *testing.T) {
		backend, cfg := cliEnv(t)
		backend.QueueJob(types.BulkJob{Status: types.JobStatusFailed, Error: "quota exhausted"})
		_, err := run(t, cfg, "analyze", "d1", "-k", "seo")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "quota exhausted")
	})

	t.Run("needs targets", func(t *testing.T) {
		_, cfg := cliEnv(t)
		_, err := run(t, cfg, "analyze", "-k", "seo")
		assert.Error(t, err)
	})

	t.Run("needs keywords", func(t *testing.T) {
		_, cfg := cliEnv(t)
		_, err := run(t, cfg, "analyze", "d1")
		assert.Error(t, err)
	})

	t.Run("pending preset", func(t *testing.T) {
		backend, cfg := cliEnv(t)
		backend.SetSmartFilters(types.SmartFilters{AllPendingDataForSeo: []string{"d1", "d3"}})
		_, err := run(t, cfg, "analyze", "--pending", "-k", "seo")
		require.NoError(t, err)

		var submitted []apitest.Request
		for _, r := range backend.Requests() {
			if r.Route == apitest.RouteSubmitAnalysis {
				submitted = append(submitted, r)
			}
		}
		require.Len(t, submitted, 1)
		assert.Contains(t, string(submitted[0].Body), `"d3"`)
	})
}

func TestQualify(t *testing.T) {
	backend, cfg := cliEnv(t)
	_, err := run(t, cfg, "qualify", "d1")
	require.NoError(t, err)
	assert.Equal(t, 1, backend.Count(apitest.RouteSubmitQualify))
}

func TestAdd(t *testing.T) {
	t.Run("duplicates left out without a decision", func(t *testing.T) {
		backend, cfg := cliEnv(t)
		out, err := run(t, cfg, "add", "alpha.com", "new.com", "https://www.shared.com/")
		require.NoError(t, err)
		assert.Contains(t, out, "3 candidates: 1 created, 1 already in project, 1 in other projects")
		assert.Contains(t, out, "shared.com")
		assert.Contains(t, out, "Duplicates were not added")
		assert.Empty(t, backend.Resolved())
	})

	t.Run("one decision for every duplicate", func(t *testing.T) {
		backend, cfg := cliEnv(t)
		_, err := run(t, cfg, "add", "shared.com", "--on-duplicate", "keep_both")
		require.NoError(t, err)
		resolved := backend.Resolved()
		require.Len(t, resolved, 1)
		require.Len(t, resolved[0].Resolutions, 1)
		assert.Equal(t, types.ResolutionKeepBoth, resolved[0].Resolutions[0].Resolution)
		assert.Equal(t, "x1", resolved[0].Resolutions[0].ExistingDomainID)
	})

	t.Run("resolutions file and domains file", func(t *testing.T) {
		backend, cfg := cliEnv(t)
		dir := t.TempDir()
		domains := filepath.Join(dir, "domains.txt")
		require.NoError(t, os.WriteFile(domains, []byte("shared.com\nfresh.org, other.net\n"), 0644))
		resolutions := filepath.Join(dir, "resolutions.json")
		require.NoError(t, os.WriteFile(resolutions, []byte(`[{"domain":"shared.com","resolution":"move_to_new"}]`), 0644))

		out, err := run(t, cfg, "add", "--file", domains, "--resolutions", resolutions)
		require.NoError(t, err)
		assert.Contains(t, out, "3 candidates: 2 created")
		require.Len(t, backend.Resolved(), 1)
		assert.Equal(t, types.ResolutionMoveToNew, backend.Resolved()[0].Resolutions[0].Resolution)
	})

	t.Run("submission file", func(t *testing.T) {
		backend, cfg := cliEnv(t)
		path := filepath.Join(t.TempDir(), "submission.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"domains":["brand-new.io"],"manualKeywords":["seo"],"metadata":{"source":"outreach"}}`), 0644))

		_, err := run(t, cfg, "add", "--submission", path, "--target-page", "tp1")
		require.NoError(t, err)
		created := backend.Created()
		require.Len(t, created, 1)
		assert.Equal(t, []string{"brand-new.io"}, created[0].Domains)
		assert.Equal(t, []string{"tp1"}, created[0].TargetPageIDs)
		assert.Equal(t, "outreach", created[0].Metadata["source"])
	})

	t.Run("submission file without domains", func(t *testing.T) {
		_, cfg := cliEnv(t)
		path := filepath.Join(t.TempDir(), "submission.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"manualKeywords":["seo"]}`), 0644))

		_, err := run(t, cfg, "add", "--submission", path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "submission file")
	})

	t.Run("unknown decision", func(t *testing.T) {
		_, cfg := cliEnv(t)
		_, err := run(t, cfg, "add", "shared.com", "--on-duplicate", "merge")
		assert.Error(t, err)
	})
}

func TestWorkflows(t *testing.T) {
	t.Run("requires a client", func(t *testing.T) {
		_, cfg := cliEnv(t)
		_, err := run(t, cfg, "workflows", "d2")
		assert.Error(t, err)
	})

	t.Run("creates for qualified domains", func(t *testing.T) {
		backend, cfg := cliEnv(t)
		out, err := run(t, cfg, "--client", "c1", "workflows", "d1", "d2", "d3")
		require.NoError(t, err)
		assert.Contains(t, out, "Created 1 workflows")
		assert.Contains(t, out, "Skipped 2 domains")
		assert.Equal(t, 1, backend.Count(apitest.RouteCreateWorkflow))
	})

	t.Run("every creation failed", func(t *testing.T) {
		backend, cfg := cliEnv(t)
		backend.FailWorkflowFor("d2")
		_, err := run(t, cfg, "--client", "c1", "workflows", "d2")
		assert.Error(t, err)
	})
}

func TestExport(t *testing.T) {
	_, cfg := cliEnv(t)
	dir := t.TempDir()

	path := filepath.Join(dir, "out", "qualified.csv")
	out, err := run(t, cfg, "export", "--status", "high_quality", "--out", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote "+path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"beta.com"`)
	assert.NotContains(t, string(data), "alpha.com")

	xlsx := filepath.Join(dir, "all.xlsx")
	_, err = run(t, cfg, "export", "--format", "xlsx", "--out", xlsx)
	require.NoError(t, err)
	info, err := os.Stat(xlsx)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	_, err = run(t, cfg, "export", "--format", "pdf")
	assert.Error(t, err)
}

func TestJobs_NeedsDatabase(t *testing.T) {
	_, cfg := cliEnv(t)
	_, err := run(t, cfg, "jobs")
	assert.ErrorIs(t, err, errNoDatabase)
}

func TestRootCmd_RegistersCommands(t *testing.T) {
	want := []string{"add", "analyze", "clusters", "delete", "export", "jobs", "list", "move", "qualify", "serve", "status", "workflows"}

	first, second := newRootCmd(), newRootCmd()
	var names []string
	for _, cmd := range first.Commands() {
		names = append(names, cmd.Name())
	}
	assert.ElementsMatch(t, want, names)
	assert.Len(t, second.Commands(), len(want))
	assert.NotSame(t, first.Commands()[0], second.Commands()[0], "each root builds its own commands")
}

func TestServerConfig(t *testing.T) {
	_, cfg := cliEnv(t)
	g := &globalFlags{configPath: cfg, clientID: "c1"}
	root := newRootCmd()
	a, err := newApp(context.Background(), root, g, appOptions{metrics: true})
	require.NoError(t, err)
	defer a.close()

	sc := a.serverConfig(9090)
	assert.Equal(t, 9090, sc.Port)
	assert.Equal(t, "u1", sc.DefaultUserID)
	assert.Nil(t, sc.History, "no journal means a nil interface")
	assert.Nil(t, sc.JWT)
	assert.NotNil(t, sc.Metrics)

	c, err := sc.Sessions("p1", "", "u1", nil)
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Reload(context.Background()))
	assert.Equal(t, 3, c.Store().Len())
}
