package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/switchyard/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const adminHex = "0x0000000000000000000000000000000000000ad1"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "switchyard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SWITCHYARD_WORKFLOW_ADMIN", adminHex)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "default", cfg.Workflow.Name)
	assert.Equal(t, domain.MustAddress(adminHex), cfg.Workflow.Admin)
	assert.True(t, cfg.Workflow.EngineAddress.IsZero())
	assert.Equal(t, 2*time.Second, cfg.Workflow.HookBudget)
	assert.Equal(t, 5*time.Second, cfg.Workflow.ValidatorTimeout)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.Nil(t, cfg.Bootstrap)
}

func TestLoad_MissingAdmin(t *testing.T) {
	_, err := Load("")
	assert.ErrorContains(t, err, "workflow.admin is required")
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
workflow:
  name: orders
  admin: "`+adminHex+`"
  hook_budget: 500ms
server:
  callers:
    - {address: "0x00000000000000000000000000000000000000a1", secret: alice-secret}
mcp:
  caller: "0x00000000000000000000000000000000000000a1"
storage:
  driver: sqlite
  sqlite:
    path: /tmp/orders.db
targets:
  - address: "0x00000000000000000000000000000000000000c1"
    kind: http
    url: http://oracle.local/validate
    secret: s3cret
  - address: "0x000000000000000000000000000000000000aa01"
    kind: process
    command: ./notify.sh
    args: ["--quiet"]
bootstrap:
  states: [INITIAL, PENDING, APPROVED]
  edges:
    - {from: INITIAL, to: PENDING}
    - {from: PENDING, to: APPROVED}
  grants:
    - {account: "0x00000000000000000000000000000000000000a1", role: REVIEWER}
  transitions:
    - id: 1
      from: [INITIAL]
    - id: 2
      from: [PENDING]
      role: REVIEWER
      rule:
        kind: timelock
        min_delay: "2030-01-01T00:00:00Z"
  hooks:
    - {id: 1, phase: post, target: "0x000000000000000000000000000000000000aa01"}
  initial: INITIAL
`)
	t.Setenv("SWITCHYARD_SERVER_PORT", "9090")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "orders", cfg.Workflow.Name)
	assert.Equal(t, 500*time.Millisecond, cfg.Workflow.HookBudget)
	assert.Equal(t, 9090, cfg.Server.Port, "environment overrides the file")
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, "/tmp/orders.db", cfg.Storage.SQLite.Path)

	alice := domain.MustAddress("0x00000000000000000000000000000000000000a1")
	assert.Equal(t, map[domain.Address]string{alice: "alice-secret"}, cfg.Server.CallerSecrets())
	assert.Equal(t, 5*time.Minute, cfg.Server.SignatureMaxAge)
	assert.Equal(t, alice, cfg.MCP.Caller)

	require.Len(t, cfg.Targets, 2)
	assert.Equal(t, TargetHTTP, cfg.Targets[0].Kind)
	assert.Equal(t, domain.MustAddress("0x00000000000000000000000000000000000000c1"), cfg.Targets[0].Address)
	assert.Equal(t, []string{"--quiet"}, cfg.Targets[1].Args)

	def := cfg.Bootstrap
	require.NotNil(t, def)
	assert.Equal(t, []domain.StateID{
		domain.NewStateID("INITIAL"), domain.NewStateID("PENDING"), domain.NewStateID("APPROVED"),
	}, def.States)
	assert.Equal(t, domain.Edge{From: domain.NewStateID("INITIAL"), To: domain.NewStateID("PENDING")}, def.Edges[0])
	assert.Equal(t, domain.NewRole("REVIEWER"), def.Grants[0].Role)

	require.Len(t, def.Transitions, 2)
	tr := def.Transitions[1]
	assert.Equal(t, domain.TransitionID(2), tr.ID)
	assert.Equal(t, domain.NewRole("REVIEWER"), tr.Role)
	require.NotNil(t, tr.Rule)
	assert.Equal(t, domain.RuleTimelock, tr.Rule.Kind)
	assert.True(t, tr.Rule.MinDelay.Equal(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.Nil(t, def.Transitions[0].Rule)

	require.Len(t, def.Hooks, 1)
	assert.Equal(t, domain.PhasePost, def.Hooks[0].Phase)
	assert.Equal(t, domain.NewStateID("INITIAL"), def.Initial)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Workflow: WorkflowConfig{
				Name:             "orders",
				Admin:            domain.MustAddress(adminHex),
				HookBudget:       time.Second,
				ValidatorTimeout: time.Second,
			},
			MCP:     MCPConfig{Transport: "stdio"},
			Storage: StorageConfig{Driver: DriverMemory},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown driver", func(c *Config) { c.Storage.Driver = "etcd" }, "storage.driver"},
		{"redis without addr", func(c *Config) { c.Storage.Driver = DriverRedis }, "storage.redis.addr"},
		{"bad transport", func(c *Config) { c.MCP.Transport = "ws" }, "mcp.transport"},
		{"sse caller without token", func(c *Config) {
			c.MCP = MCPConfig{Transport: "sse", Caller: domain.MustAddress(adminHex)}
		}, "mcp.token is required"},
		{"caller without secret", func(c *Config) {
			c.Server.Callers = []CallerConfig{{Address: domain.MustAddress(adminHex)}}
		}, "secret is required"},
		{"duplicate caller", func(c *Config) {
			cc := CallerConfig{Address: domain.MustAddress(adminHex), Secret: "s"}
			c.Server.Callers = []CallerConfig{cc, cc}
		}, "duplicate address"},
		{"http target without url", func(c *Config) {
			c.Targets = []TargetConfig{{Address: domain.MustAddress(adminHex), Kind: TargetHTTP}}
		}, "url is required"},
		{"duplicate target", func(c *Config) {
			tc := TargetConfig{Address: domain.MustAddress(adminHex), Kind: TargetProcess, Command: "true"}
			c.Targets = []TargetConfig{tc, tc}
		}, "duplicate address"},
		{"unknown initial", func(c *Config) {
			c.Bootstrap = &domain.Definition{Initial: domain.NewStateID("NOPE")}
		}, "initial state"},
		{"duplicate state", func(c *Config) {
			s := domain.NewStateID("A")
			c.Bootstrap = &domain.Definition{States: []domain.StateID{s, s}}
		}, domain.ErrDuplicateState.Error()},
		{"edge to unknown state", func(c *Config) {
			s := domain.NewStateID("A")
			c.Bootstrap = &domain.Definition{
				States: []domain.StateID{s},
				Edges:  []domain.Edge{{From: s, To: domain.NewStateID("B")}},
			}
		}, "unknown state"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			assert.ErrorContains(t, c.Validate(), tt.want)
		})
	}
}
