package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tutu-network/trail/internal/api"
	"github.com/tutu-network/trail/internal/daemon"
	"github.com/tutu-network/trail/internal/domain"
)

// run executes the root command with args and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	defer resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

// resetFlags restores every flag to its default so runs do not leak state.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// initConfig writes a config under a temp TRAIL_HOME and returns its path.
func initConfig(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("TRAIL_HOME", home)
	path := filepath.Join(home, "config.toml")
	if _, err := run(t, "config", "init", "--config", path); err != nil {
		t.Fatalf("config init: %v", err)
	}
	return path
}

func TestConfigInit(t *testing.T) {
	path := initConfig(t)

	cfg, err := daemon.LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.API.JWTSecret == "" {
		t.Error("config init should generate a secret")
	}

	if _, err := run(t, "config", "init", "--config", path); err == nil {
		t.Error("second init without --force should fail")
	}
	if _, err := run(t, "config", "init", "--config", path, "--force"); err != nil {
		t.Errorf("init --force: %v", err)
	}
}

func TestConfigShow_MasksSecret(t *testing.T) {
	path := initConfig(t)
	cfg, _ := daemon.LoadConfig(path)

	out, err := run(t, "config", "show", "--config", path)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(out, cfg.API.JWTSecret) {
		t.Error("secret should be masked")
	}
	if !strings.Contains(out, "[api]") {
		t.Errorf("output missing [api] section:\n%s", out)
	}

	out, err = run(t, "config", "show", "--config", path, "--reveal")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, cfg.API.JWTSecret) {
		t.Error("--reveal should print the secret")
	}
}

func TestToken(t *testing.T) {
	path := initConfig(t)
	cfg, _ := daemon.LoadConfig(path)

	out, err := run(t, "token", "alice", "--config", path, "--ttl", "1h")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	auth, err := api.NewAuthenticator(cfg.API.JWTSecret, cfg.API.Admin)
	if err != nil {
		t.Fatal(err)
	}
	sub, err := auth.Verify(strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if sub != "alice" {
		t.Errorf("sub = %q, want alice", sub)
	}
}

func TestToken_NoSecret(t *testing.T) {
	t.Setenv("TRAIL_HOME", t.TempDir())
	if _, err := run(t, "token", "alice"); err == nil {
		t.Error("expected error without a configured secret")
	}
}

func TestBallotCommands(t *testing.T) {
	path := initConfig(t)

	out, err := run(t, "ballot", "list", "--config", path)
	if err != nil {
		t.Fatalf("ballot list: %v", err)
	}
	if !strings.Contains(out, "No ballots.") {
		t.Errorf("empty list output = %q", out)
	}

	// Seed the SQLite ledger the way the server would.
	cfg, _ := daemon.LoadConfig(path)
	ctx := context.Background()
	d, err := daemon.New(ctx, cfg)
	if err != nil {
		t.Fatal(err)
	}
	vote := domain.NewSymbol("VOTE", 0)
	if _, err := d.Engine.NewRegistry(ctx, "alice", domain.NewAsset(1000, vote), domain.AccessPublic); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Engine.NewBallot(ctx, "treasury", domain.CatProposal, "alice", "VOTE", domain.MethodOneTokenOneVote, []string{"yes", "no"}); err != nil {
		t.Fatal(err)
	}
	if err := d.Engine.ReadyBallot(ctx, "alice", "treasury", time.Now().Add(72*time.Hour)); err != nil {
		t.Fatal(err)
	}
	d.Close()

	out, err = run(t, "ballot", "list", "--config", path, "--status", "voting")
	if err != nil {
		t.Fatalf("ballot list: %v", err)
	}
	if !strings.Contains(out, "treasury") || !strings.Contains(out, "1token1vote") {
		t.Errorf("list output:\n%s", out)
	}

	out, err = run(t, "ballot", "list", "--config", path, "--status", "closed")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "No ballots.") {
		t.Errorf("closed filter output:\n%s", out)
	}

	out, err = run(t, "ballot", "show", "treasury", "--config", path)
	if err != nil {
		t.Fatalf("ballot show: %v", err)
	}
	for _, want := range []string{"treasury", "alice", "voting", "yes", "no"} {
		if !strings.Contains(out, want) {
			t.Errorf("show output missing %q:\n%s", want, out)
		}
	}

	if _, err := run(t, "ballot", "show", "missing", "--config", path); err == nil {
		t.Error("show of a missing ballot should fail")
	}

	out, err = run(t, "stats", "--config", path)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if !strings.Contains(out, "Registries:  1") || !strings.Contains(out, "(1 open)") {
		t.Errorf("stats output:\n%s", out)
	}
}

func TestServe_BadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[api]\nport = \"many\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, "serve", "--config", path); err == nil {
		t.Error("serve should fail on an invalid config")
	}
}
