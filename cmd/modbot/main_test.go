package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const channelDoc = `{
	"id": "degen",
	"ownerId": 3,
	"active": true,
	"inclusionRuleSet": {
		"active": true,
		"target": "all",
		"rule": {"type": "CONDITION", "name": "hasMinFollowers", "args": {"minFollowers": 50}},
		"actions": [{"type": "like"}]
	}
}`

const castsDoc = `[
	{"hash": "0x01", "text": "gm", "author": {"fid": 7, "username": "alice", "follower_count": 100}},
	{"hash": "0x02", "text": "gm", "author": {"fid": 8, "username": "bob", "follower_count": 3}},
	{"hash": "0x03", "text": "gm", "author": {"fid": 3, "username": "owner"}}
]`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := newApp(&out).Run(append([]string{"modbot"}, args...))
	return out.String(), err
}

func TestValidateCommand(t *testing.T) {
	out, err := run(t, "validate", "--channel", writeFile(t, "channel.json", channelDoc))
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if !strings.Contains(out, "/degen is valid") {
		t.Errorf("Unexpected output: %q", out)
	}

	bad := strings.Replace(channelDoc, "hasMinFollowers", "noSuchRule", 1)
	if _, err := run(t, "validate", "--channel", writeFile(t, "bad.json", bad)); err == nil {
		t.Error("Expected an error for an unknown rule")
	}
}

func TestSimulateCommand(t *testing.T) {
	out, err := run(t, "simulate",
		"--channel", writeFile(t, "channel.json", channelDoc),
		"--casts", writeFile(t, "casts.json", castsDoc),
	)
	if err != nil {
		t.Fatalf("simulate failed: %v", err)
	}

	for _, want := range []string{"0x01", "0x02", "hideQuietly: 1", "like: 2", "@owner is the channel owner"} {
		if !strings.Contains(out, want) {
			t.Errorf("Output missing %q:\n%s", want, out)
		}
	}
}

func TestSimulateCommandJSON(t *testing.T) {
	out, err := run(t, "simulate", "--json",
		"--channel", writeFile(t, "channel.json", channelDoc),
		"--casts", writeFile(t, "casts.json", castsDoc),
	)
	if err != nil {
		t.Fatalf("simulate failed: %v", err)
	}
	if !strings.Contains(out, `"channelId": "degen"`) || !strings.Contains(out, `"sim-`) {
		t.Errorf("Unexpected JSON report:\n%s", out)
	}
}

func TestSimulateCommandRequiresFlags(t *testing.T) {
	if _, err := run(t, "simulate", "--channel", writeFile(t, "channel.json", channelDoc)); err == nil {
		t.Error("Expected an error without --casts")
	}
}
