package cmd_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/chimera/cmd"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := cmd.NewRootCommand("1.2.3")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "chimera version 1.2.3\n", out)
}

func TestToken(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "")
	path := writeConfig(t, "auth:\n  jwt_secret: s3cret\n")

	out, err := execute(t, "--config", path, "token", "agent-7", "--ttl", "1h")
	require.NoError(t, err)

	claims := &jwt.RegisteredClaims{}
	_, err = jwt.ParseWithClaims(strings.TrimSpace(out), claims, func(*jwt.Token) (any, error) {
		return []byte("s3cret"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "agent-7", claims.Subject)
}

func TestToken_NoSecret(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "")
	path := writeConfig(t, "service:\n  port: 8110\n")

	_, err := execute(t, "--config", path, "token", "agent-7")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.jwt_secret is not set")
}

func TestInvalidConfig(t *testing.T) {
	t.Setenv("GENERATION_WRITER", "")
	path := writeConfig(t, "generation:\n  writer: telepathy\n")

	_, err := execute(t, "--config", path, "token", "agent-7")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generation.writer")
}

func TestMigrate_RejectsDirection(t *testing.T) {
	_, err := execute(t, "migrate", "sideways")
	require.Error(t, err)
}
