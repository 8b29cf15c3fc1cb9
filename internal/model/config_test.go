package model

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	def := DefaultAppConfig()
	assert.Equal(t, def.API, cfg.API)
	assert.Equal(t, "ATHENA.MIT.EDU", cfg.Webathena.Realm)
	assert.Equal(t, []string{"moira", "moira7.mit.edu"}, cfg.Webathena.Principal)
	assert.Equal(t, 50, cfg.History.Keep)
	assert.Equal(t, 993, cfg.Probe.Port)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`api:
  base_url: https://staging.example.edu/api/v1/
  timeout_sec: 5
history:
  keep: -1
probe:
  port: 1993
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "https://staging.example.edu/api/v1", cfg.API.BaseURL, "trailing slash trimmed")
	assert.Equal(t, 5, cfg.API.TimeoutSec)
	assert.Equal(t, 50, cfg.History.Keep, "non-positive keep falls back")
	assert.Equal(t, 1993, cfg.Probe.Port)
	assert.Equal(t, "https://webathena.mit.edu", cfg.Webathena.Host)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("MAILTO_API_BASE_URL", "http://localhost:8080/api")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/api", cfg.API.BaseURL)
}

func TestLoadConfigRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api: [unclosed"), 0o600))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultAppConfig()
	cfg.API.BaseURL = "https://mailto.example.edu/api"
	cfg.History.Keep = 7
	require.NoError(t, SaveConfig(path, cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.API.BaseURL, loaded.API.BaseURL)
	assert.Equal(t, 7, loaded.History.Keep)
	assert.Equal(t, cfg.Webathena.Principal, loaded.Webathena.Principal)
}

func TestParseSession(t *testing.T) {
	s, err := ParseSession([]byte(`{"cname":{"nameType":1,"nameString":["bob"]},"key":{"keytype":18}}`))
	require.NoError(t, err)
	assert.Equal(t, "bob", s.Username())
	assert.Equal(t, "bob@mit.edu", s.Email())
	assert.JSONEq(t, `{"cname":{"nameType":1,"nameString":["bob"]},"key":{"keytype":18}}`, string(s.Raw()))

	_, err = ParseSession([]byte(`{"cname":{"nameString":[]}}`))
	assert.ErrorIs(t, err, ErrNoPrincipal)

	_, err = ParseSession([]byte(`not json`))
	assert.Error(t, err)
}

func TestStatusModified(t *testing.T) {
	cases := []struct {
		in   string
		ok   bool
		want time.Time
	}{
		{"2014-03-02T17:04:05", true, time.Date(2014, 3, 2, 17, 4, 5, 0, time.Local)},
		{"2014-03-02T17:04:05.250000", true, time.Date(2014, 3, 2, 17, 4, 5, 250000000, time.Local)},
		{"", false, time.Time{}},
		{"yesterday", false, time.Time{}},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, ok := Status{ModTime: tc.in}.Modified()
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.True(t, tc.want.Equal(got), "got %v", got)
			}
		})
	}
}

func TestKindJSONAndParse(t *testing.T) {
	var b Mailbox
	require.NoError(t, b.UnmarshalJSON([]byte(`{"type":"imap","address":" a@PO1.MIT.EDU ","enabled":true}`)))
	assert.Equal(t, KindIMAP, b.Kind)
	assert.Equal(t, "a@PO1.MIT.EDU", b.Address)

	require.NoError(t, b.UnmarshalJSON([]byte(`{"type":"CARRIER_PIGEON","address":"x@y.z"}`)))
	assert.Equal(t, Kind(""), b.Kind)

	k, err := ParseKind("external")
	require.NoError(t, err)
	assert.Equal(t, KindSMTP, k)

	_, err = ParseKind("fax")
	assert.Error(t, err)
}
