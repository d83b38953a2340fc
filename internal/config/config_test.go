package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	conf, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:5002", conf.Gate.Listen)
	require.Equal(t, BackendLocal, conf.Ledger.Backend)
	require.Equal(t, uint64(200000), conf.Ethereum.GasLimit)
	require.Equal(t, 2*time.Second, conf.Ethereum.PollInterval)

	policy := conf.RetryPolicy()
	require.Equal(t, 30*time.Second, policy.CallTimeout)
	require.Equal(t, uint64(3), policy.MaxRetries)
	require.Equal(t, 250*time.Millisecond, policy.InitialInterval)
	require.Equal(t, 4*time.Second, policy.MaxInterval)
}

func TestFileAndEnvironment(t *testing.T) {
	file := filepath.Join(t.TempDir(), "zkgate.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
gate:
  id: front-door
  listen: 0.0.0.0:8080
retry:
  maxRetries: 5
  callTimeout: 3s
log:
  level: debug
`), 0644))

	t.Setenv("ZKGATE_GATE_LISTEN", "127.0.0.1:9000")
	t.Setenv("ZKGATE_RETRY_MAXINTERVAL", "10s")

	conf, err := Load(file)
	require.NoError(t, err)
	require.Equal(t, "front-door", conf.Gate.ID)
	require.Equal(t, "127.0.0.1:9000", conf.Gate.Listen)
	require.Equal(t, uint64(5), conf.Retry.MaxRetries)
	require.Equal(t, 3*time.Second, conf.Retry.CallTimeout)
	require.Equal(t, 10*time.Second, conf.Retry.MaxInterval)

	logger := logrus.New()
	require.NoError(t, conf.ConfigureLogger(logger))
	require.Equal(t, logrus.DebugLevel, logger.GetLevel())
}

func TestMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Setenv("ZKGATE_LEDGER_BACKEND", "paper")
	_, err := Load("")
	require.Error(t, err)

	t.Setenv("ZKGATE_LEDGER_BACKEND", BackendEthereum)
	_, err = Load("")
	require.Error(t, err, "ethereum backend without a contract address")

	t.Setenv("ZKGATE_ETHEREUM_CONTRACT", "0x5FbDB2315678afecb367f032d93F642f64180aa3")
	conf, err := Load("")
	require.NoError(t, err)
	require.Equal(t, BackendEthereum, conf.Ledger.Backend)
}

func TestConfigureLoggerInvalid(t *testing.T) {
	conf, err := Load("")
	require.NoError(t, err)

	conf.Log.Level = "loud"
	require.Error(t, conf.ConfigureLogger(logrus.New()))

	conf.Log.Level = "warn"
	conf.Log.Format = "xml"
	require.Error(t, conf.ConfigureLogger(logrus.New()))

	conf.Log.Format = "json"
	logger := logrus.New()
	require.NoError(t, conf.ConfigureLogger(logger))
	require.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)
}
