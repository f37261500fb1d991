package env

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/spilink/pkg/bus"
)

func lookupIn(vars map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		val, ok := vars[name]
		return val, ok
	}
}

func newFlags(t *testing.T, args ...string) *flag.FlagSet {
	conf := builtinConfig
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	conf.BindFlags(fs)
	fs.Bool("logtostderr", false, "unrelated flag")
	require.NoError(t, fs.Parse(args))
	return fs
}

func writeFile(t *testing.T, content string) string {
	fn := filepath.Join(t.TempDir(), "spilink.yaml")
	require.NoError(t, os.WriteFile(fn, []byte(content), 0644))
	return fn
}

func TestLoadDefaults(t *testing.T) {
	conf, err := load(newFlags(t), lookupIn(map[string]string{"SPILINK_ID": "b0"}))
	require.NoError(t, err)
	require.Equal(t, "tcp://:5560", conf.Listen)
	require.Equal(t, "tcp://10.3.141.106:5561", conf.Peer)
	require.Equal(t, "raw", conf.Framing)
	require.Equal(t, 5*time.Second, conf.Cadence)
	require.Equal(t, int64(500000), conf.SPIClock)
	require.Equal(t, "b0", conf.ID)
}

func TestLoadPrecedence(t *testing.T) {
	fn := writeFile(t, `
listen: tcp://:6000
peer: tcp://10.0.0.2:6001
framing: line
cadence: 1s
spi-mode: 2
id: from-file
`)
	fs := newFlags(t, "-config", fn, "-cadence", "250ms", "-logtostderr")
	conf, err := load(fs, lookupIn(map[string]string{
		"SPILINK_PEER":     "tcp://10.0.0.3:6001",
		"SPILINK_CADENCE":  "2s",
		"SPILINK_SPI_MODE": "1",
	}))
	require.NoError(t, err)
	require.Equal(t, "tcp://:6000", conf.Listen)
	require.Equal(t, "tcp://10.0.0.3:6001", conf.Peer)
	require.Equal(t, "line", conf.Framing)
	require.Equal(t, 250*time.Millisecond, conf.Cadence)
	require.Equal(t, 1, conf.SPIMode)
	require.Equal(t, "from-file", conf.ID)
	require.Equal(t, fn, conf.ConfigFile)
}

func TestLoadConfigFileFromEnv(t *testing.T) {
	fn := writeFile(t, "framing: length\nid: x\n")
	conf, err := load(newFlags(t), lookupIn(map[string]string{"SPILINK_CONFIG": fn}))
	require.NoError(t, err)
	require.Equal(t, "length", conf.Framing)
}

func TestLoadErrors(t *testing.T) {
	testCases := []struct {
		name string
		args []string
		vars map[string]string
		file string
	}{
		{name: "bad env duration", vars: map[string]string{"SPILINK_CADENCE": "soon"}},
		{name: "bad env int", vars: map[string]string{"SPILINK_SPI_CLOCK": "fast"}},
		{name: "unknown framing", args: []string{"-framing", "xml"}},
		{name: "bad listen", args: []string{"-listen", "udp://:1"}},
		{name: "bad peer", args: []string{"-peer", "localhost"}},
		{name: "zero cadence", args: []string{"-cadence", "0s"}},
		{name: "bad SPI mode", args: []string{"-spi-mode", "4"}},
		{name: "bad SPI clock", args: []string{"-spi-clock", "0"}},
		{name: "unknown file field", file: "bogus: 1\n"},
		{name: "missing file", args: []string{"-config", "/nonexistent/spilink.yaml"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			args := append([]string{"-id", "b0"}, tc.args...)
			if tc.file != "" {
				args = append(args, "-config", writeFile(t, tc.file))
			}
			_, err := load(newFlags(t, args...), lookupIn(tc.vars))
			require.Error(t, err)
		})
	}
}

func TestSimSkipsSPIValidation(t *testing.T) {
	conf, err := load(newFlags(t, "-spi", "sim", "-spi-mode", "9", "-id", "b0"), lookupIn(nil))
	require.NoError(t, err)
	b, err := conf.OpenBus()
	require.NoError(t, err)
	defer b.Close()
	require.IsType(t, &bus.Sim{}, b)
}

func TestPeerOptions(t *testing.T) {
	conf, err := load(newFlags(t, "-framing", "length", "-connect-timeout", "3s", "-id", "b0"), lookupIn(nil))
	require.NoError(t, err)
	opts := conf.PeerOptions()
	require.Equal(t, "length", string(opts.Framing))
	require.Equal(t, 3*time.Second, opts.ConnectTimeout)
}
