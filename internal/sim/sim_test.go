package sim

import (
	"bytes"
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soypat/lcsp"
	"github.com/soypat/lcsp/port"
)

func TestNodeRun(t *testing.T) {
	for _, randKind := range []string{randXorshift, randChaCha} {
		t.Run(randKind, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Rand = randKind
			cfg.Packets = 2000
			node, err := NewNode(cfg, nil)
			require.NoError(t, err)

			rep := node.Run(rand.New(rand.NewSource(1)))
			assert.Equal(t, cfg.Packets, rep.Sent+rep.NoBuffer)
			assert.Positive(t, rep.Rejected, "max_port+1 destinations should be rejected")
			total := rep.Table.Delivered + rep.Table.Callbacks + rep.Table.Dropped
			assert.EqualValues(t, rep.Sent, total)
			require.Len(t, rep.Bindings, len(cfg.Bindings))

			// Wildcard binding catches everything not bound concretely.
			var wildcard BindingReport
			for _, b := range rep.Bindings {
				if b.Port == "any" {
					wildcard = b
				}
			}
			assert.Equal(t, port.KindQueue.String(), wildcard.Kind)
			assert.Positive(t, wildcard.Received)

			require.NoError(t, node.Close())
			assert.Empty(t, node.Table().Bindings(nil))
			pool := node.Pool()
			assert.Zero(t, pool.InUse, "all buffers returned")
			assert.Zero(t, pool.BadFrees)
		})
	}
}

func TestNodeBindErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Bindings = []Binding{
		{Port: PortSpec{Port: 5}, Kind: kindQueue},
		{Port: PortSpec{Port: 5}, Kind: kindCallback},
	}
	_, err := NewNode(cfg, nil)
	assert.ErrorIs(t, err, lcsp.ErrPortInUse)

	cfg.Capacity = 1
	cfg.Bindings = []Binding{
		{Port: PortSpec{Port: 5}, Kind: kindQueue},
		{Port: PortSpec{Port: 6}, Kind: kindQueue},
	}
	_, err = NewNode(cfg, nil)
	assert.ErrorIs(t, err, lcsp.ErrOutOfSlots)

	cfg.Capacity = 4
	cfg.MaxPort = 9
	cfg.Bindings = []Binding{{Port: PortSpec{Port: 10}, Kind: kindQueue}}
	_, err = NewNode(cfg, nil)
	assert.ErrorIs(t, err, lcsp.ErrInvalidPort)
}

func TestNodeDynamicBindings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Capacity = 8
	cfg.MaxPort = 31
	cfg.Bindings = nil
	for i := 0; i < 4; i++ {
		cfg.Bindings = append(cfg.Bindings, Binding{Port: PortSpec{Dynamic: true, Port: lcsp.PortUnset}, Kind: kindQueue})
	}
	node, err := NewNode(cfg, nil)
	require.NoError(t, err)
	seen := map[string]bool{}
	for _, b := range node.bindingReports() {
		assert.False(t, seen[b.Port], "dynamic port %s allocated twice", b.Port)
		seen[b.Port] = true
	}
	assert.Len(t, seen, 4)
}

func TestRootCommand(t *testing.T) {
	var out, errOut bytes.Buffer
	root := NewRootCommand()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs([]string{"run", "--json", "-n", "100", "--seed", "3", "--rand", "chacha"})
	require.NoError(t, root.Execute())

	var rep Report
	require.NoError(t, json.Unmarshal(out.Bytes(), &rep))
	assert.Equal(t, 100, rep.Sent+rep.NoBuffer)

	out.Reset()
	root = NewRootCommand()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs([]string{"ports"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "PORT")
	assert.Contains(t, out.String(), "callback")

	root = NewRootCommand()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs([]string{"run", "--rand", "dice"})
	assert.Error(t, root.Execute())
}
