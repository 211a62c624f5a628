package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorWritesTextfile(t *testing.T) {
	c := New()
	c.CaseDone(OutcomeOK)
	c.CaseDone(OutcomeOK)
	c.CaseDone(OutcomeUnpaired)
	c.Corrections("slice_increment", "orientation")
	c.Assembled(true)
	c.ObserveDice(0.85)

	path := filepath.Join(t.TempDir(), "run.prom")
	require.NoError(t, c.WriteTextfile(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(raw)

	assert.Contains(t, text, `dicomvolume_cases_total{outcome="ok"} 2`)
	assert.Contains(t, text, `dicomvolume_cases_total{outcome="unpaired"} 1`)
	assert.Contains(t, text, `dicomvolume_corrections_total{kind="orientation"} 1`)
	assert.Contains(t, text, `dicomvolume_volumes_assembled_total{kind="label"} 1`)
	assert.Contains(t, text, `dicomvolume_dice_coefficient_count 1`)
	assert.Contains(t, text, `dicomvolume_dice_coefficient_sum 0.85`)
}

func TestCollectorsAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.CaseDone(OutcomeFailed)

	fa, err := a.Registry().Gather()
	require.NoError(t, err)
	fb, err := b.Registry().Gather()
	require.NoError(t, err)
	assert.Len(t, fa, 2, "cases counter and the always present histogram")
	assert.Len(t, fb, 1)
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.CaseDone(OutcomeOK)
		c.Corrections("x")
		c.Assembled(false)
		c.ObserveDice(1)
	})
	assert.Nil(t, c.Registry())
	assert.NoError(t, c.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")))
}
