package report

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lockfree/infra/memory"
)

func sampleReport() Report {
	return Report{
		Container:           "queue",
		Workers:             8,
		Ops:                 1000,
		PushRatio:           0.5,
		Seed:                1<<63 + 7,
		Exact:               true,
		Pushed:              4000,
		Popped:              3000,
		Drained:             1000,
		EmptyPops:           12,
		PushedFingerprint:   0xdeadbeefcafef00d,
		ConsumedFingerprint: 0xdeadbeefcafef00d,
		StartedAt:           time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC),
		Elapsed:             1500 * time.Millisecond,
		Collector:           memory.Stats{Epoch: 9, Participants: 8, Retired: 3000, Reclaimed: 2990, Spilled: 1},
	}
}

func TestReportOK(t *testing.T) {
	r := sampleReport()
	require.True(t, r.OK())

	r.Drained--
	require.False(t, r.OK())

	r = sampleReport()
	r.ConsumedFingerprint++
	require.False(t, r.OK())

	r = sampleReport()
	r.Duplicates = 1
	require.False(t, r.OK())
}

func TestReportMarshalKeepsFullWidthFields(t *testing.T) {
	in := sampleReport()
	in.ID = 1<<60 + 3

	b, err := in.Marshal()
	require.NoError(t, err)
	out, err := Unmarshal(b)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestReportJSON(t *testing.T) {
	b, err := sampleReport().JSON()
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	require.Equal(t, "queue", m["container"])
	require.Equal(t, true, m["ok"])
	require.Equal(t, "deadbeefcafef00d", m["pushed_fingerprint"])
}

func TestOpsPerSecond(t *testing.T) {
	r := Report{Workers: 2, Ops: 500, Elapsed: time.Second}
	require.Equal(t, 1000.0, r.OpsPerSecond())
	require.Zero(t, Report{}.OpsPerSecond())
}
