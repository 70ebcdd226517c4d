package selftest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunPasses(t *testing.T) {
	report := Run(context.Background(), nil)
	require.Len(t, report.Results, len(checks))
	for _, res := range report.Results {
		require.NoError(t, res.Err, res.Name)
	}
	require.True(t, report.OK())
}

func TestReportOK(t *testing.T) {
	report := Report{Results: []Result{{Name: "a"}, {Name: "b", Err: context.Canceled}}}
	require.False(t, report.OK())
	require.True(t, report.Results[0].Passed())
}
