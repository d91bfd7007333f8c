package sites

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testEnv(t *testing.T) *Env {
	t.Helper()
	return NewEnv(nil, nil, Config{Timezone: "Asia/Shanghai"}, zap.NewNop())
}

func TestPtimeConvertsToTargetZone(t *testing.T) {
	t.Parallel()
	env := testEnv(t)

	// A Tokyo evening is one hour earlier in Shanghai.
	got, err := env.ptimeFromLayout(time.RFC3339, "2022-01-30T19:00:00+09:00")
	require.NoError(t, err)
	require.Equal(t, "2022-01-30 18:00:00 +0800", got)
}

func TestPtimeFromUnix(t *testing.T) {
	t.Parallel()
	env := testEnv(t)

	// 2021-06-13 00:00:00 UTC.
	require.Equal(t, "2021-06-13 08:00:00 +0800", env.ptimeFromUnix(1623542400))
}

func TestPtimeFromWallClockJST(t *testing.T) {
	t.Parallel()
	env := testEnv(t)

	got, err := env.ptimeFromWallClock("2006年01月02日 15:04:05", "2022年02月07日 14:34:53", jst)
	require.NoError(t, err)
	require.Equal(t, "2022-02-07 13:34:53 +0800", got)
}

func TestPtimeFromDateIsMidnightInTargetZone(t *testing.T) {
	t.Parallel()
	env := testEnv(t)

	got, err := env.ptimeFromDate("2006年1月2日", "2022年1月30日")
	require.NoError(t, err)
	require.Equal(t, "2022-01-30 00:00:00 +0800", got)
}

func TestPtimeParseErrors(t *testing.T) {
	t.Parallel()
	env := testEnv(t)

	_, err := env.ptimeFromLayout(time.RFC3339, "not a time")
	require.Error(t, err)
	_, err = env.ptimeFromDate("2006年1月2日", "garbage")
	require.Error(t, err)
}

func TestNewEnvFallsBackToFixedZone(t *testing.T) {
	t.Parallel()

	env := NewEnv(nil, nil, Config{Timezone: "Not/AZone"}, zap.NewNop())
	require.NotNil(t, env.Loc)
	require.Equal(t, "2021-06-13 08:00:00 +0800", env.ptimeFromUnix(1623542400))
}
