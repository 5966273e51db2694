package activation_test

import (
	"context"
	"errors"
	"testing"

	"github.com/loykin/librarylink/internal/activation"
	"github.com/loykin/librarylink/internal/aumid"
	"github.com/loykin/librarylink/internal/fake"
	"github.com/loykin/librarylink/internal/metrics"
	"github.com/loykin/librarylink/internal/monitor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const calc = "Microsoft.WindowsCalculator_8wekyb3d8bbwe!App"

func TestNewRequest_CopiesArgs(t *testing.T) {
	args := []string{"-a", "b"}
	req := activation.NewRequest(calc, args...)
	args[0] = "mutated"
	assert.Equal(t, []string{"-a", "b"}, req.Args)
}

func TestServiceActivate_Success(t *testing.T) {
	h := &fake.Handle{Pid: 4242, Code: 0}
	w := fake.NewWaiter(h)
	act := fake.NewActivator().Install(calc, 4242)
	svc := activation.NewService(act, w, nil)

	mp, err := svc.Activate(context.Background(), activation.NewRequest(calc, "--x"))
	require.NoError(t, err)
	assert.Equal(t, uint32(4242), mp.PID())
	assert.Equal(t, monitor.StateIdle, mp.State())
	require.Len(t, act.Calls(), 1)
	assert.Equal(t, calc, act.Calls()[0].ActivationID)
	assert.Equal(t, []string{"--x"}, act.Calls()[0].Args)
	assert.Equal(t, []uint32{4242}, w.Opened())
	require.NoError(t, mp.Close())
	assert.Equal(t, 1, h.Closes())
}

func TestServiceActivate_MalformedNeverReachesPlatform(t *testing.T) {
	act := fake.NewActivator()
	svc := activation.NewService(act, fake.NewWaiter(), nil)
	for _, id := range []string{"", "NoSeparator", "a!b!c", "!App", "Family!"} {
		_, err := svc.Activate(context.Background(), activation.NewRequest(id))
		require.Error(t, err, id)
		assert.ErrorIs(t, err, aumid.ErrMalformed, id)
	}
	assert.Empty(t, act.Calls())
}

func TestServiceActivate_NotFound(t *testing.T) {
	w := fake.NewWaiter()
	svc := activation.NewService(fake.NewActivator(), w, nil)
	_, err := svc.Activate(context.Background(), activation.NewRequest("Missing.Package_abc!App"))
	require.Error(t, err)
	assert.ErrorIs(t, err, activation.ErrNotFound)
	assert.Contains(t, err.Error(), "not found")
	var ae *activation.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, uint32(0x80073CF1), ae.Code)
	assert.Empty(t, w.Opened(), "a failed activation must not attach")
}

func TestServiceActivate_ForeignErrorBecomesPlatformFailure(t *testing.T) {
	boom := errors.New("rpc server unavailable")
	act := activation.ActivatorFunc(func(context.Context, activation.Request) (uint32, error) { return 0, boom })
	_, err := activation.NewService(act, fake.NewWaiter(), nil).Activate(context.Background(), activation.NewRequest(calc))
	assert.ErrorIs(t, err, activation.ErrPlatformFailure)
	assert.ErrorIs(t, err, boom)
}

func TestServiceActivate_ZeroPID(t *testing.T) {
	act := activation.ActivatorFunc(func(context.Context, activation.Request) (uint32, error) { return 0, nil })
	_, err := activation.NewService(act, fake.NewWaiter(), nil).Activate(context.Background(), activation.NewRequest(calc))
	assert.ErrorIs(t, err, activation.ErrPlatformFailure)
}

func TestServiceActivate_AttachFailureIsWaitFailed(t *testing.T) {
	act := fake.NewActivator().Install(calc, 7)
	_, err := activation.NewService(act, fake.NewWaiter(), nil).Activate(context.Background(), activation.NewRequest(calc))
	assert.ErrorIs(t, err, monitor.ErrWaitFailed)
}

// waitCount reads librarylink_wait_total{outcome} from reg.
func waitCount(t *testing.T, reg *prometheus.Registry, outcome string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != "librarylink_wait_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "outcome" && lp.GetValue() == outcome {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestServiceActivate_AttachFailureCountsWaitFailed(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, metrics.Register(reg))
	before := waitCount(t, reg, metrics.OutcomeWaitFailed)

	act := fake.NewActivator().Install(calc, 7)
	_, err := activation.NewService(act, fake.NewWaiter(), nil).Activate(context.Background(), activation.NewRequest(calc))
	require.ErrorIs(t, err, monitor.ErrWaitFailed)
	assert.Equal(t, before+1, waitCount(t, reg, metrics.OutcomeWaitFailed))
}

func TestServiceActivate_CancelledContext(t *testing.T) {
	act := fake.NewActivator().Install(calc, 7)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := activation.NewService(act, fake.NewWaiter(), nil).Activate(ctx, activation.NewRequest(calc))
	assert.ErrorIs(t, err, monitor.ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, activation.ErrPlatformFailure)
	assert.Empty(t, act.Calls())
}

func TestFromHRESULT(t *testing.T) {
	cases := []struct {
		hr   uint32
		want error
	}{
		{0x80070002, activation.ErrNotFound},
		{0x80070490, activation.ErrNotFound},
		{0x80073CF1, activation.ErrNotFound},
		{0x80070005, activation.ErrAccessDenied},
		{0x80004005, activation.ErrPlatformFailure},
		{0x8027025B, activation.ErrPlatformFailure},
	}
	for _, c := range cases {
		err := activation.FromHRESULT(calc, c.hr, nil)
		assert.ErrorIs(t, err, c.want, "hr 0x%08X", c.hr)
		assert.Equal(t, c.hr, err.Code)
		assert.Contains(t, err.Error(), calc)
	}
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "not_found", activation.Outcome(activation.FromHRESULT(calc, 0x80070002, nil)))
	assert.Equal(t, "access_denied", activation.Outcome(activation.FromHRESULT(calc, 0x80070005, nil)))
	assert.Equal(t, "platform_failure", activation.Outcome(errors.New("x")))
}
