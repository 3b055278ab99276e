package loop_test

import (
	"context"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/dynopt/internal/dynamo"
	"github.com/san-kum/dynopt/internal/loop"
	"github.com/san-kum/dynopt/internal/metrics"
	"github.com/san-kum/dynopt/internal/mhe"
	"github.com/san-kum/dynopt/internal/models"
	"github.com/san-kum/dynopt/internal/mpc"
	"github.com/san-kum/dynopt/internal/solver"
)

func plant(noise float64, seed int64) *loop.Process {
	p := models.NewFOPDT(1, 5)
	return loop.NewProcess(p, p.Output, dynamo.State{0}, 0.5, noise, seed)
}

func estimator() *mhe.Estimator {
	tuning := mhe.DefaultTuning()
	tuning.Horizon = 11
	est, err := mhe.New(mhe.Model{
		Build: func(p []float64) dynamo.System { return models.NewFOPDT(p[0], p[1]) },
		Observe: func(sys dynamo.System, x dynamo.State) float64 {
			return sys.(*models.FOPDT).Output(x)
		},
		Initial: dynamo.State{0},
	}, []mhe.Parameter{
		{Param: solver.Bounded("K", 3, 1, 3), Estimate: true, DMax: 1},
		{Param: solver.Bounded("tau", 4, 1, 10), Estimate: true, DMax: 0.1},
	}, tuning, nil)
	Expect(err).NotTo(HaveOccurred())
	return est
}

var _ = Describe("Schedule", func() {
	It("holds the latest step", func() {
		s := loop.Schedule{{Cycle: 0, Value: 2}, {Cycle: 10, Value: 3}, {Cycle: 20, Value: 4}}
		Expect(s.At(0)).To(Equal(2.0))
		Expect(s.At(9)).To(Equal(2.0))
		Expect(s.At(10)).To(Equal(3.0))
		Expect(s.At(100)).To(Equal(4.0))
		Expect(loop.Schedule{{Cycle: 5, Value: 1}}.At(2)).To(BeZero())
	})
})

var _ = Describe("Process", func() {
	It("adds bounded, reproducible noise", func() {
		a, b := plant(0.25, 42), plant(0.25, 42)
		for i := 0; i < 20; i++ {
			ya, ma := a.Step(dynamo.Control{2})
			_, mb := b.Step(dynamo.Control{2})
			Expect(ma).To(Equal(mb))
			Expect(math.Abs(ma - ya)).To(BeNumerically("<=", 0.125))
		}
		Expect(a.Output()).To(BeNumerically("~", 2*(1-math.Exp(-2)), 1e-6))
	})
})

var _ = Describe("Loop", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("requires a process", func() {
		_, err := loop.New(loop.Config{}, nil, nil, nil, nil)
		Expect(err).To(MatchError(loop.ErrNoProcess))
	})

	It("follows the input schedule without a controller", func() {
		cfg := loop.Config{
			Cycles: 12,
			Dt:     0.5,
			Inputs: loop.Schedule{{Cycle: 0, Value: 2}, {Cycle: 6, Value: 3}},
		}
		l, err := loop.New(cfg, plant(0.25, 1), estimator(), nil, nil)
		Expect(err).NotTo(HaveOccurred())
		for _, m := range metrics.Defaults(cfg.Dt) {
			l.AddMetric(m)
		}
		seen := 0
		l.AddObserver(loop.ObserverFunc(func(r loop.Record) { seen++ }))

		h, err := l.Run(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(h.Records).To(HaveLen(12))
		Expect(seen).To(Equal(12))
		Expect(h.Records[5].U).To(Equal(2.0))
		Expect(h.Records[6].U).To(Equal(3.0))
		Expect(h.Records[11].Params).To(HaveKey("K"))
		Expect(h.Metrics).To(HaveKey("estimation_error"))
		Expect(h.Column("u")).To(HaveLen(12))
		Expect(h.Column("tau")[11]).To(BeNumerically("<=", 10))
		Expect(l.Done()).To(BeTrue())
	})

	It("settles on the setpoint with a PID controller", func() {
		cfg := loop.Config{
			Cycles:    100,
			Dt:        0.5,
			Setpoints: loop.Schedule{{Cycle: 0, Value: 3}},
			SPBand:    0.1,
		}
		l, err := loop.New(cfg, plant(0, 1), nil, loop.NewPID(2, 0.5, 0, 0.5, -10, 10), nil)
		Expect(err).NotTo(HaveOccurred())
		h, err := l.Run(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(h.Records[99].Y).To(BeNumerically("~", 3, 0.05))
	})

	It("closes the loop with MHE and MPC", func() {
		tuning := mpc.DefaultTuning()
		c, err := mpc.New(mpc.Model{
			Build: func(p []float64) dynamo.System { return models.NewFOPDT(p[0], p[1]) },
			Observe: func(sys dynamo.System, x dynamo.State) float64 {
				return sys.(*models.FOPDT).Output(x)
			},
			Sync: func(sys dynamo.System, y float64) dynamo.State {
				return sys.(*models.FOPDT).StateFor(y)
			},
		}, tuning, 0, nil)
		Expect(err).NotTo(HaveOccurred())

		cfg := loop.Config{
			Cycles:    30,
			Dt:        0.5,
			Setpoints: loop.Schedule{{Cycle: 0, Value: 3}},
			SPBand:    0.1,
		}
		l, err := loop.New(cfg, plant(0.25, 3), estimator(), loop.MPC{Controller: c}, nil)
		Expect(err).NotTo(HaveOccurred())
		h, err := l.Run(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(h.Records).To(HaveLen(30))
		for _, r := range h.Records {
			Expect(r.U).To(BeNumerically(">=", -10))
			Expect(r.U).To(BeNumerically("<=", 10))
		}
		Expect(h.Records[29].Y).To(BeNumerically("~", 3, 1))
	})

	It("stops when the context is cancelled", func() {
		l, err := loop.New(loop.Config{Cycles: 5, Dt: 0.5}, plant(0, 1), nil, nil, nil)
		Expect(err).NotTo(HaveOccurred())
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		h, err := l.Run(cctx)
		Expect(err).To(MatchError(context.Canceled))
		Expect(h.Records).To(BeEmpty())
	})
})
