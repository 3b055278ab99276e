package mhe_test

import (
	"context"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/dynopt/internal/dynamo"
	"github.com/san-kum/dynopt/internal/integrators"
	"github.com/san-kum/dynopt/internal/mhe"
	"github.com/san-kum/dynopt/internal/models"
	"github.com/san-kum/dynopt/internal/solver"
)

func fopdtModel() mhe.Model {
	return mhe.Model{
		Build: func(p []float64) dynamo.System {
			return models.NewFOPDT(p[0], p[1])
		},
		Observe: func(sys dynamo.System, x dynamo.State) float64 {
			return sys.(*models.FOPDT).Output(x)
		},
		Initial: dynamo.State{0},
	}
}

func fopdtParams(dmaxK, dmaxTau float64) []mhe.Parameter {
	return []mhe.Parameter{
		{Param: solver.Bounded("K", 3, 1, 3), Estimate: true, DMax: dmaxK},
		{Param: solver.Bounded("tau", 4, 1, 10), Estimate: true, DMax: dmaxTau},
	}
}

func inputAt(cycle int) float64 {
	switch {
	case cycle >= 40:
		return 3
	case cycle >= 30:
		return 1
	case cycle >= 20:
		return 4
	case cycle >= 10:
		return 3
	default:
		return 2
	}
}

// nan is a system whose derivative is never finite.
type nan struct{}

func (nan) StateDim() int   { return 1 }
func (nan) ControlDim() int { return 1 }
func (nan) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	return dynamo.State{math.NaN()}
}

var _ = Describe("Estimator", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Describe("construction", func() {
		It("requires a model", func() {
			_, err := mhe.New(mhe.Model{}, nil, mhe.DefaultTuning(), nil)
			Expect(err).To(MatchError(mhe.ErrNoModel))
		})

		It("requires a horizon of at least two points", func() {
			tuning := mhe.DefaultTuning()
			tuning.Horizon = 1
			_, err := mhe.New(fopdtModel(), fopdtParams(0, 0), tuning, nil)
			Expect(err).To(MatchError(mhe.ErrHorizon))
		})
	})

	Describe("first order process", func() {
		var (
			est    *mhe.Estimator
			tuning mhe.Tuning
		)

		BeforeEach(func() {
			tuning = mhe.DefaultTuning()
			tuning.Loss = solver.L2
			tuning.MeasGap = 0
		})

		It("moves each parameter at most DMax per update", func() {
			var err error
			est, err = mhe.New(fopdtModel(), fopdtParams(1, 0.1), tuning, nil)
			Expect(err).NotTo(HaveOccurred())

			res, err := est.Update(ctx, dynamo.Control{2}, 0.2, true)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Params["K"]).To(BeNumerically(">=", 2-1e-9))
			Expect(res.Params["tau"]).To(BeNumerically("~", 4, 0.1+1e-9))
		})

		It("recovers gain and time constant from noise-free data", func() {
			model := fopdtModel()
			model.FreeInitial = []mhe.InitialState{{Index: 0, Lower: -10, Upper: 10}}
			var err error
			est, err = mhe.New(model, fopdtParams(0, 0), tuning, nil)
			Expect(err).NotTo(HaveOccurred())

			plant := models.NewFOPDT(1, 5)
			integ := integrators.NewRK4()
			x := dynamo.State{0}
			var res *mhe.Estimate
			for i := 0; i < 50; i++ {
				u := dynamo.Control{inputAt(i)}
				x = integrators.Propagate(integ, plant, x, u, 0, 0.5, 0.05)
				res, err = est.Update(ctx, u, plant.Output(x), true)
				Expect(err).NotTo(HaveOccurred())
			}

			Expect(res.Status).To(Equal(solver.StatusSuccess))
			Expect(res.Params["K"]).To(BeNumerically("~", 1, 0.05))
			Expect(res.Params["tau"]).To(BeNumerically("~", 5, 0.3))
			Expect(res.Output).To(BeNumerically("~", plant.Output(x), 0.05))
			Expect(est.Len()).To(Equal(tuning.Horizon - 1))
		})
	})

	Describe("window", func() {
		It("never holds more than horizon-1 samples", func() {
			tuning := mhe.DefaultTuning()
			tuning.Horizon = 5
			est, err := mhe.New(fopdtModel(), fopdtParams(0, 0), tuning, nil)
			Expect(err).NotTo(HaveOccurred())

			for i := 0; i < 10; i++ {
				_, err := est.Update(ctx, dynamo.Control{1}, 1, true)
				Expect(err).NotTo(HaveOccurred())
				Expect(est.Len()).To(BeNumerically("<=", 4))
			}
			Expect(est.Len()).To(Equal(4))

			est.Reset()
			Expect(est.Len()).To(BeZero())
			Expect(est.Values()).To(Equal([]float64{3, 4}))
		})

		It("ignores unmeasured samples", func() {
			est, err := mhe.New(fopdtModel(), fopdtParams(0, 0), mhe.DefaultTuning(), nil)
			Expect(err).NotTo(HaveOccurred())

			res, err := est.Update(ctx, dynamo.Control{1}, math.NaN(), true)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Objective).To(BeZero())
		})
	})

	It("holds previous values when the solve fails", func() {
		model := mhe.Model{
			Build:   func(p []float64) dynamo.System { return nan{} },
			Observe: func(sys dynamo.System, x dynamo.State) float64 { return x[0] },
			Initial: dynamo.State{0},
		}
		params := []mhe.Parameter{{Param: solver.Bounded("p", 2, 0, 5), Estimate: true}}
		est, err := mhe.New(model, params, mhe.DefaultTuning(), nil)
		Expect(err).NotTo(HaveOccurred())

		res, err := est.Update(ctx, dynamo.Control{1}, 1, true)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Status).To(Equal(solver.StatusFailed))
		Expect(res.Params["p"]).To(Equal(2.0))
		Expect(math.IsNaN(res.Output)).To(BeTrue())
	})

	It("estimates a flow disturbance bias", func() {
		tuning := mhe.DefaultTuning()
		tuning.Horizon = 50
		tuning.Dt = 1
		tuning.MaxStep = 0.05
		tuning.MeasGap = 0
		tuning.WMeas = 100
		model := mhe.Model{
			Build: func(p []float64) dynamo.System {
				f := models.NewFlow()
				f.D = p[0]
				return f
			},
			Observe: func(sys dynamo.System, x dynamo.State) float64 { return x[0] },
			Initial: dynamo.State{42},
		}
		params := []mhe.Parameter{{Param: solver.Free("d", 0), Estimate: true}}
		est, err := mhe.New(model, params, tuning, nil)
		Expect(err).NotTo(HaveOccurred())

		var res *mhe.Estimate
		for i := 0; i < 5; i++ {
			res, err = est.Update(ctx, dynamo.Control{42}, 37.727, true)
			Expect(err).NotTo(HaveOccurred())
		}
		Expect(res.Output).To(BeNumerically("~", 37.727, 0.01))
		d, ok := est.Value("d")
		Expect(ok).To(BeTrue())
		Expect(d).To(BeNumerically("~", -4.273, 0.01))
	})

	It("stops on a cancelled context", func() {
		est, err := mhe.New(fopdtModel(), fopdtParams(0, 0), mhe.DefaultTuning(), nil)
		Expect(err).NotTo(HaveOccurred())

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err = est.Update(cctx, dynamo.Control{1}, 1, true)
		Expect(err).To(MatchError(context.Canceled))
	})
})
