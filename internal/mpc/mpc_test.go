package mpc_test

import (
	"context"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/dynopt/internal/dynamo"
	"github.com/san-kum/dynopt/internal/integrators"
	"github.com/san-kum/dynopt/internal/models"
	"github.com/san-kum/dynopt/internal/mpc"
	"github.com/san-kum/dynopt/internal/solver"
)

func fopdtModel() mpc.Model {
	return mpc.Model{
		Build: func(p []float64) dynamo.System { return models.NewFOPDT(p[0], p[1]) },
		Observe: func(sys dynamo.System, x dynamo.State) float64 {
			return sys.(*models.FOPDT).Output(x)
		},
		Sync: func(sys dynamo.System, y float64) dynamo.State {
			return sys.(*models.FOPDT).StateFor(y)
		},
	}
}

type nan struct{}

func (nan) StateDim() int   { return 1 }
func (nan) ControlDim() int { return 1 }
func (nan) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	return dynamo.State{math.NaN()}
}

// closedLoop runs the controller against a plant that matches its model and
// returns the final output.
func closedLoop(ctx context.Context, c *mpc.Controller, sp mpc.Setpoint, cycles int) float64 {
	plant := models.NewFOPDT(1, 5)
	integ := integrators.NewRK4()
	x := dynamo.State{0}
	params := []float64{1, 5}
	for i := 0; i < cycles; i++ {
		move, err := c.Update(ctx, plant.Output(x), params, sp)
		Expect(err).NotTo(HaveOccurred())
		x = integrators.Propagate(integ, plant, x, dynamo.Control{move.U}, 0, 0.5, 0.05)
	}
	return plant.Output(x)
}

var _ = Describe("Controller", func() {
	var (
		ctx    context.Context
		tuning mpc.Tuning
	)

	BeforeEach(func() {
		ctx = context.Background()
		tuning = mpc.DefaultTuning()
	})

	It("builds symmetric bands", func() {
		sp := mpc.Band(3, 0.1)
		Expect(sp.Hi).To(BeNumerically("~", 3.1, 1e-12))
		Expect(sp.Lo).To(BeNumerically("~", 2.9, 1e-12))
		Expect(sp.SP).To(Equal(3.0))
	})

	It("rejects an incomplete model", func() {
		_, err := mpc.New(mpc.Model{}, tuning, 0, nil)
		Expect(err).To(MatchError(mpc.ErrNoModel))
	})

	It("rejects inverted MV limits", func() {
		tuning.MVLower, tuning.MVUpper = 1, -1
		_, err := mpc.New(fopdtModel(), tuning, 0, nil)
		Expect(err).To(MatchError(mpc.ErrMVRange))
	})

	It("brings the output into the setpoint band", func() {
		c, err := mpc.New(fopdtModel(), tuning, 0, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(closedLoop(ctx, c, mpc.Band(3, 0.1), 40)).To(BeNumerically("~", 3, 0.15))
	})

	It("tracks a setpoint with squared error", func() {
		tuning.CVType = solver.L2
		c, err := mpc.New(fopdtModel(), tuning, 0, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(closedLoop(ctx, c, mpc.Setpoint{SP: 2, Hi: 2, Lo: 2}, 40)).To(BeNumerically("~", 2, 0.1))
	})

	It("saturates at the MV limits", func() {
		c, err := mpc.New(fopdtModel(), tuning, 0, nil)
		Expect(err).NotTo(HaveOccurred())

		move, err := c.Update(ctx, 0, []float64{1, 5}, mpc.Band(100, 0.1))
		Expect(err).NotTo(HaveOccurred())
		Expect(move.U).To(BeNumerically("<=", 10))
		Expect(move.U).To(BeNumerically("~", 10, 1e-3))
		Expect(c.Last()).To(Equal(move.U))
	})

	It("limits the first move to DMax", func() {
		tuning.DMax = 0.5
		c, err := mpc.New(fopdtModel(), tuning, 0, nil)
		Expect(err).NotTo(HaveOccurred())

		move, err := c.Update(ctx, 0, []float64{1, 5}, mpc.Band(100, 0.1))
		Expect(err).NotTo(HaveOccurred())
		Expect(move.U).To(BeNumerically("<=", 0.5+1e-9))
		Expect(move.U).To(BeNumerically(">", 0.4))
	})

	It("holds the last block to the end of the horizon", func() {
		c, err := mpc.New(fopdtModel(), tuning, 0, nil)
		Expect(err).NotTo(HaveOccurred())

		move, err := c.Update(ctx, 0, []float64{1, 5}, mpc.Band(3, 0.1))
		Expect(err).NotTo(HaveOccurred())
		Expect(move.Plan).To(HaveLen(tuning.Horizon - 1))
		Expect(move.Predicted).To(HaveLen(tuning.Horizon))
		for _, u := range move.Plan[tuning.Blocks-1:] {
			Expect(u).To(Equal(move.Plan[tuning.Blocks-1]))
		}
	})

	It("moves less aggressively along a reference trajectory", func() {
		direct, err := mpc.New(fopdtModel(), tuning, 0, nil)
		Expect(err).NotTo(HaveOccurred())
		tuning.TrInit = 1
		shaped, err := mpc.New(fopdtModel(), tuning, 0, nil)
		Expect(err).NotTo(HaveOccurred())

		a, err := direct.Update(ctx, 0, []float64{1, 5}, mpc.Band(3, 0.1))
		Expect(err).NotTo(HaveOccurred())
		b, err := shaped.Update(ctx, 0, []float64{1, 5}, mpc.Band(3, 0.1))
		Expect(err).NotTo(HaveOccurred())
		Expect(b.U).To(BeNumerically("<", a.U))
	})

	It("holds the previous move when the solve fails", func() {
		model := fopdtModel()
		model.Build = func(p []float64) dynamo.System { return nan{} }
		model.Observe = func(sys dynamo.System, x dynamo.State) float64 { return x[0] }
		model.Sync = func(sys dynamo.System, y float64) dynamo.State { return dynamo.State{y} }
		c, err := mpc.New(model, tuning, 1.5, nil)
		Expect(err).NotTo(HaveOccurred())

		move, err := c.Update(ctx, 0, nil, mpc.Band(3, 0.1))
		Expect(err).NotTo(HaveOccurred())
		Expect(move.Status).To(Equal(solver.StatusFailed))
		Expect(move.U).To(Equal(1.5))
		Expect(move.Plan).To(HaveEach(1.5))
	})

	It("stops on a cancelled context", func() {
		c, err := mpc.New(fopdtModel(), tuning, 0, nil)
		Expect(err).NotTo(HaveOccurred())
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err = c.Update(cctx, 0, []float64{1, 5}, mpc.Band(3, 0.1))
		Expect(err).To(MatchError(context.Canceled))
	})
})
