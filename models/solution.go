package models

import (
	"math"
	"math/cmplx"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/climakit/eofkit/decomposer"
	"github.com/climakit/eofkit/pkg/errors"
	"github.com/climakit/eofkit/rotation"
)

// realSolution is the immutable fitted state of a real single-field
// decomposition: everything downstream of the SVD with rotation,
// reordering and the sign convention already applied. Columns of
// components are unit vectors in the clean feature space, columns of
// scoresNorm have unit variance, and Z·projection reproduces the
// amplitude-carrying scores for new rows Z.
type realSolution struct {
	sing       []float64
	variance   []float64
	components *mat.Dense
	scoresNorm *mat.Dense
	projection *mat.Dense
	rotMat     *mat.Dense
	perm       []int
	iterations int
	converged  bool
	requested  int
	truncated  bool
}

func assembleReal(op string, res *decomposer.Result, n int, cfg config) (*realSolution, error) {
	k := len(res.SingularValues)
	sqrtN1 := math.Sqrt(float64(n - 1))

	sol := &realSolution{
		sing:       make([]float64, k),
		variance:   make([]float64, k),
		components: mat.DenseCopyOf(res.V),
		projection: mat.DenseCopyOf(res.V),
		perm:       make([]int, k),
		converged:  true,
		requested:  res.Requested,
		truncated:  res.Truncated,
	}
	copy(sol.sing, res.SingularValues)

	var sn mat.Dense
	sn.Scale(sqrtN1, res.U)
	sol.scoresNorm = &sn

	if nRot := cfg.resolveNRot(k); nRot > 0 {
		if err := sol.rotate(op, res, n, nRot, cfg); err != nil {
			return nil, err
		}
	}

	for j := 0; j < k; j++ {
		nu := sol.sing[j] / sqrtN1
		sol.variance[j] = nu * nu
	}

	sol.reorder()
	if cfg.signConvention {
		sol.orient()
	}
	return sol, nil
}

// rotate applies the configured rotation to the first nRot modes. The
// loadings V·diag(sigma/sqrt(n-1)) are what the criterion sees; the
// normalized scores pick up (T^-1)^T so scores·loadings^T is invariant,
// and the stored projection reproduces the rotated scores for unseen
// rows.
func (sol *realSolution) rotate(op string, res *decomposer.Result, n, nRot int, cfg config) error {
	mValid, _ := res.V.Dims()
	sqrtN1 := math.Sqrt(float64(n - 1))

	loadings := mat.NewDense(mValid, nRot, nil)
	for j := 0; j < nRot; j++ {
		s := res.SingularValues[j] / sqrtN1
		for i := 0; i < mValid; i++ {
			loadings.Set(i, j, res.V.At(i, j)*s)
		}
	}

	var rot *rotation.Rotation
	var err error
	switch cfg.rotation {
	case RotationVarimax:
		rot, err = rotation.Varimax(loadings, cfg.rotationOptions()...)
	case RotationPromax:
		rot, err = rotation.Promax(loadings, cfg.power, cfg.rotationOptions()...)
	}
	if err != nil {
		return err
	}

	tInvT, err := inverseTranspose(op, rot.RotMat, cfg)
	if err != nil {
		return err
	}

	snRot := mat.NewDense(n, nRot, nil)
	snRot.Mul(sol.scoresNorm.Slice(0, n, 0, nRot), tInvT)

	// V·diag(sqrt(n-1)/sigma)·(T^-1)^T turns new rows into rotated
	// normalized scores; the per-mode norm restores the amplitude.
	base := mat.NewDense(mValid, nRot, nil)
	for j := 0; j < nRot; j++ {
		scale := sqrtN1 / res.SingularValues[j]
		for i := 0; i < mValid; i++ {
			base.Set(i, j, res.V.At(i, j)*scale)
		}
	}
	projRot := mat.NewDense(mValid, nRot, nil)
	projRot.Mul(base, tInvT)

	col := make([]float64, mValid)
	for j := 0; j < nRot; j++ {
		mat.Col(col, j, rot.Loadings)
		nu := math.Sqrt(floats.Dot(col, col))
		sol.sing[j] = nu * sqrtN1
		for i := 0; i < mValid; i++ {
			c := rot.Loadings.At(i, j)
			if nu > 0 {
				c /= nu
			}
			sol.components.Set(i, j, c)
			sol.projection.Set(i, j, projRot.At(i, j)*nu)
		}
		for i := 0; i < n; i++ {
			sol.scoresNorm.Set(i, j, snRot.At(i, j))
		}
	}

	sol.rotMat = mat.DenseCopyOf(rot.RotMat)
	sol.iterations = rot.Iterations
	sol.converged = rot.Converged
	return nil
}

// reorder sorts all modes by descending variance. Pass-through modes
// participate, so a rotated mode may overtake an unrotated one; the
// permutation is retained for persistence.
func (sol *realSolution) reorder() {
	order, identity := varianceOrder(sol.sing)
	copy(sol.perm, order)
	if identity {
		return
	}
	sol.sing = permuteFloats(sol.sing, order)
	sol.variance = permuteFloats(sol.variance, order)
	sol.components = permuteCols(sol.components, order)
	sol.scoresNorm = permuteCols(sol.scoresNorm, order)
	sol.projection = permuteCols(sol.projection, order)
}

// orient flips each mode so its largest-magnitude loading is positive.
// Component, score and projection columns flip together, leaving every
// reconstruction invariant.
func (sol *realSolution) orient() {
	mValid, k := sol.components.Dims()
	n, _ := sol.scoresNorm.Dims()
	for j := 0; j < k; j++ {
		best, bestAbs := 0, 0.0
		for i := 0; i < mValid; i++ {
			if a := math.Abs(sol.components.At(i, j)); a > bestAbs {
				best, bestAbs = i, a
			}
		}
		if sol.components.At(best, j) >= 0 {
			continue
		}
		for i := 0; i < mValid; i++ {
			sol.components.Set(i, j, -sol.components.At(i, j))
			sol.projection.Set(i, j, -sol.projection.At(i, j))
		}
		for i := 0; i < n; i++ {
			sol.scoresNorm.Set(i, j, -sol.scoresNorm.At(i, j))
		}
	}
}

// scores returns the amplitude-carrying scores scoresNorm·diag(nu).
func (sol *realSolution) scores() *mat.Dense {
	n, k := sol.scoresNorm.Dims()
	out := mat.NewDense(n, k, nil)
	for j := 0; j < k; j++ {
		nu := math.Sqrt(sol.variance[j])
		for i := 0; i < n; i++ {
			out.Set(i, j, sol.scoresNorm.At(i, j)*nu)
		}
	}
	return out
}

// complexSolution mirrors realSolution for analytic-signal modes. No
// projection is kept: projecting unseen samples is not defined for the
// Hilbert pipeline.
type complexSolution struct {
	sing       []float64
	variance   []float64
	components *mat.CDense
	scoresNorm *mat.CDense
	rotMat     *mat.CDense
	perm       []int
	iterations int
	converged  bool
	requested  int
	truncated  bool
}

func assembleComplex(op string, res *decomposer.ComplexResult, n int, cfg config) (*complexSolution, error) {
	k := len(res.SingularValues)
	mValid, _ := res.V.Dims()
	sqrtN1 := math.Sqrt(float64(n - 1))

	sol := &complexSolution{
		sing:       make([]float64, k),
		variance:   make([]float64, k),
		components: mat.NewCDense(mValid, k, nil),
		scoresNorm: mat.NewCDense(n, k, nil),
		perm:       make([]int, k),
		converged:  true,
		requested:  res.Requested,
		truncated:  res.Truncated,
	}
	copy(sol.sing, res.SingularValues)

	for j := 0; j < k; j++ {
		for i := 0; i < mValid; i++ {
			sol.components.Set(i, j, res.V.At(i, j))
		}
		for i := 0; i < n; i++ {
			sol.scoresNorm.Set(i, j, res.U.At(i, j)*complex(sqrtN1, 0))
		}
	}

	if nRot := cfg.resolveNRot(k); nRot > 0 {
		if err := sol.rotate(op, res, n, nRot, cfg); err != nil {
			return nil, err
		}
	}

	for j := 0; j < k; j++ {
		nu := sol.sing[j] / sqrtN1
		sol.variance[j] = nu * nu
	}

	sol.reorder()
	if cfg.signConvention {
		sol.orient()
	}
	return sol, nil
}

// rotate applies a unitary varimax to the first nRot modes. With
// A = Sn·L^H and a unitary T, replacing L by L·T and Sn by Sn·T leaves
// the reconstruction unchanged.
func (sol *complexSolution) rotate(op string, res *decomposer.ComplexResult, n, nRot int, cfg config) error {
	mValid, _ := res.V.Dims()
	sqrtN1 := math.Sqrt(float64(n - 1))

	loadings := mat.NewCDense(mValid, nRot, nil)
	for j := 0; j < nRot; j++ {
		s := complex(res.SingularValues[j]/sqrtN1, 0)
		for i := 0; i < mValid; i++ {
			loadings.Set(i, j, res.V.At(i, j)*s)
		}
	}

	rot, err := rotation.VarimaxComplex(loadings, cfg.rotationOptions()...)
	if err != nil {
		return err
	}

	snRot := mat.NewCDense(n, nRot, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < nRot; j++ {
			var acc complex128
			for l := 0; l < nRot; l++ {
				acc += sol.scoresNorm.At(i, l) * rot.RotMat.At(l, j)
			}
			snRot.Set(i, j, acc)
		}
	}

	for j := 0; j < nRot; j++ {
		var sq float64
		for i := 0; i < mValid; i++ {
			z := rot.Loadings.At(i, j)
			sq += real(z)*real(z) + imag(z)*imag(z)
		}
		nu := math.Sqrt(sq)
		sol.sing[j] = nu * sqrtN1
		inv := complex(1, 0)
		if nu > 0 {
			inv = complex(1/nu, 0)
		}
		for i := 0; i < mValid; i++ {
			sol.components.Set(i, j, rot.Loadings.At(i, j)*inv)
		}
		for i := 0; i < n; i++ {
			sol.scoresNorm.Set(i, j, snRot.At(i, j))
		}
	}

	sol.rotMat = rot.RotMat
	sol.iterations = rot.Iterations
	sol.converged = rot.Converged
	return nil
}

func (sol *complexSolution) reorder() {
	order, identity := varianceOrder(sol.sing)
	copy(sol.perm, order)
	if identity {
		return
	}
	sol.sing = permuteFloats(sol.sing, order)
	sol.variance = permuteFloats(sol.variance, order)
	sol.components = permuteColsC(sol.components, order)
	sol.scoresNorm = permuteColsC(sol.scoresNorm, order)
}

// orient rotates each mode by a unit phase so its largest-modulus
// loading comes out real and positive. Components and scores pick up
// the same factor: the conjugate transpose in Sn·L^H absorbs one of
// the two, keeping reconstructions invariant.
func (sol *complexSolution) orient() {
	mValid, k := sol.components.Dims()
	n, _ := sol.scoresNorm.Dims()
	for j := 0; j < k; j++ {
		best, bestAbs := 0, 0.0
		for i := 0; i < mValid; i++ {
			if a := cmplx.Abs(sol.components.At(i, j)); a > bestAbs {
				best, bestAbs = i, a
			}
		}
		if bestAbs == 0 {
			continue
		}
		theta := cmplx.Phase(sol.components.At(best, j))
		if theta == 0 {
			continue
		}
		f := cmplx.Rect(1, -theta)
		for i := 0; i < mValid; i++ {
			sol.components.Set(i, j, sol.components.At(i, j)*f)
		}
		for i := 0; i < n; i++ {
			sol.scoresNorm.Set(i, j, sol.scoresNorm.At(i, j)*f)
		}
	}
}

func (sol *complexSolution) scores() *mat.CDense {
	n, k := sol.scoresNorm.Dims()
	out := mat.NewCDense(n, k, nil)
	for j := 0; j < k; j++ {
		nu := complex(math.Sqrt(sol.variance[j]), 0)
		for i := 0; i < n; i++ {
			out.Set(i, j, sol.scoresNorm.At(i, j)*nu)
		}
	}
	return out
}

// crossSolution is the fitted state of a real coupled decomposition.
// comps hold the unit patterns per feature space, proj the projections
// that turn clean rows into expansion coefficients (with any rotation
// folded in), and scores the fit-time coefficients of both fields.
type crossSolution struct {
	sing             []float64
	sqTotal          float64
	comps1, comps2   *mat.Dense
	proj1, proj2     *mat.Dense
	scores1, scores2 *mat.Dense
	rotMat           *mat.Dense
	perm             []int
	iterations       int
	converged        bool
	requested        int
	truncated        bool
}

func assembleCross(op string, res *decomposer.CrossResult, Z1, Z2 *mat.Dense, cfg config) (*crossSolution, error) {
	k := len(res.SingularValues)
	m1, _ := res.A.Dims()
	m2, _ := res.B.Dims()

	sol := &crossSolution{
		sing:      make([]float64, k),
		sqTotal:   res.SquaredTotalCovariance,
		comps1:    mat.DenseCopyOf(res.A),
		comps2:    mat.DenseCopyOf(res.B),
		proj1:     mat.DenseCopyOf(res.A),
		proj2:     mat.DenseCopyOf(res.B),
		perm:      make([]int, k),
		converged: true,
		requested: res.Requested,
		truncated: res.Truncated,
	}
	copy(sol.sing, res.SingularValues)

	// Block norms of the combined loadings drive the sign convention
	// and, rotated or not, multiply to the per-mode covariance.
	bn1 := make([]float64, k)
	bn2 := make([]float64, k)
	for j := 0; j < k; j++ {
		bn1[j] = math.Sqrt(res.SingularValues[j])
		bn2[j] = bn1[j]
	}

	nRot := cfg.resolveNRot(k)
	if nRot > 0 {
		scal := make([]float64, nRot)
		for j := range scal {
			if cfg.squaredLoadings {
				scal[j] = res.SingularValues[j]
			} else {
				scal[j] = math.Sqrt(res.SingularValues[j])
			}
		}

		combined := mat.NewDense(m1+m2, nRot, nil)
		for j := 0; j < nRot; j++ {
			for i := 0; i < m1; i++ {
				combined.Set(i, j, res.A.At(i, j)*scal[j])
			}
			for i := 0; i < m2; i++ {
				combined.Set(m1+i, j, res.B.At(i, j)*scal[j])
			}
		}

		var rot *rotation.Rotation
		var err error
		switch cfg.rotation {
		case RotationVarimax:
			rot, err = rotation.Varimax(combined, cfg.rotationOptions()...)
		case RotationPromax:
			rot, err = rotation.Promax(combined, cfg.power, cfg.rotationOptions()...)
		}
		if err != nil {
			return nil, err
		}

		tInvT, err := inverseTranspose(op, rot.RotMat, cfg)
		if err != nil {
			return nil, err
		}

		var p1, p2 mat.Dense
		p1.Mul(res.A.Slice(0, m1, 0, nRot), tInvT)
		p2.Mul(res.B.Slice(0, m2, 0, nRot), tInvT)

		for j := 0; j < nRot; j++ {
			var sq1, sq2 float64
			for i := 0; i < m1; i++ {
				v := rot.Loadings.At(i, j)
				sq1 += v * v
			}
			for i := 0; i < m2; i++ {
				v := rot.Loadings.At(m1+i, j)
				sq2 += v * v
			}
			n1 := math.Sqrt(sq1)
			n2 := math.Sqrt(sq2)
			for i := 0; i < m1; i++ {
				c := rot.Loadings.At(i, j)
				if n1 > 0 {
					c /= n1
				}
				sol.comps1.Set(i, j, c)
				sol.proj1.Set(i, j, p1.At(i, j))
			}
			for i := 0; i < m2; i++ {
				c := rot.Loadings.At(m1+i, j)
				if n2 > 0 {
					c /= n2
				}
				sol.comps2.Set(i, j, c)
				sol.proj2.Set(i, j, p2.At(i, j))
			}
			if cfg.squaredLoadings {
				n1 = math.Sqrt(n1)
				n2 = math.Sqrt(n2)
			}
			bn1[j], bn2[j] = n1, n2
			sol.sing[j] = n1 * n2
		}

		sol.rotMat = mat.DenseCopyOf(rot.RotMat)
		sol.iterations = rot.Iterations
		sol.converged = rot.Converged
	}

	order, identity := varianceOrder(sol.sing)
	copy(sol.perm, order)
	if !identity {
		sol.sing = permuteFloats(sol.sing, order)
		bn1 = permuteFloats(bn1, order)
		bn2 = permuteFloats(bn2, order)
		sol.comps1 = permuteCols(sol.comps1, order)
		sol.comps2 = permuteCols(sol.comps2, order)
		sol.proj1 = permuteCols(sol.proj1, order)
		sol.proj2 = permuteCols(sol.proj2, order)
	}

	var s1, s2 mat.Dense
	s1.Mul(Z1, sol.proj1)
	s2.Mul(Z2, sol.proj2)
	sol.scores1, sol.scores2 = &s1, &s2

	if cfg.signConvention {
		sol.orient(bn1, bn2)
	}
	return sol, nil
}

// orient flips each mode so the largest-magnitude entry of the
// combined loading column is positive. Both fields flip together, so
// paired scores keep their covariance sign structure.
func (sol *crossSolution) orient(bn1, bn2 []float64) {
	m1, k := sol.comps1.Dims()
	m2, _ := sol.comps2.Dims()
	for j := 0; j < k; j++ {
		bestVal, bestAbs := 0.0, 0.0
		for i := 0; i < m1; i++ {
			v := sol.comps1.At(i, j) * bn1[j]
			if a := math.Abs(v); a > bestAbs {
				bestVal, bestAbs = v, a
			}
		}
		for i := 0; i < m2; i++ {
			v := sol.comps2.At(i, j) * bn2[j]
			if a := math.Abs(v); a > bestAbs {
				bestVal, bestAbs = v, a
			}
		}
		if bestVal >= 0 {
			continue
		}
		flipCol(sol.comps1, j)
		flipCol(sol.comps2, j)
		flipCol(sol.proj1, j)
		flipCol(sol.proj2, j)
		flipCol(sol.scores1, j)
		flipCol(sol.scores2, j)
	}
}

// crossComplexSolution is the fitted state of a coupled analytic-signal
// decomposition. Scores are fixed at fit time; projections of unseen
// samples are not defined for the Hilbert pipeline.
type crossComplexSolution struct {
	sing             []float64
	sqTotal          float64
	comps1, comps2   *mat.CDense
	scores1, scores2 *mat.CDense
	rotMat           *mat.CDense
	perm             []int
	iterations       int
	converged        bool
	requested        int
	truncated        bool
}

func assembleCrossComplex(op string, res *decomposer.CrossComplexResult, A1, A2 *mat.CDense, cfg config) (*crossComplexSolution, error) {
	k := len(res.SingularValues)
	m1, _ := res.A.Dims()
	m2, _ := res.B.Dims()
	n, _ := A1.Dims()

	sol := &crossComplexSolution{
		sing:      make([]float64, k),
		sqTotal:   res.SquaredTotalCovariance,
		comps1:    mat.NewCDense(m1, k, nil),
		comps2:    mat.NewCDense(m2, k, nil),
		perm:      make([]int, k),
		converged: true,
		requested: res.Requested,
		truncated: res.Truncated,
	}
	copy(sol.sing, res.SingularValues)
	for j := 0; j < k; j++ {
		for i := 0; i < m1; i++ {
			sol.comps1.Set(i, j, res.A.At(i, j))
		}
		for i := 0; i < m2; i++ {
			sol.comps2.Set(i, j, res.B.At(i, j))
		}
	}

	scores1 := cmul(A1, res.A)
	scores2 := cmul(A2, res.B)

	bn1 := make([]float64, k)
	bn2 := make([]float64, k)
	for j := 0; j < k; j++ {
		bn1[j] = math.Sqrt(res.SingularValues[j])
		bn2[j] = bn1[j]
	}

	nRot := cfg.resolveNRot(k)
	if nRot > 0 {
		combined := mat.NewCDense(m1+m2, nRot, nil)
		for j := 0; j < nRot; j++ {
			scal := math.Sqrt(res.SingularValues[j])
			if cfg.squaredLoadings {
				scal = res.SingularValues[j]
			}
			cs := complex(scal, 0)
			for i := 0; i < m1; i++ {
				combined.Set(i, j, res.A.At(i, j)*cs)
			}
			for i := 0; i < m2; i++ {
				combined.Set(m1+i, j, res.B.At(i, j)*cs)
			}
		}

		rot, err := rotation.VarimaxComplex(combined, cfg.rotationOptions()...)
		if err != nil {
			return nil, err
		}

		// Unitary T: scores transform by (T^T)^-1 = conj(T).
		conjT := mat.NewCDense(nRot, nRot, nil)
		for i := 0; i < nRot; i++ {
			for j := 0; j < nRot; j++ {
				conjT.Set(i, j, cmplx.Conj(rot.RotMat.At(i, j)))
			}
		}
		rotateColsC(scores1, conjT, n, nRot)
		rotateColsC(scores2, conjT, n, nRot)

		for j := 0; j < nRot; j++ {
			var sq1, sq2 float64
			for i := 0; i < m1; i++ {
				z := rot.Loadings.At(i, j)
				sq1 += real(z)*real(z) + imag(z)*imag(z)
			}
			for i := 0; i < m2; i++ {
				z := rot.Loadings.At(m1+i, j)
				sq2 += real(z)*real(z) + imag(z)*imag(z)
			}
			n1 := math.Sqrt(sq1)
			n2 := math.Sqrt(sq2)
			inv1, inv2 := complex(1, 0), complex(1, 0)
			if n1 > 0 {
				inv1 = complex(1/n1, 0)
			}
			if n2 > 0 {
				inv2 = complex(1/n2, 0)
			}
			for i := 0; i < m1; i++ {
				sol.comps1.Set(i, j, rot.Loadings.At(i, j)*inv1)
			}
			for i := 0; i < m2; i++ {
				sol.comps2.Set(i, j, rot.Loadings.At(m1+i, j)*inv2)
			}
			if cfg.squaredLoadings {
				n1 = math.Sqrt(n1)
				n2 = math.Sqrt(n2)
			}
			bn1[j], bn2[j] = n1, n2
			sol.sing[j] = n1 * n2
		}

		sol.rotMat = rot.RotMat
		sol.iterations = rot.Iterations
		sol.converged = rot.Converged
	}

	order, identity := varianceOrder(sol.sing)
	copy(sol.perm, order)
	if !identity {
		sol.sing = permuteFloats(sol.sing, order)
		bn1 = permuteFloats(bn1, order)
		bn2 = permuteFloats(bn2, order)
		sol.comps1 = permuteColsC(sol.comps1, order)
		sol.comps2 = permuteColsC(sol.comps2, order)
		scores1 = permuteColsC(scores1, order)
		scores2 = permuteColsC(scores2, order)
	}
	sol.scores1, sol.scores2 = scores1, scores2

	if cfg.signConvention {
		sol.orient(bn1, bn2)
	}
	return sol, nil
}

// orient rotates each mode by a unit phase so the largest-modulus
// entry of the combined loading column is real positive. Patterns and
// scores of both fields pick up the same factor.
func (sol *crossComplexSolution) orient(bn1, bn2 []float64) {
	m1, k := sol.comps1.Dims()
	m2, _ := sol.comps2.Dims()
	for j := 0; j < k; j++ {
		var bestVal complex128
		bestAbs := 0.0
		for i := 0; i < m1; i++ {
			v := sol.comps1.At(i, j) * complex(bn1[j], 0)
			if a := cmplx.Abs(v); a > bestAbs {
				bestVal, bestAbs = v, a
			}
		}
		for i := 0; i < m2; i++ {
			v := sol.comps2.At(i, j) * complex(bn2[j], 0)
			if a := cmplx.Abs(v); a > bestAbs {
				bestVal, bestAbs = v, a
			}
		}
		if bestAbs == 0 {
			continue
		}
		theta := cmplx.Phase(bestVal)
		if theta == 0 {
			continue
		}
		f := cmplx.Rect(1, -theta)
		scaleColC(sol.comps1, j, f)
		scaleColC(sol.comps2, j, f)
		scaleColC(sol.scores1, j, f)
		scaleColC(sol.scores2, j, f)
	}
}

// inverseTranspose returns (T^-1)^T for the score-side rotation.
// Orthogonal transforms need no inversion.
func inverseTranspose(op string, T *mat.Dense, cfg config) (*mat.Dense, error) {
	var out mat.Dense
	if cfg.rotation == RotationPromax && cfg.power > 1 {
		var tInv mat.Dense
		if err := tInv.Inverse(T); err != nil {
			return nil, errors.NewModelError(op, "oblique rotation transform is singular", errors.ErrSingularMatrix)
		}
		out.CloneFrom(tInv.T())
	} else {
		out.CloneFrom(T)
	}
	return &out, nil
}

func varianceOrder(sing []float64) (order []int, identity bool) {
	order = make([]int, len(sing))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return sing[order[a]] > sing[order[b]]
	})
	identity = true
	for i, o := range order {
		if o != i {
			identity = false
			break
		}
	}
	return order, identity
}

func permuteFloats(v []float64, order []int) []float64 {
	out := make([]float64, len(v))
	for i, o := range order {
		out[i] = v[o]
	}
	return out
}

func permuteCols(m *mat.Dense, order []int) *mat.Dense {
	r, _ := m.Dims()
	out := mat.NewDense(r, len(order), nil)
	for j, o := range order {
		for i := 0; i < r; i++ {
			out.Set(i, j, m.At(i, o))
		}
	}
	return out
}

func permuteColsC(m *mat.CDense, order []int) *mat.CDense {
	r, _ := m.Dims()
	out := mat.NewCDense(r, len(order), nil)
	for j, o := range order {
		for i := 0; i < r; i++ {
			out.Set(i, j, m.At(i, o))
		}
	}
	return out
}

func flipCol(m *mat.Dense, j int) {
	r, _ := m.Dims()
	for i := 0; i < r; i++ {
		m.Set(i, j, -m.At(i, j))
	}
}

func scaleColC(m *mat.CDense, j int, f complex128) {
	r, _ := m.Dims()
	for i := 0; i < r; i++ {
		m.Set(i, j, m.At(i, j)*f)
	}
}

// cmul returns a·b for complex dense matrices.
func cmul(a, b *mat.CDense) *mat.CDense {
	ar, ac := a.Dims()
	_, bc := b.Dims()
	out := mat.NewCDense(ar, bc, nil)
	for i := 0; i < ar; i++ {
		for j := 0; j < bc; j++ {
			var acc complex128
			for l := 0; l < ac; l++ {
				acc += a.At(i, l) * b.At(l, j)
			}
			out.Set(i, j, acc)
		}
	}
	return out
}

// rotateColsC replaces the first nRot columns of m with m[:, :nRot]·T
// in place.
func rotateColsC(m *mat.CDense, T *mat.CDense, rows, nRot int) {
	buf := make([]complex128, nRot)
	for i := 0; i < rows; i++ {
		for j := 0; j < nRot; j++ {
			var acc complex128
			for l := 0; l < nRot; l++ {
				acc += m.At(i, l) * T.At(l, j)
			}
			buf[j] = acc
		}
		for j := 0; j < nRot; j++ {
			m.Set(i, j, buf[j])
		}
	}
}
