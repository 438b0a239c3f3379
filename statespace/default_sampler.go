package statespace

import (
	"math"
	"math/rand/v2"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/stat/distuv"

	"go.viam.com/motionsampling/referenceframe"
	spatial "go.viam.com/motionsampling/spatialmath"
)

func newSource(seed int64) *rand.PCG {
	return rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15)
}

// boxSampler samples each component independently inside its bound.
type boxSampler struct {
	limits []referenceframe.Limit
	src    rand.Source
}

func newBoxSampler(limits []referenceframe.Limit, seed int64) *boxSampler {
	return &boxSampler{limits: limits, src: newSource(seed)}
}

func (bs *boxSampler) uniform(lo, hi float64) float64 {
	return distuv.Uniform{Min: lo, Max: hi, Src: bs.src}.Rand()
}

func (bs *boxSampler) SampleUniform(out State) {
	for i, l := range bs.limits {
		lo, hi := l.Finite()
		out[i] = bs.uniform(lo, hi)
	}
}

func (bs *boxSampler) SampleUniformNear(out, near State, distance float64) {
	for i, l := range bs.limits {
		lo, hi := l.Finite()
		nlo, nhi := math.Max(lo, near[i]-distance), math.Min(hi, near[i]+distance)
		if nlo > nhi {
			// near is further than distance outside the bound.
			out[i] = math.Max(lo, math.Min(hi, near[i]))
			continue
		}
		out[i] = bs.uniform(nlo, nhi)
	}
}

func (bs *boxSampler) SampleGaussian(out, mean State, stdDev float64) {
	for i, l := range bs.limits {
		lo, hi := l.Finite()
		v := mean[i]
		if stdDev > 0 {
			v = distuv.Normal{Mu: mean[i], Sigma: stdDev, Src: bs.src}.Rand()
		}
		out[i] = math.Max(lo, math.Min(hi, v))
	}
}

// poseSampler samples the position box, orientations over SO(3) and the redundant variables' limits.
type poseSampler struct {
	space *PoseSpace
	box   *boxSampler
	rng   *rand.Rand
}

func newPoseSampler(ps *PoseSpace, seed int64) *poseSampler {
	box := newBoxSampler(ps.Bounds(), seed)
	return &poseSampler{space: ps, box: box, rng: rand.New(box.src)}
}

func (s *poseSampler) SampleUniform(out State) {
	s.box.SampleUniform(out)
	setQuat(out, spatial.RandomQuaternion(s.rng))
}

func (s *poseSampler) SampleUniformNear(out, near State, distance float64) {
	s.box.SampleUniformNear(out, near, distance)
	// Rotate near's orientation by a random rotation of at most distance radians.
	axis := r3.Vector{X: s.rng.NormFloat64(), Y: s.rng.NormFloat64(), Z: s.rng.NormFloat64()}
	if axis.Norm() == 0 {
		axis = r3.Vector{Z: 1}
	}
	angle := math.Min(distance, math.Pi) * s.rng.Float64()
	s.perturb(out, near, axis.Normalize().Mul(angle))
}

func (s *poseSampler) SampleGaussian(out, mean State, stdDev float64) {
	s.box.SampleGaussian(out, mean, stdDev)
	rot := r3.Vector{X: s.rng.NormFloat64() * stdDev, Y: s.rng.NormFloat64() * stdDev, Z: s.rng.NormFloat64() * stdDev}
	s.perturb(out, mean, rot)
}

func (s *poseSampler) perturb(out, ref State, rot r3.Vector) {
	q := quat.Mul(getQuat(ref), spatial.R3ToR4(rot).ToQuat())
	setQuat(out, spatial.Normalize(q))
}
