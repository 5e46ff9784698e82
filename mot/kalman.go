package mot

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Measurement is an observed box in xyah form.
type Measurement []float32

// StateMean is the 8 element state vector, an xyah box plus the velocity
// of each component.
type StateMean []float32

// StateCov is the 8x8 state covariance matrix.
type StateCov struct {
	*mat.Dense
}

// KalmanFilter is the constant velocity motion model driving track
// prediction. Process and measurement noise scale with box height.
type KalmanFilter struct {
	stdWeightPosition float32
	stdWeightVelocity float32
	motionMat         *mat.Dense
	updateMat         *mat.Dense
}

// NewKalmanFilter returns a filter with the given noise weights
func NewKalmanFilter(stdWeightPosition, stdWeightVelocity float32) *KalmanFilter {

	ndim := 4

	// constant velocity transition: identity plus dt=1 on the velocity
	// off-diagonal
	motionMat := mat.NewDense(8, 8, nil)

	for i := 0; i < 8; i++ {
		motionMat.Set(i, i, 1.0)
	}

	for i := 0; i < ndim; i++ {
		motionMat.Set(i, ndim+i, 1.0)
	}

	// observation matrix projects state onto the xyah components
	updateMat := mat.NewDense(4, 8, nil)

	for i := 0; i < 4; i++ {
		updateMat.Set(i, i, 1.0)
	}

	return &KalmanFilter{
		stdWeightPosition: stdWeightPosition,
		stdWeightVelocity: stdWeightVelocity,
		motionMat:         motionMat,
		updateMat:         updateMat,
	}
}

// Initiate seeds the state from a first measurement, with zero velocity
func (kf *KalmanFilter) Initiate(mean StateMean, covariance *StateCov,
	measurement Measurement) {

	copy(mean[:4], measurement[:4])

	for i := 4; i < 8; i++ {
		mean[i] = 0.0
	}

	std := make(StateMean, 8)
	std[0] = 2 * kf.stdWeightPosition * measurement[3]
	std[1] = 2 * kf.stdWeightPosition * measurement[3]
	std[2] = 1e-2
	std[3] = 2 * kf.stdWeightPosition * measurement[3]
	std[4] = 10 * kf.stdWeightVelocity * measurement[3]
	std[5] = 10 * kf.stdWeightVelocity * measurement[3]
	std[6] = 1e-5
	std[7] = 10 * kf.stdWeightVelocity * measurement[3]

	for i, v := range std {
		covariance.Set(i, i, float64(v*v))
	}
}

// Predict advances the state one frame through the motion model
func (kf *KalmanFilter) Predict(mean StateMean, covariance *StateCov) {

	std := make(StateMean, 8)
	std[0] = kf.stdWeightPosition * mean[3]
	std[1] = kf.stdWeightPosition * mean[3]
	std[2] = 1e-2
	std[3] = kf.stdWeightPosition * mean[3]
	std[4] = kf.stdWeightVelocity * mean[3]
	std[5] = kf.stdWeightVelocity * mean[3]
	std[6] = 1e-5
	std[7] = kf.stdWeightVelocity * mean[3]

	motionCov := mat.NewDense(8, 8, nil)

	for i, v := range std {
		motionCov.Set(i, i, float64(v*v))
	}

	meanMat := mat.NewDense(8, 1, nil)

	for i := 0; i < 8; i++ {
		meanMat.Set(i, 0, float64(mean[i]))
	}

	meanMat.Mul(kf.motionMat, meanMat)

	for i := 0; i < 8; i++ {
		mean[i] = float32(meanMat.At(i, 0))
	}

	cov := covariance.Dense
	cov.Mul(kf.motionMat, cov)
	cov.Mul(cov, kf.motionMat.T())
	cov.Add(cov, motionCov)
}

// Update corrects the state with a new measurement
func (kf *KalmanFilter) Update(mean StateMean, covariance *StateCov,
	measurement Measurement) error {

	projectedMean, projectedCov := kf.project(mean, covariance)

	chol := mat.Cholesky{}

	if ok := chol.Factorize(projectedCov); !ok {
		return errors.New("failed to factorize projected covariance")
	}

	// kalman gain via the Cholesky factors
	B := mat.NewDense(8, 4, nil)
	B.Mul(covariance.Dense, kf.updateMat.T())

	var gain mat.Dense

	if err := chol.SolveTo(&gain, B.T()); err != nil {
		return fmt.Errorf("failed to compute kalman gain: %w", err)
	}

	innovation := make([]float64, 4)

	for i := 0; i < 4; i++ {
		innovation[i] = float64(measurement[i] - projectedMean[i])
	}

	innovationVec := mat.NewVecDense(4, innovation)
	shift := mat.NewVecDense(8, nil)
	shift.MulVec(gain.T(), innovationVec)

	for i := 0; i < 8; i++ {
		mean[i] += float32(shift.AtVec(i))
	}

	tmp := mat.NewDense(8, 4, nil)
	tmp.Mul(gain.T(), projectedCov)

	reduction := mat.NewDense(8, 8, nil)
	reduction.Mul(tmp, &gain)

	newCov := mat.NewDense(8, 8, nil)
	newCov.Sub(covariance.Dense, reduction)

	covariance.Dense = newCov

	return nil
}

// project maps the state mean and covariance into measurement space and
// adds the measurement noise.
func (kf *KalmanFilter) project(mean StateMean,
	covariance *StateCov) (Measurement, *mat.SymDense) {

	std := make(Measurement, 4)
	std[0] = kf.stdWeightPosition * mean[3]
	std[1] = kf.stdWeightPosition * mean[3]
	std[2] = 1e-1
	std[3] = kf.stdWeightPosition * mean[3]

	innovationCov := mat.NewSymDense(4, nil)

	for i, v := range std {
		innovationCov.SetSym(i, i, float64(v*v))
	}

	meanData := make([]float64, 8)

	for i, v := range mean {
		meanData[i] = float64(v)
	}

	projectedMeanVec := mat.NewVecDense(4, nil)
	projectedMeanVec.MulVec(kf.updateMat, mat.NewVecDense(8, meanData))

	tmp := mat.NewDense(4, 8, nil)
	tmp.Mul(kf.updateMat, covariance.Dense)

	full := mat.NewDense(4, 4, nil)
	full.Mul(tmp, kf.updateMat.T())

	projectedCov := mat.NewSymDense(4, nil)

	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			projectedCov.SetSym(i, j, full.At(i, j))
		}
	}

	projectedCov.AddSym(projectedCov, innovationCov)

	projectedMean := make(Measurement, 4)

	for i := 0; i < 4; i++ {
		projectedMean[i] = float32(projectedMeanVec.AtVec(i))
	}

	return projectedMean, projectedCov
}
