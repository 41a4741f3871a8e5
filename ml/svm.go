package ml

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// SVC is a binary soft-margin SVM with an RBF kernel, solved with SMO using
// maximal violating pair selection. Probabilities come from a Platt
// sigmoid fitted on the training decision values.
type SVC struct {
	params SVMParams

	gamma          float64
	rho            float64
	supportVectors [][]float64
	dualCoef       []float64
	probA          float64
	probB          float64
	hasProbability bool
	iterations     int
}

type svmSnapshot struct {
	Kind           string      `json:"kind"`
	Gamma          float64     `json:"gamma"`
	Rho            float64     `json:"rho"`
	SupportVectors [][]float64 `json:"support_vectors"`
	DualCoef       []float64   `json:"dual_coef"`
	ProbA          float64     `json:"prob_a"`
	ProbB          float64     `json:"prob_b"`
	HasProbability bool        `json:"has_probability"`
}

func NewSVC(params SVMParams) *SVC {
	return &SVC{params: params}
}

func (s *SVC) Train(features [][]float64, labels []int) error {
	width, err := validateTrainingSet(features, labels)
	if err != nil {
		return err
	}
	c := s.params.C
	if c <= 0 {
		c = 1
	}
	tol := s.params.Tol
	if tol <= 0 {
		tol = 1e-3
	}
	maxIter := s.params.MaxIter
	if maxIter <= 0 {
		maxIter = 100000
	}

	s.gamma = s.params.Gamma
	if s.gamma <= 0 {
		s.gamma = scaleGamma(features, width)
	}

	n := len(features)
	y := make([]float64, n)
	for i, label := range labels {
		y[i] = float64(2*label - 1)
	}
	q := make([][]float64, n)
	for i := range q {
		q[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		q[i][i] = 1
		for j := i + 1; j < n; j++ {
			value := y[i] * y[j] * rbf(features[i], features[j], s.gamma)
			q[i][j] = value
			q[j][i] = value
		}
	}

	alpha := make([]float64, n)
	grad := make([]float64, n)
	for i := range grad {
		grad[i] = -1
	}

	const tau = 1e-12
	iter := 0
	for ; iter < maxIter; iter++ {
		i, j, gap := selectWorkingSet(alpha, grad, y, c)
		if i < 0 || j < 0 || gap < tol {
			break
		}
		oldI, oldJ := alpha[i], alpha[j]
		if y[i] != y[j] {
			quad := q[i][i] + q[j][j] + 2*q[i][j]
			if quad <= 0 {
				quad = tau
			}
			delta := (-grad[i] - grad[j]) / quad
			diff := alpha[i] - alpha[j]
			alpha[i] += delta
			alpha[j] += delta
			if diff > 0 {
				if alpha[j] < 0 {
					alpha[j] = 0
					alpha[i] = diff
				}
			} else if alpha[i] < 0 {
				alpha[i] = 0
				alpha[j] = -diff
			}
			if diff > 0 {
				if alpha[i] > c {
					alpha[i] = c
					alpha[j] = c - diff
				}
			} else if alpha[j] > c {
				alpha[j] = c
				alpha[i] = c + diff
			}
		} else {
			quad := q[i][i] + q[j][j] - 2*q[i][j]
			if quad <= 0 {
				quad = tau
			}
			delta := (grad[i] - grad[j]) / quad
			sum := alpha[i] + alpha[j]
			alpha[i] -= delta
			alpha[j] += delta
			if sum > c {
				if alpha[i] > c {
					alpha[i] = c
					alpha[j] = sum - c
				}
			} else if alpha[j] < 0 {
				alpha[j] = 0
				alpha[i] = sum
			}
			if sum > c {
				if alpha[j] > c {
					alpha[j] = c
					alpha[i] = sum - c
				}
			} else if alpha[i] < 0 {
				alpha[i] = 0
				alpha[j] = sum
			}
		}
		deltaI := alpha[i] - oldI
		deltaJ := alpha[j] - oldJ
		for t := 0; t < n; t++ {
			grad[t] += q[t][i]*deltaI + q[t][j]*deltaJ
		}
	}
	s.iterations = iter
	s.rho = computeRho(alpha, grad, y, c)

	s.supportVectors = nil
	s.dualCoef = nil
	for i := range alpha {
		if alpha[i] > 0 {
			s.supportVectors = append(s.supportVectors, append([]float64(nil), features[i]...))
			s.dualCoef = append(s.dualCoef, alpha[i]*y[i])
		}
	}

	s.hasProbability = false
	if s.params.Probability {
		decisions := make([]float64, n)
		for i, row := range features {
			decisions[i] = s.decision(row)
		}
		s.probA, s.probB = plattSigmoid(decisions, labels)
		s.hasProbability = true
	}
	return nil
}

func (s *SVC) Predict(features []float64) (int, error) {
	if err := s.ready(features); err != nil {
		return 0, err
	}
	if s.decision(features) > 0 {
		return 1, nil
	}
	return 0, nil
}

// PredictProba returns ErrNoProbability when the model was trained with
// probability disabled.
func (s *SVC) PredictProba(features []float64) ([]float64, error) {
	if err := s.ready(features); err != nil {
		return nil, err
	}
	if !s.hasProbability {
		return nil, ErrNoProbability
	}
	p1 := sigmoidProbability(s.decision(features), s.probA, s.probB)
	return []float64{1 - p1, p1}, nil
}

func (s *SVC) DecisionFunction(features []float64) (float64, error) {
	if err := s.ready(features); err != nil {
		return 0, err
	}
	return s.decision(features), nil
}

func (s *SVC) Save(path string) error {
	if s.gamma == 0 {
		return ErrNotTrained
	}
	return saveJSON(path, svmSnapshot{
		Kind:           VariantSVM.Slot(),
		Gamma:          s.gamma,
		Rho:            s.rho,
		SupportVectors: s.supportVectors,
		DualCoef:       s.dualCoef,
		ProbA:          s.probA,
		ProbB:          s.probB,
		HasProbability: s.hasProbability,
	})
}

func (s *SVC) Load(path string) error {
	var snapshot svmSnapshot
	if err := loadJSON(path, &snapshot); err != nil {
		return err
	}
	if err := checkKind(snapshot.Kind, VariantSVM.Slot()); err != nil {
		return err
	}
	if snapshot.Gamma <= 0 || len(snapshot.SupportVectors) != len(snapshot.DualCoef) {
		return errInvalidSnapshot(VariantSVM)
	}
	s.gamma = snapshot.Gamma
	s.rho = snapshot.Rho
	s.supportVectors = snapshot.SupportVectors
	s.dualCoef = snapshot.DualCoef
	s.probA = snapshot.ProbA
	s.probB = snapshot.ProbB
	s.hasProbability = snapshot.HasProbability
	return nil
}

func (s *SVC) NumSupportVectors() int {
	return len(s.supportVectors)
}

func (s *SVC) ready(features []float64) error {
	if s.gamma == 0 {
		return ErrNotTrained
	}
	if len(s.supportVectors) > 0 {
		return checkWidth(features, len(s.supportVectors[0]))
	}
	return nil
}

func (s *SVC) decision(features []float64) float64 {
	sum := -s.rho
	for i, sv := range s.supportVectors {
		sum += s.dualCoef[i] * rbf(sv, features, s.gamma)
	}
	return sum
}

func rbf(a, b []float64, gamma float64) float64 {
	d := floats.Distance(a, b, 2)
	return math.Exp(-gamma * d * d)
}

// scaleGamma is 1 / (n_features * variance of all feature values).
func scaleGamma(features [][]float64, width int) float64 {
	values := make([]float64, 0, len(features)*width)
	for _, row := range features {
		values = append(values, row...)
	}
	_, variance := stat.PopMeanVariance(values, nil)
	if variance == 0 {
		return 1
	}
	return 1 / (float64(width) * variance)
}

// selectWorkingSet picks the maximal violating pair. The gap is
// m(alpha) - M(alpha); the solver stops once it falls under tol.
func selectWorkingSet(alpha, grad, y []float64, c float64) (int, int, float64) {
	up := -1
	low := -1
	maxUp := math.Inf(-1)
	minLow := math.Inf(1)
	for t := range alpha {
		value := -y[t] * grad[t]
		inUp := (y[t] > 0 && alpha[t] < c) || (y[t] < 0 && alpha[t] > 0)
		inLow := (y[t] > 0 && alpha[t] > 0) || (y[t] < 0 && alpha[t] < c)
		if inUp && value > maxUp {
			maxUp = value
			up = t
		}
		if inLow && value < minLow {
			minLow = value
			low = t
		}
	}
	return up, low, maxUp - minLow
}

func computeRho(alpha, grad, y []float64, c float64) float64 {
	upper := math.Inf(1)
	lower := math.Inf(-1)
	freeCount := 0
	freeSum := 0.0
	for i := range alpha {
		yG := y[i] * grad[i]
		switch {
		case alpha[i] >= c:
			if y[i] < 0 {
				upper = math.Min(upper, yG)
			} else {
				lower = math.Max(lower, yG)
			}
		case alpha[i] <= 0:
			if y[i] > 0 {
				upper = math.Min(upper, yG)
			} else {
				lower = math.Max(lower, yG)
			}
		default:
			freeCount++
			freeSum += yG
		}
	}
	if freeCount > 0 {
		return freeSum / float64(freeCount)
	}
	if math.IsInf(upper, 0) || math.IsInf(lower, 0) {
		return 0
	}
	return (upper + lower) / 2
}

// plattSigmoid fits P(y=1|f) = 1 / (1 + exp(A*f + B)) with Newton's method
// and backtracking, using smoothed targets.
func plattSigmoid(decisions []float64, labels []int) (float64, float64) {
	var prior0, prior1 float64
	for _, label := range labels {
		if label == 1 {
			prior1++
		} else {
			prior0++
		}
	}
	hiTarget := (prior1 + 1) / (prior1 + 2)
	loTarget := 1 / (prior0 + 2)
	targets := make([]float64, len(labels))
	for i, label := range labels {
		if label == 1 {
			targets[i] = hiTarget
		} else {
			targets[i] = loTarget
		}
	}

	const (
		maxIter = 100
		minStep = 1e-10
		sigma   = 1e-12
		eps     = 1e-5
	)
	a := 0.0
	b := math.Log((prior0 + 1) / (prior1 + 1))
	fval := plattObjective(decisions, targets, a, b)

	for iter := 0; iter < maxIter; iter++ {
		h11, h22, h21 := sigma, sigma, 0.0
		g1, g2 := 0.0, 0.0
		for i, f := range decisions {
			fApB := f*a + b
			var p, q float64
			if fApB >= 0 {
				p = math.Exp(-fApB) / (1 + math.Exp(-fApB))
				q = 1 / (1 + math.Exp(-fApB))
			} else {
				p = 1 / (1 + math.Exp(fApB))
				q = math.Exp(fApB) / (1 + math.Exp(fApB))
			}
			d2 := p * q
			h11 += f * f * d2
			h22 += d2
			h21 += f * d2
			d1 := targets[i] - p
			g1 += f * d1
			g2 += d1
		}
		if math.Abs(g1) < eps && math.Abs(g2) < eps {
			break
		}

		det := h11*h22 - h21*h21
		dA := -(h22*g1 - h21*g2) / det
		dB := -(-h21*g1 + h11*g2) / det
		gd := g1*dA + g2*dB

		step := 1.0
		for step >= minStep {
			newA := a + step*dA
			newB := b + step*dB
			newF := plattObjective(decisions, targets, newA, newB)
			if newF < fval+0.0001*step*gd {
				a, b, fval = newA, newB, newF
				break
			}
			step /= 2
		}
		if step < minStep {
			break
		}
	}
	return a, b
}

func plattObjective(decisions, targets []float64, a, b float64) float64 {
	total := 0.0
	for i, f := range decisions {
		fApB := f*a + b
		if fApB >= 0 {
			total += targets[i]*fApB + math.Log1p(math.Exp(-fApB))
		} else {
			total += (targets[i]-1)*fApB + math.Log1p(math.Exp(fApB))
		}
	}
	return total
}

func sigmoidProbability(decision, a, b float64) float64 {
	fApB := decision*a + b
	if fApB >= 0 {
		return math.Exp(-fApB) / (1 + math.Exp(-fApB))
	}
	return 1 / (1 + math.Exp(fApB))
}
