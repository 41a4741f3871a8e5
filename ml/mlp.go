package ml

import (
	"context"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	adamBeta1   = 0.9
	adamBeta2   = 0.999
	adamEpsilon = 1e-8
	logLossClip = 1e-15
)

// MLPClassifier is a feed-forward network with ReLU hidden layers and a
// single logistic output unit, trained with Adam on log loss plus an L2
// penalty.
type MLPClassifier struct {
	params     MLPParams
	seed       int64
	nFeatures  int
	layers     []denseLayer
	lossCurve  []float64
	iterations int
}

type denseLayer struct {
	weights *mat.Dense
	bias    []float64
}

type layerSnapshot struct {
	Rows    int       `json:"rows"`
	Cols    int       `json:"cols"`
	Weights []float64 `json:"weights"`
	Bias    []float64 `json:"bias"`
}

type mlpSnapshot struct {
	Kind      string          `json:"kind"`
	NFeatures int             `json:"n_features"`
	Layers    []layerSnapshot `json:"layers"`
}

type adamState struct {
	weightM, weightV []float64
	biasM, biasV     []float64
}

func NewMLPClassifier(params MLPParams, seed int64) *MLPClassifier {
	return &MLPClassifier{params: params, seed: seed}
}

func (m *MLPClassifier) Train(features [][]float64, labels []int) error {
	return m.TrainContext(context.Background(), features, labels)
}

// TrainContext checks ctx before every epoch. A cancelled fit leaves the
// model untrained.
func (m *MLPClassifier) TrainContext(ctx context.Context, features [][]float64, labels []int) error {
	width, err := validateTrainingSet(features, labels)
	if err != nil {
		return err
	}
	hidden := m.params.HiddenLayers
	if len(hidden) == 0 {
		hidden = []int{100}
	}
	maxIter := m.params.MaxIter
	if maxIter <= 0 {
		maxIter = 200
	}
	learningRate := m.params.LearningRate
	if learningRate <= 0 {
		learningRate = 0.001
	}
	patience := m.params.NIterNoChange
	if patience <= 0 {
		patience = 10
	}

	n := len(features)
	batchSize := m.params.BatchSize
	if batchSize <= 0 || batchSize > n {
		batchSize = min(200, n)
	}

	rng := rand.New(rand.NewSource(m.seed))
	sizes := append(append([]int{width}, hidden...), 1)
	m.layers = make([]denseLayer, len(sizes)-1)
	states := make([]adamState, len(m.layers))
	for l := range m.layers {
		fanIn, fanOut := sizes[l], sizes[l+1]
		bound := math.Sqrt(6 / float64(fanIn+fanOut))
		weights := make([]float64, fanIn*fanOut)
		for i := range weights {
			weights[i] = (2*rng.Float64() - 1) * bound
		}
		bias := make([]float64, fanOut)
		for i := range bias {
			bias[i] = (2*rng.Float64() - 1) * bound
		}
		m.layers[l] = denseLayer{weights: mat.NewDense(fanIn, fanOut, weights), bias: bias}
		states[l] = adamState{
			weightM: make([]float64, fanIn*fanOut),
			weightV: make([]float64, fanIn*fanOut),
			biasM:   make([]float64, fanOut),
			biasV:   make([]float64, fanOut),
		}
	}
	m.nFeatures = width

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	bestLoss := math.Inf(1)
	noImprovement := 0
	step := 0
	m.lossCurve = m.lossCurve[:0]

	for epoch := 0; epoch < maxIter; epoch++ {
		if err := ctx.Err(); err != nil {
			m.layers = nil
			return err
		}
		rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })
		accumulated := 0.0
		for start := 0; start < n; start += batchSize {
			end := min(start+batchSize, n)
			batch := order[start:end]
			x := mat.NewDense(len(batch), width, nil)
			y := make([]float64, len(batch))
			for row, idx := range batch {
				x.SetRow(row, features[idx])
				y[row] = float64(labels[idx])
			}

			loss, weightGrads, biasGrads := m.backprop(x, y)
			accumulated += loss * float64(len(batch))

			step++
			correction := learningRate * math.Sqrt(1-math.Pow(adamBeta2, float64(step))) / (1 - math.Pow(adamBeta1, float64(step)))
			for l := range m.layers {
				adamUpdate(m.layers[l].weights.RawMatrix().Data, weightGrads[l].RawMatrix().Data, states[l].weightM, states[l].weightV, correction)
				adamUpdate(m.layers[l].bias, biasGrads[l], states[l].biasM, states[l].biasV, correction)
			}
		}

		loss := accumulated / float64(n)
		m.lossCurve = append(m.lossCurve, loss)
		m.iterations = epoch + 1
		if loss > bestLoss-m.params.Tol {
			noImprovement++
		} else {
			noImprovement = 0
		}
		if loss < bestLoss {
			bestLoss = loss
		}
		if noImprovement > patience {
			break
		}
	}
	return nil
}

func (m *MLPClassifier) Predict(features []float64) (int, error) {
	proba, err := m.PredictProba(features)
	if err != nil {
		return 0, err
	}
	return argmaxProba(proba), nil
}

func (m *MLPClassifier) PredictProba(features []float64) ([]float64, error) {
	if len(m.layers) == 0 {
		return nil, ErrNotTrained
	}
	if err := checkWidth(features, m.nFeatures); err != nil {
		return nil, err
	}
	x := mat.NewDense(1, len(features), append([]float64(nil), features...))
	activations := m.forward(x)
	p1 := activations[len(activations)-1].At(0, 0)
	return []float64{1 - p1, p1}, nil
}

// LossCurve returns the mean training loss of every epoch.
func (m *MLPClassifier) LossCurve() []float64 {
	return append([]float64(nil), m.lossCurve...)
}

func (m *MLPClassifier) Iterations() int {
	return m.iterations
}

func (m *MLPClassifier) Save(path string) error {
	if len(m.layers) == 0 {
		return ErrNotTrained
	}
	snapshot := mlpSnapshot{Kind: VariantMLP.Slot(), NFeatures: m.nFeatures}
	for _, layer := range m.layers {
		rows, cols := layer.weights.Dims()
		snapshot.Layers = append(snapshot.Layers, layerSnapshot{
			Rows:    rows,
			Cols:    cols,
			Weights: mat.DenseCopyOf(layer.weights).RawMatrix().Data,
			Bias:    layer.bias,
		})
	}
	return saveJSON(path, snapshot)
}

func (m *MLPClassifier) Load(path string) error {
	var snapshot mlpSnapshot
	if err := loadJSON(path, &snapshot); err != nil {
		return err
	}
	if err := checkKind(snapshot.Kind, VariantMLP.Slot()); err != nil {
		return err
	}
	if len(snapshot.Layers) == 0 {
		return ErrNotTrained
	}
	layers := make([]denseLayer, len(snapshot.Layers))
	inputs := snapshot.NFeatures
	for i, layer := range snapshot.Layers {
		if layer.Rows != inputs || layer.Cols <= 0 || len(layer.Weights) != layer.Rows*layer.Cols || len(layer.Bias) != layer.Cols {
			return errInvalidSnapshot(VariantMLP)
		}
		layers[i] = denseLayer{weights: mat.NewDense(layer.Rows, layer.Cols, layer.Weights), bias: layer.Bias}
		inputs = layer.Cols
	}
	if inputs != 1 {
		return errInvalidSnapshot(VariantMLP)
	}
	m.nFeatures = snapshot.NFeatures
	m.layers = layers
	return nil
}

// forward returns the input followed by every layer's activations.
func (m *MLPClassifier) forward(x *mat.Dense) []*mat.Dense {
	activations := make([]*mat.Dense, 0, len(m.layers)+1)
	activations = append(activations, x)
	last := len(m.layers) - 1
	for l, layer := range m.layers {
		var z mat.Dense
		z.Mul(activations[l], layer.weights)
		bias := layer.bias
		if l == last {
			z.Apply(func(_, j int, v float64) float64 { return logistic(v + bias[j]) }, &z)
		} else {
			z.Apply(func(_, j int, v float64) float64 { return math.Max(v+bias[j], 0) }, &z)
		}
		activations = append(activations, &z)
	}
	return activations
}

func (m *MLPClassifier) backprop(x *mat.Dense, y []float64) (float64, []*mat.Dense, [][]float64) {
	activations := m.forward(x)
	rows := float64(len(y))
	output := activations[len(activations)-1]

	loss := 0.0
	delta := mat.NewDense(len(y), 1, nil)
	for i, target := range y {
		p := output.At(i, 0)
		clipped := math.Min(math.Max(p, logLossClip), 1-logLossClip)
		loss -= target*math.Log(clipped) + (1-target)*math.Log(1-clipped)
		delta.Set(i, 0, p-target)
	}
	loss /= rows
	penalty := 0.0
	for _, layer := range m.layers {
		data := mat.DenseCopyOf(layer.weights).RawMatrix().Data
		penalty += floats.Dot(data, data)
	}
	loss += 0.5 * m.params.Alpha * penalty / rows

	weightGrads := make([]*mat.Dense, len(m.layers))
	biasGrads := make([][]float64, len(m.layers))
	for l := len(m.layers) - 1; l >= 0; l-- {
		layer := m.layers[l]
		var grad mat.Dense
		grad.Mul(activations[l].T(), delta)
		var reg mat.Dense
		reg.Scale(m.params.Alpha, layer.weights)
		grad.Add(&grad, &reg)
		grad.Scale(1/rows, &grad)
		weightGrads[l] = &grad

		_, cols := delta.Dims()
		biasGrads[l] = make([]float64, cols)
		for j := 0; j < cols; j++ {
			biasGrads[l][j] = floats.Sum(mat.Col(nil, j, delta)) / rows
		}

		if l > 0 {
			var next mat.Dense
			next.Mul(delta, layer.weights.T())
			hidden := activations[l]
			next.Apply(func(i, j int, v float64) float64 {
				if hidden.At(i, j) <= 0 {
					return 0
				}
				return v
			}, &next)
			delta = &next
		}
	}
	return loss, weightGrads, biasGrads
}

func adamUpdate(params, grads, moment, velocity []float64, learningRate float64) {
	for i, g := range grads {
		moment[i] = adamBeta1*moment[i] + (1-adamBeta1)*g
		velocity[i] = adamBeta2*velocity[i] + (1-adamBeta2)*g*g
		params[i] -= learningRate * moment[i] / (math.Sqrt(velocity[i]) + adamEpsilon)
	}
}

func logistic(v float64) float64 {
	if v >= 0 {
		return 1 / (1 + math.Exp(-v))
	}
	e := math.Exp(v)
	return e / (1 + e)
}
