package distribution

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/stat/distuv"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// TestIIDLogProb checks that wrapping a matrix-shaped Normal with one
// event dimension scores each row as a single joint event.
func TestIIDLogProb(t *testing.T) {
	const rows, cols = 2, 3

	means := []float64{0, 1, -1, 2, -2, 0.5}
	stddevs := []float64{1, 2, 0.5, 1, 3, 1.5}
	xs := []float64{0.1, 0.9, -1.2, 2.5, -1, 0}

	g := G.NewGraph()
	newMat := func(name string, backing []float64) *G.Node {
		matT := tensor.NewDense(
			tensor.Float64,
			[]int{rows, cols},
			tensor.WithBacking(backing),
		)
		return G.NewMatrix(
			g,
			matT.Dtype(),
			G.WithShape(rows, cols),
			G.WithValue(matT),
			G.WithName(name),
		)
	}

	normal, err := NewNormal(
		newMat("mean", means),
		newMat("stddev", stddevs),
	)
	if err != nil {
		t.Fatal(err)
	}
	iid := NewIID(normal, 1)

	logProb, err := iid.LogProb(newMat("x", xs))
	if err != nil {
		t.Fatal(err)
	}
	if !logProb.Shape().Eq(tensor.Shape{rows}) {
		t.Fatalf("expected shape %v but got %v", tensor.Shape{rows},
			logProb.Shape())
	}
	var logProbVal G.Value
	G.Read(logProb, &logProbVal)

	vm := G.NewTapeMachine(g)
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		t.Fatal(err)
	}

	data := logProbVal.Data().([]float64)
	for i := 0; i < rows; i++ {
		var expected float64
		for j := 0; j < cols; j++ {
			dist := distuv.Normal{
				Mu:    means[i*cols+j],
				Sigma: stddevs[i*cols+j],
			}
			expected += dist.LogProb(xs[i*cols+j])
		}
		if math.Abs(data[i]-expected) > threshold {
			t.Errorf("expected row %d log-density %v but got %v", i,
				expected, data[i])
		}
	}
}
