package ml

// Metrics summarises a held-out evaluation. Precision and Recall are macro
// averages over the classes seen in either the truth or the predictions.
type Metrics struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	Samples   int     `json:"samples"`
	Classes   []int   `json:"classes"`
	Confusion [][]int `json:"confusion"`
}

func Accuracy(predicted, truth []int) float64 {
	if len(truth) == 0 || len(predicted) != len(truth) {
		return 0
	}
	correct := 0
	for i := range truth {
		if predicted[i] == truth[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(truth))
}

func Evaluate(predicted, truth []int) Metrics {
	m := Metrics{Samples: len(truth)}
	if len(truth) == 0 || len(predicted) != len(truth) {
		return m
	}
	m.Accuracy = Accuracy(predicted, truth)

	all := append(append([]int(nil), truth...), predicted...)
	m.Classes = UniqueLabels(all)
	index := make(map[int]int, len(m.Classes))
	for i, c := range m.Classes {
		index[c] = i
	}
	m.Confusion = make([][]int, len(m.Classes))
	for i := range m.Confusion {
		m.Confusion[i] = make([]int, len(m.Classes))
	}
	for i := range truth {
		m.Confusion[index[truth[i]]][index[predicted[i]]]++
	}

	var precision, recall float64
	for _, score := range m.PerClass() {
		precision += score.Precision
		recall += score.Recall
	}
	m.Precision = precision / float64(len(m.Classes))
	m.Recall = recall / float64(len(m.Classes))
	return m
}

// ClassScore is one row of a per-class report.
type ClassScore struct {
	Class     int     `json:"class"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// PerClass derives precision, recall and F1 for every class from the
// confusion matrix. Support counts the true rows of the class.
func (m Metrics) PerClass() []ClassScore {
	out := make([]ClassScore, len(m.Classes))
	for c, class := range m.Classes {
		truePositive := m.Confusion[c][c]
		predictedPositive, actualPositive := 0, 0
		for k := range m.Classes {
			predictedPositive += m.Confusion[k][c]
			actualPositive += m.Confusion[c][k]
		}
		score := ClassScore{Class: class, Support: actualPositive}
		if predictedPositive > 0 {
			score.Precision = float64(truePositive) / float64(predictedPositive)
		}
		if actualPositive > 0 {
			score.Recall = float64(truePositive) / float64(actualPositive)
		}
		if score.Precision+score.Recall > 0 {
			score.F1 = 2 * score.Precision * score.Recall / (score.Precision + score.Recall)
		}
		out[c] = score
	}
	return out
}
