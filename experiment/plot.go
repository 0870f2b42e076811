package experiment

import (
	"bytes"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/tabexp-labs/tabexp/pkg/errors"
)

// renderHistory draws the training-loss and validation-RMSE curves as a
// PNG for the run's artifact store.
func renderHistory(h *History) ([]byte, error) {
	if len(h.Epochs) == 0 {
		return nil, errors.New("history has no epochs to plot")
	}

	p := plot.New()
	p.Title.Text = "Training history"
	p.X.Label.Text = "epoch"
	p.Y.Label.Text = "loss / RMSE"

	trainPts := make(plotter.XYs, len(h.Epochs))
	valPts := make(plotter.XYs, len(h.Epochs))
	for i, epoch := range h.Epochs {
		trainPts[i].X = float64(epoch)
		trainPts[i].Y = h.TrainLoss[i]
		valPts[i].X = float64(epoch)
		valPts[i].Y = h.ValRMSE[i]
	}

	trainLine, err := plotter.NewLine(trainPts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build train curve")
	}
	valLine, err := plotter.NewLine(valPts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build validation curve")
	}
	valLine.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}

	p.Add(trainLine, valLine)
	p.Legend.Add("train loss", trainLine)
	p.Legend.Add("val RMSE", valLine)

	wt, err := p.WriterTo(6*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return nil, errors.Wrap(err, "failed to render history")
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, errors.Wrap(err, "failed to encode history png")
	}
	return buf.Bytes(), nil
}
