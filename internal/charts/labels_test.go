package charts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func TestPercentLabelThreshold(t *testing.T) {
	p := message.NewPrinter(language.English)

	tests := []struct {
		name  string
		small float64
		want  string
	}{
		{"below threshold is blank", 2.9, ""},
		{"at threshold is labeled", 3, "3%"},
		{"above threshold is labeled", 3.5, "3.5%"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := []Datum{{Label: "small", Value: tt.small}, {Label: "big", Value: 100 - tt.small}}
			labels := DataLabels(data, DataLabel{Format: LabelPercent}, false, p)
			assert.Equal(t, tt.want, labels[0])
			assert.NotEmpty(t, labels[1])
		})
	}
}

func TestPercentLabelCustomMinimum(t *testing.T) {
	p := message.NewPrinter(language.English)
	data := []Datum{{Label: "a", Value: 10}, {Label: "b", Value: 90}}

	labels := DataLabels(data, DataLabel{Format: LabelPercent, MinValue: floatPtr(0.1)}, false, p)
	assert.Equal(t, "10%", labels[0])

	labels = DataLabels(data, DataLabel{Format: LabelPercent, MinValue: floatPtr(0.11)}, false, p)
	assert.Equal(t, "", labels[0])
}

func TestPercentLabelsPerColorGroup(t *testing.T) {
	p := message.NewPrinter(language.English)
	data := []Datum{
		{Label: "jan", Group: "ok", Value: 1},
		{Label: "feb", Group: "ok", Value: 3},
		{Label: "jan", Group: "error", Value: 5},
	}
	labels := DataLabels(data, DataLabel{Format: LabelPercent}, true, p)
	assert.Equal(t, []string{"25%", "75%", "100%"}, labels)
}

func TestNumericLabelThreshold(t *testing.T) {
	p := message.NewPrinter(language.English)
	data := []Datum{{Label: "a", Value: 1000}, {Label: "b", Value: 30}, {Label: "c", Value: 29.99}}

	labels := DataLabels(data, DataLabel{}, false, p)
	assert.Equal(t, []string{"1,000", "30", ""}, labels)

	labels = DataLabels(data, DataLabel{Format: LabelNumeric, MinValue: floatPtr(500)}, false, p)
	assert.Equal(t, []string{"1,000", "", ""}, labels)
}

func TestNumericLabelFractionDigits(t *testing.T) {
	p := message.NewPrinter(language.English)
	data := []Datum{{Label: "a", Value: 12.3456}}

	assert.Equal(t, "12.35", DataLabels(data, DataLabel{}, false, p)[0])
	assert.Equal(t, "12", DataLabels(data, DataLabel{FractionDigits: intPtr(0)}, false, p)[0])
}

func TestLabelsAreLocalized(t *testing.T) {
	p := message.NewPrinter(language.German)
	labels := DataLabels([]Datum{{Label: "a", Value: 1234.5}}, DataLabel{}, false, p)
	assert.Equal(t, "1.234,5", labels[0])
}

func TestSyntheticRowsAreNeverLabeled(t *testing.T) {
	p := message.NewPrinter(language.English)
	data := []Datum{{Label: "a", Value: 0, Synthetic: true}, {Label: "b", Value: 0}}
	labels := DataLabels(data, DataLabel{}, false, p)
	assert.Equal(t, "", labels[0])
	assert.Equal(t, "0", labels[1])
}

func TestArcRadius(t *testing.T) {
	r := arcRadius(400, 200, 0.5, nil)
	assert.InDelta(t, 80, r.Outer, 1e-9)
	assert.InDelta(t, 40, r.Inner, 1e-9)
	assert.InDelta(t, 60, r.Label, 1e-9)

	r = arcRadius(400, 200, 0, &DataLabel{Position: "out", Offset: 5})
	assert.InDelta(t, 85, r.Label, 1e-9)

	r = arcRadius(400, 200, 0, &DataLabel{Position: "out"})
	assert.InDelta(t, 92, r.Label, 1e-9)
}
